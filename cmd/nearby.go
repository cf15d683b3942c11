package main

import (
	"context"
	"fmt"
	"io"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/locate"
	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/resilience"
)

var nearbyCmd = &cobra.Command{
	Use:   "nearby",
	Short: "List fire hazard zones near a location",
	Long:  "Filters the hazard dataset to features within the radius of --lat/--lon, or of the configured location when no coordinates are given.",
	RunE:  runNearby,
}

func init() {
	nearbyCmd.Flags().Float64("lat", 0, "latitude of the origin")
	nearbyCmd.Flags().Float64("lon", 0, "longitude of the origin")
	nearbyCmd.Flags().Float64("radius", 0, "radius in miles (default from config)")
	nearbyCmd.Flags().String("file", "", "hazard dataset (default from config)")
	nearbyCmd.Flags().Bool("geojson", false, "print a GeoJSON FeatureCollection")
	rootCmd.AddCommand(nearbyCmd)
}

func runNearby(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	flags := cmd.Flags()

	path, _ := flags.GetString("file")
	if path == "" {
		path = cfg.Data.HazardsPath
	}
	if path == "" {
		return eris.New("no hazard dataset: pass --file or set data.hazards_path")
	}
	radius, _ := flags.GetFloat64("radius")
	if !flags.Changed("radius") {
		radius = cfg.Scoring.NearbyRadiusMiles
	}
	asGeoJSON, _ := flags.GetBool("geojson")

	var origin *model.Coordinate
	if flags.Changed("lat") || flags.Changed("lon") {
		if !flags.Changed("lat") || !flags.Changed("lon") {
			return eris.New("--lat and --lon must be given together")
		}
		lat, _ := flags.GetFloat64("lat")
		lon, _ := flags.GetFloat64("lon")
		origin = &model.Coordinate{Latitude: lat, Longitude: lon}
	}

	features, err := loadHazards(ctx, path)
	if err != nil {
		return err
	}
	return printNearby(ctx, cmd.OutOrStdout(), newLocator(cfg), origin, features, radius, asGeoJSON)
}

// printNearby resolves the origin through loc when none is given and prints
// the hazards within radiusMiles of it.
func printNearby(ctx context.Context, w io.Writer, loc locate.Locator, origin *model.Coordinate, features []geo.Feature, radiusMiles float64, asGeoJSON bool) error {
	if origin == nil {
		pos, err := loc.Locate(ctx)
		if err != nil {
			return eris.Wrap(err, resilience.Classify(err).Message())
		}
		origin = &pos
	}

	nearby, err := geo.FilterNearby(*origin, features, radiusMiles)
	if err != nil {
		return err
	}

	if asGeoJSON {
		return geo.EncodeGeoJSON(w, nearby)
	}

	fmt.Fprintf(w, "%d of %d hazard zones within %.1f mi of %.5f, %.5f\n",
		len(nearby), len(features), radiusMiles, origin.Latitude, origin.Longitude)
	for _, f := range nearby {
		ref, err := geo.ReferencePoint(f)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %-24s %6.2f mi\n", f.ID, geo.HaversineMiles(*origin, ref))
	}
	return nil
}
