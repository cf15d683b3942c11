package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/sells-group/safe-zone/internal/geo"
	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/scorer"
	"github.com/sells-group/safe-zone/internal/seed"
)

var neighborsCmd = &cobra.Command{
	Use:   "neighbors",
	Short: "List neighbors inside the neighborhood radius with their colors",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		sd, err := seed.Load(cfg.Data.SeedPath)
		if err != nil {
			return err
		}

		var neighbors []model.Neighbor
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			neighbors, err = seed.LoadNeighbors(ctx, path)
		} else {
			neighbors, err = loadNeighbors(ctx, cfg, sd)
		}
		if err != nil {
			return err
		}

		radius, _ := cmd.Flags().GetFloat64("radius")
		if !cmd.Flags().Changed("radius") {
			radius = cfg.Scoring.NeighborhoodRadiusMiles
		}
		return printNeighbors(cmd.OutOrStdout(), sd.Property.Center, neighbors, radius)
	},
}

func init() {
	neighborsCmd.Flags().String("file", "", "neighbor roster (.yaml, .json, .csv, .xlsx)")
	neighborsCmd.Flags().Float64("radius", 0, "neighborhood radius in miles (default from config)")
	rootCmd.AddCommand(neighborsCmd)
}

func printNeighbors(w io.Writer, center model.Coordinate, neighbors []model.Neighbor, radiusMiles float64) error {
	nearby, err := geo.NeighborsWithin(center, neighbors, radiusMiles)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%d of %d neighbors within %.1f mi\n", len(nearby), len(neighbors), radiusMiles)
	for _, n := range nearby {
		color, err := scorer.ColorForScore(n.Completion, scorer.DefaultMaxScore)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "  %-16s %d/%d  %-22s %5.2f mi\n",
			n.ID, n.Completion, scorer.DefaultMaxScore, color, geo.HaversineMiles(center, n.Center))
	}
	return nil
}
