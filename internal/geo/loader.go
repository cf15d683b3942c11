package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/safe-zone/internal/fetcher"
	"github.com/sells-group/safe-zone/internal/resilience"
)

// ErrMalformedDataset is returned when a hazard dataset is missing its
// feature list or is not a GeoJSON FeatureCollection.
var ErrMalformedDataset = resilience.WithKind(resilience.FailureData, eris.New("geo: GeoJSON missing or malformed"))

type rawCollection struct {
	Type     string            `json:"type"`
	Features []json.RawMessage `json:"features"`
}

type rawFeature struct {
	ID         any             `json:"id"`
	Geometry   json.RawMessage `json:"geometry"`
	Properties map[string]any  `json:"properties"`
}

// DecodeGeoJSON reads a FeatureCollection. Features whose geometry is null or
// cannot be decoded are kept with a nil Geometry; ValidateFeatures reports
// them.
func DecodeGeoJSON(r io.Reader) ([]Feature, error) {
	var fc rawCollection
	if err := json.NewDecoder(r).Decode(&fc); err != nil {
		return nil, eris.Wrapf(ErrMalformedDataset, "geo: decode collection: %v", err)
	}
	if fc.Features == nil {
		return nil, eris.Wrap(ErrMalformedDataset, "geo: features array absent")
	}
	if fc.Type != "" && fc.Type != "FeatureCollection" {
		return nil, eris.Wrapf(ErrMalformedDataset, "geo: unexpected type %q", fc.Type)
	}

	features := make([]Feature, 0, len(fc.Features))
	for i, raw := range fc.Features {
		var rf rawFeature
		if err := json.Unmarshal(raw, &rf); err != nil {
			return nil, eris.Wrapf(ErrMalformedDataset, "geo: feature %d: %v", i, err)
		}

		f := Feature{ID: featureID(rf.ID), Properties: rf.Properties}
		if len(rf.Geometry) > 0 {
			var g geom.T
			if err := geojson.Unmarshal(rf.Geometry, &g); err != nil {
				zap.L().Debug("geo: undecodable feature geometry",
					zap.Int("index", i),
					zap.String("id", f.ID),
					zap.Error(err),
				)
			} else {
				f.Geometry = g
			}
		}
		features = append(features, f)
	}

	return features, nil
}

// EncodeGeoJSON writes features as a FeatureCollection.
func EncodeGeoJSON(w io.Writer, features []Feature) error {
	fc := geojson.FeatureCollection{Features: make([]*geojson.Feature, 0, len(features))}
	for _, f := range features {
		props := f.Properties
		if props == nil {
			props = map[string]any{}
		}
		fc.Features = append(fc.Features, &geojson.Feature{
			ID:         f.ID,
			Geometry:   f.Geometry,
			Properties: props,
		})
	}

	data, err := json.Marshal(&fc)
	if err != nil {
		return eris.Wrap(err, "geo: encode collection")
	}
	if _, err := w.Write(data); err != nil {
		return eris.Wrap(err, "geo: write collection")
	}
	return nil
}

// LoadFile loads a hazard dataset from a local GeoJSON file, shapefile, or
// zipped shapefile.
func LoadFile(ctx context.Context, path string) ([]Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, eris.Wrap(err, "geo: load cancelled")
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".geojson":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: open %s", path)
		}
		defer f.Close() //nolint:errcheck
		return DecodeGeoJSON(f)

	case ".shp":
		return LoadShapefile(path)

	case ".zip":
		dir, err := os.MkdirTemp("", "safezone-hazards-*")
		if err != nil {
			return nil, eris.Wrap(err, "geo: create extract dir")
		}
		defer os.RemoveAll(dir) //nolint:errcheck

		files, err := fetcher.ExtractZIP(path, dir)
		if err != nil {
			return nil, eris.Wrapf(err, "geo: extract %s", path)
		}
		inner, ok := fetcher.FindExtracted(files, ".shp", ".geojson", ".json")
		if !ok {
			return nil, eris.Errorf("geo: no .shp or .geojson in %s", path)
		}
		return LoadFile(ctx, inner)

	default:
		return nil, eris.Errorf("geo: unsupported dataset format %q", filepath.Ext(path))
	}
}

func featureID(v any) string {
	switch id := v.(type) {
	case nil:
		return ""
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	default:
		return fmt.Sprint(id)
	}
}
