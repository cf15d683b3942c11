package geo

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"

	"github.com/sells-group/safe-zone/internal/model"
	"github.com/sells-group/safe-zone/internal/resilience"
)

// Feature is a hazard boundary record from an external dataset. Geometry is
// a Polygon or MultiPolygon in lon/lat order; Point geometries are accepted
// for point-detection datasets.
type Feature struct {
	ID         string         `json:"id,omitempty"`
	Geometry   geom.T         `json:"-"`
	Properties map[string]any `json:"properties,omitempty"`
}

// MalformedFeatureError reports a feature without a usable reference vertex.
type MalformedFeatureError struct {
	Index  int
	ID     string
	Reason string
}

func (e *MalformedFeatureError) Error() string {
	if e.ID != "" {
		return fmt.Sprintf("geo: malformed feature %d (%s): %s", e.Index, e.ID, e.Reason)
	}
	return fmt.Sprintf("geo: malformed feature %d: %s", e.Index, e.Reason)
}

// FailureKind marks malformed features as data failures.
func (e *MalformedFeatureError) FailureKind() resilience.FailureKind {
	return resilience.FailureData
}

// NewPolygonFeature builds a single-ring polygon feature from a boundary ring.
func NewPolygonFeature(id string, ring []model.Coordinate, props map[string]any) Feature {
	coords := make([]geom.Coord, 0, len(ring))
	for _, c := range ring {
		coords = append(coords, geom.Coord{c.Longitude, c.Latitude})
	}
	poly := geom.NewPolygon(geom.XY).MustSetCoords([][]geom.Coord{coords}).SetSRID(4326)
	return Feature{ID: id, Geometry: poly, Properties: props}
}

// ReferencePoint returns the point proximity is measured from: the first vertex
// of the outer ring of the first polygon. This is an approximation keyed to one
// boundary vertex, not the centroid or the nearest edge.
func ReferencePoint(f Feature) (model.Coordinate, error) {
	switch g := f.Geometry.(type) {
	case nil:
		return model.Coordinate{}, eris.New("missing geometry")
	case *geom.Polygon:
		if g == nil {
			return model.Coordinate{}, eris.New("missing geometry")
		}
		return outerRingStart(g)
	case *geom.MultiPolygon:
		if g == nil || g.NumPolygons() == 0 {
			return model.Coordinate{}, eris.New("multipolygon has no polygons")
		}
		return outerRingStart(g.Polygon(0))
	case *geom.Point:
		if g == nil || g.Empty() {
			return model.Coordinate{}, eris.New("point is empty")
		}
		return toCoordinate(g.Coords())
	default:
		return model.Coordinate{}, eris.Errorf("unsupported geometry %T", g)
	}
}

func outerRingStart(p *geom.Polygon) (model.Coordinate, error) {
	if p.NumLinearRings() == 0 {
		return model.Coordinate{}, eris.New("polygon has no rings")
	}
	ring := p.LinearRing(0)
	if ring.NumCoords() == 0 {
		return model.Coordinate{}, eris.New("outer ring is empty")
	}
	return toCoordinate(ring.Coord(0))
}

func toCoordinate(c geom.Coord) (model.Coordinate, error) {
	if len(c) < 2 {
		return model.Coordinate{}, eris.Errorf("vertex has %d ordinates", len(c))
	}
	return model.Coordinate{Latitude: c.Y(), Longitude: c.X()}, nil
}
