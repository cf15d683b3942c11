package geo

import (
	"math"

	"github.com/rotisserie/eris"

	"github.com/sells-group/safe-zone/internal/model"
)

// DefaultNearbyRadiusMiles is the hazard proximity radius.
const DefaultNearbyRadiusMiles = 20.0

// DefaultNeighborhoodRadiusMiles is the radius of the neighborhood score circle.
const DefaultNeighborhoodRadiusMiles = 5.0

// ErrInvalidRadius is returned for negative or non-finite radii.
var ErrInvalidRadius = eris.New("geo: radius must be a finite non-negative number of miles")

// FilterNearby returns the features whose reference vertex lies within
// radiusMiles of origin, inclusive, in their original order. A feature without
// a usable reference vertex fails the whole call with a MalformedFeatureError.
func FilterNearby(origin model.Coordinate, features []Feature, radiusMiles float64) ([]Feature, error) {
	if err := checkRadius(radiusMiles); err != nil {
		return nil, err
	}

	out := make([]Feature, 0, len(features))
	for i, f := range features {
		ref, err := ReferencePoint(f)
		if err != nil {
			return nil, &MalformedFeatureError{Index: i, ID: f.ID, Reason: err.Error()}
		}
		if HaversineMiles(origin, ref) <= radiusMiles {
			out = append(out, f)
		}
	}
	return out, nil
}

// ValidateFeatures reports the first feature without a usable reference
// vertex as a MalformedFeatureError.
func ValidateFeatures(features []Feature) error {
	for i, f := range features {
		if _, err := ReferencePoint(f); err != nil {
			return &MalformedFeatureError{Index: i, ID: f.ID, Reason: err.Error()}
		}
	}
	return nil
}

// NeighborsWithin returns the neighbors whose center lies within radiusMiles of
// center, inclusive, in their original order.
func NeighborsWithin(center model.Coordinate, neighbors []model.Neighbor, radiusMiles float64) ([]model.Neighbor, error) {
	if err := checkRadius(radiusMiles); err != nil {
		return nil, err
	}

	out := make([]model.Neighbor, 0, len(neighbors))
	for _, n := range neighbors {
		if HaversineMiles(center, n.Center) <= radiusMiles {
			out = append(out, n)
		}
	}
	return out, nil
}

func checkRadius(r float64) error {
	if r < 0 || math.IsNaN(r) || math.IsInf(r, 0) {
		return eris.Wrapf(ErrInvalidRadius, "geo: radius %v", r)
	}
	return nil
}
