// Package geo provides hazard features, great-circle proximity filtering, and
// dataset loading for the resilience map.
package geo

import (
	"math"

	"github.com/sells-group/safe-zone/internal/model"
)

// EarthRadiusMiles is the mean Earth radius used for haversine distances.
const EarthRadiusMiles = 3958.8

// MetersPerMile converts radii for map circle overlays.
const MetersPerMile = 1609.344

// HaversineMiles returns the great-circle distance between two points in miles.
func HaversineMiles(a, b model.Coordinate) float64 {
	dLat := toRadians(b.Latitude - a.Latitude)
	dLon := toRadians(b.Longitude - a.Longitude)

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRadians(a.Latitude))*math.Cos(toRadians(b.Latitude))*
			math.Sin(dLon/2)*math.Sin(dLon/2)

	return EarthRadiusMiles * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}
