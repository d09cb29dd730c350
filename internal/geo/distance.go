package geo

import "math"

const earthRadiusKm = 6371.0

// Coordinates is a WGS84 latitude/longitude pair in degrees.
type Coordinates struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// HaversineKm returns the great-circle distance between two points in kilometres.
func HaversineKm(a, b Coordinates) float64 {
	toRad := func(d float64) float64 { return d * (math.Pi / 180) }
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return earthRadiusKm * c
}

// RoadDistanceKm approximates drivable distance by scaling the straight-line
// distance with a fixed curvature factor. It is not a routing engine.
func RoadDistanceKm(a, b Coordinates, factor float64) float64 {
	return HaversineKm(a, b) * factor
}
