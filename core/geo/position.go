// Package geo holds the stateless geographic helpers used by vehicles,
// dispatchers and regions.
package geo

import (
	"fmt"
	"math"
)

// Position is a WGS84 coordinate in degrees.
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// Pos is shorthand for Position{Lon: lon, Lat: lat}.
func Pos(lon, lat float64) Position { return Position{Lon: lon, Lat: lat} }

// FromLonLat builds a Position from a [lon, lat] pair.
func FromLonLat(c []float64) (Position, error) {
	if len(c) < 2 {
		return Position{}, fmt.Errorf("coordinate needs 2 values, got %d", len(c))
	}
	return Position{Lon: c[0], Lat: c[1]}, nil
}

// LonLat returns the position as a [lon, lat] pair.
func (p Position) LonLat() []float64 { return []float64{p.Lon, p.Lat} }

// Valid reports whether both coordinates are finite and within range.
func (p Position) Valid() bool {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
		return false
	}
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// IsZero reports whether p is the zero value.
func (p Position) IsZero() bool { return p.Lon == 0 && p.Lat == 0 }

// DistanceTo returns the haversine distance in meters.
func (p Position) DistanceTo(o Position) float64 { return Haversine(p, o) }

func (p Position) String() string { return fmt.Sprintf("%.6f,%.6f", p.Lon, p.Lat) }
