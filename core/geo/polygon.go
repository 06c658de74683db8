package geo

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Point converts p to an orb point.
func (p Position) Point() orb.Point { return orb.Point{p.Lon, p.Lat} }

// FromPoint converts an orb point to a Position.
func FromPoint(pt orb.Point) Position { return Position{Lon: pt.Lon(), Lat: pt.Lat()} }

// IsInsidePolygon reports whether p lies inside any of the given rings.
func IsInsidePolygon(p Position, rings [][]Position) bool {
	pt := p.Point()
	for _, r := range rings {
		ring := make(orb.Ring, len(r))
		for i, q := range r {
			ring[i] = q.Point()
		}
		if planar.RingContains(ring, pt) {
			return true
		}
	}
	return false
}

// Contains reports whether p lies inside a polygon or multipolygon geometry.
// Other geometry types never contain anything.
func Contains(g orb.Geometry, p Position) bool {
	switch geom := g.(type) {
	case orb.Polygon:
		return planar.PolygonContains(geom, p.Point())
	case orb.MultiPolygon:
		return planar.MultiPolygonContains(geom, p.Point())
	case orb.Ring:
		return planar.RingContains(geom, p.Point())
	default:
		return false
	}
}

// Centroid returns the centroid of g, or the zero Position for empty input.
func Centroid(g orb.Geometry) Position {
	if g == nil {
		return Position{}
	}
	c, _ := planar.CentroidArea(g)
	return FromPoint(c)
}
