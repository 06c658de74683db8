package geo

import "math"

// EarthRadius is the mean earth radius in meters.
const EarthRadius = 6371000.0

func rad(x float64) float64 { return x * math.Pi / 180 }
func deg(x float64) float64 { return x * 180 / math.Pi }

// Haversine returns the great-circle distance between two positions rounded
// to the nearest meter. Degenerate input yields 0.
func Haversine(p1, p2 Position) float64 {
	dLat := rad(p2.Lat - p1.Lat)
	dLon := rad(p2.Lon - p1.Lon)
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(p1.Lat))*math.Cos(rad(p2.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	d := math.Round(EarthRadius * c)
	if math.IsNaN(d) || math.IsInf(d, 0) {
		return 0
	}
	return d
}

// Bearing returns the initial compass bearing from p1 to p2 in whole
// degrees, 0 being north and increasing clockwise.
func Bearing(p1, p2 Position) float64 {
	lat1, lat2 := rad(p1.Lat), rad(p2.Lat)
	dLon := rad(p2.Lon - p1.Lon)
	y := math.Sin(dLon) * math.Cos(lat2)
	x := math.Cos(lat1)*math.Sin(lat2) - math.Sin(lat1)*math.Cos(lat2)*math.Cos(dLon)
	b := math.Round(math.Mod(deg(math.Atan2(y, x))+360, 360))
	if math.IsNaN(b) || b == 360 {
		return 0
	}
	return b
}

// Offset is a displacement in meters, X east and Y north.
type Offset struct {
	X float64
	Y float64
}

// AddMeters moves origin by off using a local flat-earth approximation.
// It is only accurate for short distances.
func AddMeters(origin Position, off Offset) Position {
	lat := origin.Lat + deg(off.Y/EarthRadius)
	lon := origin.Lon + deg(off.X/EarthRadius)/math.Cos(rad(origin.Lat))
	return Position{Lon: lon, Lat: lat}
}
