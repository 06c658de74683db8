package geo

import "github.com/mmcloughlin/geohash"

// CellPrecision is the geohash length used for cell tags (about 1.2 km).
const CellPrecision = 6

// Cell returns the geohash cell containing p.
func Cell(p Position) string {
	return geohash.EncodeWithPrecision(p.Lat, p.Lon, CellPrecision)
}

// Area returns the cell of p plus its eight neighbours.
func Area(p Position) []string {
	c := Cell(p)
	return append([]string{c}, geohash.Neighbors(c)...)
}

// SameArea reports whether b lies in the cell of a or one next to it.
func SameArea(a, b Position) bool {
	cb := Cell(b)
	for _, c := range Area(a) {
		if c == cb {
			return true
		}
	}
	return false
}
