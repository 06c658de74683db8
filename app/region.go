package app

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/fleet"
)

// LoadGeometries reads a GeoJSON feature collection and returns the
// polygons by their "name" property.
func LoadGeometries(path string) (map[string]orb.Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read geometry: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode geometry %s: %w", path, err)
	}
	out := make(map[string]orb.Geometry, len(fc.Features))
	for _, f := range fc.Features {
		name := f.Properties.MustString("name", "")
		if name == "" {
			continue
		}
		switch f.Geometry.(type) {
		case orb.Polygon, orb.MultiPolygon:
			out[name] = f.Geometry
		}
	}
	return out, nil
}

// LoadStops reads a JSON array of bus stops.
func LoadStops(path string) ([]booking.Place, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read stops: %w", err)
	}
	var stops []booking.Place
	if err := json.Unmarshal(data, &stops); err != nil {
		return nil, fmt.Errorf("decode stops %s: %w", path, err)
	}
	return stops, nil
}

// attachGeometries sets the border of every configured kommun found in
// geometries.
func attachGeometries(kommuner []fleet.KommunConfig, geometries map[string]orb.Geometry) []fleet.KommunConfig {
	out := make([]fleet.KommunConfig, len(kommuner))
	for i, k := range kommuner {
		if g, ok := geometries[k.Name]; ok {
			k.Geometry = g
		}
		out[i] = k
	}
	return out
}
