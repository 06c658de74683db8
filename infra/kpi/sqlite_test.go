package kpi

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/kilianp07/predictivemovement/core/metrics/eco"
)

func TestSQLiteStoreAggregates(t *testing.T) {
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kpi.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = s.Close() }()

	day := time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
	for _, r := range []eco.Record{
		{Fleet: "Postnord", Date: day.Add(8 * time.Hour), DistanceKm: 12, CO2Kg: 1.5, Deliveries: 1},
		{Fleet: "Postnord", Date: day.Add(15 * time.Hour), DistanceKm: 3, CO2Kg: 0.5, Deliveries: 2},
		{Fleet: "Budbee", Date: day, DistanceKm: 100},
	} {
		if err := s.Add(r); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	recs, err := s.Query("Postnord", day, day)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(recs) != 1 {
		t.Fatalf("expected one record got %d", len(recs))
	}
	r := recs[0]
	if r.DistanceKm != 15 || r.CO2Kg != 2 || r.Deliveries != 3 || !r.Date.Equal(day) {
		t.Fatalf("unexpected record %+v", r)
	}
}
