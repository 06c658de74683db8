package logging

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func TestSQLiteStore_PersistQuery(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "decisions.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	now := time.Now()
	recs := []LogRecord{
		{Timestamp: now, Kind: "taxi", Vehicles: []string{"v1", "v2"}, Assigned: map[string][]string{"v1": {"b1"}}},
		{Timestamp: now.Add(time.Minute), Kind: "bus", Vehicles: []string{"v3"}},
	}
	for _, rec := range recs {
		if err := store.Append(context.Background(), rec); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	out, err := store.Query(context.Background(), LogQuery{VehicleID: "v1"})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Assigned["v1"][0] != "b1" {
		t.Fatalf("expected the taxi record, got %+v", out)
	}
	out, err = store.Query(context.Background(), LogQuery{Kind: "bus", Start: now.Add(30 * time.Second)})
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	if len(out) != 1 || out[0].Vehicles[0] != "v3" {
		t.Fatalf("expected the bus record, got %+v", out)
	}
}
