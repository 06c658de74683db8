package status

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/dispatch/logging"
	"github.com/kilianp07/predictivemovement/core/metrics/eco"
	corestatus "github.com/kilianp07/predictivemovement/core/status"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

func testStore() *corestatus.Store {
	s := corestatus.NewStore()
	s.SetVehicle(vehicle.Snapshot{ID: "v1", Fleet: "f1", Kommun: "Stockholm"})
	s.SetVehicle(vehicle.Snapshot{ID: "v2", Fleet: "f2", Kommun: "Solna"})
	s.SetBooking(booking.Snapshot{ID: "b1", Fleet: "f1", Status: booking.StatusDelivered})
	s.SetBooking(booking.Snapshot{ID: "b2", Fleet: "f1", Status: booking.StatusQueued})
	return s
}

func TestVehiclesFilter(t *testing.T) {
	mux := NewMux(Config{}, testStore(), nil, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/vehicles?kommun=Solna", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []vehicle.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "v2" {
		t.Fatalf("unexpected output %#v", out)
	}
}

func TestBookingsFilter(t *testing.T) {
	mux := NewMux(Config{}, testStore(), nil, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/bookings?fleet=f1&status=Queued", nil))
	var out []booking.Snapshot
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].ID != "b2" {
		t.Fatalf("unexpected output %#v", out)
	}
}

func TestBookingsCSV(t *testing.T) {
	mux := NewMux(Config{}, testStore(), nil, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/bookings?format=csv", nil))
	if ct := rr.Header().Get("Content-Type"); ct != "text/csv" {
		t.Fatalf("unexpected content type %q", ct)
	}
	lines := strings.Split(strings.TrimSpace(rr.Body.String()), "\n")
	if len(lines) != 3 || !strings.HasPrefix(lines[0], "id,") || !strings.HasPrefix(lines[1], "b1,") {
		t.Fatalf("unexpected csv %q", rr.Body.String())
	}
}

func TestEmptyListIsArray(t *testing.T) {
	mux := NewMux(Config{}, corestatus.NewStore(), nil, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/vehicles", nil))
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty array got %s", rr.Body.String())
	}
}

func TestMethodAndToken(t *testing.T) {
	mux := NewMux(Config{Token: "secret"}, testStore(), nil, nil)

	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("POST", "/api/vehicles", nil))
	if rr.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/vehicles", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 got %d", rr.Code)
	}

	req := httptest.NewRequest("GET", "/api/vehicles", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 got %d", rr.Code)
	}
}

func kpiStore(t *testing.T) eco.Store {
	t.Helper()
	s := eco.NewMemoryStore()
	at := time.Date(2024, 5, 6, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		if err := s.Add(eco.Record{Fleet: "Postnord", Date: at, DistanceKm: 10, CO2Kg: 1.2, Deliveries: 1}); err != nil {
			t.Fatalf("add: %v", err)
		}
	}
	return s
}

func TestKPIHandler(t *testing.T) {
	mux := NewMux(Config{}, corestatus.NewStore(), kpiStore(t), nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/fleets/Postnord/kpis?start=2024-05-01T00:00:00Z&end=2024-05-31T00:00:00Z", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	var out []kpi
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Date != "2024-05-06" || out[0].Deliveries != 2 {
		t.Fatalf("unexpected kpis %#v", out)
	}
	if out[0].CO2PerDelivery < 1.19 || out[0].CO2PerDelivery > 1.21 {
		t.Fatalf("unexpected co2 per delivery %v", out[0].CO2PerDelivery)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/fleets/Postnord", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestReportHandler(t *testing.T) {
	mux := NewMux(Config{}, corestatus.NewStore(), kpiStore(t), nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/report?fleet=Postnord&start=2024-05-01T00:00:00Z", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Postnord") {
		t.Fatalf("report misses fleet")
	}
}

func TestKPIRoutesNeedStore(t *testing.T) {
	mux := NewMux(Config{}, corestatus.NewStore(), nil, nil)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/report", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 got %d", rr.Code)
	}
}

func TestDecisionsHandler(t *testing.T) {
	store, err := logging.NewJSONLStore(filepath.Join(t.TempDir(), "decisions.jsonl"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	at := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	_ = store.Append(context.Background(), logging.LogRecord{Timestamp: at, Kind: "taxi", Vehicles: []string{"t1"}})
	_ = store.Append(context.Background(), logging.LogRecord{Timestamp: at, Kind: "bus", Vehicles: []string{"b1"}})

	mux := NewMux(Config{}, corestatus.NewStore(), nil, store)
	rr := httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/decisions?vehicle=b1", nil))
	var out []logging.LogRecord
	if err := json.Unmarshal(rr.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].Kind != "bus" {
		t.Fatalf("unexpected records %+v", out)
	}

	rr = httptest.NewRecorder()
	mux.ServeHTTP(rr, httptest.NewRequest("GET", "/api/decisions?kind=truck", nil))
	if rr.Body.String() != "[]\n" {
		t.Fatalf("expected empty array got %s", rr.Body.String())
	}
}
