package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/kilianp07/predictivemovement/core/geo"
	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
)

func TestInfluxSink_Save(t *testing.T) {
	var (
		mu   sync.Mutex
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		mu.Lock()
		body = string(data)
		mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	defer func() { _ = sink.Close() }()
	now := time.Now()
	pos := geo.Pos(18.06, 59.33)
	rec := coremetrics.Record{
		ID:       "b-1",
		Time:     now,
		Position: &pos,
		Tags:     map[string]string{"status": "delivered", "fleet": "Postnord", "car_id": ""},
		Fields:   map[string]float64{"co2": 1.23456},
	}
	if err := sink.Save(context.Background(), coremetrics.CollectionBookings, rec); err != nil {
		t.Fatalf("save error: %v", err)
	}
	p := write.NewPointWithMeasurement("bookings").
		AddTag("id", "b-1").
		AddTag("fleet", "Postnord").
		AddTag("status", "delivered").
		AddField("co2", 1.235).
		AddField("lon", 18.06).
		AddField("lat", 59.33).
		SetTime(now)
	expected := strings.TrimSpace(write.PointToLineProtocol(p, time.Nanosecond))
	mu.Lock()
	defer mu.Unlock()
	if strings.TrimSpace(body) != expected {
		t.Errorf("unexpected body: %s", body)
	}
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
