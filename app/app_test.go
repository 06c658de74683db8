package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/predictivemovement/config"
	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/fleet"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

type recordHandler struct {
	handled []*booking.Booking
	manual  []*booking.Booking
}

func (h *recordHandler) HandleBooking(b *booking.Booking) error {
	h.handled = append(h.handled, b)
	return nil
}

func (h *recordHandler) ManualBooking(b *booking.Booking) { h.manual = append(h.manual, b) }

func TestIntakePublishesLifecycle(t *testing.T) {
	bus := eventbus.NewTyped[booking.Event]()
	sub := bus.SubscribeLossless()
	clk := clock.New(time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC), 0)
	h := &recordHandler{}
	in := NewIntake(h, bus, clk)

	b := booking.New(booking.Options{Type: booking.TypeParcel, Pickup: booking.Place{Position: geo.Pos(18, 59)}})
	require.NoError(t, in.HandleBooking(b))
	b.Assign("car-1", clk.Now())
	in.Manual(booking.New(booking.Options{Type: booking.TypePassenger, Pickup: booking.Place{Position: geo.Pos(18, 59)}}))

	var got []booking.Status
	for len(got) < 3 {
		select {
		case ev := <-sub:
			got = append(got, ev.Status)
		case <-time.After(time.Second):
			t.Fatalf("missing events, got %v", got)
		}
	}
	assert.Equal(t, []booking.Status{booking.StatusNew, booking.StatusAssigned, booking.StatusNew}, got)
	assert.Len(t, h.handled, 1)
	assert.Len(t, h.manual, 1)
}

func TestLoadGeometriesAndStops(t *testing.T) {
	dir := t.TempDir()
	geoPath := filepath.Join(dir, "kommuner.geojson")
	require.NoError(t, os.WriteFile(geoPath, []byte(`{"type":"FeatureCollection","features":[
{"type":"Feature","properties":{"name":"Solna"},"geometry":{"type":"Polygon","coordinates":[[[17.9,59.3],[18.1,59.3],[18.1,59.4],[17.9,59.4],[17.9,59.3]]]}},
{"type":"Feature","properties":{"name":"Punkt"},"geometry":{"type":"Point","coordinates":[18,59]}}]}`), 0o644))
	geometries, err := LoadGeometries(geoPath)
	require.NoError(t, err)
	require.Len(t, geometries, 1)

	kommuner := attachGeometries([]fleet.KommunConfig{{Name: "Solna"}, {Name: "Sundbyberg"}}, geometries)
	assert.NotNil(t, kommuner[0].Geometry)
	assert.Nil(t, kommuner[1].Geometry)
	assert.True(t, geo.Contains(kommuner[0].Geometry, geo.Pos(18.0, 59.35)))

	stopsPath := filepath.Join(dir, "stops.json")
	require.NoError(t, os.WriteFile(stopsPath, []byte(`[{"position":{"lon":18.0,"lat":59.35},"stopId":"s1","tripId":"t1","lineNumber":"1"}]`), 0o644))
	stops, err := LoadStops(stopsPath)
	require.NoError(t, err)
	require.Len(t, stops, 1)
	assert.Equal(t, "t1", stops[0].TripID)

	_, err = LoadStops(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestNewService(t *testing.T) {
	cfg := &config.Config{
		Region: config.RegionConfig{
			Kommuner:    []fleet.KommunConfig{{Name: "Stockholm", Center: geo.Pos(18.06, 59.33)}},
			PrivateCars: 2,
		},
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())

	svc, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer func() { assert.NoError(t, svc.Close()) }()

	kommuner := svc.region.Kommuner()
	require.Len(t, kommuner, 1)
	assert.Len(t, kommuner[0].PrivateCars(), 2)
	assert.Nil(t, svc.producer)
	assert.Nil(t, svc.mqtt)
	assert.NotNil(t, svc.Intake())
	assert.NotNil(t, svc.Status())
}
