package metrics

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

type recordingSink struct {
	mu    sync.Mutex
	saved map[string][]coremetrics.Record
}

func (s *recordingSink) Save(_ context.Context, collection string, r coremetrics.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saved == nil {
		s.saved = map[string][]coremetrics.Record{}
	}
	s.saved[collection] = append(s.saved[collection], r)
	return nil
}

func (s *recordingSink) count(collection string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved[collection])
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("condition not met")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestCollectorRecordsBookingsAndThrottlesVehicles(t *testing.T) {
	bookings := eventbus.NewTyped[booking.Event]()
	vehicles := eventbus.NewTyped[vehicle.Event]()
	sink := &recordingSink{}
	ctx, cancel := context.WithCancel(context.Background())
	wait := StartCollector(ctx, bookings, vehicles, sink, time.Minute, nil)

	at := time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
	b := booking.New(booking.Options{Type: booking.TypeParcel, Pickup: booking.Place{Position: geo.Pos(18, 59)}})
	bookings.Publish(booking.Event{Kind: booking.EventQueued, Status: booking.StatusQueued, Booking: b, At: at})
	bookings.Publish(booking.Event{Kind: booking.EventDelivered, Status: booking.StatusDelivered, Booking: b, At: at})

	snap := vehicle.Snapshot{ID: "v-1", Kind: vehicle.KindCar}
	vehicles.Publish(vehicle.Event{Kind: vehicle.EventMoved, Vehicle: snap, At: at})
	vehicles.Publish(vehicle.Event{Kind: vehicle.EventMoved, Vehicle: snap, At: at.Add(10 * time.Second)})
	vehicles.Publish(vehicle.Event{Kind: vehicle.EventStatus, Vehicle: snap, At: at.Add(20 * time.Second)})
	vehicles.Publish(vehicle.Event{Kind: vehicle.EventMoved, Vehicle: snap, At: at.Add(2 * time.Minute)})

	waitFor(t, func() bool { return sink.count(coremetrics.CollectionBookings) == 2 })
	waitFor(t, func() bool { return sink.count(coremetrics.CollectionVehicles) == 3 })
	cancel()
	wait()
}
