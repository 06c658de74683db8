package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

type recordSink struct {
	saved []string
	err   error
}

func (r *recordSink) Save(_ context.Context, collection string, rec Record) error {
	r.saved = append(r.saved, collection+"/"+rec.ID)
	return r.err
}

// TestMultiSink ensures records reach every sink even when one fails.
func TestMultiSink(t *testing.T) {
	boom := errors.New("boom")
	s1 := &recordSink{err: boom}
	s2 := &recordSink{}
	m := NewMultiSink(s1, s2)
	err := m.Save(context.Background(), CollectionBookings, Record{ID: "b-1"})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(s1.saved) != 1 || len(s2.saved) != 1 || s2.saved[0] != "bookings/b-1" {
		t.Fatalf("records not forwarded: %v %v", s1.saved, s2.saved)
	}
}

func TestBookingRecord(t *testing.T) {
	at := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	dest := booking.Place{Position: geo.Pos(18.0, 59.36)}
	b := booking.New(booking.Options{ID: "b-1", Type: booking.TypeParcel, Pickup: booking.Place{Position: geo.Pos(18.06, 59.33)}, Destination: &dest, Weight: 2})
	b.SetFleet("Postnord")
	r := BookingRecord(b.Snapshot(), at)
	if r.ID != "b-1" || r.Tags["fleet"] != "Postnord" || r.Tags["type"] != "parcel" {
		t.Fatalf("unexpected record %+v", r)
	}
	if r.Fields["weight"] != 2 || !r.Time.Equal(at) {
		t.Fatalf("unexpected fields %+v", r.Fields)
	}
}

func TestVehicleRecord(t *testing.T) {
	s := vehicle.Snapshot{ID: "t-1", Kind: vehicle.KindTaxi, Status: vehicle.StatusReady, Cargo: []string{"a", "b"}, CO2: 1.5}
	r := VehicleRecord(s, time.Now())
	if r.Tags["kind"] != "taxi" || r.Fields["cargo"] != 2 || r.Fields["co2"] != 1.5 {
		t.Fatalf("unexpected record %+v", r)
	}
}
