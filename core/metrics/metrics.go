package metrics

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

// Collections of telemetry records.
const (
	CollectionBookings = "bookings"
	CollectionVehicles = "vehicles"
)

// Record is one telemetry document. Tags and Fields carry the indexed and
// numeric parts for time series stores; Doc is the full document for
// document stores.
type Record struct {
	ID       string             `json:"id"`
	Time     time.Time          `json:"time"`
	Position *geo.Position      `json:"position,omitempty"`
	Tags     map[string]string  `json:"tags"`
	Fields   map[string]float64 `json:"fields"`
	Doc      any                `json:"doc,omitempty"`
}

// TelemetrySink persists telemetry records.
type TelemetrySink interface {
	Save(ctx context.Context, collection string, r Record) error
}

// Closer is implemented by sinks holding resources.
type Closer interface {
	Close() error
}

// BookingRecord turns a booking snapshot into a record.
func BookingRecord(s booking.Snapshot, at time.Time) Record {
	pos := s.Position
	r := Record{
		ID:       s.ID,
		Time:     at,
		Position: &pos,
		Tags: map[string]string{
			"status": string(s.Status),
			"type":   string(s.Type),
			"fleet":  s.Fleet,
			"kommun": s.Kommun,
			"car_id": s.CarID,
		},
		Fields: map[string]float64{
			"co2":           s.CO2,
			"cost":          s.Cost,
			"distance":      s.Distance,
			"weight":        s.Weight,
			"delivery_time": s.DeliveryTime,
		},
		Doc: s,
	}
	return r
}

// VehicleRecord turns a vehicle snapshot into a record.
func VehicleRecord(s vehicle.Snapshot, at time.Time) Record {
	pos := s.Position
	return Record{
		ID:       s.ID,
		Time:     at,
		Position: &pos,
		Tags: map[string]string{
			"kind":   string(s.Kind),
			"status": string(s.Status),
			"fleet":  s.Fleet,
			"kommun": s.Kommun,
		},
		Fields: map[string]float64{
			"co2":       s.CO2,
			"cost":      s.Cost,
			"distance":  s.Distance,
			"speed":     s.Speed,
			"cargo":     float64(len(s.Cargo)),
			"queue":     float64(len(s.Queue)),
			"delivered": float64(s.Delivered),
		},
		Doc: s,
	}
}

// NopSink discards every record.
type NopSink struct{}

func (NopSink) Save(context.Context, string, Record) error { return nil }

// MultiSink fans records out to several sinks.
type MultiSink struct {
	Sinks []TelemetrySink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...TelemetrySink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// Save forwards r to every sink. A failing sink does not stop the others;
// all errors are returned joined.
func (m *MultiSink) Save(ctx context.Context, collection string, r Record) error {
	var errs []error
	for _, s := range m.Sinks {
		if err := s.Save(ctx, collection, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes every sink that holds resources.
func (m *MultiSink) Close() error {
	var errs []error
	for _, s := range m.Sinks {
		if c, ok := s.(Closer); ok {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}
