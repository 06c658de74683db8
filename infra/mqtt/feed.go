package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/monitoring"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/infra/logger"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
	"github.com/kilianp07/predictivemovement/internal/stream"
)

// Publisher sends documents to named topics.
type Publisher interface {
	Publish(name string, v any) error
}

const feedBatch = 500

// StartFeed publishes batches of the latest booking and vehicle snapshots
// every flush interval. Subscriptions are drop-tolerant: a slow broker
// loses intermediate positions, never the simulation's pace.
func StartFeed(ctx context.Context, pub Publisher, bookings *eventbus.TypedBus[booking.Event], vehicles *eventbus.TypedBus[vehicle.Event], cfg Config, log logger.Logger) {
	cfg.SetDefaults()
	log = logger.OrNop(log)
	if bookings != nil {
		sub := bookings.Subscribe()
		batches := stream.BufferTime(ctx, sub, cfg.FlushInterval, feedBatch)
		go func() {
			defer monitoring.Recover()
			defer bookings.Unsubscribe(sub)
			for batch := range batches {
				if err := pub.Publish(TopicBookings, latestBookings(batch)); err != nil {
					log.Warnf("publish bookings: %v", err)
				}
			}
		}()
	}
	if vehicles != nil {
		sub := vehicles.Subscribe()
		batches := stream.BufferTime(ctx, sub, cfg.FlushInterval, feedBatch)
		go func() {
			defer monitoring.Recover()
			defer vehicles.Unsubscribe(sub)
			for batch := range batches {
				if err := pub.Publish(TopicVehicles, latestVehicles(batch)); err != nil {
					log.Warnf("publish vehicles: %v", err)
				}
			}
		}()
	}
}

// latestBookings keeps the last snapshot of every booking, in order of
// first appearance.
func latestBookings(batch []booking.Event) []booking.Snapshot {
	index := map[string]int{}
	var out []booking.Snapshot
	for _, ev := range batch {
		s := ev.Booking.Snapshot()
		if i, ok := index[s.ID]; ok {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

func latestVehicles(batch []vehicle.Event) []vehicle.Snapshot {
	index := map[string]int{}
	var out []vehicle.Snapshot
	for _, ev := range batch {
		s := ev.Vehicle
		if i, ok := index[s.ID]; ok {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}

// ManualBooking is the payload of a booking requested by a visualization
// client.
type ManualBooking struct {
	ID          string         `json:"id"`
	Type        booking.Type   `json:"type"`
	Pickup      booking.Place  `json:"pickup"`
	Destination *booking.Place `json:"destination"`
}

// ParseManualBooking decodes and validates a manual booking. The type
// defaults to passenger.
func ParseManualBooking(payload []byte) (*booking.Booking, error) {
	var m ManualBooking
	if err := json.Unmarshal(payload, &m); err != nil {
		return nil, fmt.Errorf("decode manual booking: %w", err)
	}
	if !m.Pickup.Position.Valid() || m.Pickup.Position.IsZero() {
		return nil, errors.New("manual booking: pickup position is required")
	}
	if m.Destination == nil || !m.Destination.Position.Valid() || m.Destination.Position.IsZero() {
		return nil, errors.New("manual booking: destination position is required")
	}
	if m.Type == "" {
		m.Type = booking.TypePassenger
	}
	return booking.New(booking.Options{
		ID:          m.ID,
		Type:        m.Type,
		Pickup:      m.Pickup,
		Destination: m.Destination,
	}), nil
}
