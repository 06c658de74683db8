package vehicle

import (
	"context"
	"testing"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

var (
	arjeplog  = geo.Pos(17.886855, 66.041054)
	ljusdal   = geo.Pos(14.447, 61.595)
	stockholm = geo.Pos(18.063240, 59.334591)
	start     = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
)

// lineRouter drives straight lines at 50 km/h.
type lineRouter struct{}

func (lineRouter) Route(_ context.Context, from, to geo.Position) (geo.Route, error) {
	return geo.StraightRoute(from, to, 50, 0), nil
}

// gatedRouter holds every route until release is closed.
type gatedRouter struct {
	release chan struct{}
}

func (g gatedRouter) Route(ctx context.Context, from, to geo.Position) (geo.Route, error) {
	select {
	case <-g.release:
	case <-ctx.Done():
		return geo.Route{}, ctx.Err()
	}
	return lineRouter{}.Route(ctx, from, to)
}

// orderPlanner delivers what is on board first, then serves the waiting
// bookings one after the other.
type orderPlanner struct {
	withStart bool
}

func (p orderPlanner) Plan(_ context.Context, req PlanRequest) ([]Instruction, error) {
	var out []Instruction
	if p.withStart {
		out = append(out, Instruction{Action: ActionStart})
	}
	for _, b := range req.Onboard {
		out = append(out, Instruction{Action: ActionDelivery, Booking: b})
	}
	for _, b := range req.Waiting {
		out = append(out,
			Instruction{Action: ActionPickup, Booking: b},
			Instruction{Action: ActionDelivery, Booking: b})
	}
	return append(out, Instruction{Action: ActionEnd}), nil
}

type env struct {
	clock  *clock.Clock
	bus    *eventbus.TypedBus[Event]
	events <-chan Event
}

func newEnv(t *testing.T, multiplier float64) *env {
	t.Helper()
	bus := eventbus.NewTyped[Event]()
	e := &env{clock: clock.New(start, multiplier), bus: bus, events: bus.SubscribeLossless()}
	t.Cleanup(bus.Close)
	return e
}

func (e *env) deps(r Router) Deps {
	return Deps{
		Clock:       e.clock,
		Router:      r,
		Planner:     orderPlanner{},
		Events:      e.bus,
		RetryDelay:  10 * time.Millisecond,
		ReplanDelay: 10 * time.Millisecond,
	}
}

// until collects events until done returns true.
func (e *env) until(t *testing.T, done func(Event) bool) []Event {
	t.Helper()
	var seen []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev := <-e.events:
			seen = append(seen, ev)
			if done(ev) {
				return seen
			}
		case <-timeout:
			t.Fatalf("timed out after %d events", len(seen))
			return nil
		}
	}
}

func kinds(events []Event, keep ...EventKind) []EventKind {
	var out []EventKind
	for _, ev := range events {
		for _, k := range keep {
			if ev.Kind == k {
				out = append(out, ev.Kind)
			}
		}
	}
	return out
}

func parcel(from, to geo.Position) *booking.Booking {
	return booking.New(booking.Options{
		Type:        booking.TypeParcel,
		Pickup:      booking.Place{Position: from},
		Destination: &booking.Place{Position: to},
		Weight:      1,
	})
}

func passenger(from, to geo.Position) *booking.Booking {
	return booking.New(booking.Options{
		Type:        booking.TypePassenger,
		Pickup:      booking.Place{Position: from},
		Destination: &booking.Place{Position: to},
		Weight:      1,
	})
}
