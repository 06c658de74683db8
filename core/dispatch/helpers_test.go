package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

var (
	arjeplog = geo.Pos(17.886855, 66.041054)
	ljusdal  = geo.Pos(14.447, 61.595)
	day      = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
)

type lineRouter struct{}

func (lineRouter) Route(_ context.Context, from, to geo.Position) (geo.Route, error) {
	return geo.StraightRoute(from, to, 50, 0), nil
}

// seqSolver gives every job and shipment of a problem to its first vehicle,
// in input order, one minute apart.
type seqSolver struct {
	mu       sync.Mutex
	problems []Problem
	// skip leaves these shipment ids unassigned.
	skip map[int]bool
}

func (s *seqSolver) Solve(_ context.Context, p Problem) (Solution, error) {
	s.mu.Lock()
	s.problems = append(s.problems, p)
	s.mu.Unlock()

	var sol Solution
	if len(p.Vehicles) == 0 {
		return sol, nil
	}
	v := p.Vehicles[0]
	var at int64
	step := func(typ string, id int, loc Location) Step {
		at += 60
		return Step{Type: typ, ID: id, Location: loc, Arrival: at, Duration: at - 10}
	}
	r := Route{Vehicle: v.ID, Steps: []Step{{Type: StepStart, Location: v.Start}}}
	for _, j := range p.Jobs {
		r.Steps = append(r.Steps, step(StepJob, j.ID, j.Location))
	}
	for _, sh := range p.Shipments {
		if s.skip[sh.Pickup.ID] {
			sol.Unassigned = append(sol.Unassigned,
				Unassigned{ID: sh.Pickup.ID, Type: StepPickup},
				Unassigned{ID: sh.Delivery.ID, Type: StepDelivery})
			continue
		}
		r.Steps = append(r.Steps, step(StepPickup, sh.Pickup.ID, sh.Pickup.Location))
		r.Steps = append(r.Steps, step(StepDelivery, sh.Delivery.ID, sh.Delivery.Location))
	}
	r.Steps = append(r.Steps, step(StepEnd, 0, v.Start))
	sol.Routes = []Route{r}
	return sol, nil
}

func (s *seqSolver) calls() []Problem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Problem{}, s.problems...)
}

func trip(id string, from, to geo.Position) Trip {
	return Trip{
		ID:         id,
		LineNumber: "104",
		Kommun:     "Arjeplog",
		Stops: []booking.Place{
			{Position: from, StopID: id + "-a", ArrivalTime: "08:10:00", DepartureTime: "08:11:00"},
			{Position: to, StopID: id + "-b", ArrivalTime: "08:40:00", DepartureTime: "08:40:00"},
		},
	}
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
