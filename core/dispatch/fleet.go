package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/dispatch/logging"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

// MaxShipments bounds the size of one bus problem. Larger batches are
// halved until they fit.
const MaxShipments = 200

// TaxiAssignment lists the bookings a taxi should pick up, in order.
type TaxiAssignment struct {
	Taxi     vehicle.Vehicle
	Bookings []*booking.Booking
}

// TaxiPlan is the outcome of a taxi dispatch.
type TaxiPlan struct {
	Assignments []TaxiAssignment
	Unassigned  []*booking.Booking
}

// DispatchTaxis shares bookings between taxis. The pickup departure of
// every assigned booking is stamped from the solved schedule.
func (p *Planner) DispatchTaxis(ctx context.Context, taxis []vehicle.Vehicle, bookings []*booking.Booking) (plan TaxiPlan, err error) {
	if len(taxis) == 0 {
		return TaxiPlan{Unassigned: bookings}, ErrNoVehicles
	}
	now := p.clock.Now()
	began := time.Now()
	defer func() {
		rec := logging.LogRecord{
			Timestamp:  now,
			Kind:       string(vehicle.KindTaxi),
			Vehicles:   vehicleIDs(taxis),
			Bookings:   bookingIDs(bookings),
			Assigned:   map[string][]string{},
			Unassigned: bookingIDs(plan.Unassigned),
		}
		for _, a := range plan.Assignments {
			rec.Assigned[a.Taxi.ID()] = bookingIDs(a.Bookings)
		}
		p.record(ctx, rec, began, err)
	}()
	var prob Problem
	for i, t := range taxis {
		prob.Vehicles = append(prob.Vehicles, TaxiToVehicle(StateOf(t.Snapshot()), i))
	}
	for i, b := range bookings {
		prob.Shipments = append(prob.Shipments, BookingToShipment(b, i, now))
	}
	p.log.Infof("finding optimal route for %d taxis and %d pickups", len(prob.Vehicles), len(prob.Shipments))

	sol, err := p.solver.Solve(ctx, prob)
	planLatency.WithLabelValues(string(vehicle.KindTaxi)).Observe(time.Since(began).Seconds())
	if err != nil {
		return TaxiPlan{Unassigned: bookings}, fmt.Errorf("taxi dispatch: %w", err)
	}

	assigned := make(map[int]bool, len(bookings))
	for _, r := range sol.Routes {
		if r.Vehicle < 0 || r.Vehicle >= len(taxis) {
			p.log.Warnf("taxi dispatch: route for unknown vehicle %d", r.Vehicle)
			continue
		}
		a := TaxiAssignment{Taxi: taxis[r.Vehicle]}
		for _, s := range r.Steps {
			if s.Type != StepPickup || s.ID < 0 || s.ID >= len(bookings) || assigned[s.ID] {
				continue
			}
			b := bookings[s.ID]
			b.SetPickupDeparture(StepTime(now, s.Arrival-s.Duration))
			a.Bookings = append(a.Bookings, b)
			assigned[s.ID] = true
		}
		if len(a.Bookings) > 0 {
			plan.Assignments = append(plan.Assignments, a)
		}
	}
	for i, b := range bookings {
		if !assigned[i] {
			plan.Unassigned = append(plan.Unassigned, b)
		}
	}
	if n := len(plan.Unassigned); n > 0 {
		unassignedShipments.WithLabelValues(string(vehicle.KindTaxi)).Add(float64(n))
		return plan, fmt.Errorf("%w: %d of %d taxi bookings", ErrUnassigned, n, len(bookings))
	}
	return plan, nil
}

// BusAssignment is the stop sequence of one bus: the way to the first stop,
// the stops of every trip given to it and the way back.
type BusAssignment struct {
	Bus   vehicle.Vehicle
	Stops []booking.Place
	Trips []Trip
}

// BusPlan is the outcome of a bus dispatch.
type BusPlan struct {
	Assignments []BusAssignment
	Unassigned  []Trip
}

func (b *BusPlan) merge(o BusPlan) {
	b.Assignments = append(b.Assignments, o.Assignments...)
	b.Unassigned = append(b.Unassigned, o.Unassigned...)
}

// DispatchBuses assigns trips to buses. Problems above MaxShipments trips
// are split in two halves, buses included, and solved concurrently.
func (p *Planner) DispatchBuses(ctx context.Context, buses []vehicle.Vehicle, trips []Trip) (plan BusPlan, err error) {
	if len(trips) == 0 {
		return BusPlan{}, nil
	}
	if len(buses) == 0 {
		return BusPlan{Unassigned: trips}, ErrNoVehicles
	}
	if len(trips) > MaxShipments {
		return p.splitBuses(ctx, buses, trips)
	}

	now := p.clock.Now()
	var prob Problem
	for i, t := range trips {
		prob.Shipments = append(prob.Shipments, TripToShipment(t, i, now))
	}
	for i, b := range buses {
		prob.Vehicles = append(prob.Vehicles, BusToVehicle(StateOf(b.Snapshot()), i))
	}
	kommun := trips[0].Kommun
	p.log.Infof("finding optimal route in %s for %d buses and %d trips", kommun, len(prob.Vehicles), len(prob.Shipments))

	began := time.Now()
	defer func() {
		rec := logging.LogRecord{
			Timestamp:  now,
			Kind:       string(vehicle.KindBus),
			Kommun:     kommun,
			Vehicles:   vehicleIDs(buses),
			Bookings:   tripIDs(trips),
			Assigned:   map[string][]string{},
			Unassigned: tripIDs(plan.Unassigned),
		}
		for _, a := range plan.Assignments {
			rec.Assigned[a.Bus.ID()] = tripIDs(a.Trips)
		}
		p.record(ctx, rec, began, err)
	}()
	sol, err := p.solver.Solve(ctx, prob)
	planLatency.WithLabelValues(string(vehicle.KindBus)).Observe(time.Since(began).Seconds())
	if err != nil {
		return BusPlan{Unassigned: trips}, fmt.Errorf("bus dispatch in %s: %w", kommun, err)
	}

	for _, u := range sol.Unassigned {
		if u.Type == StepPickup && u.ID >= 0 && u.ID < len(trips) {
			plan.Unassigned = append(plan.Unassigned, trips[u.ID])
		}
	}
	for _, r := range sol.Routes {
		if r.Vehicle < 0 || r.Vehicle >= len(buses) || len(r.Steps) == 0 {
			continue
		}
		a := BusAssignment{Bus: buses[r.Vehicle]}
		a.Stops = append(a.Stops, StepToStop(r.Steps[0], now))
		for _, s := range r.Steps {
			if s.Type != StepPickup || s.ID < 0 || s.ID >= len(trips) {
				continue
			}
			a.Trips = append(a.Trips, trips[s.ID])
			a.Stops = append(a.Stops, trips[s.ID].Stops...)
		}
		a.Stops = append(a.Stops, StepToStop(r.Steps[len(r.Steps)-1], now))
		plan.Assignments = append(plan.Assignments, a)
	}
	if n := len(plan.Unassigned); n > 0 {
		unassignedShipments.WithLabelValues(string(vehicle.KindBus)).Add(float64(n))
		p.log.Warnf("unassigned in %s: %d", kommun, n)
		return plan, fmt.Errorf("%w: %d trips in %s", ErrUnassigned, n, kommun)
	}
	return plan, nil
}

// splitBuses solves both halves and merges what they produced. Errors of
// either half are joined.
func (p *Planner) splitBuses(ctx context.Context, buses []vehicle.Vehicle, trips []Trip) (BusPlan, error) {
	bh, th := len(buses)/2, len(trips)/2
	var left, right BusPlan
	var errLeft, errRight error
	var g errgroup.Group
	g.Go(func() error {
		left, errLeft = p.DispatchBuses(ctx, buses[:bh], trips[:th])
		return nil
	})
	g.Go(func() error {
		right, errRight = p.DispatchBuses(ctx, buses[bh:], trips[th:])
		return nil
	})
	_ = g.Wait()
	left.merge(right)
	return left, errors.Join(errLeft, errRight)
}

func tripIDs(trips []Trip) []string {
	out := make([]string, len(trips))
	for i, t := range trips {
		out[i] = t.ID
	}
	return out
}
