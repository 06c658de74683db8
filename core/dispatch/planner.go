package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/dispatch/logging"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

// Planner orders the stops of a single taxi or truck through the solver.
// It implements vehicle.Planner.
type Planner struct {
	solver    Solver
	clock     *clock.Clock
	log       logger.Logger
	decisions logging.LogStore
}

// NewPlanner returns a planner backed by solver.
func NewPlanner(solver Solver, clk *clock.Clock, log logger.Logger) *Planner {
	return &Planner{solver: solver, clock: clk, log: logger.OrNop(log)}
}

// WithDecisionLog records every solver call into store.
func (p *Planner) WithDecisionLog(store logging.LogStore) *Planner {
	p.decisions = store
	return p
}

// record appends rec to the decision log. Failures are only logged.
func (p *Planner) record(ctx context.Context, rec logging.LogRecord, began time.Time, err error) {
	if p.decisions == nil {
		return
	}
	rec.SolveMs = float64(time.Since(began).Microseconds()) / 1000
	if err != nil {
		rec.Error = err.Error()
	}
	if aerr := p.decisions.Append(context.WithoutCancel(ctx), rec); aerr != nil {
		p.log.Warnf("decision log: %v", aerr)
	}
}

func bookingIDs(bs []*booking.Booking) []string {
	out := make([]string, len(bs))
	for i, b := range bs {
		out[i] = b.ID
	}
	return out
}

func vehicleIDs(vs []vehicle.Vehicle) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = v.ID()
	}
	return out
}

// problem shapes req. Waiting bookings become shipments numbered by their
// index; bookings on board become jobs numbered after them.
func (p *Planner) problem(req vehicle.PlanRequest, now time.Time) Problem {
	var prob Problem
	for i, b := range req.Waiting {
		prob.Shipments = append(prob.Shipments, BookingToShipment(b, i, now))
	}
	for i, b := range req.Onboard {
		prob.Jobs = append(prob.Jobs, OnboardToJob(b, len(req.Waiting)+i, now))
	}
	state := VehicleState{
		Position:          req.Position,
		Heading:           req.Heading,
		PassengerCapacity: req.PassengerCapacity,
		ParcelCapacity:    req.ParcelCapacity,
	}
	switch req.Kind {
	case vehicle.KindTruck:
		prob.Vehicles = []Vehicle{TruckToVehicle(state, 0, now)}
	default:
		prob.Vehicles = []Vehicle{TaxiToVehicle(state, 0)}
	}
	return prob
}

// Plan returns the instructions of the only route of the solution. Start,
// pickup and delivery steps are kept.
func (p *Planner) Plan(ctx context.Context, req vehicle.PlanRequest) (out []vehicle.Instruction, err error) {
	now := p.clock.Now()
	began := time.Now()
	rec := logging.LogRecord{
		Timestamp: now,
		Kind:      string(req.Kind),
		Vehicles:  []string{req.VehicleID},
		Bookings:  append(bookingIDs(req.Waiting), bookingIDs(req.Onboard)...),
	}
	defer func() {
		for _, in := range out {
			if in.Booking != nil && in.Action == vehicle.ActionPickup {
				if rec.Assigned == nil {
					rec.Assigned = map[string][]string{}
				}
				rec.Assigned[req.VehicleID] = append(rec.Assigned[req.VehicleID], in.Booking.ID)
			}
		}
		p.record(ctx, rec, began, err)
	}()

	sol, err := p.solver.Solve(ctx, p.problem(req, now))
	planLatency.WithLabelValues(string(req.Kind)).Observe(time.Since(began).Seconds())
	if err != nil {
		return nil, fmt.Errorf("plan %s: %w", req.VehicleID, err)
	}
	if len(sol.Unassigned) > 0 {
		unassignedShipments.WithLabelValues(string(req.Kind)).Add(float64(len(sol.Unassigned)))
		p.log.Errorf("vehicle %s: %d unassigned bookings", req.VehicleID, len(sol.Unassigned))
		for _, u := range sol.Unassigned {
			if u.ID >= 0 && u.ID < len(rec.Bookings) {
				rec.Unassigned = append(rec.Unassigned, rec.Bookings[u.ID])
			}
		}
	}
	if len(sol.Routes) == 0 {
		return nil, fmt.Errorf("plan %s: %w", req.VehicleID, ErrNoPlan)
	}
	return p.instructions(sol.Routes[0], req, now), nil
}

func (p *Planner) instructions(r Route, req vehicle.PlanRequest, now time.Time) []vehicle.Instruction {
	lookup := func(id int) *booking.Booking {
		if id < len(req.Waiting) {
			return req.Waiting[id]
		}
		if j := id - len(req.Waiting); j < len(req.Onboard) {
			return req.Onboard[j]
		}
		return nil
	}
	out := make([]vehicle.Instruction, 0, len(r.Steps))
	for _, s := range r.Steps {
		in := vehicle.Instruction{
			Arrival:   StepTime(now, s.Arrival),
			Departure: StepTime(now, s.Arrival+s.WaitingTime+s.Service),
		}
		switch s.Type {
		case StepStart:
			in.Action = vehicle.ActionStart
		case StepPickup:
			in.Action = vehicle.ActionPickup
			in.Booking = lookup(s.ID)
		case StepDelivery, StepJob:
			in.Action = vehicle.ActionDelivery
			in.Booking = lookup(s.ID)
		default:
			continue
		}
		if in.Action != vehicle.ActionStart && in.Booking == nil {
			p.log.Warnf("vehicle %s: step %s refers to unknown id %d", req.VehicleID, s.Type, s.ID)
			continue
		}
		out = append(out, in)
	}
	return out
}
