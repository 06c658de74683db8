// Package dispatch matches bookings to vehicles. Generic fleets use the
// clustering Central dispatcher; taxis, trucks and buses get ordered plans
// from an external vehicle routing problem (VRP) solver.
package dispatch

import (
	"context"
	"errors"
)

var (
	// ErrNoVehicles is returned when a dispatch is asked to run without
	// vehicles.
	ErrNoVehicles = errors.New("no vehicles to dispatch to")
	// ErrUnassigned is returned when the solver left shipments unassigned.
	ErrUnassigned = errors.New("unassigned shipments")
	// ErrNoPlan is returned when the solver produced no route.
	ErrNoPlan = errors.New("solver returned no route")
)

// Step types in solver responses.
const (
	StepStart    = "start"
	StepJob      = "job"
	StepPickup   = "pickup"
	StepDelivery = "delivery"
	StepEnd      = "end"
)

// Location is a [lon, lat] pair.
type Location []float64

// ShipmentStep is the pickup or delivery half of a shipment.
type ShipmentStep struct {
	ID          int       `json:"id"`
	Location    Location  `json:"location"`
	TimeWindows [][]int64 `json:"time_windows,omitempty"`
	Service     int       `json:"service,omitempty"`
}

// Shipment is a pickup and delivery pair that must share a vehicle.
type Shipment struct {
	Amount   []int        `json:"amount"`
	Pickup   ShipmentStep `json:"pickup"`
	Delivery ShipmentStep `json:"delivery"`
}

// Job is a single stop. A delivery amount is loaded at the vehicle start.
type Job struct {
	ID          int       `json:"id"`
	Location    Location  `json:"location"`
	Delivery    []int     `json:"delivery,omitempty"`
	Pickup      []int     `json:"pickup,omitempty"`
	TimeWindows [][]int64 `json:"time_windows,omitempty"`
}

// Vehicle is a solver vehicle.
type Vehicle struct {
	ID          int      `json:"id"`
	Capacity    []int    `json:"capacity"`
	Start       Location `json:"start"`
	End         Location `json:"end,omitempty"`
	TimeWindow  []int64  `json:"time_window,omitempty"`
	SpeedFactor float64  `json:"speed_factor,omitempty"`
}

// Options tune the solve.
type Options struct {
	Plan bool `json:"plan,omitempty"`
}

// Problem is one solver request.
type Problem struct {
	Jobs      []Job      `json:"jobs,omitempty"`
	Shipments []Shipment `json:"shipments,omitempty"`
	Vehicles  []Vehicle  `json:"vehicles"`
	Options   *Options   `json:"options,omitempty"`
}

// Step is one stop of a solved route. Arrival is in seconds, either from
// the start of the problem or as a unix time when time windows were given.
type Step struct {
	Type        string   `json:"type"`
	ID          int      `json:"id,omitempty"`
	Job         int      `json:"job,omitempty"`
	Location    Location `json:"location,omitempty"`
	Arrival     int64    `json:"arrival"`
	Duration    int64    `json:"duration"`
	WaitingTime int64    `json:"waiting_time,omitempty"`
	Service     int64    `json:"service,omitempty"`
}

// Route is the solved route of one vehicle.
type Route struct {
	Vehicle  int    `json:"vehicle"`
	Steps    []Step `json:"steps"`
	Cost     int64  `json:"cost"`
	Duration int64  `json:"duration"`
	Distance int64  `json:"distance,omitempty"`
}

// Unassigned is a stop the solver could not place.
type Unassigned struct {
	ID       int      `json:"id"`
	Type     string   `json:"type"`
	Location Location `json:"location,omitempty"`
}

// Summary aggregates a solution.
type Summary struct {
	Cost       int64 `json:"cost"`
	Routes     int   `json:"routes"`
	Unassigned int   `json:"unassigned"`
	Duration   int64 `json:"duration"`
}

// Solution is a solver response.
type Solution struct {
	Code       int          `json:"code"`
	Error      string       `json:"error,omitempty"`
	Summary    Summary      `json:"summary"`
	Routes     []Route      `json:"routes"`
	Unassigned []Unassigned `json:"unassigned"`
}

// Solver solves vehicle routing problems.
type Solver interface {
	Solve(ctx context.Context, p Problem) (Solution, error)
}

// SolverFunc adapts a function to Solver.
type SolverFunc func(ctx context.Context, p Problem) (Solution, error)

func (f SolverFunc) Solve(ctx context.Context, p Problem) (Solution, error) { return f(ctx, p) }
