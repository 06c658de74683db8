// Package vehicle simulates the vehicles of a fleet: movement along routes
// on the virtual clock, queue and cargo handling, and the variant specific
// behaviour of cars, taxis, trucks, buses and drones.
//
// Every vehicle owns a goroutine that serialises all mutations of its state.
// Public methods post commands to it, so a vehicle never sees two dispatchers
// at once.
package vehicle

import (
	"context"
	"errors"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

var (
	// ErrAlreadyQueued is returned when a booking is handed twice to the
	// same vehicle.
	ErrAlreadyQueued = errors.New("booking already queued")
	// ErrUnknownClass is returned for a vehicle type whose class is not
	// registered.
	ErrUnknownClass = errors.New("unknown vehicle class")
	// ErrNoRoute is returned by routers that found no drivable route.
	ErrNoRoute = errors.New("route not found")
	// ErrDisposed is returned by commands sent to a disposed vehicle.
	ErrDisposed = errors.New("vehicle disposed")
)

// Kind is the variant of a vehicle.
type Kind string

const (
	KindCar   Kind = "car"
	KindTaxi  Kind = "taxi"
	KindTruck Kind = "truck"
	KindBus   Kind = "bus"
	KindDrone Kind = "drone"
)

// Status is the state of the vehicle state machine.
type Status string

const (
	StatusReady      Status = "ready"
	StatusToPickup   Status = "toPickup"
	StatusToDelivery Status = "toDelivery"
	StatusReturning  Status = "returning"
)

const (
	// ArrivalThreshold is the distance under which a target counts as
	// reached.
	ArrivalThreshold = 100.0
	// NearbyPickup is the radius within which queued bookings are picked up
	// on the way.
	NearbyPickup = 200.0
	// CostPerHour is the running cost of any vehicle.
	CostPerHour = 3000.0 / 12

	defaultWeight      = 10000.0
	defaultCO2PerKmKg  = 0.013 / 1000
	defaultRetryDelay  = time.Second
	defaultReplanDelay = 2 * time.Second
)

// Vehicle is the capability set shared by every variant.
type Vehicle interface {
	ID() string
	Kind() Kind
	Fleet() string
	Position() geo.Position
	Status() Status
	// HandleBooking queues or starts serving b.
	HandleBooking(ctx context.Context, b *booking.Booking) error
	// CanHandleBooking reports whether the vehicle could accept b now.
	CanHandleBooking(b *booking.Booking) bool
	// NavigateTo starts moving towards pos.
	NavigateTo(pos geo.Position)
	Snapshot() Snapshot
	Dispose()
}

// PassengerCarrier is implemented by vehicles with passenger seats.
type PassengerCarrier interface {
	Vehicle
	CanPickupMorePassengers() bool
}

// Router computes road routes between two positions.
type Router interface {
	Route(ctx context.Context, from, to geo.Position) (geo.Route, error)
}

// Instruction is one step of a vehicle plan.
type Instruction struct {
	Action    string           `json:"action"`
	Arrival   time.Time        `json:"arrival"`
	Departure time.Time        `json:"departure"`
	Booking   *booking.Booking `json:"-"`
}

// Plan actions.
const (
	ActionStart    = "start"
	ActionPickup   = "pickup"
	ActionDelivery = "delivery"
	ActionEnd      = "end"
)

// PlanRequest describes a vehicle and the bookings it should serve.
type PlanRequest struct {
	VehicleID         string
	Kind              Kind
	Position          geo.Position
	Heading           *geo.Position
	PassengerCapacity int
	ParcelCapacity    int
	Passengers        int
	Cargo             int
	// Waiting are bookings still to be picked up.
	Waiting []*booking.Booking
	// Onboard are bookings already picked up; only their delivery is left.
	Onboard []*booking.Booking
}

// Planner orders the stops of one vehicle.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) ([]Instruction, error)
}

// PassengerSource hands bus riders waiting at a stop.
type PassengerSource interface {
	Board(line, stopID string, at geo.Position, max int) []*booking.Booking
}

// Deps are the collaborators of a vehicle.
type Deps struct {
	Clock   *clock.Clock
	Router  Router
	Planner Planner
	Riders  PassengerSource
	Events  *eventbus.TypedBus[Event]
	Logger  logger.Logger
	// RetryDelay is the wall-clock delay between routing attempts.
	RetryDelay time.Duration
	// ReplanDelay debounces plan requests of taxis and trucks.
	ReplanDelay time.Duration
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logger.NopLogger{}
	}
	if d.RetryDelay <= 0 {
		d.RetryDelay = defaultRetryDelay
	}
	if d.ReplanDelay <= 0 {
		d.ReplanDelay = defaultReplanDelay
	}
	return d
}

// Spec is the static description of a vehicle.
type Spec struct {
	ID                string        `json:"id"`
	Position          geo.Position  `json:"position"`
	StartPosition     *geo.Position `json:"start_position,omitempty"`
	ParcelCapacity    int           `json:"parcel_capacity"`
	PassengerCapacity int           `json:"passenger_capacity"`
	Weight            float64       `json:"weight"`
	CO2PerKmKg        float64       `json:"co2_per_km_kg"`
	Fleet             string        `json:"fleet"`
	Kommun            string        `json:"kommun"`
	PrivateCar        bool          `json:"private_car"`
	LineNumber        string        `json:"line_number"`
	FinalStop         string        `json:"final_stop"`
	MaxSpeed          float64       `json:"max_speed"`
}

// merge returns s with every zero field taken from defaults.
func (s Spec) merge(defaults Spec) Spec {
	if s.ID == "" {
		s.ID = defaults.ID
	}
	if s.Position.IsZero() {
		s.Position = defaults.Position
	}
	if s.StartPosition == nil {
		s.StartPosition = defaults.StartPosition
	}
	if s.ParcelCapacity == 0 {
		s.ParcelCapacity = defaults.ParcelCapacity
	}
	if s.PassengerCapacity == 0 {
		s.PassengerCapacity = defaults.PassengerCapacity
	}
	if s.Weight == 0 {
		s.Weight = defaults.Weight
	}
	if s.CO2PerKmKg == 0 {
		s.CO2PerKmKg = defaults.CO2PerKmKg
	}
	if s.Fleet == "" {
		s.Fleet = defaults.Fleet
	}
	if s.Kommun == "" {
		s.Kommun = defaults.Kommun
	}
	if !s.PrivateCar {
		s.PrivateCar = defaults.PrivateCar
	}
	if s.LineNumber == "" {
		s.LineNumber = defaults.LineNumber
	}
	if s.FinalStop == "" {
		s.FinalStop = defaults.FinalStop
	}
	if s.MaxSpeed == 0 {
		s.MaxSpeed = defaults.MaxSpeed
	}
	return s
}
