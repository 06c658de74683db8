package fleet

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

var (
	stockholm = geo.Pos(18.063240, 59.334591)
	solna     = geo.Pos(18.000, 59.360)
	ljusdal   = geo.Pos(14.447, 61.595)
	start     = time.Date(2024, 5, 6, 8, 0, 0, 0, time.UTC)
)

// square returns a polygon of side 2*half degrees around c.
func square(c geo.Position, half float64) orb.Polygon {
	return orb.Polygon{orb.Ring{
		{c.Lon - half, c.Lat - half},
		{c.Lon + half, c.Lat - half},
		{c.Lon + half, c.Lat + half},
		{c.Lon - half, c.Lat + half},
		{c.Lon - half, c.Lat - half},
	}}
}

type lineRouter struct{}

func (lineRouter) Route(_ context.Context, from, to geo.Position) (geo.Route, error) {
	return geo.StraightRoute(from, to, 50, 0), nil
}

func testCatalog(t *testing.T) *vehicle.Catalog {
	t.Helper()
	cat, err := vehicle.NewCatalog(vehicle.Classes(), map[string]vehicle.TypeConfig{
		"car":   {Class: vehicle.ClassCar, Params: map[string]any{"parcel_capacity": 5}},
		"taxi":  {Class: vehicle.ClassTaxi},
		"bus":   {Class: vehicle.ClassBus, Params: map[string]any{"passenger_capacity": 40}},
		"drone": {Class: vehicle.ClassDrone},
	})
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}
	return cat
}

func testDeps() vehicle.Deps {
	return vehicle.Deps{
		Clock:       clock.New(start, clock.Teleport),
		Router:      lineRouter{},
		Planner:     orderPlanner{},
		RetryDelay:  10 * time.Millisecond,
		ReplanDelay: 10 * time.Millisecond,
	}
}

// orderPlanner serves waiting bookings one after the other after the ones
// on board.
type orderPlanner struct{}

func (orderPlanner) Plan(_ context.Context, req vehicle.PlanRequest) ([]vehicle.Instruction, error) {
	var out []vehicle.Instruction
	for _, b := range req.Onboard {
		out = append(out, vehicle.Instruction{Action: vehicle.ActionDelivery, Booking: b})
	}
	for _, b := range req.Waiting {
		out = append(out,
			vehicle.Instruction{Action: vehicle.ActionPickup, Booking: b},
			vehicle.Instruction{Action: vehicle.ActionDelivery, Booking: b})
	}
	return out, nil
}

type stubGeocoder struct {
	place booking.Place
	err   error
	calls int
}

func (g *stubGeocoder) SearchOne(context.Context, string, *geo.Position) (booking.Place, error) {
	g.calls++
	return g.place, g.err
}

// recVehicle records the bookings handed to it.
type recVehicle struct {
	id   string
	kind vehicle.Kind
	pos  geo.Position
	full bool

	mu       sync.Mutex
	bookings []*booking.Booking
}

func (v *recVehicle) ID() string                             { return v.id }
func (v *recVehicle) Kind() vehicle.Kind                     { return v.kind }
func (v *recVehicle) Fleet() string                          { return "" }
func (v *recVehicle) Position() geo.Position                 { return v.pos }
func (v *recVehicle) Status() vehicle.Status                 { return vehicle.StatusReady }
func (v *recVehicle) CanHandleBooking(*booking.Booking) bool { return !v.full }
func (v *recVehicle) CanPickupMorePassengers() bool          { return !v.full }
func (v *recVehicle) NavigateTo(geo.Position)                {}
func (v *recVehicle) Dispose()                               {}

func (v *recVehicle) Snapshot() vehicle.Snapshot {
	return vehicle.Snapshot{ID: v.id, Kind: v.kind, Position: v.pos}
}

func (v *recVehicle) HandleBooking(_ context.Context, b *booking.Booking) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bookings = append(v.bookings, b)
	b.Queued(v.id, start)
	return nil
}

func (v *recVehicle) received() []*booking.Booking {
	v.mu.Lock()
	defer v.mu.Unlock()
	return append([]*booking.Booking(nil), v.bookings...)
}

// stubDispatcher gives every booking or trip to the first vehicle offered,
// unless err is set.
type stubDispatcher struct {
	mu        sync.Mutex
	err       error
	failTimes int
	taxiCalls [][]vehicle.Vehicle
	busCalls  int
}

var errSolver = errors.New("solver down")

func (d *stubDispatcher) DispatchTaxis(_ context.Context, taxis []vehicle.Vehicle, bookings []*booking.Booking) (dispatch.TaxiPlan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.taxiCalls = append(d.taxiCalls, taxis)
	if d.err != nil {
		return dispatch.TaxiPlan{Unassigned: bookings}, d.err
	}
	if len(taxis) == 0 {
		return dispatch.TaxiPlan{Unassigned: bookings}, dispatch.ErrNoVehicles
	}
	return dispatch.TaxiPlan{Assignments: []dispatch.TaxiAssignment{{Taxi: taxis[0], Bookings: bookings}}}, nil
}

func (d *stubDispatcher) DispatchBuses(_ context.Context, buses []vehicle.Vehicle, trips []dispatch.Trip) (dispatch.BusPlan, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.busCalls++
	if d.busCalls <= d.failTimes {
		return dispatch.BusPlan{Unassigned: trips}, errSolver
	}
	var plan dispatch.BusPlan
	for i, t := range trips {
		a := dispatch.BusAssignment{Bus: buses[i%len(buses)], Trips: []dispatch.Trip{t}}
		a.Stops = append(a.Stops, t.Stops...)
		plan.Assignments = append(plan.Assignments, a)
	}
	return plan, nil
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

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}
