package vehicle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/geo"
)

func TestTaxiServesPlannedBookings(t *testing.T) {
	e := newEnv(t, clock.Teleport)
	taxi := NewTaxi(Spec{Position: arjeplog}, e.deps(lineRouter{}))
	defer taxi.Dispose()

	ctx := context.Background()
	out, back := passenger(arjeplog, ljusdal), passenger(ljusdal, arjeplog)
	require.NoError(t, taxi.HandleBooking(ctx, out))
	require.NoError(t, taxi.HandleBooking(ctx, back))

	require.Eventually(t, func() bool {
		return out.Status() == booking.StatusDelivered && back.Status() == booking.StatusDelivered
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, taxi.ID(), out.CarID())
	assert.Equal(t, taxi.ID(), back.CarID())
	require.Eventually(t, func() bool { return taxi.Status() == StatusReady }, 5*time.Second, 5*time.Millisecond)
	if d := geo.Haversine(taxi.Position(), arjeplog); d > ArrivalThreshold {
		t.Fatalf("taxi ended %vm from its start", d)
	}
}

func TestTaxiCapacity(t *testing.T) {
	e := newEnv(t, clock.Teleport)
	gate := gatedRouter{release: make(chan struct{})}
	taxi := NewTaxi(Spec{Position: arjeplog, PassengerCapacity: 1}, e.deps(gate))
	defer taxi.Dispose()

	if !taxi.CanPickupMorePassengers() {
		t.Fatal("empty taxi should have a free seat")
	}
	if taxi.CanHandleBooking(parcel(arjeplog, ljusdal)) {
		t.Fatal("taxi without parcel capacity accepted a parcel")
	}
	if !taxi.CanHandleBooking(passenger(arjeplog, ljusdal)) {
		t.Fatal("taxi refused a passenger")
	}
	s := taxi.Snapshot()
	assert.Equal(t, 1, s.PassengerCapacity)
	assert.Equal(t, KindTaxi, s.Kind)
}

func TestTruckStaysWhereThePlanEnds(t *testing.T) {
	e := newEnv(t, clock.Teleport)
	deps := e.deps(lineRouter{})
	deps.Planner = orderPlanner{withStart: true}
	truck := NewTruck(Spec{Position: arjeplog, ParcelCapacity: 5}, deps)
	defer truck.Dispose()

	b := parcel(ljusdal, stockholm)
	require.NoError(t, truck.HandleBooking(context.Background(), b))
	if err := truck.HandleBooking(context.Background(), b); err != ErrAlreadyQueued {
		t.Fatalf("expected ErrAlreadyQueued got %v", err)
	}

	require.Eventually(t, func() bool { return b.Status() == booking.StatusDelivered }, 5*time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return truck.Status() == StatusReady }, 5*time.Second, 5*time.Millisecond)
	if d := geo.Haversine(truck.Position(), stockholm); d > ArrivalThreshold {
		t.Fatalf("truck should stay at the last delivery, is %vm away", d)
	}
	s := truck.Snapshot()
	assert.Equal(t, 1, s.Delivered)
	assert.Empty(t, s.Cargo)
}

func TestTruckCO2GrowsWithCargo(t *testing.T) {
	e := newEnv(t, clock.Teleport)
	truck := NewTruck(Spec{Position: arjeplog, ParcelCapacity: 5, Weight: 1000, CO2PerKmKg: 0.001}, e.deps(lineRouter{}))
	defer truck.Dispose()

	empty := truck.co2For(10)
	truck.mu.Lock()
	truck.cargo = append(truck.cargo, parcel(arjeplog, ljusdal))
	truck.mu.Unlock()
	loaded := truck.co2For(10)
	assert.InDelta(t, 10.0, empty, 1e-9)
	assert.InDelta(t, (1000+1)*10*0.001, loaded, 1e-9)
}

func TestTruckOnlyTakesParcels(t *testing.T) {
	e := newEnv(t, clock.Teleport)
	truck := NewTruck(Spec{Position: arjeplog, ParcelCapacity: 1}, e.deps(lineRouter{}))
	defer truck.Dispose()
	assert.False(t, truck.CanHandleBooking(passenger(arjeplog, ljusdal)))
	assert.True(t, truck.CanHandleBooking(parcel(arjeplog, ljusdal)))
}

// flakyPlanner fails the first fails requests.
type flakyPlanner struct {
	fails int32
	calls atomic.Int32
}

func (p *flakyPlanner) Plan(ctx context.Context, req PlanRequest) ([]Instruction, error) {
	if p.calls.Add(1) <= p.fails {
		return nil, errors.New("vroom unavailable")
	}
	return orderPlanner{}.Plan(ctx, req)
}

func TestTaxiRetriesFailedPlan(t *testing.T) {
	e := newEnv(t, clock.Teleport)
	deps := e.deps(lineRouter{})
	planner := &flakyPlanner{fails: 2}
	deps.Planner = planner
	taxi := NewTaxi(Spec{Position: arjeplog}, deps)
	defer taxi.Dispose()

	b := passenger(arjeplog, ljusdal)
	require.NoError(t, taxi.HandleBooking(context.Background(), b))

	require.Eventually(t, func() bool { return b.Status() == booking.StatusDelivered }, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), planner.calls.Load())
}
