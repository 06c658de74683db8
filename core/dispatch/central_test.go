package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

func teleportDeps(solver Solver) vehicle.Deps {
	clk := clock.New(day, clock.Teleport)
	return vehicle.Deps{
		Clock:       clk,
		Router:      lineRouter{},
		Planner:     NewPlanner(solver, clk, nil),
		RetryDelay:  10 * time.Millisecond,
		ReplanDelay: 10 * time.Millisecond,
	}
}

func TestDistribute(t *testing.T) {
	deps := teleportDeps(&seqSolver{})
	a := vehicle.NewCar(vehicle.Spec{Position: arjeplog}, deps)
	b := vehicle.NewCar(vehicle.Spec{Position: ljusdal}, deps)
	defer a.Dispose()
	defer b.Dispose()
	cars := []vehicle.Vehicle{a, b}

	one := []*booking.Booking{parcel(ljusdal, arjeplog)}
	got, err := Distribute(cars, one)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, a.ID(), got[0].Vehicle.ID())

	var many []*booking.Booking
	for i := 0; i < 4; i++ {
		many = append(many, parcel(geo.AddMeters(arjeplog, geo.Offset{X: float64(i * 100)}), ljusdal))
		many = append(many, parcel(geo.AddMeters(ljusdal, geo.Offset{X: float64(i * 100)}), arjeplog))
	}
	got, err = Distribute(cars, many)
	require.NoError(t, err)
	require.Len(t, got, 2)
	total := 0
	for _, asg := range got {
		assert.Len(t, asg.Bookings, 4)
		total += len(asg.Bookings)
	}
	assert.Equal(t, len(many), total)

	if _, err := Distribute(nil, many); !errors.Is(err, ErrNoVehicles) {
		t.Fatalf("expected ErrNoVehicles got %v", err)
	}
}

func TestCentralSendsSequentialBookingsToOneTaxi(t *testing.T) {
	taxi := vehicle.NewTaxi(vehicle.Spec{Position: arjeplog}, teleportDeps(&seqSolver{}))
	defer taxi.Dispose()

	in := make(chan *booking.Booking, 2)
	first, second := passenger(arjeplog, ljusdal), passenger(ljusdal, arjeplog)
	in <- first
	in <- second
	close(in)

	central := NewCentral(CentralConfig{Window: 20 * time.Millisecond}, nil)
	done := make(chan error, 1)
	go func() { done <- central.Run(context.Background(), "Taxi", []vehicle.Vehicle{taxi}, in) }()

	require.Eventually(t, func() bool {
		return first.Status() == booking.StatusDelivered && second.Status() == booking.StatusDelivered
	}, 5*time.Second, 5*time.Millisecond)
	assert.Equal(t, taxi.ID(), first.CarID())
	assert.Equal(t, taxi.ID(), second.CarID())
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("dispatch did not stop after its input closed")
	}
}

func TestCentralWithoutVehicles(t *testing.T) {
	err := NewCentral(CentralConfig{}, nil).Run(context.Background(), "empty", nil, make(chan *booking.Booking))
	if !errors.Is(err, ErrNoVehicles) {
		t.Fatalf("expected ErrNoVehicles got %v", err)
	}
}
