package dispatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

func TestBookingToShipment(t *testing.T) {
	b := booking.New(booking.Options{
		Pickup:      booking.Place{Position: ljusdal, DepartureTime: "08:30:00"},
		Destination: &booking.Place{Position: arjeplog},
	})
	s := BookingToShipment(b, 3, day)

	assert.Equal(t, []int{1}, s.Amount)
	assert.Equal(t, 3, s.Pickup.ID)
	assert.Equal(t, 3, s.Delivery.ID)
	assert.Equal(t, Location{ljusdal.Lon, ljusdal.Lat}, s.Pickup.Location)
	assert.Equal(t, Location{arjeplog.Lon, arjeplog.Lat}, s.Delivery.Location)
	at := time.Date(2024, 5, 6, 8, 30, 0, 0, time.UTC).Unix()
	assert.Equal(t, [][]int64{{at, at + 300}}, s.Pickup.TimeWindows)
	assert.Nil(t, s.Delivery.TimeWindows)
}

func TestVehicleShapes(t *testing.T) {
	heading := arjeplog
	full := VehicleState{Position: ljusdal, Heading: &heading, PassengerCapacity: 4, Passengers: 4}
	taxi := TaxiToVehicle(full, 2)
	assert.Equal(t, []int{1}, taxi.Capacity, "a full taxi still offers one seat")
	assert.Equal(t, Location{arjeplog.Lon, arjeplog.Lat}, taxi.End)
	assert.Equal(t, 2, taxi.ID)

	truck := TruckToVehicle(VehicleState{Position: ljusdal, ParcelCapacity: 10, Cargo: 3}, 0, day)
	assert.Equal(t, []int{7}, truck.Capacity)
	assert.Nil(t, truck.End)
	assert.Equal(t, []int64{
		time.Date(2024, 5, 6, 5, 0, 0, 0, time.UTC).Unix(),
		time.Date(2024, 5, 6, 18, 0, 0, 0, time.UTC).Unix(),
	}, truck.TimeWindow)

	bus := BusToVehicle(VehicleState{Position: ljusdal, PassengerCapacity: 40}, 1)
	assert.Equal(t, []int{40}, bus.Capacity)
	assert.Equal(t, 1.2, bus.SpeedFactor)
}

func TestTripToShipment(t *testing.T) {
	s := TripToShipment(trip("t1", ljusdal, arjeplog), 0, day)
	arrive := time.Date(2024, 5, 6, 8, 10, 0, 0, time.UTC).Unix()
	leave := time.Date(2024, 5, 6, 8, 11, 0, 0, time.UTC).Unix()
	assert.Equal(t, [][]int64{{arrive, leave + 1}}, s.Pickup.TimeWindows)
	end := time.Date(2024, 5, 6, 8, 40, 0, 0, time.UTC).Unix()
	assert.Equal(t, [][]int64{{end, end + 1}}, s.Delivery.TimeWindows)
}

func TestStepTime(t *testing.T) {
	assert.Equal(t, day.Add(90*time.Second), StepTime(day, 90))
	abs := time.Date(2024, 5, 6, 9, 0, 0, 0, time.UTC)
	assert.True(t, StepTime(day, abs.Unix()).Equal(abs))
}

func TestStepToStop(t *testing.T) {
	p := StepToStop(Step{Arrival: 600, WaitingTime: 60, Location: Location{14.447, 61.595}}, day)
	assert.Equal(t, "08:11:00", p.DepartureTime)
	assert.Equal(t, p.DepartureTime, p.ArrivalTime)
	assert.Equal(t, geo.Pos(14.447, 61.595), p.Position)
}
