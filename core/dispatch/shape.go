package dispatch

import (
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/vehicle"
)

const (
	// timeWindow is the slack given to scheduled pickups and arrivals.
	timeWindow = 5 * time.Minute
	// busSpeedFactor makes buses a little faster than cars.
	busSpeedFactor = 1.2
	truckDayStart  = "05:00:00"
	truckDayEnd    = "18:00:00"
	// unixThreshold separates unix timestamps from relative seconds in
	// solver steps.
	unixThreshold = 1_000_000_000
)

// VehicleState is what the solver needs to know about a vehicle. Seats and
// cargo count only what is not part of the problem itself.
type VehicleState struct {
	Position          geo.Position
	Heading           *geo.Position
	PassengerCapacity int
	ParcelCapacity    int
	Passengers        int
	Cargo             int
}

// StateOf reads the solver view of a vehicle snapshot.
func StateOf(s vehicle.Snapshot) VehicleState {
	return VehicleState{
		Position:          s.Position,
		Heading:           s.Heading,
		PassengerCapacity: s.PassengerCapacity,
		ParcelCapacity:    s.ParcelCapacity,
		Passengers:        len(s.Passengers),
		Cargo:             len(s.Cargo),
	}
}

func location(p geo.Position) Location { return Location{p.Lon, p.Lat} }

func end(heading *geo.Position) Location {
	if heading == nil {
		return nil
	}
	return location(*heading)
}

// window returns the five minute window starting at a "15:04:05" time on
// the day of ref, or nil without one.
func window(ref time.Time, clock string) [][]int64 {
	at, ok := booking.OnDay(ref, clock)
	if !ok {
		return nil
	}
	return [][]int64{{at.Unix(), at.Add(timeWindow).Unix()}}
}

// BookingToShipment turns booking b into shipment i. Scheduled times are
// resolved on the day of ref.
func BookingToShipment(b *booking.Booking, i int, ref time.Time) Shipment {
	pickup := b.Pickup()
	s := Shipment{
		Amount: []int{1},
		Pickup: ShipmentStep{
			ID:          i,
			Location:    location(pickup.Position),
			TimeWindows: window(ref, pickup.DepartureTime),
		},
		Delivery: ShipmentStep{ID: i},
	}
	if dest, ok := b.Destination(); ok {
		s.Delivery.Location = location(dest.Position)
		s.Delivery.TimeWindows = window(ref, dest.ArrivalTime)
	} else {
		s.Delivery.Location = s.Pickup.Location
	}
	return s
}

// OnboardToJob turns a booking already on board into a delivery-only job.
func OnboardToJob(b *booking.Booking, id int, ref time.Time) Job {
	j := Job{ID: id, Delivery: []int{1}}
	dest, ok := b.Destination()
	if !ok {
		j.Location = location(b.Location())
		return j
	}
	j.Location = location(dest.Position)
	j.TimeWindows = window(ref, dest.ArrivalTime)
	return j
}

// TaxiToVehicle turns a taxi into solver vehicle i. At least one seat is
// always offered.
func TaxiToVehicle(s VehicleState, i int) Vehicle {
	return Vehicle{
		ID:       i,
		Capacity: []int{max(1, s.PassengerCapacity-s.Passengers)},
		Start:    location(s.Position),
		End:      end(s.Heading),
	}
}

// TruckToVehicle turns a truck into solver vehicle i working 05:00-18:00
// on the day of ref.
func TruckToVehicle(s VehicleState, i int, ref time.Time) Vehicle {
	from, _ := booking.OnDay(ref, truckDayStart)
	to, _ := booking.OnDay(ref, truckDayEnd)
	return Vehicle{
		ID:         i,
		Capacity:   []int{max(0, s.ParcelCapacity-s.Cargo)},
		Start:      location(s.Position),
		End:        end(s.Heading),
		TimeWindow: []int64{from.Unix(), to.Unix()},
	}
}

// BusToVehicle turns a bus into solver vehicle i.
func BusToVehicle(s VehicleState, i int) Vehicle {
	return Vehicle{
		ID:          i,
		Capacity:    []int{s.PassengerCapacity},
		Start:       location(s.Position),
		End:         end(s.Heading),
		SpeedFactor: busSpeedFactor,
	}
}

// Trip is an ordered run of stops sharing a trip id.
type Trip struct {
	ID         string          `json:"tripId"`
	LineNumber string          `json:"lineNumber"`
	Kommun     string          `json:"kommun,omitempty"`
	Stops      []booking.Place `json:"stops"`
}

// First returns the first stop.
func (t Trip) First() booking.Place { return t.Stops[0] }

// Last returns the last stop.
func (t Trip) Last() booking.Place { return t.Stops[len(t.Stops)-1] }

// stopWindow spans arrival to departure plus one second.
func stopWindow(ref time.Time, p booking.Place) [][]int64 {
	arrival, ok := booking.OnDay(ref, p.ArrivalTime)
	if !ok {
		return nil
	}
	departure, ok := booking.OnDay(ref, p.DepartureTime)
	if !ok {
		departure = arrival
	}
	return [][]int64{{arrival.Unix(), departure.Unix() + 1}}
}

// TripToShipment turns trip t into shipment i from its first to its last
// stop.
func TripToShipment(t Trip, i int, ref time.Time) Shipment {
	first, last := t.First(), t.Last()
	return Shipment{
		Amount: []int{1},
		Pickup: ShipmentStep{
			ID:          i,
			Location:    location(first.Position),
			TimeWindows: stopWindow(ref, first),
		},
		Delivery: ShipmentStep{
			ID:          i,
			Location:    location(last.Position),
			TimeWindows: stopWindow(ref, last),
		},
	}
}

// StepTime resolves the arrival of a step. Steps report unix seconds when
// the problem had time windows and seconds since start otherwise.
func StepTime(start time.Time, seconds int64) time.Time {
	if seconds > unixThreshold {
		return time.Unix(seconds, 0).In(start.Location())
	}
	return start.Add(time.Duration(seconds) * time.Second)
}

// StepToStop turns a solver step into a stop departing once the waiting
// time is over.
func StepToStop(s Step, start time.Time) booking.Place {
	at := StepTime(start, s.Arrival+s.WaitingTime).Format(booking.ClockLayout)
	p := booking.Place{DepartureTime: at, ArrivalTime: at}
	if len(s.Location) == 2 {
		p.Position = geo.Pos(s.Location[0], s.Location[1])
	}
	return p
}
