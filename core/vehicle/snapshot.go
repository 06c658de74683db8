package vehicle

import (
	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

// PlannedStop is an instruction as exposed in snapshots.
type PlannedStop struct {
	Action    string `json:"action"`
	BookingID string `json:"bookingId,omitempty"`
	Arrival   string `json:"arrival,omitempty"`
}

// Snapshot is the plain record of a vehicle.
type Snapshot struct {
	ID                string        `json:"id"`
	Kind              Kind          `json:"kind"`
	Fleet             string        `json:"fleet,omitempty"`
	Kommun            string        `json:"kommun,omitempty"`
	Status            Status        `json:"status"`
	Position          geo.Position  `json:"position"`
	Origin            geo.Position  `json:"origin"`
	Heading           *geo.Position `json:"heading,omitempty"`
	Cell              string        `json:"cell"`
	Speed             float64       `json:"speed"`
	Bearing           float64       `json:"bearing"`
	Altitude          float64       `json:"altitude,omitempty"`
	BookingID         string        `json:"bookingId,omitempty"`
	Queue             []string      `json:"queue"`
	Cargo             []string      `json:"cargo"`
	Passengers        []string      `json:"passengers,omitempty"`
	Delivered         int           `json:"delivered"`
	ParcelCapacity    int           `json:"parcelCapacity"`
	PassengerCapacity int           `json:"passengerCapacity"`
	CO2               float64       `json:"co2"`
	Distance          float64       `json:"distance"`
	Cost              float64       `json:"cost"`
	LineNumber        string        `json:"lineNumber,omitempty"`
	PrivateCar        bool          `json:"privateCar,omitempty"`
	Plan              []PlannedStop `json:"plan,omitempty"`
}

// Snapshot copies the observable state of the vehicle.
func (v *core) Snapshot() Snapshot {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.snapshotLocked()
}

func ids(list []*booking.Booking) []string {
	out := make([]string, 0, len(list))
	for _, b := range list {
		out = append(out, b.ID)
	}
	return out
}

func (v *core) snapshotLocked() Snapshot {
	s := Snapshot{
		ID:                v.id,
		Kind:              v.kind,
		Fleet:             v.spec.Fleet,
		Kommun:            v.spec.Kommun,
		Status:            v.status,
		Position:          v.position,
		Origin:            v.origin,
		Cell:              geo.Cell(v.position),
		Speed:             v.speed,
		Bearing:           v.bearing,
		Queue:             ids(v.queue),
		Cargo:             ids(v.cargo),
		Delivered:         len(v.delivered),
		ParcelCapacity:    v.parcelCap,
		PassengerCapacity: v.passengerCap,
		CO2:               v.co2,
		Distance:          v.distance,
		Cost:              v.cost,
		PrivateCar:        v.spec.PrivateCar,
	}
	if v.heading != nil {
		h := *v.heading
		s.Heading = &h
	}
	if v.booking != nil {
		s.BookingID = v.booking.ID
	}
	if len(v.passengers) > 0 {
		s.Passengers = ids(v.passengers)
	}
	v.self.fillSnapshot(&s)
	return s
}
