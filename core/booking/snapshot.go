package booking

import (
	"time"

	"github.com/kilianp07/predictivemovement/core/geo"
)

// Snapshot is the plain record of a booking used for telemetry and the
// status API.
type Snapshot struct {
	ID                string        `json:"id"`
	Status            Status        `json:"status"`
	Type              Type          `json:"type,omitempty"`
	Sender            string        `json:"sender,omitempty"`
	LineNumber        string        `json:"lineNumber,omitempty"`
	Weight            float64       `json:"weight"`
	CO2               float64       `json:"co2"`
	Cost              float64       `json:"cost"`
	Distance          float64       `json:"distance"`
	Position          geo.Position  `json:"position"`
	Pickup            Place         `json:"pickup"`
	Destination       *Place        `json:"destination,omitempty"`
	CarID             string        `json:"carId,omitempty"`
	Fleet             string        `json:"fleet,omitempty"`
	Kommun            string        `json:"kommun,omitempty"`
	Cell              string        `json:"cell,omitempty"`
	PickupPosition    *geo.Position `json:"pickupPosition,omitempty"`
	DeliveredPosition *geo.Position `json:"deliveredPosition,omitempty"`
	Queued            *time.Time    `json:"queued,omitempty"`
	Assigned          *time.Time    `json:"assigned,omitempty"`
	PickupDateTime    *time.Time    `json:"pickupDateTime,omitempty"`
	DeliveredDateTime *time.Time    `json:"deliveredDateTime,omitempty"`
	DeliveryTime      float64       `json:"deliveryTime,omitempty"`
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func timeOf(t *time.Time) time.Time {
	if t == nil {
		return time.Time{}
	}
	return *t
}

// Snapshot copies the observable state of the booking.
func (b *Booking) Snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Snapshot{
		ID:                b.ID,
		Status:            b.status,
		Type:              b.Type,
		Sender:            b.Sender,
		LineNumber:        b.LineNumber,
		Weight:            b.Weight,
		CO2:               b.co2,
		Cost:              b.cost,
		Distance:          b.distance,
		Position:          b.position,
		Pickup:            b.pickup,
		CarID:             b.carID,
		Fleet:             b.fleet,
		Kommun:            b.kommun,
		Cell:              geo.Cell(b.position),
		PickupPosition:    b.pickupPosition,
		DeliveredPosition: b.deliveredPosition,
		Queued:            timePtr(b.queuedAt),
		Assigned:          timePtr(b.assignedAt),
		PickupDateTime:    timePtr(b.pickedUpAt),
		DeliveredDateTime: timePtr(b.deliveredAt),
		DeliveryTime:      b.deliveryTime,
	}
	if b.destination != nil {
		d := *b.destination
		s.Destination = &d
	}
	return s
}

// FromSnapshot rebuilds a booking from a snapshot. Observers and the
// passenger are not part of a snapshot.
func FromSnapshot(s Snapshot) *Booking {
	b := &Booking{
		ID:                s.ID,
		Type:              s.Type,
		Sender:            s.Sender,
		LineNumber:        s.LineNumber,
		Weight:            s.Weight,
		pickup:            s.Pickup,
		status:            s.Status,
		carID:             s.CarID,
		fleet:             s.Fleet,
		kommun:            s.Kommun,
		position:          s.Position,
		pickupPosition:    s.PickupPosition,
		deliveredPosition: s.DeliveredPosition,
		distance:          s.Distance,
		co2:               s.CO2,
		cost:              s.Cost,
		queuedAt:          timeOf(s.Queued),
		assignedAt:        timeOf(s.Assigned),
		pickedUpAt:        timeOf(s.PickupDateTime),
		deliveredAt:       timeOf(s.DeliveredDateTime),
		deliveryTime:      s.DeliveryTime,
	}
	if s.Destination != nil {
		d := *s.Destination
		b.destination = &d
	}
	return b
}
