package vehicle

import "time"

// EventKind names what happened to a vehicle.
type EventKind string

const (
	EventMoved   EventKind = "moved"
	EventCargo   EventKind = "cargo"
	EventStatus  EventKind = "status"
	EventStopped EventKind = "stopped"
	EventPickup  EventKind = "pickup"
	EventDropOff EventKind = "dropoff"
)

// Event carries a snapshot of the vehicle taken when it happened.
type Event struct {
	Kind      EventKind `json:"kind"`
	Vehicle   Snapshot  `json:"vehicle"`
	BookingID string    `json:"bookingId,omitempty"`
	At        time.Time `json:"at"`
}
