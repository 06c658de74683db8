package booking

import "time"

// EventKind names the transition that produced an Event.
type EventKind string

const (
	EventQueued    EventKind = "queued"
	EventAssigned  EventKind = "assigned"
	EventPickedUp  EventKind = "pickedUp"
	EventDelivered EventKind = "delivered"
)

// Event is emitted after every lifecycle call. Status is the booking status
// once the call was applied.
type Event struct {
	Kind    EventKind
	Status  Status
	Booking *Booking
	At      time.Time
}
