// Package booking models one transport request and its lifecycle.
package booking

import (
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/internal/id"
)

// Status is the lifecycle state of a booking.
type Status string

const (
	StatusNew       Status = "New"
	StatusQueued    Status = "Queued"
	StatusAssigned  Status = "Assigned"
	StatusPickedUp  Status = "Picked up"
	StatusDelivered Status = "Delivered"
)

func (s Status) rank() int {
	switch s {
	case StatusQueued:
		return 1
	case StatusAssigned:
		return 2
	case StatusPickedUp:
		return 3
	case StatusDelivered:
		return 4
	default:
		return 0
	}
}

// Type tells what is being transported.
type Type string

const (
	TypePassenger    Type = "passenger"
	TypeParcel       Type = "parcel"
	TypeBusStop      Type = "busstop"
	TypePassengerBus Type = "passengerBus"
)

// ClockLayout is the layout of scheduled departure and arrival times.
const ClockLayout = "15:04:05"

// Place is a pickup or destination.
type Place struct {
	Position      geo.Position `json:"position"`
	Name          string       `json:"name,omitempty"`
	StopID        string       `json:"stopId,omitempty"`
	LineNumber    string       `json:"lineNumber,omitempty"`
	TripID        string       `json:"tripId,omitempty"`
	DepartureTime string       `json:"departureTime,omitempty"`
	ArrivalTime   string       `json:"arrivalTime,omitempty"`
}

// Passenger is the person travelling with a booking, notified for its own
// accounting.
type Passenger interface {
	Moved(pos geo.Position, meters, co2, cost float64, sincePickup time.Duration)
	PickedUp(b *Booking)
	Delivered(b *Booking)
}

// Options configures a new booking.
type Options struct {
	ID          string
	Type        Type
	Sender      string
	Pickup      Place
	Destination *Place
	LineNumber  string
	// Weight in kg. A random weight between 0 and 10 is drawn when zero.
	Weight    float64
	Passenger Passenger
}

// Booking is one pickup/delivery request. It is safe for concurrent use;
// mutations come from the vehicle currently holding it.
type Booking struct {
	ID         string
	Type       Type
	Sender     string
	LineNumber string
	Weight     float64
	Passenger  Passenger

	mu          sync.RWMutex
	pickup      Place
	destination *Place
	status      Status
	carID       string
	fleet       string
	kommun      string

	position          geo.Position
	pickupPosition    *geo.Position
	deliveredPosition *geo.Position

	distance float64
	co2      float64
	cost     float64

	queuedAt     time.Time
	assignedAt   time.Time
	pickedUpAt   time.Time
	deliveredAt  time.Time
	deliveryTime float64

	observers []func(Event)
}

// New creates a booking in status New.
func New(o Options) *Booking {
	b := &Booking{
		ID:          o.ID,
		Type:        o.Type,
		Sender:      o.Sender,
		LineNumber:  o.LineNumber,
		Weight:      o.Weight,
		Passenger:   o.Passenger,
		pickup:      o.Pickup,
		destination: o.Destination,
		status:      StatusNew,
		position:    o.Pickup.Position,
	}
	if b.ID == "" {
		b.ID = id.Prefixed(senderPrefix(o.Sender))
	}
	if b.Weight == 0 {
		b.Weight = rand.Float64() * 10
	}
	return b
}

func senderPrefix(sender string) string {
	if sender == "" {
		return "b"
	}
	return strings.ToLower(strings.ReplaceAll(sender, "&", ""))
}

// Observe registers fn to be called after every lifecycle transition.
func (b *Booking) Observe(fn func(Event)) {
	b.mu.Lock()
	b.observers = append(b.observers, fn)
	b.mu.Unlock()
}

// Location implements geo.Locatable with the current position.
func (b *Booking) Location() geo.Position {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.position
}

func (b *Booking) Status() Status {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.status
}

// CarID returns the id of the vehicle the booking is queued on or
// assigned to.
func (b *Booking) CarID() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.carID
}

func (b *Booking) Pickup() Place {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.pickup
}

// Destination returns the destination and whether there is one.
func (b *Booking) Destination() (Place, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.destination == nil {
		return Place{}, false
	}
	return *b.destination, true
}

// SetPickup replaces the pickup place. Used when a request is re-targeted to
// a stop.
func (b *Booking) SetPickup(p Place) {
	b.mu.Lock()
	b.pickup = p
	if b.status.rank() < StatusPickedUp.rank() {
		b.position = p.Position
	}
	b.mu.Unlock()
}

// SetDestination replaces the destination place.
func (b *Booking) SetDestination(p Place) {
	b.mu.Lock()
	b.destination = &p
	b.mu.Unlock()
}

// SetPickupDeparture stamps the scheduled departure time ("15:04:05").
func (b *Booking) SetPickupDeparture(at time.Time) {
	b.mu.Lock()
	b.pickup.DepartureTime = at.Format(ClockLayout)
	b.mu.Unlock()
}

// Departure resolves the pickup departure time on the day of now. It
// returns false when none is scheduled or it cannot be parsed.
func (b *Booking) Departure(now time.Time) (time.Time, bool) {
	return OnDay(now, b.Pickup().DepartureTime)
}

// OnDay resolves a "15:04:05" clock time on the day of ref.
func OnDay(ref time.Time, clock string) (time.Time, bool) {
	if clock == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(ClockLayout, clock)
	if err != nil {
		return time.Time{}, false
	}
	y, m, d := ref.Date()
	return time.Date(y, m, d, t.Hour(), t.Minute(), t.Second(), 0, ref.Location()), true
}

// SetFleet records the fleet handling the booking.
func (b *Booking) SetFleet(name string) {
	b.mu.Lock()
	b.fleet = name
	b.mu.Unlock()
}

// SetKommun records the municipality the booking belongs to.
func (b *Booking) SetKommun(name string) {
	b.mu.Lock()
	b.kommun = name
	b.mu.Unlock()
}

func (b *Booking) Fleet() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fleet
}

// Assigned reports whether the booking has ever been assigned.
func (b *Booking) Assigned() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return !b.assignedAt.IsZero()
}

// AssignedAt returns the first assignment time.
func (b *Booking) AssignedAt() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.assignedAt
}

// Totals returns the accumulated distance (m), CO2 (kg) and cost.
func (b *Booking) Totals() (distance, co2, cost float64) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.distance, b.co2, b.cost
}

// advance moves to s unless that would go backwards. Delivered bookings
// are never touched again.
func (b *Booking) advance(s Status) bool {
	if b.status == StatusDelivered {
		return false
	}
	if s.rank() >= b.status.rank() {
		b.status = s
	}
	return true
}

// Queued records that the booking waits in the queue of vehicle carID.
func (b *Booking) Queued(carID string, now time.Time) {
	b.mu.Lock()
	if !b.advance(StatusQueued) {
		b.mu.Unlock()
		return
	}
	b.queuedAt = now
	b.carID = carID
	b.mu.Unlock()
	b.emit(EventQueued, now)
}

// Assign records the assignment to vehicle carID. Only the first
// assignment time is kept.
func (b *Booking) Assign(carID string, now time.Time) {
	b.mu.Lock()
	if !b.advance(StatusAssigned) {
		b.mu.Unlock()
		return
	}
	if b.assignedAt.IsZero() {
		b.assignedAt = now
	}
	b.carID = carID
	b.mu.Unlock()
	b.emit(EventAssigned, now)
}

// PickedUp records the pickup.
func (b *Booking) PickedUp(pos geo.Position, now time.Time) {
	b.mu.Lock()
	if !b.advance(StatusPickedUp) {
		b.mu.Unlock()
		return
	}
	b.pickedUpAt = now
	b.pickupPosition = &pos
	b.position = pos
	b.mu.Unlock()
	if b.Passenger != nil {
		b.Passenger.PickedUp(b)
	}
	b.emit(EventPickedUp, now)
}

// Delivered records the delivery and computes the delivery time in seconds
// since assignment (or queueing when never assigned).
func (b *Booking) Delivered(pos geo.Position, now time.Time) {
	b.mu.Lock()
	if !b.advance(StatusDelivered) {
		b.mu.Unlock()
		return
	}
	b.deliveredAt = now
	b.deliveredPosition = &pos
	b.position = pos
	from := b.assignedAt
	if from.IsZero() {
		from = b.queuedAt
	}
	if !from.IsZero() {
		b.deliveryTime = now.Sub(from).Seconds()
	}
	b.mu.Unlock()
	if b.Passenger != nil {
		b.Passenger.Delivered(b)
	}
	b.emit(EventDelivered, now)
}

// Moved accrues a share of a vehicle leg.
func (b *Booking) Moved(pos geo.Position, meters, co2, cost float64, now time.Time) {
	b.mu.Lock()
	b.position = pos
	b.distance += meters
	b.co2 += co2
	b.cost += cost
	var since time.Duration
	if !b.pickedUpAt.IsZero() {
		since = now.Sub(b.pickedUpAt)
	}
	b.mu.Unlock()
	if b.Passenger != nil {
		b.Passenger.Moved(pos, meters, co2, cost, since)
	}
}

func (b *Booking) emit(kind EventKind, at time.Time) {
	b.mu.RLock()
	obs := append([]func(Event){}, b.observers...)
	status := b.status
	b.mu.RUnlock()
	ev := Event{Kind: kind, Status: status, Booking: b, At: at}
	for _, fn := range obs {
		fn(ev)
	}
}
