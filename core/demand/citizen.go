package demand

import (
	"sync"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/internal/id"
)

// Intent is what a citizen wants to do at a given hour.
type Intent string

const (
	IntentSleep    Intent = "sleep"
	IntentIdle     Intent = "idle"
	IntentLunch    Intent = "lunch"
	IntentGoToWork Intent = "goToWork"
	IntentGoHome   Intent = "goHome"
)

// IntentAt maps an hour of the day to the intent of a citizen.
func IntentAt(hour int) Intent {
	switch {
	case hour < 4 || hour > 22:
		return IntentSleep
	case hour >= 11 && hour <= 13:
		return IntentLunch
	case hour >= 6 && hour < 10:
		return IntentGoToWork
	case hour >= 16 && hour <= 18:
		return IntentGoHome
	default:
		return IntentIdle
	}
}

// CitizenSnapshot is the serialisable state of a citizen.
type CitizenSnapshot struct {
	ID        string        `json:"id"`
	Name      string        `json:"name"`
	Kommun    string        `json:"kommun"`
	Position  geo.Position  `json:"position"`
	Home      booking.Place `json:"home"`
	Workplace booking.Place `json:"workplace"`
	InVehicle bool          `json:"inVehicle"`
	CO2       float64       `json:"co2"`
	Cost      float64       `json:"cost"`
	Distance  float64       `json:"distance"`
	MoveTime  float64       `json:"moveTime"`
	WaitTime  float64       `json:"waitTime"`
}

// Citizen commutes between home and work and books rides on the way. It
// follows its own bookings through booking.Passenger.
type Citizen struct {
	ID        string
	Name      string
	Kommun    string
	Home      booking.Place
	Workplace booking.Place

	mu        sync.Mutex
	start     geo.Position
	position  geo.Position
	inVehicle bool
	intent    Intent
	co2       float64
	cost      float64
	distance  float64
	moveTime  time.Duration
	waitTime  time.Duration
}

// NewCitizen places a citizen at home.
func NewCitizen(name, kommun string, home, work geo.Position) *Citizen {
	return &Citizen{
		ID:        id.Prefixed("p"),
		Name:      name,
		Kommun:    kommun,
		Home:      booking.Place{Name: "hemma", Position: home},
		Workplace: booking.Place{Name: "arbetsplats", Position: work},
		start:     home,
		position:  home,
	}
}

// Moved implements booking.Passenger.
func (c *Citizen) Moved(pos geo.Position, meters, co2, cost float64, sincePickup time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = pos
	c.distance += meters
	c.co2 += co2
	c.cost += cost
	c.moveTime = sincePickup
}

// PickedUp implements booking.Passenger.
func (c *Citizen) PickedUp(b *booking.Booking) {
	s := b.Snapshot()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inVehicle = true
	c.position = s.Pickup.Position
	if s.PickupDateTime != nil && s.Assigned != nil {
		c.waitTime += s.PickupDateTime.Sub(*s.Assigned)
	}
}

// Delivered implements booking.Passenger.
func (c *Citizen) Delivered(b *booking.Booking) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inVehicle = false
	if d, ok := b.Destination(); ok {
		c.position = d.Position
	}
}

// Reset puts the citizen back home.
func (c *Citizen) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.position = c.start
	c.inVehicle = false
	c.intent = ""
}

// InVehicle reports whether the citizen is riding.
func (c *Citizen) InVehicle() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inVehicle
}

// changeIntent records intent and reports whether it differs from the
// previous one.
func (c *Citizen) changeIntent(intent Intent) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.intent == intent {
		return false
	}
	c.intent = intent
	return true
}

// Snapshot returns the current state of the citizen.
func (c *Citizen) Snapshot() CitizenSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CitizenSnapshot{
		ID:        c.ID,
		Name:      c.Name,
		Kommun:    c.Kommun,
		Position:  c.position,
		Home:      c.Home,
		Workplace: c.Workplace,
		InVehicle: c.inVehicle,
		CO2:       c.co2,
		Cost:      c.cost,
		Distance:  c.distance,
		MoveTime:  c.moveTime.Seconds(),
		WaitTime:  c.waitTime.Seconds(),
	}
}
