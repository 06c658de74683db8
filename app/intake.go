package app

import (
	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

// Handler takes bookings into the simulation.
type Handler interface {
	HandleBooking(b *booking.Booking) error
	ManualBooking(b *booking.Booking)
}

// Intake publishes every lifecycle transition of the bookings it takes to
// a bus, then forwards them.
type Intake struct {
	next  Handler
	bus   *eventbus.TypedBus[booking.Event]
	clock *clock.Clock
}

func NewIntake(next Handler, bus *eventbus.TypedBus[booking.Event], clk *clock.Clock) *Intake {
	return &Intake{next: next, bus: bus, clock: clk}
}

func (i *Intake) observe(b *booking.Booking) {
	b.Observe(i.bus.Publish)
	i.bus.Publish(booking.Event{Status: b.Status(), Booking: b, At: i.clock.Now()})
}

// HandleBooking implements demand.Sink.
func (i *Intake) HandleBooking(b *booking.Booking) error {
	i.observe(b)
	return i.next.HandleBooking(b)
}

// Manual queues a booking requested by hand.
func (i *Intake) Manual(b *booking.Booking) {
	i.observe(b)
	i.next.ManualBooking(b)
}
