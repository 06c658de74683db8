package vehicle

import (
	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

const (
	taxiPassengerCapacity = 4
	taxiCO2PerKmKg        = 0.1201
)

// Taxi carries passengers along a plan computed for its whole queue.
type Taxi struct {
	*core
	planned
}

// NewTaxi creates and starts a taxi.
func NewTaxi(spec Spec, deps Deps) *Taxi {
	if spec.PassengerCapacity == 0 {
		spec.PassengerCapacity = taxiPassengerCapacity
	}
	if spec.CO2PerKmKg == 0 {
		spec.CO2PerKmKg = taxiCO2PerKmKg
	}
	t := &Taxi{core: newCore(KindTaxi, "t", spec, deps)}
	t.self = t
	t.planned = planned{
		v:       t.core,
		home:    spec.Position,
		onboard: t.onboard,
		next:    t.pickNextInstruction,
	}
	if spec.StartPosition != nil {
		t.home = *spec.StartPosition
	}
	t.start()
	return t
}

func (t *Taxi) onboard() []*booking.Booking {
	out := append([]*booking.Booking{}, t.passengers...)
	return append(out, t.cargo...)
}

// CanPickupMorePassengers reports whether a seat is free.
func (t *Taxi) CanPickupMorePassengers() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.passengers) < t.passengerCap
}

func (t *Taxi) canHandle(b *booking.Booking) bool {
	switch b.Type {
	case booking.TypeParcel:
		return len(t.cargo) < t.parcelCap
	case booking.TypePassenger, "":
		return len(t.passengers) < t.passengerCap
	}
	return false
}

// handle queues b and asks for a new plan covering it.
func (t *Taxi) handle(b *booking.Booking) error {
	if contains(t.queue, b) || contains(t.onboard(), b) {
		return ErrAlreadyQueued
	}
	now := t.now()
	t.queue = append(t.queue, b)
	b.Queued(t.id, now)
	b.Assign(t.id, now)
	t.emit(EventCargo, b)
	t.scheduleReplan()
	return nil
}

func (t *Taxi) onStopped() {
	if in := t.instruction; in != nil && in.Booking != nil {
		switch in.Action {
		case ActionPickup:
			t.board(in.Booking)
		case ActionDelivery:
			t.alight(in.Booking)
		}
	}
	t.instruction = nil
	t.pickNextInstruction()
}

func (t *Taxi) board(b *booking.Booking) {
	if b.Type == booking.TypeParcel {
		t.cargo = append(t.cargo, b)
	} else {
		if len(t.passengers) >= t.passengerCap {
			t.log.Warnf("taxi %s is full, leaving %s for a later plan", t.id, b.ID)
			t.scheduleReplan()
			return
		}
		t.passengers = append(t.passengers, b)
	}
	t.queue = remove(t.queue, b)
	b.PickedUp(t.position, t.now())
	t.emit(EventPickup, b)
	t.emit(EventCargo, b)
}

func (t *Taxi) alight(b *booking.Booking) {
	t.passengers = remove(t.passengers, b)
	t.cargo = remove(t.cargo, b)
	b.Delivered(t.position, t.now())
	t.delivered = append(t.delivered, b)
	t.emit(EventDropOff, b)
	t.emit(EventCargo, b)
}

// pickNextInstruction executes the next step of the plan. Without one the
// taxi goes back to where it started.
func (t *Taxi) pickNextInstruction() {
	in := t.shift()
	t.instruction = in
	if in == nil {
		t.booking = nil
		if geo.Haversine(t.position, t.home) < ArrivalThreshold {
			if t.status != StatusReady {
				t.setStatus(StatusReady)
			}
			return
		}
		t.setStatus(StatusReturning)
		t.self.navigate(t.home)
		return
	}
	t.booking = in.Booking
	switch in.Action {
	case ActionPickup:
		t.setStatus(StatusToPickup)
		t.waitThen(in.Arrival, func() {
			if t.instruction == in {
				t.self.navigate(in.Booking.Pickup().Position)
			}
		})
	case ActionDelivery:
		t.setStatus(StatusToDelivery)
		t.waitThen(in.Arrival, func() {
			if t.instruction == in {
				dest, _ := in.Booking.Destination()
				t.self.navigate(dest.Position)
			}
		})
	default:
		t.instruction = nil
		t.pickNextInstruction()
	}
}

func (t *Taxi) fillSnapshot(s *Snapshot) {
	t.fillPlan(s)
}
