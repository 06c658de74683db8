package vehicle

import (
	"github.com/kilianp07/predictivemovement/core/booking"
)

// Truck delivers parcels along a plan and waits where it ends.
type Truck struct {
	*core
	planned
}

// NewTruck creates and starts a truck.
func NewTruck(spec Spec, deps Deps) *Truck {
	t := &Truck{core: newCore(KindTruck, "truck", spec, deps)}
	t.self = t
	t.planned = planned{
		v:       t.core,
		home:    spec.Position,
		onboard: func() []*booking.Booking { return append([]*booking.Booking{}, t.cargo...) },
		next:    t.pickNextInstruction,
	}
	if spec.StartPosition != nil {
		t.home = *spec.StartPosition
	}
	t.start()
	return t
}

// co2For grows with the carried weight.
func (t *Truck) co2For(km float64) float64 {
	return (t.weight + t.cargoWeight()) * km * t.co2PerKmKg
}

func (t *Truck) canHandle(b *booking.Booking) bool {
	return b.Type == booking.TypeParcel && len(t.cargo)+len(t.queue) < t.parcelCap
}

func (t *Truck) handle(b *booking.Booking) error {
	if contains(t.queue, b) || contains(t.cargo, b) {
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

func (t *Truck) onStopped() {
	if in := t.instruction; in != nil && in.Booking != nil {
		switch in.Action {
		case ActionPickup:
			t.loadParcel(in.Booking)
		case ActionDelivery:
			t.unloadParcel(in.Booking)
		}
	}
	t.instruction = nil
	t.pickNextInstruction()
}

func (t *Truck) loadParcel(b *booking.Booking) {
	if len(t.cargo) >= t.parcelCap {
		t.log.Warnf("truck %s is full, leaving %s for a later plan", t.id, b.ID)
		t.scheduleReplan()
		return
	}
	t.cargo = append(t.cargo, b)
	t.queue = remove(t.queue, b)
	b.PickedUp(t.position, t.now())
	t.emit(EventPickup, b)
	t.emit(EventCargo, b)
}

func (t *Truck) unloadParcel(b *booking.Booking) {
	t.cargo = remove(t.cargo, b)
	b.Delivered(t.position, t.now())
	t.delivered = append(t.delivered, b)
	t.emit(EventDropOff, b)
	t.emit(EventCargo, b)
}

// pickNextInstruction executes the next step of the plan. Without one the
// truck stays where it is.
func (t *Truck) pickNextInstruction() {
	in := t.shift()
	t.instruction = in
	if in == nil {
		t.booking = nil
		if t.status != StatusReady {
			t.setStatus(StatusReady)
		}
		return
	}
	t.booking = in.Booking
	switch in.Action {
	case ActionStart:
		t.setStatus(StatusReturning)
		t.self.navigate(t.home)
	case ActionPickup:
		t.setStatus(StatusToPickup)
		t.self.navigate(in.Booking.Pickup().Position)
	case ActionDelivery:
		t.setStatus(StatusToDelivery)
		dest, _ := in.Booking.Destination()
		t.self.navigate(dest.Position)
	default:
		t.log.Warnf("truck %s got unknown action %q, returning to start", t.id, in.Action)
		t.setStatus(StatusReturning)
		t.self.navigate(t.home)
	}
}

func (t *Truck) fillSnapshot(s *Snapshot) {
	t.fillPlan(s)
}
