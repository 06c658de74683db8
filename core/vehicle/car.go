package vehicle

import (
	"sort"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

const carCO2PerKmKg = 0.1201

// Car serves bookings one at a time with a greedy choice of the next stop.
type Car struct {
	*core
}

// NewCar creates and starts a car.
func NewCar(spec Spec, deps Deps) *Car {
	if spec.CO2PerKmKg == 0 {
		spec.CO2PerKmKg = carCO2PerKmKg
	}
	c := &Car{core: newCore(KindCar, "v", spec, deps)}
	c.self = c
	c.start()
	return c
}

// PrivateCar reports whether the car belongs to a citizen.
func (c *Car) PrivateCar() bool { return c.spec.PrivateCar }

func (c *Car) canHandle(b *booking.Booking) bool {
	if c.spec.PrivateCar {
		return false
	}
	return b.Type == booking.TypeParcel || b.Type == booking.TypePassenger || b.Type == ""
}

// canHandle accepts everything; variants narrow it.
func (v *core) canHandle(*booking.Booking) bool { return true }

// handle starts serving b when idle, otherwise queues it.
func (v *core) handle(b *booking.Booking) error {
	if v.queued(b) || v.booking == b {
		return ErrAlreadyQueued
	}
	if v.booking == nil {
		v.serve(b)
		return nil
	}
	v.queue = append(v.queue, b)
	b.Queued(v.id, v.now())
	return nil
}

func (v *core) serve(b *booking.Booking) {
	v.booking = b
	b.Assign(v.id, v.now())
	v.setStatus(StatusToPickup)
	v.self.navigate(b.Pickup().Position)
}

// onStopped is the greedy stop handling of the base vehicle.
func (v *core) onStopped() {
	if v.booking == nil {
		return
	}
	switch v.status {
	case StatusToPickup:
		v.pickup()
	case StatusToDelivery:
		dest, _ := v.booking.Destination()
		if v.reached(dest.Position) {
			v.dropOff()
			return
		}
		// a detour to fetch a queued booking on the way
		v.pickupNearby()
		v.nextHop()
	}
}

// pickup waits for the scheduled departure and loads the booking.
func (v *core) pickup() {
	b := v.booking
	if dep, ok := b.Departure(v.now()); ok && dep.After(v.now()) {
		v.stopMovement()
		v.waitThen(dep, func() {
			if v.booking == b && v.status == StatusToPickup {
				v.load(b)
			}
		})
		return
	}
	v.load(b)
}

func (v *core) load(b *booking.Booking) {
	now := v.now()
	b.PickedUp(v.position, now)
	v.emit(EventPickup, b)
	if _, ok := b.Destination(); !ok {
		// nothing to carry, the request ends where it starts
		v.status = StatusToDelivery
		v.dropOff()
		return
	}
	v.cargo = append(v.cargo, b)
	v.emit(EventCargo, b)
	v.pickupNearby()
	v.setStatus(StatusToDelivery)
	v.nextHop()
}

// pickupNearby loads queued bookings waiting close to the vehicle while
// there is room.
func (v *core) pickupNearby() {
	for _, q := range append([]*booking.Booking{}, v.queue...) {
		if len(v.cargo) >= v.capacity() {
			return
		}
		if _, ok := q.Destination(); !ok {
			continue
		}
		if geo.Haversine(v.position, q.Pickup().Position) >= NearbyPickup && !v.headedFor(q.Pickup().Position) {
			continue
		}
		v.queue = remove(v.queue, q)
		now := v.now()
		q.Assign(v.id, now)
		q.PickedUp(v.position, now)
		v.cargo = append(v.cargo, q)
		v.emit(EventPickup, q)
		v.emit(EventCargo, q)
	}
}

// headedFor reports whether the last route was requested towards pos. The
// router may snap the end of that route away from pos.
func (v *core) headedFor(pos geo.Position) bool {
	return v.heading != nil && *v.heading == pos
}

// reached reports whether the vehicle stands at pos.
func (v *core) reached(pos geo.Position) bool {
	return geo.Haversine(v.position, pos) < ArrivalThreshold || v.headedFor(pos)
}

// nextHop heads for the next queued pickup when it is closer than the
// current destination and there is room for it, else for the destination.
func (v *core) nextHop() {
	dest, _ := v.booking.Destination()
	if len(v.queue) > 0 && len(v.cargo) < v.capacity() {
		next := v.queue[0].Pickup().Position
		if geo.Haversine(next, v.position) < geo.Haversine(dest.Position, v.position) {
			v.self.navigate(next)
			return
		}
	}
	v.self.navigate(dest.Position)
}

func (v *core) dropOff() {
	if b := v.booking; b != nil {
		b.Delivered(v.position, v.now())
		v.cargo = remove(v.cargo, b)
		v.delivered = append(v.delivered, b)
		v.booking = nil
		v.emit(EventDropOff, b)
	}
	v.emit(EventStatus, nil)
	v.pickNextFromCargo()
}

// pickNextFromCargo delivers the closest cargo first, then serves the queue,
// then returns to the origin.
func (v *core) pickNextFromCargo() {
	v.sortByDestination(v.cargo)
	v.emit(EventCargo, nil)
	if len(v.cargo) > 0 {
		v.booking = v.cargo[0]
		v.setStatus(StatusToDelivery)
		dest, _ := v.booking.Destination()
		v.self.navigate(dest.Position)
		return
	}
	v.sortByDestination(v.queue)
	if len(v.queue) > 0 {
		next := v.queue[0]
		v.queue = v.queue[1:]
		v.serve(next)
		return
	}
	v.setStatus(StatusReady)
	v.self.navigate(v.origin)
}

func (v *core) sortByDestination(list []*booking.Booking) {
	dist := func(b *booking.Booking) float64 {
		d, ok := b.Destination()
		if !ok {
			return geo.Haversine(v.position, b.Pickup().Position)
		}
		return geo.Haversine(v.position, d.Position)
	}
	sort.SliceStable(list, func(i, j int) bool { return dist(list[i]) < dist(list[j]) })
}
