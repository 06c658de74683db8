package vehicle

import (
	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

const busCO2PerKmKg = 1.3

// Bus drives a line stop by stop. Each stop pair arrives as a busstop
// booking; riders waiting at a stop board when the bus leaves it.
type Bus struct {
	*core
	line      string
	finalStop string
	home      geo.Position
}

// NewBus creates and starts a bus.
func NewBus(spec Spec, deps Deps) *Bus {
	if spec.CO2PerKmKg == 0 {
		spec.CO2PerKmKg = busCO2PerKmKg
	}
	b := &Bus{
		core:      newCore(KindBus, "b", spec, deps),
		line:      spec.LineNumber,
		finalStop: spec.FinalStop,
		home:      spec.Position,
	}
	if spec.StartPosition != nil {
		b.home = *spec.StartPosition
	}
	b.self = b
	b.start()
	return b
}

// LineNumber returns the line currently driven.
func (b *Bus) LineNumber() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.line
}

// Reset empties the queue and puts the bus back at its start.
func (b *Bus) Reset() {
	b.post(func() {
		b.stopMovement()
		b.routeSeq++
		b.waitSeq++
		b.queue = nil
		b.booking = nil
		b.heading = nil
		b.position = b.home
		b.setStatus(StatusReady)
	})
}

func (b *Bus) canHandle(bk *booking.Booking) bool {
	return bk.Type == booking.TypeBusStop || bk.Type == booking.TypeParcel
}

func (b *Bus) handle(bk *booking.Booking) error {
	if contains(b.queue, bk) || contains(b.cargo, bk) || b.booking == bk {
		return ErrAlreadyQueued
	}
	b.queue = append(b.queue, bk)
	bk.Queued(b.id, b.now())
	b.emit(EventCargo, bk)
	if b.booking == nil {
		b.pickNextFromQueue()
	}
	return nil
}

// pickNextFromQueue drives to the first stop of the next queued leg.
func (b *Bus) pickNextFromQueue() {
	if len(b.queue) == 0 {
		if b.status != StatusReady {
			b.setStatus(StatusReady)
		}
		return
	}
	next := b.queue[0]
	b.queue = b.queue[1:]
	b.booking = next
	next.Assign(b.id, b.now())
	if next.LineNumber != "" {
		b.line = next.LineNumber
	}
	b.setStatus(StatusToPickup)
	b.self.navigate(next.Pickup().Position)
}

func (b *Bus) onStopped() {
	if b.booking == nil {
		return
	}
	switch b.status {
	case StatusToPickup:
		bk := b.booking
		dep, ok := bk.Departure(b.now())
		if !ok {
			dep = b.now()
		}
		b.waitThen(dep, func() {
			if b.booking == bk && b.status == StatusToPickup {
				b.leaveStop(bk)
			}
		})
	case StatusToDelivery:
		b.arriveAtStop(b.booking)
	}
}

// leaveStop boards what waits at the stop and heads for the next one.
func (b *Bus) leaveStop(bk *booking.Booking) {
	now := b.now()
	bk.PickedUp(b.position, now)
	b.emit(EventPickup, bk)
	if bk.Type != booking.TypeBusStop {
		b.cargo = append(b.cargo, bk)
	}
	if b.deps.Riders != nil {
		free := b.passengerCap - len(b.passengers)
		if free > 0 {
			for _, r := range b.deps.Riders.Board(b.line, bk.Pickup().StopID, b.position, free) {
				r.Assign(b.id, now)
				r.PickedUp(b.position, now)
				b.passengers = append(b.passengers, r)
				b.emit(EventPickup, r)
			}
		}
	}
	b.emit(EventCargo, bk)
	b.setStatus(StatusToDelivery)
	dest, ok := bk.Destination()
	if !ok {
		b.arriveAtStop(bk)
		return
	}
	b.self.navigate(dest.Position)
}

// arriveAtStop lets out riders bound for this stop and finishes the leg.
func (b *Bus) arriveAtStop(bk *booking.Booking) {
	now := b.now()
	dest, _ := bk.Destination()
	for _, r := range append([]*booking.Booking{}, b.passengers...) {
		rd, ok := r.Destination()
		if !ok {
			continue
		}
		if (dest.StopID != "" && rd.StopID == dest.StopID) || geo.Haversine(rd.Position, b.position) < ArrivalThreshold {
			b.passengers = remove(b.passengers, r)
			r.Delivered(b.position, now)
			b.delivered = append(b.delivered, r)
			b.emit(EventDropOff, r)
		}
	}
	bk.Delivered(b.position, now)
	b.cargo = remove(b.cargo, bk)
	b.delivered = append(b.delivered, bk)
	b.booking = nil
	b.emit(EventDropOff, bk)
	b.emit(EventCargo, nil)
	b.pickNextFromQueue()
}

func (b *Bus) fillSnapshot(s *Snapshot) {
	s.LineNumber = b.line
}
