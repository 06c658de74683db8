package vehicle

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/core/monitoring"
	"github.com/kilianp07/predictivemovement/internal/id"
)

// behaviour holds the hooks a variant may override. The shared base calls
// them through self so a Taxi's stop is handled as a Taxi's.
type behaviour interface {
	canHandle(b *booking.Booking) bool
	handle(b *booking.Booking) error
	onStopped()
	navigate(pos geo.Position)
	co2For(km float64) float64
	afterMove()
	fillSnapshot(s *Snapshot)
}

// core is the state and machinery shared by every variant. Fields below mu
// are only touched from the vehicle goroutine, which holds mu while running
// a command.
type core struct {
	self behaviour
	id   string
	kind Kind
	spec Spec
	deps Deps
	log  logger.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	box     *mailbox
	dispose sync.Once

	mu           sync.RWMutex
	position     geo.Position
	origin       geo.Position
	heading      *geo.Position
	status       Status
	booking      *booking.Booking
	queue        []*booking.Booking
	cargo        []*booking.Booking
	delivered    []*booking.Booking
	passengers   []*booking.Booking
	parcelCap    int
	passengerCap int
	weight       float64
	co2PerKmKg   float64
	co2          float64
	distance     float64
	cost         float64
	speed        float64
	bearing      float64
	ema          float64
	lastUpdate   time.Time

	routeSeq     uint64
	moveSeq      uint64
	moveCancel   context.CancelFunc
	remaining    []geo.Point
	routeStarted time.Time
	waitSeq      uint64
}

func newCore(kind Kind, prefix string, spec Spec, deps Deps) *core {
	deps = deps.withDefaults()
	if spec.ID == "" {
		spec.ID = id.Prefixed(prefix)
	}
	if spec.Weight == 0 {
		spec.Weight = defaultWeight
	}
	if spec.CO2PerKmKg == 0 {
		spec.CO2PerKmKg = defaultCO2PerKmKg
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &core{
		id:           spec.ID,
		kind:         kind,
		spec:         spec,
		deps:         deps,
		log:          deps.Logger,
		ctx:          ctx,
		cancel:       cancel,
		box:          newMailbox(),
		position:     spec.Position,
		origin:       spec.Position,
		status:       StatusReady,
		parcelCap:    spec.ParcelCapacity,
		passengerCap: spec.PassengerCapacity,
		weight:       spec.Weight,
		co2PerKmKg:   spec.CO2PerKmKg,
	}
	c.self = c
	return c
}

func (v *core) start() {
	go v.loop()
}

func (v *core) loop() {
	defer monitoring.Recover()
	for {
		select {
		case <-v.ctx.Done():
			return
		case <-v.box.signal:
		}
		for _, fn := range v.box.take() {
			if v.ctx.Err() != nil {
				return
			}
			v.mu.Lock()
			fn()
			v.mu.Unlock()
		}
	}
}

// post queues fn on the vehicle goroutine. It never blocks.
func (v *core) post(fn func()) {
	if v.ctx.Err() != nil {
		return
	}
	v.box.post(fn)
}

// call runs fn on the vehicle goroutine and waits for its result.
func (v *core) call(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	v.post(func() { done <- fn() })
	select {
	case err := <-done:
		return err
	case <-v.ctx.Done():
		return ErrDisposed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (v *core) now() time.Time { return v.deps.Clock.Now() }

func (v *core) ID() string    { return v.id }
func (v *core) Kind() Kind    { return v.kind }
func (v *core) Fleet() string { return v.spec.Fleet }

func (v *core) Position() geo.Position {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.position
}

func (v *core) Status() Status {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.status
}

// Location implements geo.Locatable.
func (v *core) Location() geo.Position { return v.Position() }

// QueueLength returns the number of bookings waiting in the queue.
func (v *core) QueueLength() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.queue)
}

func (v *core) HandleBooking(ctx context.Context, b *booking.Booking) error {
	return v.call(ctx, func() error { return v.self.handle(b) })
}

func (v *core) CanHandleBooking(b *booking.Booking) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.self.canHandle(b)
}

func (v *core) NavigateTo(pos geo.Position) {
	v.post(func() { v.self.navigate(pos) })
}

// Dispose stops the vehicle: movement, pending waits and queued commands
// are abandoned. It is safe to call more than once.
func (v *core) Dispose() {
	v.dispose.Do(func() {
		v.cancel()
		v.log.Debugf("vehicle %s disposed", v.id)
	})
}

func (v *core) capacity() int {
	c := v.parcelCap + v.passengerCap
	if c <= 0 {
		return 1
	}
	return c
}

func (v *core) cargoWeight() float64 {
	var w float64
	for _, b := range v.cargo {
		w += b.Weight
	}
	return w
}

func (v *core) queued(b *booking.Booking) bool {
	for _, q := range v.queue {
		if q == b {
			return true
		}
	}
	for _, c := range v.cargo {
		if c == b {
			return true
		}
	}
	return false
}

func remove(list []*booking.Booking, b *booking.Booking) []*booking.Booking {
	for i, x := range list {
		if x == b {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

func (v *core) setStatus(s Status) {
	v.status = s
	v.emit(EventStatus, nil)
}

func (v *core) emit(kind EventKind, b *booking.Booking) {
	if v.deps.Events == nil {
		return
	}
	ev := Event{Kind: kind, Vehicle: v.snapshotLocked(), At: v.now()}
	if b != nil {
		ev.BookingID = b.ID
	}
	v.deps.Events.Publish(ev)
}

// navigate is the road navigation: a route is fetched in the background and
// the movement starts when it arrives. Routing errors are retried forever.
func (v *core) navigate(pos geo.Position) {
	v.heading = &pos
	v.routeSeq++
	seq := v.routeSeq
	if geo.Haversine(v.position, pos) < ArrivalThreshold {
		v.stopMovement()
		v.post(func() {
			if seq == v.routeSeq {
				v.stopped()
			}
		})
		return
	}
	from := v.position
	go v.fetchRoute(seq, from, pos)
}

func (v *core) fetchRoute(seq uint64, from, to geo.Position) {
	defer monitoring.Recover()
	for {
		route, err := v.deps.Router.Route(v.ctx, from, to)
		if err == nil && len(route.Legs) == 0 {
			err = fmt.Errorf("%w from %s to %s", ErrNoRoute, from, to)
		}
		if err == nil {
			v.post(func() { v.startRoute(seq, route, geo.RoadSpeedFactor) })
			return
		}
		if v.ctx.Err() != nil {
			return
		}
		v.log.Warnf("vehicle %s route error, retrying in %s: %v", v.id, v.deps.RetryDelay, err)
		select {
		case <-v.ctx.Done():
			return
		case <-time.After(v.deps.RetryDelay):
		}
	}
}

func (v *core) startRoute(seq uint64, route geo.Route, speedFactor float64) {
	if seq != v.routeSeq {
		return
	}
	v.simulate(geo.ExtractPoints(route, speedFactor), v.now())
}

// simulate moves the vehicle along points. In teleport mode the movement
// completes at once with the same accounting as a ticked run.
func (v *core) simulate(points []geo.Point, started time.Time) {
	v.stopMovement()
	v.moveSeq++
	seq := v.moveSeq
	v.remaining = points
	v.routeStarted = started
	if v.deps.Clock.Teleporting() {
		v.finishMovement()
		return
	}
	ctx, cancel := context.WithCancel(v.ctx)
	v.moveCancel = cancel
	ticks := v.deps.Clock.Ticks()
	go func() {
		defer monitoring.Recover()
		defer v.deps.Clock.StopTicks(ticks)
		for {
			select {
			case <-ctx.Done():
				return
			case now, ok := <-ticks:
				if !ok {
					return
				}
				v.post(func() { v.advance(seq, now) })
			}
		}
	}()
}

func (v *core) advance(seq uint64, now time.Time) {
	if seq != v.moveSeq || v.remaining == nil {
		return
	}
	if v.deps.Clock.Teleporting() {
		v.finishMovement()
		return
	}
	if now.Before(v.routeStarted) {
		return
	}
	p := geo.Interpolate(v.routeStarted, now, v.remaining)
	v.updatePosition(p.Position, p.Skipped, p.Speed, now)
	v.remaining = p.Remaining
	if p.Done {
		v.stopMovement()
		v.stopped()
	}
}

func (v *core) finishMovement() {
	p := geo.Finish(v.remaining)
	now := v.now()
	v.updatePosition(p.Position, p.Skipped, 0, now)
	v.stopMovement()
	v.stopped()
}

// stopMovement cancels the active movement, if any.
func (v *core) stopMovement() {
	if v.moveCancel != nil {
		v.moveCancel()
		v.moveCancel = nil
	}
	v.remaining = nil
	v.moveSeq++
}

// updatePosition applies a movement step. Distance, CO2 and cost accrue
// from fully passed route points only.
func (v *core) updatePosition(pos geo.Position, passed []geo.Point, speed float64, now time.Time) {
	last := v.position
	var meters, seconds float64
	for _, p := range passed {
		meters += p.Meters
		seconds += p.Duration
	}
	km, h := meters/1000, seconds/3600
	co2 := v.self.co2For(km)
	cost := h * CostPerHour
	v.co2 += co2
	v.distance += km
	v.cost += cost
	if h > 0 {
		v.speed = math.Round(km / h)
	} else {
		v.speed = speed
	}
	v.position = pos
	v.lastUpdate = now
	if v.heading != nil {
		v.ema = geo.Haversine(*v.heading, pos)
	}
	v.self.afterMove()
	if pos == last {
		return
	}
	v.bearing = geo.Bearing(last, pos)
	v.emit(EventMoved, nil)
	if meters <= 0 {
		return
	}
	riders := append(append([]*booking.Booking{}, v.cargo...), v.passengers...)
	if len(riders) == 0 {
		return
	}
	n := float64(len(riders))
	for _, b := range riders {
		b.Moved(pos, meters, co2/n, cost/n, now)
	}
}

// stopped runs when a movement ends.
func (v *core) stopped() {
	v.speed = 0
	v.emit(EventStopped, nil)
	v.self.onStopped()
}

// waitThen runs fn on the vehicle goroutine once the virtual clock reaches
// at. Another waitThen or a disposal cancels it.
func (v *core) waitThen(at time.Time, fn func()) {
	v.waitSeq++
	seq := v.waitSeq
	if !at.After(v.now()) {
		fn()
		return
	}
	go func() {
		defer monitoring.Recover()
		if err := v.deps.Clock.WaitUntil(v.ctx, at); err != nil {
			return
		}
		v.post(func() {
			if seq == v.waitSeq {
				fn()
			}
		})
	}()
}

// Default hooks. The plain car uses them as they are.

func (v *core) co2For(km float64) float64 { return km * v.co2PerKmKg }

func (v *core) afterMove() {}

func (v *core) fillSnapshot(*Snapshot) {}

type mailbox struct {
	mu     sync.Mutex
	fns    []func()
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) post(fn func()) {
	m.mu.Lock()
	m.fns = append(m.fns, fn)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) take() []func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	fns := m.fns
	m.fns = nil
	return fns
}
