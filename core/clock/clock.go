// Package clock provides the virtual time source every simulation component
// reads instead of the host clock.
package clock

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

// DefaultTick is the wall-clock interval between two virtual time steps.
const DefaultTick = 100 * time.Millisecond

// DefaultStartHour places the simulation start at 04:48 of the start day.
const DefaultStartHour = 4.8

// Teleport is the multiplier that makes movement jump to its end state.
var Teleport = math.Inf(1)

type waiter struct {
	at time.Time
	ch chan struct{}
}

// Clock is a scalable, pausable virtual clock.
type Clock struct {
	mu         sync.Mutex
	now        time.Time
	multiplier float64
	paused     bool
	tick       time.Duration
	waiters    []waiter
	ticks      *eventbus.TypedBus[time.Time]
}

// New returns a clock starting at start and running at multiplier times
// wall-clock speed.
func New(start time.Time, multiplier float64) *Clock {
	return &Clock{
		now:        start,
		multiplier: multiplier,
		tick:       DefaultTick,
		ticks:      eventbus.NewTyped[time.Time](),
	}
}

// StartOfDay returns midnight of day in its location plus hour hours.
func StartOfDay(day time.Time, hour float64) time.Time {
	y, m, d := day.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, day.Location())
	return midnight.Add(time.Duration(hour * float64(time.Hour)))
}

// Now returns the current virtual instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Multiplier returns the current speed factor.
func (c *Clock) Multiplier() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.multiplier
}

// Teleporting reports whether movement should skip interpolation.
func (c *Clock) Teleporting() bool {
	return math.IsInf(c.Multiplier(), 1)
}

// SetMultiplier changes the speed factor. Zero freezes time and +Inf
// switches to teleport mode; both release every pending waiter.
func (c *Clock) SetMultiplier(m float64) {
	c.mu.Lock()
	c.multiplier = m
	var release []waiter
	if m == 0 || math.IsInf(m, 1) {
		release = c.waiters
		c.waiters = nil
	}
	c.mu.Unlock()
	for _, w := range release {
		close(w.ch)
	}
}

// Pause stops time from advancing without touching the multiplier.
func (c *Clock) Pause() {
	c.mu.Lock()
	c.paused = true
	c.mu.Unlock()
}

// Resume continues from the instant the clock was paused at.
func (c *Clock) Resume() {
	c.mu.Lock()
	c.paused = false
	c.mu.Unlock()
}

// Paused reports whether the clock is paused.
func (c *Clock) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Reset moves the clock to start. Waiters whose deadline is reached are
// released.
func (c *Clock) Reset(start time.Time) {
	c.mu.Lock()
	c.now = start
	due := c.collectDue()
	c.mu.Unlock()
	for _, w := range due {
		close(w.ch)
	}
}

// Step advances virtual time by one wall-clock interval scaled by the
// multiplier. It is a no-op while paused, frozen or teleporting.
func (c *Clock) Step(wall time.Duration) time.Time {
	c.mu.Lock()
	if !c.paused && c.multiplier > 0 && !math.IsInf(c.multiplier, 1) {
		c.now = c.now.Add(time.Duration(float64(wall) * c.multiplier))
	}
	now := c.now
	due := c.collectDue()
	c.mu.Unlock()
	for _, w := range due {
		close(w.ch)
	}
	c.ticks.Publish(now)
	return now
}

// Advance moves virtual time forward by d regardless of the multiplier.
// Tests use it to drive the clock deterministically.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	c.now = c.now.Add(d)
	now := c.now
	due := c.collectDue()
	c.mu.Unlock()
	for _, w := range due {
		close(w.ch)
	}
	c.ticks.Publish(now)
	return now
}

func (c *Clock) collectDue() []waiter {
	var due []waiter
	kept := c.waiters[:0]
	for _, w := range c.waiters {
		if !w.at.After(c.now) {
			due = append(due, w)
		} else {
			kept = append(kept, w)
		}
	}
	c.waiters = kept
	return due
}

// Run steps the clock every tick until ctx is done.
func (c *Clock) Run(ctx context.Context) {
	t := time.NewTicker(c.tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.ticks.Close()
			return
		case <-t.C:
			c.Step(c.tick)
		}
	}
}

// Ticks returns a drop-tolerant stream of virtual instants, one per step.
func (c *Clock) Ticks() <-chan time.Time { return c.ticks.Subscribe() }

// StopTicks releases a channel obtained from Ticks.
func (c *Clock) StopTicks(ch <-chan time.Time) { c.ticks.Unsubscribe(ch) }

// WaitUntil blocks until virtual time reaches at or ctx is done. It returns
// immediately when the clock is frozen or teleporting.
func (c *Clock) WaitUntil(ctx context.Context, at time.Time) error {
	c.mu.Lock()
	if c.multiplier == 0 || math.IsInf(c.multiplier, 1) || !at.After(c.now) {
		c.mu.Unlock()
		return nil
	}
	w := waiter{at: at, ch: make(chan struct{})}
	c.waiters = append(c.waiters, w)
	c.mu.Unlock()
	select {
	case <-w.ch:
		return nil
	case <-ctx.Done():
		c.drop(w)
		return ctx.Err()
	}
}

// Wait blocks for d of virtual time.
func (c *Clock) Wait(ctx context.Context, d time.Duration) error {
	return c.WaitUntil(ctx, c.Now().Add(d))
}

func (c *Clock) drop(w waiter) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, x := range c.waiters {
		if x.ch == w.ch {
			c.waiters = append(c.waiters[:i], c.waiters[i+1:]...)
			return
		}
	}
}
