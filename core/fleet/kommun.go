package fleet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/core/monitoring"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

// BusesPerCapita is the number of buses a kommun runs per inhabitant.
const BusesPerCapita = 100.0 / 80000

const defaultFleetRetry = 10 * time.Second

// Geocoder resolves free text addresses.
type Geocoder interface {
	SearchOne(ctx context.Context, text string, near *geo.Position) (booking.Place, error)
}

// KommunConfig describes one municipality.
type KommunConfig struct {
	ID         string       `json:"id"`
	Name       string       `json:"name"`
	Center     geo.Position `json:"center"`
	Population int          `json:"population"`
	Fleets     []Config     `json:"fleets"`
	// Geometry is the border of the kommun, usually decoded from GeoJSON.
	Geometry orb.Geometry `json:"-"`
}

// Validate checks the kommun definition.
func (c KommunConfig) Validate() error {
	if c.Name == "" {
		return errors.New("kommun name is required")
	}
	for _, f := range c.Fleets {
		if err := f.Validate(); err != nil {
			return fmt.Errorf("kommun %s: %w", c.Name, err)
		}
	}
	return nil
}

// Kommun owns the fleets and the private cars of a municipality.
type Kommun struct {
	ID         string
	Name       string
	Center     geo.Position
	Population int
	Geometry   orb.Geometry

	fleets    []*Fleet
	unhandled *eventbus.TypedBus[*booking.Booking]
	pending   <-chan *booking.Booking
	log       logger.Logger
	retry     time.Duration

	mu          sync.RWMutex
	privateCars []vehicle.Vehicle
}

// NewKommun builds the fleets of the kommun. Hub addresses are geocoded;
// a failed lookup places the hub at the kommun center.
func NewKommun(ctx context.Context, cfg KommunConfig, geocoder Geocoder, catalog *vehicle.Catalog, deps vehicle.Deps, central *dispatch.Central, log logger.Logger) (*Kommun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	k := &Kommun{
		ID:         cfg.ID,
		Name:       cfg.Name,
		Center:     cfg.Center,
		Population: cfg.Population,
		Geometry:   cfg.Geometry,
		unhandled:  eventbus.NewTyped[*booking.Booking](),
		log:        logger.OrNop(log),
		retry:      defaultFleetRetry,
	}
	k.pending = k.unhandled.SubscribeLossless()
	if k.Center.IsZero() && k.Geometry != nil {
		k.Center = geo.Centroid(k.Geometry)
	}
	for _, fc := range cfg.Fleets {
		hub := k.hub(ctx, fc, geocoder)
		f, err := New(fc, k.Name, hub, catalog, deps, central, log)
		if err != nil {
			k.Close()
			return nil, fmt.Errorf("kommun %s: %w", k.Name, err)
		}
		k.fleets = append(k.fleets, f)
	}
	return k, nil
}

func (k *Kommun) hub(ctx context.Context, fc Config, geocoder Geocoder) geo.Position {
	if fc.Hub != nil {
		return *fc.Hub
	}
	if fc.HubAddress == "" || geocoder == nil {
		return k.Center
	}
	center := k.Center
	place, err := geocoder.SearchOne(ctx, fc.HubAddress, &center)
	if err != nil {
		k.log.Errorf("hub address %q of %s not found, using kommun center: %v", fc.HubAddress, fc.Name, err)
		return k.Center
	}
	return place.Position
}

// Fleets returns the fleets of the kommun.
func (k *Kommun) Fleets() []*Fleet {
	out := make([]*Fleet, len(k.fleets))
	copy(out, k.fleets)
	return out
}

// Contains reports whether p lies inside the kommun border.
func (k *Kommun) Contains(p geo.Position) bool {
	if k.Geometry == nil {
		return false
	}
	return geo.Contains(k.Geometry, p)
}

// AddPrivateCar adds v to the private-car pool.
func (k *Kommun) AddPrivateCar(v vehicle.Vehicle) {
	k.mu.Lock()
	k.privateCars = append(k.privateCars, v)
	k.mu.Unlock()
}

// PrivateCars returns the private-car pool.
func (k *Kommun) PrivateCars() []vehicle.Vehicle {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]vehicle.Vehicle, len(k.privateCars))
	copy(out, k.privateCars)
	return out
}

// Cars returns the private cars followed by the vehicles of every fleet
// that is not a bus fleet.
func (k *Kommun) Cars() []vehicle.Vehicle {
	out := k.PrivateCars()
	for _, f := range k.fleets {
		if !f.IsBus() {
			out = append(out, f.vehicles...)
		}
	}
	return out
}

// Buses returns the vehicles of the bus fleets.
func (k *Kommun) Buses() []vehicle.Vehicle {
	var out []vehicle.Vehicle
	for _, f := range k.fleets {
		if f.IsBus() {
			out = append(out, f.vehicles...)
		}
	}
	return out
}

// FleetOf returns the fleet named name.
func (k *Kommun) FleetOf(name string) (*Fleet, bool) {
	for _, f := range k.fleets {
		if f.Name == name {
			return f, true
		}
	}
	return nil, false
}

// HandleBooking queues b for a fleet of the kommun.
func (k *Kommun) HandleBooking(b *booking.Booking) {
	b.SetKommun(k.Name)
	k.unhandled.Publish(b)
}

// PickFleet draws one fleet that can handle b, weighted by marketshare.
func (k *Kommun) PickFleet(b *booking.Booking) (*Fleet, error) {
	var pool []*Fleet
	for _, f := range k.fleets {
		if f.IsBus() || !f.CanHandleBooking(b) {
			continue
		}
		n := int(math.Ceil(f.Marketshare * 10))
		for i := 0; i < n; i++ {
			pool = append(pool, f)
		}
	}
	if len(pool) == 0 {
		return nil, fmt.Errorf("kommun %s booking %s: %w", k.Name, b.ID, ErrNoEligibleFleet)
	}
	return pool[rand.IntN(len(pool))], nil
}

func (k *Kommun) pickFleetWithRetry(ctx context.Context, b *booking.Booking) (*Fleet, error) {
	for {
		f, err := k.PickFleet(b)
		if err == nil {
			return f, nil
		}
		k.log.Warnf("%v, retrying in %s", err, k.retry)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(k.retry):
		}
	}
}

// Start runs the fleets and hands queued bookings to them. Every booking
// waits for an eligible fleet on its own, so one that no fleet can serve
// does not hold back the others.
func (k *Kommun) Start(ctx context.Context) {
	for _, f := range k.fleets {
		f.Start(ctx)
	}
	go func() {
		defer monitoring.Recover()
		for {
			select {
			case <-ctx.Done():
				return
			case b, ok := <-k.pending:
				if !ok {
					return
				}
				go func() {
					defer monitoring.Recover()
					k.place(ctx, b)
				}()
			}
		}
	}()
}

// place hands b to a fleet once one can take it.
func (k *Kommun) place(ctx context.Context, b *booking.Booking) {
	f, err := k.pickFleetWithRetry(ctx, b)
	if err != nil {
		return
	}
	if err := f.HandleBooking(ctx, b, nil); err != nil {
		k.log.Errorf("kommun %s: %v", k.Name, err)
	}
}

// Close disposes every vehicle of the kommun.
func (k *Kommun) Close() {
	k.unhandled.Close()
	for _, f := range k.fleets {
		f.Close()
	}
	for _, v := range k.PrivateCars() {
		v.Dispose()
	}
}
