// Package fleet composes vehicles into fleets, fleets into municipalities
// (kommuner) and municipalities into a region, and routes bookings from
// intake to the dispatcher that serves them.
package fleet

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/core/monitoring"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

// ErrNoEligibleFleet is returned when no fleet of a kommun can take a
// booking.
var ErrNoEligibleFleet = errors.New("no eligible fleet")

const (
	defaultHomeDelivery   = 0.15
	defaultReturnDelivery = 0.1
)

// TypeBus marks a fleet of buses. Bus fleets get their work from the
// stop assignment of the region instead of booking intake.
const TypeBus = "bus"

// Config describes one fleet.
type Config struct {
	Name        string  `json:"name"`
	Type        string  `json:"type"`
	Marketshare float64 `json:"marketshare"`
	// PercentageHomeDelivery is given in percent; zero means 15%.
	PercentageHomeDelivery float64 `json:"percentage_home_delivery"`
	HubAddress             string  `json:"hub_address"`
	// Hub overrides geocoding of HubAddress.
	Hub *geo.Position `json:"hub,omitempty"`
	// Vehicles maps a vehicle type name to the number of vehicles.
	Vehicles map[string]int `json:"vehicles"`
}

// Validate checks the fleet definition.
func (c Config) Validate() error {
	if c.Name == "" {
		return errors.New("fleet name is required")
	}
	if c.Marketshare < 0 {
		return fmt.Errorf("fleet %s: marketshare must be positive", c.Name)
	}
	for typ, n := range c.Vehicles {
		if n < 0 {
			return fmt.Errorf("fleet %s: negative count for %s", c.Name, typ)
		}
	}
	return nil
}

// Fleet is a named set of vehicles sharing a hub.
type Fleet struct {
	Name           string
	Type           string
	Kommun         string
	Marketshare    float64
	HomeDelivery   float64
	ReturnDelivery float64
	Hub            geo.Position

	vehicles   []vehicle.Vehicle
	central    *dispatch.Central
	unhandled  *eventbus.TypedBus[*booking.Booking]
	pending    <-chan *booking.Booking
	dispatched *eventbus.TypedBus[*booking.Booking]
	log        logger.Logger

	startOnce sync.Once
	closeOnce sync.Once
}

// New builds the fleet and its vehicles at the hub. Vehicle types are
// materialised in name order.
func New(cfg Config, kommun string, hub geo.Position, catalog *vehicle.Catalog, deps vehicle.Deps, central *dispatch.Central, log logger.Logger) (*Fleet, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	home := cfg.PercentageHomeDelivery / 100
	if home == 0 {
		home = defaultHomeDelivery
	}
	f := &Fleet{
		Name:           cfg.Name,
		Type:           cfg.Type,
		Kommun:         kommun,
		Marketshare:    cfg.Marketshare,
		HomeDelivery:   home,
		ReturnDelivery: defaultReturnDelivery,
		Hub:            hub,
		central:        central,
		unhandled:      eventbus.NewTyped[*booking.Booking](),
		dispatched:     eventbus.NewTyped[*booking.Booking](),
		log:            logger.OrNop(log),
	}
	types := make([]string, 0, len(cfg.Vehicles))
	for typ := range cfg.Vehicles {
		types = append(types, typ)
	}
	sort.Strings(types)
	for _, typ := range types {
		for i := 0; i < cfg.Vehicles[typ]; i++ {
			v, err := catalog.Build(typ, vehicle.Spec{Position: hub, Fleet: cfg.Name, Kommun: kommun}, deps)
			if err != nil {
				f.dispose()
				return nil, fmt.Errorf("fleet %s: %w", cfg.Name, err)
			}
			f.vehicles = append(f.vehicles, v)
		}
	}
	if !f.IsBus() && len(f.vehicles) > 0 {
		// bookings handed in before Start wait here
		f.pending = f.unhandled.SubscribeLossless()
	}
	return f, nil
}

// IsBus reports whether the fleet runs bus lines.
func (f *Fleet) IsBus() bool { return f.Type == TypeBus }

// Vehicles returns the roster of the fleet.
func (f *Fleet) Vehicles() []vehicle.Vehicle {
	out := make([]vehicle.Vehicle, len(f.vehicles))
	copy(out, f.vehicles)
	return out
}

// CanHandleBooking reports whether any vehicle of the fleet could take b.
func (f *Fleet) CanHandleBooking(b *booking.Booking) bool {
	for _, v := range f.vehicles {
		if v.CanHandleBooking(b) {
			return true
		}
	}
	return false
}

// Dispatched returns a stream of the bookings handed directly to a
// vehicle of this fleet.
func (f *Fleet) Dispatched() <-chan *booking.Booking {
	return f.dispatched.SubscribeLossless()
}

// HandleBooking takes b into the fleet. With a vehicle the booking goes
// straight to it; otherwise it waits for the next central dispatch round.
func (f *Fleet) HandleBooking(ctx context.Context, b *booking.Booking, v vehicle.Vehicle) error {
	b.SetFleet(f.Name)
	if v == nil {
		if f.pending == nil {
			f.log.Warnf("fleet %s has no dispatch, booking %s dropped", f.Name, b.ID)
			return nil
		}
		f.unhandled.Publish(b)
		return nil
	}
	f.dispatched.Publish(b)
	if err := v.HandleBooking(ctx, b); err != nil {
		return fmt.Errorf("fleet %s vehicle %s: %w", f.Name, v.ID(), err)
	}
	return nil
}

// Start runs the central dispatch of the fleet in the background. It is a
// no-op for bus fleets and fleets without vehicles.
func (f *Fleet) Start(ctx context.Context) {
	f.startOnce.Do(func() {
		if f.pending == nil {
			return
		}
		go func() {
			defer monitoring.Recover()
			if err := f.central.Run(ctx, f.Name, f.Vehicles(), f.pending); err != nil {
				f.log.Errorf("fleet %s dispatch stopped: %v", f.Name, err)
			}
		}()
	})
}

// Close disposes the vehicles and ends the booking streams.
func (f *Fleet) Close() {
	f.closeOnce.Do(f.dispose)
}

func (f *Fleet) dispose() {
	for _, v := range f.vehicles {
		v.Dispose()
	}
	f.unhandled.Close()
	f.dispatched.Close()
}
