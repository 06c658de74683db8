package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/internal/stream"
)

// CentralConfig tunes the Central dispatcher.
type CentralConfig struct {
	// Window is how long bookings are collected before a round.
	Window time.Duration `json:"window"`
	// MaxBatch ends a window early once that many bookings arrived.
	MaxBatch int `json:"max_batch"`
	// RetryDelay separates a failed round from its retry.
	RetryDelay time.Duration `json:"retry_delay"`
}

// SetDefaults fills unset fields.
func (c *CentralConfig) SetDefaults() {
	if c.Window <= 0 {
		c.Window = 5 * time.Second
	}
	if c.MaxBatch <= 0 {
		c.MaxBatch = 100
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
}

// Assignment is a batch of bookings for one vehicle.
type Assignment struct {
	Vehicle  vehicle.Vehicle
	Bookings []*booking.Booking
}

// Distribute splits bookings between vehicles. With fewer bookings than
// vehicles everything goes to the first vehicle; otherwise the bookings are
// clustered into one group per vehicle.
func Distribute(vehicles []vehicle.Vehicle, bookings []*booking.Booking) ([]Assignment, error) {
	if len(vehicles) == 0 {
		return nil, ErrNoVehicles
	}
	if len(bookings) == 0 {
		return nil, nil
	}
	if len(bookings) < len(vehicles) {
		return []Assignment{{Vehicle: vehicles[0], Bookings: bookings}}, nil
	}
	clusters, err := geo.ClusterPositions(bookings, len(vehicles))
	if err != nil {
		return nil, fmt.Errorf("cluster %d bookings: %w", len(bookings), err)
	}
	out := make([]Assignment, 0, len(clusters))
	for i, c := range clusters {
		if len(c.Items) == 0 {
			continue
		}
		out = append(out, Assignment{Vehicle: vehicles[i], Bookings: c.Items})
	}
	return out, nil
}

// Central is the bulk dispatcher of generic fleets.
type Central struct {
	cfg CentralConfig
	log logger.Logger
}

// NewCentral returns a Central dispatcher.
func NewCentral(cfg CentralConfig, log logger.Logger) *Central {
	cfg.SetDefaults()
	return &Central{cfg: cfg, log: logger.OrNop(log)}
}

// Run dispatches unassigned bookings read from in to vehicles until ctx is
// done or in is closed. A failed round is retried for the bookings it left
// unassigned.
func (c *Central) Run(ctx context.Context, fleet string, vehicles []vehicle.Vehicle, in <-chan *booking.Booking) error {
	if len(vehicles) == 0 {
		c.log.Warnf("fleet %s has no vehicles, dispatch is not possible", fleet)
		return ErrNoVehicles
	}
	c.log.Infof("dispatch %d vehicles in %s", len(vehicles), fleet)
	unassigned := stream.Filter(ctx, in, func(b *booking.Booking) bool { return b.CarID() == "" })
	batches := stream.BufferTime(ctx, unassigned, c.cfg.Window, c.cfg.MaxBatch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-batches:
			if !ok {
				return nil
			}
			c.dispatchWithRetry(ctx, fleet, vehicles, batch)
		}
	}
}

func (c *Central) dispatchWithRetry(ctx context.Context, fleet string, vehicles []vehicle.Vehicle, batch []*booking.Booking) {
	for len(batch) > 0 {
		err := c.Dispatch(ctx, vehicles, batch)
		if err == nil {
			return
		}
		dispatchRetries.WithLabelValues("central").Inc()
		c.log.Errorf("dispatch error in %s, retrying in %s: %v", fleet, c.cfg.RetryDelay, err)
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.cfg.RetryDelay):
		}
		left := batch[:0:0]
		for _, b := range batch {
			if b.CarID() == "" {
				left = append(left, b)
			}
		}
		batch = left
	}
}

// Dispatch runs one round: bookings are distributed and each vehicle gets
// its share one booking at a time. Vehicles are served concurrently.
func (c *Central) Dispatch(ctx context.Context, vehicles []vehicle.Vehicle, bookings []*booking.Booking) error {
	assignments, err := Distribute(vehicles, bookings)
	if err != nil {
		return err
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, a := range assignments {
		g.Go(func() error {
			c.log.Debugf("plan %s (%s) received %d bookings", a.Vehicle.ID(), a.Vehicle.Fleet(), len(a.Bookings))
			for _, b := range a.Bookings {
				if b.CarID() != "" {
					continue
				}
				err := a.Vehicle.HandleBooking(gctx, b)
				if errors.Is(err, vehicle.ErrAlreadyQueued) {
					continue
				}
				if err != nil {
					return fmt.Errorf("vehicle %s booking %s: %w", a.Vehicle.ID(), b.ID, err)
				}
				bookingsDispatched.WithLabelValues("central").Inc()
			}
			return nil
		})
	}
	return g.Wait()
}
