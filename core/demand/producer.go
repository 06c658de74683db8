// Package demand generates bookings: citizens commuting by taxi or bus and
// a steady flow of parcels inside each kommun.
package demand

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
	"github.com/kilianp07/predictivemovement/core/clock"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/core/monitoring"
)

// Config tunes the producer.
type Config struct {
	Enabled bool `json:"enabled"`
	// BookingsPerHour is the parcel rate of every area, in simulated hours.
	BookingsPerHour float64 `json:"bookings_per_hour"`
	// Citizens is the number of commuters spread over the areas.
	Citizens int `json:"citizens"`
	// Seed makes the generated demand reproducible when non-zero.
	Seed uint64 `json:"seed"`
	// BusShare is the probability that a citizen takes the bus.
	BusShare float64 `json:"bus_share"`
	// IntentRate is the probability that a citizen reconsiders its plans
	// on a tick.
	IntentRate float64 `json:"intent_rate"`
	// LunchRate is the probability that a hungry citizen goes out.
	LunchRate float64 `json:"lunch_rate"`
	// Interval is the wall-clock time between two ticks.
	Interval time.Duration `json:"interval"`
	// LookupRetries bounds geocoder attempts for one lookup.
	LookupRetries int `json:"lookup_retries"`
	// LookupBackoff is the upper bound of the random delay between
	// geocoder attempts.
	LookupBackoff time.Duration `json:"lookup_backoff"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.BusShare == 0 {
		c.BusShare = 0.2
	}
	if c.IntentRate == 0 {
		c.IntentRate = 0.1
	}
	if c.LunchRate == 0 {
		c.LunchRate = 0.1
	}
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.LookupRetries <= 0 {
		c.LookupRetries = 3
	}
	if c.LookupBackoff <= 0 {
		c.LookupBackoff = 10 * time.Second
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.BookingsPerHour < 0 {
		return errors.New("demand: bookings_per_hour must be positive")
	}
	if c.Citizens < 0 {
		return errors.New("demand: citizens must be positive")
	}
	if c.BusShare < 0 || c.BusShare > 1 {
		return errors.New("demand: bus_share must be within [0,1]")
	}
	return nil
}

// Area is a kommun the producer draws positions in.
type Area struct {
	Name       string
	Center     geo.Position
	Population int
	Geometry   orb.Geometry
}

// Sink receives generated bookings.
type Sink interface {
	HandleBooking(b *booking.Booking) error
}

// Geocoder finds venues near a position.
type Geocoder interface {
	SearchOne(ctx context.Context, text string, near *geo.Position) (booking.Place, error)
}

// Producer emits bookings on the virtual clock.
type Producer struct {
	cfg      Config
	clock    *clock.Clock
	areas    []Area
	sink     Sink
	geocoder Geocoder
	log      logger.Logger

	mu       sync.Mutex
	rnd      *rand.Rand
	citizens []*Citizen
	last     time.Time
	owed     []float64
}

// NewProducer creates the citizens of every area.
func NewProducer(cfg Config, clk *clock.Clock, areas []Area, sink Sink, geocoder Geocoder, log logger.Logger) (*Producer, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(areas) == 0 {
		return nil, errors.New("demand: no areas")
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}
	p := &Producer{
		cfg:      cfg,
		clock:    clk,
		areas:    areas,
		sink:     sink,
		geocoder: geocoder,
		log:      logger.OrNop(log),
		rnd:      rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		last:     clk.Now(),
		owed:     make([]float64, len(areas)),
	}
	for i := 0; i < cfg.Citizens; i++ {
		a := p.pickArea()
		p.citizens = append(p.citizens, NewCitizen(fmt.Sprintf("Medborgare %d", i+1), a.Name, p.randomPosition(a), p.randomPosition(a)))
	}
	return p, nil
}

// Citizens returns the generated citizens.
func (p *Producer) Citizens() []*Citizen {
	out := make([]*Citizen, len(p.citizens))
	copy(out, p.citizens)
	return out
}

// Run ticks the producer every interval until ctx is done.
func (p *Producer) Run(ctx context.Context) {
	t := time.NewTicker(p.cfg.Interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			p.Tick(ctx)
		}
	}
}

// Tick produces the bookings due at the current virtual time.
func (p *Producer) Tick(ctx context.Context) {
	now := p.clock.Now()
	for _, b := range p.parcels(now) {
		p.emit(b)
	}
	for _, c := range p.citizens {
		if !p.chance(p.cfg.IntentRate) {
			continue
		}
		intent := IntentAt(now.Hour())
		if !c.changeIntent(intent) {
			continue
		}
		switch intent {
		case IntentGoToWork:
			p.emit(p.ride(c, c.Home, departing(c.Workplace, now.Add(time.Hour))))
		case IntentGoHome:
			p.emit(p.ride(c, departing(c.Workplace, now.Add(time.Hour)), c.Home))
		case IntentLunch:
			if p.chance(p.cfg.LunchRate) {
				go func() {
					defer monitoring.Recover()
					p.lunch(ctx, c, now)
				}()
			}
		}
	}
}

func (p *Producer) lunch(ctx context.Context, c *Citizen, now time.Time) {
	place, err := p.lookup(ctx, "restaurang", c.Workplace.Position)
	if err != nil {
		p.log.Warnf("no lunch place for %s: %v", c.ID, err)
		return
	}
	p.emit(p.ride(c, departing(c.Workplace, now.Add(time.Hour)), place))
	p.emit(p.ride(c, departing(place, now.Add(2*time.Hour)), c.Workplace))
}

// lookup asks the geocoder, retrying with a random backoff.
func (p *Producer) lookup(ctx context.Context, text string, near geo.Position) (booking.Place, error) {
	if p.geocoder == nil {
		return booking.Place{}, errors.New("no geocoder")
	}
	var err error
	for attempt := 1; attempt <= p.cfg.LookupRetries; attempt++ {
		var place booking.Place
		place, err = p.geocoder.SearchOne(ctx, text, &near)
		if err == nil {
			return place, nil
		}
		if attempt == p.cfg.LookupRetries {
			break
		}
		p.mu.Lock()
		wait := time.Duration(p.rnd.Int64N(int64(p.cfg.LookupBackoff)))
		p.mu.Unlock()
		select {
		case <-ctx.Done():
			return booking.Place{}, ctx.Err()
		case <-time.After(wait):
		}
	}
	return booking.Place{}, fmt.Errorf("lookup %q after %d attempts: %w", text, p.cfg.LookupRetries, err)
}

func (p *Producer) ride(c *Citizen, from, to booking.Place) *booking.Booking {
	typ := booking.TypePassenger
	if p.chance(p.cfg.BusShare) {
		typ = booking.TypePassengerBus
	}
	return booking.New(booking.Options{
		Type:        typ,
		Pickup:      from,
		Destination: &to,
		Passenger:   c,
	})
}

// parcels returns the parcels owed since the previous call.
func (p *Producer) parcels(now time.Time) []*booking.Booking {
	p.mu.Lock()
	defer p.mu.Unlock()
	elapsed := now.Sub(p.last)
	p.last = now
	if elapsed <= 0 || p.cfg.BookingsPerHour == 0 {
		return nil
	}
	var out []*booking.Booking
	for i, a := range p.areas {
		p.owed[i] += p.cfg.BookingsPerHour * elapsed.Hours()
		n := math.Floor(p.owed[i])
		p.owed[i] -= n
		for j := 0; j < int(n); j++ {
			to := booking.Place{Position: p.randomPositionLocked(a)}
			out = append(out, booking.New(booking.Options{
				Type:        booking.TypeParcel,
				Pickup:      booking.Place{Position: p.randomPositionLocked(a)},
				Destination: &to,
			}))
		}
	}
	return out
}

func (p *Producer) emit(b *booking.Booking) {
	if err := p.sink.HandleBooking(b); err != nil {
		p.log.Warnf("booking %s rejected: %v", b.ID, err)
	}
}

func (p *Producer) chance(prob float64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rnd.Float64() < prob
}

// pickArea draws an area weighted by population.
func (p *Producer) pickArea() Area {
	total := 0
	for _, a := range p.areas {
		total += max(a.Population, 1)
	}
	n := p.rnd.IntN(total)
	for _, a := range p.areas {
		n -= max(a.Population, 1)
		if n < 0 {
			return a
		}
	}
	return p.areas[len(p.areas)-1]
}

func (p *Producer) randomPosition(a Area) geo.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.randomPositionLocked(a)
}

// randomPositionLocked samples the bounding box of the area until a point
// falls inside it, or returns a point near the center.
func (p *Producer) randomPositionLocked(a Area) geo.Position {
	if a.Geometry != nil {
		b := a.Geometry.Bound()
		for i := 0; i < 100; i++ {
			pos := geo.Pos(
				b.Min.Lon()+p.rnd.Float64()*(b.Max.Lon()-b.Min.Lon()),
				b.Min.Lat()+p.rnd.Float64()*(b.Max.Lat()-b.Min.Lat()),
			)
			if geo.Contains(a.Geometry, pos) {
				return pos
			}
		}
	}
	return geo.AddMeters(a.Center, geo.Offset{
		X: (p.rnd.Float64()*2 - 1) * 2000,
		Y: (p.rnd.Float64()*2 - 1) * 2000,
	})
}

func departing(p booking.Place, at time.Time) booking.Place {
	p.DepartureTime = at.Format(booking.ClockLayout)
	return p
}
