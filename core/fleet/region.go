package fleet

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/core/geo"
	"github.com/kilianp07/predictivemovement/core/logger"
	"github.com/kilianp07/predictivemovement/core/monitoring"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
	"github.com/kilianp07/predictivemovement/internal/stream"
)

// Dispatcher solves the taxi and bus problems of a region.
type Dispatcher interface {
	DispatchTaxis(ctx context.Context, taxis []vehicle.Vehicle, bookings []*booking.Booking) (dispatch.TaxiPlan, error)
	DispatchBuses(ctx context.Context, buses []vehicle.Vehicle, trips []dispatch.Trip) (dispatch.BusPlan, error)
}

// Options tunes the region pipelines.
type Options struct {
	// TaxiWindow is how long taxi bookings are collected per round.
	TaxiWindow time.Duration `json:"taxi_window"`
	TaxiBatch  int           `json:"taxi_batch"`
	// TaxiSettle is the quiet time after a roster change before the new
	// roster is used.
	TaxiSettle time.Duration `json:"taxi_settle"`
	// TaxiCandidates is the number of nearest taxis offered per cluster.
	TaxiCandidates int           `json:"taxi_candidates"`
	StopRetryDelay time.Duration `json:"stop_retry_delay"`
	StopAttempts   int           `json:"stop_attempts"`
}

// SetDefaults fills unset fields.
func (o *Options) SetDefaults() {
	if o.TaxiWindow <= 0 {
		o.TaxiWindow = 5 * time.Second
	}
	if o.TaxiBatch <= 0 {
		o.TaxiBatch = 100
	}
	if o.TaxiSettle <= 0 {
		o.TaxiSettle = time.Second
	}
	if o.TaxiCandidates <= 0 {
		o.TaxiCandidates = 10
	}
	if o.StopRetryDelay <= 0 {
		o.StopRetryDelay = time.Second
	}
	if o.StopAttempts <= 0 {
		o.StopAttempts = 10
	}
}

// LineShape is the drawn path of one bus trip.
type LineShape struct {
	TripID     string         `json:"tripId"`
	LineNumber string         `json:"lineNumber"`
	From       string         `json:"from"`
	To         string         `json:"to"`
	Kommun     string         `json:"kommun"`
	Stops      []geo.Position `json:"stops"`
}

// Region ties the kommuner of an area together. It assigns bus trips,
// dispatches taxis region wide and routes bookings to the right intake.
type Region struct {
	ID   string
	Name string

	kommuner   []*Kommun
	trips      []dispatch.Trip
	riders     *Riders
	dispatcher Dispatcher
	opts       Options
	log        logger.Logger

	fleetByVehicle map[string]*Fleet

	requests *eventbus.TypedBus[*booking.Booking]
	manual   *eventbus.TypedBus[*booking.Booking]
	inbox    <-chan *booking.Booking
	manualIn <-chan *booking.Booking

	rosterMu sync.Mutex
	roster   []vehicle.Vehicle
	rosters  *eventbus.TypedBus[[]vehicle.Vehicle]
	rosterIn <-chan []vehicle.Vehicle
	taxis    atomic.Pointer[[]vehicle.Vehicle]

	startOnce sync.Once
	closeOnce sync.Once
}

// NewRegion assembles a region from its kommuner and bus stops. Riders may
// be nil; it should be the store the buses board from.
func NewRegion(id, name string, kommuner []*Kommun, stops []booking.Place, riders *Riders, d Dispatcher, opts Options, log logger.Logger) *Region {
	opts.SetDefaults()
	if riders == nil {
		riders = NewRiders()
	}
	riders.SetStops(stops)
	r := &Region{
		ID:             id,
		Name:           name,
		kommuner:       kommuner,
		trips:          GroupTrips(stops, kommuner),
		riders:         riders,
		dispatcher:     d,
		opts:           opts,
		log:            logger.OrNop(log),
		fleetByVehicle: map[string]*Fleet{},
		requests:       eventbus.NewTyped[*booking.Booking](),
		manual:         eventbus.NewTyped[*booking.Booking](),
		rosters:        eventbus.NewTyped[[]vehicle.Vehicle](),
	}
	r.inbox = r.requests.SubscribeLossless()
	r.manualIn = r.manual.SubscribeLossless()
	r.rosterIn = r.rosters.SubscribeLossless()
	for _, k := range kommuner {
		for _, f := range k.fleets {
			for _, v := range f.vehicles {
				r.fleetByVehicle[v.ID()] = f
			}
		}
		for _, v := range k.Cars() {
			if v.Kind() == vehicle.KindTaxi {
				r.RegisterTaxi(v)
			}
		}
	}
	return r
}

// Kommuner returns the kommuner of the region.
func (r *Region) Kommuner() []*Kommun {
	out := make([]*Kommun, len(r.kommuner))
	copy(out, r.kommuner)
	return out
}

// Trips returns the bus trips of the region.
func (r *Region) Trips() []dispatch.Trip {
	out := make([]dispatch.Trip, len(r.trips))
	copy(out, r.trips)
	return out
}

// Riders returns the bus rider store.
func (r *Region) Riders() *Riders { return r.riders }

// LineShapes returns one shape per bus trip.
func (r *Region) LineShapes() []LineShape {
	out := make([]LineShape, 0, len(r.trips))
	for _, t := range r.trips {
		s := LineShape{
			TripID:     t.ID,
			LineNumber: t.LineNumber,
			From:       t.First().Name,
			To:         t.Last().Name,
			Kommun:     t.Kommun,
		}
		for _, p := range t.Stops {
			s.Stops = append(s.Stops, p.Position)
		}
		out = append(out, s)
	}
	return out
}

// Taxis returns the current taxi roster.
func (r *Region) Taxis() []vehicle.Vehicle {
	r.rosterMu.Lock()
	defer r.rosterMu.Unlock()
	out := make([]vehicle.Vehicle, len(r.roster))
	copy(out, r.roster)
	return out
}

// RegisterTaxi adds v to the taxi roster.
func (r *Region) RegisterTaxi(v vehicle.Vehicle) {
	r.rosterMu.Lock()
	r.roster = append(r.roster, v)
	snapshot := make([]vehicle.Vehicle, len(r.roster))
	copy(snapshot, r.roster)
	r.rosterMu.Unlock()
	r.rosters.Publish(snapshot)
}

// KommunAt returns the kommun whose border contains p.
func (r *Region) KommunAt(p geo.Position) (*Kommun, bool) {
	for _, k := range r.kommuner {
		if k.Contains(p) {
			return k, true
		}
	}
	return nil, false
}

// HandleBooking routes b by type: bus riders wait at their stop, taxi
// passengers enter the region taxi dispatch and everything else goes to
// the kommun of the pickup.
func (r *Region) HandleBooking(b *booking.Booking) error {
	switch b.Type {
	case booking.TypePassengerBus:
		return r.riders.Add(b)
	case booking.TypePassenger:
		r.requests.Publish(b)
		return nil
	}
	k, ok := r.KommunAt(b.Pickup().Position)
	if !ok {
		if len(r.kommuner) == 0 {
			return fmt.Errorf("region %s booking %s: %w", r.Name, b.ID, ErrNoEligibleFleet)
		}
		k = r.nearestKommun(b.Pickup().Position)
	}
	k.HandleBooking(b)
	return nil
}

// ManualBooking queues b for the next taxi round.
func (r *Region) ManualBooking(b *booking.Booking) {
	r.manual.Publish(b)
}

func (r *Region) nearestKommun(p geo.Position) *Kommun {
	best := r.kommuner[0]
	for _, k := range r.kommuner[1:] {
		if geo.Haversine(p, k.Center) < geo.Haversine(p, best.Center) {
			best = k
		}
	}
	return best
}

// Start runs the kommuner, the bus stop assignment and the taxi dispatch
// until ctx is done.
func (r *Region) Start(ctx context.Context) {
	r.startOnce.Do(func() {
		for _, k := range r.kommuner {
			k.Start(ctx)
		}
		go func() {
			defer monitoring.Recover()
			if err := r.AssignStops(ctx); err != nil {
				r.log.Errorf("stop assignment in %s: %v", r.Name, err)
			}
		}()
		go func() {
			defer monitoring.Recover()
			for taxis := range stream.Debounce(ctx, r.rosterIn, r.opts.TaxiSettle) {
				r.taxis.Store(&taxis)
				r.log.Debugf("taxi roster of %s settled at %d", r.Name, len(taxis))
			}
		}()
		go func() {
			defer monitoring.Recover()
			r.runTaxis(ctx)
		}()
	})
}

// Close stops the intake streams and disposes every vehicle.
func (r *Region) Close() {
	r.closeOnce.Do(func() {
		r.requests.Close()
		r.manual.Close()
		r.rosters.Close()
		for _, k := range r.kommuner {
			k.Close()
		}
	})
}

// GroupTrips turns stops into trips. Stops sharing a trip id form a trip
// in their given order; trips of a single stop are dropped. A trip belongs
// to the kommun containing its first stop, trips outside every kommun are
// dropped.
func GroupTrips(stops []booking.Place, kommuner []*Kommun) []dispatch.Trip {
	var order []string
	byTrip := map[string][]booking.Place{}
	for _, s := range stops {
		if s.TripID == "" {
			continue
		}
		if _, ok := byTrip[s.TripID]; !ok {
			order = append(order, s.TripID)
		}
		byTrip[s.TripID] = append(byTrip[s.TripID], s)
	}
	var trips []dispatch.Trip
	for _, id := range order {
		group := byTrip[id]
		if len(group) < 2 {
			continue
		}
		for _, k := range kommuner {
			if !k.Contains(group[0].Position) {
				continue
			}
			trips = append(trips, dispatch.Trip{
				ID:         id,
				LineNumber: group[0].LineNumber,
				Kommun:     k.Name,
				Stops:      group,
			})
			break
		}
	}
	return trips
}

// StopsToBookings turns a stop sequence into one busstop booking per leg.
func StopsToBookings(stops []booking.Place) []*booking.Booking {
	var out []*booking.Booking
	for i := 1; i < len(stops); i++ {
		pickup, dest := stops[i-1], stops[i]
		line := pickup.LineNumber
		if line == "" {
			line = dest.LineNumber
		}
		out = append(out, booking.New(booking.Options{
			Type:        booking.TypeBusStop,
			Pickup:      pickup,
			Destination: &dest,
			LineNumber:  line,
		}))
	}
	return out
}

// AssignStops solves the bus trips kommun by kommun and hands the stops
// to the buses as busstop bookings.
func (r *Region) AssignStops(ctx context.Context) error {
	byKommun := map[string][]dispatch.Trip{}
	for _, t := range r.trips {
		byKommun[t.Kommun] = append(byKommun[t.Kommun], t)
	}
	var errs []error
	for _, k := range r.kommuner {
		trips, buses := byKommun[k.Name], k.Buses()
		if len(trips) == 0 || len(buses) == 0 {
			continue
		}
		plan, err := r.dispatchBuses(ctx, buses, trips)
		switch {
		case errors.Is(err, dispatch.ErrUnassigned):
			r.log.Warnf("%d trips in %s left without bus: %v", len(plan.Unassigned), k.Name, err)
		case err != nil:
			errs = append(errs, fmt.Errorf("kommun %s: %w", k.Name, err))
			continue
		}
		for _, a := range plan.Assignments {
			for _, b := range StopsToBookings(a.Stops) {
				if err := a.Bus.HandleBooking(ctx, b); err != nil {
					r.log.Errorf("bus %s stop booking %s: %v", a.Bus.ID(), b.ID, err)
				}
			}
		}
	}
	return errors.Join(errs...)
}

func (r *Region) dispatchBuses(ctx context.Context, buses []vehicle.Vehicle, trips []dispatch.Trip) (dispatch.BusPlan, error) {
	var (
		plan dispatch.BusPlan
		err  error
	)
	for attempt := 1; attempt <= r.opts.StopAttempts; attempt++ {
		plan, err = r.dispatcher.DispatchBuses(ctx, buses, trips)
		if err == nil || errors.Is(err, dispatch.ErrUnassigned) {
			return plan, err
		}
		r.log.Warnf("bus dispatch attempt %d/%d failed: %v", attempt, r.opts.StopAttempts, err)
		select {
		case <-ctx.Done():
			return plan, ctx.Err()
		case <-time.After(r.opts.StopRetryDelay):
		}
	}
	return plan, err
}

func (r *Region) runTaxis(ctx context.Context) {
	in := stream.Merge(ctx, r.manualIn, r.inbox)
	pending := stream.Filter(ctx, in, func(b *booking.Booking) bool {
		return !b.Assigned() && b.Type != booking.TypePassengerBus
	})
	for batch := range stream.BufferTime(ctx, pending, r.opts.TaxiWindow, r.opts.TaxiBatch) {
		taxis := r.settledTaxis()
		if len(taxis) == 0 {
			r.log.Warnf("no taxis in %s for %d bookings", r.Name, len(batch))
			r.resubmit(batch)
			continue
		}
		r.DispatchTaxiBatch(ctx, taxis, batch)
	}
}

func (r *Region) settledTaxis() []vehicle.Vehicle {
	if p := r.taxis.Load(); p != nil {
		return *p
	}
	return nil
}

// DispatchTaxiBatch runs one taxi round. Bookings are clustered, each
// cluster is offered to its nearest taxis with free seats and assigned
// bookings go to the taxi through its fleet. Bookings the round could not
// place are queued as manual bookings.
func (r *Region) DispatchTaxiBatch(ctx context.Context, taxis []vehicle.Vehicle, batch []*booking.Booking) {
	for _, c := range clusterBookings(taxis, batch) {
		var candidates []vehicle.Vehicle
		for _, t := range nearestVehicles(taxis, c.Center, r.opts.TaxiCandidates) {
			if pc, ok := t.(vehicle.PassengerCarrier); !ok || pc.CanPickupMorePassengers() {
				candidates = append(candidates, t)
			}
		}
		plan, err := r.dispatcher.DispatchTaxis(ctx, candidates, c.Items)
		switch {
		case errors.Is(err, dispatch.ErrUnassigned):
			r.log.Warnf("taxi dispatch in %s: %v", r.Name, err)
			r.resubmit(plan.Unassigned)
		case err != nil:
			r.log.Errorf("taxi dispatch in %s failed, %d bookings back to manual queue: %v", r.Name, len(c.Items), err)
			r.resubmit(c.Items)
			continue
		}
		for _, a := range plan.Assignments {
			for _, b := range a.Bookings {
				if err := r.assign(ctx, b, a.Taxi); err != nil {
					r.log.Errorf("assign %s to %s: %v", b.ID, a.Taxi.ID(), err)
				}
			}
		}
	}
}

func (r *Region) assign(ctx context.Context, b *booking.Booking, taxi vehicle.Vehicle) error {
	if f, ok := r.fleetByVehicle[taxi.ID()]; ok {
		return f.HandleBooking(ctx, b, taxi)
	}
	return taxi.HandleBooking(ctx, b)
}

func (r *Region) resubmit(bookings []*booking.Booking) {
	for _, b := range bookings {
		r.manual.Publish(b)
	}
}

// clusterBookings keeps small batches whole and otherwise splits them into
// max(5, n/10) clusters.
func clusterBookings(taxis []vehicle.Vehicle, batch []*booking.Booking) []geo.Cluster[*booking.Booking] {
	n := len(batch)
	if n == 0 {
		return nil
	}
	k := max(5, int(math.Ceil(float64(n)/10)))
	whole := []geo.Cluster[*booking.Booking]{{Center: batch[0].Location(), Items: batch}}
	if n < len(taxis) || n < k {
		return whole
	}
	clusters, err := geo.ClusterPositions(batch, k)
	if err != nil {
		return whole
	}
	return clusters
}

// nearestVehicles returns the n vehicles closest to p.
func nearestVehicles(vs []vehicle.Vehicle, p geo.Position, n int) []vehicle.Vehicle {
	type ranked struct {
		v vehicle.Vehicle
		d float64
	}
	list := make([]ranked, 0, len(vs))
	for _, v := range vs {
		list = append(list, ranked{v: v, d: geo.Haversine(p, v.Position())})
	}
	sort.SliceStable(list, func(i, j int) bool { return list[i].d < list[j].d })
	if len(list) > n {
		list = list[:n]
	}
	out := make([]vehicle.Vehicle, len(list))
	for i, r := range list {
		out[i] = r.v
	}
	return out
}
