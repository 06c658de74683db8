package fleet

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/geo"
)

// ErrNoStop is returned when no bus stop matches a rider.
var ErrNoStop = errors.New("no bus stop found")

// NearestBusStop returns the stop closest to pos. With a line number only
// stops of that line are considered.
func NearestBusStop(stops []booking.Place, line string, pos geo.Position) (booking.Place, bool) {
	best, found := booking.Place{}, false
	bestDist := 0.0
	for _, s := range stops {
		if line != "" && s.LineNumber != line {
			continue
		}
		d := geo.Haversine(pos, s.Position)
		if !found || d < bestDist {
			best, bestDist, found = s, d, true
		}
	}
	if !found {
		return booking.Place{}, false
	}
	return booking.Place{StopID: best.StopID, Position: best.Position, LineNumber: best.LineNumber, Name: best.Name}, true
}

// Riders keeps the bus passengers waiting at stops. Buses board them
// through Board.
type Riders struct {
	mu      sync.Mutex
	stops   []booking.Place
	waiting map[string][]*booking.Booking
}

// NewRiders returns an empty rider store.
func NewRiders() *Riders {
	return &Riders{waiting: map[string][]*booking.Booking{}}
}

// SetStops replaces the known bus stops.
func (r *Riders) SetStops(stops []booking.Place) {
	r.mu.Lock()
	r.stops = stops
	r.mu.Unlock()
}

// Add moves the pickup of b to the nearest stop and its destination to the
// nearest stop of the same line, then lets b wait there.
func (r *Riders) Add(b *booking.Booking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	from, ok := NearestBusStop(r.stops, "", b.Pickup().Position)
	if !ok {
		return fmt.Errorf("booking %s pickup: %w", b.ID, ErrNoStop)
	}
	target := from.Position
	if d, ok := b.Destination(); ok {
		target = d.Position
	}
	to, ok := NearestBusStop(r.stops, from.LineNumber, target)
	if !ok {
		return fmt.Errorf("booking %s destination: %w", b.ID, ErrNoStop)
	}
	b.LineNumber = from.LineNumber
	b.SetPickup(from)
	b.SetDestination(to)
	r.waiting[from.StopID] = append(r.waiting[from.StopID], b)
	return nil
}

// Waiting returns the number of riders not yet boarded.
func (r *Riders) Waiting() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, list := range r.waiting {
		n += len(list)
	}
	return n
}

// Board hands up to max riders of line waiting at stopID. Riders are
// boarded in arrival order.
func (r *Riders) Board(line, stopID string, _ geo.Position, max int) []*booking.Booking {
	if max <= 0 {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.waiting[stopID]
	var out, left []*booking.Booking
	for _, b := range list {
		if len(out) < max && (line == "" || b.LineNumber == line) {
			out = append(out, b)
			continue
		}
		left = append(left, b)
	}
	if len(left) == 0 {
		delete(r.waiting, stopID)
	} else {
		r.waiting[stopID] = left
	}
	return out
}

// Lines returns the distinct line numbers of the known stops.
func (r *Riders) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := map[string]bool{}
	var out []string
	for _, s := range r.stops {
		if s.LineNumber != "" && !seen[s.LineNumber] {
			seen[s.LineNumber] = true
			out = append(out, s.LineNumber)
		}
	}
	sort.Strings(out)
	return out
}
