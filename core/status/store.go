// Package status keeps the latest snapshot of every vehicle and booking.
package status

import (
	"context"
	"sort"
	"sync"

	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/monitoring"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

// Filter narrows listings. Empty fields match everything.
type Filter struct {
	Fleet  string
	Kommun string
	Status string
}

func (f Filter) match(fleet, kommun, status string) bool {
	if f.Fleet != "" && fleet != f.Fleet {
		return false
	}
	if f.Kommun != "" && kommun != f.Kommun {
		return false
	}
	if f.Status != "" && status != f.Status {
		return false
	}
	return true
}

type Store struct {
	mu       sync.RWMutex
	vehicles map[string]vehicle.Snapshot
	bookings map[string]booking.Snapshot
}

func NewStore() *Store {
	return &Store{
		vehicles: map[string]vehicle.Snapshot{},
		bookings: map[string]booking.Snapshot{},
	}
}

func (s *Store) SetVehicle(v vehicle.Snapshot) {
	s.mu.Lock()
	s.vehicles[v.ID] = v
	s.mu.Unlock()
}

func (s *Store) SetBooking(b booking.Snapshot) {
	s.mu.Lock()
	s.bookings[b.ID] = b
	s.mu.Unlock()
}

// Vehicles lists matching vehicles ordered by id.
func (s *Store) Vehicles(f Filter) []vehicle.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]vehicle.Snapshot, 0, len(s.vehicles))
	for _, v := range s.vehicles {
		if f.match(v.Fleet, v.Kommun, string(v.Status)) {
			res = append(res, v)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Bookings lists matching bookings ordered by id.
func (s *Store) Bookings(f Filter) []booking.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]booking.Snapshot, 0, len(s.bookings))
	for _, b := range s.bookings {
		if f.match(b.Fleet, b.Kommun, string(b.Status)) {
			res = append(res, b)
		}
	}
	sort.Slice(res, func(i, j int) bool { return res[i].ID < res[j].ID })
	return res
}

// Reset forgets every snapshot.
func (s *Store) Reset() {
	s.mu.Lock()
	s.vehicles = map[string]vehicle.Snapshot{}
	s.bookings = map[string]booking.Snapshot{}
	s.mu.Unlock()
}

// Follow keeps the store up to date until ctx is done. Bookings are followed
// losslessly, vehicle positions may be skipped under load.
func (s *Store) Follow(ctx context.Context, bookings *eventbus.TypedBus[booking.Event], vehicles *eventbus.TypedBus[vehicle.Event]) {
	if bookings != nil {
		sub := bookings.SubscribeLossless()
		go func() {
			defer monitoring.Recover()
			defer bookings.Unsubscribe(sub)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub:
					if !ok {
						return
					}
					s.SetBooking(ev.Booking.Snapshot())
				}
			}
		}()
	}
	if vehicles != nil {
		sub := vehicles.Subscribe()
		go func() {
			defer monitoring.Recover()
			defer vehicles.Unsubscribe(sub)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub:
					if !ok {
						return
					}
					s.SetVehicle(ev.Vehicle)
				}
			}
		}()
	}
}
