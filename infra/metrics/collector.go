package metrics

import (
	"context"
	"sync"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/core/monitoring"
	"github.com/kilianp07/predictivemovement/core/vehicle"
	"github.com/kilianp07/predictivemovement/infra/logger"
	"github.com/kilianp07/predictivemovement/internal/eventbus"
)

// StartCollector subscribes to booking and vehicle events and saves them
// to sink. Every booking transition is recorded; vehicle snapshots are
// throttled to one per vehicle per interval of simulated time, except
// status changes which always pass. It stops when ctx is canceled and
// returns a function waiting for the collector goroutines.
func StartCollector(ctx context.Context, bookings *eventbus.TypedBus[booking.Event], vehicles *eventbus.TypedBus[vehicle.Event], sink coremetrics.TelemetrySink, interval time.Duration, log logger.Logger) (wait func()) {
	var wg sync.WaitGroup
	if sink == nil {
		return wg.Wait
	}
	log = logger.OrNop(log)
	if bookings != nil {
		sub := bookings.SubscribeLossless()
		wg.Add(1)
		go func() {
			defer wg.Done()
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
					rec := coremetrics.BookingRecord(ev.Booking.Snapshot(), ev.At)
					if err := sink.Save(ctx, coremetrics.CollectionBookings, rec); err != nil {
						log.Warnf("save booking %s: %v", rec.ID, err)
					}
				}
			}
		}()
	}
	if vehicles != nil {
		sub := vehicles.Subscribe()
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer monitoring.Recover()
			defer vehicles.Unsubscribe(sub)
			last := map[string]time.Time{}
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-sub:
					if !ok {
						return
					}
					id := ev.Vehicle.ID
					if prev, seen := last[id]; seen && ev.Kind != vehicle.EventStatus && ev.At.Sub(prev) < interval {
						continue
					}
					last[id] = ev.At
					rec := coremetrics.VehicleRecord(ev.Vehicle, ev.At)
					if err := sink.Save(ctx, coremetrics.CollectionVehicles, rec); err != nil {
						log.Warnf("save vehicle %s: %v", id, err)
					}
				}
			}
		}()
	}
	return wg.Wait
}
