package eco

import (
	"github.com/kilianp07/predictivemovement/core/booking"
	"github.com/kilianp07/predictivemovement/core/metrics"
)

// FromDelivery returns the KPI contribution of a delivered booking record.
// Other records, and bookings without a fleet, report false.
func FromDelivery(collection string, r metrics.Record) (Record, bool) {
	if collection != metrics.CollectionBookings || r.Tags["status"] != string(booking.StatusDelivered) {
		return Record{}, false
	}
	fleet := r.Tags["fleet"]
	if fleet == "" {
		return Record{}, false
	}
	return Record{
		Fleet:      fleet,
		Date:       r.Time,
		DistanceKm: r.Fields["distance"] / 1000,
		CO2Kg:      r.Fields["co2"],
		Deliveries: 1,
	}, true
}
