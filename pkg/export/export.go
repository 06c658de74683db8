// Package export writes booking snapshots for offline analysis.
package export

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"strconv"
	"time"

	"github.com/kilianp07/predictivemovement/core/booking"
)

var header = []string{
	"id", "type", "status", "fleet", "kommun", "car_id",
	"pickup_lon", "pickup_lat", "destination_lon", "destination_lat",
	"queued", "delivered", "delivery_time_s", "distance_m", "co2_kg", "cost",
}

// WriteJSON writes the bookings to w as a JSON array.
func WriteJSON(w io.Writer, bookings []booking.Snapshot) error {
	return json.NewEncoder(w).Encode(bookings)
}

// WriteCSV writes one row per booking. Missing times and destinations are
// left empty.
func WriteCSV(w io.Writer, bookings []booking.Snapshot) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, b := range bookings {
		destLon, destLat := "", ""
		if b.Destination != nil {
			destLon = float(b.Destination.Position.Lon)
			destLat = float(b.Destination.Position.Lat)
		}
		rec := []string{
			b.ID,
			string(b.Type),
			string(b.Status),
			b.Fleet,
			b.Kommun,
			b.CarID,
			float(b.Pickup.Position.Lon),
			float(b.Pickup.Position.Lat),
			destLon,
			destLat,
			stamp(b.Queued),
			stamp(b.DeliveredDateTime),
			float(b.DeliveryTime),
			float(b.Distance),
			float(b.CO2),
			float(b.Cost),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func float(v float64) string { return strconv.FormatFloat(v, 'f', -1, 64) }

func stamp(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
