package metrics

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
)

// PromSink exposes telemetry as Prometheus metrics.
type PromSink struct {
	bookings     *prometheus.CounterVec
	deliveryTime *prometheus.HistogramVec
	vehicleCO2   *prometheus.GaugeVec
	vehicleDist  *prometheus.GaugeVec
	vehicleQueue *prometheus.GaugeVec
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(reg prometheus.Registerer) (*PromSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	bookings := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "fleet_bookings_total",
		Help: "Booking records by status",
	}, []string{"status", "type", "fleet"})
	deliveryTime := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fleet_booking_delivery_seconds",
		Help:    "Simulated time between booking assignment and delivery",
		Buckets: []float64{300, 900, 1800, 3600, 7200, 14400, 28800},
	}, []string{"type", "fleet"})
	co2 := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_vehicle_co2_kg",
		Help: "Accumulated CO2 emitted per vehicle",
	}, []string{"vehicle_id", "kind", "fleet"})
	dist := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_vehicle_distance_meters",
		Help: "Accumulated distance driven per vehicle",
	}, []string{"vehicle_id", "kind", "fleet"})
	queue := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_vehicle_queue_length",
		Help: "Bookings queued per vehicle",
	}, []string{"vehicle_id", "kind", "fleet"})

	var err error
	if bookings, err = register(reg, bookings); err != nil {
		return nil, err
	}
	if deliveryTime, err = register(reg, deliveryTime); err != nil {
		return nil, err
	}
	if co2, err = register(reg, co2); err != nil {
		return nil, err
	}
	if dist, err = register(reg, dist); err != nil {
		return nil, err
	}
	if queue, err = register(reg, queue); err != nil {
		return nil, err
	}
	return &PromSink{bookings: bookings, deliveryTime: deliveryTime, vehicleCO2: co2, vehicleDist: dist, vehicleQueue: queue}, nil
}

// register adds c to reg, reusing the collector already registered under
// the same name.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// Save updates the metrics matching the collection.
func (s *PromSink) Save(_ context.Context, collection string, r coremetrics.Record) error {
	switch collection {
	case coremetrics.CollectionBookings:
		s.bookings.WithLabelValues(r.Tags["status"], r.Tags["type"], r.Tags["fleet"]).Inc()
		if d := r.Fields["delivery_time"]; d > 0 {
			s.deliveryTime.WithLabelValues(r.Tags["type"], r.Tags["fleet"]).Observe(d)
		}
	case coremetrics.CollectionVehicles:
		labels := []string{r.ID, r.Tags["kind"], r.Tags["fleet"]}
		s.vehicleCO2.WithLabelValues(labels...).Set(r.Fields["co2"])
		s.vehicleDist.WithLabelValues(labels...).Set(r.Fields["distance"])
		s.vehicleQueue.WithLabelValues(labels...).Set(r.Fields["queue"])
	}
	return nil
}
