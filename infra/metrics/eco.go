package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/kilianp07/predictivemovement/core/metrics"
	"github.com/kilianp07/predictivemovement/core/metrics/eco"
)

// EcoSink aggregates delivered bookings into daily emission KPIs per fleet.
type EcoSink struct {
	store   eco.Store
	co2     *prometheus.GaugeVec
	perStop *prometheus.GaugeVec
}

// NewEcoSink creates a sink with Prometheus gauges registered on reg.
func NewEcoSink(store eco.Store, reg prometheus.Registerer) (*EcoSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	co2 := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_daily_co2_kg",
		Help: "Daily CO2 emitted per fleet",
	}, []string{"fleet", "day"})
	perStop := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "fleet_daily_co2_per_delivery_kg",
		Help: "Daily CO2 emitted per delivered booking",
	}, []string{"fleet", "day"})
	var err error
	if co2, err = register(reg, co2); err != nil {
		return nil, err
	}
	if perStop, err = register(reg, perStop); err != nil {
		return nil, err
	}
	return &EcoSink{store: store, co2: co2, perStop: perStop}, nil
}

// Save records delivered bookings. Other records are ignored.
func (s *EcoSink) Save(_ context.Context, collection string, r coremetrics.Record) error {
	rec, ok := eco.FromDelivery(collection, r)
	if !ok {
		return nil
	}
	fleet := rec.Fleet
	if err := s.store.Add(rec); err != nil {
		return err
	}
	records, err := s.store.Query(fleet, rec.Date, rec.Date)
	if err != nil || len(records) == 0 {
		return err
	}
	day := eco.Day(rec.Date).Format("2006-01-02")
	s.co2.WithLabelValues(fleet, day).Set(records[0].CO2Kg)
	s.perStop.WithLabelValues(fleet, day).Set(records[0].CO2PerDelivery())
	return nil
}

// Store returns the underlying KPI store.
func (s *EcoSink) Store() eco.Store { return s.store }

// Close closes the store when it holds resources.
func (s *EcoSink) Close() error {
	if c, ok := s.store.(coremetrics.Closer); ok {
		return c.Close()
	}
	return nil
}

// FindEcoStore returns the KPI store of the first eco sink in s, looking
// inside multi sinks.
func FindEcoStore(s coremetrics.TelemetrySink) (eco.Store, bool) {
	switch v := s.(type) {
	case *EcoSink:
		return v.store, true
	case *coremetrics.MultiSink:
		for _, inner := range v.Sinks {
			if st, ok := FindEcoStore(inner); ok {
				return st, true
			}
		}
	}
	return nil, false
}
