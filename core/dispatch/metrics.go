package dispatch

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	planLatency         *prometheus.HistogramVec
	bookingsDispatched  *prometheus.CounterVec
	dispatchRetries     *prometheus.CounterVec
	unassignedShipments *prometheus.CounterVec
)

// newCollectors creates new metric collectors.
func newCollectors() (*prometheus.HistogramVec, *prometheus.CounterVec, *prometheus.CounterVec, *prometheus.CounterVec) {
	lat := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dispatch_plan_latency_seconds",
			Help:    "Time spent obtaining a plan from the solver",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"kind"},
	)
	dispatched := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_bookings_total",
			Help: "Number of bookings handed to vehicles",
		},
		[]string{"dispatcher"},
	)
	retries := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_retries_total",
			Help: "Number of dispatch rounds retried after an error",
		},
		[]string{"dispatcher"},
	)
	unassigned := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dispatch_unassigned_total",
			Help: "Number of shipments the solver left unassigned",
		},
		[]string{"kind"},
	)
	return lat, dispatched, retries, unassigned
}

func init() {
	planLatency, bookingsDispatched, dispatchRetries, unassignedShipments = newCollectors()
	MustRegisterMetrics(nil)
}

// MustRegisterMetrics registers dispatch metrics on the provided registry.
// If reg is nil, prometheus.DefaultRegisterer is used.
func MustRegisterMetrics(reg prometheus.Registerer) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(planLatency, bookingsDispatched, dispatchRetries, unassignedShipments)
}

// ResetMetrics reinitializes metrics collectors for testing purposes and
// registers them on the provided registry if not nil.
func ResetMetrics(reg prometheus.Registerer) {
	planLatency, bookingsDispatched, dispatchRetries, unassignedShipments = newCollectors()
	if reg != nil {
		MustRegisterMetrics(reg)
	}
}
