package dispatch

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistration(t *testing.T) {
	ResetMetrics(nil)
	t.Cleanup(func() { ResetMetrics(nil) })
	reg := prometheus.NewRegistry()
	MustRegisterMetrics(reg)
	// touch metrics so they are exported
	planLatency.WithLabelValues("taxi").Observe(0.1)
	bookingsDispatched.WithLabelValues("central").Inc()
	dispatchRetries.WithLabelValues("central").Inc()
	unassignedShipments.WithLabelValues("bus").Inc()
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := map[string]bool{}
	for _, mf := range mfs {
		names[*mf.Name] = true
	}
	expected := []string{
		"dispatch_plan_latency_seconds",
		"dispatch_bookings_total",
		"dispatch_retries_total",
		"dispatch_unassigned_total",
	}
	for _, n := range expected {
		if !names[n] {
			t.Errorf("metric %s not registered", n)
		}
	}
}
