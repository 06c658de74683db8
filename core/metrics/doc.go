// Package metrics defines the telemetry contract of the simulation. Sinks
// receive records of delivered bookings and periodic vehicle snapshots
// through Save. Sinks are built from configuration with NewSink, which
// returns a MultiSink automatically when several sinks are configured.
package metrics
