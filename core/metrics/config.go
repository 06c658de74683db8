package metrics

import (
	"time"

	"github.com/kilianp07/predictivemovement/core/factory"
)

// Config defines the telemetry sinks.
type Config struct {
	Sinks []factory.KindConfig `json:"sinks"`
	// SnapshotInterval throttles vehicle snapshots per vehicle, in
	// simulated time.
	SnapshotInterval time.Duration `json:"snapshot_interval"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.SnapshotInterval <= 0 {
		c.SnapshotInterval = time.Minute
	}
}
