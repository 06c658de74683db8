// Package logging keeps an audit trail of solver decisions.
package logging

import (
	"context"
	"fmt"
	"slices"
	"time"
)

// LogRecord captures one solver call and what came out of it.
type LogRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Kind      string    `json:"kind"`
	Kommun    string    `json:"kommun,omitempty"`
	Vehicles  []string  `json:"vehicles"`
	Bookings  []string  `json:"bookings"`
	// Assigned maps a vehicle ID to the bookings or trips it received.
	Assigned   map[string][]string `json:"assigned,omitempty"`
	Unassigned []string            `json:"unassigned,omitempty"`
	SolveMs    float64             `json:"solve_ms"`
	Error      string              `json:"error,omitempty"`
}

// Involves reports whether the vehicle was offered or given work.
func (r LogRecord) Involves(vehicleID string) bool {
	if slices.Contains(r.Vehicles, vehicleID) {
		return true
	}
	_, ok := r.Assigned[vehicleID]
	return ok
}

// LogQuery defines filters for retrieving records.
type LogQuery struct {
	Start     time.Time
	End       time.Time
	VehicleID string
	Kind      string
}

// Match reports whether r passes every filter of q.
func (q LogQuery) Match(r LogRecord) bool {
	if !q.Start.IsZero() && r.Timestamp.Before(q.Start) {
		return false
	}
	if !q.End.IsZero() && r.Timestamp.After(q.End) {
		return false
	}
	if q.Kind != "" && r.Kind != q.Kind {
		return false
	}
	return q.VehicleID == "" || r.Involves(q.VehicleID)
}

// LogStore persists LogRecords and supports querying.
type LogStore interface {
	Append(ctx context.Context, rec LogRecord) error
	Query(ctx context.Context, q LogQuery) ([]LogRecord, error)
	Close() error
}

// Config selects the decision log backend. An empty Backend disables it.
type Config struct {
	Backend    string `json:"backend"`
	Path       string `json:"path"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
}

// Validate checks the backend name and that a path is given.
func (c Config) Validate() error {
	switch c.Backend {
	case "":
		return nil
	case "jsonl", "rotating", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("decision log %s: path is required", c.Backend)
		}
		return nil
	default:
		return fmt.Errorf("decision log: unknown backend %q", c.Backend)
	}
}

// Open returns the configured store, or nil when disabled.
func Open(c Config) (LogStore, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	switch c.Backend {
	case "jsonl":
		return NewJSONLStore(c.Path)
	case "rotating":
		return NewRotatingJSONLStore(c.Path, max(c.MaxSizeMB, 1), c.MaxBackups, c.MaxAgeDays)
	case "sqlite":
		return NewSQLiteStore(c.Path)
	}
	return nil, nil
}
