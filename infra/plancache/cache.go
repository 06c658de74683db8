// Package plancache stores solver responses keyed by the hash of the
// problem that produced them.
package plancache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Cache stores raw solver responses.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Key hashes the JSON encoding of v.
func Key(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("plan cache key: %w", err)
	}
	sum := sha1.Sum(data)
	return hex.EncodeToString(sum[:]), nil
}

// Config selects the backend.
type Config struct {
	// Backend is one of none, memory, sqlite or redis.
	Backend string `json:"backend"`
	// Path of the SQLite database.
	Path string `json:"path"`
	// Addr of the Redis server.
	Addr     string        `json:"addr"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	TTL      time.Duration `json:"ttl"`
	// MinSolveTime is the solve duration above which a response is cached.
	MinSolveTime time.Duration `json:"min_solve_time"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Backend == "" {
		c.Backend = "memory"
	}
	if c.MinSolveTime <= 0 {
		c.MinSolveTime = 10 * time.Second
	}
}

// Validate checks the backend settings.
func (c Config) Validate() error {
	switch c.Backend {
	case "none", "memory":
	case "sqlite":
		if c.Path == "" {
			return fmt.Errorf("plan_cache: sqlite backend needs a path")
		}
	case "redis":
		if c.Addr == "" {
			return fmt.Errorf("plan_cache: redis backend needs an addr")
		}
	default:
		return fmt.Errorf("plan_cache: unknown backend %q", c.Backend)
	}
	return nil
}

// New opens the configured backend. The none backend returns a nil Cache.
func New(ctx context.Context, cfg Config) (Cache, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Backend {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		s, err := NewSQLite(cfg.Path)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "redis":
		r, err := NewRedis(ctx, cfg.Addr, cfg.Password, cfg.DB, cfg.TTL)
		if err != nil {
			return nil, err
		}
		return r, nil
	}
	return nil, nil
}

// Instrumented counts hits and misses of an underlying cache.
type Instrumented struct {
	Cache
	lookups *prometheus.CounterVec
}

// NewInstrumented registers the lookup counter on reg. A nil registerer
// defaults to the global Prometheus registerer.
func NewInstrumented(c Cache, reg prometheus.Registerer) (*Instrumented, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "plan_cache_lookups_total",
		Help: "Plan cache lookups by result",
	}, []string{"result"})
	if err := reg.Register(lookups); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, err
		}
		lookups = are.ExistingCollector.(*prometheus.CounterVec)
	}
	return &Instrumented{Cache: c, lookups: lookups}, nil
}

// Get looks key up and counts the outcome.
func (i *Instrumented) Get(ctx context.Context, key string) ([]byte, bool, error) {
	v, ok, err := i.Cache.Get(ctx, key)
	switch {
	case err != nil:
		i.lookups.WithLabelValues("error").Inc()
	case ok:
		i.lookups.WithLabelValues("hit").Inc()
	default:
		i.lookups.WithLabelValues("miss").Inc()
	}
	return v, ok, err
}

// Close closes the underlying cache when it holds resources.
func (i *Instrumented) Close() error {
	if c, ok := i.Cache.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
