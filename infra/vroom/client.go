// Package vroom is a client of the VROOM vehicle routing solver.
package vroom

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/semaphore"

	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/infra/auth"
	"github.com/kilianp07/predictivemovement/infra/logger"
	"github.com/kilianp07/predictivemovement/infra/plancache"
)

// ErrRejected is returned when the solver refuses the problem itself.
// Such problems are not retried.
var ErrRejected = errors.New("solver rejected problem")

// Config locates the solver and tunes the client.
type Config struct {
	URL     string        `json:"url"`
	Timeout time.Duration `json:"timeout"`
	Auth    auth.Conf     `json:"auth"`
	// Concurrency bounds the requests in flight.
	Concurrency int64 `json:"concurrency"`
	// RetryDelay separates two attempts of a failed solve.
	RetryDelay time.Duration `json:"retry_delay"`
	// CacheAfter is the solve duration above which a response is cached.
	CacheAfter time.Duration `json:"cache_after"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.Timeout <= 0 {
		c.Timeout = 2 * time.Minute
	}
	if c.Concurrency <= 0 {
		c.Concurrency = 10
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = 2 * time.Second
	}
	if c.CacheAfter <= 0 {
		c.CacheAfter = 10 * time.Second
	}
}

var solveDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "vroom_solve_seconds",
	Help:    "Duration of solver requests",
	Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 30, 60},
}, []string{"result"})

func init() {
	prometheus.MustRegister(solveDuration)
}

// Client implements dispatch.Solver.
type Client struct {
	cfg   Config
	http  *http.Client
	sem   *semaphore.Weighted
	cache plancache.Cache
	log   logger.Logger
}

// NewClient creates a client. cache may be nil.
func NewClient(cfg Config, cache plancache.Cache, log logger.Logger) *Client {
	cfg.SetDefaults()
	return &Client{
		cfg:   cfg,
		http:  auth.NewHTTPClient(cfg.Auth, cfg.Timeout),
		sem:   semaphore.NewWeighted(cfg.Concurrency),
		cache: cache,
		log:   logger.OrNop(log),
	}
}

// cacheKey covers the parts of the problem that define the answer.
type cacheKey struct {
	Jobs      []dispatch.Job      `json:"jobs"`
	Shipments []dispatch.Shipment `json:"shipments"`
	Vehicles  []dispatch.Vehicle  `json:"vehicles"`
}

// Solve returns the cached solution of p or asks the solver, retrying
// failed requests until ctx is done.
func (c *Client) Solve(ctx context.Context, p dispatch.Problem) (dispatch.Solution, error) {
	key, err := plancache.Key(cacheKey{Jobs: p.Jobs, Shipments: p.Shipments, Vehicles: p.Vehicles})
	if err != nil {
		return dispatch.Solution{}, err
	}
	if sol, ok := c.cached(ctx, key); ok {
		c.log.Debugf("vroom cache hit %s", key)
		return sol, nil
	}
	if p.Options == nil {
		p.Options = &dispatch.Options{Plan: true}
	}
	body, err := json.Marshal(p)
	if err != nil {
		return dispatch.Solution{}, fmt.Errorf("encode problem: %w", err)
	}
	for {
		sol, raw, took, err := c.solveOnce(ctx, body)
		if err == nil {
			if took > c.cfg.CacheAfter && c.cache != nil {
				if err := c.cache.Set(ctx, key, raw); err != nil {
					c.log.Warnf("vroom cache update failed: %v", err)
				}
			}
			return sol, nil
		}
		if ctx.Err() != nil {
			return dispatch.Solution{}, ctx.Err()
		}
		if errors.Is(err, ErrRejected) {
			return dispatch.Solution{}, err
		}
		c.log.Errorf("vroom error: %v (jobs=%d shipments=%d vehicles=%d), retrying in %s",
			err, len(p.Jobs), len(p.Shipments), len(p.Vehicles), c.cfg.RetryDelay)
		select {
		case <-ctx.Done():
			return dispatch.Solution{}, ctx.Err()
		case <-time.After(c.cfg.RetryDelay):
		}
	}
}

func (c *Client) cached(ctx context.Context, key string) (dispatch.Solution, bool) {
	if c.cache == nil {
		return dispatch.Solution{}, false
	}
	raw, ok, err := c.cache.Get(ctx, key)
	if err != nil {
		c.log.Warnf("vroom cache lookup failed: %v", err)
		return dispatch.Solution{}, false
	}
	if !ok {
		return dispatch.Solution{}, false
	}
	var sol dispatch.Solution
	if err := json.Unmarshal(raw, &sol); err != nil {
		c.log.Warnf("vroom cache entry %s unreadable: %v", key, err)
		return dispatch.Solution{}, false
	}
	return sol, true
}

func (c *Client) solveOnce(ctx context.Context, body []byte) (dispatch.Solution, []byte, time.Duration, error) {
	if err := c.sem.Acquire(ctx, 1); err != nil {
		return dispatch.Solution{}, nil, 0, err
	}
	defer c.sem.Release(1)

	id := uuid.NewString()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return dispatch.Solution{}, nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", id)

	began := time.Now()
	resp, err := c.http.Do(req)
	took := time.Since(began)
	if err != nil {
		solveDuration.WithLabelValues("error").Observe(took.Seconds())
		return dispatch.Solution{}, nil, took, fmt.Errorf("request %s: %w", id, err)
	}
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		solveDuration.WithLabelValues("error").Observe(took.Seconds())
		return dispatch.Solution{}, nil, took, fmt.Errorf("request %s: read response: %w", id, err)
	}
	switch {
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		solveDuration.WithLabelValues("rejected").Observe(took.Seconds())
		return dispatch.Solution{}, nil, took, fmt.Errorf("request %s: %w: %d %s", id, ErrRejected, resp.StatusCode, raw)
	case resp.StatusCode != http.StatusOK:
		solveDuration.WithLabelValues("error").Observe(took.Seconds())
		return dispatch.Solution{}, nil, took, fmt.Errorf("request %s: unexpected status code: %d, body: %s", id, resp.StatusCode, raw)
	}
	var sol dispatch.Solution
	if err := json.Unmarshal(raw, &sol); err != nil {
		solveDuration.WithLabelValues("error").Observe(took.Seconds())
		return dispatch.Solution{}, nil, took, fmt.Errorf("request %s: failed to decode response: %w", id, err)
	}
	solveDuration.WithLabelValues("ok").Observe(took.Seconds())
	c.log.Debugw("vroom solved", map[string]any{"request_id": id, "took": took.String(), "routes": len(sol.Routes), "unassigned": len(sol.Unassigned)})
	return sol, raw, took, nil
}
