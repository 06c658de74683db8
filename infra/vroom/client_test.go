package vroom

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/predictivemovement/core/dispatch"
	"github.com/kilianp07/predictivemovement/infra/plancache"
)

func problem() dispatch.Problem {
	return dispatch.Problem{
		Shipments: []dispatch.Shipment{{
			Amount:   []int{1},
			Pickup:   dispatch.ShipmentStep{ID: 0, Location: dispatch.Location{18.0, 59.3}},
			Delivery: dispatch.ShipmentStep{ID: 0, Location: dispatch.Location{18.1, 59.4}},
		}},
		Vehicles: []dispatch.Vehicle{{ID: 0, Capacity: []int{4}, Start: dispatch.Location{18.0, 59.3}}},
	}
}

const solution = `{"code":0,"summary":{"cost":10,"routes":1},"routes":[{"vehicle":0,"steps":[{"type":"start","arrival":0},{"type":"pickup","id":0,"arrival":5},{"type":"delivery","id":0,"arrival":9},{"type":"end","arrival":9}]}],"unassigned":[]}`

func TestSolvePostsProblem(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(solution))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL}, nil, nil)
	sol, err := c.Solve(context.Background(), problem())
	require.NoError(t, err)
	require.Len(t, sol.Routes, 1)
	assert.Equal(t, dispatch.StepPickup, sol.Routes[0].Steps[1].Type)
	assert.Equal(t, map[string]any{"plan": true}, got["options"])
	assert.Len(t, got["shipments"], 1)
}

func TestSolveRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte(solution))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, RetryDelay: time.Millisecond}, nil, nil)
	_, err := c.Solve(context.Background(), problem())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestSolveDoesNotRetryRejectedProblems(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":2,"error":"Invalid vehicles."}`))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, RetryDelay: time.Millisecond}, nil, nil)
	_, err := c.Solve(context.Background(), problem())
	assert.ErrorIs(t, err, ErrRejected)
	assert.Equal(t, int32(1), calls.Load())
}

func TestSolveStopsWithContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	c := NewClient(Config{URL: srv.URL, RetryDelay: 10 * time.Millisecond}, nil, nil)
	_, err := c.Solve(ctx, problem())
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestSolveCachesSlowSolutions(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte(solution))
	}))
	defer srv.Close()

	cache := plancache.NewMemory()
	slow := NewClient(Config{URL: srv.URL, CacheAfter: time.Millisecond}, cache, nil)
	for i := 0; i < 2; i++ {
		_, err := slow.Solve(context.Background(), problem())
		require.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load(), "second solve served from cache")
	assert.Equal(t, 1, cache.Len())

	fastCache := plancache.NewMemory()
	fast := NewClient(Config{URL: srv.URL, CacheAfter: time.Hour}, fastCache, nil)
	_, err := fast.Solve(context.Background(), problem())
	require.NoError(t, err)
	assert.Equal(t, 0, fastCache.Len(), "quick solves are not cached")
}

func TestSolveLimitsConcurrency(t *testing.T) {
	var (
		mu       sync.Mutex
		inFlight int
		peak     int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		inFlight++
		peak = max(peak, inFlight)
		mu.Unlock()
		time.Sleep(20 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
		_, _ = w.Write([]byte(solution))
	}))
	defer srv.Close()

	c := NewClient(Config{URL: srv.URL, Concurrency: 2}, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.Solve(context.Background(), problem())
		}()
	}
	wg.Wait()
	mu.Lock()
	defer mu.Unlock()
	assert.LessOrEqual(t, peak, 2)
}
