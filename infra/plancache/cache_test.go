package plancache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyIsStable(t *testing.T) {
	type problem struct {
		Jobs     []int `json:"jobs"`
		Vehicles []int `json:"vehicles"`
	}
	a, err := Key(problem{Jobs: []int{1, 2}, Vehicles: []int{1}})
	require.NoError(t, err)
	b, _ := Key(problem{Jobs: []int{1, 2}, Vehicles: []int{1}})
	c, _ := Key(problem{Jobs: []int{2, 1}, Vehicles: []int{1}})
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 40)
}

func exercise(t *testing.T, c Cache) {
	t.Helper()
	ctx := context.Background()
	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.Set(ctx, "k", []byte(`{"code":0}`)))
	require.NoError(t, c.Set(ctx, "k", []byte(`{"code":1}`)))
	v, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.JSONEq(t, `{"code":1}`, string(v))
}

func TestMemory(t *testing.T) {
	m := NewMemory()
	exercise(t, m)
	assert.Equal(t, 1, m.Len())
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plans.db")
	s, err := NewSQLite(path)
	require.NoError(t, err)
	exercise(t, s)
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()
	_, ok, err := reopened.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.True(t, ok, "entries survive a restart")
}

func TestRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	r, err := NewRedis(context.Background(), mr.Addr(), "", 0, time.Hour)
	require.NoError(t, err)
	defer func() { _ = r.Close() }()
	exercise(t, r)
	assert.True(t, mr.Exists("plan:k"))

	mr.FastForward(2 * time.Hour)
	_, ok, err := r.Get(context.Background(), "k")
	require.NoError(t, err)
	assert.False(t, ok, "entry expired")
}

func TestRedisUnreachable(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	mr.Close()
	_, err := NewRedis(context.Background(), addr, "", 0, 0)
	assert.ErrorContains(t, err, "failed to connect to redis")
}

func TestInstrumentedCountsLookups(t *testing.T) {
	c, err := NewInstrumented(NewMemory(), prometheus.NewRegistry())
	require.NoError(t, err)
	ctx := context.Background()
	_, _, _ = c.Get(ctx, "a")
	require.NoError(t, c.Set(ctx, "a", []byte("x")))
	_, _, _ = c.Get(ctx, "a")
	_, _, _ = c.Get(ctx, "a")
	assert.Equal(t, 1.0, testutil.ToFloat64(c.lookups.WithLabelValues("miss")))
	assert.Equal(t, 2.0, testutil.ToFloat64(c.lookups.WithLabelValues("hit")))
	assert.NoError(t, c.Close())
}

func TestNewBackends(t *testing.T) {
	c, err := New(context.Background(), Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, c)

	c, err = New(context.Background(), Config{Backend: "none"})
	require.NoError(t, err)
	assert.Nil(t, c)

	_, err = New(context.Background(), Config{Backend: "sqlite"})
	assert.Error(t, err)
	_, err = New(context.Background(), Config{Backend: "etcd"})
	assert.Error(t, err)
}
