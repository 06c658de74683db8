package geo

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

type item struct {
	id  int
	pos Position
}

func (i item) Location() Position { return i.pos }

func TestClusterPositionsCoversAllItems(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	var items []item
	for i := 0; i < 120; i++ {
		items = append(items, item{id: i, pos: Pos(17+r.Float64(), 59+r.Float64())})
	}
	clusters, err := ClusterPositions(items, 7)
	require.NoError(t, err)
	require.Len(t, clusters, 7)
	seen := map[int]int{}
	for _, c := range clusters {
		require.NotEmpty(t, c.Items)
		for _, it := range c.Items {
			seen[it.id]++
		}
	}
	require.Len(t, seen, len(items))
	for id, n := range seen {
		if n != 1 {
			t.Fatalf("item %d appears %d times", id, n)
		}
	}
}

func TestClusterPositionsFewDistinctPoints(t *testing.T) {
	items := []item{{1, Pos(18, 59)}, {2, Pos(18, 59)}, {3, Pos(19, 60)}}
	clusters, err := ClusterPositions(items, 5)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
}

func TestClusterPositionsSeparatesGroups(t *testing.T) {
	items := []item{
		{1, Pos(18, 59)}, {2, Pos(18.001, 59.001)},
		{3, Pos(14, 61)}, {4, Pos(14.001, 61.001)},
	}
	clusters, err := ClusterPositions(items, 2)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	for _, c := range clusters {
		require.Len(t, c.Items, 2)
		require.InDelta(t, c.Items[0].pos.Lon, c.Items[1].pos.Lon, 0.01)
	}
}

func TestClusterPositionsTooMany(t *testing.T) {
	items := make([]item, MaxClusterItems+1)
	_, err := ClusterPositions(items, 3)
	if !errors.Is(err, ErrTooManyPositions) {
		t.Fatalf("expected ErrTooManyPositions got %v", err)
	}
}

func TestClusterPositionsEmpty(t *testing.T) {
	clusters, err := ClusterPositions([]item(nil), 3)
	require.NoError(t, err)
	require.Empty(t, clusters)
}
