package geo

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// MaxClusterItems bounds the input of ClusterPositions.
const MaxClusterItems = 300

const maxIterations = 100

// ErrTooManyPositions is returned when clustering is asked for more than
// MaxClusterItems items. Callers split larger batches first.
var ErrTooManyPositions = errors.New("too many positions to cluster")

// Locatable is anything with a position to cluster on.
type Locatable interface {
	Location() Position
}

// Cluster groups items around their centroid.
type Cluster[T Locatable] struct {
	Center Position
	Items  []T
}

// ClusterPositions partitions items into at most k groups with k-means.
// Every item lands in exactly one group and no group is empty. The number
// of groups is reduced to the number of distinct positions when needed.
// Initialisation is deterministic (farthest point first).
func ClusterPositions[T Locatable](items []T, k int) ([]Cluster[T], error) {
	if len(items) > MaxClusterItems {
		return nil, fmt.Errorf("%w: %d", ErrTooManyPositions, len(items))
	}
	if len(items) == 0 || k <= 0 {
		return nil, nil
	}
	vectors := make([][]float64, len(items))
	for i, it := range items {
		vectors[i] = it.Location().LonLat()
	}
	if d := distinct(vectors); k > d {
		k = d
	}

	centers := seed(vectors, k)
	assign := make([]int, len(vectors))
	for i := range assign {
		assign[i] = -1
	}
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			c := nearest(centers, v)
			if assign[i] != c {
				assign[i] = c
				changed = true
			}
		}
		if reseedEmpty(vectors, centers, assign) {
			changed = true
		}
		recompute(vectors, centers, assign)
		if !changed {
			break
		}
	}

	clusters := make([]Cluster[T], k)
	for c := range clusters {
		clusters[c].Center = Position{Lon: centers[c][0], Lat: centers[c][1]}
	}
	for i, c := range assign {
		clusters[c].Items = append(clusters[c].Items, items[i])
	}
	out := clusters[:0]
	for _, c := range clusters {
		if len(c.Items) > 0 {
			out = append(out, c)
		}
	}
	return out, nil
}

func distinct(vectors [][]float64) int {
	seen := make(map[[2]float64]struct{}, len(vectors))
	for _, v := range vectors {
		seen[[2]float64{v[0], v[1]}] = struct{}{}
	}
	return len(seen)
}

func seed(vectors [][]float64, k int) [][]float64 {
	centers := [][]float64{append([]float64(nil), vectors[0]...)}
	for len(centers) < k {
		best, bestDist := -1, -1.0
		for i, v := range vectors {
			d := floats.Distance(v, centers[nearest(centers, v)], 2)
			if d > bestDist {
				best, bestDist = i, d
			}
		}
		centers = append(centers, append([]float64(nil), vectors[best]...))
	}
	return centers
}

func nearest(centers [][]float64, v []float64) int {
	best, bestDist := 0, -1.0
	for c, center := range centers {
		d := floats.Distance(v, center, 2)
		if bestDist < 0 || d < bestDist {
			best, bestDist = c, d
		}
	}
	return best
}

// reseedEmpty moves every empty center onto the point lying farthest from
// its own center, taken from a cluster with more than one member.
func reseedEmpty(vectors, centers [][]float64, assign []int) bool {
	changed := false
	for c := range centers {
		if count(assign, c) > 0 {
			continue
		}
		far, farDist := -1, -1.0
		for i, v := range vectors {
			if count(assign, assign[i]) < 2 {
				continue
			}
			d := floats.Distance(v, centers[assign[i]], 2)
			if d > farDist {
				far, farDist = i, d
			}
		}
		if far < 0 {
			continue
		}
		copy(centers[c], vectors[far])
		assign[far] = c
		changed = true
	}
	return changed
}

func count(assign []int, c int) int {
	n := 0
	for _, a := range assign {
		if a == c {
			n++
		}
	}
	return n
}

func recompute(vectors, centers [][]float64, assign []int) {
	for c := range centers {
		var lons, lats []float64
		for i, a := range assign {
			if a == c {
				lons = append(lons, vectors[i][0])
				lats = append(lats, vectors[i][1])
			}
		}
		if len(lons) == 0 {
			continue
		}
		centers[c][0] = stat.Mean(lons, nil)
		centers[c][1] = stat.Mean(lats, nil)
	}
}
