package colors

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// DefaultMaxIterations bounds [KMeans] when the caller passes a non-positive limit.
const DefaultMaxIterations = 100

// Result holds the outcome of a [KMeans] run.
type Result struct {
	Centroids  [][]float64
	Labels     []int // cluster index per input point
	Counts     []int // points per cluster
	Iterations int
}

// Largest returns the index of the most populated cluster. Ties go to the lowest index.
func (r Result) Largest() int {
	best := 0
	for i, n := range r.Counts {
		if n > r.Counts[best] {
			best = i
		}
	}
	return best
}

// NewRand returns a PCG-backed generator for seed.
func NewRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// KMeans partitions points into k clusters with Lloyd's algorithm.
//
// Initial centroids are k distinct points drawn from rng. A cluster that loses all its points keeps
// its previous centroid, so k larger than the number of distinct values degenerates without error.
// Iteration stops when no label changes or after maxIter rounds.
func KMeans(points [][]float64, k int, rng *rand.Rand, maxIter int) (Result, error) {
	n := len(points)
	if n == 0 {
		return Result{}, fmt.Errorf("%w: no points to cluster", ErrInvalidK)
	}
	if k <= 0 || k > n {
		return Result{}, fmt.Errorf("%w: k=%d for %d points", ErrInvalidK, k, n)
	}
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}
	if rng == nil {
		rng = NewRand(0)
	}

	dim := len(points[0])
	centroids := make([][]float64, k)
	for i, idx := range sampleIndices(rng, n, k) {
		centroids[i] = append(make([]float64, 0, dim), points[idx]...)
	}

	labels := make([]int, n)
	for i := range labels {
		labels[i] = -1
	}
	counts := make([]int, k)
	sums := make([][]float64, k)
	for i := range sums {
		sums[i] = make([]float64, dim)
	}

	iter := 0
	for iter < maxIter {
		iter++

		changed := false
		for i, p := range points {
			c := nearest(centroids, p)
			if labels[i] != c {
				labels[i] = c
				changed = true
			}
		}
		if !changed {
			break
		}

		for j := range sums {
			floats.Scale(0, sums[j])
			counts[j] = 0
		}
		for i, p := range points {
			floats.Add(sums[labels[i]], p)
			counts[labels[i]]++
		}
		for j := range centroids {
			if counts[j] == 0 {
				continue
			}
			floats.ScaleTo(centroids[j], 1/float64(counts[j]), sums[j])
		}
	}

	// Counts must describe the final labels even when the loop ran out of iterations.
	for j := range counts {
		counts[j] = 0
	}
	for _, l := range labels {
		counts[l]++
	}

	return Result{Centroids: centroids, Labels: labels, Counts: counts, Iterations: iter}, nil
}

// nearest returns the index of the centroid closest to p, preferring the lowest index on ties.
func nearest(centroids [][]float64, p []float64) int {
	best, bestDist := 0, math.Inf(1)
	for j, c := range centroids {
		if d := floats.Distance(p, c, 2); d < bestDist {
			best, bestDist = j, d
		}
	}
	return best
}

// sampleIndices draws k distinct indices from [0, n) using Floyd's algorithm.
func sampleIndices(rng *rand.Rand, n, k int) []int {
	chosen := make(map[int]struct{}, k)
	out := make([]int, 0, k)
	for j := n - k; j < n; j++ {
		t := rng.IntN(j + 1)
		if _, ok := chosen[t]; ok {
			t = j
		}
		chosen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}
