// Package forest implements an isolation-forest ensemble for multivariate
// outlier scoring.
package forest

import (
	"math"
	"math/rand"
	"sync"
)

// Options control ensemble construction.
type Options struct {
	Trees         int
	SubsampleSize int
	Seed          int64
}

// Forest is a trained ensemble of isolation trees. Immutable after Fit, so
// it is safe to share across concurrent scorers.
type Forest struct {
	trees []*node
	cNorm float64
}

const eulerMascheroni = 0.5772156649

// Fit builds the ensemble over the supplied rows. Each tree is grown on a
// random subsample with a depth cap of ceil(log2(subsample)); tree builds
// run in parallel. Returns nil when rows is empty.
func Fit(rows [][]float64, opts Options) *Forest {
	if len(rows) == 0 || opts.Trees <= 0 {
		return nil
	}

	subsample := opts.SubsampleSize
	if subsample <= 0 || subsample > len(rows) {
		subsample = len(rows)
	}
	maxDepth := int(math.Ceil(math.Log2(float64(subsample))))
	if maxDepth < 1 {
		maxDepth = 1
	}

	// Seed each tree up front so the build stays deterministic even with
	// trees growing in parallel.
	master := rand.New(rand.NewSource(opts.Seed))
	seeds := make([]int64, opts.Trees)
	for i := range seeds {
		seeds[i] = master.Int63()
	}

	f := &Forest{
		trees: make([]*node, opts.Trees),
		cNorm: avgPathLength(subsample),
	}

	var wg sync.WaitGroup
	for i := 0; i < opts.Trees; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seeds[idx]))
			sample := subsampleRows(rows, subsample, rng)
			f.trees[idx] = grow(sample, 0, maxDepth, rng)
		}(i)
	}
	wg.Wait()

	return f
}

// Score returns a decision-function style score for one row: positive for
// inliers, negative for easy-to-isolate outliers. Lower means more
// anomalous.
func (f *Forest) Score(row []float64) float64 {
	if f == nil || len(f.trees) == 0 || f.cNorm == 0 {
		return 0
	}
	total := 0.0
	for _, t := range f.trees {
		total += t.pathLength(row, 0)
	}
	avgPath := total / float64(len(f.trees))
	return 0.5 - math.Pow(2, -avgPath/f.cNorm)
}

// Scores scores every row.
func (f *Forest) Scores(rows [][]float64) []float64 {
	scores := make([]float64, len(rows))
	for i, row := range rows {
		scores[i] = f.Score(row)
	}
	return scores
}

func subsampleRows(rows [][]float64, size int, rng *rand.Rand) [][]float64 {
	if size >= len(rows) {
		return rows
	}
	sample := make([][]float64, size)
	for i, idx := range rng.Perm(len(rows))[:size] {
		sample[i] = rows[idx]
	}
	return sample
}

// avgPathLength is c(n), the expected path length of an unsuccessful BST
// search over n points, used both for depth-capped leaves and score
// normalisation.
func avgPathLength(n int) float64 {
	switch {
	case n > 2:
		fn := float64(n)
		return 2.0*(math.Log(fn-1.0)+eulerMascheroni) - 2.0*(fn-1.0)/fn
	case n == 2:
		return 1.0
	default:
		return 0.0
	}
}
