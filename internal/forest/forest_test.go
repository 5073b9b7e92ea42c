package forest

import (
	"math/rand"
	"testing"
)

func clusterRows(n int, rng *rand.Rand) [][]float64 {
	rows := make([][]float64, n)
	for i := range rows {
		rows[i] = []float64{
			0.5 + 0.05*rng.NormFloat64(),
			0.5 + 0.05*rng.NormFloat64(),
			0.5 + 0.05*rng.NormFloat64(),
		}
	}
	return rows
}

func TestOutliersScoreLowerThanInliers(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	rows := clusterRows(300, rng)

	f := Fit(rows, Options{Trees: 100, SubsampleSize: 128, Seed: 1})
	if f == nil {
		t.Fatal("expected a trained forest")
	}

	inlier := f.Score([]float64{0.5, 0.5, 0.5})
	outlier := f.Score([]float64{8.0, 8.0, 8.0})

	if outlier >= inlier {
		t.Fatalf("outlier score %v should be below inlier score %v", outlier, inlier)
	}
	if outlier >= 0 {
		t.Fatalf("far outlier should score negative, got %v", outlier)
	}
}

func TestScoreDeterministicForSeed(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	rows := clusterRows(200, rng)

	a := Fit(rows, Options{Trees: 50, SubsampleSize: 64, Seed: 42})
	b := Fit(rows, Options{Trees: 50, SubsampleSize: 64, Seed: 42})

	probe := []float64{0.4, 0.6, 0.5}
	if a.Score(probe) != b.Score(probe) {
		t.Fatalf("same seed should produce identical forests: %v vs %v", a.Score(probe), b.Score(probe))
	}
}

func TestScoreRepeatable(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	rows := clusterRows(150, rng)

	f := Fit(rows, Options{Trees: 25, SubsampleSize: 64, Seed: 5})
	probe := []float64{0.45, 0.55, 0.5}
	first := f.Score(probe)
	for i := 0; i < 5; i++ {
		if got := f.Score(probe); got != first {
			t.Fatalf("scoring mutated state: %v then %v", first, got)
		}
	}
}

func TestFitEmptyRows(t *testing.T) {
	if f := Fit(nil, Options{Trees: 10, SubsampleSize: 16, Seed: 1}); f != nil {
		t.Fatal("expected nil forest for empty input")
	}
}

func TestSubsampleCappedAtDataSize(t *testing.T) {
	rng := rand.New(rand.NewSource(9))
	rows := clusterRows(20, rng)

	// SubsampleSize far above the row count must not panic or loop.
	f := Fit(rows, Options{Trees: 10, SubsampleSize: 256, Seed: 2})
	if f == nil {
		t.Fatal("expected a trained forest")
	}
	if s := f.Score(rows[0]); s == 0 && len(f.trees) == 0 {
		t.Fatal("forest should have trees")
	}
}
