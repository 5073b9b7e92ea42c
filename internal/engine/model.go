package engine

import (
	"math"
	"sort"
	"time"

	"gonum.org/v1/gonum/stat"

	"github.com/podwatch/anomaly-engine/internal/forest"
	"github.com/podwatch/anomaly-engine/internal/models"
)

// Model is an immutable trained snapshot: column scaling parameters, the
// fitted ensemble and the contamination-derived score threshold. Retraining
// always produces a new Model; an installed one is never mutated.
type Model struct {
	Version       uint64
	TrainedAt     time.Time
	Contamination float64
	TrainingRows  int

	scaler    scaler
	forest    *forest.Forest
	threshold float64
}

// Threshold is the score cutoff below which a row is flagged anomalous.
// Not comparable across model versions.
func (m *Model) Threshold() float64 { return m.threshold }

// scoreRows standardises rows with the training-time statistics and scores
// them against the ensemble. Lower score = more anomalous.
func (m *Model) scoreRows(matrix models.FeatureMatrix) []Scored {
	results := make([]Scored, len(matrix))
	for i, vector := range matrix {
		score := m.forest.Score(m.scaler.transform(vector.Row()))
		results[i] = Scored{
			Pod:   vector.Pod,
			Score: score,
			Flag:  score < m.threshold,
		}
	}
	return results
}

// Scored is one row's anomaly verdict.
type Scored struct {
	Pod   string
	Score float64
	Flag  bool
}

// scaler holds per-column standardisation parameters (zero mean, unit
// variance) computed once at training time and reused verbatim at score
// time so scores stay comparable across calls.
type scaler struct {
	mean  [models.NumFeatures]float64
	scale [models.NumFeatures]float64
}

func fitScaler(rows [][]float64) scaler {
	var s scaler
	column := make([]float64, len(rows))
	for c := 0; c < models.NumFeatures; c++ {
		for i, row := range rows {
			column[i] = row[c]
		}
		s.mean[c] = stat.Mean(column, nil)
		std := stat.PopStdDev(column, nil)
		if std == 0 {
			// An all-constant column would divide by zero; a unit scale
			// maps it to a constant zero instead.
			std = 1
		}
		s.scale[c] = std
	}
	return s
}

func (s scaler) transform(row []float64) []float64 {
	out := make([]float64, len(row))
	for c, v := range row {
		out[c] = (v - s.mean[c]) / s.scale[c]
	}
	return out
}

func (s scaler) transformAll(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		out[i] = s.transform(row)
	}
	return out
}

// contaminationThreshold is the score percentile matching the expected
// anomalous fraction, computed against the training scores. The cutoff is
// linearly interpolated at index rate*(n-1): identical outlier rows produce
// an exact tie at the bottom of the score distribution, and the interpolated
// cutoff sits strictly above that tied run so `score < threshold` flags it.
func contaminationThreshold(scores []float64, rate float64) float64 {
	sorted := append([]float64(nil), scores...)
	sort.Float64s(sorted)

	n := len(sorted)
	switch n {
	case 0:
		return 0
	case 1:
		return sorted[0]
	}

	h := rate * float64(n-1)
	lo := int(math.Floor(h))
	if lo >= n-1 {
		return sorted[n-1]
	}
	frac := h - float64(lo)
	return sorted[lo] + frac*(sorted[lo+1]-sorted[lo])
}
