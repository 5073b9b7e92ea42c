// Package features turns raw, possibly misaligned per-pod query results
// into rectangular feature matrices.
package features

import (
	"sort"

	"github.com/podwatch/anomaly-engine/internal/models"
)

// Mode selects how many rows each pod contributes.
type Mode int

const (
	// Training expands every sampled step into its own row, giving the
	// model per-pod temporal variance as signal.
	Training Mode = iota
	// Instant emits exactly one row per currently observed pod.
	Instant
)

// Builder assembles feature matrices keyed on the union of pods seen in any
// of the three signals. A pod missing one signal gets that column defaulted
// to zero rather than being dropped; a pod present in no series is excluded.
type Builder struct{}

// NewBuilder creates a feature builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Build converts the series set into a feature matrix. An empty input
// yields an empty matrix, not an error; callers decide whether that is
// fatal (training) or simply "no active pods" (instant scoring).
func (b *Builder) Build(set models.SeriesSet, mode Mode) models.FeatureMatrix {
	cpu := valuesByPod(set.CPU)
	memory := valuesByPod(set.Memory)
	restarts := valuesByPod(set.Restarts)

	pods := unionPods(cpu, memory, restarts)
	if len(pods) == 0 {
		return models.FeatureMatrix{}
	}

	matrix := make(models.FeatureMatrix, 0, len(pods))
	for _, pod := range pods {
		switch mode {
		case Instant:
			matrix = append(matrix, models.FeatureVector{
				Pod:      pod,
				CPU:      latest(cpu[pod]),
				Memory:   latest(memory[pod]),
				Restarts: latest(restarts[pod]),
			})
		default:
			steps := maxLen(cpu[pod], memory[pod], restarts[pod])
			for i := 0; i < steps; i++ {
				matrix = append(matrix, models.FeatureVector{
					Pod:      pod,
					CPU:      at(cpu[pod], i),
					Memory:   at(memory[pod], i),
					Restarts: at(restarts[pod], i),
				})
			}
		}
	}
	return matrix
}

func valuesByPod(series []models.RawSeries) map[string][]float64 {
	byPod := make(map[string][]float64, len(series))
	for _, s := range series {
		if s.Pod == "" || len(s.Values) == 0 {
			continue
		}
		// Later series for the same pod (e.g. multiple containers) keep
		// the longer sample run.
		if existing, ok := byPod[s.Pod]; ok && len(existing) >= len(s.Values) {
			continue
		}
		byPod[s.Pod] = s.Values
	}
	return byPod
}

func unionPods(maps ...map[string][]float64) []string {
	seen := make(map[string]struct{})
	for _, m := range maps {
		for pod := range m {
			seen[pod] = struct{}{}
		}
	}
	pods := make([]string, 0, len(seen))
	for pod := range seen {
		pods = append(pods, pod)
	}
	sort.Strings(pods)
	return pods
}

func latest(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return values[len(values)-1]
}

func at(values []float64, i int) float64 {
	if i >= len(values) {
		return 0
	}
	return values[i]
}

func maxLen(slices ...[]float64) int {
	max := 0
	for _, s := range slices {
		if len(s) > max {
			max = len(s)
		}
	}
	return max
}
