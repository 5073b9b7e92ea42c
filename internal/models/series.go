package models

import "time"

// Signal enumerates the pod metrics the engine consumes.
type Signal string

const (
	SignalCPU      Signal = "cpu"
	SignalMemory   Signal = "memory"
	SignalRestarts Signal = "restarts"
)

// RawSeries holds samples for one pod as returned by a Prometheus query.
// Timestamps and Values are parallel slices ordered by time.
type RawSeries struct {
	Pod        string
	Timestamps []time.Time
	Values     []float64
}

// SeriesSet groups the raw series for all three monitored signals.
type SeriesSet struct {
	CPU      []RawSeries
	Memory   []RawSeries
	Restarts []RawSeries
}

// Empty reports whether no signal returned any series.
func (s SeriesSet) Empty() bool {
	return len(s.CPU) == 0 && len(s.Memory) == 0 && len(s.Restarts) == 0
}
