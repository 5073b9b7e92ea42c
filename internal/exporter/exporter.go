// Package exporter re-exports anomaly verdicts as per-pod gauges in the
// metrics store's own exposition format.
package exporter

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/podwatch/anomaly-engine/internal/models"
)

// Exporter maps each detection result onto two gauges keyed by pod label:
// anomaly_flag (0/1) and the raw anomaly score.
type Exporter struct {
	flag  *prometheus.GaugeVec
	score *prometheus.GaugeVec

	mu        sync.Mutex
	knownPods map[string]struct{}
}

// New constructs an exporter with unregistered collectors.
func New() *Exporter {
	return &Exporter{
		flag: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "anomaly_flag",
				Help: "Anomaly flag per pod (1=anomaly, 0=normal).",
			},
			[]string{"pod"},
		),
		score: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "anomaly_score",
				Help: "Anomaly score per pod; lower means more anomalous.",
			},
			[]string{"pod"},
		),
		knownPods: make(map[string]struct{}),
	}
}

// Register attaches the gauges to the supplied registerer.
func (e *Exporter) Register(reg prometheus.Registerer) error {
	for _, collector := range []prometheus.Collector{e.flag, e.score} {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// Update publishes the latest results and drops series for pods that
// disappeared, so stale labels do not linger in scrapes.
func (e *Exporter) Update(results []models.DetectionResult) {
	e.mu.Lock()
	defer e.mu.Unlock()

	current := make(map[string]struct{}, len(results))
	for _, r := range results {
		current[r.Pod] = struct{}{}
		flag := 0.0
		if r.AnomalyFlag {
			flag = 1.0
		}
		e.flag.WithLabelValues(r.Pod).Set(flag)
		e.score.WithLabelValues(r.Pod).Set(r.AnomalyScore)
	}

	for pod := range e.knownPods {
		if _, ok := current[pod]; !ok {
			e.flag.DeleteLabelValues(pod)
			e.score.DeleteLabelValues(pod)
		}
	}
	e.knownPods = current
}
