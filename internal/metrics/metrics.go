package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	// OutcomeSuccess labels successful detections and trainings.
	OutcomeSuccess = "success"
	// OutcomeError labels failed ones (upstream or model issues).
	OutcomeError = "error"
)

var (
	detectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pod_anomaly",
			Name:      "detections_total",
			Help:      "Total number of detection passes handled, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	detectionDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pod_anomaly",
			Name:      "detection_seconds",
			Help:      "Detection pass latency in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5, 8},
		},
	)

	trainingsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pod_anomaly",
			Name:      "trainings_total",
			Help:      "Total number of training passes, partitioned by outcome.",
		},
		[]string{"outcome"},
	)

	trainingDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pod_anomaly",
			Name:      "training_seconds",
			Help:      "Model training latency in seconds, including the lookback fetch.",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 30, 60},
		},
	)

	modelVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pod_anomaly",
			Name:      "model_version",
			Help:      "Version of the currently installed model.",
		},
	)

	trainingSamples = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pod_anomaly",
			Name:      "training_samples",
			Help:      "Number of rows the installed model was trained on.",
		},
	)
)

// Register attaches the engine's collectors to the supplied registerer.
func Register(reg prometheus.Registerer) error {
	collectors := []prometheus.Collector{
		detectionsTotal,
		detectionDurationSeconds,
		trainingsTotal,
		trainingDurationSeconds,
		modelVersion,
		trainingSamples,
	}

	for _, collector := range collectors {
		if err := reg.Register(collector); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return err
		}
	}
	return nil
}

// ObserveDetection records a detection pass duration and outcome.
func ObserveDetection(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	detectionsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	detectionDurationSeconds.Observe(duration.Seconds())
}

// ObserveTraining records a training pass duration and outcome.
func ObserveTraining(duration time.Duration, outcome string) {
	label := outcome
	if label != OutcomeError {
		label = OutcomeSuccess
	}
	trainingsTotal.WithLabelValues(label).Inc()
	if duration < 0 {
		duration = 0
	}
	trainingDurationSeconds.Observe(duration.Seconds())
}

// SetModelInfo publishes the installed model's version and training size.
func SetModelInfo(version uint64, samples int) {
	modelVersion.Set(float64(version))
	trainingSamples.Set(float64(samples))
}
