package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/podwatch/anomaly-engine/internal/features"
	"github.com/podwatch/anomaly-engine/internal/models"
)

// MetricsSource is the metrics-store client behaviour the engine needs.
type MetricsSource interface {
	FetchTraining(ctx context.Context, lookback, step time.Duration) (models.SeriesSet, error)
	FetchInstant(ctx context.Context) (models.SeriesSet, error)
}

// Detector orchestrates one detection pass: instant queries, feature
// assembly and scoring against whatever model is currently installed.
type Detector struct {
	logger  *slog.Logger
	source  MetricsSource
	builder *features.Builder
	manager *Manager
}

// NewDetector constructs the detection engine.
func NewDetector(logger *slog.Logger, source MetricsSource, builder *features.Builder, manager *Manager) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	if builder == nil {
		builder = features.NewBuilder()
	}
	return &Detector{
		logger:  logger,
		source:  source,
		builder: builder,
		manager: manager,
	}
}

// Detect scores the current pod metrics. Fails with ErrServiceUnavailable
// while no model is installed; metrics-store failures propagate typed with
// no partial results. No series for any signal yields an empty result set,
// not an error.
func (d *Detector) Detect(ctx context.Context) ([]models.DetectionResult, error) {
	if !d.manager.Status().IsTrained {
		return nil, ErrServiceUnavailable
	}

	set, err := d.source.FetchInstant(ctx)
	if err != nil {
		return nil, err
	}

	matrix := d.builder.Build(set, features.Instant)
	if len(matrix) == 0 {
		d.logger.Warn("no pods returned any signal at the current instant")
		return []models.DetectionResult{}, nil
	}

	verdicts, err := d.manager.Score(matrix)
	if err != nil {
		if errors.Is(err, ErrUntrained) {
			return nil, ErrServiceUnavailable
		}
		return nil, err
	}

	results := make([]models.DetectionResult, len(matrix))
	for i, vector := range matrix {
		results[i] = models.DetectionResult{
			Pod:          vector.Pod,
			CPU:          vector.CPU,
			Memory:       vector.Memory,
			Restarts:     vector.Restarts,
			AnomalyFlag:  verdicts[i].Flag,
			AnomalyScore: verdicts[i].Score,
		}
	}

	d.logger.Info("computed anomaly scores", slog.Int("pods", len(results)))
	return results, nil
}

// TrainingFeed adapts the metrics source into the feed the manager's
// refresh loop consumes.
func (d *Detector) TrainingFeed(lookback, step time.Duration) Feed {
	return func(ctx context.Context) (models.FeatureMatrix, error) {
		set, err := d.source.FetchTraining(ctx, lookback, step)
		if err != nil {
			return nil, err
		}
		return d.builder.Build(set, features.Training), nil
	}
}
