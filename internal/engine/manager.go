package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/podwatch/anomaly-engine/internal/config"
	"github.com/podwatch/anomaly-engine/internal/forest"
	"github.com/podwatch/anomaly-engine/internal/metrics"
	"github.com/podwatch/anomaly-engine/internal/models"
)

// Feed supplies a training matrix, typically by pulling the historical
// lookback window from the metrics source.
type Feed func(ctx context.Context) (models.FeatureMatrix, error)

// Manager owns the outlier model lifecycle: training, versioning and
// concurrent-safe swap-in of freshly trained models. Scorers read the
// installed model through an atomic pointer, so a multi-second retrain
// never blocks them.
type Manager struct {
	logger   *slog.Logger
	training config.TrainingConfig
	forest   config.ForestConfig

	current atomic.Pointer[Model]
	version atomic.Uint64

	// refreshMu serialises refreshes; a tick arriving while one is in
	// flight is skipped, not queued.
	refreshMu sync.Mutex

	statusMu sync.Mutex
	lastErr  error
}

// NewManager constructs a model manager. No model is installed until the
// first successful Refresh.
func NewManager(logger *slog.Logger, training config.TrainingConfig, forestCfg config.ForestConfig) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger,
		training: training,
		forest:   forestCfg,
	}
}

// Status is the read-only view consumed by health and readiness reporting.
type Status struct {
	IsTrained         bool
	Version           uint64
	TrainedAt         time.Time
	LastTrainingError error
}

// Status reports whether a model is installed and how the last training
// pass went.
func (m *Manager) Status() Status {
	m.statusMu.Lock()
	lastErr := m.lastErr
	m.statusMu.Unlock()

	st := Status{LastTrainingError: lastErr}
	if model := m.current.Load(); model != nil {
		st.IsTrained = true
		st.Version = model.Version
		st.TrainedAt = model.TrainedAt
	}
	return st
}

// Train fits a new model on the matrix without installing it. The matrix
// needs at least the configured minimum of rows; the per-tree subsample is
// capped at the matrix size, so the minimum bounds both.
func (m *Manager) Train(matrix models.FeatureMatrix) (*Model, error) {
	if len(matrix) < m.training.MinSamples {
		return nil, &InsufficientDataError{Rows: len(matrix), Min: m.training.MinSamples}
	}

	rows := matrix.Rows()
	sc := fitScaler(rows)
	scaled := sc.transformAll(rows)

	ensemble := forest.Fit(scaled, forest.Options{
		Trees:         m.forest.Trees,
		SubsampleSize: m.forest.SubsampleSize,
		Seed:          m.forest.Seed,
	})

	rate := m.forest.Contamination.Resolve()
	model := &Model{
		TrainedAt:     time.Now().UTC(),
		Contamination: rate,
		TrainingRows:  len(matrix),
		scaler:        sc,
		forest:        ensemble,
	}
	model.threshold = contaminationThreshold(ensemble.Scores(scaled), rate)
	return model, nil
}

// Score standardises the matrix with the installed model's training-time
// statistics and returns one verdict per row. Fails with ErrUntrained when
// no model has ever been installed.
func (m *Manager) Score(matrix models.FeatureMatrix) ([]Scored, error) {
	model := m.current.Load()
	if model == nil {
		return nil, ErrUntrained
	}
	return model.scoreRows(matrix), nil
}

// Refresh runs one end-to-end training pass and atomically installs the
// result. On failure the previously installed model stays untouched and
// the error is recorded for status reporting. Returns false when another
// refresh was already in flight and this one was skipped.
func (m *Manager) Refresh(ctx context.Context, feed Feed) (bool, error) {
	if !m.refreshMu.TryLock() {
		m.logger.Debug("refresh already in flight, skipping")
		return false, nil
	}
	defer m.refreshMu.Unlock()

	start := time.Now()
	model, err := m.refresh(ctx, feed)
	duration := time.Since(start)

	m.statusMu.Lock()
	m.lastErr = err
	m.statusMu.Unlock()

	if err != nil {
		metrics.ObserveTraining(duration, metrics.OutcomeError)
		m.logger.Error("model training failed", slog.Any("error", err))
		return true, err
	}

	model.Version = m.version.Add(1)
	m.current.Store(model)

	metrics.ObserveTraining(duration, metrics.OutcomeSuccess)
	metrics.SetModelInfo(model.Version, model.TrainingRows)
	m.logger.Info("model trained and installed",
		slog.Uint64("version", model.Version),
		slog.Int("samples", model.TrainingRows),
		slog.Float64("contamination", model.Contamination),
		slog.Duration("took", duration),
	)
	return true, nil
}

func (m *Manager) refresh(ctx context.Context, feed Feed) (*Model, error) {
	matrix, err := feed(ctx)
	if err != nil {
		return nil, err
	}
	return m.Train(matrix)
}

// RunRefreshLoop trains once immediately, then retrains on the configured
// interval until ctx is cancelled. An abandoned in-flight refresh simply
// never installs its model.
func (m *Manager) RunRefreshLoop(ctx context.Context, feed Feed) {
	if _, err := m.Refresh(ctx, feed); err != nil {
		m.logger.Warn("initial training failed; serving will report not-ready until a retrain succeeds",
			slog.Any("error", err))
	}

	ticker := time.NewTicker(m.training.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// Errors are already recorded in status; keep serving the
			// last good model.
			_, _ = m.Refresh(ctx, feed)
		}
	}
}
