package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/podwatch/anomaly-engine/internal/cache"
	"github.com/podwatch/anomaly-engine/internal/engine"
	"github.com/podwatch/anomaly-engine/internal/exporter"
	"github.com/podwatch/anomaly-engine/internal/metrics"
	"github.com/podwatch/anomaly-engine/internal/models"
	"github.com/podwatch/anomaly-engine/internal/repo"
	"github.com/podwatch/anomaly-engine/internal/utils"
)

// resultCacheKey stores the latest marshalled detect response.
const resultCacheKey = "anomaly:detect:latest"

// Handler serves the detection API and health surfaces.
type Handler struct {
	logger    *slog.Logger
	detector  *engine.Detector
	manager   *engine.Manager
	exporter  *exporter.Exporter
	cache     cache.Provider
	cacheTTL  time.Duration
	promURL   string
	latencies *utils.LatencyTracker
}

// NewHandler wires the handler's collaborators. A nil cache provider
// disables result caching.
func NewHandler(logger *slog.Logger, detector *engine.Detector, manager *engine.Manager, exp *exporter.Exporter, cacheProvider cache.Provider, cacheTTL time.Duration, promURL string) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if cacheProvider == nil {
		cacheProvider = cache.NoopProvider{}
	}
	return &Handler{
		logger:    logger,
		detector:  detector,
		manager:   manager,
		exporter:  exp,
		cache:     cacheProvider,
		cacheTTL:  cacheTTL,
		promURL:   promURL,
		latencies: utils.NewLatencyTracker(1024),
	}
}

type detectResponse struct {
	Pods []models.DetectionResult `json:"pods"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Detect runs one detection pass against the current metrics, refreshes
// the exported gauges and returns the per-pod verdicts.
func (h *Handler) Detect(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.cacheTTL > 0 {
		if payload, err := h.cache.Get(ctx, resultCacheKey); err == nil {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(payload)
			return
		} else if !errors.Is(err, cache.ErrCacheMiss) {
			h.logger.Warn("result cache read failed", slog.Any("error", err))
		}
	}

	start := time.Now()
	results, err := h.detector.Detect(ctx)
	duration := time.Since(start)

	if err != nil {
		metrics.ObserveDetection(duration, metrics.OutcomeError)
		h.writeDetectError(w, err)
		return
	}
	metrics.ObserveDetection(duration, metrics.OutcomeSuccess)

	h.latencies.Observe(duration)
	if count := h.latencies.Count(); count >= 20 && count%20 == 0 {
		h.logger.Info("detection latency", slog.Duration("p95", h.latencies.Percentile(95)), slog.Int("samples", count))
	}

	if h.exporter != nil {
		h.exporter.Update(results)
	}

	if results == nil {
		results = []models.DetectionResult{}
	}
	payload, err := json.Marshal(detectResponse{Pods: results})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "encode response"})
		return
	}

	if h.cacheTTL > 0 {
		if err := h.cache.Set(ctx, resultCacheKey, payload, h.cacheTTL); err != nil {
			h.logger.Warn("result cache write failed", slog.Any("error", err))
		}
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(payload)
}

func (h *Handler) writeDetectError(w http.ResponseWriter, err error) {
	var upstreamErr *repo.UpstreamError
	switch {
	case errors.Is(err, engine.ErrServiceUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "model is not trained yet; check logs for training errors",
		})
	case errors.As(err, &upstreamErr):
		h.logger.Error("metrics store query failed during detection", slog.Any("error", err))
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{
			Error: "failed to query the metrics store for current metrics",
		})
	default:
		h.logger.Error("detection failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
	}
}

type healthResponse struct {
	Status        string `json:"status"`
	ModelTrained  bool   `json:"modelTrained"`
	ModelVersion  uint64 `json:"modelVersion"`
	PrometheusURL string `json:"prometheusUrl"`
}

// Health reports liveness plus a snapshot of the model state.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	st := h.manager.Status()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:        "ok",
		ModelTrained:  st.IsTrained,
		ModelVersion:  st.Version,
		PrometheusURL: h.promURL,
	})
}

type readyResponse struct {
	Status            string `json:"status"`
	LastTrainingError string `json:"lastTrainingError,omitempty"`
}

// Ready reports readiness: the service is ready once a model is installed.
func (h *Handler) Ready(w http.ResponseWriter, _ *http.Request) {
	st := h.manager.Status()
	if st.IsTrained {
		writeJSON(w, http.StatusOK, readyResponse{Status: "ready"})
		return
	}
	resp := readyResponse{Status: "training"}
	if st.LastTrainingError != nil {
		resp.LastTrainingError = st.LastTrainingError.Error()
	}
	writeJSON(w, http.StatusServiceUnavailable, resp)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
