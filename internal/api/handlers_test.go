package api

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/podwatch/anomaly-engine/internal/cache"
	"github.com/podwatch/anomaly-engine/internal/config"
	"github.com/podwatch/anomaly-engine/internal/engine"
	"github.com/podwatch/anomaly-engine/internal/exporter"
	"github.com/podwatch/anomaly-engine/internal/features"
	"github.com/podwatch/anomaly-engine/internal/models"
	"github.com/podwatch/anomaly-engine/internal/repo"
)

type fakeSource struct {
	mu         sync.Mutex
	training   models.SeriesSet
	instant    models.SeriesSet
	instantErr error
}

func (f *fakeSource) FetchTraining(context.Context, time.Duration, time.Duration) (models.SeriesSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.training, nil
}

func (f *fakeSource) FetchInstant(context.Context) (models.SeriesSet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instant, f.instantErr
}

func (f *fakeSource) setInstant(set models.SeriesSet, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.instant = set
	f.instantErr = err
}

func sampleSeries(pod string, value float64, steps int) models.RawSeries {
	s := models.RawSeries{Pod: pod}
	base := time.Now().Add(-time.Duration(steps) * time.Minute)
	for i := 0; i < steps; i++ {
		s.Timestamps = append(s.Timestamps, base.Add(time.Duration(i)*time.Minute))
		s.Values = append(s.Values, value)
	}
	return s
}

func fixtureTraining() models.SeriesSet {
	rng := rand.New(rand.NewSource(31))
	set := models.SeriesSet{}
	for _, pod := range []string{"a", "b", "c", "d"} {
		cpu := models.RawSeries{Pod: pod}
		mem := models.RawSeries{Pod: pod}
		base := time.Now().Add(-time.Hour)
		for i := 0; i < 50; i++ {
			ts := base.Add(time.Duration(i) * time.Minute)
			cpu.Timestamps = append(cpu.Timestamps, ts)
			cpu.Values = append(cpu.Values, 0.01+0.002*rng.NormFloat64())
			mem.Timestamps = append(mem.Timestamps, ts)
			mem.Values = append(mem.Values, 1e8+1e6*rng.NormFloat64())
		}
		set.CPU = append(set.CPU, cpu)
		set.Memory = append(set.Memory, mem)
		set.Restarts = append(set.Restarts, sampleSeries(pod, 0, 50))
	}
	return set
}

type memoryCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{data: make(map[string][]byte)}
}

func (c *memoryCache) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if payload, ok := c.data[key]; ok {
		return payload, nil
	}
	return nil, cache.ErrCacheMiss
}

func (c *memoryCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memoryCache) Close() error { return nil }

func newTestHandler(t *testing.T, source *fakeSource, cacheProvider cache.Provider, cacheTTL time.Duration, train bool) *Handler {
	t.Helper()

	training := config.TrainingConfig{
		Lookback:        time.Hour,
		Step:            time.Minute,
		RefreshInterval: time.Minute,
		MinSamples:      10,
	}
	forestCfg := config.ForestConfig{
		Trees:         50,
		SubsampleSize: 64,
		Contamination: config.Contamination{Rate: 0.05},
		Seed:          42,
	}

	manager := engine.NewManager(nil, training, forestCfg)
	detector := engine.NewDetector(nil, source, features.NewBuilder(), manager)
	if train {
		if _, err := manager.Refresh(context.Background(), detector.TrainingFeed(time.Hour, time.Minute)); err != nil {
			t.Fatalf("training refresh failed: %v", err)
		}
	}
	return NewHandler(nil, detector, manager, exporter.New(), cacheProvider, cacheTTL, "http://prometheus:9090")
}

func doRequest(h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestDetectUntrainedReturns503(t *testing.T) {
	h := newTestHandler(t, &fakeSource{training: fixtureTraining()}, nil, 0, false)

	rec := doRequest(h.Detect, "/api/v1/detect")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}

	var resp errorResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid error body: %v", err)
	}
	if resp.Error == "" {
		t.Fatal("expected error message")
	}
}

func TestDetectReturnsScoredPods(t *testing.T) {
	source := &fakeSource{training: fixtureTraining()}
	h := newTestHandler(t, source, nil, 0, true)

	source.setInstant(models.SeriesSet{
		CPU:    []models.RawSeries{sampleSeries("a", 0.011, 1), sampleSeries("hot", 5.0, 1)},
		Memory: []models.RawSeries{sampleSeries("a", 1e8, 1), sampleSeries("hot", 1e8, 1)},
	}, nil)

	rec := doRequest(h.Detect, "/api/v1/detect")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var resp detectResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if len(resp.Pods) != 2 {
		t.Fatalf("expected 2 pods, got %d", len(resp.Pods))
	}
}

func TestDetectEmptyInstantReturnsEmptyPods(t *testing.T) {
	source := &fakeSource{training: fixtureTraining()}
	h := newTestHandler(t, source, nil, 0, true)

	rec := doRequest(h.Detect, "/api/v1/detect")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "{\"pods\":[]}" {
		t.Fatalf("expected empty pods array, got %s", got)
	}
}

func TestDetectUpstreamFailureReturns503(t *testing.T) {
	source := &fakeSource{training: fixtureTraining()}
	h := newTestHandler(t, source, nil, 0, true)

	source.setInstant(models.SeriesSet{}, &repo.UpstreamError{Op: "query", Err: errors.New("timeout")})

	rec := doRequest(h.Detect, "/api/v1/detect")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestDetectServedFromCache(t *testing.T) {
	source := &fakeSource{training: fixtureTraining()}
	store := newMemoryCache()
	h := newTestHandler(t, source, store, 10*time.Second, true)

	source.setInstant(models.SeriesSet{
		CPU:    []models.RawSeries{sampleSeries("a", 0.011, 1)},
		Memory: []models.RawSeries{sampleSeries("a", 1e8, 1)},
	}, nil)

	first := doRequest(h.Detect, "/api/v1/detect")
	if first.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", first.Code)
	}

	// The source now fails; the cached payload must still be served.
	source.setInstant(models.SeriesSet{}, &repo.UpstreamError{Op: "query", Err: errors.New("down")})

	second := doRequest(h.Detect, "/api/v1/detect")
	if second.Code != http.StatusOK {
		t.Fatalf("expected cached 200, got %d", second.Code)
	}
	if first.Body.String() != second.Body.String() {
		t.Fatal("cached payload should match the original response")
	}
}

func TestHealthAlwaysOK(t *testing.T) {
	h := newTestHandler(t, &fakeSource{training: fixtureTraining()}, nil, 0, false)

	rec := doRequest(h.Health, "/healthz")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid body: %v", err)
	}
	if resp.Status != "ok" || resp.ModelTrained {
		t.Fatalf("unexpected health payload: %+v", resp)
	}
}

func TestReadyReflectsTrainingState(t *testing.T) {
	source := &fakeSource{training: fixtureTraining()}

	h := newTestHandler(t, source, nil, 0, false)
	if rec := doRequest(h.Ready, "/readyz"); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("untrained readiness should be 503, got %d", rec.Code)
	}

	trained := newTestHandler(t, source, nil, 0, true)
	if rec := doRequest(trained.Ready, "/readyz"); rec.Code != http.StatusOK {
		t.Fatalf("trained readiness should be 200, got %d", rec.Code)
	}
}
