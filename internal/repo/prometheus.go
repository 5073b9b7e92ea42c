package repo

import (
	"context"
	"fmt"
	"math"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	promv1 "github.com/prometheus/client_golang/api/prometheus/v1"
	"github.com/prometheus/common/model"

	"github.com/podwatch/anomaly-engine/internal/config"
	"github.com/podwatch/anomaly-engine/internal/models"
)

// PrometheusClient is the metrics source consumed by the engine. It wraps
// the Prometheus HTTP API for the cpu, memory and restart signals.
type PrometheusClient struct {
	api      promv1.API
	url      string
	podLabel model.LabelName
	timeout  time.Duration
	queries  Queries
}

// NewPrometheusClient constructs a client from the prometheus config block.
func NewPrometheusClient(cfg config.PrometheusConfig) (*PrometheusClient, error) {
	client, err := promapi.NewClient(promapi.Config{Address: cfg.URL})
	if err != nil {
		return nil, fmt.Errorf("create prometheus client: %w", err)
	}
	return &PrometheusClient{
		api:      promv1.NewAPI(client),
		url:      cfg.URL,
		podLabel: model.LabelName(cfg.PodLabel),
		timeout:  cfg.Timeout,
		queries:  BuildQueries(cfg.NamespaceRegex),
	}, nil
}

// URL reports the configured Prometheus base address.
func (c *PrometheusClient) URL() string { return c.url }

// QueryRange evaluates expr over [start, end] at the given step and returns
// one RawSeries per pod. Series without the pod label are dropped.
func (c *PrometheusClient) QueryRange(ctx context.Context, expr string, start, end time.Time, step time.Duration) ([]models.RawSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, _, err := c.api.QueryRange(ctx, expr, promv1.Range{Start: start, End: end, Step: step})
	if err != nil {
		return nil, upstream("query_range", err)
	}

	matrix, ok := result.(model.Matrix)
	if !ok {
		return nil, upstream("query_range", fmt.Errorf("unexpected result type %s", result.Type()))
	}

	series := make([]models.RawSeries, 0, len(matrix))
	for _, stream := range matrix {
		pod := string(stream.Metric[c.podLabel])
		if pod == "" {
			continue
		}
		raw := models.RawSeries{
			Pod:        pod,
			Timestamps: make([]time.Time, 0, len(stream.Values)),
			Values:     make([]float64, 0, len(stream.Values)),
		}
		for _, sample := range stream.Values {
			value := float64(sample.Value)
			if math.IsNaN(value) || math.IsInf(value, 0) {
				continue
			}
			raw.Timestamps = append(raw.Timestamps, sample.Timestamp.Time())
			raw.Values = append(raw.Values, value)
		}
		if len(raw.Values) > 0 {
			series = append(series, raw)
		}
	}
	return series, nil
}

// QueryInstant evaluates expr at the current instant and returns one
// single-sample RawSeries per pod.
func (c *PrometheusClient) QueryInstant(ctx context.Context, expr string) ([]models.RawSeries, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	result, _, err := c.api.Query(ctx, expr, time.Now())
	if err != nil {
		return nil, upstream("query", err)
	}

	vector, ok := result.(model.Vector)
	if !ok {
		return nil, upstream("query", fmt.Errorf("unexpected result type %s", result.Type()))
	}

	series := make([]models.RawSeries, 0, len(vector))
	for _, sample := range vector {
		pod := string(sample.Metric[c.podLabel])
		if pod == "" {
			continue
		}
		value := float64(sample.Value)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			continue
		}
		series = append(series, models.RawSeries{
			Pod:        pod,
			Timestamps: []time.Time{sample.Timestamp.Time()},
			Values:     []float64{value},
		})
	}
	return series, nil
}

// FetchTraining pulls the historical lookback window for all three signals.
func (c *PrometheusClient) FetchTraining(ctx context.Context, lookback, step time.Duration) (models.SeriesSet, error) {
	end := time.Now()
	start := end.Add(-lookback)

	cpu, err := c.QueryRange(ctx, c.queries.CPU, start, end, step)
	if err != nil {
		return models.SeriesSet{}, err
	}
	memory, err := c.QueryRange(ctx, c.queries.Memory, start, end, step)
	if err != nil {
		return models.SeriesSet{}, err
	}
	restarts, err := c.QueryRange(ctx, c.queries.Restarts, start, end, step)
	if err != nil {
		return models.SeriesSet{}, err
	}
	return models.SeriesSet{CPU: cpu, Memory: memory, Restarts: restarts}, nil
}

// FetchInstant pulls the current value of all three signals.
func (c *PrometheusClient) FetchInstant(ctx context.Context) (models.SeriesSet, error) {
	cpu, err := c.QueryInstant(ctx, c.queries.CPU)
	if err != nil {
		return models.SeriesSet{}, err
	}
	memory, err := c.QueryInstant(ctx, c.queries.Memory)
	if err != nil {
		return models.SeriesSet{}, err
	}
	restarts, err := c.QueryInstant(ctx, c.queries.Restarts)
	if err != nil {
		return models.SeriesSet{}, err
	}
	return models.SeriesSet{CPU: cpu, Memory: memory, Restarts: restarts}, nil
}
