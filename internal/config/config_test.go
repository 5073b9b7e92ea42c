package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Prometheus.URL != "http://prometheus:9090" || cfg.Prometheus.PodLabel != "pod" {
		t.Fatalf("unexpected prometheus defaults: %+v", cfg.Prometheus)
	}
	if cfg.Forest.Trees != 100 || cfg.Forest.SubsampleSize != 256 {
		t.Fatalf("unexpected forest defaults: %+v", cfg.Forest)
	}
	if !cfg.Forest.Contamination.Auto {
		t.Fatal("contamination should default to auto")
	}
	if cfg.Cache.Enabled {
		t.Fatal("cache should be disabled by default")
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := writeConfigFile(t, `
server:
  address: ":9100"
prometheus:
  url: http://prom.monitoring:9090
  namespaceRegex: "prod-.*"
training:
  lookback: 2h
  minSamples: 30
forest:
  trees: 64
  contamination: 0.02
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Address != ":9100" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.Prometheus.NamespaceRegex != "prod-.*" {
		t.Fatalf("unexpected regex %q", cfg.Prometheus.NamespaceRegex)
	}
	if cfg.Training.Lookback != 2*time.Hour || cfg.Training.MinSamples != 30 {
		t.Fatalf("unexpected training: %+v", cfg.Training)
	}
	if cfg.Forest.Trees != 64 {
		t.Fatalf("unexpected trees %d", cfg.Forest.Trees)
	}
	if cfg.Forest.Contamination.Auto || cfg.Forest.Contamination.Rate != 0.02 {
		t.Fatalf("unexpected contamination: %+v", cfg.Forest.Contamination)
	}
	// Untouched sections keep their defaults.
	if cfg.Training.Step != time.Minute {
		t.Fatalf("step default lost: %v", cfg.Training.Step)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PROMETHEUS_URL", "http://env-prom:9090")
	t.Setenv("NAMESPACE_REGEX", "team-.*")
	t.Setenv("POD_LABEL", "pod_name")
	t.Setenv("ANOMALY_ENGINE_CONTAMINATION", "0.07")
	t.Setenv("ANOMALY_ENGINE_REFRESH_INTERVAL", "15m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Prometheus.URL != "http://env-prom:9090" {
		t.Fatalf("unexpected url %q", cfg.Prometheus.URL)
	}
	if cfg.Prometheus.NamespaceRegex != "team-.*" || cfg.Prometheus.PodLabel != "pod_name" {
		t.Fatalf("unexpected prometheus config: %+v", cfg.Prometheus)
	}
	if cfg.Forest.Contamination.Rate != 0.07 {
		t.Fatalf("unexpected contamination: %+v", cfg.Forest.Contamination)
	}
	if cfg.Training.RefreshInterval != 15*time.Minute {
		t.Fatalf("unexpected refresh interval: %v", cfg.Training.RefreshInterval)
	}
}

func TestContaminationYAMLVariants(t *testing.T) {
	cases := []struct {
		in       string
		wantAuto bool
		wantRate float64
		wantErr  bool
	}{
		{in: `"auto"`, wantAuto: true},
		{in: `auto`, wantAuto: true},
		{in: `0.1`, wantRate: 0.1},
		{in: `"0.25"`, wantRate: 0.25},
		{in: `0.6`, wantErr: true},
		{in: `0`, wantErr: true},
		{in: `-0.1`, wantErr: true},
		{in: `banana`, wantErr: true},
	}
	for _, tc := range cases {
		var c Contamination
		err := yaml.Unmarshal([]byte(tc.in), &c)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("input %s: expected error", tc.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("input %s: %v", tc.in, err)
		}
		if c.Auto != tc.wantAuto || c.Rate != tc.wantRate {
			t.Fatalf("input %s: got %+v", tc.in, c)
		}
	}
}

func TestContaminationResolve(t *testing.T) {
	if got := (Contamination{Auto: true}).Resolve(); got != DefaultAutoRate {
		t.Fatalf("auto should resolve to %v, got %v", DefaultAutoRate, got)
	}
	if got := (Contamination{Rate: 0.03}).Resolve(); got != 0.03 {
		t.Fatalf("explicit rate should pass through, got %v", got)
	}
}

func TestContaminationRoundTrip(t *testing.T) {
	for _, c := range []Contamination{{Auto: true}, {Rate: 0.05}} {
		data, err := yaml.Marshal(c)
		if err != nil {
			t.Fatalf("marshal %+v: %v", c, err)
		}
		var back Contamination
		if err := yaml.Unmarshal(data, &back); err != nil {
			t.Fatalf("unmarshal %q: %v", data, err)
		}
		if back != c {
			t.Fatalf("round trip changed %+v into %+v", c, back)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := map[string]string{
		"empty prometheus url": `
prometheus:
  url: ""
`,
		"tiny subsample": `
forest:
  subsampleSize: 1
`,
		"min samples too low": `
training:
  minSamples: 1
`,
	}
	for name, body := range cases {
		path := writeConfigFile(t, strings.TrimSpace(body))
		if _, err := Load(path); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}
