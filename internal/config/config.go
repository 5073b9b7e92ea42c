package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the anomaly engine.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Prometheus PrometheusConfig `yaml:"prometheus"`
	Training   TrainingConfig   `yaml:"training"`
	Forest     ForestConfig     `yaml:"forest"`
	Cache      CacheConfig      `yaml:"cache"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// ServerConfig controls the HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// PrometheusConfig configures access to the metrics store.
type PrometheusConfig struct {
	URL            string        `yaml:"url"`
	PodLabel       string        `yaml:"podLabel"`
	NamespaceRegex string        `yaml:"namespaceRegex"`
	Timeout        time.Duration `yaml:"timeout"`
}

// TrainingConfig controls the historical lookback and retrain cadence.
type TrainingConfig struct {
	Lookback        time.Duration `yaml:"lookback"`
	Step            time.Duration `yaml:"step"`
	RefreshInterval time.Duration `yaml:"refreshInterval"`
	MinSamples      int           `yaml:"minSamples"`
}

// ForestConfig holds the isolation-forest hyperparameters.
type ForestConfig struct {
	Trees         int           `yaml:"trees"`
	SubsampleSize int           `yaml:"subsampleSize"`
	Contamination Contamination `yaml:"contamination"`
	Seed          int64         `yaml:"seed"`
}

// CacheConfig controls Valkey/Redis-backed caching of detection results.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	ResultTTL    time.Duration `yaml:"resultTTL"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Contamination is the expected anomalous fraction, either an explicit rate
// or "auto" (resolved to a default at training time).
type Contamination struct {
	Auto bool
	Rate float64
}

// DefaultAutoRate is the rate substituted when contamination is "auto".
const DefaultAutoRate = 0.1

// Resolve returns the concrete rate to train with.
func (c Contamination) Resolve() float64 {
	if c.Auto {
		return DefaultAutoRate
	}
	return c.Rate
}

// UnmarshalYAML accepts either the string "auto" or a numeric rate.
func (c *Contamination) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err == nil {
		parsed, perr := parseContamination(raw)
		if perr != nil {
			return perr
		}
		*c = parsed
		return nil
	}
	var rate float64
	if err := value.Decode(&rate); err != nil {
		return fmt.Errorf("contamination must be \"auto\" or a number: %w", err)
	}
	return c.setRate(rate)
}

// MarshalYAML renders the variant back into the accepted forms.
func (c Contamination) MarshalYAML() (any, error) {
	if c.Auto {
		return "auto", nil
	}
	return c.Rate, nil
}

func (c *Contamination) setRate(rate float64) error {
	if rate <= 0 || rate >= 0.5 {
		return fmt.Errorf("contamination rate %v out of range (0, 0.5)", rate)
	}
	*c = Contamination{Rate: rate}
	return nil
}

func parseContamination(raw string) (Contamination, error) {
	if strings.EqualFold(strings.TrimSpace(raw), "auto") {
		return Contamination{Auto: true}, nil
	}
	rate, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return Contamination{}, fmt.Errorf("contamination must be \"auto\" or a number: %w", err)
	}
	var c Contamination
	if err := c.setRate(rate); err != nil {
		return Contamination{}, err
	}
	return c, nil
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ANOMALY_ENGINE_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := applyEnvOverrides(&cfg); err != nil {
		return nil, err
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			GracefulTimeout: 10 * time.Second,
		},
		Prometheus: PrometheusConfig{
			URL:            "http://prometheus:9090",
			PodLabel:       "pod",
			NamespaceRegex: ".*",
			Timeout:        5 * time.Second,
		},
		Training: TrainingConfig{
			Lookback:        60 * time.Minute,
			Step:            60 * time.Second,
			RefreshInterval: 30 * time.Minute,
			MinSamples:      10,
		},
		Forest: ForestConfig{
			Trees:         100,
			SubsampleSize: 256,
			Contamination: Contamination{Auto: true},
			Seed:          42,
		},
		Cache: CacheConfig{
			Enabled:      false,
			ResultTTL:    10 * time.Second,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func validate(cfg *Config) error {
	if cfg.Prometheus.URL == "" {
		return fmt.Errorf("prometheus.url is required")
	}
	if cfg.Prometheus.PodLabel == "" {
		return fmt.Errorf("prometheus.podLabel is required")
	}
	if cfg.Forest.Trees <= 0 {
		return fmt.Errorf("forest.trees must be positive")
	}
	if cfg.Forest.SubsampleSize <= 1 {
		return fmt.Errorf("forest.subsampleSize must be greater than 1")
	}
	if cfg.Training.MinSamples < 2 {
		return fmt.Errorf("training.minSamples must be at least 2")
	}
	if cfg.Training.Lookback <= 0 || cfg.Training.Step <= 0 {
		return fmt.Errorf("training.lookback and training.step must be positive")
	}
	if cfg.Training.RefreshInterval <= 0 {
		return fmt.Errorf("training.refreshInterval must be positive")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("ANOMALY_ENGINE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	// PROMETHEUS_URL, NAMESPACE_REGEX and POD_LABEL keep their historical
	// names so existing deployments keep working.
	if v := os.Getenv("PROMETHEUS_URL"); v != "" {
		cfg.Prometheus.URL = v
	}
	if v := os.Getenv("NAMESPACE_REGEX"); v != "" {
		cfg.Prometheus.NamespaceRegex = v
	}
	if v := os.Getenv("POD_LABEL"); v != "" {
		cfg.Prometheus.PodLabel = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_PROMETHEUS_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Prometheus.Timeout = d
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_TRAINING_LOOKBACK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Training.Lookback = d
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_TRAINING_STEP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Training.Step = d
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_REFRESH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Training.RefreshInterval = d
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_MIN_SAMPLES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Training.MinSamples = n
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_FOREST_TREES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forest.Trees = n
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_FOREST_SUBSAMPLE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Forest.SubsampleSize = n
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_CONTAMINATION"); v != "" {
		c, err := parseContamination(v)
		if err != nil {
			return err
		}
		cfg.Forest.Contamination = c
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_CACHE_RESULT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ResultTTL = d
		}
	}
	if v := os.Getenv("ANOMALY_ENGINE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ANOMALY_ENGINE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	return nil
}
