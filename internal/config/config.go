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

// Config captures the settings required to boot the triage service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Detection DetectionConfig `yaml:"detection"`
	Playback  PlaybackConfig  `yaml:"playback"`
	Geo       GeoConfig       `yaml:"geo"`
	Playbook  PlaybookConfig  `yaml:"playbook"`
	Logging   LoggingConfig   `yaml:"logging"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// DetectionConfig holds the scoring defaults. Contamination is the expected
// outlier fraction in (0,1); Seed fixes the model's randomness.
type DetectionConfig struct {
	Contamination float64       `yaml:"contamination"`
	Seed          int64         `yaml:"seed"`
	ScoresTTL     time.Duration `yaml:"scoresTTL"`
}

// PlaybackConfig controls timeline windowing.
type PlaybackConfig struct {
	Tick   time.Duration `yaml:"tick"`
	Window time.Duration `yaml:"window"`
	Step   time.Duration `yaml:"step"`
}

// GeoConfig configures the pluggable location lookup. Static entries are
// consulted before the external provider; values are [lat, lon] pairs.
type GeoConfig struct {
	ProviderURL   string                `yaml:"providerURL"`
	Token         string                `yaml:"token"`
	LookupTimeout time.Duration         `yaml:"lookupTimeout"`
	Static        map[string][2]float64 `yaml:"static"`
}

// PlaybookConfig points at the simulated-countermeasure rule pack.
type PlaybookConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// CacheConfig controls Valkey-backed caching of scoring results. When
// disabled the in-memory provider is used instead.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("WARROOM_CONFIG")
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

	applyEnvOverrides(&cfg)
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Detection: DetectionConfig{
			Contamination: 0.05,
			Seed:          42,
			ScoresTTL:     10 * time.Minute,
		},
		Playback: PlaybackConfig{
			Tick:   time.Hour,
			Window: time.Hour,
			Step:   time.Hour,
		},
		Geo: GeoConfig{
			LookupTimeout: 5 * time.Second,
		},
		Playbook: PlaybookConfig{Path: "configs/playbooks/default.yaml"},
		Logging:  LoggingConfig{Level: "info", JSON: false},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
		},
	}
}

func validate(cfg *Config) error {
	if cfg.Detection.Contamination <= 0 || cfg.Detection.Contamination >= 1 {
		return fmt.Errorf("detection.contamination must be in (0,1), got %g", cfg.Detection.Contamination)
	}
	if cfg.Playback.Tick <= 0 || cfg.Playback.Window <= 0 || cfg.Playback.Step <= 0 {
		return fmt.Errorf("playback tick, window and step must all be positive")
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WARROOM_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("WARROOM_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("WARROOM_CONTAMINATION"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Detection.Contamination = f
		}
	}
	if v := os.Getenv("WARROOM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.Detection.Seed = n
		}
	}
	if v := os.Getenv("WARROOM_SCORES_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Detection.ScoresTTL = d
		}
	}
	if v := os.Getenv("WARROOM_PLAYBACK_TICK"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Playback.Tick = d
		}
	}
	if v := os.Getenv("WARROOM_PLAYBACK_WINDOW"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Playback.Window = d
		}
	}
	if v := os.Getenv("WARROOM_PLAYBACK_STEP"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Playback.Step = d
		}
	}
	if v := os.Getenv("WARROOM_GEO_PROVIDER_URL"); v != "" {
		cfg.Geo.ProviderURL = v
	}
	if v := os.Getenv("WARROOM_GEO_TOKEN"); v != "" {
		cfg.Geo.Token = v
	}
	if v := os.Getenv("WARROOM_GEO_LOOKUP_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Geo.LookupTimeout = d
		}
	}
	if v := os.Getenv("WARROOM_PLAYBOOK_PATH"); v != "" {
		cfg.Playbook.Path = v
	}
	if v := os.Getenv("WARROOM_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("WARROOM_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("WARROOM_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("WARROOM_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("WARROOM_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("WARROOM_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("WARROOM_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("WARROOM_CACHE_TLS"); strings.EqualFold(v, "true") || v == "1" {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("WARROOM_CACHE_DIAL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.DialTimeout = d
		}
	}
	if v := os.Getenv("WARROOM_CACHE_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.ReadTimeout = d
		}
	}
	if v := os.Getenv("WARROOM_CACHE_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.WriteTimeout = d
		}
	}
	if v := os.Getenv("WARROOM_CACHE_MAX_RETRIES"); v != "" {
		if retries, err := strconv.Atoi(v); err == nil {
			cfg.Cache.MaxRetries = retries
		}
	}
}
