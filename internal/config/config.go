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

// History backend names accepted by HistoryConfig.Backend.
const (
	BackendCSV    = "csv"
	BackendSQLite = "sqlite"
)

// Config captures the settings required to boot the triage engine.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Model   ModelConfig   `yaml:"model"`
	History HistoryConfig `yaml:"history"`
	Cache   CacheConfig   `yaml:"cache"`
	Logging LoggingConfig `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
	AllowedOrigins  []string      `yaml:"allowedOrigins"`
}

// ModelConfig locates the pre-fitted classification artifact.
type ModelConfig struct {
	Path string `yaml:"path"`
}

// HistoryConfig selects and tunes the history store backend.
type HistoryConfig struct {
	Backend      string `yaml:"backend"`
	Path         string `yaml:"path"`
	DefaultLimit int    `yaml:"defaultLimit"`
	MaxLimit     int    `yaml:"maxLimit"`
}

// CacheConfig controls in-process caching of history listings.
type CacheConfig struct {
	Enabled    bool          `yaml:"enabled"`
	HistoryTTL time.Duration `yaml:"historyTTL"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("ANEMIA_TRIAGE_CONFIG")
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

	if cfg.History.Backend != BackendCSV && cfg.History.Backend != BackendSQLite {
		return nil, fmt.Errorf("unknown history backend %q", cfg.History.Backend)
	}
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
		},
		Model: ModelConfig{Path: "configs/model/pipeline.json"},
		History: HistoryConfig{
			Backend:      BackendCSV,
			Path:         "data/history.csv",
			DefaultLimit: 200,
			MaxLimit:     1000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			HistoryTTL: 30 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ANEMIA_TRIAGE_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("ANEMIA_TRIAGE_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		origins := make([]string, 0)
		for _, origin := range strings.Split(v, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
		if len(origins) > 0 {
			cfg.Server.AllowedOrigins = origins
		}
	}
	if v := os.Getenv("ANEMIA_TRIAGE_MODEL_PATH"); v != "" {
		cfg.Model.Path = v
	}
	if v := os.Getenv("ANEMIA_TRIAGE_HISTORY_BACKEND"); v != "" {
		cfg.History.Backend = strings.ToLower(v)
	}
	if v := os.Getenv("ANEMIA_TRIAGE_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}
	if v := os.Getenv("ANEMIA_TRIAGE_HISTORY_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.DefaultLimit = n
		}
	}
	if v := os.Getenv("ANEMIA_TRIAGE_HISTORY_MAX_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.History.MaxLimit = n
		}
	}
	if v := os.Getenv("ANEMIA_TRIAGE_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("ANEMIA_TRIAGE_CACHE_HISTORY_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.HistoryTTL = d
		}
	}
	if v := os.Getenv("ANEMIA_TRIAGE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("ANEMIA_TRIAGE_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
