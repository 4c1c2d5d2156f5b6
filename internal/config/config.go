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

// Config captures the settings required to boot the calibration engine.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Storage     StorageConfig     `yaml:"storage"`
	Archive     ArchiveConfig     `yaml:"archive"`
	Calibration CalibrationConfig `yaml:"calibration"`
	Thresholds  ThresholdsConfig  `yaml:"thresholds"`
	Trend       TrendConfig       `yaml:"trend"`
	Rules       RulesConfig       `yaml:"rules"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// ServerConfig controls HTTP listener behaviour.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// StorageConfig configures the badger-backed prediction record store.
type StorageConfig struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"inMemory"`
	SyncWrites bool   `yaml:"syncWrites"`
}

// ArchiveConfig controls where reports and the threshold audit log land.
type ArchiveConfig struct {
	Dir         string `yaml:"dir"`
	HistoryFile string `yaml:"historyFile"`
}

// CalibrationConfig defines the calibration map refresh policy.
type CalibrationConfig struct {
	RefreshAfter int           `yaml:"refreshAfter"`
	MaxAge       time.Duration `yaml:"maxAge"`
	CacheTTL     time.Duration `yaml:"cacheTTL"`
}

// ThresholdsConfig carries the optimizer parameters and current baselines.
type ThresholdsConfig struct {
	TargetSuccessRate float64 `yaml:"targetSuccessRate"`
	MinSampleSize     int     `yaml:"minSampleSize"`
	Autonomous        float64 `yaml:"autonomous"`
	Assisted          float64 `yaml:"assisted"`
}

// TrendConfig bounds the trend analysis window.
type TrendConfig struct {
	WindowDays int `yaml:"windowDays"`
}

// RulesConfig controls rule-pack loading for report recommendations.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("CALIBRATION_CONFIG")
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
	return &cfg, nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8085",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Storage: StorageConfig{
			Path:       "data/predictions",
			SyncWrites: true,
		},
		Archive: ArchiveConfig{
			Dir:         "data/reports",
			HistoryFile: "data/threshold-history.jsonl",
		},
		Calibration: CalibrationConfig{
			RefreshAfter: 100,
			MaxAge:       15 * time.Minute,
			CacheTTL:     5 * time.Minute,
		},
		Thresholds: ThresholdsConfig{
			TargetSuccessRate: 0.95,
			MinSampleSize:     10,
			Autonomous:        0.90,
			Assisted:          0.70,
		},
		Trend:   TrendConfig{WindowDays: 90},
		Rules:   RulesConfig{Path: "configs/rules/default.yaml"},
		Logging: LoggingConfig{Level: "info", JSON: false},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("CALIBRATION_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("CALIBRATION_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("CALIBRATION_STORAGE_PATH"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("CALIBRATION_STORAGE_IN_MEMORY"); v != "" {
		cfg.Storage.InMemory = strings.EqualFold(v, "true") || v == "1"
	}
	if v := os.Getenv("CALIBRATION_ARCHIVE_DIR"); v != "" {
		cfg.Archive.Dir = v
	}
	if v := os.Getenv("CALIBRATION_HISTORY_FILE"); v != "" {
		cfg.Archive.HistoryFile = v
	}
	if v := os.Getenv("CALIBRATION_REFRESH_AFTER"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Calibration.RefreshAfter = n
		}
	}
	if v := os.Getenv("CALIBRATION_MAP_MAX_AGE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Calibration.MaxAge = d
		}
	}
	if v := os.Getenv("CALIBRATION_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Calibration.CacheTTL = d
		}
	}
	if v := os.Getenv("CALIBRATION_TARGET_SUCCESS_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.TargetSuccessRate = f
		}
	}
	if v := os.Getenv("CALIBRATION_MIN_SAMPLE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Thresholds.MinSampleSize = n
		}
	}
	if v := os.Getenv("CALIBRATION_THRESHOLD_AUTONOMOUS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Autonomous = f
		}
	}
	if v := os.Getenv("CALIBRATION_THRESHOLD_ASSISTED"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Thresholds.Assisted = f
		}
	}
	if v := os.Getenv("CALIBRATION_TREND_WINDOW_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Trend.WindowDays = n
		}
	}
	if v := os.Getenv("CALIBRATION_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("CALIBRATION_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("CALIBRATION_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
}
