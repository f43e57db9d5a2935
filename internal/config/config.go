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

	"github.com/miradorstack/mirador-autopilot/internal/guardrails"
	"github.com/miradorstack/mirador-autopilot/internal/runbooks"
)

// Config captures the settings required to boot the autopilot service.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Logging    LoggingConfig     `yaml:"logging"`
	Guardrails guardrails.Config `yaml:"guardrails"`
	Executor   ExecutorConfig    `yaml:"executor"`
	Runbooks   runbooks.Config   `yaml:"runbooks"`
}

// ServerConfig controls the HTTP listeners.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// ExecutorConfig controls mitigation execution behaviour.
type ExecutorConfig struct {
	AutoApprove    bool `yaml:"autoApprove"`
	MaxUnavailable int  `yaml:"maxUnavailable"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("AUTOPILOT_CONFIG")
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
			Address:         ":8080",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging:    LoggingConfig{Level: "info", Format: "text"},
		Guardrails: guardrails.DefaultConfig(),
		Executor: ExecutorConfig{
			AutoApprove:    false,
			MaxUnavailable: 1,
		},
		Runbooks: runbooks.Config{
			Timeout:      5 * time.Second,
			CacheTTL:     10 * time.Minute,
			DefaultsFile: "configs/runbooks.yaml",
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AUTOPILOT_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("AUTOPILOT_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("AUTOPILOT_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("AUTOPILOT_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("AUTOPILOT_AUTO_APPROVE"); v != "" {
		cfg.Executor.AutoApprove = boolFromEnv(v)
	}
	if v := os.Getenv("AUTOPILOT_ALLOW_AUTO_MITIGATION"); v != "" {
		cfg.Guardrails.AllowAutoMitigation = boolFromEnv(v)
	}
	if v := os.Getenv("AUTOPILOT_MAX_SCALE_REPLICAS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Guardrails.MaxScaleReplicas = n
		}
	}
	if v := os.Getenv("AUTOPILOT_MAX_SCALE_FACTOR"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Guardrails.MaxScaleFactor = n
		}
	}
	if v := os.Getenv("AUTOPILOT_RUNBOOKS_BASE_URL"); v != "" {
		cfg.Runbooks.BaseURL = v
	}
	if v := os.Getenv("AUTOPILOT_RUNBOOKS_DEFAULTS"); v != "" {
		cfg.Runbooks.DefaultsFile = v
	}
	if v := os.Getenv("AUTOPILOT_RUNBOOKS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Runbooks.CacheTTL = d
		}
	}
}

func boolFromEnv(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
