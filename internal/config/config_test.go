package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected default address %s", cfg.Server.Address)
	}
	if cfg.Guardrails.MaxScaleReplicas != 10 {
		t.Fatalf("unexpected default scale cap %d", cfg.Guardrails.MaxScaleReplicas)
	}
	if cfg.Executor.AutoApprove {
		t.Fatalf("auto approve must default off")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autopilot.yaml")
	content := `server:
  address: ":9090"
  gracefulTimeout: 30s
guardrails:
  maxScaleReplicas: 20
  allowAutoMitigation: true
executor:
  autoApprove: true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":9090" {
		t.Fatalf("address not loaded, got %s", cfg.Server.Address)
	}
	if cfg.Server.GracefulTimeout != 30*time.Second {
		t.Fatalf("graceful timeout not parsed, got %v", cfg.Server.GracefulTimeout)
	}
	if cfg.Guardrails.MaxScaleReplicas != 20 || !cfg.Guardrails.AllowAutoMitigation {
		t.Fatalf("guardrails not loaded: %+v", cfg.Guardrails)
	}
	if !cfg.Executor.AutoApprove {
		t.Fatalf("executor overrides not loaded")
	}
	// Untouched sections keep defaults.
	if cfg.Server.MetricsAddress != ":2112" {
		t.Fatalf("metrics address default lost, got %s", cfg.Server.MetricsAddress)
	}
}

func TestLoadMissingFileFails(t *testing.T) {
	if _, err := Load("/nonexistent/autopilot.yaml"); err == nil {
		t.Fatalf("missing config file must error")
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("AUTOPILOT_SERVER_ADDRESS", ":7070")
	t.Setenv("AUTOPILOT_LOG_LEVEL", "debug")
	t.Setenv("AUTOPILOT_AUTO_APPROVE", "true")
	t.Setenv("AUTOPILOT_MAX_SCALE_REPLICAS", "15")
	t.Setenv("AUTOPILOT_RUNBOOKS_CACHE_TTL", "30m")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Server.Address != ":7070" {
		t.Fatalf("address override ignored, got %s", cfg.Server.Address)
	}
	if cfg.Logging.Level != "debug" {
		t.Fatalf("log level override ignored")
	}
	if !cfg.Executor.AutoApprove {
		t.Fatalf("auto approve override ignored")
	}
	if cfg.Guardrails.MaxScaleReplicas != 15 {
		t.Fatalf("scale cap override ignored, got %d", cfg.Guardrails.MaxScaleReplicas)
	}
	if cfg.Runbooks.CacheTTL != 30*time.Minute {
		t.Fatalf("cache ttl override ignored, got %v", cfg.Runbooks.CacheTTL)
	}
}
