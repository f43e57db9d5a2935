// Package runbooks resolves per-service operational runbooks from a docs
// service, with a TTL cache in front and YAML-provisioned defaults behind.
package runbooks

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"gopkg.in/yaml.v3"
)

// Config controls the runbook fetcher.
type Config struct {
	BaseURL      string        `yaml:"baseUrl"`
	Timeout      time.Duration `yaml:"timeout"`
	CacheTTL     time.Duration `yaml:"cacheTtl"`
	DefaultsFile string        `yaml:"defaultsFile"`
}

type defaultsFile struct {
	Runbooks map[string]string `yaml:"runbooks"`
	Default  string            `yaml:"default"`
}

// Fetcher resolves runbooks. Remote lookups are cached; a failed or missing
// remote lookup falls back to the provisioned defaults so mitigation
// selection always has runbook guidance to work with.
type Fetcher struct {
	baseURL    string
	httpClient *http.Client
	cache      *ttlcache.Cache[string, string]
	defaults   map[string]string
	fallback   string
	logger     *slog.Logger
}

// NewFetcher constructs a runbook fetcher. A missing defaults file is an
// error; an empty BaseURL disables remote lookups entirely.
func NewFetcher(cfg Config, logger *slog.Logger) (*Fetcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}

	f := &Fetcher{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache: ttlcache.New[string, string](
			ttlcache.WithTTL[string, string](cfg.CacheTTL),
		),
		defaults: map[string]string{},
		logger:   logger,
	}
	go f.cache.Start()

	if cfg.DefaultsFile != "" {
		data, err := os.ReadFile(cfg.DefaultsFile)
		if err != nil {
			return nil, fmt.Errorf("read runbook defaults: %w", err)
		}
		var parsed defaultsFile
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			return nil, fmt.Errorf("parse runbook defaults: %w", err)
		}
		if parsed.Runbooks != nil {
			f.defaults = parsed.Runbooks
		}
		f.fallback = parsed.Default
	}

	return f, nil
}

// Fetch returns the runbook for a service. Resolution order: cache, remote
// docs service, per-service default, global default. An error is returned
// only when every source comes up empty.
func (f *Fetcher) Fetch(ctx context.Context, serviceName string) (string, error) {
	if item := f.cache.Get(serviceName); item != nil {
		return item.Value(), nil
	}

	if f.baseURL != "" {
		runbook, err := f.fetchRemote(ctx, serviceName)
		if err != nil {
			f.logger.Warn("remote runbook lookup failed",
				slog.String("service", serviceName),
				slog.Any("error", err))
		} else if runbook != "" {
			f.cache.Set(serviceName, runbook, ttlcache.DefaultTTL)
			return runbook, nil
		}
	}

	if runbook, ok := f.defaults[serviceName]; ok {
		return runbook, nil
	}
	if f.fallback != "" {
		return f.fallback, nil
	}
	return "", fmt.Errorf("no runbook available for service %s", serviceName)
}

// Stop releases the cache janitor goroutine.
func (f *Fetcher) Stop() {
	f.cache.Stop()
}

func (f *Fetcher) fetchRemote(ctx context.Context, serviceName string) (string, error) {
	endpoint := fmt.Sprintf("%s/runbooks/%s", f.baseURL, serviceName)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return "", fmt.Errorf("read runbook body: %w", err)
		}
		return string(body), nil
	case http.StatusNotFound:
		return "", nil
	default:
		return "", fmt.Errorf("runbook service returned %s", resp.Status)
	}
}
