package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.SiteWorkers != 2 {
		t.Errorf("SiteWorkers = %d, want 2", cfg.Run.SiteWorkers)
	}
	if cfg.Run.MileageTolerance != 10000 {
		t.Errorf("MileageTolerance = %d, want 10000", cfg.Run.MileageTolerance)
	}
	if cfg.Run.MissThreshold != 10 {
		t.Errorf("MissThreshold = %d, want 10", cfg.Run.MissThreshold)
	}
	if cfg.Run.MaxCandidates != 10 {
		t.Errorf("MaxCandidates = %d, want 10", cfg.Run.MaxCandidates)
	}
	if cfg.Fetcher.MaxAttempts != 5 {
		t.Errorf("MaxAttempts = %d, want 5", cfg.Fetcher.MaxAttempts)
	}
	if cfg.Fetcher.RetryBaseDelay != 5*time.Second {
		t.Errorf("RetryBaseDelay = %v, want 5s", cfg.Fetcher.RetryBaseDelay)
	}
	if cfg.Storage.Backend != "postgres" {
		t.Errorf("Backend = %q, want postgres", cfg.Storage.Backend)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.API.Port)
	}
	site, ok := cfg.Sites.Integration["leboncoin"]
	if !ok || !site.Enabled {
		t.Errorf("leboncoin integration missing or disabled: %+v", cfg.Sites.Integration)
	}
	if err := Validate(cfg); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "carmatch.yaml")
	content := strings.Join([]string{
		"run:",
		"  site_workers: 4",
		"  scoring_strategy: formula",
		"storage:",
		"  backend: file",
		"  output_path: /tmp/state.json",
		"api:",
		"  port: 9090",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.SiteWorkers != 4 {
		t.Errorf("SiteWorkers = %d, want 4", cfg.Run.SiteWorkers)
	}
	if cfg.Run.ScoringStrategy != "formula" {
		t.Errorf("ScoringStrategy = %q", cfg.Run.ScoringStrategy)
	}
	if cfg.Storage.Backend != "file" {
		t.Errorf("Backend = %q", cfg.Storage.Backend)
	}
	if cfg.API.Port != 9090 {
		t.Errorf("Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.Run.MissThreshold != 10 {
		t.Errorf("unset keys should keep defaults, MissThreshold = %d", cfg.Run.MissThreshold)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CARMATCH_RUN_SITE_WORKERS", "7")
	t.Setenv("CARMATCH_STORAGE_BACKEND", "mongo")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Run.SiteWorkers != 7 {
		t.Errorf("SiteWorkers = %d, want 7 from env", cfg.Run.SiteWorkers)
	}
	if cfg.Storage.Backend != "mongo" {
		t.Errorf("Backend = %q, want mongo from env", cfg.Storage.Backend)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("expected an error for an explicitly named missing file")
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(cfg *Config)
		want   string
	}{
		{"zero workers", func(c *Config) { c.Run.SiteWorkers = 0 }, "site_workers"},
		{"negative tolerance", func(c *Config) { c.Run.MileageTolerance = -1 }, "mileage_tolerance"},
		{"bad scoring strategy", func(c *Config) { c.Run.ScoringStrategy = "vibes" }, "scoring_strategy"},
		{"zero attempts", func(c *Config) { c.Fetcher.MaxAttempts = 0 }, "max_attempts"},
		{"bad proxy rotation", func(c *Config) {
			c.Proxy.Enabled = true
			c.Proxy.Rotation = "sticky"
		}, "proxy.rotation"},
		{"bad fetch strategy", func(c *Config) {
			site := c.Sites.Integration["leboncoin"]
			site.FetchStrategy = "carrier_pigeon"
			c.Sites.Integration["leboncoin"] = site
		}, "fetch_strategy"},
		{"bad llm provider", func(c *Config) { c.LLM.Provider = "markov" }, "llm.provider"},
		{"bad storage backend", func(c *Config) { c.Storage.Backend = "sqlite" }, "storage.backend"},
		{"bad log level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
		{"bad port", func(c *Config) { c.API.Port = 0 }, "api.port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected a validation error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}
