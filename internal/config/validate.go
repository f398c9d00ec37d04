package config

import (
	"fmt"
	"net/url"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Run.SiteWorkers < 1 {
		return fmt.Errorf("run.site_workers must be >= 1, got %d", cfg.Run.SiteWorkers)
	}
	if cfg.Run.MileageTolerance < 0 {
		return fmt.Errorf("run.mileage_tolerance must be >= 0, got %d", cfg.Run.MileageTolerance)
	}
	if cfg.Run.MissThreshold < 1 {
		return fmt.Errorf("run.miss_threshold must be >= 1, got %d", cfg.Run.MissThreshold)
	}
	if cfg.Run.MaxCandidates < 1 {
		return fmt.Errorf("run.max_candidates must be >= 1, got %d", cfg.Run.MaxCandidates)
	}
	if cfg.Run.ScoringStrategy != "formula" && cfg.Run.ScoringStrategy != "llm" {
		return fmt.Errorf("run.scoring_strategy must be 'formula' or 'llm', got %q", cfg.Run.ScoringStrategy)
	}

	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxAttempts < 1 {
		return fmt.Errorf("fetcher.max_attempts must be >= 1, got %d", cfg.Fetcher.MaxAttempts)
	}
	if cfg.Fetcher.RetryBaseDelay <= 0 {
		return fmt.Errorf("fetcher.retry_base_delay must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}

	if cfg.Proxy.Enabled {
		if cfg.Proxy.Rotation != "round_robin" && cfg.Proxy.Rotation != "random" {
			return fmt.Errorf("proxy.rotation must be 'round_robin' or 'random', got %q", cfg.Proxy.Rotation)
		}
		for _, proxyURL := range cfg.Proxy.URLs {
			if _, err := url.Parse(proxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL %q: %w", proxyURL, err)
			}
		}
	}

	for name, site := range cfg.Sites.Integration {
		switch site.FetchStrategy {
		case "", "direct", "scrape_api", "browser":
		default:
			return fmt.Errorf("sites.integration.%s.fetch_strategy must be direct/scrape_api/browser, got %q",
				name, site.FetchStrategy)
		}
		if site.ProxyURL != "" {
			if _, err := url.Parse(site.ProxyURL); err != nil {
				return fmt.Errorf("invalid proxy URL for site %s: %w", name, err)
			}
		}
	}

	validProviders := map[string]bool{
		"gemini": true, "openai": true, "ollama": true,
	}
	if !validProviders[cfg.LLM.Provider] {
		return fmt.Errorf("llm.provider %q is not supported (valid: gemini, openai, ollama)", cfg.LLM.Provider)
	}

	validBackends := map[string]bool{
		"mongo": true, "postgres": true, "file": true,
	}
	if !validBackends[cfg.Storage.Backend] {
		return fmt.Errorf("storage.backend %q is not supported (valid: mongo, postgres, file)", cfg.Storage.Backend)
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.API.Port < 1 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be 1-65535, got %d", cfg.API.Port)
	}

	return nil
}
