package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file, environment, and defaults.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("CARMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("carmatch")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".carmatch"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Missing config file is fine when none was explicitly requested.
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides resolve
// even without a config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("run.site_workers", cfg.Run.SiteWorkers)
	v.SetDefault("run.mileage_tolerance", cfg.Run.MileageTolerance)
	v.SetDefault("run.miss_threshold", cfg.Run.MissThreshold)
	v.SetDefault("run.max_candidates", cfg.Run.MaxCandidates)
	v.SetDefault("run.error_log_path", cfg.Run.ErrorLogPath)
	v.SetDefault("run.scoring_strategy", cfg.Run.ScoringStrategy)

	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.max_attempts", cfg.Fetcher.MaxAttempts)
	v.SetDefault("fetcher.retry_base_delay", cfg.Fetcher.RetryBaseDelay)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)
	v.SetDefault("fetcher.idle_conn_timeout", cfg.Fetcher.IdleConnTimeout)
	v.SetDefault("fetcher.max_idle_conns", cfg.Fetcher.MaxIdleConns)
	v.SetDefault("fetcher.rate_per_second", cfg.Fetcher.RatePerSecond)
	v.SetDefault("fetcher.rate_burst", cfg.Fetcher.RateBurst)
	v.SetDefault("fetcher.user_agents", cfg.Fetcher.UserAgents)

	v.SetDefault("proxy.enabled", cfg.Proxy.Enabled)
	v.SetDefault("proxy.rotation", cfg.Proxy.Rotation)
	v.SetDefault("proxy.rotate_on_fail", cfg.Proxy.RotateOnFail)

	v.SetDefault("sites.scrape_api.geo", cfg.Sites.ScrapeAPI.Geo)
	v.SetDefault("sites.scrape_api.device_type", cfg.Sites.ScrapeAPI.DeviceType)
	v.SetDefault("sites.scrape_api.headless", cfg.Sites.ScrapeAPI.Headless)

	v.SetDefault("llm.provider", cfg.LLM.Provider)
	v.SetDefault("llm.model", cfg.LLM.Model)
	v.SetDefault("llm.max_tokens", cfg.LLM.MaxTokens)
	v.SetDefault("llm.temperature", cfg.LLM.Temperature)
	v.SetDefault("llm.timeout", cfg.LLM.Timeout)

	v.SetDefault("storage.backend", cfg.Storage.Backend)
	v.SetDefault("storage.database", cfg.Storage.Database)

	v.SetDefault("ingest.file_path", cfg.Ingest.FilePath)
	v.SetDefault("ingest.upload_dir", cfg.Ingest.UploadDir)
	v.SetDefault("ingest.sample_size", cfg.Ingest.SampleSize)

	v.SetDefault("tasks.enabled", cfg.Tasks.Enabled)
	v.SetDefault("tasks.url", cfg.Tasks.URL)
	v.SetDefault("tasks.start_subject", cfg.Tasks.StartSubject)
	v.SetDefault("tasks.stop_subject", cfg.Tasks.StopSubject)

	v.SetDefault("api.port", cfg.API.Port)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
