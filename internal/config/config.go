package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for carmatch.
type Config struct {
	Run     RunConfig     `mapstructure:"run"     yaml:"run"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Proxy   ProxyConfig   `mapstructure:"proxy"   yaml:"proxy"`
	Sites   SitesConfig   `mapstructure:"sites"   yaml:"sites"`
	LLM     LLMConfig     `mapstructure:"llm"     yaml:"llm"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Ingest  IngestConfig  `mapstructure:"ingest"  yaml:"ingest"`
	Tasks   TasksConfig   `mapstructure:"tasks"   yaml:"tasks"`
	API     APIConfig     `mapstructure:"api"     yaml:"api"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// RunConfig controls the run coordinator.
type RunConfig struct {
	SiteWorkers      int    `mapstructure:"site_workers"      yaml:"site_workers"`
	MileageTolerance int    `mapstructure:"mileage_tolerance" yaml:"mileage_tolerance"`
	MissThreshold    int    `mapstructure:"miss_threshold"    yaml:"miss_threshold"`
	MaxCandidates    int    `mapstructure:"max_candidates"    yaml:"max_candidates"`
	ErrorLogPath     string `mapstructure:"error_log_path"    yaml:"error_log_path"`
	ScoringStrategy  string `mapstructure:"scoring_strategy"  yaml:"scoring_strategy"` // formula or llm
}

// FetcherConfig controls the HTTP fetch layer.
type FetcherConfig struct {
	RequestTimeout  time.Duration `mapstructure:"request_timeout"   yaml:"request_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"      yaml:"max_attempts"`
	RetryBaseDelay  time.Duration `mapstructure:"retry_base_delay"  yaml:"retry_base_delay"`
	FollowRedirects bool          `mapstructure:"follow_redirects"  yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"     yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"     yaml:"max_body_size"`
	TLSInsecure     bool          `mapstructure:"tls_insecure"      yaml:"tls_insecure"`
	IdleConnTimeout time.Duration `mapstructure:"idle_conn_timeout" yaml:"idle_conn_timeout"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"    yaml:"max_idle_conns"`
	RatePerSecond   float64       `mapstructure:"rate_per_second"   yaml:"rate_per_second"`
	RateBurst       int           `mapstructure:"rate_burst"        yaml:"rate_burst"`
	UserAgents      []string      `mapstructure:"user_agents"       yaml:"user_agents"`
}

// ProxyConfig controls proxy rotation for direct fetches.
type ProxyConfig struct {
	Enabled      bool     `mapstructure:"enabled"        yaml:"enabled"`
	Rotation     string   `mapstructure:"rotation"       yaml:"rotation"`
	URLs         []string `mapstructure:"urls"           yaml:"urls"`
	RotateOnFail bool     `mapstructure:"rotate_on_fail" yaml:"rotate_on_fail"`
}

// ScrapeAPIConfig points at an anti-bot scraping intermediary: POST a target
// URL, get rendered content back.
type ScrapeAPIConfig struct {
	Endpoint   string `mapstructure:"endpoint"    yaml:"endpoint"`
	AuthToken  string `mapstructure:"auth_token"  yaml:"auth_token"`
	Geo        string `mapstructure:"geo"         yaml:"geo"`
	DeviceType string `mapstructure:"device_type" yaml:"device_type"`
	Headless   bool   `mapstructure:"headless"    yaml:"headless"`
}

// SiteConfig carries per-site credentials and tunables. Session cookies and
// API keys are injected here at deploy time, never baked into source.
type SiteConfig struct {
	Enabled       bool              `mapstructure:"enabled"        yaml:"enabled"`
	FetchStrategy string            `mapstructure:"fetch_strategy" yaml:"fetch_strategy"` // direct, scrape_api, browser
	APIKey        string            `mapstructure:"api_key"        yaml:"api_key"`
	Cookies       map[string]string `mapstructure:"cookies"        yaml:"cookies"`
	Headers       map[string]string `mapstructure:"headers"        yaml:"headers"`
	ProxyURL      string            `mapstructure:"proxy_url"      yaml:"proxy_url"`
}

// SitesConfig groups the per-site blocks plus the shared scrape-API
// intermediary.
type SitesConfig struct {
	ScrapeAPI   ScrapeAPIConfig       `mapstructure:"scrape_api"  yaml:"scrape_api"`
	Integration map[string]SiteConfig `mapstructure:"integration" yaml:"integration"`
}

// LLMConfig controls the structured-generation backend.
type LLMConfig struct {
	Provider    string        `mapstructure:"provider"    yaml:"provider"` // gemini, openai, ollama
	Endpoint    string        `mapstructure:"endpoint"    yaml:"endpoint"`
	Model       string        `mapstructure:"model"       yaml:"model"`
	APIKey      string        `mapstructure:"api_key"     yaml:"api_key"`
	MaxTokens   int           `mapstructure:"max_tokens"  yaml:"max_tokens"`
	Temperature float64       `mapstructure:"temperature" yaml:"temperature"`
	Timeout     time.Duration `mapstructure:"timeout"     yaml:"timeout"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"      yaml:"backend"` // mongo, postgres, file
	MongoURI    string `mapstructure:"mongo_uri"    yaml:"mongo_uri"`
	Database    string `mapstructure:"database"     yaml:"database"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn"`
	OutputPath  string `mapstructure:"output_path"  yaml:"output_path"`
}

// IngestConfig controls spreadsheet ingestion.
type IngestConfig struct {
	FilePath   string `mapstructure:"file_path"   yaml:"file_path"`
	UploadDir  string `mapstructure:"upload_dir"  yaml:"upload_dir"`
	SampleSize int    `mapstructure:"sample_size" yaml:"sample_size"`
}

// TasksConfig controls the NATS task boundary.
type TasksConfig struct {
	Enabled      bool   `mapstructure:"enabled"       yaml:"enabled"`
	URL          string `mapstructure:"url"           yaml:"url"`
	StartSubject string `mapstructure:"start_subject" yaml:"start_subject"`
	StopSubject  string `mapstructure:"stop_subject"  yaml:"stop_subject"`
}

// APIConfig controls the REST control API.
type APIConfig struct {
	Port int `mapstructure:"port" yaml:"port"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Run: RunConfig{
			SiteWorkers:      2,
			MileageTolerance: 10000,
			MissThreshold:    10,
			MaxCandidates:    10,
			ErrorLogPath:     "./error_log.txt",
			ScoringStrategy:  "llm",
		},
		Fetcher: FetcherConfig{
			RequestTimeout:  30 * time.Second,
			MaxAttempts:     5,
			RetryBaseDelay:  5 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
			IdleConnTimeout: 90 * time.Second,
			MaxIdleConns:    100,
			RatePerSecond:   2,
			RateBurst:       4,
			UserAgents: []string{
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/134.0.0.0 Safari/537.36",
			},
		},
		Proxy: ProxyConfig{
			Enabled:      false,
			Rotation:     "round_robin",
			RotateOnFail: true,
		},
		Sites: SitesConfig{
			ScrapeAPI: ScrapeAPIConfig{
				Geo:        "France",
				DeviceType: "mobile",
				Headless:   true,
			},
			Integration: map[string]SiteConfig{
				"lacentrale":  {Enabled: true, FetchStrategy: "direct"},
				"leboncoin":   {Enabled: true, FetchStrategy: "direct"},
				"autoscout24": {Enabled: true, FetchStrategy: "scrape_api"},
			},
		},
		LLM: LLMConfig{
			Provider:    "gemini",
			Model:       "gemini-2.0-flash",
			MaxTokens:   1024,
			Temperature: 0,
			Timeout:     120 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  "postgres",
			Database: "carmatch",
		},
		Ingest: IngestConfig{
			FilePath:   "./uploads/inventory.xlsx",
			UploadDir:  "./uploads",
			SampleSize: 1000,
		},
		Tasks: TasksConfig{
			Enabled:      false,
			URL:          "nats://127.0.0.1:4222",
			StartSubject: "carmatch.runs.start",
			StopSubject:  "carmatch.runs.stop",
		},
		API: APIConfig{
			Port: 8080,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}
