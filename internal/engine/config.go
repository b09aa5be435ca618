package engine

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration, injected from main.
// The YAML overlay fills it first; environment variables win over the file.
type Config struct {
	SearxngURL      string `yaml:"searxng_url"`
	DirectDDG       bool   `yaml:"direct_ddg"`       // enable DuckDuckGo direct scraper
	DirectStartpage bool   `yaml:"direct_startpage"` // enable Startpage direct scraper
	RedditRSS       bool   `yaml:"reddit_rss"`       // enable Reddit search RSS discovery

	RedditBaseURL      string  `yaml:"reddit_base_url"`
	RedditUserAgent    string  `yaml:"reddit_user_agent"`
	RedditClientID     string  `yaml:"reddit_client_id"`
	RedditClientSecret string  `yaml:"reddit_client_secret"`
	RedditRPS          float64 `yaml:"reddit_rps"`

	YouTubeAPIKey      string   `yaml:"youtube_api_key"` // empty = scrape search, no metadata fetcher
	YouTubeTranscripts bool     `yaml:"youtube_transcripts"`
	TranscriptLangs    []string `yaml:"transcript_langs"`

	Concurrency    int           `yaml:"concurrency"`
	SubItemLimit   int           `yaml:"sub_item_limit"`
	AncillaryDelay time.Duration `yaml:"ancillary_delay"`
	CallTimeout    time.Duration `yaml:"call_timeout"`
	RunTimeout     time.Duration `yaml:"run_timeout"`
	MaxAttempts    int           `yaml:"max_attempts"`
	InitialWait    time.Duration `yaml:"initial_wait"`

	RedisURL        string        `yaml:"redis_url"`
	CacheTTL        time.Duration `yaml:"cache_ttl"`
	CacheMaxEntries int           `yaml:"cache_max_entries"`

	OutputDir     string `yaml:"output_dir"`
	HistoryDriver string `yaml:"history_driver"` // sqlite | pgx
	HistoryDSN    string `yaml:"history_dsn"`
	S3Bucket      string `yaml:"s3_bucket"`
	S3Prefix      string `yaml:"s3_prefix"`
	S3Region      string `yaml:"s3_region"`
	S3Endpoint    string `yaml:"s3_endpoint"`

	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	HTTPClient    *http.Client   `yaml:"-"`
	BrowserClient *BrowserClient `yaml:"-"` // nil = direct scrapers disabled
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		SearxngURL:         "",
		DirectDDG:          true,
		RedditRSS:          true,
		RedditBaseURL:      "https://www.reddit.com",
		RedditUserAgent:    "go_context/1.0 (discovery pipeline)",
		RedditRPS:          1,
		YouTubeTranscripts: true,
		TranscriptLangs:    []string{"en"},
		Concurrency:        5,
		SubItemLimit:       5,
		AncillaryDelay:     50 * time.Millisecond,
		CallTimeout:        8 * time.Second,
		RunTimeout:         90 * time.Second,
		MaxAttempts:        DefaultRetryConfig.MaxAttempts,
		InitialWait:        DefaultRetryConfig.InitialWait,
		CacheTTL:           15 * time.Minute,
		CacheMaxEntries:    500,
		OutputDir:          ".",
		HistoryDriver:      "sqlite",
		LogLevel:           "info",
		LogFormat:          "text",
	}
}

// LoadConfigFile reads a YAML overlay on top of DefaultConfig.
// An empty path returns the defaults.
func LoadConfigFile(path string) (Config, error) {
	c := DefaultConfig()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("parse config %s: %w", path, err)
	}
	return c, nil
}

// Retry builds the fetch retry policy from the config.
func (c Config) Retry() RetryConfig {
	rc := DefaultRetryConfig
	if c.MaxAttempts > 0 {
		rc.MaxAttempts = c.MaxAttempts
	}
	if c.InitialWait > 0 {
		rc.InitialWait = c.InitialWait
	}
	return rc
}

// Client returns the configured HTTP client or http.DefaultClient.
func (c Config) Client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}
