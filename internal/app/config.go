package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	stealth "github.com/anatolykoptev/go-stealth"
	"github.com/anatolykoptev/go-stealth/proxypool"
	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/joho/godotenv"
)

// LoadConfig reads .env (if present), the YAML file named by CONTEXT_CONFIG
// and then environment variables, each layer overriding the previous one.
func LoadConfig() (engine.Config, error) {
	_ = godotenv.Load()

	c, err := engine.LoadConfigFile(env.Str("CONTEXT_CONFIG", ""))
	if err != nil {
		return c, err
	}
	applyEnv(&c)
	return c, nil
}

func applyEnv(c *engine.Config) {
	c.SearxngURL = env.Str("SEARXNG_URL", c.SearxngURL)
	c.DirectDDG = envBool("DIRECT_DDG", c.DirectDDG)
	c.DirectStartpage = envBool("DIRECT_STARTPAGE", c.DirectStartpage)
	c.RedditRSS = envBool("REDDIT_RSS", c.RedditRSS)

	c.RedditBaseURL = env.Str("REDDIT_BASE_URL", c.RedditBaseURL)
	c.RedditUserAgent = env.Str("REDDIT_USER_AGENT", c.RedditUserAgent)
	c.RedditClientID = env.Str("REDDIT_CLIENT_ID", c.RedditClientID)
	c.RedditClientSecret = env.Str("REDDIT_CLIENT_SECRET", c.RedditClientSecret)
	c.RedditRPS = env.Float("REDDIT_RPS", c.RedditRPS)

	c.YouTubeAPIKey = env.Str("YOUTUBE_API_KEY", c.YouTubeAPIKey)
	c.YouTubeTranscripts = envBool("YOUTUBE_TRANSCRIPTS", c.YouTubeTranscripts)
	if langs := env.List("TRANSCRIPT_LANGS", ""); len(langs) > 0 {
		c.TranscriptLangs = langs
	}

	c.Concurrency = env.Int("CONCURRENCY", c.Concurrency)
	c.SubItemLimit = env.Int("SUB_ITEM_LIMIT", c.SubItemLimit)
	c.AncillaryDelay = env.Duration("ANCILLARY_DELAY", c.AncillaryDelay)
	c.CallTimeout = env.Duration("CALL_TIMEOUT", c.CallTimeout)
	c.RunTimeout = env.Duration("RUN_TIMEOUT", c.RunTimeout)
	c.MaxAttempts = env.Int("MAX_ATTEMPTS", c.MaxAttempts)
	c.InitialWait = env.Duration("INITIAL_WAIT", c.InitialWait)

	c.RedisURL = env.Str("REDIS_URL", c.RedisURL)
	c.CacheTTL = env.Duration("CACHE_TTL", c.CacheTTL)
	c.CacheMaxEntries = env.Int("CACHE_MAX_ENTRIES", c.CacheMaxEntries)

	c.OutputDir = env.Str("OUTPUT_DIR", c.OutputDir)
	c.HistoryDriver = env.Str("HISTORY_DRIVER", c.HistoryDriver)
	c.HistoryDSN = env.Str("HISTORY_DSN", c.HistoryDSN)
	c.S3Bucket = env.Str("S3_BUCKET", c.S3Bucket)
	c.S3Prefix = env.Str("S3_PREFIX", c.S3Prefix)
	c.S3Region = env.Str("S3_REGION", c.S3Region)
	c.S3Endpoint = env.Str("S3_ENDPOINT", c.S3Endpoint)

	c.LogLevel = env.Str("LOG_LEVEL", c.LogLevel)
	c.LogFormat = env.Str("LOG_FORMAT", c.LogFormat)
}

func envBool(key string, def bool) bool {
	v, err := strconv.ParseBool(env.Str(key, strconv.FormatBool(def)))
	if err != nil {
		return def
	}
	return v
}

// AttachClients sets the shared HTTP client and, when possible, the browser-TLS
// client used by the DuckDuckGo scraper.
func AttachClients(c *engine.Config, logger *slog.Logger) {
	c.HTTPClient = &http.Client{
		Timeout: 15 * time.Second,
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     60 * time.Second,
		},
	}
	if !c.DirectDDG && !c.DirectStartpage {
		return
	}

	opts := []stealth.ClientOption{stealth.WithTimeout(15)}
	if apiKey := env.Str("WEBSHARE_API_KEY", ""); apiKey != "" {
		pool, err := proxypool.NewWebshare(apiKey)
		if err != nil {
			logger.Warn("proxy pool init failed, running without proxy", slog.Any("error", err))
		} else {
			opts = append(opts, stealth.WithProxyPool(pool))
			logger.Info("proxy pool initialized", slog.Int("proxies", pool.Len()))
		}
	}

	bc, err := stealth.NewClient(opts...)
	if err != nil {
		logger.Error("stealth client init failed", slog.Any("error", err))
		return
	}
	c.BrowserClient = bc
	logger.Info("stealth browser client initialized")
}
