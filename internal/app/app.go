// Package app wires configuration into the running components shared by the
// MCP server and the command-line client.
package app

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/anatolykoptev/go_context/internal/engine/sources"
	"github.com/anatolykoptev/go_context/internal/store"
)

// App holds the components built from a Config.
type App struct {
	Reddit  *engine.Pipeline
	YouTube *engine.Pipeline
	Cache   *engine.Cache
	Archive *store.Archive
	History *store.History // nil when no history DSN is configured
	Timings *engine.Timings
}

// New builds pipelines, cache and persistence from c. Optional components that
// fail to initialise are logged and left out.
func New(ctx context.Context, c engine.Config, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Timings: engine.NewTimings()}
	a.Cache = engine.NewCache(ctx, engine.CacheConfig{
		RedisURL:   c.RedisURL,
		TTL:        c.CacheTTL,
		MaxEntries: c.CacheMaxEntries,
	}, logger)

	policy := engine.PolicyFromConfig(c, a.Timings)

	reddit, err := newRedditPipeline(ctx, c, policy, a, logger)
	if err != nil {
		return nil, err
	}
	a.Reddit = reddit

	youtube, err := newYouTubePipeline(ctx, c, policy, a, logger)
	if err != nil {
		logger.Warn("youtube pipeline disabled", slog.Any("error", err))
	} else {
		a.YouTube = youtube
	}

	a.Archive = &store.Archive{Dir: c.OutputDir, Logger: logger}
	if c.HistoryDSN != "" {
		h, err := store.OpenHistory(ctx, c.HistoryDriver, c.HistoryDSN)
		if err != nil {
			logger.Warn("history disabled", slog.Any("error", err))
		} else {
			a.History = h
			a.Archive.History = h
			logger.Info("history initialized", slog.String("driver", c.HistoryDriver))
		}
	}
	if c.S3Bucket != "" {
		sink, err := store.NewS3Sink(ctx, store.S3Config{
			Bucket:       c.S3Bucket,
			Prefix:       c.S3Prefix,
			Region:       c.S3Region,
			Endpoint:     c.S3Endpoint,
			UsePathStyle: c.S3Endpoint != "",
		})
		if err != nil {
			logger.Warn("s3 upload disabled", slog.Any("error", err))
		} else {
			a.Archive.S3 = sink
			logger.Info("s3 upload enabled", slog.String("bucket", c.S3Bucket))
		}
	}
	return a, nil
}

// Pipeline returns the pipeline for platform, or nil.
func (a *App) Pipeline(p engine.Platform) *engine.Pipeline {
	switch p {
	case engine.PlatformReddit:
		return a.Reddit
	case engine.PlatformYouTube:
		return a.YouTube
	}
	return nil
}

// Close releases the cache and history connections.
func (a *App) Close() error {
	return errors.Join(a.Cache.Close(), a.History.Close())
}

func newRedditPipeline(ctx context.Context, c engine.Config, policy engine.CallPolicy, a *App, logger *slog.Logger) (*engine.Pipeline, error) {
	client := sources.NewRedditClient(ctx, sources.RedditConfig{
		BaseURL:      c.RedditBaseURL,
		UserAgent:    c.RedditUserAgent,
		ClientID:     c.RedditClientID,
		ClientSecret: c.RedditClientSecret,
		RPS:          c.RedditRPS,
		HTTPClient:   c.HTTPClient,
	})

	web := &engine.WebDiscoverer{Logger: logger}
	if c.DirectDDG && c.BrowserClient != nil {
		web.DDG = &engine.DDGDiscoverer{Client: c.BrowserClient, Site: "reddit.com", Retry: policy.Retry}
	}
	if c.DirectStartpage && c.BrowserClient != nil {
		web.Startpage = &engine.StartpageDiscoverer{Client: c.BrowserClient, Site: "reddit.com", Retry: policy.Retry}
	}
	if c.SearxngURL != "" {
		web.Searxng = &engine.SearxngDiscoverer{BaseURL: c.SearxngURL, Client: c.Client(), Site: "reddit.com", Retry: policy.Retry}
	}

	var providers []engine.Discoverer
	if web.DDG != nil || web.Startpage != nil || web.Searxng != nil {
		providers = append(providers, web)
	}
	if c.RedditRSS {
		providers = append(providers, &sources.RedditRSSDiscoverer{
			BaseURL:   redditPublicHost(c.RedditBaseURL),
			UserAgent: c.RedditUserAgent,
			HTTP:      c.HTTPClient,
			Policy:    policy,
		})
	}
	if len(providers) == 0 {
		return nil, errors.New("reddit: no discovery provider configured (enable direct_ddg, searxng_url or reddit_rss)")
	}

	return &engine.Pipeline{
		Platform:   engine.PlatformReddit,
		Discoverer: &engine.ChainDiscoverer{Providers: providers, Logger: logger},
		Fetcher: &engine.CachedFetcher{
			Next:   sources.NewRedditFetcher(client, policy, logger),
			Cache:  a.Cache,
			Logger: logger,
		},
		Logger:             logger,
		Metrics:            a.Timings,
		RunTimeout:         c.RunTimeout,
		DefaultConcurrency: c.Concurrency,
	}, nil
}

func newYouTubePipeline(ctx context.Context, c engine.Config, policy engine.CallPolicy, a *App, logger *slog.Logger) (*engine.Pipeline, error) {
	svc, err := sources.NewYouTubeService(ctx, c.YouTubeAPIKey, c.HTTPClient, "")
	if err != nil {
		return nil, err
	}
	var transcripts *sources.TranscriptClient
	if c.YouTubeTranscripts {
		transcripts = &sources.TranscriptClient{HTTP: c.HTTPClient, Langs: c.TranscriptLangs, Logger: logger}
	}
	return &engine.Pipeline{
		Platform: engine.PlatformYouTube,
		Discoverer: &sources.YouTubeSearchDiscoverer{
			Service: svc,
			HTTP:    c.HTTPClient,
			Policy:  policy,
			Logger:  logger,
		},
		Fetcher: &engine.CachedFetcher{
			Next:   sources.NewYouTubeFetcher(svc, transcripts, policy, logger),
			Cache:  a.Cache,
			Logger: logger,
		},
		Logger:             logger,
		Metrics:            a.Timings,
		RunTimeout:         c.RunTimeout,
		DefaultConcurrency: c.Concurrency,
	}, nil
}

// redditPublicHost maps the OAuth API host back to the public site, which serves the RSS feeds.
func redditPublicHost(base string) string {
	if base == "" || strings.Contains(base, "oauth.reddit.com") {
		return "https://www.reddit.com"
	}
	return base
}
