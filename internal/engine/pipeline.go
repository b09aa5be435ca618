package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Request limits.
const (
	MaxDesiredCount = 25
	MaxSubItemLimit = 100
)

// Request describes one search-and-enrich run.
type Request struct {
	Query           string
	DesiredCount    int
	Format          string // full | reduced-object | reduced-markup (aliases accepted)
	IncludeSubItems bool
	SubItemLimit    int
	Concurrency     int // 0 = pipeline default
	FullAncillary   bool
}

// Pipeline wires discovery, resolution, scheduling, formatting and assembly for one platform.
type Pipeline struct {
	Platform           Platform
	Discoverer         Discoverer
	Fetcher            Fetcher
	Logger             *slog.Logger
	Metrics            MetricsCollector
	RunTimeout         time.Duration // 0 = no pipeline deadline
	DefaultConcurrency int
}

// Validate checks req and returns its output format. No network activity happens here.
func (r Request) Validate() (OutputFormat, error) {
	if strings.TrimSpace(r.Query) == "" {
		return "", &ConfigError{Field: "query", Message: "must not be empty"}
	}
	if r.DesiredCount < 1 || r.DesiredCount > MaxDesiredCount {
		return "", &ConfigError{Field: "desired_count", Message: fmt.Sprintf("must be between 1 and %d, got %d", MaxDesiredCount, r.DesiredCount)}
	}
	mode, ok := ParseFormat(r.Format)
	if !ok {
		return "", &ConfigError{Field: "format", Message: fmt.Sprintf("unknown format %q", r.Format)}
	}
	if r.SubItemLimit < 0 || r.SubItemLimit > MaxSubItemLimit {
		return "", &ConfigError{Field: "sub_item_limit", Message: fmt.Sprintf("must be between 0 and %d, got %d", MaxSubItemLimit, r.SubItemLimit)}
	}
	if r.Concurrency < 0 {
		return "", &ConfigError{Field: "concurrency", Message: "must not be negative"}
	}
	return mode, nil
}

// Run executes search → resolve → fetch → format → assemble.
// Running out of candidates yields a short (possibly empty) batch and a nil error.
// Discovery that fails on every provider is returned as an error instead.
func (p *Pipeline) Run(ctx context.Context, req Request) (Batch, error) {
	mode, err := req.Validate()
	if err != nil {
		return Batch{}, err
	}
	if p.Discoverer == nil || p.Fetcher == nil {
		return Batch{}, errors.New("pipeline: discoverer and fetcher are required")
	}

	mc := Collectors(p.Metrics, ProcessCounters())
	var batch Batch
	err = TrackOperation(ctx, mc, OpPipeline, func(ctx context.Context) error {
		var runErr error
		batch, runErr = p.run(ctx, req, mode, mc)
		return runErr
	})
	if err != nil {
		counters.PipelineErrors.Add(1)
	}
	return batch, err
}

func (p *Pipeline) run(ctx context.Context, req Request, mode OutputFormat, mc MetricsCollector) (Batch, error) {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if p.RunTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.RunTimeout)
		defer cancel()
	}

	query := strings.TrimSpace(req.Query)
	want := req.DesiredCount

	// Over-fetch candidates: some will not resolve and some will fail.
	var urls []string
	err := TrackOperation(ctx, mc, OpDiscover, func(ctx context.Context) error {
		var derr error
		urls, derr = p.Discoverer.Discover(ctx, query, want*2)
		return derr
	})
	if err != nil {
		return Batch{}, fmt.Errorf("discover %q: %w", query, err)
	}

	ids := ResolveAll(p.Platform, urls)
	logger.Info("candidates resolved",
		slog.String("platform", string(p.Platform)),
		slog.String("query", query),
		slog.Int("urls", len(urls)),
		slog.Int("ids", len(ids)),
	)

	conc := req.Concurrency
	if conc == 0 {
		conc = p.DefaultConcurrency
	}
	if conc <= 0 {
		conc = DefaultConcurrency
	}

	sched := &Scheduler{Fetcher: p.Fetcher, Logger: logger, Metrics: mc}
	recs, stats := sched.RunWithStats(ctx, ids, want, conc, FetchOptions{
		IncludeSubItems: req.IncludeSubItems,
		SubItemLimit:    req.SubItemLimit,
		FullAncillary:   req.FullAncillary,
	})

	start := time.Now()
	batch := Build(p.Platform, mode, recs, want)
	mc.Record(OpFormat, time.Since(start))

	logger.Info("pipeline done",
		slog.String("platform", string(p.Platform)),
		slog.String("query", query),
		slog.String("format", string(mode)),
		slog.Int("records", batch.Records),
		slog.Int("failed", stats.Failed),
	)
	return batch, nil
}
