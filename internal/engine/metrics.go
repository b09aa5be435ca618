package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// MetricsCollector records how long a named operation took.
type MetricsCollector interface {
	Record(op string, d time.Duration)
}

// NopMetrics discards everything.
type NopMetrics struct{}

func (NopMetrics) Record(string, time.Duration) {}

// OpStats aggregates durations for one operation.
type OpStats struct {
	Count int
	Total time.Duration
	Max   time.Duration
}

// Avg returns the mean duration, zero when nothing was recorded.
func (s OpStats) Avg() time.Duration {
	if s.Count == 0 {
		return 0
	}
	return s.Total / time.Duration(s.Count)
}

// Timings is a thread-safe MetricsCollector that keeps per-operation aggregates.
type Timings struct {
	mu  sync.Mutex
	ops map[string]*OpStats
}

// NewTimings returns an empty collector.
func NewTimings() *Timings {
	return &Timings{ops: make(map[string]*OpStats)}
}

func (t *Timings) Record(op string, d time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	s, ok := t.ops[op]
	if !ok {
		s = &OpStats{}
		t.ops[op] = s
	}
	s.Count++
	s.Total += d
	if d > s.Max {
		s.Max = d
	}
}

// Snapshot returns a copy of the aggregates.
func (t *Timings) Snapshot() map[string]OpStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]OpStats, len(t.ops))
	for k, v := range t.ops {
		out[k] = *v
	}
	return out
}

// Summary renders one line per operation, sorted by name.
func (t *Timings) Summary() string {
	snap := t.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)

	var sb strings.Builder
	sb.WriteString("Timings:\n")
	for _, name := range names {
		s := snap[name]
		fmt.Fprintf(&sb, "  %-20s count=%d total=%s avg=%s max=%s\n",
			name, s.Count, s.Total.Round(time.Millisecond), s.Avg().Round(time.Millisecond), s.Max.Round(time.Millisecond))
	}
	return sb.String()
}

// multiCollector fans out to several collectors.
type multiCollector []MetricsCollector

func (m multiCollector) Record(op string, d time.Duration) {
	for _, c := range m {
		c.Record(op, d)
	}
}

// Collectors combines collectors, skipping nils.
func Collectors(cs ...MetricsCollector) MetricsCollector {
	var out multiCollector
	for _, c := range cs {
		if c != nil {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return NopMetrics{}
	}
	if len(out) == 1 {
		return out[0]
	}
	return out
}

// Process-wide counters for the server's /metrics endpoint.
var counters struct {
	PipelineRuns            atomic.Int64
	PipelineErrors          atomic.Int64
	DiscoverRequests        atomic.Int64
	DirectDDGRequests       atomic.Int64
	SearxngRequests         atomic.Int64
	DirectStartpageRequests atomic.Int64
	RedditRSSRequests       atomic.Int64
	FetchRequests           atomic.Int64
	FetchErrors             atomic.Int64
	AncillaryErrors         atomic.Int64
	YouTubeSearch           atomic.Int64
	YouTubeTranscript       atomic.Int64
	CacheHits               atomic.Int64
	CacheMisses             atomic.Int64
}

// counterCollector bumps the process counters from recorded operations.
type counterCollector struct{}

// ProcessCounters returns a collector that feeds FormatMetrics.
func ProcessCounters() MetricsCollector { return counterCollector{} }

func (counterCollector) Record(op string, _ time.Duration) {
	switch op {
	case OpPipeline:
		counters.PipelineRuns.Add(1)
	case OpDiscover:
		counters.DiscoverRequests.Add(1)
	case OpFetch:
		counters.FetchRequests.Add(1)
	}
}

// Operation names passed to MetricsCollector.Record.
const (
	OpPipeline  = "pipeline"
	OpDiscover  = "discover"
	OpFetch     = "fetch"
	OpPrimary   = "fetch.primary"
	OpAncillary = "fetch.ancillary"
	OpFormat    = "format"
)

// GetMetrics returns a snapshot of all counters.
func GetMetrics() map[string]int64 {
	return map[string]int64{
		"pipeline_runs":               counters.PipelineRuns.Load(),
		"pipeline_errors":             counters.PipelineErrors.Load(),
		"discover_requests":           counters.DiscoverRequests.Load(),
		"direct_ddg_requests":         counters.DirectDDGRequests.Load(),
		"searxng_requests":            counters.SearxngRequests.Load(),
		"direct_startpage_requests":   counters.DirectStartpageRequests.Load(),
		"reddit_rss_requests":         counters.RedditRSSRequests.Load(),
		"fetch_requests":              counters.FetchRequests.Load(),
		"fetch_errors":                counters.FetchErrors.Load(),
		"ancillary_errors":            counters.AncillaryErrors.Load(),
		"youtube_search_requests":     counters.YouTubeSearch.Load(),
		"youtube_transcript_requests": counters.YouTubeTranscript.Load(),
		"cache_hits":                  counters.CacheHits.Load(),
		"cache_misses":                counters.CacheMisses.Load(),
	}
}

// FormatMetrics returns metrics as a simple text format for HTTP endpoint.
func FormatMetrics() string {
	m := GetMetrics()
	var sb strings.Builder
	keys := []string{
		"pipeline_runs", "pipeline_errors",
		"discover_requests", "direct_ddg_requests", "direct_startpage_requests", "searxng_requests", "reddit_rss_requests",
		"fetch_requests", "fetch_errors", "ancillary_errors",
		"youtube_search_requests", "youtube_transcript_requests",
		"cache_hits", "cache_misses",
	}
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, m[k])
	}
	return sb.String()
}

// Incrementors for the sources sub-package.
func IncrRedditRSS()         { counters.RedditRSSRequests.Add(1) }
func IncrYouTubeSearch()     { counters.YouTubeSearch.Add(1) }
func IncrYouTubeTranscript() { counters.YouTubeTranscript.Add(1) }
func IncrAncillaryErrors()   { counters.AncillaryErrors.Add(1) }

// TrackOperation times fn, records it on mc and logs a warning if it takes longer than 5s.
func TrackOperation(ctx context.Context, mc MetricsCollector, name string, fn func(context.Context) error) error {
	start := time.Now()
	err := fn(ctx)
	elapsed := time.Since(start)
	if mc != nil {
		mc.Record(name, elapsed)
	}
	if elapsed > 5*time.Second {
		slog.Warn("slow operation", slog.String("op", name), slog.Duration("elapsed", elapsed))
	}
	return err
}
