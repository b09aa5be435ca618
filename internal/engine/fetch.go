package engine

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"
)

// Fetcher retrieves one DetailRecord. A non-nil error is always a *FetchFailure.
type Fetcher interface {
	Fetch(ctx context.Context, id ResourceID, opts FetchOptions) (DetailRecord, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, id ResourceID, opts FetchOptions) (DetailRecord, error)

func (f FetcherFunc) Fetch(ctx context.Context, id ResourceID, opts FetchOptions) (DetailRecord, error) {
	return f(ctx, id, opts)
}

// CallPolicy bundles the timing rules every external call follows.
type CallPolicy struct {
	Retry          RetryConfig
	CallTimeout    time.Duration // per attempt; 0 = no extra deadline
	AncillaryDelay time.Duration // waited before each ancillary call
	Metrics        MetricsCollector
}

// DefaultCallPolicy mirrors DefaultConfig.
func DefaultCallPolicy() CallPolicy {
	return CallPolicy{
		Retry:          DefaultRetryConfig,
		CallTimeout:    8 * time.Second,
		AncillaryDelay: 50 * time.Millisecond,
		Metrics:        NopMetrics{},
	}
}

// PolicyFromConfig builds a CallPolicy from c.
func PolicyFromConfig(c Config, mc MetricsCollector) CallPolicy {
	if mc == nil {
		mc = NopMetrics{}
	}
	return CallPolicy{
		Retry:          c.Retry(),
		CallTimeout:    c.CallTimeout,
		AncillaryDelay: c.AncillaryDelay,
		Metrics:        mc,
	}
}

// Call runs fn with retry; each attempt gets its own CallTimeout deadline.
// The total duration is recorded under op.
func Call[T any](ctx context.Context, p CallPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	start := time.Now()
	out, err := RetryDo(ctx, p.Retry, func() (T, error) {
		callCtx := ctx
		if p.CallTimeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, p.CallTimeout)
			defer cancel()
		}
		return fn(callCtx)
	})
	if p.Metrics != nil {
		p.Metrics.Record(op, time.Since(start))
	}
	return out, err
}

// Ancillary waits AncillaryDelay, then behaves like Call.
func Ancillary[T any](ctx context.Context, p CallPolicy, op string, fn func(ctx context.Context) (T, error)) (T, error) {
	if err := Sleep(ctx, p.AncillaryDelay); err != nil {
		var zero T
		return zero, err
	}
	return Call(ctx, p, op, fn)
}

// TopSubItems sorts by score descending (stable, ties keep input order) and then truncates to limit.
// The input slice is not modified.
func TopSubItems(items []SubItem, limit int) []SubItem {
	if limit <= 0 || len(items) == 0 {
		return []SubItem{}
	}
	sorted := slices.Clone(items)
	slices.SortStableFunc(sorted, func(a, b SubItem) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	return sorted
}

// CachedFetcher memoizes successful fetches. Failures are never cached.
type CachedFetcher struct {
	Next   Fetcher
	Cache  *Cache
	Logger *slog.Logger
}

// Fetch implements Fetcher.
func (c *CachedFetcher) Fetch(ctx context.Context, id ResourceID, opts FetchOptions) (DetailRecord, error) {
	key := CacheKey("fetch", id.String(), opts.key())
	if rec, ok := CacheLoadJSON[DetailRecord](ctx, c.Cache, key); ok {
		counters.CacheHits.Add(1)
		if c.Logger != nil {
			c.Logger.Debug("fetch cache hit", slog.String("id", id.String()))
		}
		return rec, nil
	}
	counters.CacheMisses.Add(1)

	rec, err := c.Next.Fetch(ctx, id, opts)
	if err != nil {
		return DetailRecord{}, err
	}
	CacheStoreJSON(ctx, c.Cache, key, rec)
	return rec, nil
}
