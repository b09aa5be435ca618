package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultConcurrency is the worker count used when none is given.
const DefaultConcurrency = 5

// Scheduler fans fetches out over a bounded worker pool and stops accepting once a target is met.
type Scheduler struct {
	Fetcher Fetcher
	Logger  *slog.Logger
	Metrics MetricsCollector
}

// RunStats summarises one scheduler run.
type RunStats struct {
	Candidates int // unique ids offered
	Dispatched int // fetches started
	Accepted   int
	Failed     int
	Discarded  int // successes that arrived after the target was met
}

// Run fetches ids until target records are accepted or the ids run out.
// With concurrency 1 records come back in candidate order; otherwise in completion order.
// In-flight fetches are allowed to finish after the target is met and their results are dropped.
func (s *Scheduler) Run(ctx context.Context, ids []ResourceID, target, concurrency int, opts FetchOptions) []DetailRecord {
	recs, _ := s.RunWithStats(ctx, ids, target, concurrency, opts)
	return recs
}

// RunWithStats is Run plus counters.
func (s *Scheduler) RunWithStats(ctx context.Context, ids []ResourceID, target, concurrency int, opts FetchOptions) ([]DetailRecord, RunStats) {
	ids = uniqueIDs(ids)
	stats := RunStats{Candidates: len(ids)}
	if target <= 0 || len(ids) == 0 {
		return []DetailRecord{}, stats
	}
	if concurrency < 1 {
		concurrency = 1
	}
	concurrency = min(concurrency, len(ids))

	r := &run{
		s:        s,
		logger:   s.logger(),
		target:   target,
		opts:     opts,
		accepted: make([]DetailRecord, 0, min(target, len(ids))),
		stop:     make(chan struct{}),
		stats:    stats,
	}
	if concurrency == 1 {
		r.sequential(ctx, ids)
	} else {
		r.concurrent(ctx, ids, concurrency)
	}

	r.logger.Debug("scheduler run done",
		slog.Int("candidates", r.stats.Candidates),
		slog.Int("dispatched", r.stats.Dispatched),
		slog.Int("accepted", r.stats.Accepted),
		slog.Int("failed", r.stats.Failed),
		slog.Int("discarded", r.stats.Discarded),
	)
	return r.accepted, r.stats
}

func (s *Scheduler) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// run holds the state of one Run call. mu guards accepted and stats.
type run struct {
	s      *Scheduler
	logger *slog.Logger
	target int
	opts   FetchOptions

	mu       sync.Mutex
	accepted []DetailRecord
	stats    RunStats

	stop     chan struct{}
	stopOnce sync.Once
}

func (r *run) sequential(ctx context.Context, ids []ResourceID) {
	for _, id := range ids {
		if ctx.Err() != nil || r.done() {
			return
		}
		r.fetchOne(ctx, id)
	}
}

func (r *run) concurrent(ctx context.Context, ids []ResourceID, workers int) {
	jobs := make(chan ResourceID)

	go func() {
		defer close(jobs)
		for _, id := range ids {
			select {
			case <-r.stop:
				return
			case <-ctx.Done():
				return
			case jobs <- id:
			}
		}
	}()

	var wg sync.WaitGroup
	for range workers {
		wg.Go(func() {
			for id := range jobs {
				if r.done() || ctx.Err() != nil {
					continue
				}
				r.fetchOne(ctx, id)
			}
		})
	}
	wg.Wait()
}

func (r *run) done() bool {
	select {
	case <-r.stop:
		return true
	default:
		return false
	}
}

func (r *run) fetchOne(ctx context.Context, id ResourceID) {
	r.mu.Lock()
	r.stats.Dispatched++
	r.mu.Unlock()

	start := time.Now()
	rec, err := r.safeFetch(ctx, id)
	if r.s.Metrics != nil {
		r.s.Metrics.Record(OpFetch, time.Since(start))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err != nil {
		r.stats.Failed++
		counters.FetchErrors.Add(1)
		r.logger.Warn("fetch failed", slog.String("id", id.String()), slog.Any("error", err))
		return
	}
	if len(r.accepted) >= r.target {
		r.stats.Discarded++
		return
	}
	r.accepted = append(r.accepted, rec)
	r.stats.Accepted++
	if len(r.accepted) == r.target {
		r.stopOnce.Do(func() { close(r.stop) })
	}
}

// safeFetch turns a panic in the fetcher into a FetchFailure for that id.
func (r *run) safeFetch(ctx context.Context, id ResourceID) (rec DetailRecord, err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Warn("fetcher panicked", slog.String("id", id.String()), slog.Any("panic", v))
			err = &FetchFailure{ID: id, Reason: "panic", Err: fmt.Errorf("%v", v)}
		}
	}()
	return r.s.Fetcher.Fetch(ctx, id, r.opts)
}

func uniqueIDs(ids []ResourceID) []ResourceID {
	seen := make(map[ResourceID]bool, len(ids))
	out := make([]ResourceID, 0, len(ids))
	for _, id := range ids {
		if id.IsZero() || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
