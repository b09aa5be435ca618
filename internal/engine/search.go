package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

// Discoverer turns a free-text query into candidate URLs, best first.
type Discoverer interface {
	Discover(ctx context.Context, query string, n int) ([]string, error)
}

// DiscovererFunc adapts a function to Discoverer.
type DiscovererFunc func(ctx context.Context, query string, n int) ([]string, error)

func (f DiscovererFunc) Discover(ctx context.Context, query string, n int) ([]string, error) {
	return f(ctx, query, n)
}

// SearchHit is one web search result.
type SearchHit struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	URL     string  `json:"url"`
	Score   float64 `json:"score"`
}

type searxngResponse struct {
	Results []SearchHit `json:"results"`
}

// SearxngDiscoverer queries a SearXNG instance's JSON API.
type SearxngDiscoverer struct {
	BaseURL string
	Client  *http.Client
	Site    string // appended as "site:<Site>" when set
	Engines string
	Retry   RetryConfig
}

// Discover implements Discoverer.
func (s *SearxngDiscoverer) Discover(ctx context.Context, query string, n int) ([]string, error) {
	hits, err := s.Search(ctx, siteQuery(query, s.Site))
	if err != nil {
		return nil, err
	}
	return hitURLs(hits, n), nil
}

// Search queries the SearXNG instance and returns raw results.
func (s *SearxngDiscoverer) Search(ctx context.Context, query string) ([]SearchHit, error) {
	if s.BaseURL == "" {
		return nil, errors.New("searxng: no base URL configured")
	}
	u, err := url.Parse(strings.TrimRight(s.BaseURL, "/") + "/search")
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("q", query)
	q.Set("format", "json")
	if s.Engines != "" {
		q.Set("engines", s.Engines)
	}
	u.RawQuery = q.Encode()

	counters.SearxngRequests.Add(1)

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := RetryHTTP(ctx, s.Retry, func() (*http.Response, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", UserAgentBot)
		return client.Do(req)
	})
	if err != nil {
		return nil, fmt.Errorf("searxng: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("searxng: %w", StatusErr(resp.StatusCode, ""))
	}

	var data searxngResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, fmt.Errorf("searxng decode: %w", err)
	}
	return data.Results, nil
}

// WebDiscoverer runs the DuckDuckGo scraper and SearXNG in parallel and merges
// their URLs, DuckDuckGo first. Either side may be nil.
type WebDiscoverer struct {
	DDG       *DDGDiscoverer
	Startpage *StartpageDiscoverer
	Searxng   *SearxngDiscoverer
	Logger    *slog.Logger
}

// Discover implements Discoverer. It fails only when every configured provider fails.
func (w *WebDiscoverer) Discover(ctx context.Context, query string, n int) ([]string, error) {
	logger := w.Logger
	if logger == nil {
		logger = slog.Default()
	}

	var providers []Discoverer
	var names []string
	if w.DDG != nil {
		providers = append(providers, w.DDG)
		names = append(names, "ddg")
	}
	if w.Startpage != nil {
		providers = append(providers, w.Startpage)
		names = append(names, "startpage")
	}
	if w.Searxng != nil {
		providers = append(providers, w.Searxng)
		names = append(names, "searxng")
	}
	if len(providers) == 0 {
		return nil, errors.New("web discovery: no providers configured")
	}

	results := make([][]string, len(providers))
	errs := make([]error, len(providers))
	var wg sync.WaitGroup
	for i, p := range providers {
		wg.Go(func() {
			results[i], errs[i] = p.Discover(ctx, query, n)
			if errs[i] != nil {
				logger.Debug("web discovery provider failed", slog.String("provider", names[i]), slog.Any("error", errs[i]))
			}
		})
	}
	wg.Wait()

	var merged []string
	for _, r := range results {
		merged = append(merged, r...)
	}
	if len(merged) == 0 {
		if err := errors.Join(errs...); err != nil {
			return nil, err
		}
	}
	return DedupURLs(merged, n), nil
}

// ChainDiscoverer asks providers in order until n unique URLs are collected.
// A failing provider is logged and skipped.
type ChainDiscoverer struct {
	Providers []Discoverer
	Logger    *slog.Logger
}

// Discover implements Discoverer.
func (c *ChainDiscoverer) Discover(ctx context.Context, query string, n int) ([]string, error) {
	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var all []string
	var errs []error
	for i, p := range c.Providers {
		if ctx.Err() != nil {
			break
		}
		urls, err := p.Discover(ctx, query, n)
		if err != nil {
			logger.Warn("discovery provider failed", slog.Int("provider", i), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		all = DedupURLs(append(all, urls...), 0)
		if n > 0 && len(all) >= n {
			break
		}
	}
	if len(all) == 0 && len(errs) > 0 {
		return nil, fmt.Errorf("all discovery providers failed: %w", errors.Join(errs...))
	}
	return DedupURLs(all, n), nil
}

// DedupURLs removes exact duplicates (ignoring query string and fragment) keeping first occurrence.
// n <= 0 means no limit.
func DedupURLs(urls []string, n int) []string {
	seen := make(map[string]bool, len(urls))
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		key := StripQuery(u)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, u)
		if n > 0 && len(out) >= n {
			break
		}
	}
	return out
}

// StripQuery drops the query string and fragment from a URL.
// YouTube watch URLs keep their v parameter.
func StripQuery(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return strings.TrimSpace(raw)
	}
	v := u.Query().Get("v")
	u.Fragment = ""
	u.RawQuery = ""
	if v != "" && strings.HasSuffix(u.Path, "/watch") {
		u.RawQuery = "v=" + url.QueryEscape(v)
	}
	return u.String()
}

func siteQuery(query, site string) string {
	if site == "" || strings.Contains(query, "site:") {
		return query
	}
	return query + " site:" + site
}

func hitURLs(hits []SearchHit, n int) []string {
	urls := make([]string, 0, len(hits))
	for _, h := range hits {
		urls = append(urls, h.URL)
	}
	return DedupURLs(urls, n)
}
