package sources

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/mmcdole/gofeed"
)

// RedditRSSDiscoverer finds posts through Reddit's public search RSS feed.
type RedditRSSDiscoverer struct {
	BaseURL   string // defaults to https://www.reddit.com
	UserAgent string
	HTTP      *http.Client
	Policy    engine.CallPolicy
}

// Discover implements engine.Discoverer.
func (d *RedditRSSDiscoverer) Discover(ctx context.Context, query string, n int) ([]string, error) {
	if n <= 0 {
		n = 10
	}
	feedURL := d.feedURL(query, n)

	links, err := engine.Call(ctx, d.Policy, engine.OpDiscover+".reddit_rss", func(ctx context.Context) ([]string, error) {
		engine.IncrRedditRSS()
		return d.parse(ctx, feedURL)
	})
	if err != nil {
		return nil, fmt.Errorf("reddit rss: %w", err)
	}
	return engine.DedupURLs(links, n), nil
}

func (d *RedditRSSDiscoverer) feedURL(query string, n int) string {
	base := redditPublicBase
	if d.BaseURL != "" {
		base = strings.TrimRight(d.BaseURL, "/")
	}
	q := url.Values{
		"q":     {query},
		"sort":  {"relevance"},
		"type":  {"link"},
		"limit": {strconv.Itoa(min(n, 100))},
	}
	return base + "/search.rss?" + q.Encode()
}

func (d *RedditRSSDiscoverer) parse(ctx context.Context, feedURL string) ([]string, error) {
	fp := gofeed.NewParser()
	if d.HTTP != nil {
		fp.Client = d.HTTP
	}
	fp.UserAgent = d.UserAgent
	if fp.UserAgent == "" {
		fp.UserAgent = engine.UserAgentBot
	}

	feed, err := fp.ParseURLWithContext(feedURL, ctx)
	if err != nil {
		var herr gofeed.HTTPError
		if errors.As(err, &herr) {
			return nil, engine.StatusErr(herr.StatusCode, herr.Status)
		}
		return nil, err
	}

	links := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item.Link != "" {
			links = append(links, item.Link)
		}
	}
	return links, nil
}
