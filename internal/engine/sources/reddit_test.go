package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy() engine.CallPolicy {
	return engine.CallPolicy{
		Retry:       engine.RetryConfig{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: 5 * time.Millisecond, Multiplier: 2},
		CallTimeout: 2 * time.Second,
	}
}

const postJSON = `{"kind":"Listing","data":{"children":[{"kind":"t3","data":{
	"id":"abc123","title":"Best 1440p monitor &amp; GPU?","author":"op","subreddit":"Monitors",
	"permalink":"/r/Monitors/comments/abc123/best_1440p_monitor/","url":"https://www.reddit.com/r/Monitors/comments/abc123/best_1440p_monitor/",
	"is_self":true,"selftext":"Budget is &lt;$400","selftext_html":"","score":42,"num_comments":5,"upvote_ratio":0.97,"created_utc":1735689600.0}}]}}`

func commentsJSON() string {
	comments := []struct {
		Author string
		Score  int
		Body   string
	}{
		{"a", 1, "meh"},
		{"b", 9, "Dell S2721DGF &amp; done"},
		{"c", 2, "[deleted]"},
		{"d", 8, "LG 27GP850"},
		{"e", 3, "check rtings"},
	}
	var children []string
	for _, c := range comments {
		children = append(children, fmt.Sprintf(`{"kind":"t1","data":{"author":%q,"score":%d,"body":%q}}`, c.Author, c.Score, c.Body))
	}
	children = append(children, `{"kind":"more","data":{"count":10}}`)
	return `[` + postJSON + `,{"kind":"Listing","data":{"children":[` + strings.Join(children, ",") + `]}}]`
}

func newRedditServer(t *testing.T, commentsStatus *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/by_id/t3_abc123.json":
			w.Write([]byte(postJSON))
		case r.URL.Path == "/by_id/t3_gone99.json":
			w.Write([]byte(`{"kind":"Listing","data":{"children":[]}}`))
		case r.URL.Path == "/by_id/t3_err500.json":
			w.WriteHeader(http.StatusBadGateway)
		case strings.HasPrefix(r.URL.Path, "/comments/abc123.json"):
			assert.Equal(t, "top", r.URL.Query().Get("sort"))
			assert.Equal(t, "1", r.URL.Query().Get("depth"))
			if commentsStatus != nil && commentsStatus.Load() != 0 {
				w.WriteHeader(int(commentsStatus.Load()))
				return
			}
			w.Write([]byte(commentsJSON()))
		default:
			http.NotFound(w, r)
		}
	}))
}

func TestRedditFetcherPostAndComments(t *testing.T) {
	srv := newRedditServer(t, nil)
	defer srv.Close()

	client := NewRedditClient(context.Background(), RedditConfig{BaseURL: srv.URL, HTTPClient: srv.Client()})
	f := NewRedditFetcher(client, fastPolicy(), nil)

	rec, err := f.Fetch(context.Background(), engine.ResourceID{Platform: engine.PlatformReddit, Value: "abc123"},
		engine.FetchOptions{IncludeSubItems: true, SubItemLimit: 3})
	require.NoError(t, err)

	assert.Equal(t, "Best 1440p monitor & GPU?", rec.Title)
	assert.Equal(t, "Budget is <$400", rec.Body)
	assert.Equal(t, "Monitors", rec.Container)
	assert.Equal(t, "https://www.reddit.com/r/Monitors/comments/abc123/best_1440p_monitor/", rec.URL)
	assert.Equal(t, int64(42), rec.Metrics.Score)
	assert.Equal(t, "2025-01-01T00:00:00Z", rec.CreatedAt)

	require.True(t, rec.HasSubItems)
	require.Len(t, rec.SubItems, 3)
	assert.Equal(t, []int64{9, 8, 3}, []int64{rec.SubItems[0].Score, rec.SubItems[1].Score, rec.SubItems[2].Score})
	assert.Equal(t, "Dell S2721DGF & done", rec.SubItems[0].Body)
}

func TestRedditFetcherWithoutSubItems(t *testing.T) {
	srv := newRedditServer(t, nil)
	defer srv.Close()

	f := NewRedditFetcher(NewRedditClient(context.Background(), RedditConfig{BaseURL: srv.URL}), fastPolicy(), nil)
	rec, err := f.Fetch(context.Background(), engine.ResourceID{Platform: engine.PlatformReddit, Value: "abc123"}, engine.FetchOptions{})
	require.NoError(t, err)
	assert.False(t, rec.HasSubItems)
	assert.NotNil(t, rec.SubItems)
	assert.Empty(t, rec.SubItems)
}

func TestRedditFetcherCommentsFailureDegrades(t *testing.T) {
	var status atomic.Int32
	status.Store(http.StatusServiceUnavailable)
	srv := newRedditServer(t, &status)
	defer srv.Close()

	f := NewRedditFetcher(NewRedditClient(context.Background(), RedditConfig{BaseURL: srv.URL}), fastPolicy(), nil)
	rec, err := f.Fetch(context.Background(), engine.ResourceID{Platform: engine.PlatformReddit, Value: "abc123"},
		engine.FetchOptions{IncludeSubItems: true, SubItemLimit: 5})
	require.NoError(t, err)
	assert.Equal(t, "Best 1440p monitor & GPU?", rec.Title)
	assert.False(t, rec.HasSubItems)
	assert.Empty(t, rec.SubItems)
}

func TestRedditFetcherNotFound(t *testing.T) {
	srv := newRedditServer(t, nil)
	defer srv.Close()

	f := NewRedditFetcher(NewRedditClient(context.Background(), RedditConfig{BaseURL: srv.URL}), fastPolicy(), nil)
	for _, id := range []string{"gone99", "zzz404"} {
		_, err := f.Fetch(context.Background(), engine.ResourceID{Platform: engine.PlatformReddit, Value: id}, engine.FetchOptions{})
		var ff *engine.FetchFailure
		require.True(t, errors.As(err, &ff), "id %s: %v", id, err)
		assert.Equal(t, "not found", ff.Reason)
		assert.ErrorIs(t, err, engine.ErrNotFound)
	}
}

func TestRedditFetcherTransientExhausted(t *testing.T) {
	srv := newRedditServer(t, nil)
	defer srv.Close()

	f := NewRedditFetcher(NewRedditClient(context.Background(), RedditConfig{BaseURL: srv.URL}), fastPolicy(), nil)
	_, err := f.Fetch(context.Background(), engine.ResourceID{Platform: engine.PlatformReddit, Value: "err500"}, engine.FetchOptions{})
	var ff *engine.FetchFailure
	require.True(t, errors.As(err, &ff))
	assert.Equal(t, "retries exhausted", ff.Reason)
}

func TestRedditFetcherRejectsOtherPlatforms(t *testing.T) {
	f := NewRedditFetcher(NewRedditClient(context.Background(), RedditConfig{}), fastPolicy(), nil)
	_, err := f.Fetch(context.Background(), engine.ResourceID{Platform: engine.PlatformYouTube, Value: "dQw4w9WgXcQ"}, engine.FetchOptions{})
	assert.ErrorIs(t, err, engine.ErrInvalidID)
}

func TestRedditClientOAuth(t *testing.T) {
	var tokenCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/access_token":
			tokenCalls.Add(1)
			user, pass, ok := r.BasicAuth()
			assert.True(t, ok)
			assert.Equal(t, "id", user)
			assert.Equal(t, "secret", pass)
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "token_type": "bearer", "expires_in": 3600})
		case "/by_id/t3_abc123.json":
			if r.Header.Get("Authorization") != "Bearer tok" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(postJSON))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewRedditClient(context.Background(), RedditConfig{
		BaseURL:      srv.URL,
		TokenURL:     srv.URL + "/api/v1/access_token",
		ClientID:     "id",
		ClientSecret: "secret",
		HTTPClient:   srv.Client(),
	})
	assert.Equal(t, srv.URL, client.BaseURL())

	f := NewRedditFetcher(client, fastPolicy(), nil)
	for range 2 {
		rec, err := f.Fetch(context.Background(), engine.ResourceID{Platform: engine.PlatformReddit, Value: "abc123"}, engine.FetchOptions{})
		require.NoError(t, err)
		assert.Equal(t, "abc123", rec.ID)
	}
	assert.Equal(t, int32(1), tokenCalls.Load(), "token is reused")
}

func TestRedditClientDefaultsToOAuthHost(t *testing.T) {
	c := NewRedditClient(context.Background(), RedditConfig{ClientID: "id", ClientSecret: "s"})
	assert.Equal(t, redditOAuthBase, c.BaseURL())
	c = NewRedditClient(context.Background(), RedditConfig{})
	assert.Equal(t, redditPublicBase, c.BaseURL())
}

func TestPostBodyFallbacks(t *testing.T) {
	p := redditPost{SelftextHTML: "&lt;div class=\"md\"&gt;&lt;p&gt;Hello &lt;strong&gt;world&lt;/strong&gt;&lt;/p&gt;&lt;/div&gt;", IsSelf: true}
	assert.Equal(t, "Hello **world**", postBody(p))

	link := redditPost{URL: "https://example.com/review?a=1&amp;b=2"}
	assert.Equal(t, "https://example.com/review?a=1&b=2", postBody(link))

	assert.Empty(t, postBody(redditPost{IsSelf: true}))
}

func TestRedditRSSDiscoverer(t *testing.T) {
	const feed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <title>reddit.com: search results - monitors</title>
  <entry><title>Best 1440p?</title><link rel="alternate" href="https://www.reddit.com/r/Monitors/comments/aaa111/best_1440p/"/></entry>
  <entry><title>Dup</title><link rel="alternate" href="https://www.reddit.com/r/Monitors/comments/aaa111/best_1440p/"/></entry>
  <entry><title>Another</title><link rel="alternate" href="https://www.reddit.com/r/buildapc/comments/bbb222/another/"/></entry>
</feed>`
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search.rss", r.URL.Path)
		gotQuery = r.URL.Query().Get("q")
		w.Header().Set("Content-Type", "application/atom+xml")
		w.Write([]byte(feed))
	}))
	defer srv.Close()

	d := &RedditRSSDiscoverer{BaseURL: srv.URL, HTTP: srv.Client(), Policy: fastPolicy()}
	urls, err := d.Discover(context.Background(), "best 1440p monitors", 10)
	require.NoError(t, err)
	assert.Equal(t, "best 1440p monitors", gotQuery)
	assert.Equal(t, []string{
		"https://www.reddit.com/r/Monitors/comments/aaa111/best_1440p/",
		"https://www.reddit.com/r/buildapc/comments/bbb222/another/",
	}, urls)
}

func TestRedditRSSDiscovererHTTPError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	d := &RedditRSSDiscoverer{BaseURL: srv.URL, HTTP: srv.Client(), Policy: fastPolicy()}
	_, err := d.Discover(context.Background(), "q", 5)
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load(), "429 is retried")
}
