package contextserver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/anatolykoptev/go_context/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePipeline struct {
	discoveries atomic.Int32
	lastOpts    atomic.Value
}

func (f *fakePipeline) pipeline(platform engine.Platform) *engine.Pipeline {
	return &engine.Pipeline{
		Platform: platform,
		Discoverer: engine.DiscovererFunc(func(_ context.Context, _ string, n int) ([]string, error) {
			f.discoveries.Add(1)
			urls := make([]string, 0, n)
			for i := range n {
				id := fmt.Sprintf("p%05d", i)
				if platform == engine.PlatformYouTube {
					id = fmt.Sprintf("vid%08d", i)
				}
				urls = append(urls, engine.ResourceID{Platform: platform, Value: id}.URL())
			}
			return urls, nil
		}),
		Fetcher: engine.FetcherFunc(func(_ context.Context, id engine.ResourceID, opts engine.FetchOptions) (engine.DetailRecord, error) {
			f.lastOpts.Store(opts)
			return engine.DetailRecord{
				ID:        id.Value,
				Platform:  id.Platform,
				Title:     "Title " + id.Value,
				Container: "Monitors",
				URL:       id.URL(),
				SubItems:  []engine.SubItem{{Body: "first"}},
			}, nil
		}),
		DefaultConcurrency: 1,
	}
}

func newDeps(t *testing.T, withArchive bool) (Deps, *fakePipeline) {
	t.Helper()
	fp := &fakePipeline{}
	d := Deps{
		Reddit:  fp.pipeline(engine.PlatformReddit),
		YouTube: fp.pipeline(engine.PlatformYouTube),
		Cache:   engine.NewCache(context.Background(), engine.CacheConfig{}, nil),
	}
	if withArchive {
		h, err := store.OpenHistory(context.Background(), "sqlite", filepath.Join(t.TempDir(), "history.db"))
		require.NoError(t, err)
		t.Cleanup(func() { h.Close() })
		d.History = h
		d.Archive = &store.Archive{Dir: t.TempDir(), History: h}
	}
	return d, fp
}

func TestRedditSearchDefaults(t *testing.T) {
	d, fp := newDeps(t, false)

	in := RedditSearchInput{Query: "best monitor"}
	out, err := runSearch(context.Background(), d, "reddit_search", d.Reddit, in.request(), false)
	require.NoError(t, err)

	assert.Equal(t, "reddit", out.Platform)
	assert.Equal(t, "reduced-markup", out.Format)
	assert.Equal(t, redditDefaultCount, out.Count)
	assert.Equal(t, redditDefaultCount, strings.Count(out.Markup, "<post>"))
	assert.Nil(t, out.Records)

	opts := fp.lastOpts.Load().(engine.FetchOptions)
	assert.True(t, opts.IncludeSubItems)
	assert.Equal(t, 5, opts.SubItemLimit)
}

func TestSearchCachesUnsavedRequests(t *testing.T) {
	d, fp := newDeps(t, false)
	in := YouTubeSearchInput{Query: "monitor review", Format: "full", Count: 2}

	for range 2 {
		out, err := runSearch(context.Background(), d, "youtube_search", d.YouTube, in.request(), false)
		require.NoError(t, err)
		require.Len(t, out.Records, 2)
		assert.Equal(t, "Title vid00000000", out.Records[0].Title)
	}
	assert.Equal(t, int32(1), fp.discoveries.Load())
}

func TestSearchCacheKeepsSequentialOrder(t *testing.T) {
	var discoveries atomic.Int32
	p := &engine.Pipeline{
		Platform: engine.PlatformReddit,
		Discoverer: engine.DiscovererFunc(func(context.Context, string, int) ([]string, error) {
			discoveries.Add(1)
			return []string{
				"https://www.reddit.com/comments/aaa1/",
				"https://www.reddit.com/comments/bbb2/",
				"https://www.reddit.com/comments/ccc3/",
			}, nil
		}),
		// Later candidates finish first.
		Fetcher: engine.FetcherFunc(func(ctx context.Context, id engine.ResourceID, _ engine.FetchOptions) (engine.DetailRecord, error) {
			delay := map[string]time.Duration{"aaa1": 60 * time.Millisecond, "bbb2": 30 * time.Millisecond}[id.Value]
			if err := engine.Sleep(ctx, delay); err != nil {
				return engine.DetailRecord{}, engine.NewFetchFailure(id, err)
			}
			return engine.DetailRecord{ID: id.Value, Platform: id.Platform, Title: id.Value, URL: id.URL()}, nil
		}),
	}
	d := Deps{Reddit: p, Cache: engine.NewCache(context.Background(), engine.CacheConfig{}, nil)}

	parallel := RedditSearchInput{Query: "monitors", Count: 3, Format: "full", Concurrency: 5}
	_, err := runSearch(context.Background(), d, "reddit_search", p, parallel.request(), false)
	require.NoError(t, err)

	sequential := parallel
	sequential.Concurrency = 1
	out, err := runSearch(context.Background(), d, "reddit_search", p, sequential.request(), false)
	require.NoError(t, err)

	assert.Equal(t, int32(2), discoveries.Load(), "different concurrency is a different cache entry")
	require.Len(t, out.Records, 3)
	for i, want := range []string{"aaa1", "bbb2", "ccc3"} {
		assert.Equal(t, want, out.Records[i].ID)
	}
}

func TestSearchConfigError(t *testing.T) {
	d, fp := newDeps(t, false)
	in := RedditSearchInput{Query: "q", Count: 26}

	_, err := runSearch(context.Background(), d, "reddit_search", d.Reddit, in.request(), false)
	var ce *engine.ConfigError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, "desired_count", ce.Field)
	assert.Zero(t, fp.discoveries.Load())
}

func TestSearchSaveRequiresArchive(t *testing.T) {
	d, _ := newDeps(t, false)
	in := RedditSearchInput{Query: "q", Save: true}
	_, err := runSearch(context.Background(), d, "reddit_search", d.Reddit, in.request(), true)
	assert.Error(t, err)
}

func TestSearchSaveAndHistory(t *testing.T) {
	d, fp := newDeps(t, true)
	ctx := context.Background()

	in := YouTubeSearchInput{Query: "monitor review", Format: "slim_json", FullTranscript: true, Save: true}
	for range 2 {
		out, err := runSearch(ctx, d, "youtube_search", d.YouTube, in.request(), in.Save)
		require.NoError(t, err)
		assert.Equal(t, "reduced-object", out.Format)
		assert.Len(t, out.Slim, youtubeDefaultCount)
		assert.NotEmpty(t, out.RunID)
		assert.FileExists(t, out.SavedTo)
	}
	assert.Equal(t, int32(2), fp.discoveries.Load(), "saved runs bypass the cache")
	assert.True(t, fp.lastOpts.Load().(engine.FetchOptions).FullAncillary)

	hist, err := searchHistory(ctx, d.History, HistoryInput{Platform: "youtube"})
	require.NoError(t, err)
	require.Equal(t, 2, hist.Count)

	one, err := searchHistory(ctx, d.History, HistoryInput{RunID: hist.Runs[0].ID})
	require.NoError(t, err)
	require.Len(t, one.Runs, 1)
	assert.Len(t, one.Runs[0].ResourceIDs, youtubeDefaultCount)

	_, err = searchHistory(ctx, d.History, HistoryInput{RunID: "nope"})
	assert.Error(t, err)
}

func TestRegisterTools(t *testing.T) {
	d, _ := newDeps(t, true)
	server := mcp.NewServer(&mcp.Implementation{Name: "go_context", Version: "test"}, nil)
	assert.Equal(t, 3, RegisterTools(server, d))

	ctx := context.Background()
	st, ct := mcp.NewInMemoryTransports()
	ss, err := server.Connect(ctx, st, nil)
	require.NoError(t, err)
	defer ss.Close()

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "test"}, nil)
	cs, err := client.Connect(ctx, ct, nil)
	require.NoError(t, err)
	defer cs.Close()

	tools, err := cs.ListTools(ctx, nil)
	require.NoError(t, err)
	var names []string
	for _, tool := range tools.Tools {
		names = append(names, tool.Name)
	}
	sort.Strings(names)
	assert.Equal(t, []string{"reddit_search", "search_history", "youtube_search"}, names)

	res, err := cs.CallTool(ctx, &mcp.CallToolParams{
		Name:      "reddit_search",
		Arguments: map[string]any{"query": "best monitor", "count": 2, "format": "reduced-markup"},
	})
	require.NoError(t, err)
	require.False(t, res.IsError)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	assert.Contains(t, text.Text, "reddit_results")
}

func TestRegisterToolsSkipsMissing(t *testing.T) {
	server := mcp.NewServer(&mcp.Implementation{Name: "go_context", Version: "test"}, nil)
	fp := &fakePipeline{}
	assert.Equal(t, 1, RegisterTools(server, Deps{Reddit: fp.pipeline(engine.PlatformReddit)}))
}
