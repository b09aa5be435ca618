package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/anatolykoptev/go_context/internal/engine"
	"google.golang.org/api/youtube/v3"
)

const ytSearchFilter = "EgIQAQ%3D%3D" // videos-only filter param

// YouTubeSearchDiscoverer finds video URLs for a query.
// Uses the Data API search.list when a service is configured; otherwise,
// or when the API call fails, scrapes ytInitialData from the results page.
type YouTubeSearchDiscoverer struct {
	Service *youtube.Service // nil = scraping only
	HTTP    *http.Client
	BaseURL string // results page host, defaults to https://www.youtube.com
	Policy  engine.CallPolicy
	Logger  *slog.Logger
}

// Discover implements engine.Discoverer.
func (d *YouTubeSearchDiscoverer) Discover(ctx context.Context, query string, n int) ([]string, error) {
	engine.IncrYouTubeSearch()
	if n <= 0 {
		n = 10
	}

	if d.Service != nil {
		ids, err := engine.Call(ctx, d.Policy, engine.OpDiscover+".youtube_api", func(ctx context.Context) ([]string, error) {
			return d.searchDataAPI(ctx, query, n)
		})
		if err == nil {
			return watchURLs(ids), nil
		}
		d.logger().Warn("youtube: data API search failed, scraping results page", slog.Any("error", err))
	}

	ids, err := engine.Call(ctx, d.Policy, engine.OpDiscover+".youtube_scrape", func(ctx context.Context) ([]string, error) {
		return d.searchInitialData(ctx, query, n)
	})
	if err != nil {
		return nil, err
	}
	return watchURLs(ids), nil
}

func (d *YouTubeSearchDiscoverer) searchDataAPI(ctx context.Context, query string, n int) ([]string, error) {
	resp, err := d.Service.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		Order("relevance").
		MaxResults(int64(min(n, 50))).
		Context(ctx).
		Do()
	if err != nil {
		return nil, classifyGoogleErr(err)
	}
	ids := make([]string, 0, len(resp.Items))
	for _, item := range resp.Items {
		if item.Id != nil && item.Id.VideoId != "" {
			ids = append(ids, item.Id.VideoId)
		}
	}
	return ids, nil
}

func (d *YouTubeSearchDiscoverer) searchInitialData(ctx context.Context, query string, n int) ([]string, error) {
	base := ytWatchBase
	if d.BaseURL != "" {
		base = strings.TrimRight(d.BaseURL, "/")
	}
	searchURL := base + "/results?search_query=" + url.QueryEscape(query) + "&sp=" + ytSearchFilter

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, searchURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.RandomUserAgent())
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	client := d.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("youtube search page: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("youtube search page: %w", engine.StatusErr(resp.StatusCode, ""))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4*1024*1024))
	if err != nil {
		return nil, fmt.Errorf("read youtube search response: %w", err)
	}

	idx := bytes.Index(body, []byte(ytInitialDataMarker))
	if idx < 0 {
		return nil, fmt.Errorf("ytInitialData not found in YouTube search response")
	}
	jsonData := extractJSON(body[idx+len(ytInitialDataMarker):])
	if jsonData == nil {
		return nil, fmt.Errorf("failed to extract ytInitialData JSON")
	}
	return extractVideoIDs(jsonData, n), nil
}

func (d *YouTubeSearchDiscoverer) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// extractVideoIDs walks ytInitialData JSON for videoRenderer entries in document order.
func extractVideoIDs(data []byte, limit int) []string {
	var ids []string
	seen := map[string]bool{}
	var walk func(v json.RawMessage)
	walk = func(v json.RawMessage) {
		if len(ids) >= limit {
			return
		}
		switch firstNonSpace(v) {
		case '{':
			dec := json.NewDecoder(bytes.NewReader(v))
			// Keys are visited in document order so results keep YouTube's ranking.
			if _, err := dec.Token(); err != nil {
				return
			}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return
				}
				var child json.RawMessage
				if err := dec.Decode(&child); err != nil {
					return
				}
				if key, _ := keyTok.(string); key == "videoRenderer" {
					var vr ytVideoRenderer
					if json.Unmarshal(child, &vr) == nil && vr.VideoID != "" {
						if !seen[vr.VideoID] {
							seen[vr.VideoID] = true
							ids = append(ids, vr.VideoID)
						}
						continue
					}
				}
				walk(child)
				if len(ids) >= limit {
					return
				}
			}
		case '[':
			var arr []json.RawMessage
			if json.Unmarshal(v, &arr) != nil {
				return
			}
			for _, item := range arr {
				walk(item)
				if len(ids) >= limit {
					return
				}
			}
		}
	}
	walk(data)
	return ids
}

func firstNonSpace(b []byte) byte {
	for _, c := range b {
		switch c {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return c
	}
	return 0
}

func watchURLs(ids []string) []string {
	urls := make([]string, 0, len(ids))
	for _, id := range ids {
		urls = append(urls, engine.ResourceID{Platform: engine.PlatformYouTube, Value: id}.URL())
	}
	return urls
}
