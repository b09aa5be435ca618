package sources

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/anatolykoptev/go_context/internal/engine"
	"golang.org/x/net/html"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

const (
	redditPublicBase = "https://www.reddit.com"
	redditOAuthBase  = "https://oauth.reddit.com"
	redditTokenURL   = "https://www.reddit.com/api/v1/access_token"
)

// RedditConfig configures the Reddit JSON client.
type RedditConfig struct {
	BaseURL      string // defaults to https://www.reddit.com, or oauth.reddit.com with credentials
	TokenURL     string // defaults to Reddit's access_token endpoint
	UserAgent    string
	ClientID     string // with ClientSecret enables app-only OAuth
	ClientSecret string
	RPS          float64 // request pacing; <= 0 disables the limiter
	HTTPClient   *http.Client
}

// RedditClient performs paced, authenticated GETs against Reddit's JSON API.
type RedditClient struct {
	base    string
	ua      string
	http    *http.Client
	limiter *rate.Limiter
}

// NewRedditClient builds a client. With credentials, requests carry app-only OAuth tokens.
func NewRedditClient(ctx context.Context, rc RedditConfig) *RedditClient {
	hc := rc.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 15 * time.Second}
	}
	base := rc.BaseURL
	if rc.ClientID != "" && rc.ClientSecret != "" {
		tokenURL := rc.TokenURL
		if tokenURL == "" {
			tokenURL = redditTokenURL
		}
		cc := clientcredentials.Config{
			ClientID:     rc.ClientID,
			ClientSecret: rc.ClientSecret,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInHeader,
		}
		hc = cc.Client(context.WithValue(ctx, oauth2.HTTPClient, hc))
		if base == "" || base == redditPublicBase {
			base = redditOAuthBase
		}
	}
	if base == "" {
		base = redditPublicBase
	}
	limit := rate.Inf
	if rc.RPS > 0 {
		limit = rate.Limit(rc.RPS)
	}
	ua := rc.UserAgent
	if ua == "" {
		ua = engine.UserAgentBot
	}
	return &RedditClient{
		base:    strings.TrimRight(base, "/"),
		ua:      ua,
		http:    hc,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// BaseURL returns the API host requests go to.
func (c *RedditClient) BaseURL() string { return c.base }

// getJSON GETs path (with query) and decodes the body into v. Single attempt.
func (c *RedditClient) getJSON(ctx context.Context, path string, q url.Values, v any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	u := c.base + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", c.ua)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.Response != nil {
			return fmt.Errorf("reddit token: %w", engine.StatusErr(rerr.Response.StatusCode, rerr.ErrorCode))
		}
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return engine.StatusErr(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 8*1024*1024)).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// --- Reddit listing types ---

type redditListing struct {
	Kind string `json:"kind"`
	Data struct {
		Children []redditThing `json:"children"`
	} `json:"data"`
}

type redditThing struct {
	Kind string          `json:"kind"`
	Data json.RawMessage `json:"data"`
}

type redditPost struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Author       string  `json:"author"`
	Subreddit    string  `json:"subreddit"`
	Permalink    string  `json:"permalink"`
	URL          string  `json:"url"`
	IsSelf       bool    `json:"is_self"`
	Selftext     string  `json:"selftext"`
	SelftextHTML string  `json:"selftext_html"`
	Score        int64   `json:"score"`
	NumComments  int64   `json:"num_comments"`
	UpvoteRatio  float64 `json:"upvote_ratio"`
	CreatedUTC   float64 `json:"created_utc"`
}

type redditComment struct {
	Author string `json:"author"`
	Body   string `json:"body"`
	Score  int64  `json:"score"`
}

// RedditFetcher loads a post by id and, optionally, its top-level comments.
type RedditFetcher struct {
	client *RedditClient
	policy engine.CallPolicy
	logger *slog.Logger
}

// NewRedditFetcher creates a fetcher on top of client.
func NewRedditFetcher(client *RedditClient, policy engine.CallPolicy, logger *slog.Logger) *RedditFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedditFetcher{client: client, policy: policy, logger: logger}
}

// Fetch implements engine.Fetcher.
func (f *RedditFetcher) Fetch(ctx context.Context, id engine.ResourceID, opts engine.FetchOptions) (engine.DetailRecord, error) {
	if id.Platform != engine.PlatformReddit {
		return engine.DetailRecord{}, engine.NewFetchFailure(id, engine.ErrInvalidID)
	}

	post, err := engine.Call(ctx, f.policy, engine.OpPrimary, func(ctx context.Context) (redditPost, error) {
		return f.fetchPost(ctx, id.Value)
	})
	if err != nil {
		return engine.DetailRecord{}, engine.NewFetchFailure(id, err)
	}

	rec := postRecord(id, post)
	rec.SubItems = []engine.SubItem{}

	if opts.IncludeSubItems && opts.SubItemLimit > 0 {
		comments, err := engine.Ancillary(ctx, f.policy, engine.OpAncillary, func(ctx context.Context) ([]engine.SubItem, error) {
			return f.fetchComments(ctx, id.Value, opts.SubItemLimit)
		})
		if err != nil {
			engine.IncrAncillaryErrors()
			f.logger.Warn("reddit: comments unavailable", slog.String("id", id.Value), slog.Any("error", err))
		} else {
			rec.SubItems = engine.TopSubItems(comments, opts.SubItemLimit)
			rec.HasSubItems = len(rec.SubItems) > 0
		}
	}
	return rec, nil
}

func (f *RedditFetcher) fetchPost(ctx context.Context, id string) (redditPost, error) {
	var listing redditListing
	if err := f.client.getJSON(ctx, "/by_id/t3_"+id+".json", nil, &listing); err != nil {
		return redditPost{}, err
	}
	for _, child := range listing.Data.Children {
		if child.Kind != "t3" {
			continue
		}
		var p redditPost
		if err := json.Unmarshal(child.Data, &p); err != nil {
			return redditPost{}, fmt.Errorf("decode post %s: %w", id, err)
		}
		return p, nil
	}
	return redditPost{}, fmt.Errorf("%w: post %s", engine.ErrNotFound, id)
}

func (f *RedditFetcher) fetchComments(ctx context.Context, id string, limit int) ([]engine.SubItem, error) {
	q := url.Values{
		"sort":  {"top"},
		"depth": {"1"},
		"limit": {strconv.Itoa(min(max(limit*2, 10), 100))},
	}
	var listings []redditListing
	if err := f.client.getJSON(ctx, "/comments/"+id+".json", q, &listings); err != nil {
		return nil, err
	}
	if len(listings) < 2 {
		return nil, fmt.Errorf("%w: no comment listing", engine.ErrAncillaryUnavailable)
	}
	return parseComments(listings[1]), nil
}

// parseComments keeps top-level t1 comments in listing order, skipping deleted ones.
func parseComments(l redditListing) []engine.SubItem {
	items := make([]engine.SubItem, 0, len(l.Data.Children))
	for _, child := range l.Data.Children {
		if child.Kind != "t1" {
			continue
		}
		var c redditComment
		if err := json.Unmarshal(child.Data, &c); err != nil {
			continue
		}
		body := strings.TrimSpace(html.UnescapeString(c.Body))
		if body == "" || body == "[deleted]" || body == "[removed]" {
			continue
		}
		items = append(items, engine.SubItem{Author: c.Author, Score: c.Score, Body: body})
	}
	return items
}

func postRecord(id engine.ResourceID, p redditPost) engine.DetailRecord {
	rec := engine.DetailRecord{
		ID:        id.Value,
		Platform:  engine.PlatformReddit,
		Title:     html.UnescapeString(p.Title),
		Author:    p.Author,
		Container: p.Subreddit,
		URL:       id.URL(),
		Body:      postBody(p),
		Metrics: engine.Metrics{
			Score:       p.Score,
			Comments:    p.NumComments,
			UpvoteRatio: p.UpvoteRatio,
		},
	}
	if p.Permalink != "" {
		rec.URL = redditPublicBase + p.Permalink
	}
	if p.CreatedUTC > 0 {
		rec.CreatedAt = time.Unix(int64(p.CreatedUTC), 0).UTC().Format(time.RFC3339)
	}
	return rec
}

// postBody prefers selftext, falls back to markdown converted from selftext_html,
// and for link posts to the linked URL.
func postBody(p redditPost) string {
	if body := strings.TrimSpace(html.UnescapeString(p.Selftext)); body != "" {
		return body
	}
	if p.SelftextHTML != "" {
		md, err := htmltomarkdown.ConvertString(html.UnescapeString(p.SelftextHTML))
		if err == nil && strings.TrimSpace(md) != "" {
			return strings.TrimSpace(md)
		}
	}
	if !p.IsSelf && p.URL != "" {
		return html.UnescapeString(p.URL)
	}
	return ""
}
