package sources

// YouTube implementation is split across files by responsibility:
//   youtube.go            Data API service + DetailRecord fetcher
//   youtube_search.go     discovery (Data API search.list + ytInitialData scraping)
//   youtube_transcript.go transcript fetching (watch page + ANDROID player fallback)
//   youtube_innertube.go  Innertube payload types and JSON helpers

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/anatolykoptev/go_context/internal/engine"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/googleapi/transport"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

// NewYouTubeService builds a Data API client authenticated with an API key.
// endpoint overrides the API base URL and is empty in production.
func NewYouTubeService(ctx context.Context, apiKey string, client *http.Client, endpoint string) (*youtube.Service, error) {
	if apiKey == "" {
		return nil, errors.New("youtube: API key required")
	}
	base := http.DefaultTransport
	timeout := 15 * time.Second
	if client != nil {
		if client.Transport != nil {
			base = client.Transport
		}
		if client.Timeout > 0 {
			timeout = client.Timeout
		}
	}
	opts := []option.ClientOption{
		option.WithHTTPClient(&http.Client{
			Timeout:   timeout,
			Transport: &transport.APIKey{Key: apiKey, Transport: base},
		}),
	}
	if endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	svc, err := youtube.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("youtube: create service: %w", err)
	}
	return svc, nil
}

// YouTubeFetcher loads video metadata through the Data API and, optionally, the transcript.
type YouTubeFetcher struct {
	svc         *youtube.Service
	transcripts *TranscriptClient // nil = transcripts disabled
	policy      engine.CallPolicy
	logger      *slog.Logger
}

// NewYouTubeFetcher creates a fetcher. transcripts may be nil.
func NewYouTubeFetcher(svc *youtube.Service, transcripts *TranscriptClient, policy engine.CallPolicy, logger *slog.Logger) *YouTubeFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &YouTubeFetcher{svc: svc, transcripts: transcripts, policy: policy, logger: logger}
}

// Fetch implements engine.Fetcher.
func (f *YouTubeFetcher) Fetch(ctx context.Context, id engine.ResourceID, opts engine.FetchOptions) (engine.DetailRecord, error) {
	if id.Platform != engine.PlatformYouTube {
		return engine.DetailRecord{}, engine.NewFetchFailure(id, engine.ErrInvalidID)
	}

	video, err := engine.Call(ctx, f.policy, engine.OpPrimary, func(ctx context.Context) (*youtube.Video, error) {
		resp, err := f.svc.Videos.List([]string{"snippet", "statistics"}).Id(id.Value).Context(ctx).Do()
		if err != nil {
			return nil, classifyGoogleErr(err)
		}
		if len(resp.Items) == 0 {
			return nil, engine.ErrNotFound
		}
		return resp.Items[0], nil
	})
	if err != nil {
		return engine.DetailRecord{}, engine.NewFetchFailure(id, err)
	}

	rec := videoRecord(id, video)
	rec.SubItems = []engine.SubItem{}

	wantTranscript := opts.IncludeSubItems && (opts.FullAncillary || opts.SubItemLimit > 0)
	if wantTranscript && f.transcripts != nil {
		lines, err := engine.Ancillary(ctx, f.policy, engine.OpAncillary, func(ctx context.Context) ([]string, error) {
			return f.transcripts.Fetch(ctx, id.Value)
		})
		if err != nil {
			engine.IncrAncillaryErrors()
			level := slog.LevelWarn
			if errors.Is(err, engine.ErrAncillaryUnavailable) {
				level = slog.LevelDebug
			}
			f.logger.Log(ctx, level, "youtube: transcript unavailable", slog.String("id", id.Value), slog.Any("error", err))
		} else {
			rec.SubItems = transcriptItems(lines, opts)
			rec.HasSubItems = len(rec.SubItems) > 0
		}
	}
	return rec, nil
}

func videoRecord(id engine.ResourceID, v *youtube.Video) engine.DetailRecord {
	rec := engine.DetailRecord{
		ID:       id.Value,
		Platform: engine.PlatformYouTube,
		URL:      id.URL(),
	}
	if s := v.Snippet; s != nil {
		rec.Title = s.Title
		rec.Author = s.ChannelTitle
		rec.Container = s.ChannelTitle
		rec.Body = s.Description
		rec.CreatedAt = normalizeTime(s.PublishedAt)
	}
	if st := v.Statistics; st != nil {
		rec.Metrics = engine.Metrics{
			Score:    int64(st.LikeCount),
			Comments: int64(st.CommentCount),
			Views:    int64(st.ViewCount),
			Likes:    int64(st.LikeCount),
		}
	}
	return rec
}

// transcriptItems groups lines into excerpts: the first SubItemLimit for a preview,
// everything up to MaxTranscriptItems in full mode.
func transcriptItems(lines []string, opts engine.FetchOptions) []engine.SubItem {
	excerpts := GroupExcerpts(lines, ExcerptChars)
	limit := opts.SubItemLimit
	if opts.FullAncillary {
		limit = MaxTranscriptItems
	}
	if len(excerpts) > limit {
		excerpts = excerpts[:limit]
	}
	items := make([]engine.SubItem, 0, len(excerpts))
	for _, e := range excerpts {
		items = append(items, engine.SubItem{Body: e})
	}
	return items
}

// classifyGoogleErr maps Data API errors onto the engine's error classes.
func classifyGoogleErr(err error) error {
	var gerr *googleapi.Error
	if !errors.As(err, &gerr) {
		return err
	}
	switch {
	case gerr.Code == http.StatusNotFound:
		return fmt.Errorf("%w: %v", engine.ErrNotFound, err)
	case gerr.Code == http.StatusTooManyRequests, gerr.Code >= 500:
		return engine.Transient(err)
	case gerr.Code == http.StatusForbidden:
		for _, item := range gerr.Errors {
			switch item.Reason {
			case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded":
				return engine.Transient(err)
			}
		}
	}
	return err
}

func normalizeTime(s string) string {
	if s == "" {
		return ""
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return s
	}
	return t.UTC().Format(time.RFC3339)
}
