package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/anatolykoptev/go_context/internal/engine"
	"golang.org/x/net/html"
)

// Transcript excerpt sizing.
const (
	ExcerptChars       = 400
	MaxTranscriptItems = 200
)

// TranscriptClient fetches caption text for a video.
// Primary:  scrape watch page ytInitialPlayerResponse → caption XML
// Fallback: ANDROID Innertube /player → captionTracks
// Each method makes single attempts; retry is the caller's concern.
type TranscriptClient struct {
	HTTP    *http.Client
	BaseURL string   // defaults to https://www.youtube.com
	Langs   []string // preferred caption languages, best first
	Logger  *slog.Logger
}

// Fetch returns transcript lines in playback order.
// Videos without usable captions yield engine.ErrAncillaryUnavailable.
func (c *TranscriptClient) Fetch(ctx context.Context, videoID string) ([]string, error) {
	engine.IncrYouTubeTranscript()

	lines, err := c.viaPageScrape(ctx, videoID)
	if err == nil {
		return lines, nil
	}
	c.logger().Debug("youtube: page scrape failed, trying player",
		slog.String("id", videoID), slog.Any("error", err))

	lines, perr := c.viaPlayer(ctx, videoID)
	if perr == nil {
		return lines, nil
	}
	return nil, errors.Join(err, perr)
}

func (c *TranscriptClient) viaPageScrape(ctx context.Context, videoID string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base()+"/watch?v="+videoID, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.RandomUserAgent())
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	body, err := c.do(req, 6*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("watch page: %w", err)
	}

	idx := bytes.Index(body, []byte(ytInitialPlayerResponseMarker))
	if idx < 0 {
		return nil, errors.New("ytInitialPlayerResponse not found in watch page")
	}
	jsonData := extractJSON(body[idx+len(ytInitialPlayerResponseMarker):])
	if jsonData == nil {
		return nil, errors.New("failed to extract ytInitialPlayerResponse JSON")
	}

	var pr playerResp
	if err := json.Unmarshal(jsonData, &pr); err != nil {
		return nil, fmt.Errorf("decode ytInitialPlayerResponse: %w", err)
	}
	return c.fromPlayer(ctx, pr)
}

func (c *TranscriptClient) viaPlayer(ctx context.Context, videoID string) ([]string, error) {
	payload, err := json.Marshal(androidPlayerReq(videoID))
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base()+ytPlayerPath+"?prettyPrint=false", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", ytAndroidUA)
	req.Header.Set("X-Youtube-Client-Name", "3")
	req.Header.Set("X-Youtube-Client-Version", ytAndroidVersion)

	body, err := c.do(req, 2*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("android player: %w", err)
	}
	var pr playerResp
	if err := json.Unmarshal(body, &pr); err != nil {
		return nil, fmt.Errorf("decode player: %w", err)
	}
	return c.fromPlayer(ctx, pr)
}

func (c *TranscriptClient) fromPlayer(ctx context.Context, pr playerResp) ([]string, error) {
	tracks := pr.tracks()
	if len(tracks) == 0 {
		reason := "no caption tracks"
		if pr.PlayabilityStatus != nil && pr.PlayabilityStatus.Reason != "" {
			reason = pr.PlayabilityStatus.Reason
		}
		return nil, fmt.Errorf("%w: %s", engine.ErrAncillaryUnavailable, reason)
	}
	track, ok := pickBestTrack(tracks, c.Langs)
	if !ok {
		return nil, fmt.Errorf("%w: all caption tracks require PoToken", engine.ErrAncillaryUnavailable)
	}
	return c.fetchTimedText(ctx, track.BaseURL)
}

// fetchTimedText fetches and parses a timedtext XML caption URL.
func (c *TranscriptClient) fetchTimedText(ctx context.Context, baseURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", engine.UserAgentBot)

	body, err := c.do(req, 1024*1024)
	if err != nil {
		return nil, fmt.Errorf("fetch timedtext: %w", err)
	}
	lines, err := parseTimedText(body)
	if err != nil {
		return nil, err
	}
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty caption track", engine.ErrAncillaryUnavailable)
	}
	return lines, nil
}

func parseTimedText(body []byte) ([]string, error) {
	var tt ytTimedText
	if err := xml.Unmarshal(body, &tt); err != nil {
		return nil, fmt.Errorf("parse timedtext XML: %w", err)
	}
	lines := make([]string, 0, len(tt.Lines))
	for _, line := range tt.Lines {
		// Caption text is entity-encoded twice (&amp;#39; and friends).
		text := engine.CollapseWhitespace(engine.CleanHTML(html.UnescapeString(line.Text)))
		if text != "" {
			lines = append(lines, text)
		}
	}
	return lines, nil
}

func (c *TranscriptClient) do(req *http.Request, limit int64) ([]byte, error) {
	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return nil, engine.StatusErr(resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	return io.ReadAll(io.LimitReader(resp.Body, limit))
}

func (c *TranscriptClient) base() string {
	if c.BaseURL != "" {
		return strings.TrimRight(c.BaseURL, "/")
	}
	return ytWatchBase
}

func (c *TranscriptClient) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// needsPoToken reports whether a caption track URL requires a PoToken (browser-only).
func needsPoToken(baseURL string) bool {
	return strings.Contains(baseURL, "&exp=xpe")
}

// pickBestTrack selects the best usable caption track for the given language preferences:
// manual track in a preferred language, then auto-generated, then any English, then the first usable.
func pickBestTrack(tracks []captionTrack, langs []string) (captionTrack, bool) {
	usable := make([]captionTrack, 0, len(tracks))
	for _, t := range tracks {
		if !needsPoToken(t.BaseURL) {
			usable = append(usable, t)
		}
	}
	if len(usable) == 0 {
		return captionTrack{}, false
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang && t.Kind != "asr" {
				return t, true
			}
		}
	}
	for _, lang := range langs {
		for _, t := range usable {
			if t.LanguageCode == lang {
				return t, true
			}
		}
	}
	for _, t := range usable {
		if strings.HasPrefix(t.LanguageCode, "en") {
			return t, true
		}
	}
	return usable[0], true
}

// GroupExcerpts joins transcript lines into excerpts of roughly size characters.
// Lines are never split.
func GroupExcerpts(lines []string, size int) []string {
	if size <= 0 {
		size = ExcerptChars
	}
	var out []string
	var sb strings.Builder
	for _, line := range lines {
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(line)
		if sb.Len() >= size {
			out = append(out, sb.String())
			sb.Reset()
		}
	}
	if sb.Len() > 0 {
		out = append(out, sb.String())
	}
	return out
}
