package engine

import (
	"fmt"
	"strings"
)

// --- Identity ---

// Platform tags a resource with the service it lives on.
type Platform string

const (
	PlatformReddit  Platform = "reddit"
	PlatformYouTube Platform = "youtube"
)

// Valid reports whether p is a supported platform.
func (p Platform) Valid() bool {
	return p == PlatformReddit || p == PlatformYouTube
}

// ResourceID is a normalized, platform-tagged identifier.
// Two URLs pointing at the same post or video produce equal ResourceIDs.
type ResourceID struct {
	Platform Platform
	Value    string
}

// String returns "platform:value", used as dedup and cache key.
func (id ResourceID) String() string {
	return string(id.Platform) + ":" + id.Value
}

// IsZero reports whether id is the zero value.
func (id ResourceID) IsZero() bool {
	return id.Platform == "" && id.Value == ""
}

// URL returns the canonical URL for id. Resolve(id.URL()) == id.
func (id ResourceID) URL() string {
	switch id.Platform {
	case PlatformReddit:
		return "https://www.reddit.com/comments/" + id.Value + "/"
	case PlatformYouTube:
		return "https://www.youtube.com/watch?v=" + id.Value
	}
	return ""
}

// --- Fetch output ---

// SubItem is a comment or a transcript excerpt attached to a record.
type SubItem struct {
	Author string `json:"author"`
	Score  int64  `json:"score"`
	Body   string `json:"body"`
}

// Metrics holds engagement numbers. Fields a platform does not report stay zero.
type Metrics struct {
	Score       int64   `json:"score"`
	Comments    int64   `json:"comments"`
	Views       int64   `json:"views,omitempty"`
	Likes       int64   `json:"likes,omitempty"`
	UpvoteRatio float64 `json:"upvote_ratio,omitempty"`
}

// DetailRecord is a fully fetched post or video. Fetchers build it once; nothing mutates it afterwards.
type DetailRecord struct {
	ID          string    `json:"id"`
	Platform    Platform  `json:"platform"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	Container   string    `json:"container"` // subreddit or channel
	URL         string    `json:"url"`
	Body        string    `json:"body"` // post selftext or video description
	Metrics     Metrics   `json:"metrics"`
	CreatedAt   string    `json:"created_at"` // RFC 3339, UTC
	SubItems    []SubItem `json:"sub_items"`
	HasSubItems bool      `json:"has_sub_items"`
}

// ResourceID returns the identifier the record was fetched for.
func (r DetailRecord) ResourceID() ResourceID {
	return ResourceID{Platform: r.Platform, Value: r.ID}
}

// SlimRecord is the reduced shape for downstream text consumption.
// It intentionally carries no engagement numbers or timestamps.
type SlimRecord struct {
	Title     string   `json:"title"`
	Container string   `json:"container"`
	URL       string   `json:"url"`
	Body      string   `json:"body"`
	SubItems  []string `json:"sub_items"`
}

// FetchOptions controls how much a Fetcher pulls per record.
type FetchOptions struct {
	IncludeSubItems bool
	SubItemLimit    int
	FullAncillary   bool // full transcript instead of a preview
}

// key is folded into cache keys so different option sets never share entries.
func (o FetchOptions) key() string {
	return fmt.Sprintf("sub=%t|lim=%d|full=%t", o.IncludeSubItems, o.SubItemLimit, o.FullAncillary)
}

// --- Output formats ---

// OutputFormat selects the output representation for a whole batch.
type OutputFormat string

const (
	FormatFull          OutputFormat = "full"
	FormatReducedObject OutputFormat = "reduced-object"
	FormatReducedMarkup OutputFormat = "reduced-markup"
)

// formatAliases maps accepted spellings to canonical formats.
var formatAliases = map[string]OutputFormat{
	"full":           FormatFull,
	"raw":            FormatFull,
	"reduced-object": FormatReducedObject,
	"slim_json":      FormatReducedObject,
	"slim-json":      FormatReducedObject,
	"reduced-markup": FormatReducedMarkup,
	"slim_xml":       FormatReducedMarkup,
	"slim-xml":       FormatReducedMarkup,
}

// ParseFormat normalises a user-supplied format name.
func ParseFormat(s string) (OutputFormat, bool) {
	f, ok := formatAliases[strings.ToLower(strings.TrimSpace(s))]
	return f, ok
}

// FormattedResult is one formatted record, or the combined markup document in batch markup mode.
// Exactly one of Record, Slim, Markup is set, matching Format.
type FormattedResult struct {
	Format OutputFormat  `json:"format"`
	Record *DetailRecord `json:"record,omitempty"`
	Slim   *SlimRecord   `json:"slim,omitempty"`
	Markup string        `json:"markup,omitempty"`
}

// Batch is the ordered output of one pipeline run.
type Batch struct {
	Platform Platform          `json:"platform"`
	Format   OutputFormat      `json:"format"`
	Results  []FormattedResult `json:"results"`
	Records  int               `json:"records"` // records represented; differs from len(Results) for markup documents
	IDs      []string          `json:"ids,omitempty"`
}
