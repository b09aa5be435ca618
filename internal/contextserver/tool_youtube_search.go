package contextserver

import (
	"context"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/anatolykoptev/go_context/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const youtubeDefaultCount = 3

type YouTubeSearchInput struct {
	Query              string `json:"query" jsonschema:"Search keywords"`
	Count              int    `json:"count,omitempty" jsonschema:"Number of videos to return (1-25, default 3)"`
	Format             string `json:"format,omitempty" jsonschema:"full, reduced-object or reduced-markup (default reduced-markup)"`
	IncludeTranscript  *bool  `json:"include_transcript,omitempty" jsonschema:"Attach transcript excerpts (default true)"`
	TranscriptExcerpts int    `json:"transcript_excerpts,omitempty" jsonschema:"Excerpts per video in preview mode (0-100, default 5)"`
	FullTranscript     bool   `json:"full_transcript,omitempty" jsonschema:"Attach the whole transcript instead of a preview"`
	Concurrency        int    `json:"concurrency,omitempty" jsonschema:"Parallel fetches (default 5, 1 keeps search order)"`
	Save               bool   `json:"save,omitempty" jsonschema:"Also write the batch to the output directory"`
}

func (in YouTubeSearchInput) request() engine.Request {
	return engine.Request{
		Query:           in.Query,
		DesiredCount:    toolutil.NormCount(in.Count, youtubeDefaultCount),
		Format:          toolutil.NormFormat(in.Format),
		IncludeSubItems: toolutil.BoolOr(in.IncludeTranscript, true),
		SubItemLimit:    toolutil.NormCount(in.TranscriptExcerpts, 5),
		FullAncillary:   in.FullTranscript,
		Concurrency:     in.Concurrency,
	}
}

func registerYouTubeSearch(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "youtube_search",
		Description: "Search YouTube videos and return title, channel, description, engagement numbers and transcript excerpts. Set full_transcript for the complete captions. Videos without captions are still returned, without transcript.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input YouTubeSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
		out, err := runSearch(ctx, d, "youtube_search", d.YouTube, input.request(), input.Save)
		return nil, out, err
	})
}
