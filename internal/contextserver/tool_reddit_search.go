package contextserver

import (
	"context"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/anatolykoptev/go_context/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const redditDefaultCount = 5

type RedditSearchInput struct {
	Query           string `json:"query" jsonschema:"Search keywords (e.g. best 1440p monitor under 400)"`
	Count           int    `json:"count,omitempty" jsonschema:"Number of posts to return (1-25, default 5)"`
	Format          string `json:"format,omitempty" jsonschema:"full, reduced-object or reduced-markup (default reduced-markup)"`
	IncludeComments *bool  `json:"include_comments,omitempty" jsonschema:"Attach top comments (default true)"`
	CommentLimit    int    `json:"comment_limit,omitempty" jsonschema:"Top comments per post (0-100, default 5)"`
	Concurrency     int    `json:"concurrency,omitempty" jsonschema:"Parallel fetches (default 5, 1 keeps search order)"`
	Save            bool   `json:"save,omitempty" jsonschema:"Also write the batch to the output directory"`
}

func (in RedditSearchInput) request() engine.Request {
	return engine.Request{
		Query:           in.Query,
		DesiredCount:    toolutil.NormCount(in.Count, redditDefaultCount),
		Format:          toolutil.NormFormat(in.Format),
		IncludeSubItems: toolutil.BoolOr(in.IncludeComments, true),
		SubItemLimit:    toolutil.NormCount(in.CommentLimit, 5),
		Concurrency:     in.Concurrency,
	}
}

func registerRedditSearch(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "reddit_search",
		Description: "Search Reddit for discussions on a topic and return the posts with their top comments. Posts are found through web search and Reddit's own search feed, then fetched in full. Output formats: full records with scores, reduced objects (title, subreddit, url, content, comments) or a single XML document ready to paste into an LLM prompt.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input RedditSearchInput) (*mcp.CallToolResult, SearchOutput, error) {
		out, err := runSearch(ctx, d, "reddit_search", d.Reddit, input.request(), input.Save)
		return nil, out, err
	})
}
