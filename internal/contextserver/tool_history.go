package contextserver

import (
	"context"
	"fmt"
	"time"

	"github.com/anatolykoptev/go_context/internal/store"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type HistoryInput struct {
	RunID    string `json:"run_id,omitempty" jsonschema:"Return one run with its resource ids"`
	Platform string `json:"platform,omitempty" jsonschema:"reddit or youtube"`
	Query    string `json:"query,omitempty" jsonschema:"Substring of the original query"`
	Limit    int    `json:"limit,omitempty" jsonschema:"Max runs (default 20, max 100)"`
}

type HistoryOutput struct {
	Count int       `json:"count"`
	Runs  []RunView `json:"runs"`
}

// RunView is store.Run with a string timestamp for the tool schema.
type RunView struct {
	ID          string   `json:"id"`
	Platform    string   `json:"platform"`
	Query       string   `json:"query"`
	Format      string   `json:"format"`
	Records     int      `json:"records"`
	Path        string   `json:"path,omitempty"`
	Remote      string   `json:"remote,omitempty"`
	CreatedAt   string   `json:"created_at"`
	ResourceIDs []string `json:"resource_ids,omitempty"`
}

func newRunView(r store.Run) RunView {
	return RunView{
		ID:          r.ID,
		Platform:    r.Platform,
		Query:       r.Query,
		Format:      r.Format,
		Records:     r.Records,
		Path:        r.Path,
		Remote:      r.Remote,
		CreatedAt:   r.CreatedAt.UTC().Format(time.RFC3339),
		ResourceIDs: r.ResourceIDs,
	}
}

func registerHistory(server *mcp.Server, d Deps) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "search_history",
		Description: "List saved reddit_search and youtube_search runs, newest first, with the file each batch was written to. Pass run_id to get the resource ids of one run.",
		Annotations: &mcp.ToolAnnotations{ReadOnlyHint: true},
	}, func(ctx context.Context, req *mcp.CallToolRequest, input HistoryInput) (*mcp.CallToolResult, HistoryOutput, error) {
		out, err := searchHistory(ctx, d.History, input)
		return nil, out, err
	})
}

func searchHistory(ctx context.Context, h *store.History, input HistoryInput) (HistoryOutput, error) {
	if input.RunID != "" {
		run, err := h.Get(ctx, input.RunID)
		if err != nil {
			return HistoryOutput{}, err
		}
		return HistoryOutput{Count: 1, Runs: []RunView{newRunView(run)}}, nil
	}
	runs, err := h.List(ctx, store.Filter{Platform: input.Platform, Query: input.Query, Limit: input.Limit})
	if err != nil {
		return HistoryOutput{}, fmt.Errorf("search_history: %w", err)
	}
	views := make([]RunView, 0, len(runs))
	for _, r := range runs {
		views = append(views, newRunView(r))
	}
	return HistoryOutput{Count: len(views), Runs: views}, nil
}
