package contextserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/anatolykoptev/go_context/internal/store"
	"github.com/anatolykoptev/go_context/internal/toolutil"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Deps are the components the tools run against. Nil pipelines leave their tool unregistered.
type Deps struct {
	Reddit  *engine.Pipeline
	YouTube *engine.Pipeline
	Archive *store.Archive  // nil = save requests are refused
	History *store.History  // nil = no search_history tool
	Cache   *engine.Cache   // whole-response cache; nil disables
	Logger  *slog.Logger
}

// SearchOutput is returned by reddit_search and youtube_search.
// Exactly one of Records, Slim, Markup is populated, matching Format.
type SearchOutput struct {
	Query    string                `json:"query"`
	Platform string                `json:"platform"`
	Format   string                `json:"format"`
	Count    int                   `json:"count"`
	Records  []engine.DetailRecord `json:"records,omitempty"`
	Slim     []engine.SlimRecord   `json:"slim,omitempty"`
	Markup   string                `json:"markup,omitempty"`
	RunID    string                `json:"run_id,omitempty"`
	SavedTo  string                `json:"saved_to,omitempty"`
	Remote   string                `json:"remote,omitempty"`
}

// RegisterTools registers the context tools on server and returns how many were added.
func RegisterTools(server *mcp.Server, d Deps) int {
	n := 0
	if d.Reddit != nil {
		registerRedditSearch(server, d)
		n++
	}
	if d.YouTube != nil {
		registerYouTubeSearch(server, d)
		n++
	}
	if d.History != nil {
		registerHistory(server, d)
		n++
	}
	return n
}

// runSearch executes req on p, serving repeated unsaved requests from the cache.
func runSearch(ctx context.Context, d Deps, tool string, p *engine.Pipeline, req engine.Request, save bool) (SearchOutput, error) {
	logger := d.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if save && d.Archive == nil {
		return SearchOutput{}, errors.New("save requested but no output directory is configured")
	}

	search := func() (SearchOutput, error) {
		batch, err := p.Run(ctx, req)
		if err != nil {
			return SearchOutput{}, err
		}
		return newSearchOutput(req.Query, batch), nil
	}

	var (
		out   SearchOutput
		batch engine.Batch
		err   error
	)
	if !save {
		out, err = toolutil.Cached(ctx, d.Cache, toolutil.RequestKey(tool, req), search)
	} else {
		batch, err = p.Run(ctx, req)
		if err == nil {
			out = newSearchOutput(req.Query, batch)
		}
	}
	if err != nil {
		var ce *engine.ConfigError
		if errors.As(err, &ce) {
			return SearchOutput{}, err
		}
		logger.Warn(tool+" failed", slog.String("query", req.Query), slog.Any("error", err))
		return SearchOutput{}, fmt.Errorf("%s: %w", tool, err)
	}

	if save {
		run, err := d.Archive.Save(ctx, req.Query, batch)
		if err != nil {
			return SearchOutput{}, fmt.Errorf("%s: save: %w", tool, err)
		}
		out.RunID = run.ID
		out.SavedTo = run.Path
		out.Remote = run.Remote
	}
	return out, nil
}

func newSearchOutput(query string, b engine.Batch) SearchOutput {
	out := SearchOutput{
		Query:    query,
		Platform: string(b.Platform),
		Format:   string(b.Format),
		Count:    b.Records,
	}
	switch b.Format {
	case engine.FormatFull:
		out.Records = b.DetailRecords()
	case engine.FormatReducedObject:
		out.Slim = b.SlimRecords()
	case engine.FormatReducedMarkup:
		out.Markup = b.Markup()
	}
	return out
}
