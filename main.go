// go_context: Reddit & YouTube context MCP server.
//
// Exposes reddit_search, youtube_search and search_history. Each search
// discovers candidate posts or videos, fetches them with retry, and returns
// full records, reduced objects or one markup document for LLM prompts.
package main

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/anatolykoptev/go-kit/env"
	"github.com/anatolykoptev/go-mcpserver"
	"github.com/anatolykoptev/go_context/internal/app"
	"github.com/anatolykoptev/go_context/internal/contextserver"
	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/anatolykoptev/go_context/internal/logging"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

var version = "dev"

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Error("config load failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	mcpPort := env.Str("MCP_PORT", "8892")
	logger.Info("starting go_context", slog.String("port", mcpPort))

	app.AttachClients(&cfg, logger)
	a, err := app.New(context.Background(), cfg, logger)
	if err != nil {
		logger.Error("init failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer a.Close()

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "go_context",
		Version: version,
	}, nil)

	n := contextserver.RegisterTools(server, contextserver.Deps{
		Reddit:  a.Reddit,
		YouTube: a.YouTube,
		Archive: a.Archive,
		History: a.History,
		Cache:   a.Cache,
		Logger:  logger,
	})
	logger.Info("tools registered", slog.Int("count", n))

	if err := mcpserver.Run(server, mcpserver.Config{
		Name:         "go_context",
		Version:      version,
		Port:         mcpPort,
		WriteTimeout: 300 * time.Second,
		Metrics:      engine.FormatMetrics,
	}); err != nil {
		logger.Error("server failed", slog.Any("error", err))
	}
}
