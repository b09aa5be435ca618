package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/anatolykoptev/go_context/internal/engine"
)

// Archive persists batches: file on disk, optional upload, optional history row.
type Archive struct {
	Dir     string
	History *History // nil = no history
	S3      *S3Sink  // nil = no upload
	Logger  *slog.Logger
	Now     func() time.Time
}

// Save writes b to disk and records it. Upload and history failures are
// logged and do not fail the save.
func (a *Archive) Save(ctx context.Context, query string, b engine.Batch) (Run, error) {
	now := time.Now
	if a.Now != nil {
		now = a.Now
	}
	logger := a.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ts := now()
	f, err := SaveBatchAt(a.Dir, query, b, ts)
	if err != nil {
		return Run{}, err
	}
	run := Run{
		Platform:    string(b.Platform),
		Query:       query,
		Format:      string(b.Format),
		Records:     b.Records,
		Path:        f.Path,
		CreatedAt:   ts,
		ResourceIDs: b.IDs,
	}
	logger.Info("batch saved", slog.String("path", f.Path), slog.Int("bytes", f.Size))

	if a.S3 != nil {
		uri, err := a.S3.Upload(ctx, f)
		if err != nil {
			logger.Warn("batch upload failed", slog.String("path", f.Path), slog.Any("error", err))
		} else {
			run.Remote = uri
			logger.Info("batch uploaded", slog.String("uri", uri))
		}
	}

	if a.History != nil {
		recorded, err := a.History.Record(ctx, run)
		if err != nil {
			logger.Warn("history record failed", slog.Any("error", err))
		} else {
			run = recorded
		}
	}
	return run, nil
}
