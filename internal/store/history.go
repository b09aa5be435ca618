package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// Run is one persisted pipeline run.
type Run struct {
	ID          string    `json:"id"`
	Platform    string    `json:"platform"`
	Query       string    `json:"query"`
	Format      string    `json:"format"`
	Records     int       `json:"records"`
	Path        string    `json:"path,omitempty"`
	Remote      string    `json:"remote,omitempty"` // object storage URI, if uploaded
	CreatedAt   time.Time `json:"created_at"`
	ResourceIDs []string  `json:"resource_ids,omitempty"`
}

// Filter narrows History.List.
type Filter struct {
	Platform string
	Query    string // substring match
	Limit    int    // default 20, max 100
}

// History records runs in SQLite or PostgreSQL.
type History struct {
	db  *sql.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS runs (
		id         TEXT PRIMARY KEY,
		platform   TEXT NOT NULL,
		query      TEXT NOT NULL,
		format     TEXT NOT NULL,
		records    INTEGER NOT NULL,
		path       TEXT NOT NULL DEFAULT '',
		remote     TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS run_items (
		run_id      TEXT NOT NULL REFERENCES runs(id),
		position    INTEGER NOT NULL,
		resource_id TEXT NOT NULL,
		PRIMARY KEY (run_id, position)
	)`,
	`CREATE INDEX IF NOT EXISTS runs_created_at ON runs (created_at)`,
}

// OpenHistory opens the history database and creates its tables.
// driver is "sqlite" (dsn is a file path) or "postgres" (dsn is a connection URL).
func OpenHistory(ctx context.Context, driver, dsn string) (*History, error) {
	var (
		db  *sql.DB
		err error
		sb  = sq.StatementBuilder
	)
	switch strings.ToLower(driver) {
	case "", "sqlite", "sqlite3":
		if dsn == "" {
			return nil, errors.New("history: sqlite path required")
		}
		if dir := filepath.Dir(dsn); dir != "." {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, fmt.Errorf("history: mkdir %s: %w", dir, err)
			}
		}
		db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("history: open sqlite: %w", err)
		}
		db.SetMaxOpenConns(1) // SQLite: single writer
		sb = sb.PlaceholderFormat(sq.Question)
	case "postgres", "postgresql", "pgx":
		db, err = sql.Open("pgx", dsn)
		if err != nil {
			return nil, fmt.Errorf("history: open postgres: %w", err)
		}
		sb = sb.PlaceholderFormat(sq.Dollar)
	default:
		return nil, fmt.Errorf("history: unsupported driver %q", driver)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("history: init schema: %w", err)
		}
	}
	return &History{db: db, sb: sb, now: time.Now}, nil
}

// Close releases the database handle.
func (h *History) Close() error {
	if h == nil {
		return nil
	}
	return h.db.Close()
}

// Record stores run and its resource ids. ID and CreatedAt are filled in when empty.
func (h *History) Record(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = h.now()
	}
	run.CreatedAt = run.CreatedAt.UTC().Truncate(time.Second)

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return Run{}, fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	query, args, err := h.sb.Insert("runs").
		Columns("id", "platform", "query", "format", "records", "path", "remote", "created_at").
		Values(run.ID, run.Platform, run.Query, run.Format, run.Records, run.Path, run.Remote,
			run.CreatedAt.Format(time.RFC3339)).
		ToSql()
	if err != nil {
		return Run{}, err
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return Run{}, fmt.Errorf("history: insert run: %w", err)
	}

	if len(run.ResourceIDs) > 0 {
		ins := h.sb.Insert("run_items").Columns("run_id", "position", "resource_id")
		for i, id := range run.ResourceIDs {
			ins = ins.Values(run.ID, i, id)
		}
		query, args, err := ins.ToSql()
		if err != nil {
			return Run{}, err
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return Run{}, fmt.Errorf("history: insert items: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return Run{}, fmt.Errorf("history: commit: %w", err)
	}
	return run, nil
}

// List returns runs, newest first. Resource ids are not loaded; use Get.
func (h *History) List(ctx context.Context, f Filter) ([]Run, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	limit = min(limit, 100)

	sel := h.sb.Select("id", "platform", "query", "format", "records", "path", "remote", "created_at").
		From("runs").
		OrderBy("created_at DESC", "id").
		Limit(uint64(limit))
	if f.Platform != "" {
		sel = sel.Where(sq.Eq{"platform": f.Platform})
	}
	if f.Query != "" {
		sel = sel.Where(sq.Like{"query": "%" + f.Query + "%"})
	}
	query, args, err := sel.ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("history: list: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// Get returns one run with its resource ids in batch order.
func (h *History) Get(ctx context.Context, id string) (Run, error) {
	query, args, err := h.sb.Select("id", "platform", "query", "format", "records", "path", "remote", "created_at").
		From("runs").
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return Run{}, err
	}
	run, err := scanRun(h.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("history: run %s not found", id)
	}
	if err != nil {
		return Run{}, err
	}

	query, args, err = h.sb.Select("resource_id").
		From("run_items").
		Where(sq.Eq{"run_id": id}).
		OrderBy("position").
		ToSql()
	if err != nil {
		return Run{}, err
	}
	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return Run{}, fmt.Errorf("history: items: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var rid string
		if err := rows.Scan(&rid); err != nil {
			return Run{}, err
		}
		run.ResourceIDs = append(run.ResourceIDs, rid)
	}
	return run, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		run     Run
		created string
	)
	if err := s.Scan(&run.ID, &run.Platform, &run.Query, &run.Format, &run.Records,
		&run.Path, &run.Remote, &created); err != nil {
		return Run{}, err
	}
	t, err := time.Parse(time.RFC3339, created)
	if err != nil {
		return Run{}, fmt.Errorf("history: parse created_at %q: %w", created, err)
	}
	run.CreatedAt = t
	return run, nil
}
