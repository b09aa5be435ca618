package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestHistory(t *testing.T) *History {
	t.Helper()
	h, err := OpenHistory(context.Background(), "sqlite", filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() })
	return h
}

func TestHistoryRecordAndGet(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	run, err := h.Record(ctx, Run{
		Platform:    "reddit",
		Query:       "best monitor",
		Format:      "reduced-markup",
		Records:     2,
		Path:        "/tmp/x.xml",
		CreatedAt:   fixedTime,
		ResourceIDs: []string{"reddit:aaa111", "reddit:bbb222"},
	})
	require.NoError(t, err)
	assert.Len(t, run.ID, 36)

	got, err := h.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, "best monitor", got.Query)
	assert.Equal(t, 2, got.Records)
	assert.True(t, fixedTime.Equal(got.CreatedAt))
	assert.Equal(t, []string{"reddit:aaa111", "reddit:bbb222"}, got.ResourceIDs)

	_, err = h.Get(ctx, "missing")
	assert.Error(t, err)
}

func TestHistoryListFilters(t *testing.T) {
	h := openTestHistory(t)
	ctx := context.Background()

	for i, r := range []Run{
		{Platform: "reddit", Query: "monitor reviews", Format: "full"},
		{Platform: "youtube", Query: "monitor unboxing", Format: "full"},
		{Platform: "reddit", Query: "keyboards", Format: "full"},
	} {
		r.CreatedAt = fixedTime.Add(time.Duration(i) * time.Minute)
		_, err := h.Record(ctx, r)
		require.NoError(t, err)
	}

	all, err := h.List(ctx, Filter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "keyboards", all[0].Query, "newest first")

	reddit, err := h.List(ctx, Filter{Platform: "reddit"})
	require.NoError(t, err)
	assert.Len(t, reddit, 2)

	monitors, err := h.List(ctx, Filter{Query: "monitor"})
	require.NoError(t, err)
	assert.Len(t, monitors, 2)

	limited, err := h.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestOpenHistoryUnsupportedDriver(t *testing.T) {
	_, err := OpenHistory(context.Background(), "mysql", "x")
	assert.Error(t, err)
	_, err = OpenHistory(context.Background(), "sqlite", "")
	assert.Error(t, err)
}
