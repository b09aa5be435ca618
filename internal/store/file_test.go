package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedTime = time.Date(2025, 3, 9, 14, 5, 7, 0, time.UTC)

func sampleRecords() []engine.DetailRecord {
	return []engine.DetailRecord{
		{ID: "aaa111", Platform: engine.PlatformReddit, Title: "Best <1440p> monitor", Container: "Monitors",
			URL: "https://www.reddit.com/r/Monitors/comments/aaa111/x/", Body: "Budget & size",
			Metrics: engine.Metrics{Score: 10}, SubItems: []engine.SubItem{{Author: "a", Score: 3, Body: "Dell"}}, HasSubItems: true},
		{ID: "bbb222", Platform: engine.PlatformReddit, Title: "Second", Container: "buildapc",
			URL: "https://www.reddit.com/r/buildapc/comments/bbb222/y/", SubItems: []engine.SubItem{}},
	}
}

func TestFileName(t *testing.T) {
	b := engine.Batch{Platform: engine.PlatformYouTube, Format: engine.FormatReducedObject}
	assert.Equal(t, "youtube_best_monitor_2025_reduced-object_20250309_140507", FileName(b, "Best monitor 2025!", fixedTime))
}

func TestSaveBatchFullJSON(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	b := engine.Build(engine.PlatformReddit, engine.FormatFull, sampleRecords(), 5)

	f, err := SaveBatchAt(dir, "best monitor", b, fixedTime)
	require.NoError(t, err)
	assert.Equal(t, "reddit_best_monitor_full_20250309_140507.json", f.Name)
	assert.Equal(t, "application/json", f.ContentType)

	data, err := os.ReadFile(f.Path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"title": "Best <1440p> monitor"`, "HTML is not escaped in JSON")

	var recs []engine.DetailRecord
	require.NoError(t, json.Unmarshal(data, &recs))
	require.Len(t, recs, 2)
	assert.Equal(t, "aaa111", recs[0].ID)
	assert.Equal(t, int64(10), recs[0].Metrics.Score)
}

func TestSaveBatchReducedObject(t *testing.T) {
	b := engine.Build(engine.PlatformReddit, engine.FormatReducedObject, sampleRecords(), 5)
	data, ext, _, err := EncodeBatch(b)
	require.NoError(t, err)
	assert.Equal(t, ".json", ext)

	var raw []map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	require.Len(t, raw, 2)
	assert.NotContains(t, raw[0], "metrics")
	assert.Equal(t, []any{"Dell"}, raw[0]["sub_items"])
}

func TestSaveBatchMarkup(t *testing.T) {
	b := engine.Build(engine.PlatformReddit, engine.FormatReducedMarkup, sampleRecords(), 5)
	path, err := SaveBatch(t.TempDir(), "monitors", b)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(path, ".xml"))
	assert.Contains(t, filepath.Base(path), "reddit_monitors_reduced-markup_")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `<?xml version="1.0" encoding="UTF-8"?>`))
	assert.Equal(t, 2, strings.Count(string(data), "<post>"))
	assert.Contains(t, string(data), "Best &lt;1440p&gt; monitor")
}

func TestSaveBatchEmpty(t *testing.T) {
	b := engine.Build(engine.PlatformYouTube, engine.FormatFull, nil, 5)
	data, _, _, err := EncodeBatch(b)
	require.NoError(t, err)
	assert.Equal(t, "[]\n", string(data))
}

func TestEncodeBatchUnknownFormat(t *testing.T) {
	_, _, _, err := EncodeBatch(engine.Batch{Format: "csv"})
	assert.Error(t, err)
}
