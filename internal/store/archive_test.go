package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/anatolykoptev/go_context/internal/engine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestArchiveSave(t *testing.T) {
	fake := newFakeS3(t)
	h := openTestHistory(t)
	a := &Archive{
		Dir:     t.TempDir(),
		History: h,
		S3:      fake.sink("runs"),
		Now:     func() time.Time { return fixedTime },
	}

	b := engine.Build(engine.PlatformReddit, engine.FormatReducedObject, sampleRecords(), 5)
	run, err := a.Save(context.Background(), "best monitor", b)
	require.NoError(t, err)

	assert.NotEmpty(t, run.ID)
	assert.Equal(t, 2, run.Records)
	assert.Equal(t, "s3://results/runs/reddit_best_monitor_reduced-object_20250309_140507.json", run.Remote)
	_, err = os.Stat(run.Path)
	require.NoError(t, err)

	got, err := h.Get(context.Background(), run.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"reddit:aaa111", "reddit:bbb222"}, got.ResourceIDs)
	assert.Equal(t, run.Remote, got.Remote)
}

func TestArchiveSaveUploadFailureKeepsFile(t *testing.T) {
	fake := newFakeS3(t)
	fake.status = 500
	a := &Archive{Dir: t.TempDir(), S3: fake.sink("")}

	run, err := a.Save(context.Background(), "q", engine.Build(engine.PlatformYouTube, engine.FormatFull, nil, 1))
	require.NoError(t, err)
	assert.Empty(t, run.Remote)
	assert.Empty(t, run.ID, "no history configured")
	_, err = os.Stat(run.Path)
	assert.NoError(t, err)
}
