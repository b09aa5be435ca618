package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anatolykoptev/go_context/internal/engine"
)

const timestampLayout = "20060102_150405"

// SavedFile describes a batch written to disk.
type SavedFile struct {
	Path        string
	Name        string
	ContentType string
	Size        int
}

// SaveBatch writes b under dir as <platform>_<query>_<format>_<timestamp>.json|.xml
// and returns the file path. dir is created if missing.
func SaveBatch(dir, query string, b engine.Batch) (string, error) {
	f, err := SaveBatchAt(dir, query, b, time.Now())
	return f.Path, err
}

// SaveBatchAt is SaveBatch with an explicit timestamp.
func SaveBatchAt(dir, query string, b engine.Batch, now time.Time) (SavedFile, error) {
	data, ext, contentType, err := EncodeBatch(b)
	if err != nil {
		return SavedFile{}, err
	}
	if dir == "" {
		dir = "."
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return SavedFile{}, fmt.Errorf("store: mkdir %s: %w", dir, err)
	}
	name := FileName(b, query, now) + ext
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, data, 0o640); err != nil {
		return SavedFile{}, fmt.Errorf("store: write %s: %w", path, err)
	}
	return SavedFile{Path: path, Name: name, ContentType: contentType, Size: len(data)}, nil
}

// FileName returns the extension-less file name for a batch.
func FileName(b engine.Batch, query string, now time.Time) string {
	return fmt.Sprintf("%s_%s_%s_%s", b.Platform, engine.SlugQuery(query), b.Format, now.Format(timestampLayout))
}

// EncodeBatch renders b the way it is saved: the markup document for markup
// batches, an indented JSON array otherwise.
func EncodeBatch(b engine.Batch) (data []byte, ext, contentType string, err error) {
	if b.Format == engine.FormatReducedMarkup {
		return []byte(b.Markup()), ".xml", "application/xml", nil
	}

	var v any
	switch b.Format {
	case engine.FormatFull:
		recs := b.DetailRecords()
		if recs == nil {
			recs = []engine.DetailRecord{}
		}
		v = recs
	case engine.FormatReducedObject:
		recs := b.SlimRecords()
		if recs == nil {
			recs = []engine.SlimRecord{}
		}
		v = recs
	default:
		return nil, "", "", fmt.Errorf("store: unknown batch format %q", b.Format)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, "", "", fmt.Errorf("store: encode batch: %w", err)
	}
	return buf.Bytes(), ".json", "application/json", nil
}
