// Package toolutil provides shared helpers for the go_context MCP tools.
package toolutil

import (
	"context"
	"fmt"
	"strings"

	"github.com/anatolykoptev/go_context/internal/engine"
)

// DefaultFormat is used when a tool call leaves the format empty.
const DefaultFormat = string(engine.FormatReducedMarkup)

// NormFormat normalises a format field: empty string → reduced-markup.
func NormFormat(f string) string {
	f = strings.TrimSpace(f)
	if f == "" {
		return DefaultFormat
	}
	return f
}

// NormCount applies def to a zero count. Out-of-range values are left for Request.Validate.
func NormCount(n, def int) int {
	if n == 0 {
		return def
	}
	return n
}

// BoolOr dereferences b, returning def when it is nil.
func BoolOr(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// RequestKey builds the cache key for a tool request.
func RequestKey(tool string, req engine.Request) string {
	return engine.CacheKey(tool,
		strings.ToLower(strings.TrimSpace(req.Query)),
		fmt.Sprintf("%d", req.DesiredCount),
		req.Format,
		fmt.Sprintf("%t/%d/%t", req.IncludeSubItems, req.SubItemLimit, req.FullAncillary),
		fmt.Sprintf("c%d", req.Concurrency),
	)
}

// Cached returns the value stored under key, or computes it with fn and stores it.
// Errors are never cached. A nil cache always calls fn.
func Cached[T any](ctx context.Context, c *engine.Cache, key string, fn func() (T, error)) (T, error) {
	if out, ok := engine.CacheLoadJSON[T](ctx, c, key); ok {
		return out, nil
	}
	out, err := fn()
	if err != nil {
		return out, err
	}
	engine.CacheStoreJSON(ctx, c, key, out)
	return out, nil
}
