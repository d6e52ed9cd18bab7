package download

import (
	"context"
	"net/url"
)

// Manager downloads one remote artifact into a local directory.
type Manager interface {
	// Fetch downloads item into opts.Dir and returns the absolute local path.
	Fetch(ctx context.Context, item Item, opts Options) (string, error)
}

// ProgressFunc is called while the body is written. total is -1 when the
// server does not announce a length.
type ProgressFunc func(written, total int64)

// Item represents one remote resource to download.
type Item struct {
	ID       string   // stable identifier, used in messages
	URL      *url.URL // source URL to download
	Checksum string   // optional hex-encoded SHA-256 checksum
	Filename string   // target filename; derived from the URL when empty
	Progress ProgressFunc
}

// Options control where and how a single download lands.
type Options struct {
	Dir   string // destination directory. Must be absolute.
	Reuse bool   // keep an existing non-empty file instead of downloading again
}
