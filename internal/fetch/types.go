// Package fetch retrieves raw bytes for a URL over HTTP or the local
// filesystem (§4.2), with conditional-request support for the refresh
// engine (§4.5).
package fetch

import (
	"context"
	"time"
)

// Options configures a single Fetch call.
type Options struct {
	FollowRedirects bool
	MaxRetries      int
	Headers         map[string]string
	// IfNoneMatch and IfModifiedSince drive conditional requests during a
	// refresh (§4.5); a fetcher that can honor them reports a 304-equivalent
	// Result.NotModified instead of re-downloading the body.
	IfNoneMatch     string
	IfModifiedSince string
	Timeout         time.Duration
}

// Result is what a successful (or conditionally-skipped) fetch produces.
type Result struct {
	// URL is the canonical URL of the resource: the redirect destination
	// when redirects were followed, the Location header value for an
	// unfollowed 3xx response, otherwise the requested URL.
	URL          string
	Content      []byte
	MimeType     string
	ETag         string
	LastModified string
	StatusCode   int
	// NotModified is true when the server answered 304 or, for file
	// sources, the mtime matches what the caller already has on record.
	NotModified bool
}

// Fetcher retrieves bytes for a single URL. Implementations must be safe
// for concurrent use.
type Fetcher interface {
	// CanFetch reports whether this fetcher handles the given URL's scheme.
	CanFetch(url string) bool
	Fetch(ctx context.Context, url string, opts Options) (*Result, error)
	Close() error
}

// DefaultOptions returns the zero-value-safe defaults used when the caller
// supplies none.
func DefaultOptions() Options {
	return Options{
		FollowRedirects: true,
		MaxRetries:      3,
		Timeout:         30 * time.Second,
	}
}
