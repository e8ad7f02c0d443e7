package fetch

import (
	"context"
	"fmt"
)

// AutoFetcher picks the first variant whose CanFetch returns true (§4.2),
// trying file:// sources before falling back to HTTP.
type AutoFetcher struct {
	variants []Fetcher
}

// NewAutoFetcher composes the HTTP and local-file fetchers into one
// capability-selected facade.
func NewAutoFetcher(followRedirects bool) *AutoFetcher {
	return &AutoFetcher{
		variants: []Fetcher{
			NewFileFetcher(),
			NewHTTPFetcher(followRedirects),
		},
	}
}

// CanFetch reports whether any variant can handle rawURL.
func (a *AutoFetcher) CanFetch(rawURL string) bool {
	for _, v := range a.variants {
		if v.CanFetch(rawURL) {
			return true
		}
	}
	return false
}

// Fetch dispatches to the first variant that claims the URL.
func (a *AutoFetcher) Fetch(ctx context.Context, rawURL string, opts Options) (*Result, error) {
	for _, v := range a.variants {
		if v.CanFetch(rawURL) {
			return v.Fetch(ctx, rawURL, opts)
		}
	}
	return nil, fmt.Errorf("no fetcher can handle %s", rawURL)
}

// LocalFetcher returns the embedded local-file fetcher, or nil if there is
// none.
func (a *AutoFetcher) LocalFetcher() *FileFetcher {
	for _, v := range a.variants {
		if ff, ok := v.(*FileFetcher); ok {
			return ff
		}
	}
	return nil
}

// Close releases every variant's resources.
func (a *AutoFetcher) Close() error {
	var firstErr error
	for _, v := range a.variants {
		if err := v.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

var _ Fetcher = (*AutoFetcher)(nil)
