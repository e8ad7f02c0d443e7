// Package crawler performs a BFS traversal of a documentation source (HTTP
// site or local directory), applying scope/depth/pattern limits and
// deduplicating visited URLs (§4.4 scrape job body, §4.5 refresh engine).
package crawler

import (
	"github.com/Aman-CERP/docindex/internal/fetch"
)

// Scope bounds which discovered links are followed (spec §6 wire shape).
type Scope string

const (
	ScopeSubpages Scope = "subpages" // same URL path prefix as the start URL
	ScopeHostname Scope = "hostname" // same host
	ScopeDomain   Scope = "domain"   // same registrable domain
)

// Options configures a crawl (maps 1:1 to store.ScraperOptions, §6).
type Options struct {
	MaxPages        int
	MaxDepth        int
	Scope           Scope
	FollowRedirects bool
	IgnoreErrors    bool
	MaxConcurrency  int
	IncludePatterns []string
	ExcludePatterns []string
	Headers         map[string]string
}

// Page is one successfully fetched resource during a crawl.
type Page struct {
	URL    string
	Depth  int
	Result *fetch.Result
}

// PageError is a per-page failure surfaced when IgnoreErrors is true;
// the crawl continues past it.
type PageError struct {
	URL   string
	Depth int
	Err   error
}

// LinkExtractor pulls outbound links from a fetched page's content. The
// crawler is content-format-agnostic; callers supply extraction (e.g. the
// prose pipeline's goquery anchor walk) appropriate to the page's MIME type.
type LinkExtractor func(pageURL string, content []byte, mimeType string) []string
