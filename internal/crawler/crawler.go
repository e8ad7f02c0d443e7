package crawler

import (
	"context"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/Aman-CERP/docindex/internal/fetch"
	"github.com/Aman-CERP/docindex/internal/patterns"
)

// Crawler performs bounded BFS traversal over a Fetcher, honoring scope,
// depth, page-count, and include/exclude pattern limits (§4.4). A worker
// pool over a result channel, generalized from a filesystem walk to a
// link-frontier walk, using errgroup+weighted semaphore instead of a
// plain WaitGroup+channel.
type Crawler struct {
	fetcher fetch.Fetcher
}

// New creates a Crawler over the given fetcher.
func New(fetcher fetch.Fetcher) *Crawler {
	return &Crawler{fetcher: fetcher}
}

// Crawl walks startURL breadth-first, calling onPage for every resource
// fetched and onError for every per-page failure when opts.IgnoreErrors is
// true (otherwise the first non-recoverable failure aborts the crawl). A 404
// response is always reported through onError and never aborts the crawl.
// Include patterns filter discovered links only; the start URL itself is
// always fetched unless an exclude pattern matches it.
// extractLinks discovers further URLs from a fetched page's content.
//
// The traversal checks ctx.Done() between page fetches (cooperative
// cancellation, §4.4/§5): a cancelled crawl returns ctx.Err() after any
// already-dispatched fetches in flight complete.
func (c *Crawler) Crawl(ctx context.Context, startURL string, opts Options, extractLinks LinkExtractor, onPage func(Page) error, onError func(PageError)) error {
	scopeRoot, err := url.Parse(startURL)
	if err != nil {
		return err
	}

	includeMatcher := newPatternMatcher(opts.IncludePatterns)
	excludeMatcher := newPatternMatcher(opts.ExcludePatterns)

	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	sem := semaphore.NewWeighted(int64(maxConcurrency))

	var mu sync.Mutex
	visited := make(map[string]bool)
	visited[startURL] = true
	frontier := []frontierItem{{url: startURL, depth: 0}}
	var fetchedCount int
	aborted := false
	var abortErr error

	for len(frontier) > 0 && !aborted {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		batch := frontier
		frontier = nil

		g, gctx := errgroup.WithContext(ctx)
		var nextFrontier []frontierItem

		for _, item := range batch {
			item := item

			mu.Lock()
			overBudget := opts.MaxPages > 0 && fetchedCount >= opts.MaxPages
			mu.Unlock()
			if overBudget {
				break
			}
			if opts.MaxDepth > 0 && item.depth > opts.MaxDepth {
				continue
			}
			if excludeMatcher.match(item.url) {
				continue
			}
			if item.url != startURL && !includeMatcher.empty() && !includeMatcher.match(item.url) {
				continue
			}
			if !inScope(scopeRoot, item.url, opts.Scope) {
				continue
			}

			if err := sem.Acquire(gctx, 1); err != nil {
				break
			}

			g.Go(func() error {
				defer sem.Release(1)

				select {
				case <-gctx.Done():
					return gctx.Err()
				default:
				}

				res, ferr := c.fetcher.Fetch(gctx, item.url, fetch.Options{
					FollowRedirects: opts.FollowRedirects,
					Headers:         opts.Headers,
				})
				if ferr != nil {
					if opts.IgnoreErrors {
						onError(PageError{URL: item.url, Depth: item.depth, Err: ferr})
						return nil
					}
					return ferr
				}
				if res.StatusCode == 404 {
					onError(PageError{URL: item.url, Depth: item.depth, Err: nil})
					return nil
				}
				if res.StatusCode >= 300 && res.StatusCode < 400 {
					if !opts.FollowRedirects {
						return nil
					}
					dest := resolveURL(item.url, res.URL)
					mu.Lock()
					if !visited[dest] {
						visited[dest] = true
						nextFrontier = append(nextFrontier, frontierItem{url: dest, depth: item.depth})
					}
					mu.Unlock()
					return nil
				}

				mu.Lock()
				fetchedCount++
				mu.Unlock()

				if err := onPage(Page{URL: item.url, Depth: item.depth, Result: res}); err != nil {
					return err
				}

				if extractLinks != nil {
					links := extractLinks(item.url, res.Content, res.MimeType)
					mu.Lock()
					for _, l := range links {
						abs := resolveURL(item.url, l)
						if abs == "" || visited[abs] {
							continue
						}
						visited[abs] = true
						nextFrontier = append(nextFrontier, frontierItem{url: abs, depth: item.depth + 1})
					}
					mu.Unlock()
				}
				return nil
			})
		}

		if err := g.Wait(); err != nil {
			aborted = true
			abortErr = err
			break
		}
		frontier = nextFrontier
	}

	return abortErr
}

type frontierItem struct {
	url   string
	depth int
}

func resolveURL(base, ref string) string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}
	refURL, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	resolved := baseURL.ResolveReference(refURL)
	resolved.Fragment = ""
	return resolved.String()
}

func inScope(root *url.URL, candidate string, scope Scope) bool {
	if scope == "" {
		scope = ScopeSubpages
	}
	cu, err := url.Parse(candidate)
	if err != nil {
		return false
	}
	if cu.Scheme == "file" || root.Scheme == "file" {
		// Local file sources are always in-scope; directory boundaries are
		// enforced by the enumeration step, not link scope.
		return true
	}
	switch scope {
	case ScopeHostname:
		return cu.Host == root.Host
	case ScopeDomain:
		return registrableDomain(cu.Host) == registrableDomain(root.Host)
	default: // subpages
		if cu.Host != root.Host {
			return false
		}
		rootDir := root.Path
		if idx := strings.LastIndex(rootDir, "/"); idx >= 0 {
			rootDir = rootDir[:idx+1]
		}
		return strings.HasPrefix(cu.Path, rootDir) || strings.HasPrefix(cu.Path, root.Path)
	}
}

// registrableDomain returns a coarse approximation of the eTLD+1 (last two
// labels), sufficient for same-domain scoping without a public-suffix list.
func registrableDomain(host string) string {
	host = strings.ToLower(host)
	if idx := strings.Index(host, ":"); idx >= 0 {
		host = host[:idx]
	}
	parts := strings.Split(host, ".")
	if len(parts) <= 2 {
		return host
	}
	return strings.Join(parts[len(parts)-2:], ".")
}

// patternMatcher matches a URL against a set of include/exclude patterns,
// each tried as a regular expression first and, failing that, as a
// gitignore-style glob (spec §6: "regex or glob").
type patternMatcher struct {
	regexes []*regexp.Regexp
	globs   *patterns.Matcher
	any     bool
}

func newPatternMatcher(pats []string) *patternMatcher {
	m := &patternMatcher{globs: patterns.New()}
	for _, p := range pats {
		if re, err := regexp.Compile(p); err == nil {
			m.regexes = append(m.regexes, re)
		} else {
			m.globs.AddPattern(p)
		}
		m.any = true
	}
	return m
}

func (m *patternMatcher) empty() bool { return !m.any }

func (m *patternMatcher) match(rawURL string) bool {
	if !m.any {
		return false
	}
	for _, re := range m.regexes {
		if re.MatchString(rawURL) {
			return true
		}
	}
	return m.globs.Match(rawURL, false)
}
