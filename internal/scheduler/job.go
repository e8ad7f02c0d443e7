package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/Aman-CERP/docindex/internal/crawler"
	"github.com/Aman-CERP/docindex/internal/fetch"
	"github.com/Aman-CERP/docindex/internal/pipeline"
	"github.com/Aman-CERP/docindex/internal/store"
)

// crawlerOptions merges a version's persisted scraper options over the
// server defaults (§6: scrape_docs omits fields to inherit config
// defaults).
func (s *Scheduler) crawlerOptions(opts store.ScraperOptions) crawler.Options {
	maxPages := opts.MaxPages
	if maxPages == 0 {
		maxPages = s.defaults.MaxPages
	}
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = s.defaults.MaxDepth
	}
	scope := opts.Scope
	if scope == "" {
		scope = s.defaults.Scope
	}
	maxConcurrency := opts.MaxConcurrency
	if maxConcurrency == 0 {
		maxConcurrency = s.defaults.MaxConcurrency
	}
	return crawler.Options{
		MaxPages:        maxPages,
		MaxDepth:        maxDepth,
		Scope:           crawler.Scope(scope),
		FollowRedirects: opts.FollowRedirects,
		IgnoreErrors:    opts.IgnoreErrors,
		MaxConcurrency:  maxConcurrency,
		IncludePatterns: opts.IncludePatterns,
		ExcludePatterns: opts.ExcludePatterns,
		Headers:         opts.Headers,
	}
}

// runScrape executes the initial indexing of a version: BFS crawl from
// SourceURL, chunk each page with the first pipeline that claims its MIME
// type, persist to the catalog, and index the resulting chunks for search
// (§4.4 scrape job body).
func (s *Scheduler) runScrape(ctx context.Context, job *Job) error {
	opts := s.crawlerOptions(job.Options)
	crawl := crawler.New(s.fetcher)

	var pages, total int
	total = opts.MaxPages

	onPage := func(page crawler.Page) error {
		s.ingestPage(ctx, job, page)
		pages++
		s.reportProgress(job, pages, total)
		return nil
	}
	onError := func(pageErr crawler.PageError) {
		s.logger.Warn("page fetch error during scrape",
			slog.String("version_id", job.VersionID), slog.String("url", pageErr.URL), slog.Int("depth", pageErr.Depth))
	}

	return crawl.Crawl(ctx, job.SourceURL, opts, extractLinks, onPage, onError)
}

// runRefresh re-crawls an already-indexed version (§4.5). Known pages are
// refetched conditionally (If-None-Match / If-Modified-Since); unchanged
// pages are left untouched, changed pages are rechunked and re-indexed, and
// a known page that now answers 404 is deleted from the catalog.
// A second pass of the same crawl discovers pages unreachable from the
// previous run but skips anything already known, since pass one already
// brought it up to date. Pages no longer reachable are never deleted
// automatically (§4.5 no-auto-delete rule) — remove_docs is explicit.
func (s *Scheduler) runRefresh(ctx context.Context, job *Job) error {
	known, err := s.catalog.GetPagesByVersionID(ctx, job.VersionID)
	if err != nil {
		return fmt.Errorf("list known pages: %w", err)
	}
	knownByURL := make(map[string]*store.Page, len(known))
	for _, p := range known {
		knownByURL[p.URL] = p
	}

	var pages, total int
	total = len(known)
	if newer := s.crawlerOptions(job.Options).MaxPages; newer > total {
		total = newer
	}

	for _, page := range known {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := s.refreshKnownPage(ctx, job, page); err != nil {
			s.logger.Warn("refresh fetch error", slog.String("version_id", job.VersionID), slog.String("url", page.URL), slog.String("error", err.Error()))
			if !job.Options.IgnoreErrors {
				return err
			}
		}
		pages++
		s.reportProgress(job, pages, total)
	}

	opts := s.crawlerOptions(job.Options)
	crawl := crawler.New(s.fetcher)
	onPage := func(page crawler.Page) error {
		if _, seen := knownByURL[page.Result.URL]; seen {
			return nil // already refreshed above
		}
		s.ingestPage(ctx, job, page)
		pages++
		s.reportProgress(job, pages, total)
		return nil
	}
	onError := func(pageErr crawler.PageError) {
		s.logger.Warn("page fetch error during refresh discovery",
			slog.String("version_id", job.VersionID), slog.String("url", pageErr.URL), slog.Int("depth", pageErr.Depth))
	}
	return crawl.Crawl(ctx, job.SourceURL, opts, extractLinks, onPage, onError)
}

// refreshKnownPage conditionally refetches a single previously indexed
// page and rewrites its chunks if the content changed.
func (s *Scheduler) refreshKnownPage(ctx context.Context, job *Job, page *store.Page) error {
	result, err := s.fetcher.Fetch(ctx, page.URL, fetch.Options{
		FollowRedirects: job.Options.FollowRedirects,
		Headers:         job.Options.Headers,
		IfNoneMatch:     page.ETag,
		IfModifiedSince: page.LastModified,
	})
	if err != nil {
		return err
	}
	if result.NotModified {
		return nil
	}
	if result.StatusCode == 404 {
		if err := s.catalog.DeletePage(ctx, page.ID); err != nil {
			return fmt.Errorf("delete removed page: %w", err)
		}
		return nil
	}
	if result.URL != page.URL && job.Options.FollowRedirects {
		if err := s.catalog.RenamePageURL(ctx, page.ID, result.URL); err != nil {
			s.logger.Warn("rename redirected page failed", slog.String("page_id", page.ID), slog.String("error", err.Error()))
		}
	}

	oldChunks, err := s.catalog.FindChunksByURL(ctx, job.VersionID, page.URL)
	if err != nil {
		s.logger.Warn("lookup old chunks failed", slog.String("url", page.URL), slog.String("error", err.Error()))
	}

	scrapeResult, err := s.chunkResult(ctx, result)
	if err != nil {
		return err
	}

	if _, err := s.catalog.AddDocuments(ctx, job.VersionID, page.Depth, scrapeResult, result.ETag, result.LastModified); err != nil {
		return fmt.Errorf("persist refreshed page: %w", err)
	}

	if len(oldChunks) > 0 {
		ids := make([]string, len(oldChunks))
		for i, c := range oldChunks {
			ids[i] = c.ID
		}
		if err := s.engine.Delete(ctx, ids); err != nil {
			s.logger.Warn("delete stale chunks failed", slog.String("url", page.URL), slog.String("error", err.Error()))
		}
	}
	if err := s.engine.Index(ctx, scrapeResult.Chunks); err != nil {
		return fmt.Errorf("index refreshed chunks: %w", err)
	}
	return nil
}

// ingestPage chunks a freshly crawled page and writes it to the catalog
// and search indices.
func (s *Scheduler) ingestPage(ctx context.Context, job *Job, page crawler.Page) {
	scrapeResult, err := s.chunkResult(ctx, page.Result)
	if err != nil {
		s.logger.Warn("chunking failed", slog.String("version_id", job.VersionID), slog.String("url", page.URL), slog.String("error", err.Error()))
		return
	}

	if _, err := s.catalog.AddDocuments(ctx, job.VersionID, page.Depth, scrapeResult, page.Result.ETag, page.Result.LastModified); err != nil {
		s.logger.Warn("persist page failed", slog.String("version_id", job.VersionID), slog.String("url", page.URL), slog.String("error", err.Error()))
		return
	}
	if err := s.engine.Index(ctx, scrapeResult.Chunks); err != nil {
		s.logger.Warn("index chunks failed", slog.String("version_id", job.VersionID), slog.String("url", page.URL), slog.String("error", err.Error()))
	}
}

// chunkResult dispatches a fetch result to the first pipeline whose
// CanHandle matches the result's MIME type (§4.3 pipeline dispatch).
func (s *Scheduler) chunkResult(ctx context.Context, result *fetch.Result) (*store.ScrapeResult, error) {
	p := s.selectPipeline(result.MimeType)
	if p == nil {
		return nil, fmt.Errorf("no pipeline registered for mime type %q", result.MimeType)
	}
	return p.Chunk(ctx, &pipeline.Input{
		URL:      result.URL,
		Path:     result.URL,
		Content:  result.Content,
		MimeType: result.MimeType,
	})
}

var markdownLinkPattern = regexp.MustCompile(`\]\(([^)\s]+)\)`)

// extractLinks pulls outbound links from a fetched page so the crawler can
// continue its BFS. HTML pages are walked with goquery; Markdown/plain
// text pages fall back to a link-syntax regex; anything else yields no
// links (§4.4 link discovery).
func extractLinks(pageURL string, content []byte, mimeType string) []string {
	switch {
	case strings.Contains(mimeType, "html"):
		return extractHTMLLinks(content)
	case strings.Contains(mimeType, "markdown"):
		return extractMarkdownLinks(content)
	default:
		return nil
	}
}

func extractHTMLLinks(content []byte) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(string(content)))
	if err != nil {
		return nil
	}
	var links []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") {
			return
		}
		links = append(links, href)
	})
	return links
}

func extractMarkdownLinks(content []byte) []string {
	matches := markdownLinkPattern.FindAllStringSubmatch(string(content), -1)
	links := make([]string, 0, len(matches))
	for _, m := range matches {
		if len(m) == 2 && m[1] != "" && !strings.HasPrefix(m[1], "#") {
			links = append(links, m[1])
		}
	}
	return links
}
