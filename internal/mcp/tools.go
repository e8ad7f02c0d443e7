package mcp

import "time"

// ScraperOptionsInput mirrors the persisted store.ScraperOptions wire shape.
// Fields left zero inherit the server's configured scraper defaults.
type ScraperOptionsInput struct {
	MaxPages        int               `json:"max_pages,omitempty" jsonschema:"maximum pages to crawl"`
	MaxDepth        int               `json:"max_depth,omitempty" jsonschema:"maximum link depth from the start URL"`
	Scope           string            `json:"scope,omitempty" jsonschema:"subpages|hostname|domain"`
	FollowRedirects bool              `json:"follow_redirects,omitempty" jsonschema:"follow HTTP redirects"`
	IgnoreErrors    bool              `json:"ignore_errors,omitempty" jsonschema:"skip failed pages instead of failing the whole job"`
	MaxConcurrency  int               `json:"max_concurrency,omitempty" jsonschema:"concurrent page fetches"`
	IncludePatterns []string          `json:"include_patterns,omitempty" jsonschema:"regex (or, if not a valid regex, gitignore-style glob) patterns a discovered URL must match to be crawled"`
	ExcludePatterns []string          `json:"exclude_patterns,omitempty" jsonschema:"regex (or, if not a valid regex, gitignore-style glob) patterns that exclude a URL from crawling; exclude wins over include"`
	ScrapeMode      string            `json:"scrape_mode,omitempty" jsonschema:"auto|fetch|playwright"`
	Headers         map[string]string `json:"headers,omitempty" jsonschema:"extra HTTP headers sent with every request"`
}

// SearchDocsInput is the input schema for the search_docs tool.
type SearchDocsInput struct {
	Library string `json:"library" jsonschema:"library name, case-insensitive"`
	Version string `json:"version,omitempty" jsonschema:"version name; omitted or 'latest' means the unversioned variant"`
	Query   string `json:"query" jsonschema:"the search query to execute"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 5"`
}

// SearchDocsOutput is the output schema for the search_docs tool.
type SearchDocsOutput struct {
	Results []SearchResultOutput `json:"results" jsonschema:"assembled passages ranked by hybrid relevance"`
}

// SearchResultOutput is one assembled page-level hit.
type SearchResultOutput struct {
	URL         string   `json:"url" jsonschema:"page the result was assembled from"`
	Title       string   `json:"title,omitempty" jsonschema:"page title, if recorded"`
	Content     string   `json:"content" jsonschema:"assembled passage"`
	MimeType    string   `json:"mime_type,omitempty" jsonschema:"prose|code|json|unknown"`
	Score       float64  `json:"score" jsonschema:"fused BM25/semantic relevance score"`
	ChunkIDs    []string `json:"chunk_ids,omitempty" jsonschema:"chunk ids included in the assembly, in order"`
	MatchReason string   `json:"match_reason,omitempty" jsonschema:"human-readable explanation of why this result matched"`
}

// VersionSummary describes one version of a library in listing output.
type VersionSummary struct {
	Version   string     `json:"version" jsonschema:"version name; empty string is the unversioned variant"`
	Status    string     `json:"status" jsonschema:"NOT_INDEXED|QUEUED|RUNNING|COMPLETED|FAILED|CANCELLED|UPDATING"`
	PageCount int        `json:"page_count" jsonschema:"number of indexed pages"`
	IndexedAt *time.Time `json:"indexed_at,omitempty" jsonschema:"last status transition timestamp"`
	SourceURL string     `json:"source_url,omitempty" jsonschema:"URL or file:// root the version was scraped from"`
}

// ListLibrariesInput is the (empty) input schema for list_libraries.
type ListLibrariesInput struct{}

// ListLibrariesOutput is the output schema for list_libraries.
type ListLibrariesOutput struct {
	Libraries []LibrarySummary `json:"libraries"`
}

// LibrarySummary describes one library and all its versions.
type LibrarySummary struct {
	Library  string           `json:"library"`
	Versions []VersionSummary `json:"versions"`
}

// ListVersionsInput is the input schema for list_versions.
type ListVersionsInput struct {
	Library string `json:"library" jsonschema:"library name, case-insensitive"`
}

// ListVersionsOutput is the output schema for list_versions.
type ListVersionsOutput struct {
	Versions []VersionSummary `json:"versions"`
}

// FindVersionInput is the input schema for find_version.
type FindVersionInput struct {
	Library string `json:"library" jsonschema:"library name, case-insensitive"`
	Target  string `json:"target,omitempty" jsonschema:"version to resolve; omitted means the unversioned variant"`
}

// FindVersionOutput is the output schema for find_version.
type FindVersionOutput struct {
	BestMatch      string   `json:"best_match,omitempty" jsonschema:"closest matching version name found"`
	HasUnversioned bool     `json:"has_unversioned" jsonschema:"true if the library also has an unversioned variant indexed"`
	Suggestions    []string `json:"suggestions,omitempty" jsonschema:"up to 3 fuzzy-matched names: library names when the library was not found, otherwise version names when target has no exact match"`
}

// ScrapeDocsInput is the input schema for scrape_docs.
type ScrapeDocsInput struct {
	URL     string               `json:"url" jsonschema:"root URL or file:// path to crawl"`
	Library string               `json:"library" jsonschema:"library name to index under"`
	Version string               `json:"version,omitempty" jsonschema:"version name; omitted means the unversioned variant"`
	Options *ScraperOptionsInput `json:"options,omitempty" jsonschema:"crawl options; omitted fields inherit server defaults"`
}

// ScrapeDocsOutput is the output schema for scrape_docs.
type ScrapeDocsOutput struct {
	JobID string `json:"job_id"`
}

// FetchURLInput is the input schema for fetch_url.
type FetchURLInput struct {
	URL             string            `json:"url" jsonschema:"URL or file:// path to fetch"`
	FollowRedirects bool              `json:"follow_redirects,omitempty" jsonschema:"follow HTTP redirects; omitted means redirects are not followed"`
	Headers         map[string]string `json:"headers,omitempty" jsonschema:"extra HTTP headers sent with the request"`
}

// FetchURLOutput is the output schema for fetch_url.
type FetchURLOutput struct {
	Markdown string `json:"markdown" jsonschema:"page content converted to markdown"`
}

// RemoveDocsInput is the input schema for remove_docs.
type RemoveDocsInput struct {
	Library string `json:"library" jsonschema:"library name, case-insensitive"`
	Version string `json:"version,omitempty" jsonschema:"version to remove; omitted removes the unversioned variant only"`
}

// RemoveDocsOutput is the output schema for remove_docs.
type RemoveDocsOutput struct {
	Removed bool `json:"removed"`
}

// GetJobInfoInput is the input schema for get_job_info.
type GetJobInfoInput struct {
	JobID string `json:"job_id,omitempty" jsonschema:"job id; omitted lists every job still tracked in memory"`
}

// GetJobInfoOutput is the output schema for get_job_info.
type GetJobInfoOutput struct {
	Jobs []JobInfoOutput `json:"jobs"`
}

// JobInfoOutput is a point-in-time snapshot of one job's scheduling state.
type JobInfoOutput struct {
	JobID      string     `json:"job_id"`
	VersionID  string     `json:"version_id"`
	Library    string     `json:"library"`
	Version    string     `json:"version"`
	Kind       string     `json:"kind" jsonschema:"scrape|refresh"`
	Status     string     `json:"status"`
	Pages      int        `json:"pages"`
	MaxPages   int        `json:"max_pages,omitempty"`
	Error      string     `json:"error,omitempty"`
	EnqueuedAt time.Time  `json:"enqueued_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
}

// CancelJobInput is the input schema for cancel_job.
type CancelJobInput struct {
	JobID string `json:"job_id" jsonschema:"job id to cancel"`
}

// CancelJobOutput is the output schema for cancel_job.
type CancelJobOutput struct {
	Cancelled bool `json:"cancelled"`
}

// ClearCompletedJobsInput is the (empty) input schema for clear_completed_jobs.
type ClearCompletedJobsInput struct{}

// ClearCompletedJobsOutput is the output schema for clear_completed_jobs.
type ClearCompletedJobsOutput struct {
	Cleared int `json:"cleared"`
}

// RefreshVersionInput is the input schema for refresh_version.
type RefreshVersionInput struct {
	Library string `json:"library" jsonschema:"library name, case-insensitive"`
	Version string `json:"version,omitempty" jsonschema:"version to refresh; omitted means the unversioned variant"`
}

// RefreshVersionOutput is the output schema for refresh_version.
type RefreshVersionOutput struct {
	JobID string `json:"job_id"`
}
