// Package mcp implements the Model Context Protocol (MCP) server for DocIndex.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/Aman-CERP/docindex/internal/config"
	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/fetch"
	"github.com/Aman-CERP/docindex/internal/retriever"
	"github.com/Aman-CERP/docindex/internal/scheduler"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/pkg/version"
)

// fuzzyThreshold is the similarity cutoff below which a name is not offered
// as a suggestion (§7: "threshold ≈ 0.7").
const fuzzyThreshold = 0.7

// maxSuggestions bounds the number of fuzzy-matched suggestions returned.
const maxSuggestions = 3

// Server is the MCP server for DocIndex. It bridges AI clients (Claude Code,
// Cursor, ...) with the catalog, hybrid search engine, and pipeline
// scheduler behind the eleven tools of the external tool surface.
type Server struct {
	mcp       *mcp.Server
	catalog   store.Catalog
	engine    retriever.SearchEngine
	scheduler *scheduler.Scheduler
	fetcher   fetch.Fetcher
	config    *config.Config
	logger    *slog.Logger
}

// NewServer creates a new MCP server wired to the catalog, search engine,
// scheduler, and fetcher backing a running docindex instance.
func NewServer(catalog store.Catalog, engine retriever.SearchEngine, sched *scheduler.Scheduler, fetcher fetch.Fetcher, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("search engine is required")
	}
	if sched == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("fetcher is required")
	}
	if cfg == nil {
		cfg = config.NewConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		catalog:   catalog,
		engine:    engine,
		scheduler: sched,
		fetcher:   fetcher,
		config:    cfg,
		logger:    logger,
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "DocIndex", Version: version.Version},
		nil, // capabilities are inferred from registered tools
	)
	s.registerTools()

	return s, nil
}

// MCPServer returns the underlying SDK server, e.g. for direct transport wiring.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools wires every tool of the external tool surface to the MCP SDK.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_docs",
		Description: "Hybrid search (BM25 + semantic) over one library/version's indexed documentation. Returns assembled passages ranked by fused relevance.",
	}, s.searchDocsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_libraries",
		Description: "List every indexed library and the status, page count, and source URL of each of its versions.",
	}, s.listLibrariesHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "list_versions",
		Description: "List the indexed versions of a single library.",
	}, s.listVersionsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_version",
		Description: "Resolve a library/version target to the closest indexed match, with fuzzy-matched suggestions when nothing matches exactly.",
	}, s.findVersionHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "scrape_docs",
		Description: "Enqueue a crawl of a documentation site or local file tree into a library/version. Returns immediately with a job id; indexing happens in the background.",
	}, s.scrapeDocsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fetch_url",
		Description: "Fetch a single URL or file:// path and return its content converted to markdown, without indexing it.",
	}, s.fetchURLHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "remove_docs",
		Description: "Delete an indexed library version and all of its pages and chunks from the catalog and search indices.",
	}, s.removeDocsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_job_info",
		Description: "Get the scheduling status of one scrape/refresh job, or every job still tracked in memory when no job id is given.",
	}, s.getJobInfoHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "cancel_job",
		Description: "Request cancellation of a running scrape or refresh job.",
	}, s.cancelJobHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "clear_completed_jobs",
		Description: "Drop in-memory bookkeeping for finished jobs so get_job_info stops reporting them.",
	}, s.clearCompletedJobsHandler)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "refresh_version",
		Description: "Enqueue a differential re-crawl of an already-indexed version: unchanged pages are left alone, changed pages are re-chunked and re-indexed.",
	}, s.refreshVersionHandler)

	s.logger.Info("MCP tools registered", slog.Int("count", 11))
}

// CallTool invokes a tool by name with loosely-typed arguments, the way an
// MCP client's JSON-RPC request arrives. Used by dogfooding validation and
// anything else that wants to exercise the tool surface without going
// through a transport.
func (s *Server) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return nil, NewInvalidParamsError("malformed arguments: " + err.Error())
	}

	switch name {
	case "search_docs":
		var in SearchDocsInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.searchDocsHandler(ctx, nil, in)
		return out, err
	case "list_libraries":
		_, out, err := s.listLibrariesHandler(ctx, nil, ListLibrariesInput{})
		return out, err
	case "list_versions":
		var in ListVersionsInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.listVersionsHandler(ctx, nil, in)
		return out, err
	case "find_version":
		var in FindVersionInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.findVersionHandler(ctx, nil, in)
		return out, err
	case "scrape_docs":
		var in ScrapeDocsInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.scrapeDocsHandler(ctx, nil, in)
		return out, err
	case "fetch_url":
		var in FetchURLInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.fetchURLHandler(ctx, nil, in)
		return out, err
	case "remove_docs":
		var in RemoveDocsInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.removeDocsHandler(ctx, nil, in)
		return out, err
	case "get_job_info":
		var in GetJobInfoInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.getJobInfoHandler(ctx, nil, in)
		return out, err
	case "cancel_job":
		var in CancelJobInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.cancelJobHandler(ctx, nil, in)
		return out, err
	case "clear_completed_jobs":
		_, out, err := s.clearCompletedJobsHandler(ctx, nil, ClearCompletedJobsInput{})
		return out, err
	case "refresh_version":
		var in RefreshVersionInput
		if err := json.Unmarshal(raw, &in); err != nil {
			return nil, NewInvalidParamsError(err.Error())
		}
		_, out, err := s.refreshVersionHandler(ctx, nil, in)
		return out, err
	default:
		return nil, NewMethodNotFoundError(name)
	}
}

func (s *Server) searchDocsHandler(ctx context.Context, _ *mcp.CallToolRequest, input SearchDocsInput) (*mcp.CallToolResult, SearchDocsOutput, error) {
	if strings.TrimSpace(input.Query) == "" {
		return nil, SearchDocsOutput{}, NewInvalidParamsError("query is required")
	}

	lib, versionID, err := s.resolveIndexedVersion(ctx, input.Library, input.Version)
	if err != nil {
		return nil, SearchDocsOutput{}, MapError(err)
	}

	limit := clampLimit(input.Limit, 5, 1, 100)
	results, err := s.engine.Search(ctx, lib.ID, versionID, input.Query, retriever.SearchOptions{Limit: limit})
	if err != nil {
		return nil, SearchDocsOutput{}, MapError(err)
	}

	out := SearchDocsOutput{Results: make([]SearchResultOutput, 0, len(results))}
	for _, r := range results {
		out.Results = append(out.Results, ToSearchResultOutput(r))
	}
	return nil, out, nil
}

func (s *Server) listLibrariesHandler(ctx context.Context, _ *mcp.CallToolRequest, _ ListLibrariesInput) (*mcp.CallToolResult, ListLibrariesOutput, error) {
	libs, err := s.catalog.ListLibraries(ctx)
	if err != nil {
		return nil, ListLibrariesOutput{}, MapError(err)
	}

	out := ListLibrariesOutput{Libraries: make([]LibrarySummary, 0, len(libs))}
	for _, lib := range libs {
		versions, err := s.catalog.ListVersions(ctx, lib.ID)
		if err != nil {
			return nil, ListLibrariesOutput{}, MapError(err)
		}
		out.Libraries = append(out.Libraries, LibrarySummary{
			Library:  lib.Name,
			Versions: versionSummaries(versions),
		})
	}
	return nil, out, nil
}

func (s *Server) listVersionsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ListVersionsInput) (*mcp.CallToolResult, ListVersionsOutput, error) {
	lib, found, err := s.catalog.GetLibraryByName(ctx, input.Library)
	if err != nil {
		return nil, ListVersionsOutput{}, MapError(err)
	}
	if !found {
		return nil, ListVersionsOutput{}, MapError(docerrors.NotFound(fmt.Sprintf("library %q not found", input.Library)))
	}
	versions, err := s.catalog.ListVersions(ctx, lib.ID)
	if err != nil {
		return nil, ListVersionsOutput{}, MapError(err)
	}
	return nil, ListVersionsOutput{Versions: versionSummaries(versions)}, nil
}

func (s *Server) findVersionHandler(ctx context.Context, _ *mcp.CallToolRequest, input FindVersionInput) (*mcp.CallToolResult, FindVersionOutput, error) {
	lib, found, err := s.catalog.GetLibraryByName(ctx, input.Library)
	if err != nil {
		return nil, FindVersionOutput{}, MapError(err)
	}
	if !found {
		libs, lerr := s.catalog.ListLibraries(ctx)
		if lerr != nil {
			return nil, FindVersionOutput{}, MapError(lerr)
		}
		names := make([]string, len(libs))
		for i, l := range libs {
			names[i] = l.Name
		}
		return nil, FindVersionOutput{Suggestions: fuzzySuggestions(input.Library, names, fuzzyThreshold, maxSuggestions)}, nil
	}

	versions, err := s.catalog.ListVersions(ctx, lib.ID)
	if err != nil {
		return nil, FindVersionOutput{}, MapError(err)
	}

	target := normalizeVersionTarget(input.Target)
	var hasUnversioned bool
	names := make([]string, 0, len(versions))
	for _, v := range versions {
		if v.Name == "" {
			hasUnversioned = true
		}
		if v.Name == target {
			return nil, FindVersionOutput{BestMatch: v.Name, HasUnversioned: hasUnversioned}, nil
		}
		names = append(names, v.Name)
	}

	suggestions := fuzzySuggestions(target, names, fuzzyThreshold, maxSuggestions)
	var best string
	if len(suggestions) > 0 {
		best = suggestions[0]
	}
	return nil, FindVersionOutput{BestMatch: best, HasUnversioned: hasUnversioned, Suggestions: suggestions}, nil
}

func (s *Server) scrapeDocsHandler(ctx context.Context, _ *mcp.CallToolRequest, input ScrapeDocsInput) (*mcp.CallToolResult, ScrapeDocsOutput, error) {
	if strings.TrimSpace(input.URL) == "" {
		return nil, ScrapeDocsOutput{}, NewInvalidParamsError("url is required")
	}
	if strings.TrimSpace(input.Library) == "" {
		return nil, ScrapeDocsOutput{}, NewInvalidParamsError("library is required")
	}

	versionID, err := s.catalog.ResolveVersion(ctx, input.Library, input.Version)
	if err != nil {
		return nil, ScrapeDocsOutput{}, MapError(err)
	}

	opts := toScraperOptions(input.Options)
	if err := s.catalog.SetScraperOptions(ctx, versionID, input.URL, opts); err != nil {
		return nil, ScrapeDocsOutput{}, MapError(err)
	}

	v, err := s.catalog.GetVersion(ctx, versionID)
	if err != nil {
		return nil, ScrapeDocsOutput{}, MapError(err)
	}

	jobID, err := s.scheduler.Enqueue(ctx, v, input.URL, opts)
	if err != nil {
		return nil, ScrapeDocsOutput{}, MapError(err)
	}
	return nil, ScrapeDocsOutput{JobID: jobID}, nil
}

func (s *Server) fetchURLHandler(ctx context.Context, _ *mcp.CallToolRequest, input FetchURLInput) (*mcp.CallToolResult, FetchURLOutput, error) {
	if strings.TrimSpace(input.URL) == "" {
		return nil, FetchURLOutput{}, NewInvalidParamsError("url is required")
	}

	result, err := s.fetcher.Fetch(ctx, input.URL, fetch.Options{
		FollowRedirects: input.FollowRedirects,
		Headers:         input.Headers,
	})
	if err != nil {
		return nil, FetchURLOutput{}, MapError(err)
	}

	if strings.Contains(result.MimeType, "html") {
		md, err := htmltomarkdown.ConvertString(string(result.Content))
		if err != nil {
			return nil, FetchURLOutput{}, MapError(err)
		}
		return nil, FetchURLOutput{Markdown: md}, nil
	}
	return nil, FetchURLOutput{Markdown: string(result.Content)}, nil
}

func (s *Server) removeDocsHandler(ctx context.Context, _ *mcp.CallToolRequest, input RemoveDocsInput) (*mcp.CallToolResult, RemoveDocsOutput, error) {
	lib, found, err := s.catalog.GetLibraryByName(ctx, input.Library)
	if err != nil {
		return nil, RemoveDocsOutput{}, MapError(err)
	}
	if !found {
		return nil, RemoveDocsOutput{}, MapError(docerrors.NotFound(fmt.Sprintf("library %q not found", input.Library)))
	}
	v, found, err := s.catalog.GetVersionByName(ctx, lib.ID, input.Version)
	if err != nil {
		return nil, RemoveDocsOutput{}, MapError(err)
	}
	if !found {
		return nil, RemoveDocsOutput{}, MapError(docerrors.NotFound(fmt.Sprintf("version %q not found for library %q", input.Version, input.Library)))
	}

	chunkIDs, err := s.chunkIDsForVersion(ctx, v.ID)
	if err != nil {
		s.logger.Warn("list chunks before remove failed", slog.String("version_id", v.ID), slog.String("error", err.Error()))
	} else if len(chunkIDs) > 0 {
		if err := s.engine.Delete(ctx, chunkIDs); err != nil {
			s.logger.Warn("delete indexed chunks failed", slog.String("version_id", v.ID), slog.String("error", err.Error()))
		}
	}

	if err := s.catalog.RemoveVersion(ctx, v.ID, true); err != nil {
		return nil, RemoveDocsOutput{}, MapError(err)
	}
	return nil, RemoveDocsOutput{Removed: true}, nil
}

func (s *Server) getJobInfoHandler(ctx context.Context, _ *mcp.CallToolRequest, input GetJobInfoInput) (*mcp.CallToolResult, GetJobInfoOutput, error) {
	if input.JobID != "" {
		info, ok := s.scheduler.JobInfo(input.JobID)
		if !ok {
			return nil, GetJobInfoOutput{}, MapError(docerrors.NotFound(fmt.Sprintf("job %q not found", input.JobID)))
		}
		out, err := s.jobInfoOutput(ctx, info)
		if err != nil {
			return nil, GetJobInfoOutput{}, MapError(err)
		}
		return nil, GetJobInfoOutput{Jobs: []JobInfoOutput{out}}, nil
	}

	jobs := s.scheduler.ListJobs()
	out := GetJobInfoOutput{Jobs: make([]JobInfoOutput, 0, len(jobs))}
	for _, info := range jobs {
		jo, err := s.jobInfoOutput(ctx, info)
		if err != nil {
			s.logger.Warn("job info lookup failed", slog.String("job_id", info.JobID), slog.String("error", err.Error()))
			continue
		}
		out.Jobs = append(out.Jobs, jo)
	}
	return nil, out, nil
}

func (s *Server) cancelJobHandler(_ context.Context, _ *mcp.CallToolRequest, input CancelJobInput) (*mcp.CallToolResult, CancelJobOutput, error) {
	if strings.TrimSpace(input.JobID) == "" {
		return nil, CancelJobOutput{}, NewInvalidParamsError("job_id is required")
	}
	return nil, CancelJobOutput{Cancelled: s.scheduler.CancelJob(input.JobID)}, nil
}

func (s *Server) clearCompletedJobsHandler(_ context.Context, _ *mcp.CallToolRequest, _ ClearCompletedJobsInput) (*mcp.CallToolResult, ClearCompletedJobsOutput, error) {
	return nil, ClearCompletedJobsOutput{Cleared: s.scheduler.ClearCompleted()}, nil
}

func (s *Server) refreshVersionHandler(ctx context.Context, _ *mcp.CallToolRequest, input RefreshVersionInput) (*mcp.CallToolResult, RefreshVersionOutput, error) {
	lib, found, err := s.catalog.GetLibraryByName(ctx, input.Library)
	if err != nil {
		return nil, RefreshVersionOutput{}, MapError(err)
	}
	if !found {
		return nil, RefreshVersionOutput{}, MapError(docerrors.NotFound(fmt.Sprintf("library %q not found", input.Library)))
	}
	v, found, err := s.catalog.GetVersionByName(ctx, lib.ID, input.Version)
	if err != nil {
		return nil, RefreshVersionOutput{}, MapError(err)
	}
	if !found {
		return nil, RefreshVersionOutput{}, MapError(docerrors.NotFound(fmt.Sprintf("version %q not found for library %q", input.Version, input.Library)))
	}

	jobID, err := s.scheduler.EnqueueRefresh(ctx, v)
	if err != nil {
		return nil, RefreshVersionOutput{}, MapError(err)
	}
	return nil, RefreshVersionOutput{JobID: jobID}, nil
}

// resolveIndexedVersion looks up an already-indexed library+version pair,
// returning a not-found DocError naming the offending input otherwise.
func (s *Server) resolveIndexedVersion(ctx context.Context, library, versionName string) (*store.Library, string, error) {
	lib, found, err := s.catalog.GetLibraryByName(ctx, library)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", docerrors.NotFound(fmt.Sprintf("library %q not found", library))
	}
	v, found, err := s.catalog.GetVersionByName(ctx, lib.ID, versionName)
	if err != nil {
		return nil, "", err
	}
	if !found {
		return nil, "", docerrors.NotFound(fmt.Sprintf("version %q not found for library %q", versionName, library))
	}
	return lib, v.ID, nil
}

// chunkIDsForVersion collects every chunk id belonging to a version, across
// all of its pages.
func (s *Server) chunkIDsForVersion(ctx context.Context, versionID string) ([]string, error) {
	pages, err := s.catalog.GetPagesByVersionID(ctx, versionID)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, p := range pages {
		chunks, err := s.catalog.FindChunksByURL(ctx, versionID, p.URL)
		if err != nil {
			return nil, err
		}
		for _, c := range chunks {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

// jobInfoOutput merges a scheduler snapshot with the catalog's live version
// state, since the scheduler itself only tracks identity and enqueue time.
func (s *Server) jobInfoOutput(ctx context.Context, info *scheduler.JobInfo) (JobInfoOutput, error) {
	v, err := s.catalog.GetVersion(ctx, info.VersionID)
	if err != nil {
		return JobInfoOutput{}, err
	}
	return JobInfoOutput{
		JobID:      info.JobID,
		VersionID:  info.VersionID,
		Library:    info.Library,
		Version:    info.Version,
		Kind:       string(info.Kind),
		Status:     string(v.Status),
		Pages:      v.ProgressPages,
		MaxPages:   v.ProgressMaxPages,
		Error:      v.ErrorMessage,
		EnqueuedAt: info.EnqueuedAt,
		StartedAt:  v.StartedAt,
	}, nil
}

// versionSummaries converts catalog versions to the listing output shape.
func versionSummaries(versions []*store.Version) []VersionSummary {
	out := make([]VersionSummary, len(versions))
	for i, v := range versions {
		updatedAt := v.UpdatedAt
		out[i] = VersionSummary{
			Version:   v.Name,
			Status:    string(v.Status),
			PageCount: v.ProgressPages,
			IndexedAt: &updatedAt,
			SourceURL: v.SourceURL,
		}
	}
	return out
}

// toScraperOptions converts the tool-facing options shape to the persisted
// store.ScraperOptions; a nil input yields the zero value, which ResolveVersion
// and the scheduler interpret as "inherit configured defaults".
func toScraperOptions(in *ScraperOptionsInput) store.ScraperOptions {
	if in == nil {
		return store.ScraperOptions{}
	}
	return store.ScraperOptions{
		MaxPages:        in.MaxPages,
		MaxDepth:        in.MaxDepth,
		Scope:           in.Scope,
		FollowRedirects: in.FollowRedirects,
		IgnoreErrors:    in.IgnoreErrors,
		MaxConcurrency:  in.MaxConcurrency,
		IncludePatterns: in.IncludePatterns,
		ExcludePatterns: in.ExcludePatterns,
		ScrapeMode:      in.ScrapeMode,
		Headers:         in.Headers,
	}
}

// normalizeVersionTarget applies the same "latest"/empty/whitespace-only ->
// unversioned normalization as store.ResolveVersion (§6).
func normalizeVersionTarget(target string) string {
	normalized := strings.ToLower(strings.TrimSpace(target))
	if normalized == "latest" {
		return ""
	}
	return normalized
}

// Serve runs the MCP server over the given transport until ctx is canceled.
func (s *Server) Serve(ctx context.Context, transport string) error {
	s.logger.Info("starting MCP server", slog.String("transport", transport))

	switch transport {
	case "stdio":
		err := s.mcp.Run(ctx, &mcp.StdioTransport{})
		if err != nil && err != context.Canceled {
			s.logger.Error("MCP server stopped with error", slog.String("error", err.Error()))
			return err
		}
		s.logger.Info("MCP server stopped")
		return nil
	default:
		return fmt.Errorf("unknown transport: %s (supported: stdio)", transport)
	}
}

// Close releases server-owned resources. The MCP SDK server itself stops
// when its Run context is canceled.
func (s *Server) Close() error {
	return nil
}
