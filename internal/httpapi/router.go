// Package httpapi exposes the MCP tool surface as a JSON HTTP API, for the
// operator UI and for scripting against a running daemon without an MCP
// client.
package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/Aman-CERP/docindex/internal/mcp"
)

// Router builds the chi-based HTTP surface over an MCP tool dispatcher.
type Router struct {
	server *mcp.Server
	logger *slog.Logger
	mux    *chi.Mux
}

// NewRouter builds a Router wrapping server's CallTool dispatch. Routes
// mirror the MCP tool surface 1:1 per the external interfaces section of
// the design this package implements.
func NewRouter(server *mcp.Server, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Router{server: server, logger: logger, mux: chi.NewRouter()}
	r.mux.Use(chimiddleware.Recoverer)
	r.mux.Use(chimiddleware.RequestID)
	r.mux.Use(chimiddleware.Timeout(60 * time.Second))
	r.setupRoutes()
	return r
}

// Handler returns the router as an http.Handler.
func (r *Router) Handler() http.Handler {
	return r.mux
}

func (r *Router) setupRoutes() {
	r.mux.Get("/api/libraries", r.handleListLibraries)
	r.mux.Get("/api/libraries/{lib}/versions", r.handleListVersions)
	r.mux.Get("/api/versions/{lib}/{version}/search", r.handleSearch)
	r.mux.Post("/api/scrape", r.handleScrape)
	r.mux.Post("/api/refresh", r.handleRefresh)
	r.mux.Get("/api/jobs/{id}", r.handleGetJob)
	r.mux.Post("/api/jobs/{id}/cancel", r.handleCancelJob)
}

func (r *Router) handleListLibraries(w http.ResponseWriter, req *http.Request) {
	out, err := r.server.CallTool(req.Context(), "list_libraries", map[string]any{})
	r.respond(w, out, err)
}

func (r *Router) handleListVersions(w http.ResponseWriter, req *http.Request) {
	lib := chi.URLParam(req, "lib")
	out, err := r.server.CallTool(req.Context(), "list_versions", map[string]any{"library": lib})
	r.respond(w, out, err)
}

func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	lib := chi.URLParam(req, "lib")
	version := chi.URLParam(req, "version")
	q := req.URL.Query().Get("q")

	args := map[string]any{"library": lib, "version": version, "query": q}
	if limitStr := req.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil {
			args["limit"] = limit
		}
	}

	out, err := r.server.CallTool(req.Context(), "search_docs", args)
	r.respond(w, out, err)
}

type scrapeRequest struct {
	URL     string                   `json:"url"`
	Library string                   `json:"library"`
	Version string                   `json:"version,omitempty"`
	Options *mcp.ScraperOptionsInput `json:"options,omitempty"`
}

func (r *Router) handleScrape(w http.ResponseWriter, req *http.Request) {
	var body scrapeRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	args := map[string]any{"url": body.URL, "library": body.Library, "version": body.Version}
	if body.Options != nil {
		args["options"] = body.Options
	}

	out, err := r.server.CallTool(req.Context(), "scrape_docs", args)
	r.respond(w, out, err)
}

type refreshRequest struct {
	Library string `json:"library"`
	Version string `json:"version,omitempty"`
}

func (r *Router) handleRefresh(w http.ResponseWriter, req *http.Request) {
	var body refreshRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		r.writeError(w, http.StatusBadRequest, "malformed request body: "+err.Error())
		return
	}

	out, err := r.server.CallTool(req.Context(), "refresh_version", map[string]any{
		"library": body.Library,
		"version": body.Version,
	})
	r.respond(w, out, err)
}

func (r *Router) handleGetJob(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	out, err := r.server.CallTool(req.Context(), "get_job_info", map[string]any{"job_id": id})
	r.respond(w, out, err)
}

func (r *Router) handleCancelJob(w http.ResponseWriter, req *http.Request) {
	id := chi.URLParam(req, "id")
	out, err := r.server.CallTool(req.Context(), "cancel_job", map[string]any{"job_id": id})
	r.respond(w, out, err)
}

func (r *Router) respond(w http.ResponseWriter, out any, err error) {
	if err != nil {
		status, msg := statusForError(err)
		r.logger.Warn("http api tool call failed", slog.Int("status", status), slog.String("error", msg))
		r.writeError(w, status, msg)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if encErr := json.NewEncoder(w).Encode(out); encErr != nil {
		r.logger.Error("failed to encode response", slog.String("error", encErr.Error()))
	}
}

func (r *Router) writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": message,
	})
}

// statusForError maps an MCP tool call error to the HTTP status table of
// the error handling design: not-found kinds are 404, validation is 400,
// fetch/embedding/internal failures are 5xx.
func statusForError(err error) (int, string) {
	mcpErr, ok := err.(*mcp.MCPError)
	if !ok {
		return http.StatusInternalServerError, err.Error()
	}

	switch mcpErr.Code {
	case mcp.ErrCodeNotFound, mcp.ErrCodeMethodNotFound:
		return http.StatusNotFound, mcpErr.Message
	case mcp.ErrCodeInvalidParams, mcp.ErrCodeInvalidRequest:
		return http.StatusBadRequest, mcpErr.Message
	case mcp.ErrCodeFetchFailed:
		return http.StatusBadGateway, mcpErr.Message
	case mcp.ErrCodeTimeout:
		return http.StatusGatewayTimeout, mcpErr.Message
	default:
		return http.StatusInternalServerError, mcpErr.Message
	}
}
