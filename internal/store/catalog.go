package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/mod/semver"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
)

// SQLiteCatalog implements Catalog on top of a single SQLite database,
// following the same WAL/pragma setup as SQLiteBM25Index.
type SQLiteCatalog struct {
	mu   sync.RWMutex
	db   *sql.DB
	path string
}

var _ Catalog = (*SQLiteCatalog)(nil)

// NewSQLiteCatalog opens (creating if absent) the catalog database at path.
// An empty path opens an in-memory database, used by tests.
func NewSQLiteCatalog(path string) (*SQLiteCatalog, error) {
	var dsn string
	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
		dsn = path + "?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	c := &SQLiteCatalog{db: db, path: path}
	if err := c.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize catalog schema: %w", err)
	}
	return c, nil
}

func (c *SQLiteCatalog) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

	CREATE TABLE IF NOT EXISTS libraries (
		id   TEXT PRIMARY KEY,
		name TEXT NOT NULL UNIQUE
	);

	CREATE TABLE IF NOT EXISTS versions (
		id                 TEXT PRIMARY KEY,
		library_id         TEXT NOT NULL REFERENCES libraries(id) ON DELETE CASCADE,
		name               TEXT NOT NULL,
		status             TEXT NOT NULL,
		progress_pages     INTEGER NOT NULL DEFAULT 0,
		progress_max_pages INTEGER NOT NULL DEFAULT 0,
		source_url         TEXT NOT NULL DEFAULT '',
		scraper_options    TEXT NOT NULL DEFAULT '{}',
		error_message      TEXT NOT NULL DEFAULT '',
		started_at         TEXT,
		updated_at         TEXT NOT NULL,
		UNIQUE(library_id, name)
	);

	CREATE TABLE IF NOT EXISTS pages (
		id            TEXT PRIMARY KEY,
		version_id    TEXT NOT NULL REFERENCES versions(id) ON DELETE CASCADE,
		url           TEXT NOT NULL,
		title         TEXT NOT NULL DEFAULT '',
		etag          TEXT NOT NULL DEFAULT '',
		last_modified TEXT NOT NULL DEFAULT '',
		content_type  TEXT NOT NULL DEFAULT 'unknown',
		depth         INTEGER NOT NULL DEFAULT 0,
		created_at    TEXT NOT NULL,
		updated_at    TEXT NOT NULL,
		UNIQUE(version_id, url)
	);

	CREATE TABLE IF NOT EXISTS chunks (
		id         TEXT PRIMARY KEY,
		page_id    TEXT NOT NULL REFERENCES pages(id) ON DELETE CASCADE,
		content    TEXT NOT NULL,
		metadata   TEXT NOT NULL DEFAULT '{}',
		sort_order INTEGER NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_page ON chunks(page_id, sort_order);

	CREATE TABLE IF NOT EXISTS embedding_config (
		id         INTEGER PRIMARY KEY CHECK (id = 1),
		provider   TEXT NOT NULL,
		model      TEXT NOT NULL,
		dimensions INTEGER NOT NULL,
		spec       TEXT NOT NULL
	);

	INSERT OR IGNORE INTO schema_version (version) VALUES (1);
	`
	_, err := c.db.Exec(schema)
	return err
}

func (c *SQLiteCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	_, _ = c.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
	return c.db.Close()
}

// normalizeName trims and lower-cases a library/version name for lookup.
func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// isUnversioned reports whether a requested version name denotes the
// unversioned variant ("", whitespace, or "latest").
func isUnversioned(version string) bool {
	n := normalizeName(version)
	return n == "" || n == "latest"
}

func newID(prefix string) string {
	return fmt.Sprintf("%s_%d_%d", prefix, time.Now().UnixNano(), randSuffix())
}

var idCounter uint64

func randSuffix() uint64 {
	idCounter++
	return idCounter
}

func (c *SQLiteCatalog) ResolveVersion(ctx context.Context, library, version string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	libName := normalizeName(library)
	if libName == "" {
		return "", docerrors.Validation("library name must not be empty")
	}
	verName := ""
	if !isUnversioned(version) {
		verName = normalizeName(version)
	}

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var libID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM libraries WHERE name = ?`, libName).Scan(&libID)
	if err == sql.ErrNoRows {
		libID = newID("lib")
		if _, err := tx.ExecContext(ctx, `INSERT INTO libraries(id, name) VALUES (?, ?)`, libID, libName); err != nil {
			return "", fmt.Errorf("insert library: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("lookup library: %w", err)
	}

	var verID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM versions WHERE library_id = ? AND name = ?`, libID, verName).Scan(&verID)
	if err == sql.ErrNoRows {
		verID = newID("ver")
		now := time.Now().UTC().Format(time.RFC3339Nano)
		_, err = tx.ExecContext(ctx, `
			INSERT INTO versions(id, library_id, name, status, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			verID, libID, verName, string(StatusNotIndexed), now)
		if err != nil {
			return "", fmt.Errorf("insert version: %w", err)
		}
	} else if err != nil {
		return "", fmt.Errorf("lookup version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	return verID, nil
}

func (c *SQLiteCatalog) GetLibraryByName(ctx context.Context, name string) (*Library, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var lib Library
	err := c.db.QueryRowContext(ctx, `SELECT id, name FROM libraries WHERE name = ?`, normalizeName(name)).
		Scan(&lib.ID, &lib.Name)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &lib, true, nil
}

func (c *SQLiteCatalog) ListLibraries(ctx context.Context) ([]*Library, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, err := c.db.QueryContext(ctx, `SELECT id, name FROM libraries ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Library
	for rows.Next() {
		var l Library
		if err := rows.Scan(&l.ID, &l.Name); err != nil {
			return nil, err
		}
		out = append(out, &l)
	}
	return out, rows.Err()
}

func scanVersion(row interface{ Scan(...any) error }) (*Version, error) {
	var v Version
	var optsJSON string
	var startedAt sql.NullString
	var updatedAt string
	err := row.Scan(&v.ID, &v.LibraryID, &v.Name, &v.Status, &v.ProgressPages, &v.ProgressMaxPages,
		&v.SourceURL, &optsJSON, &v.ErrorMessage, &startedAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(optsJSON), &v.ScraperOptions)
	if startedAt.Valid && startedAt.String != "" {
		t, _ := time.Parse(time.RFC3339Nano, startedAt.String)
		v.StartedAt = &t
	}
	v.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &v, nil
}

const versionColumns = `id, library_id, name, status, progress_pages, progress_max_pages, source_url, scraper_options, error_message, started_at, updated_at`

func (c *SQLiteCatalog) ListVersions(ctx context.Context, libraryID string) ([]*Version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, err := c.db.QueryContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE library_id = ?`, libraryID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.SliceStable(out, func(i, j int) bool { return compareVersionNames(out[i].Name, out[j].Name) < 0 })
	return out, nil
}

// compareVersionNames orders two version names for a descending "list
// versions" listing (§3): the unversioned variant ("") sorts first; among
// the rest, names that parse as valid semver compare by semver precedence
// (highest first), ranked ahead of any name that doesn't parse as semver;
// two non-semver names fall back to a descending lexical compare. Returns a
// value usable as a less-than comparator.
func compareVersionNames(a, b string) int {
	if a == b {
		return 0
	}
	if a == "" {
		return -1
	}
	if b == "" {
		return 1
	}
	va, vb := asSemver(a), asSemver(b)
	aValid, bValid := semver.IsValid(va), semver.IsValid(vb)
	switch {
	case aValid && bValid:
		return -semver.Compare(va, vb)
	case aValid && !bValid:
		return -1
	case !aValid && bValid:
		return 1
	default:
		switch {
		case a > b:
			return -1
		case a < b:
			return 1
		default:
			return 0
		}
	}
}

// asSemver normalizes a version name to the "v"-prefixed form golang.org/x/mod/semver
// requires, without otherwise altering it.
func asSemver(name string) string {
	if strings.HasPrefix(name, "v") {
		return name
	}
	return "v" + name
}

func (c *SQLiteCatalog) GetVersion(ctx context.Context, versionID string) (*Version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row := c.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE id = ?`, versionID)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, docerrors.NotFound(fmt.Sprintf("version %s not found", versionID))
	}
	if err != nil {
		return nil, err
	}
	return v, nil
}

func (c *SQLiteCatalog) GetVersionByName(ctx context.Context, libraryID, version string) (*Version, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	verName := ""
	if !isUnversioned(version) {
		verName = normalizeName(version)
	}
	row := c.db.QueryRowContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE library_id = ? AND name = ?`, libraryID, verName)
	v, err := scanVersion(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return v, true, nil
}

func (c *SQLiteCatalog) UpdateVersionStatus(ctx context.Context, versionID string, status VersionStatus, errMsg string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	var current string
	if err := c.db.QueryRowContext(ctx, `SELECT status FROM versions WHERE id = ?`, versionID).Scan(&current); err != nil {
		if err == sql.ErrNoRows {
			return docerrors.NotFound(fmt.Sprintf("version %s not found", versionID))
		}
		return err
	}
	from := VersionStatus(current)
	if !IsLegalTransition(from, status) {
		return docerrors.Validation(fmt.Sprintf("illegal version status transition %s -> %s", from, status))
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	var startedAtSet string
	if status == StatusRunning {
		startedAtSet = `, started_at = ?`
	}
	query := `UPDATE versions SET status = ?, error_message = ?, updated_at = ?` + startedAtSet + ` WHERE id = ?`
	args := []any{string(status), errMsg, now}
	if startedAtSet != "" {
		args = append(args, now)
	}
	args = append(args, versionID)
	_, err := c.db.ExecContext(ctx, query, args...)
	return err
}

func (c *SQLiteCatalog) UpdateVersionProgress(ctx context.Context, versionID string, pages, maxPages int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err := c.db.ExecContext(ctx,
		`UPDATE versions SET progress_pages = ?, progress_max_pages = ?, updated_at = ? WHERE id = ?`,
		pages, maxPages, now, versionID)
	return err
}

func (c *SQLiteCatalog) SetScraperOptions(ctx context.Context, versionID, sourceURL string, opts ScraperOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.Marshal(opts)
	if err != nil {
		return err
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = c.db.ExecContext(ctx,
		`UPDATE versions SET source_url = ?, scraper_options = ?, updated_at = ? WHERE id = ?`,
		sourceURL, string(b), now, versionID)
	return err
}

func (c *SQLiteCatalog) GetVersionsByStatus(ctx context.Context, statuses ...VersionStatus) ([]*Version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(statuses) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(statuses))
	args := make([]any, len(statuses))
	for i, s := range statuses {
		placeholders[i] = "?"
		args[i] = string(s)
	}
	query := `SELECT ` + versionColumns + ` FROM versions WHERE status IN (` + strings.Join(placeholders, ",") + `) ORDER BY updated_at`
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) FindVersionsBySourceURL(ctx context.Context, url string) ([]*Version, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, err := c.db.QueryContext(ctx, `SELECT `+versionColumns+` FROM versions WHERE source_url = ?`, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Version
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) RemoveVersion(ctx context.Context, versionID string, cascade bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	var libID string
	if err := tx.QueryRowContext(ctx, `SELECT library_id FROM versions WHERE id = ?`, versionID).Scan(&libID); err != nil {
		if err == sql.ErrNoRows {
			return docerrors.NotFound(fmt.Sprintf("version %s not found", versionID))
		}
		return err
	}

	if cascade {
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE page_id IN (SELECT id FROM pages WHERE version_id = ?)`, versionID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM pages WHERE version_id = ?`, versionID); err != nil {
			return err
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM versions WHERE id = ?`, versionID); err != nil {
		return err
	}

	var remaining int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM versions WHERE library_id = ?`, libID).Scan(&remaining); err != nil {
		return err
	}
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM libraries WHERE id = ?`, libID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// AddDocuments atomically replaces a page and its chunks.
func (c *SQLiteCatalog) AddDocuments(ctx context.Context, versionID string, depth int, result *ScrapeResult, etag, lastModified string) (*Page, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	nowStr := now.Format(time.RFC3339Nano)

	var pageID string
	var createdAtStr string
	err = tx.QueryRowContext(ctx, `SELECT id, created_at FROM pages WHERE version_id = ? AND url = ?`, versionID, result.URL).
		Scan(&pageID, &createdAtStr)
	switch {
	case err == sql.ErrNoRows:
		pageID = newID("page")
		createdAtStr = nowStr
		_, err = tx.ExecContext(ctx, `
			INSERT INTO pages(id, version_id, url, title, etag, last_modified, content_type, depth, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			pageID, versionID, result.URL, result.Title, etag, lastModified, string(result.ContentType), depth, createdAtStr, nowStr)
		if err != nil {
			return nil, fmt.Errorf("insert page: %w", err)
		}
	case err != nil:
		return nil, fmt.Errorf("lookup page: %w", err)
	default:
		_, err = tx.ExecContext(ctx, `
			UPDATE pages SET title = ?, etag = ?, last_modified = ?, content_type = ?, depth = ?, updated_at = ?
			WHERE id = ?`,
			result.Title, etag, lastModified, string(result.ContentType), depth, nowStr, pageID)
		if err != nil {
			return nil, fmt.Errorf("update page: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM chunks WHERE page_id = ?`, pageID); err != nil {
			return nil, fmt.Errorf("clear old chunks: %w", err)
		}
	}

	insertChunk, err := tx.PrepareContext(ctx, `
		INSERT INTO chunks(id, page_id, content, metadata, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return nil, err
	}
	defer insertChunk.Close()

	for i, ch := range result.Chunks {
		ch.PageID = pageID
		ch.SortOrder = i
		ch.CreatedAt = now
		metaJSON, err := json.Marshal(ch.Metadata)
		if err != nil {
			return nil, err
		}
		if _, err := insertChunk.ExecContext(ctx, ch.ID, pageID, ch.Content, string(metaJSON), i, nowStr); err != nil {
			return nil, fmt.Errorf("insert chunk: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	createdAt, _ := time.Parse(time.RFC3339Nano, createdAtStr)
	return &Page{
		ID: pageID, VersionID: versionID, URL: result.URL, Title: result.Title,
		ETag: etag, LastModified: lastModified, ContentType: result.ContentType,
		Depth: depth, CreatedAt: createdAt, UpdatedAt: now,
	}, nil
}

func scanPage(row interface{ Scan(...any) error }) (*Page, error) {
	var p Page
	var createdAt, updatedAt string
	err := row.Scan(&p.ID, &p.VersionID, &p.URL, &p.Title, &p.ETag, &p.LastModified, &p.ContentType, &p.Depth, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

const pageColumns = `id, version_id, url, title, etag, last_modified, content_type, depth, created_at, updated_at`

func (c *SQLiteCatalog) GetPageByURL(ctx context.Context, versionID, url string) (*Page, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row := c.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE version_id = ? AND url = ?`, versionID, url)
	p, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (c *SQLiteCatalog) GetPageByID(ctx context.Context, pageID string) (*Page, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	row := c.db.QueryRowContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE id = ?`, pageID)
	p, err := scanPage(row)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return p, true, nil
}

func (c *SQLiteCatalog) GetPagesByVersionID(ctx context.Context, versionID string) ([]*Page, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, err := c.db.QueryContext(ctx, `SELECT `+pageColumns+` FROM pages WHERE version_id = ? ORDER BY url`, versionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Page
	for rows.Next() {
		p, err := scanPage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *SQLiteCatalog) DeletePage(ctx context.Context, pageID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, pageID)
	return err
}

func (c *SQLiteCatalog) DeletePages(ctx context.Context, versionID string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	res, err := c.db.ExecContext(ctx, `DELETE FROM pages WHERE version_id = ?`, versionID)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (c *SQLiteCatalog) RenamePageURL(ctx context.Context, pageID, newURL string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := c.db.ExecContext(ctx, `UPDATE pages SET url = ?, updated_at = ? WHERE id = ?`, newURL, time.Now().UTC().Format(time.RFC3339Nano), pageID)
	return err
}

func scanChunk(row interface{ Scan(...any) error }) (*Chunk, error) {
	var ch Chunk
	var metaJSON, createdAt string
	err := row.Scan(&ch.ID, &ch.PageID, &ch.Content, &metaJSON, &ch.SortOrder, &createdAt)
	if err != nil {
		return nil, err
	}
	_ = json.Unmarshal([]byte(metaJSON), &ch.Metadata)
	ch.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &ch, nil
}

const chunkColumns = `id, page_id, content, metadata, sort_order, created_at`

func (c *SQLiteCatalog) FindChunksByIDs(ctx context.Context, ids []string) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, len(ids))
	for i, id := range ids {
		placeholders[i] = "?"
		args[i] = id
	}
	query := `SELECT ` + chunkColumns + ` FROM chunks WHERE id IN (` + strings.Join(placeholders, ",") + `)`
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	byID := make(map[string]*Chunk, len(ids))
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		byID[ch.ID] = ch
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	out := make([]*Chunk, 0, len(ids))
	for _, id := range ids {
		if ch, ok := byID[id]; ok {
			out = append(out, ch)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (c *SQLiteCatalog) FindChunksByURL(ctx context.Context, versionID, url string) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rows, err := c.db.QueryContext(ctx, `
		SELECT ch.id, ch.page_id, ch.content, ch.metadata, ch.sort_order, ch.created_at
		FROM chunks ch JOIN pages p ON p.id = ch.page_id
		WHERE p.version_id = ? AND p.url = ?
		ORDER BY ch.sort_order`, versionID, url)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Chunk
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ch)
	}
	return out, rows.Err()
}

// pageChunks loads every chunk of the page containing chunkID, sorted by
// sort_order. Tree-traversal helpers operate on this in-memory slice rather
// than issuing per-ancestor SQL, since a page's chunk set is small.
func (c *SQLiteCatalog) pageChunks(ctx context.Context, chunkID string) ([]*Chunk, int, error) {
	var pageID string
	if err := c.db.QueryRowContext(ctx, `SELECT page_id FROM chunks WHERE id = ?`, chunkID).Scan(&pageID); err != nil {
		if err == sql.ErrNoRows {
			return nil, -1, nil
		}
		return nil, -1, err
	}
	rows, err := c.db.QueryContext(ctx, `SELECT `+chunkColumns+` FROM chunks WHERE page_id = ? ORDER BY sort_order`, pageID)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()
	var all []*Chunk
	idx := -1
	for rows.Next() {
		ch, err := scanChunk(rows)
		if err != nil {
			return nil, -1, err
		}
		if ch.ID == chunkID {
			idx = len(all)
		}
		all = append(all, ch)
	}
	return all, idx, rows.Err()
}

// isPrefixOf reports whether a is a strict prefix of b.
func isPrefixOf(a, b []string) bool {
	if len(a) >= len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *SQLiteCatalog) FindParentChunk(ctx context.Context, chunkID string) (*Chunk, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all, idx, err := c.pageChunks(ctx, chunkID)
	if err != nil || idx < 0 {
		return nil, false, err
	}
	target := all[idx].Metadata.Path
	if len(target) == 0 {
		return nil, false, nil
	}
	parentPath := target[:len(target)-1]
	for i := idx - 1; i >= 0; i-- {
		p := all[i].Metadata.Path
		if len(p) == len(parentPath) {
			match := true
			for j := range p {
				if p[j] != parentPath[j] {
					match = false
					break
				}
			}
			if match {
				return all[i], true, nil
			}
		}
		if len(p) < len(parentPath) && !isPrefixOf(p, target) {
			break
		}
	}
	return nil, false, nil
}

func siblingPath(ch *Chunk) []string {
	p := ch.Metadata.Path
	if len(p) == 0 {
		return nil
	}
	return p[:len(p)-1]
}

func samePath(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func (c *SQLiteCatalog) FindPrecedingSiblingChunks(ctx context.Context, chunkID string, limit int) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all, idx, err := c.pageChunks(ctx, chunkID)
	if err != nil || idx < 0 {
		return nil, err
	}
	parent := siblingPath(all[idx])
	var out []*Chunk
	for i := idx - 1; i >= 0 && len(out) < limit; i-- {
		if samePath(siblingPath(all[i]), parent) {
			out = append([]*Chunk{all[i]}, out...)
		}
	}
	return out, nil
}

func (c *SQLiteCatalog) FindSubsequentSiblingChunks(ctx context.Context, chunkID string, limit int) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all, idx, err := c.pageChunks(ctx, chunkID)
	if err != nil || idx < 0 {
		return nil, err
	}
	parent := siblingPath(all[idx])
	var out []*Chunk
	for i := idx + 1; i < len(all) && len(out) < limit; i++ {
		if samePath(siblingPath(all[i]), parent) {
			out = append(out, all[i])
		}
	}
	return out, nil
}

func (c *SQLiteCatalog) FindChildChunks(ctx context.Context, chunkID string, limit int) ([]*Chunk, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	all, idx, err := c.pageChunks(ctx, chunkID)
	if err != nil || idx < 0 {
		return nil, err
	}
	target := all[idx].Metadata.Path
	var out []*Chunk
	for i := idx + 1; i < len(all) && len(out) < limit; i++ {
		p := all[i].Metadata.Path
		if len(p) == len(target)+1 && isPrefixOf(target, p) {
			out = append(out, all[i])
		} else if len(p) <= len(target) {
			break
		}
	}
	return out, nil
}

func (c *SQLiteCatalog) GetEmbeddingConfig(ctx context.Context) (*EmbeddingConfig, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var cfg EmbeddingConfig
	err := c.db.QueryRowContext(ctx, `SELECT provider, model, dimensions, spec FROM embedding_config WHERE id = 1`).
		Scan(&cfg.Provider, &cfg.Model, &cfg.Dimensions, &cfg.Spec)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return &cfg, true, nil
}

func (c *SQLiteCatalog) SetEmbeddingConfig(ctx context.Context, cfg EmbeddingConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var existingDim int
	err := c.db.QueryRowContext(ctx, `SELECT dimensions FROM embedding_config WHERE id = 1`).Scan(&existingDim)
	if err == nil {
		if existingDim != cfg.Dimensions {
			return docerrors.StoreIntegrity(
				fmt.Sprintf("embedding dimensions changed from %d to %d; reindex from scratch required", existingDim, cfg.Dimensions), nil)
		}
		_, err = c.db.ExecContext(ctx, `UPDATE embedding_config SET provider = ?, model = ?, dimensions = ?, spec = ? WHERE id = 1`,
			cfg.Provider, cfg.Model, cfg.Dimensions, cfg.Spec)
		return err
	}
	if err != sql.ErrNoRows {
		return err
	}
	_, err = c.db.ExecContext(ctx, `INSERT INTO embedding_config(id, provider, model, dimensions, spec) VALUES (1, ?, ?, ?, ?)`,
		cfg.Provider, cfg.Model, cfg.Dimensions, cfg.Spec)
	return err
}
