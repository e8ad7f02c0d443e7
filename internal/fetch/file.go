package fetch

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	docerrors "github.com/Aman-CERP/docindex/internal/errors"
	"github.com/Aman-CERP/docindex/internal/scanner"
)

// FileFetcher resolves file:// URLs, either a single file or a directory
// root enumerated into pseudo-pages (§4.2). A fetched directory root is
// added to an fsnotify watcher; this package does not read the watcher's
// events.
type FileFetcher struct {
	watcher *fsnotify.Watcher
	watched map[string]bool
}

// NewFileFetcher creates a FileFetcher. The returned fetcher lazily starts
// an fsnotify watcher the first time a directory root is fetched.
func NewFileFetcher() *FileFetcher {
	return &FileFetcher{watched: make(map[string]bool)}
}

// CanFetch reports whether rawURL uses the file:// scheme or is a bare
// filesystem path.
func (f *FileFetcher) CanFetch(rawURL string) bool {
	if strings.HasPrefix(rawURL, "file://") {
		return true
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return true // bare path, not a URL at all
	}
	return u.Scheme == "" || u.Scheme == "file"
}

// Fetch reads a single file, or if rawURL names a directory, returns a
// Result with MimeType "inode/directory" and no Content; the files beneath
// a directory are listed by EnumerateDir, not by Fetch.
func (f *FileFetcher) Fetch(_ context.Context, rawURL string, opts Options) (*Result, error) {
	path := pathFromFileURL(rawURL)

	info, err := os.Lstat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Result{URL: rawURL, StatusCode: 404}, nil
		}
		return nil, docerrors.Wrap(docerrors.ErrCodeFilePermission, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, docerrors.New(docerrors.ErrCodeFilePermission, fmt.Sprintf("refusing to follow symlink %s", path), nil)
	}

	modTime := info.ModTime().UTC().Format(time.RFC1123)
	if opts.IfModifiedSince != "" && modTime == opts.IfModifiedSince {
		return &Result{URL: rawURL, StatusCode: 304, NotModified: true, LastModified: modTime}, nil
	}

	if info.IsDir() {
		f.watchDir(path)
		return &Result{URL: rawURL, MimeType: "inode/directory", StatusCode: 200, LastModified: modTime}, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return nil, docerrors.Wrap(docerrors.ErrCodeFileNotFound, err)
	}

	return &Result{
		URL:          rawURL,
		Content:      content,
		MimeType:     mimeFromExt(path),
		LastModified: modTime,
		StatusCode:   200,
	}, nil
}

// EnumerateDir walks a directory root using the gitignore-aware scanner,
// returning file:// URLs for every indexable file beneath it (§4.2.1).
func (f *FileFetcher) EnumerateDir(ctx context.Context, root string, excludePatterns []string) ([]string, error) {
	s, err := scanner.New()
	if err != nil {
		return nil, err
	}
	results, err := s.Scan(ctx, &scanner.ScanOptions{
		RootDir:          root,
		ExcludePatterns:  excludePatterns,
		RespectGitignore: true,
		Workers:          runtime.NumCPU(),
	})
	if err != nil {
		return nil, err
	}

	var urls []string
	for r := range results {
		if r.Error != nil || r.File == nil {
			continue
		}
		urls = append(urls, "file://"+filepath.Join(root, r.File.Path))
	}
	return urls, nil
}

func (f *FileFetcher) watchDir(path string) {
	if f.watched[path] {
		return
	}
	if f.watcher == nil {
		w, err := fsnotify.NewWatcher()
		if err != nil {
			return
		}
		f.watcher = w
	}
	if err := f.watcher.Add(path); err == nil {
		f.watched[path] = true
	}
}

// Close stops the fsnotify watcher, if one was started.
func (f *FileFetcher) Close() error {
	if f.watcher != nil {
		return f.watcher.Close()
	}
	return nil
}

func pathFromFileURL(rawURL string) string {
	if strings.HasPrefix(rawURL, "file://") {
		if u, err := url.Parse(rawURL); err == nil {
			return u.Path
		}
		return strings.TrimPrefix(rawURL, "file://")
	}
	return rawURL
}

func mimeFromExt(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "text/html"
	case ".md", ".markdown":
		return "text/markdown"
	case ".json":
		return "application/json"
	case ".yaml", ".yml":
		return "application/yaml"
	case ".txt":
		return "text/plain"
	default:
		return "text/plain"
	}
}

var _ Fetcher = (*FileFetcher)(nil)
