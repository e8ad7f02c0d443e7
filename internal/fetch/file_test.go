package fetch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFileFetcher_ReadsFileContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("# Title\n\nbody"), 0644))

	f := NewFileFetcher()
	defer f.Close()

	res, err := f.Fetch(context.Background(), "file://"+path, DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 200, res.StatusCode)
	require.Equal(t, "text/markdown", res.MimeType)
	require.Contains(t, string(res.Content), "body")
}

func TestFileFetcher_MissingFileReturns404(t *testing.T) {
	f := NewFileFetcher()
	defer f.Close()

	res, err := f.Fetch(context.Background(), "file:///nonexistent/path/does-not-exist.md", DefaultOptions())
	require.NoError(t, err)
	require.Equal(t, 404, res.StatusCode)
}

func TestFileFetcher_EnumerateDirFindsFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.md"), []byte("# A"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.md"), []byte("# B"), 0644))

	f := NewFileFetcher()
	defer f.Close()

	urls, err := f.EnumerateDir(context.Background(), dir, nil)
	require.NoError(t, err)
	require.Len(t, urls, 2)
}
