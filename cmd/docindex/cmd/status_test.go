package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/docindex/internal/config"
	"github.com/Aman-CERP/docindex/internal/store"
	"github.com/Aman-CERP/docindex/internal/ui"
)

func TestStatusCmd_NoCatalog(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("DOCINDEX_STORE_PATH", tmpDir)

	cmd := newStatusCmd()
	buf := &bytes.Buffer{}
	cmd.SetOut(buf)
	cmd.SetErr(buf)

	err := cmd.Execute()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "no catalog found")
}

func TestCollectStatus_WithLibrary(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Store.Path = tmpDir

	catalogPath := filepath.Join(tmpDir, "catalog.db")
	catalog, err := store.NewSQLiteCatalog(catalogPath)
	require.NoError(t, err)

	ctx := context.Background()
	_, err = catalog.ResolveVersion(ctx, "react", "")
	require.NoError(t, err)
	require.NoError(t, catalog.Close())

	info, err := collectStatus(ctx, cfg)

	require.NoError(t, err)
	assert.Equal(t, 1, info.TotalLibraries)
	assert.Equal(t, 1, info.TotalVersions)
	assert.NotZero(t, info.MetadataSize)
}

func TestCollectStatus_EmptyCatalog(t *testing.T) {
	tmpDir := t.TempDir()
	cfg := config.NewConfig()
	cfg.Store.Path = tmpDir

	catalogPath := filepath.Join(tmpDir, "catalog.db")
	catalog, err := store.NewSQLiteCatalog(catalogPath)
	require.NoError(t, err)
	require.NoError(t, catalog.Close())

	info, err := collectStatus(context.Background(), cfg)

	require.NoError(t, err)
	assert.Equal(t, 0, info.TotalLibraries)
	assert.Equal(t, 0, info.TotalVersions)
}

func TestStatusRenderer_Output(t *testing.T) {
	info := ui.StatusInfo{
		StoreName:      "my-store",
		TotalLibraries: 10,
		TotalVersions:  50,
		MetadataSize:   1024 * 1024,
		EmbedderType:   "openai",
		EmbedderStatus: "ready",
		EmbedderModel:  "text-embedding-3-small",
	}

	buf := &bytes.Buffer{}
	renderer := ui.NewStatusRenderer(buf, true) // noColor
	err := renderer.Render(info)

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, "my-store")
	assert.Contains(t, output, "10")
	assert.Contains(t, output, "50")
	assert.Contains(t, output, "openai")
	assert.Contains(t, output, "ready")
}

func TestStatusRenderer_JSON(t *testing.T) {
	info := ui.StatusInfo{
		StoreName:      "json-store",
		TotalLibraries: 5,
		TotalVersions:  25,
	}

	buf := &bytes.Buffer{}
	renderer := ui.NewStatusRenderer(buf, false)
	err := renderer.RenderJSON(info)

	require.NoError(t, err)
	output := buf.String()
	assert.Contains(t, output, `"store_name"`)
	assert.Contains(t, output, `"json-store"`)
	assert.Contains(t, output, `"total_libraries"`)
}

func TestGetFileSize_NonExistent(t *testing.T) {
	size := getFileSize("/nonexistent/file.txt")
	assert.Equal(t, int64(0), size)
}

func TestGetFileSize_Exists(t *testing.T) {
	tmpDir := t.TempDir()
	filePath := filepath.Join(tmpDir, "test.txt")
	content := []byte("hello world")
	require.NoError(t, os.WriteFile(filePath, content, 0644))

	size := getFileSize(filePath)

	assert.Equal(t, int64(len(content)), size)
}

func TestGetDirSize(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "a.txt"), []byte("aaaa"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, "b.txt"), []byte("bb"), 0644))

	size := getDirSize(tmpDir)

	assert.Equal(t, int64(6), size)
}

func TestGetDirSize_NonExistent(t *testing.T) {
	size := getDirSize("/nonexistent/dir")
	assert.Equal(t, int64(0), size)
}
