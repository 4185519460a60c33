package startup

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/freecut/exportd/internal/config"
	"github.com/freecut/exportd/internal/observability"
)

func testLogger() *slog.Logger {
	return observability.NewLogger(config.LoggingConfig{Level: "error"})
}

func TestCleanupOrphanedExportDirs(t *testing.T) {
	baseDir := t.TempDir()

	oldDir := filepath.Join(baseDir, "export_01old")
	require.NoError(t, os.MkdirAll(oldDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(oldDir, "video_x.mp4"), []byte("x"), 0o644))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(oldDir, past, past))

	freshDir := filepath.Join(baseDir, "export_01new")
	require.NoError(t, os.MkdirAll(freshDir, 0o755))

	otherDir := filepath.Join(baseDir, "unrelated")
	require.NoError(t, os.MkdirAll(otherDir, 0o755))
	require.NoError(t, os.Chtimes(otherDir, past, past))

	removed, err := CleanupOrphanedExportDirs(testLogger(), baseDir, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	assert.NoDirExists(t, oldDir)
	assert.DirExists(t, freshDir)
	assert.DirExists(t, otherDir)
}

func TestCleanupMissingBaseDir(t *testing.T) {
	removed, err := CleanupOrphanedExportDirs(testLogger(), filepath.Join(t.TempDir(), "missing"), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, removed)
}
