package txlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touchFile(t *testing.T, dir, name string, size int) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), make([]byte, size), 0644))
}

func TestDiscoverFiles(t *testing.T) {
	logDir := t.TempDir()
	archiveDir := filepath.Join(logDir, "archive")
	require.NoError(t, os.MkdirAll(archiveDir, 0755))

	touchFile(t, logDir, "00000002.wal", 100)
	touchFile(t, logDir, "00000003.wal", 200)
	touchFile(t, archiveDir, "00000001.wal", 50)
	// A log number present in both directories mid-rotation should surface
	// once, as Live.
	touchFile(t, archiveDir, "00000003.wal", 200)
	touchFile(t, logDir, "not-a-segment.txt", 10)

	files, err := DiscoverFiles(logDir, archiveDir)
	require.NoError(t, err)
	require.Len(t, files, 3)

	assert.Equal(t, uint64(1), files[0].LogNumber)
	assert.Equal(t, Archived, files[0].Kind)
	assert.Equal(t, uint64(2), files[1].LogNumber)
	assert.Equal(t, Live, files[1].Kind)
	assert.Equal(t, uint64(3), files[2].LogNumber)
	assert.Equal(t, Live, files[2].Kind, "a log number present in both directories is reported as Live")
}

func TestDiscoverFiles_MissingDirectories(t *testing.T) {
	base := t.TempDir()
	files, err := DiscoverFiles(filepath.Join(base, "nope"), filepath.Join(base, "also-nope"))
	require.NoError(t, err)
	assert.Empty(t, files)
}
