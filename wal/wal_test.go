package wal

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexusbase/core"
)

func testWALOptions(t *testing.T, dir string) Options {
	t.Helper()
	return Options{
		Dir:            dir,
		SyncMode:       SyncDisabled,
		MaxSegmentSize: 64 * 1024,
		Logger:         slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testEntries(count int) []core.WALEntry {
	entries := make([]core.WALEntry, count)
	for i := range entries {
		entries[i] = core.WALEntry{
			EntryType: core.EntryTypePut,
			Key:       []byte(fmt.Sprintf("key-%d", i)),
			Value:     []byte(fmt.Sprintf("value-%d", i)),
		}
	}
	return entries
}

func TestOpen_New(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)

	w, recovered, err := Open(opts)
	require.NoError(t, err)
	require.NotNil(t, w)
	defer w.Close()

	assert.Empty(t, recovered, "a new WAL should have no recovered batches")
	assert.Equal(t, uint64(1), w.ActiveSegmentIndex())
	assert.Equal(t, uint64(1), w.NextSequence())
}

func TestWAL_AppendAndRecover(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)

	w, _, err := Open(opts)
	require.NoError(t, err)

	batch1, err := w.AppendBatch(testEntries(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(1), batch1.StartSequence)

	batch2, err := w.Append(core.WALEntry{EntryType: core.EntryTypePut, Key: []byte("single"), Value: []byte("entry")})
	require.NoError(t, err)
	assert.Equal(t, uint64(6), batch2.StartSequence)

	require.NoError(t, w.Close())

	w2, recovered, err := Open(opts)
	require.NoError(t, err)
	defer w2.Close()

	require.Len(t, recovered, 2)
	assert.Equal(t, uint64(1), recovered[0].StartSequence)
	assert.Len(t, recovered[0].Entries, 5)
	assert.Equal(t, uint64(6), recovered[1].StartSequence)
	assert.Equal(t, uint64(7), w2.NextSequence())
}

func TestWAL_RotationOnMultipleSmallWrites(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)
	opts.MaxSegmentSize = 256

	w, _, err := Open(opts)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), w.ActiveSegmentIndex())

	var totalBatches int
	for i := 0; i < 10; i++ {
		_, err := w.Append(core.WALEntry{
			EntryType: core.EntryTypePut,
			Key:       []byte(fmt.Sprintf("key-for-rotation-%d", i)),
			Value:     []byte("a somewhat long value to ensure we fill the segment"),
		})
		require.NoError(t, err)
		totalBatches++
	}
	require.NoError(t, w.Sync())

	assert.Greater(t, w.ActiveSegmentIndex(), uint64(1), "WAL should have rotated to a new segment")
	rotatedIndex := w.ActiveSegmentIndex()

	_, err = w.Append(core.WALEntry{EntryType: core.EntryTypePut, Key: []byte("final"), Value: []byte("entry")})
	require.NoError(t, err)
	totalBatches++
	require.NoError(t, w.Sync())
	assert.Equal(t, rotatedIndex, w.ActiveSegmentIndex())

	require.NoError(t, w.Close())

	// Without archiving, rotated-out segments stay in the live directory and
	// remain part of crash recovery.
	w2, recovered, err := Open(opts)
	require.NoError(t, err)
	defer w2.Close()
	assert.Len(t, recovered, totalBatches, "should recover all batches across rotated segments")
}

// Rotated segments are archived out of the live directory once ArchiveOnRotate
// is set, since by then the storage engine is expected to have already
// applied them; only iterators still need them.
func TestWAL_ArchiveOnRotate(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)
	opts.MaxSegmentSize = 256
	opts.ArchiveOnRotate = true

	w, _, err := Open(opts)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 10; i++ {
		_, err := w.Append(core.WALEntry{
			EntryType: core.EntryTypePut,
			Key:       []byte(fmt.Sprintf("key-for-rotation-%d", i)),
			Value:     []byte("a somewhat long value to ensure we fill the segment"),
		})
		require.NoError(t, err)
	}
	require.NoError(t, w.Sync())
	require.Greater(t, w.ActiveSegmentIndex(), uint64(1))

	_, err = os.Stat(filepath.Join(w.Path(), core.FormatSegmentFileName(1)))
	assert.True(t, os.IsNotExist(err), "the first segment should no longer be in the live directory")
	_, err = os.Stat(filepath.Join(w.ArchivePath(), core.FormatSegmentFileName(1)))
	assert.NoError(t, err, "the first segment should have been archived on rotation")
}

// Archived segments are recompressed in place once ArchiveCompression names
// a codec, and remain fully readable afterwards.
func TestWAL_ArchiveCompression(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)
	opts.MaxSegmentSize = 256
	opts.ArchiveOnRotate = true
	opts.ArchiveCompression = core.CompressionSnappy

	w, _, err := Open(opts)
	require.NoError(t, err)
	defer w.Close()

	var wroteKeys []string
	for i := 0; i < 10; i++ {
		key := fmt.Sprintf("key-for-rotation-%d", i)
		_, err := w.Append(core.WALEntry{
			EntryType: core.EntryTypePut,
			Key:       []byte(key),
			Value:     []byte("a somewhat long value to ensure we fill the segment"),
		})
		require.NoError(t, err)
		wroteKeys = append(wroteKeys, key)
	}
	require.NoError(t, w.Sync())
	require.Greater(t, w.ActiveSegmentIndex(), uint64(1))

	archivedPath := filepath.Join(w.ArchivePath(), core.FormatSegmentFileName(1))
	sr, err := OpenSegmentForRead(archivedPath, true)
	require.NoError(t, err)
	defer sr.Close()

	var gotKeys []string
	for {
		record, err := sr.ReadRecord()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		batch, err := core.DecodeBatch(record)
		require.NoError(t, err)
		for _, entry := range batch.Entries {
			gotKeys = append(gotKeys, string(entry.Key))
		}
	}
	assert.Equal(t, wroteKeys[:len(gotKeys)], gotKeys)
}

func TestWAL_Purge(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)
	opts.MaxSegmentSize = 256
	opts.ArchiveOnRotate = true

	w, _, err := Open(opts)
	require.NoError(t, err)
	defer w.Close()

	for i := 0; i < 10; i++ {
		_, err := w.Append(core.WALEntry{
			EntryType: core.EntryTypePut,
			Key:       []byte(fmt.Sprintf("key-%d", i)),
			Value:     []byte("a somewhat long value to ensure we fill the segment"),
		})
		require.NoError(t, err)
	}
	require.NoError(t, w.Sync())
	require.Greater(t, w.ActiveSegmentIndex(), uint64(1))

	require.NoError(t, w.Purge(1))

	_, err = os.Stat(filepath.Join(w.Path(), core.FormatSegmentFileName(1)))
	assert.True(t, os.IsNotExist(err), "purged live segment should be removed")
	_, err = os.Stat(filepath.Join(w.ArchivePath(), core.FormatSegmentFileName(1)))
	assert.True(t, os.IsNotExist(err), "purged archived segment should be removed")
}

func TestWAL_Close(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)
	w, _, err := Open(opts)
	require.NoError(t, err)

	_, err = w.Append(core.WALEntry{EntryType: core.EntryTypePut, Key: []byte("a")})
	require.NoError(t, err)

	require.NoError(t, w.Close())
	require.NotPanics(t, func() {
		assert.NoError(t, w.Close())
	})
}

func TestWAL_InjectedAppendError(t *testing.T) {
	tempDir := t.TempDir()
	opts := testWALOptions(t, tempDir)
	w, _, err := Open(opts)
	require.NoError(t, err)
	defer w.Close()

	injected := fmt.Errorf("simulated disk failure")
	w.SetTestingOnlyInjectAppendError(injected)

	_, err = w.Append(core.WALEntry{EntryType: core.EntryTypePut, Key: []byte("a")})
	assert.ErrorIs(t, err, injected)
}
