package txlog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/INLOpen/nexusbase/core"
	"github.com/INLOpen/nexusbase/wal"
)

// fixedVersionView is a VersionView with a fixed, test-controlled last
// sequence number.
type fixedVersionView struct{ last uint64 }

func (v fixedVersionView) LastSequence() uint64 { return v.last }

// writeBatch appends one framed batch record covering [startSeq, startSeq+count-1]
// to w and returns the encoded payload bytes it wrote.
func writeBatch(t *testing.T, w *wal.SegmentWriter, startSeq uint64, count int) []byte {
	t.Helper()
	entries := make([]core.WALEntry, count)
	for i := range entries {
		entries[i] = core.WALEntry{
			EntryType: core.EntryTypePut,
			Key:       []byte("k"),
			Value:     []byte("v"),
		}
	}
	batch := core.Batch{StartSequence: startSeq, Entries: entries}
	payload, err := core.EncodeBatch(&batch)
	require.NoError(t, err)
	require.NoError(t, w.WriteRecord(payload))
	return payload
}

// newLiveFile creates a live segment file under dir/logDir for logNumber and
// writes the given batches (each a (startSeq, count) pair) into it.
func newLiveFile(t *testing.T, logDir string, logNumber uint64, batches [][2]int) LogFileDescriptor {
	t.Helper()
	w, err := wal.CreateSegment(logDir, logNumber)
	require.NoError(t, err)
	startSequence := uint64(0)
	for i, b := range batches {
		writeBatch(t, w, uint64(b[0]), b[1])
		if i == 0 {
			startSequence = uint64(b[0])
		}
	}
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	return LogFileDescriptor{LogNumber: logNumber, Kind: Live, StartSequence: startSequence}
}

func newTestDirs(t *testing.T) (logDir, archiveDir string) {
	t.Helper()
	root := t.TempDir()
	logDir = filepath.Join(root, "logs")
	archiveDir = filepath.Join(root, "archive")
	require.NoError(t, os.MkdirAll(logDir, 0o755))
	require.NoError(t, os.MkdirAll(archiveDir, 0o755))
	return logDir, archiveDir
}

// Scenario: clean replay of a single file containing several contiguous batches.
func TestIteratorCore_CleanReplay(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	desc := newLiveFile(t, logDir, 1, [][2]int{{1, 2}, {3, 1}, {4, 3}})

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 6},
		VerifyChecksums:  true,
	})
	defer it.Close()

	var delivered []uint64
	for it.Valid() {
		d := it.GetBatch()
		delivered = append(delivered, d.Sequence)
		it.Next()
	}
	assert.Equal(t, []uint64{1, 3, 4}, delivered)
	assert.True(t, it.Status().IsOK())
}

// Scenario: seek to a mid-stream sequence lands exactly on a batch boundary.
func TestIteratorCore_MidStreamSeek(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	desc := newLiveFile(t, logDir, 1, [][2]int{{1, 2}, {3, 1}, {4, 3}})

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 3,
		VersionView:      fixedVersionView{last: 6},
		VerifyChecksums:  true,
	})
	defer it.Close()

	require.True(t, it.Valid())
	d := it.GetBatch()
	assert.Equal(t, uint64(3), d.Sequence)
}

// Scenario: continuity across two files, rolling from the first into the second.
func TestIteratorCore_CrossFileContinuity(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	desc1 := newLiveFile(t, logDir, 1, [][2]int{{1, 2}})
	desc2 := newLiveFile(t, logDir, 2, [][2]int{{3, 2}, {5, 1}})

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc1, desc2},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 5},
		VerifyChecksums:  true,
	})
	defer it.Close()

	var delivered []uint64
	for it.Valid() {
		d := it.GetBatch()
		delivered = append(delivered, d.Sequence)
		it.Next()
	}
	assert.Equal(t, []uint64{1, 3, 5}, delivered)
	assert.True(t, it.Status().IsOK())
}

// Scenario: rotation left an overlapping duplicate batch at the head of the
// new file. The iterator notices the resulting gap and its strict reseek
// rescans the same file, landing exactly on the next fresh sequence.
func TestIteratorCore_GapWithSuccessfulReseek(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	desc0 := newLiveFile(t, logDir, 1, [][2]int{{1, 2}, {3, 1}})
	// file 2 re-includes (3,1) as an overlap before its genuinely new data.
	desc1 := newLiveFile(t, logDir, 2, [][2]int{{3, 1}, {4, 1}, {5, 2}})

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc0, desc1},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 6},
		VerifyChecksums:  true,
		GapReseekEnabled: true,
	})
	defer it.Close()

	var delivered []uint64
	for it.Valid() {
		d := it.GetBatch()
		delivered = append(delivered, d.Sequence)
		it.Next()
	}
	assert.Equal(t, []uint64{1, 3, 4, 5}, delivered)
	assert.True(t, it.Status().IsOK())
}

// Scenario: a sequence gap for which no reseek target exists anywhere in
// the known files. The strict reseek scans past the target and faults.
func TestIteratorCore_GapWithoutReseekTarget(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	w, err := wal.CreateSegment(logDir, 1)
	require.NoError(t, err)
	writeBatch(t, w, 1, 2)
	writeBatch(t, w, 5, 2)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	desc := LogFileDescriptor{LogNumber: 1, Kind: Live, StartSequence: 1}

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 6},
		VerifyChecksums:  true,
		GapReseekEnabled: true,
	})
	defer it.Close()

	require.True(t, it.Valid())
	first := it.GetBatch()
	assert.Equal(t, uint64(1), first.Sequence)

	it.Next()
	// The strict reseek for sequence 3 can't land exactly on it anywhere in
	// this single file, so it faults with a corruption status rather than
	// silently skipping ahead to 5.
	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsCorruption())
}

// Scenario: with gap reseeking disabled, any detected gap is immediately
// fatal, with no attempt to relocate the missing sequence even when one
// exists later in the same file list.
func TestIteratorCore_GapReseekDisabled(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	desc0 := newLiveFile(t, logDir, 1, [][2]int{{1, 2}, {3, 1}})
	desc1 := newLiveFile(t, logDir, 2, [][2]int{{3, 1}, {4, 1}, {5, 2}})

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc0, desc1},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 6},
		VerifyChecksums:  true,
		GapReseekEnabled: false,
	})
	defer it.Close()

	var delivered []uint64
	for it.Valid() {
		d := it.GetBatch()
		delivered = append(delivered, d.Sequence)
		it.Next()
	}
	assert.Equal(t, []uint64{1, 3}, delivered)
	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsCorruption())
}

// Scenario: writer's version view is ahead of what the logs actually contain.
func TestIteratorCore_WriterAheadOfLogs(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	desc := newLiveFile(t, logDir, 1, [][2]int{{1, 2}})

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 5},
		VerifyChecksums:  true,
	})
	defer it.Close()

	require.True(t, it.Valid())
	it.GetBatch()
	it.Next()

	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsCorruption())
}

// Scenario: the iterator falls back to the archive directory when the live
// file has already been rotated out.
func TestIteratorCore_ArchiveFallback(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	w, err := wal.CreateSegment(logDir, 1)
	require.NoError(t, err)
	writeBatch(t, w, 1, 2)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())

	// Simulate rotation: move the live file into the archive directory.
	require.NoError(t, os.Rename(core.LivePath(logDir, 1), core.ArchivedPath(archiveDir, 1)))

	desc := LogFileDescriptor{LogNumber: 1, Kind: Live, StartSequence: 1}
	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 2},
		VerifyChecksums:  true,
	})
	defer it.Close()

	require.True(t, it.Valid())
	d := it.GetBatch()
	assert.Equal(t, uint64(1), d.Sequence)
}

// Scenario: writer appends a new batch to the live file while the iterator
// is mid-iteration and has already hit its EOF once.
func TestIteratorCore_WriterAppendsMidIteration(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	w, err := wal.CreateSegment(logDir, 1)
	require.NoError(t, err)
	writeBatch(t, w, 1, 2)
	require.NoError(t, w.Sync())

	desc := LogFileDescriptor{LogNumber: 1, Kind: Live, StartSequence: 1}
	view := &fixedVersionView{last: 2}
	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 1,
		VersionView:      view,
		VerifyChecksums:  true,
	})
	defer it.Close()

	require.True(t, it.Valid())
	it.GetBatch()
	it.Next()
	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsOK(), "caught up cleanly before the writer appends more")

	// Writer appends a further batch and durability advances.
	writeBatch(t, w, 3, 1)
	require.NoError(t, w.Sync())
	require.NoError(t, w.Close())
	view.last = 3

	it.Next()
	require.True(t, it.Valid())
	d := it.GetBatch()
	assert.Equal(t, uint64(3), d.Sequence)
}

// Idempotent exhaustion: repeated Next()/Valid() calls after reaching a
// clean end of stream keep returning the same OK status without moving.
func TestIteratorCore_IdempotentExhaustion(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	desc := newLiveFile(t, logDir, 1, [][2]int{{1, 2}})

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 2},
		VerifyChecksums:  true,
	})
	defer it.Close()

	it.GetBatch()
	it.Next()
	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsOK())

	it.Next()
	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsOK())
}

// Fault stickiness: once faulted, the iterator does not spontaneously
// recover on further Next() calls.
func TestIteratorCore_FaultIsSticky(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	// No log files exist at all: opening the descriptor fails outright.
	desc := LogFileDescriptor{LogNumber: 1, Kind: Live, StartSequence: 1}

	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            []LogFileDescriptor{desc},
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 2},
		VerifyChecksums:  true,
	})
	defer it.Close()

	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsIOError())

	it.Next()
	assert.False(t, it.Valid())
	assert.True(t, it.Status().IsIOError())
}

// GetBatch on an invalid iterator is a programming error, not a runtime one.
func TestIteratorCore_GetBatchPanicsWhenInvalid(t *testing.T) {
	logDir, archiveDir := newTestDirs(t)
	it := New(Options{
		LogDir:           logDir,
		ArchiveDir:       archiveDir,
		Files:            nil,
		StartingSequence: 1,
		VersionView:      fixedVersionView{last: 0},
	})
	defer it.Close()

	assert.False(t, it.Valid())
	assert.Panics(t, func() { it.GetBatch() })
}
