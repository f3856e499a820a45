package wal

import (
	"context"
	"errors"
	"expvar"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/INLOpen/nexusbase/compressors"
	"github.com/INLOpen/nexusbase/core"
	"github.com/INLOpen/nexusbase/hooks"
)

// WALSyncMode defines how frequently the WAL is synced to disk.
type WALSyncMode string

const (
	SyncAlways   WALSyncMode = "always"   // Sync after every append (highest durability, lowest performance)
	SyncInterval WALSyncMode = "interval" // Sync periodically (handled by the caller, not the WAL itself)
	SyncDisabled WALSyncMode = "disabled" // No sync (for testing/benchmarking, high risk of data loss)
)

// WAL is the durable, append-only commit log a storage engine writes batches
// to before applying them to an in-memory structure. It manages a directory
// of live segment files plus, once a segment is rotated out, an archive
// subdirectory that keeps rotated segments available to iterators without
// competing with the writer for the live directory.
type WAL struct {
	dir        string
	archiveDir string
	mu         sync.Mutex
	opts       Options

	activeSegment  *SegmentWriter
	segmentIndexes []uint64
	nextSequence   uint64

	metricsBytesWritten   *expvar.Int
	metricsEntriesWritten *expvar.Int

	logger      *slog.Logger
	hookManager hooks.HookManager

	testingOnlyInjectCloseError  error
	testingOnlyInjectAppendError error
}

// Options holds configuration for the WAL.
type Options struct {
	Dir            string
	SyncMode       WALSyncMode
	MaxSegmentSize int64
	// ArchiveOnRotate moves a segment into the archive directory as soon as
	// a new live segment replaces it, instead of leaving it in the live
	// directory forever. Iterators fall back to the archive directory when
	// a log number is no longer present live.
	ArchiveOnRotate bool
	// ArchiveCompression selects the codec a rotated segment is rewritten
	// with once it lands in the archive directory. core.CompressionNone
	// leaves it as the plain rename it always was; any other value costs an
	// extra read-and-rewrite pass at rotation time in exchange for smaller
	// archived segments. Ignored unless ArchiveOnRotate is set.
	ArchiveCompression core.CompressionType
	BytesWritten       *expvar.Int
	EntriesWritten     *expvar.Int
	Logger             *slog.Logger
	// StartRecoveryIndex tells the WAL to only recover entries from segments with a log number greater than this value.
	StartRecoveryIndex uint64
	HookManager        hooks.HookManager
}

// Open creates or opens a WAL directory. It recovers batches from existing
// live segments and prepares the tail segment for appending.
func Open(opts Options) (*WAL, []core.Batch, error) {
	if opts.Logger == nil {
		opts.Logger = slog.Default().With("component", "WAL")
	} else {
		opts.Logger = opts.Logger.With("component", "WAL")
	}
	if opts.MaxSegmentSize == 0 {
		opts.MaxSegmentSize = core.WALMaxSegmentSize
	}

	if err := os.MkdirAll(opts.Dir, 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create WAL directory %s: %w", opts.Dir, err)
	}
	archiveDir := filepath.Join(opts.Dir, core.ArchiveDirName)
	if opts.ArchiveOnRotate {
		if err := os.MkdirAll(archiveDir, 0755); err != nil {
			return nil, nil, fmt.Errorf("failed to create WAL archive directory %s: %w", archiveDir, err)
		}
	}

	w := &WAL{
		dir:                   opts.Dir,
		archiveDir:            archiveDir,
		opts:                  opts,
		logger:                opts.Logger,
		metricsBytesWritten:   opts.BytesWritten,
		metricsEntriesWritten: opts.EntriesWritten,
		hookManager:           opts.HookManager,
		nextSequence:          1,
	}

	if err := w.loadSegments(); err != nil {
		return nil, nil, fmt.Errorf("failed to load WAL segments: %w", err)
	}

	recoveredBatches, recoveryErr := w.recover(opts.StartRecoveryIndex)
	for _, b := range recoveredBatches {
		if next := b.LastSequence() + 1; next > w.nextSequence {
			w.nextSequence = next
		}
	}

	if err := w.openForAppend(); err != nil {
		w.Close()
		return nil, nil, fmt.Errorf("failed to open WAL for appending: %w", err)
	}

	// A clean recovery reads every record of every segment and terminates in
	// io.EOF; that is not an error condition for Open. Anything else (e.g.
	// io.ErrUnexpectedEOF on a non-tail segment) is a real problem the
	// caller must decide how to handle.
	if recoveryErr == io.EOF {
		return w, recoveredBatches, nil
	}
	return w, recoveredBatches, recoveryErr
}

// loadSegments scans the WAL directory and populates the segmentIndexes slice.
func (w *WAL) loadSegments() error {
	files, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to read WAL directory %s: %w", w.dir, err)
	}

	w.segmentIndexes = make([]uint64, 0, len(files))
	for _, file := range files {
		if file.IsDir() {
			continue
		}
		logNumber, err := core.ParseSegmentFileName(file.Name())
		if err == nil {
			w.segmentIndexes = append(w.segmentIndexes, logNumber)
		}
	}
	sort.Slice(w.segmentIndexes, func(i, j int) bool {
		return w.segmentIndexes[i] < w.segmentIndexes[j]
	})
	return nil
}

// SetTestingOnlyInjectCloseError sets an error that will be returned by the Close() method.
func (w *WAL) SetTestingOnlyInjectCloseError(err error) {
	w.testingOnlyInjectCloseError = err
}

// SetTestingOnlyInjectAppendError sets an error that will be returned by AppendBatch.
func (w *WAL) SetTestingOnlyInjectAppendError(err error) {
	w.testingOnlyInjectAppendError = err
}

// Append writes a single entry as a one-entry batch. It's a convenience
// wrapper around AppendBatch.
func (w *WAL) Append(entry core.WALEntry) (core.Batch, error) {
	return w.AppendBatch([]core.WALEntry{entry})
}

// AppendBatch writes a slice of entries as a single, atomically-framed
// batch record and returns the committed Batch (with its assigned starting
// sequence number filled in).
func (w *WAL) AppendBatch(entries []core.WALEntry) (core.Batch, error) {
	if len(entries) == 0 {
		return core.Batch{}, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.testingOnlyInjectAppendError != nil {
		return core.Batch{}, w.testingOnlyInjectAppendError
	}

	batch := core.Batch{StartSequence: w.nextSequence, Entries: entries}
	payloadBytes, err := core.EncodeBatch(&batch)
	if err != nil {
		return core.Batch{}, fmt.Errorf("failed to encode batch starting at %d: %w", batch.StartSequence, err)
	}

	newRecordSize := int64(len(payloadBytes) + 8) // +4 for length prefix, +4 for checksum

	if w.activeSegment == nil {
		return core.Batch{}, errors.New("wal is closed or not open for writing")
	}

	currentSize, err := w.activeSegment.Size()
	if err != nil {
		return core.Batch{}, fmt.Errorf("could not get active segment size: %w", err)
	}
	// Records still held in the segment's write buffer count toward its size.
	currentSize += int64(w.activeSegment.writer.Buffered())
	// Only rotate if the segment already holds at least one record: a single
	// oversized batch is still allowed to land whole in an empty segment.
	if currentSize > int64(binarySize()) && (currentSize+newRecordSize) > w.opts.MaxSegmentSize {
		w.logger.Debug("Rotating WAL segment due to size", "current_size", currentSize, "new_record_size", newRecordSize, "max_size", w.opts.MaxSegmentSize)
		if err := w.rotateLocked(); err != nil {
			return core.Batch{}, fmt.Errorf("failed to rotate WAL segment: %w", err)
		}
	}

	if w.metricsBytesWritten != nil {
		w.metricsBytesWritten.Add(newRecordSize)
	}
	if w.metricsEntriesWritten != nil {
		w.metricsEntriesWritten.Add(int64(len(entries)))
	}

	if err := w.activeSegment.WriteRecord(payloadBytes); err != nil {
		return core.Batch{}, err
	}

	w.nextSequence = batch.LastSequence() + 1

	if w.opts.SyncMode == SyncAlways {
		if err := w.activeSegment.Sync(); err != nil {
			return core.Batch{}, err
		}
	}
	return batch, nil
}

func binarySize() int64 {
	var h core.FileHeader
	return int64(h.Size())
}

// Sync flushes data to the active segment file.
func (w *WAL) Sync() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.activeSegment == nil {
		return errors.New("wal is closed")
	}
	if err := w.activeSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL file: %w", err)
	}
	return nil
}

// Rotate manually triggers a segment rotation.
func (w *WAL) Rotate() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.rotateLocked()
}

// Close closes the WAL file.
func (w *WAL) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.testingOnlyInjectCloseError != nil {
		return w.testingOnlyInjectCloseError
	}

	if w.activeSegment == nil {
		return nil // Already closed
	}

	closeErr := w.activeSegment.Close()
	w.activeSegment = nil

	if closeErr != nil {
		w.logger.Error("Error during WAL close.", "error", closeErr)
	} else {
		w.logger.Info("WAL closed.")
	}
	return closeErr
}

// Purge deletes segment files with a log number less than or equal to upToIndex.
// If archiving is enabled it removes the archived copy too, since a
// checkpoint at that sequence means no iterator should ever need it again.
func (w *WAL) Purge(upToIndex uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var remainingIndexes []uint64
	var purgedCount int
	for _, logNumber := range w.segmentIndexes {
		if logNumber <= upToIndex {
			if w.activeSegment != nil && w.activeSegment.logNumber == logNumber {
				w.logger.Warn("Skipping purge of active WAL segment", "log_number", logNumber)
				remainingIndexes = append(remainingIndexes, logNumber)
				continue
			}
			path := core.LivePath(w.dir, logNumber)
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				w.logger.Error("Failed to purge WAL segment", "path", path, "error", err)
			} else {
				purgedCount++
			}
			if w.opts.ArchiveOnRotate {
				_ = os.Remove(core.ArchivedPath(w.archiveDir, logNumber))
			}
		} else {
			remainingIndexes = append(remainingIndexes, logNumber)
		}
	}
	w.segmentIndexes = remainingIndexes
	if purgedCount > 0 {
		w.logger.Info("Purged WAL segments", "count", purgedCount, "up_to_index", upToIndex)
	}
	return nil
}

// Path returns the directory path of the live WAL segments.
func (w *WAL) Path() string {
	return w.dir
}

// ArchivePath returns the directory path where rotated segments are archived.
func (w *WAL) ArchivePath() string {
	return w.archiveDir
}

// ActiveSegmentIndex returns the log number of the current active segment.
// It returns 0 if there is no active segment.
func (w *WAL) ActiveSegmentIndex() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.activeSegment == nil {
		return 0
	}
	return w.activeSegment.logNumber
}

// NextSequence returns the sequence number the next appended entry would be
// assigned, i.e. one past the last durable sequence number.
func (w *WAL) NextSequence() uint64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.nextSequence
}

// rotateLocked creates a new live segment and, if configured, archives the
// segment being replaced. Must be called with the lock held.
func (w *WAL) rotateLocked() error {
	var nextIndex uint64 = 1
	if len(w.segmentIndexes) > 0 {
		nextIndex = w.segmentIndexes[len(w.segmentIndexes)-1] + 1
	}

	newSegment, err := CreateSegment(w.dir, nextIndex)
	if err != nil {
		return err
	}

	var oldIndex uint64
	var oldPath string
	if w.activeSegment != nil {
		oldIndex = w.activeSegment.logNumber
		oldPath = w.activeSegment.path
		if err := w.activeSegment.Close(); err != nil {
			w.logger.Error("failed to close active segment during rotation", "path", w.activeSegment.path, "error", err)
		}
	}

	w.activeSegment = newSegment
	w.segmentIndexes = append(w.segmentIndexes, nextIndex)
	w.logger.Info("Rotated to new WAL segment", "log_number", nextIndex, "path", newSegment.path)

	if oldIndex > 0 && w.opts.ArchiveOnRotate {
		archivedPath := core.ArchivedPath(w.archiveDir, oldIndex)
		if err := os.Rename(oldPath, archivedPath); err != nil {
			w.logger.Error("failed to archive rotated WAL segment", "old_path", oldPath, "archived_path", archivedPath, "error", err)
		} else {
			w.logger.Debug("Archived rotated WAL segment", "log_number", oldIndex, "path", archivedPath)
			if w.opts.ArchiveCompression != core.CompressionNone {
				if err := recompressArchivedSegment(archivedPath, oldIndex, w.opts.ArchiveCompression); err != nil {
					w.logger.Error("failed to recompress archived WAL segment, keeping uncompressed copy", "path", archivedPath, "error", err)
				}
			}
		}
	}

	if w.hookManager != nil && oldIndex > 0 {
		payload := hooks.PostWALRotatePayload{
			OldSegmentIndex: oldIndex,
			NewSegmentIndex: newSegment.logNumber,
			NewSegmentPath:  newSegment.path,
		}
		w.hookManager.Trigger(context.Background(), hooks.NewPostWALRotateEvent(payload))
	}
	return nil
}

// recover reads all batches from all known live segments in ascending log
// number order.
func (w *WAL) recover(startRecoveryIndex uint64) ([]core.Batch, error) {
	var allBatches []core.Batch
	for _, logNumber := range w.segmentIndexes {
		if logNumber <= startRecoveryIndex {
			continue
		}
		path := core.LivePath(w.dir, logNumber)
		batches, err := recoverFromSegment(path, w.logger)
		if len(batches) > 0 {
			allBatches = append(allBatches, batches...)
		}
		if err != nil {
			if err == io.EOF {
				continue
			}
			w.logger.Warn("Recovery stopped on segment due to error", "log_number", logNumber, "path", path, "error", err)
			return allBatches, err
		}
	}
	return allBatches, io.EOF
}

// recoverFromSegment reads all valid batches from a single WAL segment file,
// returning everything read successfully alongside the error (which can be
// io.EOF for a clean read) that stopped it.
func recoverFromSegment(filePath string, logger *slog.Logger) ([]core.Batch, error) {
	reader, err := OpenSegmentForRead(filePath, true)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Info("WAL segment does not exist, nothing to recover.", "path", filePath)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open WAL segment for reading %s: %w", filePath, err)
	}
	defer reader.Close()

	var batches []core.Batch
	for {
		recordData, err := reader.ReadRecord()
		if err != nil {
			return batches, err
		}
		batch, err := core.DecodeBatch(recordData)
		if err != nil {
			return batches, fmt.Errorf("error decoding WAL batch: %w", err)
		}
		batches = append(batches, *batch)
	}
}

// recompressArchivedSegment rewrites the segment at path, in place, so its
// records are compressed with target instead of whatever codec it currently
// carries. It writes the rewritten copy under a temporary name and renames
// it over the original only once every record has been copied successfully,
// so a crash or codec error mid-rewrite leaves the original archived segment
// untouched.
func recompressArchivedSegment(path string, logNumber uint64, target core.CompressionType) error {
	compressor, err := compressors.For(target)
	if err != nil {
		return err
	}

	reader, err := OpenSegmentForRead(path, true)
	if err != nil {
		return fmt.Errorf("failed to open archived segment %s for recompression: %w", path, err)
	}
	defer reader.Close()

	tmpPath := path + ".recompress.tmp"
	writer, err := createSegmentAtPath(tmpPath, logNumber, compressor)
	if err != nil {
		return fmt.Errorf("failed to create recompression target %s: %w", tmpPath, err)
	}

	for {
		record, err := reader.ReadRecord()
		if err == io.EOF {
			break
		}
		if err != nil {
			writer.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to read record from %s during recompression: %w", path, err)
		}
		if err := writer.WriteRecord(record); err != nil {
			writer.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("failed to write recompressed record to %s: %w", tmpPath, err)
		}
	}

	if err := writer.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to finalize recompressed segment %s: %w", tmpPath, err)
	}
	if err := reader.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close source segment %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace %s with recompressed copy: %w", path, err)
	}
	return nil
}

func (w *WAL) openForAppend() error {
	if len(w.segmentIndexes) == 0 {
		return w.rotateLocked()
	}

	lastIndex := w.segmentIndexes[len(w.segmentIndexes)-1]
	path := core.LivePath(w.dir, lastIndex)

	// A crash could have left the tail segment partially written. Rather
	// than trying to truncate the last record and continue, start a fresh
	// segment: simpler, and safe since the WAL never reuses a log number.
	stat, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat last segment %s: %w", path, err)
	}

	if stat.Size() > binarySize() {
		return w.rotateLocked()
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("failed to remove incomplete segment %s for reuse: %w", path, err)
	}

	seg, err := CreateSegment(w.dir, lastIndex)
	if err != nil {
		return fmt.Errorf("failed to reuse segment %d: %w", lastIndex, err)
	}
	w.activeSegment = seg
	return nil
}
