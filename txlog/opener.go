package txlog

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/INLOpen/nexusbase/hooks"
	"github.com/INLOpen/nexusbase/wal"
)

// FrameReader is the interface the iterator consumes from a single opened
// log file. wal.SegmentReader satisfies it.
type FrameReader interface {
	ReadRecord() ([]byte, error)
	IsEOF() bool
	ClearEOF()
	Close() error
}

// FileOpener resolves a LogFileDescriptor to an open FrameReader, applying
// the live-then-archive fallback policy: an archived descriptor always opens
// from the archive directory; a live descriptor tries the live directory
// first and falls back to the archive directory on any open error, since the
// file may have been rotated out between when the caller's file list was
// snapshotted and when the iterator gets to it.
type FileOpener struct {
	logDir          string
	archiveDir      string
	verifyChecksums bool
	hookManager     hooks.HookManager
	logger          *slog.Logger
}

// NewFileOpener creates a FileOpener rooted at logDir/archiveDir. verifyChecksums
// is forwarded to every segment reader it opens.
func NewFileOpener(logDir, archiveDir string, verifyChecksums bool, hookManager hooks.HookManager, logger *slog.Logger) *FileOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileOpener{
		logDir:          logDir,
		archiveDir:      archiveDir,
		verifyChecksums: verifyChecksums,
		hookManager:     hookManager,
		logger:          logger.With("component", "txlog.FileOpener"),
	}
}

// Open resolves desc to a FrameReader, or returns the terminal filesystem
// error if neither the live nor archived path could be opened.
func (o *FileOpener) Open(desc LogFileDescriptor) (FrameReader, error) {
	if desc.Kind == Archived {
		return o.openArchived(desc)
	}

	livePath := desc.LivePath(o.logDir)
	reader, err := wal.OpenSegmentForRead(livePath, o.verifyChecksums)
	if err == nil {
		return reader, nil
	}

	o.logger.Debug("live log open failed, falling back to archive", "log_number", desc.LogNumber, "live_path", livePath, "error", err)
	archived, archErr := o.openArchived(desc)
	if archErr != nil {
		return nil, fmt.Errorf("failed to open log %d from live path %s or archive: live error: %v, archive error: %w", desc.LogNumber, livePath, err, archErr)
	}

	if o.hookManager != nil {
		o.hookManager.Trigger(context.Background(), hooks.NewOnArchiveFallbackEvent(hooks.ArchiveFallbackPayload{
			LogNumber:   desc.LogNumber,
			LivePath:    livePath,
			ArchivePath: desc.ArchivedPath(o.archiveDir),
		}))
	}
	return archived, nil
}

func (o *FileOpener) openArchived(desc LogFileDescriptor) (FrameReader, error) {
	archivedPath := desc.ArchivedPath(o.archiveDir)
	reader, err := wal.OpenSegmentForRead(archivedPath, o.verifyChecksums)
	if err != nil {
		return nil, fmt.Errorf("failed to open archived log %d at %s: %w", desc.LogNumber, archivedPath, err)
	}
	return reader, nil
}
