// Package txlog implements the transaction-log iterator: the component that
// replays committed write batches from a set of write-ahead-log files in
// strict sequence order, from a caller-chosen starting sequence up to the
// latest durable sequence the engine reports.
package txlog

import (
	"fmt"

	"github.com/INLOpen/nexusbase/core"
)

// LogFileKind distinguishes a log file still being appended to from one that
// has been rotated out and archived.
type LogFileKind int

const (
	// Live identifies a log file that may still be receiving writes.
	Live LogFileKind = iota
	// Archived identifies a rotated-out log file retained for iterators.
	Archived
)

func (k LogFileKind) String() string {
	if k == Archived {
		return "archived"
	}
	return "live"
}

// LogFileDescriptor is immutable metadata for a single WAL file: enough for
// the iterator to open it and know where it sits in the sequence space. Two
// descriptors are ordered by LogNumber.
type LogFileDescriptor struct {
	LogNumber     uint64
	Kind          LogFileKind
	StartSequence uint64
	SizeBytes     uint64
}

// LivePath returns the descriptor's path in the live log directory,
// regardless of its Kind — used by the opener's live-then-archive fallback.
func (d LogFileDescriptor) LivePath(logDir string) string {
	return core.LivePath(logDir, d.LogNumber)
}

// ArchivedPath returns the descriptor's path in the archive directory.
func (d LogFileDescriptor) ArchivedPath(archiveDir string) string {
	return core.ArchivedPath(archiveDir, d.LogNumber)
}

// Less orders descriptors by LogNumber, satisfying sort.Interface-style
// comparators used to validate or build a file list.
func (d LogFileDescriptor) Less(other LogFileDescriptor) bool {
	return d.LogNumber < other.LogNumber
}

// ValidateFiles checks the ordering invariants a file list must satisfy
// before it is handed to New: log numbers strictly increase, no two
// descriptors share a log number, and start sequences never decrease
// across the list. Callers building a file list by hand (rather than
// through DiscoverFiles, which already produces a list in this order)
// should call this before constructing an iterator, since New itself has
// no way to recover from a malformed file list beyond faulting on the
// first inconsistency it happens to trip over.
func ValidateFiles(files []LogFileDescriptor) error {
	for i := 1; i < len(files); i++ {
		prev, cur := files[i-1], files[i]
		if cur.LogNumber <= prev.LogNumber {
			return &core.ValidationError{
				Field:   "log_number",
				Value:   fmt.Sprintf("%d", cur.LogNumber),
				Message: fmt.Sprintf("must strictly increase after %d", prev.LogNumber),
			}
		}
		if cur.StartSequence < prev.StartSequence {
			return &core.ValidationError{
				Field:   "start_sequence",
				Value:   fmt.Sprintf("%d", cur.StartSequence),
				Message: fmt.Sprintf("must not decrease after %d (log number %d)", prev.StartSequence, cur.LogNumber),
			}
		}
	}
	return nil
}
