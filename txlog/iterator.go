package txlog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/INLOpen/nexusbase/core"
	"github.com/INLOpen/nexusbase/hooks"
	"github.com/INLOpen/nexusbase/wal"
)

// VersionView is the read-only accessor the iterator uses to learn how far
// it is allowed to read. Implementations (e.g. *version.Set) must return a
// value that never decreases over the iterator's lifetime.
type VersionView interface {
	LastSequence() uint64
}

// Delivery is what GetBatch hands back: the sequence a batch starts at and
// its raw framed payload. Callers that need the individual entries decode
// the payload themselves with core.DecodeBatch.
type Delivery struct {
	Sequence uint64
	Count    uint32
	Payload  []byte
}

type batchRef struct {
	startSeq uint64
	count    uint32
	payload  []byte
}

// Options configures a new IteratorCore.
type Options struct {
	LogDir           string
	ArchiveDir       string
	Files            []LogFileDescriptor
	StartingSequence uint64
	VersionView      VersionView
	// VerifyChecksums is passed to every segment reader. When true, a record
	// whose CRC32 does not match is reported as corruption and skipped; when
	// false, record checksums are not checked at all.
	VerifyChecksums bool
	// GapReseekEnabled controls whether a detected sequence gap triggers a
	// strict reseek attempt. When false, any gap is fatal corruption
	// immediately, with no attempt to relocate the missing sequence.
	GapReseekEnabled bool
	HookManager      hooks.HookManager
	Logger           *slog.Logger
}

// IteratorCore replays committed batches from files in strict sequence
// order, starting at StartingSequence and continuing until it either
// exhausts every file it knows about or catches up to VersionView's last
// sequence. It performs blocking file I/O inline and is not safe for
// concurrent use by more than one goroutine.
type IteratorCore struct {
	opener      *FileOpener
	decoder     *BatchDecoder
	reporter    CorruptionReporter
	versionView VersionView
	hookManager hooks.HookManager
	logger      *slog.Logger

	files            []LogFileDescriptor
	gapReseekEnabled bool

	currentFileIndex int
	reader           FrameReader

	startingSequence uint64
	currentBatchSeq  uint64
	currentLastSeq   uint64

	started       bool
	valid         bool
	currentStatus core.Status
	currentBatch  *batchRef
}

// New constructs an iterator and immediately attempts to seek to
// opts.StartingSequence. Construction never returns an error; a failed seek
// leaves the iterator Faulted or simply invalid, observable via Valid/Status.
func New(opts Options) *IteratorCore {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "txlog.Iterator")

	it := &IteratorCore{
		opener:           NewFileOpener(opts.LogDir, opts.ArchiveDir, opts.VerifyChecksums, opts.HookManager, logger),
		decoder:          NewBatchDecoder(),
		reporter:         NewSlogReporter(logger, opts.HookManager),
		versionView:      opts.VersionView,
		hookManager:      opts.HookManager,
		logger:           logger,
		files:            opts.Files,
		gapReseekEnabled: opts.GapReseekEnabled,
		startingSequence: opts.StartingSequence,
		currentStatus:    core.OkStatus,
	}
	it.seekToStart(0, false)
	return it
}

// Valid reports whether GetBatch may be called.
func (it *IteratorCore) Valid() bool {
	return it.started && it.valid
}

// Status returns the last non-transient status the iterator observed.
func (it *IteratorCore) Status() core.Status {
	return it.currentStatus
}

// GetBatch returns the currently positioned batch and consumes it: the
// caller must call Next before calling GetBatch again. Panics if !Valid(),
// mirroring the engine-wide convention that a caller violating a documented
// precondition is a programming bug, not a runtime condition to recover from.
func (it *IteratorCore) GetBatch() Delivery {
	if !it.Valid() {
		panic("txlog: GetBatch called while iterator is not valid")
	}
	b := it.currentBatch
	it.currentBatch = nil
	it.valid = false
	return Delivery{Sequence: it.currentBatchSeq, Count: b.count, Payload: b.payload}
}

// Next advances the iterator by one batch.
func (it *IteratorCore) Next() {
	if !it.started {
		it.seekToStart(0, false)
		return
	}
	it.advance(false)
}

// Close releases the currently open file handle, if any.
func (it *IteratorCore) Close() error {
	if it.reader == nil {
		return nil
	}
	err := it.reader.Close()
	it.reader = nil
	return err
}

// canReadMore is the restricted-read gate: a record read is only attempted
// while the iterator has not yet caught up to the writer's last durable
// sequence. Reading past that point risks surfacing a torn tail write.
func (it *IteratorCore) canReadMore() bool {
	return it.currentLastSeq < it.versionView.LastSequence()
}

func (it *IteratorCore) fault(status core.Status) {
	it.currentStatus = status
	it.valid = false
	if it.hookManager != nil {
		logNumber := uint64(0)
		if it.currentFileIndex < len(it.files) {
			logNumber = it.files[it.currentFileIndex].LogNumber
		}
		it.hookManager.Trigger(context.Background(), hooks.NewOnIteratorFaultedEvent(hooks.IteratorFaultedPayload{
			LogNumber: logNumber,
			Reason:    status.Msg,
		}))
	}
}

// readRecord reads the next record from the current reader, transparently
// skipping past a checksum-mismatched record: it is reported as corruption
// but does not stop iteration, since the record's length prefix already
// told the reader exactly how many bytes to discard. This mirrors the
// underlying reader always knowing where the next record starts regardless
// of whether the one it just skipped was trustworthy.
func (it *IteratorCore) readRecord(logNumber uint64) ([]byte, error) {
	for {
		record, err := it.reader.ReadRecord()
		if err == nil || err == io.EOF {
			return record, err
		}
		if errors.Is(err, wal.ErrChecksumMismatch) {
			it.reporter.Corruption(logNumber, 0, core.NewCorruption(err.Error()))
			continue
		}
		return nil, err
	}
}

// seekToStart positions the iterator at or past startingSequence, opening
// files[startFileIndex] and scanning forward. When strict is true, the
// first delivered batch must start exactly at startingSequence or the
// iterator faults.
func (it *IteratorCore) seekToStart(startFileIndex int, strict bool) {
	it.started = false
	it.valid = false

	if startFileIndex >= len(it.files) {
		return
	}

	if it.reader != nil {
		it.reader.Close()
		it.reader = nil
	}

	desc := it.files[startFileIndex]
	reader, err := it.opener.Open(desc)
	if err != nil {
		it.currentFileIndex = startFileIndex
		it.fault(core.NewIOError(err))
		return
	}
	it.reader = reader
	it.currentFileIndex = startFileIndex

	reachedTarget := false
	gapHandled := false
readLoop:
	for it.canReadMore() {
		record, err := it.readRecord(desc.LogNumber)
		if err == io.EOF {
			break readLoop
		}
		if err != nil {
			it.reporter.Corruption(desc.LogNumber, 0, core.NewCorruption(err.Error()))
			break readLoop
		}
		if len(record) < core.MinRecordSize {
			it.reporter.Corruption(desc.LogNumber, len(record), core.NewCorruption("very small log record"))
			continue
		}

		if it.updateCurrentBatch(record, desc.LogNumber) {
			// A gap was detected and resolved (or faulted) via a reentrant
			// seek_to_start call; that call already set our final state.
			gapHandled = true
			break readLoop
		}

		if it.currentLastSeq >= it.startingSequence {
			reachedTarget = true
			break readLoop
		}
	}

	if gapHandled {
		return
	}

	if reachedTarget {
		if strict && it.currentBatchSeq != it.startingSequence {
			it.currentStatus = core.NewCorruption("Gap in sequence number. Could not seek to required sequence number")
			it.reporter.Corruption(desc.LogNumber, 0, it.currentStatus)
			it.valid = false
			return
		}
		if strict {
			it.reporter.Info("seek landed exactly on requested sequence", "sequence", it.startingSequence)
		}
		it.valid = true
		it.started = true
		return
	}

	// Loop exited (EOF, restricted-read gate, or reported error) without
	// reaching the requested starting sequence.
	if strict {
		it.currentStatus = core.NewCorruption("Gap in sequence number. Could not seek to required sequence number")
		it.reporter.Corruption(desc.LogNumber, 0, it.currentStatus)
		it.valid = false
		return
	}
	if len(it.files) != 1 {
		it.currentStatus = core.NewCorruption("Start sequence was not found, skipping to the next available")
		it.reporter.Info("start sequence not found in first file, scanning forward", "starting_sequence", it.startingSequence)
		it.advance(true)
		return
	}
	// Single file, non-strict, not found: invalid with no status. The
	// caller sees "no data for this seek yet" and may retry later.
}

// advance scans forward for the next deliverable batch, rolling to
// subsequent files as the current one is exhausted. internal is true when
// advance is being used to recover a not-yet-started iterator (the
// non-strict seek fallback), in which case a successful read arms started.
func (it *IteratorCore) advance(internal bool) {
	it.valid = false

	for {
		if !it.canReadMore() {
			if it.currentLastSeq == it.versionView.LastSequence() {
				it.markExhausted()
			}
			return
		}

		if it.reader.IsEOF() {
			it.reader.ClearEOF()
		}

		logNumber := it.files[it.currentFileIndex].LogNumber
		record, err := it.readRecord(logNumber)
		if err == io.EOF {
			if it.rollToNextFile() {
				continue
			}
			it.finalizeExhaustion()
			return
		}
		if err != nil {
			it.reporter.Corruption(logNumber, 0, core.NewCorruption(err.Error()))
			if it.rollToNextFile() {
				continue
			}
			it.finalizeExhaustion()
			return
		}

		if len(record) < core.MinRecordSize {
			it.reporter.Corruption(logNumber, len(record), core.NewCorruption("very small log record"))
			continue
		}

		if it.updateCurrentBatch(record, logNumber) {
			return
		}

		if internal {
			it.started = true
		}
		it.valid = true
		if it.hookManager != nil {
			it.hookManager.Trigger(context.Background(), hooks.NewOnBatchDeliveredEvent(hooks.BatchDeliveredPayload{
				StartSequence: it.currentBatchSeq,
				LastSequence:  it.currentLastSeq,
				EntryCount:    it.currentBatch.count,
				LogNumber:     logNumber,
			}))
		}
		return
	}
}

// rollToNextFile closes the exhausted current reader and opens the next
// file in the list, if any. Returns false if there is no next file, or if
// opening it faulted the iterator.
func (it *IteratorCore) rollToNextFile() bool {
	if it.currentFileIndex+1 >= len(it.files) {
		return false
	}
	nextIndex := it.currentFileIndex + 1
	if it.reader != nil {
		it.reader.Close()
	}
	reader, err := it.opener.Open(it.files[nextIndex])
	if err != nil {
		it.fault(core.NewIOError(err))
		return false
	}
	it.reader = reader
	it.currentFileIndex = nextIndex
	return true
}

// finalizeExhaustion is reached once the file list is exhausted. It
// distinguishes a clean catch-up from the writer claiming sequences the
// logs never received.
func (it *IteratorCore) finalizeExhaustion() {
	if it.currentLastSeq == it.versionView.LastSequence() {
		it.markExhausted()
		return
	}
	logNumber := uint64(0)
	if it.currentFileIndex < len(it.files) {
		logNumber = it.files[it.currentFileIndex].LogNumber
	}
	it.currentStatus = core.NewCorruption("NO MORE DATA LEFT")
	it.reporter.Corruption(logNumber, 0, it.currentStatus)
	it.valid = false
}

func (it *IteratorCore) markExhausted() {
	alreadyExhausted := it.currentStatus.IsOK() && !it.valid
	it.currentStatus = core.OkStatus
	it.valid = false
	if !alreadyExhausted && it.hookManager != nil {
		it.hookManager.Trigger(context.Background(), hooks.NewOnIteratorExhaustedEvent(hooks.IteratorExhaustedPayload{
			LastDeliveredSequence: it.currentLastSeq,
		}))
	}
}

// updateCurrentBatch decodes record's sequence header and either accepts it
// as the next batch or, if a gap is detected in steady state, triggers a
// strict reseek. Returns true when a gap was detected and handled (whether
// or not the reseek succeeded); the caller should treat the iterator's
// state as already final in that case.
func (it *IteratorCore) updateCurrentBatch(record []byte, logNumber uint64) bool {
	header, status := it.decoder.DecodeHeader(record)
	if !status.IsOK() {
		it.reporter.Corruption(logNumber, len(record), status)
		return false
	}

	expected := it.currentLastSeq + 1
	if it.started && header.startSeq != expected {
		it.reporter.Info("sequence gap detected",
			"expected_sequence", expected,
			"found_sequence", header.startSeq,
			"last_delivered_sequence", it.currentLastSeq,
			"reseek_enabled", it.gapReseekEnabled,
		)

		if !it.gapReseekEnabled {
			it.currentStatus = core.NewCorruption("Gap in sequence numbers")
			it.reporter.Corruption(logNumber, len(record), it.currentStatus)
			it.valid = false
			if it.hookManager != nil {
				it.hookManager.Trigger(context.Background(), hooks.NewOnGapReseekEvent(hooks.GapReseekPayload{
					ExpectedSequence: expected,
					FoundSequence:    header.startSeq,
					Resolved:         false,
				}))
			}
			return true
		}

		reseekIndex := it.currentFileIndex
		if reseekIndex > 0 && expected < it.files[it.currentFileIndex].StartSequence {
			reseekIndex--
		}

		it.startingSequence = expected
		it.currentStatus = core.NewNotFound("Gap in sequence numbers")
		it.seekToStart(reseekIndex, true)

		if it.hookManager != nil {
			it.hookManager.Trigger(context.Background(), hooks.NewOnGapReseekEvent(hooks.GapReseekPayload{
				ExpectedSequence: expected,
				FoundSequence:    header.startSeq,
				Resolved:         it.currentStatus.IsOK(),
			}))
		}
		return true
	}

	it.currentBatchSeq = header.startSeq
	it.currentLastSeq = header.lastSeq()
	if it.currentLastSeq > it.versionView.LastSequence() {
		panic(fmt.Sprintf("txlog: internal invariant violated: batch last_seq %d exceeds version view last_sequence %d", it.currentLastSeq, it.versionView.LastSequence()))
	}

	it.currentBatch = &batchRef{startSeq: header.startSeq, count: header.count, payload: record}
	it.valid = true
	it.currentStatus = core.OkStatus
	return false
}
