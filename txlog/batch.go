package txlog

import "github.com/INLOpen/nexusbase/core"

// decodedHeader is the (start_seq, count) pair extracted from a record
// payload, ahead of decoding its entries. The iterator only ever needs the
// header to drive its sequence bookkeeping; DecodeBatch (for callers of the
// delivered payload) decodes the entries too.
type decodedHeader struct {
	startSeq uint64
	count    uint32
}

func (h decodedHeader) lastSeq() uint64 {
	return h.startSeq + uint64(h.count) - 1
}

// BatchDecoder validates and extracts the sequence header from a raw record
// payload read off a log file.
type BatchDecoder struct{}

// NewBatchDecoder creates a BatchDecoder. It carries no state; the type
// exists to give the decode step a name matching the rest of the component
// design and a seam for future header versioning.
func NewBatchDecoder() *BatchDecoder {
	return &BatchDecoder{}
}

// DecodeHeader validates record's minimum length and extracts its sequence
// header. A record shorter than core.MinRecordSize is corruption, not a
// programming error, and is reported by the caller rather than panicking
// here.
func (d *BatchDecoder) DecodeHeader(record []byte) (decodedHeader, core.Status) {
	if len(record) < core.MinRecordSize {
		return decodedHeader{}, core.NewCorruption("very small log record")
	}
	h := core.DecodeBatchHeader(record)
	return decodedHeader{startSeq: h.StartSequence, count: h.Count}, core.OkStatus
}
