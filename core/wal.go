package core

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Batch is the unit of commit written to a WAL segment as a single framed
// record: a starting sequence number, the number of sequence numbers it
// occupies, and the entries themselves. Batch.Entries[i] logically owns
// sequence number StartSequence+i.
type Batch struct {
	StartSequence uint64
	Entries       []WALEntry
}

// Count returns the number of sequence numbers this batch occupies.
func (b Batch) Count() uint32 {
	return uint32(len(b.Entries))
}

// LastSequence returns the last sequence number covered by this batch.
func (b Batch) LastSequence() uint64 {
	return b.StartSequence + uint64(b.Count()) - 1
}

// EncodeBatch serializes a Batch into the wire format written to a WAL
// segment record: [start_seq:8][count:4][entry...]. This is the payload
// handed to SegmentWriter.WriteRecord, which adds its own length prefix and
// checksum around it.
func EncodeBatch(b *Batch) ([]byte, error) {
	if len(b.Entries) == 0 {
		return nil, fmt.Errorf("cannot encode an empty batch")
	}
	var buf bytes.Buffer
	var header [12]byte
	binary.LittleEndian.PutUint64(header[0:8], b.StartSequence)
	binary.LittleEndian.PutUint32(header[8:12], b.Count())
	buf.Write(header[:])
	for i := range b.Entries {
		if err := EncodeEntry(&buf, &b.Entries[i]); err != nil {
			return nil, fmt.Errorf("failed to encode entry %d of batch starting at %d: %w", i, b.StartSequence, err)
		}
	}
	return buf.Bytes(), nil
}

// BatchHeader is the fixed-size prefix of every record payload: the batch's
// starting sequence number and the count of sequence numbers it occupies.
// It is decoded before the entries themselves so that a corrupt or
// truncated entry stream doesn't stop the iterator from at least learning
// where the batch was supposed to sit in the sequence space.
type BatchHeader struct {
	StartSequence uint64
	Count         uint32
}

// LastSequence returns the last sequence number the header's batch covers.
func (h BatchHeader) LastSequence() uint64 {
	return h.StartSequence + uint64(h.Count) - 1
}

// DecodeBatchHeader reads the fixed 12-byte header from a record payload.
// The caller must have already verified len(record) >= MinRecordSize.
func DecodeBatchHeader(record []byte) BatchHeader {
	return BatchHeader{
		StartSequence: binary.LittleEndian.Uint64(record[0:8]),
		Count:         binary.LittleEndian.Uint32(record[8:12]),
	}
}

// DecodeBatch fully decodes a record payload into a Batch, including all
// entries. The transaction-log iterator itself never needs to go this far;
// it only needs the header. Consumers of the delivered payload (e.g. an
// applier replaying entries into a memtable) use this instead.
func DecodeBatch(record []byte) (*Batch, error) {
	if len(record) < MinRecordSize {
		return nil, fmt.Errorf("record too small to contain a batch header: got %d bytes, want at least %d", len(record), MinRecordSize)
	}
	header := DecodeBatchHeader(record)
	r := bytes.NewReader(record[12:])
	entries := make([]WALEntry, 0, header.Count)
	for i := uint32(0); i < header.Count; i++ {
		entry, err := DecodeEntry(r)
		if err != nil {
			return nil, fmt.Errorf("failed to decode entry %d of %d in batch starting at %d: %w", i, header.Count, header.StartSequence, err)
		}
		entries = append(entries, *entry)
	}
	return &Batch{StartSequence: header.StartSequence, Entries: entries}, nil
}
