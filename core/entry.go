package core

import (
	"encoding/binary"
	"fmt"
	"io"
)

// EntryType defines the kind of a single operation carried inside a batch.
type EntryType byte

const (
	// EntryTypePut represents a single key/value write.
	EntryTypePut EntryType = 'P'
	// EntryTypeDelete represents a tombstone for a single key.
	EntryTypeDelete EntryType = 'D'
	// EntryTypeDeleteRange represents a tombstone for a contiguous key range.
	EntryTypeDeleteRange EntryType = 'R'
)

func (t EntryType) String() string {
	switch t {
	case EntryTypePut:
		return "Put"
	case EntryTypeDelete:
		return "Delete"
	case EntryTypeDeleteRange:
		return "DeleteRange"
	default:
		return fmt.Sprintf("EntryType(%c)", byte(t))
	}
}

// WALEntry is a single logical operation inside a committed batch. It carries
// no sequence number of its own: a batch's entries occupy the contiguous
// range [Batch.StartSequence, Batch.StartSequence+Batch.Count-1] by position.
type WALEntry struct {
	EntryType EntryType
	Key       []byte
	Value     []byte
}

// EncodeEntry appends the wire encoding of a single WALEntry to w.
func EncodeEntry(w io.Writer, entry *WALEntry) error {
	if _, err := w.Write([]byte{byte(entry.EntryType)}); err != nil {
		return err
	}

	keyLenBuf := make([]byte, binary.MaxVarintLen32)
	n := binary.PutUvarint(keyLenBuf, uint64(len(entry.Key)))
	if _, err := w.Write(keyLenBuf[:n]); err != nil {
		return err
	}
	if _, err := w.Write(entry.Key); err != nil {
		return err
	}

	valLenBuf := make([]byte, binary.MaxVarintLen32)
	n = binary.PutUvarint(valLenBuf, uint64(len(entry.Value)))
	if _, err := w.Write(valLenBuf[:n]); err != nil {
		return err
	}
	_, err := w.Write(entry.Value)
	return err
}

// DecodeEntry reads a single WALEntry previously written by EncodeEntry.
func DecodeEntry(r io.Reader) (*WALEntry, error) {
	br, ok := r.(io.ByteReader)
	if !ok {
		return nil, fmt.Errorf("DecodeEntry requires an io.ByteReader")
	}

	typeByte, err := br.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("failed to read entry type: %w", err)
	}

	keyLen, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read key length: %w", err)
	}
	key := make([]byte, keyLen)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("failed to read key: %w", err)
	}

	valLen, err := binary.ReadUvarint(br)
	if err != nil {
		return nil, fmt.Errorf("failed to read value length: %w", err)
	}
	var value []byte
	if valLen > 0 {
		value = make([]byte, valLen)
		if _, err := io.ReadFull(r, value); err != nil {
			return nil, fmt.Errorf("failed to read value: %w", err)
		}
	}

	return &WALEntry{EntryType: EntryType(typeByte), Key: key, Value: value}, nil
}
