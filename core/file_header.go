package core

import (
	"encoding/binary"
	"time"
)

// FileHeader is the fixed-size preamble written at the start of every WAL
// segment file, live or archived. It records enough for a reader to
// validate the file before trusting its records and to know which
// compressor decodes them.
type FileHeader struct {
	Magic          uint32
	Version        uint8
	CreatedAt      int64 // UnixNano timestamp the segment was created
	CompressorType CompressionType
}

// Size returns the header's fixed on-disk width in bytes.
func (h *FileHeader) Size() int {
	return binary.Size(h)
}

// NewFileHeader builds a header stamped with the current format version and
// creation time for a segment about to be written with compressorType.
func NewFileHeader(magic uint32, compressorType CompressionType) FileHeader {
	return FileHeader{
		Magic:          magic,
		Version:        FormatVersion,
		CreatedAt:      time.Now().UnixNano(),
		CompressorType: compressorType,
	}
}
