package compressors

import (
	"bytes"
	"fmt"
	"io"

	"github.com/INLOpen/nexusbase/core"
	"github.com/golang/snappy"
)

// SnappyCompressor compresses record payloads with Snappy's block format.
type SnappyCompressor struct{}

// snappyDecodedReader adapts a decompressed record's bytes.Reader to
// io.ReadCloser; the decompressed bytes already live in memory, so Close
// has nothing to release.
type snappyDecodedReader struct {
	*bytes.Reader
}

func (r *snappyDecodedReader) Close() error {
	return nil
}

var _ core.Compressor = (*SnappyCompressor)(nil)
var _ io.ReadCloser = (*snappyDecodedReader)(nil)

func NewSnappyCompressor() *SnappyCompressor {
	return &SnappyCompressor{}
}

func (c *SnappyCompressor) Compress(data []byte) ([]byte, error) {
	return snappy.Encode(nil, data), nil
}

func (c *SnappyCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	decompressed, err := snappy.Decode(nil, data)
	if err != nil {
		return nil, fmt.Errorf("snappy decompress error: %w", err)
	}
	return &snappyDecodedReader{Reader: bytes.NewReader(decompressed)}, nil
}

func (c *SnappyCompressor) Type() core.CompressionType {
	return core.CompressionSnappy
}

// CompressTo compresses src into dst using a pooled scratch slice as
// snappy.Encode's destination, so appending a WAL record doesn't allocate a
// fresh destination slice on every call.
func (c *SnappyCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()

	tmp := core.GetScratch(snappy.MaxEncodedLen(len(src)))
	defer core.PutScratch(tmp)

	compressed := snappy.Encode(tmp, src)
	dst.Write(compressed)
	return nil
}
