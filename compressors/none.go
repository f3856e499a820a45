package compressors

import (
	"bytes"
	"io"

	"github.com/INLOpen/nexusbase/core"
)

// NoCompressionCompressor is used for live WAL segments, where records are
// written and fsynced on every append and a codec's latency would sit
// directly on that path. Archived segments substitute a real compressor
// when the rotation job recompresses them.
type NoCompressionCompressor struct{}

// rawRecordReader hands a record's raw bytes back through io.ReadCloser;
// there is no decoding step to fail or resources to release.
type rawRecordReader struct {
	*bytes.Reader
}

func (r *rawRecordReader) Close() error {
	return nil
}

var _ core.Compressor = (*NoCompressionCompressor)(nil)

func (c *NoCompressionCompressor) Compress(data []byte) ([]byte, error) {
	return data, nil
}

func (c *NoCompressionCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	return &rawRecordReader{Reader: bytes.NewReader(data)}, nil
}

func (c *NoCompressionCompressor) Type() core.CompressionType {
	return core.CompressionNone
}

// CompressTo copies src into dst verbatim, skipping the allocation that
// Compress's []byte return would require.
func (c *NoCompressionCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()
	_, err := dst.Write(src)
	return err
}
