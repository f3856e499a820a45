package compressors

import (
	"fmt"

	"github.com/INLOpen/nexusbase/core"
)

// For resolves a CompressionType to a ready-to-use Compressor. It is the
// single place that maps the on-disk CompressorType byte back to a concrete
// implementation, used by the WAL archiver when recompressing a rotated
// segment and by the segment reader when decoding one.
func For(t core.CompressionType) (core.Compressor, error) {
	switch t {
	case core.CompressionNone:
		return &NoCompressionCompressor{}, nil
	case core.CompressionSnappy:
		return NewSnappyCompressor(), nil
	case core.CompressionLZ4:
		return NewLz4Compressor(), nil
	case core.CompressionZSTD:
		return NewZstdCompressor(), nil
	default:
		return nil, fmt.Errorf("compressors: unknown compression type %d", t)
	}
}
