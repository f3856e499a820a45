package compressors

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/INLOpen/nexusbase/core"
	lz4 "github.com/pierrec/lz4/v4"
)

// LZ4Compressor compresses record payloads with LZ4's block format (not the
// frame format lz4.NewWriter produces), matching the block-oriented
// Decompress below.
type LZ4Compressor struct{}

// lz4DecodedReader adapts a decompressed record's bytes.Reader to
// io.ReadCloser; there is nothing to release once decompression has
// completed into memory.
type lz4DecodedReader struct {
	*bytes.Reader
}

func (r *lz4DecodedReader) Close() error {
	return nil
}

var _ core.Compressor = (*LZ4Compressor)(nil)

func NewLz4Compressor() *LZ4Compressor {
	return &LZ4Compressor{}
}

func (c *LZ4Compressor) Compress(data []byte) ([]byte, error) {
	dst := make([]byte, lz4.CompressBlockBound(len(data)))
	n, err := lz4.CompressBlock(data, dst, nil)
	if err != nil {
		return nil, fmt.Errorf("lz4 compress error: %w", err)
	}
	if n == 0 && len(data) > 0 {
		return nil, fmt.Errorf("lz4 compression resulted in zero bytes for non-empty input")
	}
	return dst[:n], nil
}

func (c *LZ4Compressor) Decompress(data []byte) (io.ReadCloser, error) {
	// The pierrec/lz4 block format doesn't carry the original size, so we
	// must guess a destination size and grow on ErrInvalidSourceShortBuffer.
	if len(data) == 0 {
		return &lz4DecodedReader{Reader: bytes.NewReader(nil)}, nil
	}
	dstSize := len(data) * 3
	if dstSize < 1024 {
		dstSize = 1024
	}
	dst := make([]byte, dstSize)

	for {
		n, err := lz4.UncompressBlock(data, dst)
		if err == nil {
			return &lz4DecodedReader{Reader: bytes.NewReader(dst[:n])}, nil
		}

		if errors.Is(err, lz4.ErrInvalidSourceShortBuffer) {
			if len(dst) > 16*1024*1024 {
				return nil, fmt.Errorf("lz4 decompression buffer grew too large (>16MB)")
			}
			dst = make([]byte, len(dst)*2)
			continue
		}

		return nil, fmt.Errorf("lz4 decompress error: %w", err)
	}
}

func (c *LZ4Compressor) Type() core.CompressionType {
	return core.CompressionLZ4
}

// CompressTo compresses src into dst using a pooled scratch slice, so
// appending a WAL record doesn't allocate a fresh destination buffer on
// every call.
func (c *LZ4Compressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	dst.Reset()

	tmp := core.GetScratch(lz4.CompressBlockBound(len(src)))
	defer core.PutScratch(tmp)

	n, err := lz4.CompressBlock(src, tmp, nil)
	if err != nil {
		return fmt.Errorf("lz4 CompressTo block compress error: %w", err)
	}
	if n == 0 && len(src) > 0 {
		return fmt.Errorf("lz4 compression resulted in zero bytes for non-empty input")
	}

	dst.Write(tmp[:n])
	return nil
}
