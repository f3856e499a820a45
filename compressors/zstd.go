package compressors

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"sync"

	"github.com/INLOpen/nexusbase/core"
	"github.com/klauspost/compress/zstd"
)

// ZstdCompressor is used for archived segments where the rotation job
// trades higher compression latency for a smaller retained footprint;
// encoders and decoders are pooled since each carries its own window
// buffers and is too costly to allocate per record.
type ZstdCompressor struct {
	encoderPool sync.Pool
	decoderPool sync.Pool
}

// zstdDecodedReader returns its zstd.Decoder to the compressor's pool on
// Close instead of tearing it down, so the next decompress call can reuse
// it.
type zstdDecodedReader struct {
	*zstd.Decoder
	pool *sync.Pool
}

func (r *zstdDecodedReader) Close() error {
	// zstd.Decoder.Close invalidates the decoder; returning it to the pool
	// instead keeps its window buffers around for reuse.
	r.pool.Put(r.Decoder)
	return nil
}

var _ core.Compressor = (*ZstdCompressor)(nil)
var _ io.ReadCloser = (*zstdDecodedReader)(nil)

func NewZstdCompressor() *ZstdCompressor {
	return &ZstdCompressor{
		encoderPool: sync.Pool{
			New: func() interface{} {
				enc, err := zstd.NewWriter(nil)
				if err != nil {
					log.Printf("compressors: failed to create zstd encoder: %v", err)
					return nil
				}
				return enc
			},
		},
		decoderPool: sync.Pool{
			New: func() interface{} {
				dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(100*1024*1024))
				if err != nil {
					log.Printf("compressors: failed to create zstd decoder: %v", err)
					return nil
				}
				return dec
			},
		},
	}
}

func (c *ZstdCompressor) Compress(data []byte) ([]byte, error) {
	enc := c.encoderPool.Get().(*zstd.Encoder)
	defer c.encoderPool.Put(enc)

	buf := core.GetBuffer()
	defer core.PutBuffer(buf)

	enc.Reset(buf)
	if _, err := enc.Write(data); err != nil {
		return nil, fmt.Errorf("zstd compress write error: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("zstd compress close error: %w", err)
	}

	// buf is returned to the pool below, so the caller needs its own copy.
	compressedData := make([]byte, buf.Len())
	copy(compressedData, buf.Bytes())
	return compressedData, nil
}

func (c *ZstdCompressor) Decompress(data []byte) (io.ReadCloser, error) {
	dec := c.decoderPool.Get().(*zstd.Decoder)

	if err := dec.Reset(bytes.NewReader(data)); err != nil {
		c.decoderPool.Put(dec)
		return nil, fmt.Errorf("zstd decoder reset error: %w", err)
	}

	return &zstdDecodedReader{Decoder: dec, pool: &c.decoderPool}, nil
}

func (c *ZstdCompressor) Type() core.CompressionType {
	return core.CompressionZSTD
}

// CompressTo compresses src directly into dst, reusing a pooled encoder.
func (c *ZstdCompressor) CompressTo(dst *bytes.Buffer, src []byte) error {
	enc := c.encoderPool.Get().(*zstd.Encoder)
	defer c.encoderPool.Put(enc)

	dst.Reset()
	enc.Reset(dst)

	if _, err := enc.Write(src); err != nil {
		_ = enc.Close()
		return fmt.Errorf("zstd compress (to) write error: %w", err)
	}

	return enc.Close()
}
