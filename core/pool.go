package core

import (
	"bytes"
	"sync"
)

// GenericPool is a generic wrapper around sync.Pool
type GenericPool[T any] struct {
	pool sync.Pool
}

// NewGenericPool creates a new GenericPool with a function to create new items.
func NewGenericPool[T any](newItem func() T) *GenericPool[T] {
	return &GenericPool[T]{
		pool: sync.Pool{
			New: func() interface{} {
				return newItem()
			},
		},
	}
}

// Get retrieves an item from the pool.
func (p *GenericPool[T]) Get() T {
	return p.pool.Get().(T)
}

// Put returns an item to the pool.
func (p *GenericPool[T]) Put(item T) {
	p.pool.Put(item)
}

// BufferPool is a shared pool of scratch buffers. ZstdCompressor.Compress
// takes its output buffer from it, avoiding an allocation per call.
var BufferPool = NewGenericPool(func() *bytes.Buffer {
	return bytes.NewBuffer(make([]byte, 0, 4*1024))
})

// GetBuffer returns a reset, ready-to-use buffer from BufferPool.
func GetBuffer() *bytes.Buffer {
	buf := BufferPool.Get()
	buf.Reset()
	return buf
}

// PutBuffer returns buf to BufferPool.
func PutBuffer(buf *bytes.Buffer) {
	BufferPool.Put(buf)
}

// scratchPool holds pre-sized byte slices for block compressors (LZ4, Snappy)
// that need a caller-owned destination slice rather than an io.Writer. WAL
// records are small and written one at a time on the append path, so reusing
// this scratch space keeps CompressTo free of a fresh allocation per record.
var scratchPool = NewGenericPool(func() []byte {
	return make([]byte, 0, 4*1024)
})

// GetScratch returns a byte slice of length n from scratchPool, growing the
// backing array if the pooled slice is too small.
func GetScratch(n int) []byte {
	buf := scratchPool.Get()
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	return buf[:n]
}

// PutScratch returns buf to scratchPool.
func PutScratch(buf []byte) {
	scratchPool.Put(buf[:0])
}
