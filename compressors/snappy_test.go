package compressors

import (
	"bytes"
	"io"
	"testing"

	"github.com/INLOpen/nexusbase/core"
)

func TestSnappyCompressor(t *testing.T) {
	compressor := NewSnappyCompressor()

	if compressor.Type() != core.CompressionSnappy {
		t.Errorf("SnappyCompressor.Type() got = %v, want %v", compressor.Type(), core.CompressionSnappy)
	}

	testCases := []struct {
		name string
		data []byte
	}{
		{
			name: "single small record",
			data: []byte(`{"seq":1,"key":"host-01.cpu","value":42.5}`),
		},
		{
			name: "repetitive batch payload",
			data: bytes.Repeat([]byte("a"), 1024),
		},
		{
			name: "empty record",
			data: []byte{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			compressed, err := compressor.Compress(tc.data)
			if err != nil {
				t.Fatalf("Compress() returned an unexpected error: %v", err)
			}

			decompressedReader, err := compressor.Decompress(compressed)
			if err != nil {
				t.Fatalf("Decompress() returned an unexpected error: %v", err)
			}
			defer decompressedReader.Close()

			decompressed, err := io.ReadAll(decompressedReader)
			if err != nil {
				t.Fatalf("failed to read decompressed data: %v", err)
			}
			if !bytes.Equal(tc.data, decompressed) {
				t.Errorf("Decompressed data from Compress does not match original data")
			}

			var buf bytes.Buffer
			if err := compressor.CompressTo(&buf, tc.data); err != nil {
				t.Fatalf("CompressTo() returned an unexpected error: %v", err)
			}

			decompressedReaderFromTo, err := compressor.Decompress(buf.Bytes())
			if err != nil {
				t.Fatalf("Decompress() after CompressTo() returned an unexpected error: %v", err)
			}
			defer decompressedReaderFromTo.Close()

			decompressedFromTo, err := io.ReadAll(decompressedReaderFromTo)
			if err != nil {
				t.Fatalf("failed to read decompressed data after CompressTo: %v", err)
			}
			if !bytes.Equal(tc.data, decompressedFromTo) {
				t.Errorf("Decompressed data from CompressTo does not match original data")
			}
		})
	}
}

// TestSnappyCompressor_CompressToReusesScratch appends several WAL records
// back to back through the same compressor, exercising the pooled scratch
// slice CompressTo returns to core.PutScratch between calls.
func TestSnappyCompressor_CompressToReusesScratch(t *testing.T) {
	compressor := NewSnappyCompressor()
	records := [][]byte{
		[]byte(`{"seq":1,"key":"a"}`),
		bytes.Repeat([]byte("b"), 4096),
		[]byte{},
		[]byte(`{"seq":4,"key":"d","value":123.456}`),
	}

	var buf bytes.Buffer
	for _, rec := range records {
		if err := compressor.CompressTo(&buf, rec); err != nil {
			t.Fatalf("CompressTo() returned an unexpected error: %v", err)
		}
		reader, err := compressor.Decompress(buf.Bytes())
		if err != nil {
			t.Fatalf("Decompress() returned an unexpected error: %v", err)
		}
		got, err := io.ReadAll(reader)
		reader.Close()
		if err != nil {
			t.Fatalf("failed to read decompressed data: %v", err)
		}
		if !bytes.Equal(rec, got) {
			t.Errorf("round trip mismatch: want %q, got %q", rec, got)
		}
	}
}

func BenchmarkSnappyCompress(b *testing.B) {
	compressor := NewSnappyCompressor()
	data := []byte(`{"metric":"cpu.usage","tags":{"host":"server-a","region":"us-east-1"},"timestamp":1678886400000000000,"fields":{"value":99.8}}`)
	data = bytes.Repeat(data, 50)

	b.ResetTimer()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := compressor.Compress(data); err != nil {
			b.Fatalf("Compress() error: %v", err)
		}
	}
}

func BenchmarkSnappyCompressTo(b *testing.B) {
	compressor := NewSnappyCompressor()
	data := []byte(`{"metric":"cpu.usage","tags":{"host":"server-a","region":"us-east-1"},"timestamp":1678886400000000000,"fields":{"value":99.8}}`)
	data = bytes.Repeat(data, 50)

	var buf bytes.Buffer
	b.ResetTimer()
	b.SetBytes(int64(len(data)))
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if err := compressor.CompressTo(&buf, data); err != nil {
			b.Fatalf("CompressTo() error: %v", err)
		}
	}
}
