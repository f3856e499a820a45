package wal

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"

	"github.com/INLOpen/nexusbase/compressors"
	"github.com/INLOpen/nexusbase/core"
	"github.com/INLOpen/nexusbase/sys"
)

// ErrChecksumMismatch is returned by SegmentReader.ReadRecord when a record's
// trailing CRC32 does not match its payload. Callers treat this as
// corruption, not as end of file.
var ErrChecksumMismatch = errors.New("wal: record checksum mismatch")

// Segment represents a single WAL segment file, live or archived.
type Segment struct {
	file      sys.FileHandle
	path      string
	logNumber uint64
}

// SegmentWriter appends framed records to a live segment file. Every record
// it writes is compressed with the compressor named by the segment's file
// header before framing.
type SegmentWriter struct {
	*Segment
	writer     *bufio.Writer
	compressor core.Compressor
	compressed bytes.Buffer
}

// SegmentReader reads framed records from a segment file, live or archived.
// It backs this repository's frame reader: ReadRecord/IsEOF/ClearEOF give the
// iterator the ability to stop at a transient end of file and resume once a
// concurrent writer has appended more data.
type SegmentReader struct {
	*Segment
	reader          *bufio.Reader
	atEOF           bool
	scratch         []byte
	verifyChecksums bool
	compressor      core.Compressor
}

// CreateSegment creates a new live segment file in dir for logNumber. Live
// segments are always written with core.CompressionNone: the append path
// never pays codec latency, and only the archiver recompresses a segment
// once it is rotated out.
func CreateSegment(dir string, logNumber uint64) (*SegmentWriter, error) {
	return createSegment(dir, logNumber, &compressors.NoCompressionCompressor{})
}

// CreateCompressedSegment creates a new segment file in dir for logNumber
// whose records are compressed with compressor. It exists for the WAL
// archiver, which rewrites a rotated-out segment under a configured codec;
// ordinary live-segment creation should use CreateSegment instead.
func CreateCompressedSegment(dir string, logNumber uint64, compressor core.Compressor) (*SegmentWriter, error) {
	return createSegment(dir, logNumber, compressor)
}

func createSegment(dir string, logNumber uint64, compressor core.Compressor) (*SegmentWriter, error) {
	return createSegmentAtPath(core.LivePath(dir, logNumber), logNumber, compressor)
}

// createSegmentAtPath is createSegment with an explicit destination path,
// used by the archiver to write a recompressed copy under a temporary name
// before it is renamed over the original.
func createSegmentAtPath(path string, logNumber uint64, compressor core.Compressor) (*SegmentWriter, error) {
	file, err := sys.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create segment file %s: %w", path, err)
	}

	header := core.NewFileHeader(core.WALMagicNumber, compressor.Type())
	if err := binary.Write(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to write segment header to %s: %w", path, err)
	}

	seg := &Segment{file: file, path: path, logNumber: logNumber}
	return &SegmentWriter{Segment: seg, writer: bufio.NewWriter(file), compressor: compressor}, nil
}

// OpenSegmentForRead opens an existing segment file at path for reading. The
// caller decides whether path names a live or archived segment; the on-disk
// format is identical either way. When verifyChecksums is false, ReadRecord
// never inspects a record's trailing CRC and returns whatever bytes are
// framed there even if they don't match; this exists for forensic recovery
// tools that need to see data a strict reader would refuse, and should not
// be used for ordinary replay.
func OpenSegmentForRead(path string, verifyChecksums bool) (*SegmentReader, error) {
	file, err := sys.OpenFile(path, os.O_RDONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open segment file for reading %s: %w", path, err)
	}

	var header core.FileHeader
	if err := binary.Read(file, binary.LittleEndian, &header); err != nil {
		file.Close()
		if err == io.EOF {
			return nil, fmt.Errorf("segment file %s is empty or truncated at header", path)
		}
		return nil, fmt.Errorf("failed to read segment header from %s: %w", path, err)
	}
	if header.Magic != core.WALMagicNumber {
		file.Close()
		return nil, fmt.Errorf("invalid magic number in segment %s: got %x, want %x", path, header.Magic, core.WALMagicNumber)
	}

	logNumber, err := core.ParseSegmentFileName(filepath.Base(path))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("could not parse segment log number from path %s: %w", path, err)
	}

	compressor, err := compressors.For(header.CompressorType)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("segment %s: %w", path, err)
	}

	seg := &Segment{file: file, path: path, logNumber: logNumber}
	return &SegmentReader{Segment: seg, reader: bufio.NewReader(file), verifyChecksums: verifyChecksums, compressor: compressor}, nil
}

// WriteRecord writes a single record to the segment. The record's payload is
// compressed with the segment's compressor before framing.
// Format: length (4 bytes) | compressed data (variable) | checksum (4 bytes)
// The checksum covers the compressed bytes as written, not the original data.
func (sw *SegmentWriter) WriteRecord(data []byte) error {
	if sw.file == nil {
		return os.ErrClosed
	}

	if err := sw.compressor.CompressTo(&sw.compressed, data); err != nil {
		return fmt.Errorf("failed to compress record: %w", err)
	}
	compressed := sw.compressed.Bytes()

	if err := binary.Write(sw.writer, binary.LittleEndian, uint32(len(compressed))); err != nil {
		return fmt.Errorf("failed to write record length: %w", err)
	}
	if _, err := sw.writer.Write(compressed); err != nil {
		return fmt.Errorf("failed to write record data: %w", err)
	}
	checksum := crc32.ChecksumIEEE(compressed)
	if err := binary.Write(sw.writer, binary.LittleEndian, checksum); err != nil {
		return fmt.Errorf("failed to write record checksum: %w", err)
	}
	return nil
}

// ReadRecord reads and validates the next framed record. It returns io.EOF
// when the reader is cleanly out of bytes between records (the normal, and
// possibly temporary, tail of a live segment), and io.ErrUnexpectedEOF when a
// record was only partially written before the process that wrote it died.
func (sr *SegmentReader) ReadRecord() ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(sr.reader, lenBuf[:]); err != nil {
		sr.atEOF = true
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, io.ErrUnexpectedEOF
	}
	length := binary.LittleEndian.Uint32(lenBuf[:])

	if cap(sr.scratch) < int(length) {
		sr.scratch = make([]byte, length)
	}
	data := sr.scratch[:length]
	if _, err := io.ReadFull(sr.reader, data); err != nil {
		sr.atEOF = true
		return nil, io.ErrUnexpectedEOF
	}

	var checksumBuf [4]byte
	if _, err := io.ReadFull(sr.reader, checksumBuf[:]); err != nil {
		sr.atEOF = true
		return nil, io.ErrUnexpectedEOF
	}
	if sr.verifyChecksums {
		wantChecksum := binary.LittleEndian.Uint32(checksumBuf[:])
		gotChecksum := crc32.ChecksumIEEE(data)
		if gotChecksum != wantChecksum {
			return nil, fmt.Errorf("%w in %s: got %08x, want %08x", ErrChecksumMismatch, sr.path, gotChecksum, wantChecksum)
		}
	}

	sr.atEOF = false
	rc, err := sr.compressor.Decompress(data)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress record in %s: %w", sr.path, err)
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read decompressed record in %s: %w", sr.path, err)
	}
	return out, nil
}

// IsEOF reports whether the last ReadRecord call ended at, or beyond, the
// current end of the underlying file.
func (sr *SegmentReader) IsEOF() bool {
	return sr.atEOF
}

// ClearEOF drops the buffered reader's stale end-of-file state and resumes
// reading from the file's current offset, making bytes appended by a live
// writer after the last EOF visible without reopening the segment.
func (sr *SegmentReader) ClearEOF() {
	if sr.file == nil {
		return
	}
	pos, err := sr.file.Seek(0, io.SeekCurrent)
	if err != nil {
		return
	}
	sr.reader = bufio.NewReader(io.NewSectionReader(sr.file, pos, 1<<62))
	sr.atEOF = false
}

// Sync flushes the buffered writer and syncs the file to disk.
func (sw *SegmentWriter) Sync() error {
	if err := sw.writer.Flush(); err != nil {
		return err
	}
	return sw.file.Sync()
}

// Close flushes and closes the segment file.
func (sw *SegmentWriter) Close() error {
	if sw.file == nil {
		return nil
	}
	err := sw.Sync()
	closeErr := sw.file.Close()
	sw.file = nil
	if err != nil {
		return err
	}
	return closeErr
}

// Close closes the segment file.
func (sr *SegmentReader) Close() error {
	if sr.file == nil {
		return nil
	}
	err := sr.file.Close()
	sr.file = nil
	return err
}

// Size returns the current size of the segment file.
func (s *Segment) Size() (int64, error) {
	if s.file == nil {
		return 0, os.ErrClosed
	}
	stat, err := s.file.Stat()
	if err != nil {
		return 0, err
	}
	return stat.Size(), nil
}

// LogNumber returns the segment's log number.
func (s *Segment) LogNumber() uint64 { return s.logNumber }

// Path returns the segment's on-disk path.
func (s *Segment) Path() string { return s.path }
