package sys

import (
	"io"
	"os"
)

var _ FileHandle = (*osFile)(nil)

// osFile adapts an *os.File to the FileHandle interface segment readers and
// writers depend on, so tests can substitute a fake in its place.
type osFile struct {
	f *os.File
}

// newCreateHandle opens name read-write, creating it if absent and
// truncating any existing segment file at that path.
func newCreateHandle(files File, name string) (FileHandle, error) {
	return newOpenHandle(files, name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// newReadHandle opens name read-only.
func newReadHandle(files File, name string) (FileHandle, error) {
	return newOpenHandle(files, name, os.O_RDONLY, 0)
}

func newOpenHandle(files File, name string, flag int, perm os.FileMode) (FileHandle, error) {
	f, err := files.OpenFile(name, flag, perm)
	if err != nil {
		return nil, err
	}
	return &osFile{f: f}, nil
}

func (h *osFile) Write(p []byte) (n int, err error) {
	return h.f.Write(p)
}

func (h *osFile) Read(p []byte) (n int, err error) {
	return h.f.Read(p)
}

func (h *osFile) Seek(offset int64, whence int) (int64, error) {
	return h.f.Seek(offset, whence)
}

func (h *osFile) Stat() (os.FileInfo, error) {
	return h.f.Stat()
}

func (h *osFile) Sync() error {
	return h.f.Sync()
}

func (h *osFile) Truncate(size int64) error {
	return h.f.Truncate(size)
}

func (h *osFile) Name() string {
	return h.f.Name()
}

func (h *osFile) WriteAt(p []byte, off int64) (n int, err error) {
	return h.f.WriteAt(p, off)
}

func (h *osFile) ReadAt(p []byte, off int64) (n int, err error) {
	return h.f.ReadAt(p, off)
}

func (h *osFile) WriteString(s string) (n int, err error) {
	return h.f.WriteString(s)
}

func (h *osFile) WriteTo(w io.Writer) (n int64, err error) {
	return h.f.WriteTo(w)
}

func (h *osFile) ReadFrom(r io.Reader) (n int64, err error) {
	return h.f.ReadFrom(r)
}

func (h *osFile) Close() error {
	return h.f.Close()
}
