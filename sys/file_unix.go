// file_unix.go
//go:build unix

package sys

import (
	"os"
	"path/filepath"
	"time"
)

// unixFiles implements File for Unix-like systems, where a segment file can
// be removed or renamed out from under an open descriptor -- the archiver
// relies on this when it swaps a live segment out for its recompressed
// replacement.
type unixFiles struct{}

type retryOptions struct {
	retries  int
	interval time.Duration
}

func (o *retryOptions) GetRetry() int {
	return o.retries
}

func (o *retryOptions) GetIntervalRetry() time.Duration {
	return o.interval
}

// NewFile returns the platform-specific File implementation.
func NewFile() File {
	return &unixFiles{}
}

func (f *unixFiles) Create(name string) (*os.File, error) {
	return os.Create(name)
}

func (f *unixFiles) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	return os.OpenFile(name, flag, perm)
}

func (f *unixFiles) Open(name string) (*os.File, error) {
	return os.Open(name)
}

// OpenWithRetry is a no-op retry on Unix: os.OpenFile doesn't fail with a
// transient sharing violation the way CreateFile can on Windows.
func (f *unixFiles) OpenWithRetry(path string, flag int, perm os.FileMode, maxRetries int, retryInterval time.Duration) (*os.File, error) {
	return f.OpenFile(path, flag, perm)
}

func (f *unixFiles) CreateTemp(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}

func (f *unixFiles) NewFile(fd uintptr, name string) *os.File {
	return os.NewFile(fd, name)
}

func (f *unixFiles) OpenInRoot(dir, name string) (*os.File, error) {
	// Thin helper over filepath.Join; callers needing symlink or containment
	// checks must perform them separately.
	return os.OpenFile(filepath.Join(dir, name), os.O_RDONLY, 0)
}

// SafeRemove retries a segment removal a handful of times before giving up,
// tolerating a brief window where another process still has the file open.
func (f *unixFiles) SafeRemove(name string) error {
	return f.SafeRemoveWithOption(name, &retryOptions{
		retries:  5,
		interval: 100 * time.Millisecond,
	})
}

func (f *unixFiles) SafeRemoveWithOption(name string, opts SafeRemoveOptions) error {
	var err error
	retry := opts.GetRetry()
	if retry < 1 || retry > 5 {
		retry = 5
	}

	for i := 0; i < retry; i++ {
		err = os.Remove(name)
		if err == nil || os.IsNotExist(err) {
			return nil
		}
		time.Sleep(opts.GetIntervalRetry() * time.Duration(1<<i))
	}
	return err
}

func (f *unixFiles) WriteFile(name string, data []byte, perm os.FileMode) error {
	return os.WriteFile(name, data, perm)
}

// GC is a no-op on Unix; there is no deferred-delete handle to release.
func (f *unixFiles) GC() error {
	return nil
}
