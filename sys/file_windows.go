// file_windows.go
//go:build windows

package sys

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/windows"
)

// windowsFiles implements File for Windows using CreateFile directly with
// FILE_SHARE_DELETE, since the archiver needs to rename or remove a segment
// file while it may still be open elsewhere -- something os.OpenFile alone
// can't grant on this platform.
type windowsFiles struct{}

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
	return &windowsFiles{}
}

func (f *windowsFiles) Create(name string) (*os.File, error) {
	return f.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
}

// OpenFile opens a segment file with FILE_SHARE_DELETE set, so a segment can
// be rotated out from under a reader without the OS refusing the rename.
func (f *windowsFiles) OpenFile(name string, flag int, perm os.FileMode) (*os.File, error) {
	var access uint32
	var creationDisposition uint32
	var shareMode uint32 = windows.FILE_SHARE_READ | windows.FILE_SHARE_WRITE | windows.FILE_SHARE_DELETE

	if flag&os.O_RDWR != 0 {
		access = windows.GENERIC_READ | windows.GENERIC_WRITE
	} else if flag&os.O_WRONLY != 0 {
		access = windows.GENERIC_WRITE
	} else {
		access = windows.GENERIC_READ
	}

	if flag&os.O_CREATE != 0 {
		if flag&os.O_EXCL != 0 {
			creationDisposition = windows.CREATE_NEW
		} else {
			creationDisposition = windows.OPEN_ALWAYS
		}
	} else {
		creationDisposition = windows.OPEN_EXISTING
	}

	if flag&os.O_TRUNC != 0 {
		if creationDisposition == windows.OPEN_EXISTING {
			creationDisposition = windows.TRUNCATE_EXISTING
		} else {
			creationDisposition = windows.CREATE_ALWAYS
		}
	}

	pathp, err := syscall.UTF16PtrFromString(name)
	if err != nil {
		return nil, err
	}

	handle, err := windows.CreateFile(
		pathp,
		access,
		shareMode,
		nil,
		creationDisposition,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		if errno, ok := err.(syscall.Errno); ok {
			if errno == windows.ERROR_FILE_NOT_FOUND {
				return nil, os.ErrNotExist
			}
			if errno == windows.ERROR_ACCESS_DENIED {
				return nil, fmt.Errorf("windows CreateFile failed for %s: Access is denied: %w", name, err)
			}
		}
		return nil, fmt.Errorf("windows CreateFile failed for %s: %w", name, err)
	}

	file := os.NewFile(uintptr(handle), name)

	if flag&os.O_APPEND != 0 {
		if _, err := file.Seek(0, io.SeekEnd); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to seek to end for append on %s: %w", name, err)
		}
	}

	return file, nil
}

func (f *windowsFiles) Open(name string) (*os.File, error) {
	return f.OpenFile(name, os.O_RDONLY, 0)
}

// SafeRemove retries a segment removal a handful of times, since Windows can
// briefly refuse to delete a file a reader has only just closed.
func (f *windowsFiles) SafeRemove(name string) error {
	return f.SafeRemoveWithOption(name, &retryOptions{
		retries:  5,
		interval: 100 * time.Millisecond,
	})
}

func (f *windowsFiles) SafeRemoveWithOption(name string, opts SafeRemoveOptions) error {
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

func (f *windowsFiles) WriteFile(name string, data []byte, perm os.FileMode) error {
	fh, err := f.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return err
	}

	_, err = fh.Write(data)
	if err1 := fh.Close(); err1 != nil && err == nil {
		err = err1
	}
	return err
}

func (f *windowsFiles) OpenWithRetry(path string, flag int, perm os.FileMode, maxRetries int, retryInterval time.Duration) (*os.File, error) {
	var file *os.File
	var err error

	for i := 0; i < maxRetries; i++ {
		file, err = f.OpenFile(path, flag, perm)
		if err == nil {
			return file, nil
		}
		if strings.Contains(err.Error(), "Access is denied") {
			time.Sleep(retryInterval * time.Duration(1<<i))
			continue
		}
		return nil, err
	}
	return nil, err
}

func (f *windowsFiles) CreateTemp(dir, pattern string) (*os.File, error) {
	return os.CreateTemp(dir, pattern)
}

func (f *windowsFiles) NewFile(fd uintptr, name string) *os.File {
	return os.NewFile(fd, name)
}

func (f *windowsFiles) OpenInRoot(dir, name string) (*os.File, error) {
	return f.OpenFile(filepath.Join(dir, name), os.O_RDONLY, 0)
}

// GC gives the OS a moment to release any handles pending finalization
// before a retried remove; Windows' delete-on-close semantics can lag a GC
// cycle behind Go's own garbage collector.
func (f *windowsFiles) GC() error {
	runtime.GC()
	time.Sleep(100 * time.Millisecond)
	return nil
}
