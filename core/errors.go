package core

import (
	"errors"
	"fmt"
)

// StatusCode classifies a Status the way the rest of the engine expects to
// switch on it: cleanly, without parsing message strings.
type StatusCode int

const (
	// StatusOK means the operation completed, or the iterator reached a
	// clean end of stream.
	StatusOK StatusCode = iota
	// StatusCorruption means on-disk data did not match the expected shape.
	// Some corruptions are advisory (reported, not latched); others are fatal.
	StatusCorruption
	// StatusNotFound means an expected sequence number or file was absent.
	// It is always transient in this codebase: either the caller's next
	// read recovers, or the recovery attempt itself latches a Corruption.
	StatusNotFound
	// StatusIOError wraps a filesystem error encountered while opening or
	// reading a log file.
	StatusIOError
)

func (c StatusCode) String() string {
	switch c {
	case StatusOK:
		return "OK"
	case StatusCorruption:
		return "Corruption"
	case StatusNotFound:
		return "NotFound"
	case StatusIOError:
		return "IOError"
	default:
		return "Unknown"
	}
}

// Status is a small, comparable result value modeled on the engine's
// convention of returning a status instead of panicking on malformed
// on-disk data. A zero Status is OK.
type Status struct {
	Code StatusCode
	Msg  string
	err  error // optional wrapped cause, e.g. an *os.PathError
}

// OkStatus is the canonical clean-result value.
var OkStatus = Status{Code: StatusOK}

func NewCorruption(msg string) Status {
	return Status{Code: StatusCorruption, Msg: msg}
}

func NewNotFound(msg string) Status {
	return Status{Code: StatusNotFound, Msg: msg}
}

func NewIOError(err error) Status {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Status{Code: StatusIOError, Msg: msg, err: err}
}

func (s Status) IsOK() bool         { return s.Code == StatusOK }
func (s Status) IsCorruption() bool { return s.Code == StatusCorruption }
func (s Status) IsNotFound() bool   { return s.Code == StatusNotFound }
func (s Status) IsIOError() bool    { return s.Code == StatusIOError }

func (s Status) Error() string {
	if s.IsOK() {
		return "OK"
	}
	if s.Msg == "" {
		return s.Code.String()
	}
	return fmt.Sprintf("%s: %s", s.Code, s.Msg)
}

// Unwrap exposes the underlying filesystem error, if any, so callers can
// still use errors.Is/errors.As against things like os.ErrNotExist.
func (s Status) Unwrap() error { return s.err }

// ValidationError is a custom error type for validation failures.
type ValidationError struct {
	Message string
	Field   string // e.g., "log_number", "sequence"
	Value   string // The invalid value
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s '%s': %s", e.Field, e.Value, e.Message)
}

// IsValidationError checks if an error is a ValidationError.
func IsValidationError(err error) bool {
	var validationError *ValidationError
	return errors.As(err, &validationError)
}
