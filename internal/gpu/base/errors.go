package base

import (
	"errors"
	"fmt"
	"io/fs"
)

type StatusCode string

const (
	StatusNotSupported   StatusCode = "NOT_SUPPORTED"
	StatusNotFound       StatusCode = "NOT_FOUND"
	StatusNoPermission   StatusCode = "NO_PERMISSION"
	StatusInitFailed     StatusCode = "INIT_FAILED"
	StatusUnexpectedData StatusCode = "UNEXPECTED_DATA"
	StatusIO             StatusCode = "IO"
)

// SMIError is the error every Library method returns. Op names the query
// that failed, e.g. "temperature".
type SMIError struct {
	Code StatusCode
	Op   string
	Err  error
}

func (e *SMIError) Error() string {
	msg := fmt.Sprintf("[%s]", e.Code)
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += " " + e.Err.Error()
	}
	return msg
}

func (e *SMIError) Unwrap() error {
	return e.Err
}

// Is matches any *SMIError carrying the same code, so
// errors.Is(err, ErrNotSupported) works for wrapped errors.
func (e *SMIError) Is(target error) bool {
	var t *SMIError
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Code == e.Code
}

var (
	ErrNotSupported = &SMIError{Code: StatusNotSupported}
	ErrNotFound     = &SMIError{Code: StatusNotFound}
	ErrNotInit      = &SMIError{Code: StatusInitFailed, Err: errors.New("library not initialized")}
)

func NewError(code StatusCode, op string, err error) *SMIError {
	return &SMIError{Code: code, Op: op, Err: err}
}

func Errorf(code StatusCode, op, format string, args ...any) *SMIError {
	return &SMIError{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// FromOS classifies a filesystem error: a missing attribute means the
// driver does not expose the metric.
func FromOS(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return NewError(StatusNotSupported, op, err)
	case errors.Is(err, fs.ErrPermission):
		return NewError(StatusNoPermission, op, err)
	}
	return NewError(StatusIO, op, err)
}

// CodeOf returns the status code carried by err, or "" when err is not an SMIError.
func CodeOf(err error) StatusCode {
	var se *SMIError
	if errors.As(err, &se) {
		return se.Code
	}
	return ""
}

func IsNotSupported(err error) bool {
	return CodeOf(err) == StatusNotSupported
}
