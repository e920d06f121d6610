package journal

import (
	ijournal "github.com/cowfs/cowjournal/internal/journal"
)

// Error, ErrorCode and the constructors below are thin re-exports of the
// internal/journal types the core actually produces, so consumers never
// need to import an internal package to handle a journal error.
type (
	Error     = ijournal.Error
	ErrorCode = ijournal.ErrorCode
)

const (
	ErrCodeNoSpace     = ijournal.ErrCodeNoSpace
	ErrCodeReadOnly    = ijournal.ErrCodeReadOnly
	ErrCodeIO          = ijournal.ErrCodeIO
	ErrCodeInterrupted = ijournal.ErrCodeInterrupted
	ErrCodeOOM         = ijournal.ErrCodeOOM
)

var (
	ErrNoSpace     = ijournal.ErrNoSpace
	ErrReadOnly    = ijournal.ErrReadOnly
	ErrIO          = ijournal.ErrIO
	ErrInterrupted = ijournal.ErrInterrupted
	ErrOOM         = ijournal.ErrOOM
)

// NewError creates a structured error for the given operation.
func NewError(op string, code ErrorCode, msg string) *Error {
	return ijournal.NewError(op, code, msg)
}

// NewSeqError creates a structured error scoped to a sequence number.
func NewSeqError(op string, seq uint64, code ErrorCode, msg string) *Error {
	return ijournal.NewSeqError(op, seq, code, msg)
}

// NewDeviceError creates a structured error scoped to a device index.
func NewDeviceError(op string, dev int, code ErrorCode, msg string) *Error {
	return ijournal.NewDeviceError(op, dev, code, msg)
}

// WrapDeviceError wraps a device I/O failure with journal context.
func WrapDeviceError(op string, dev int, inner error) *Error {
	return ijournal.WrapDeviceError(op, dev, inner)
}

// IsCode reports whether err is a *Error with the given category.
func IsCode(err error, code ErrorCode) bool {
	return ijournal.IsCode(err, code)
}
