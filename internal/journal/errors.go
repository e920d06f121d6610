package journal

import (
	"errors"
	"fmt"
	"syscall"
)

// Error represents a structured journal error with context and errno mapping.
type Error struct {
	Op    string // Operation that failed (e.g., "res_get", "switch_buffer")
	Seq   uint64 // Sequence number (0 if not applicable)
	Dev   int    // Device index (-1 if not applicable)
	Code  ErrorCode
	Errno syscall.Errno
	Msg   string
	Inner error
}

// Error implements the error interface.
func (e *Error) Error() string {
	var parts []string

	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Seq != 0 {
		parts = append(parts, fmt.Sprintf("seq=%d", e.Seq))
	}
	if e.Dev >= 0 {
		parts = append(parts, fmt.Sprintf("dev=%d", e.Dev))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}

	if len(parts) > 0 {
		return fmt.Sprintf("journal: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("journal: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Inner
}

// Is provides errors.Is support keyed on error category.
func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// ErrorCode is the high-level category of a journal error.
type ErrorCode string

// Error categories named in the consumer API's return contract: res_get
// returns ReadOnly when the filesystem is read-only and IO on journal
// error state; res_get_slow's wait yields Interrupted when its context is
// cancelled. WrapDeviceError maps a device's ENOSPC, EROFS, EINTR and
// ENOMEM to NoSpace, ReadOnly, Interrupted and OOM, and any other device
// error to IO. When the PinFIFO or device ring has no room, open_entry
// reports no space without an error and res_get waits for reclaim.
const (
	ErrCodeNoSpace     ErrorCode = "no space"
	ErrCodeReadOnly    ErrorCode = "read-only"
	ErrCodeIO          ErrorCode = "I/O error"
	ErrCodeInterrupted ErrorCode = "interrupted"
	ErrCodeOOM         ErrorCode = "out of memory"
)

// Sentinel errors for the common no-context cases; most callers compare
// with errors.Is against these rather than inspecting *Error fields.
var (
	ErrNoSpace     = &Error{Code: ErrCodeNoSpace, Dev: -1, Msg: string(ErrCodeNoSpace)}
	ErrReadOnly    = &Error{Code: ErrCodeReadOnly, Dev: -1, Msg: string(ErrCodeReadOnly)}
	ErrIO          = &Error{Code: ErrCodeIO, Dev: -1, Msg: string(ErrCodeIO)}
	ErrInterrupted = &Error{Code: ErrCodeInterrupted, Dev: -1, Msg: string(ErrCodeInterrupted)}
	ErrOOM         = &Error{Code: ErrCodeOOM, Dev: -1, Msg: string(ErrCodeOOM)}
)

// NewError creates a structured error for the given operation.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Dev: -1, Code: code, Msg: msg}
}

// NewSeqError creates a structured error scoped to a sequence number.
func NewSeqError(op string, seq uint64, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Seq: seq, Dev: -1, Code: code, Msg: msg}
}

// NewDeviceError creates a structured error scoped to a device index.
func NewDeviceError(op string, dev int, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Dev: dev, Code: code, Msg: msg}
}

// WrapDeviceError wraps a device I/O failure with journal context,
// mapping common syscall errnos to error categories.
func WrapDeviceError(op string, dev int, inner error) *Error {
	if inner == nil {
		return nil
	}

	code := ErrCodeIO
	var errno syscall.Errno
	if e, ok := inner.(syscall.Errno); ok {
		errno = e
		code = mapErrnoToCode(e)
	}

	return &Error{
		Op:    op,
		Dev:   dev,
		Code:  code,
		Errno: errno,
		Msg:   inner.Error(),
		Inner: inner,
	}
}

func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.ENOSPC:
		return ErrCodeNoSpace
	case syscall.EROFS:
		return ErrCodeReadOnly
	case syscall.EINTR:
		return ErrCodeInterrupted
	case syscall.ENOMEM:
		return ErrCodeOOM
	default:
		return ErrCodeIO
	}
}

// IsCode reports whether err is a *Error with the given category.
func IsCode(err error, code ErrorCode) bool {
	var je *Error
	if errors.As(err, &je) {
		return je.Code == code
	}
	return false
}
