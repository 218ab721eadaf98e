package types

import (
	"errors"
	"fmt"
)

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindCorruption       ErrKind = iota // undecodable key, infinite loop, unexpected value type
	ErrKindDeadlineExceeded                // wall-clock deadline passed during a scan
	ErrKindInvalidArgument                 // bad projection index, missing projection, bad key column count
	ErrKindNotFound                        // NextRow after the scan completed
	ErrKindInternal                        // NextRow without a successful HasNext
	ErrKindUnsupported                     // recognized but unsupported structure
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindCorruption:
		return "Corruption"
	case ErrKindDeadlineExceeded:
		return "DeadlineExceeded"
	case ErrKindInvalidArgument:
		return "InvalidArgument"
	case ErrKindNotFound:
		return "NotFound"
	case ErrKindInternal:
		return "InternalError"
	case ErrKindUnsupported:
		return "Unsupported"
	}
	return fmt.Sprintf("ErrKind(%d)", int(k))
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// Corruptionf builds a Corruption error.
func Corruptionf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindCorruption, Msg: fmt.Sprintf(format, args...)}
}

// CorruptionWrap wraps an underlying decode failure as Corruption.
func CorruptionWrap(err error, msg string) *Error {
	return &Error{Kind: ErrKindCorruption, Msg: msg, Err: err}
}

// DeadlineExceeded builds a DeadlineExceeded error.
func DeadlineExceeded(msg string) *Error {
	return &Error{Kind: ErrKindDeadlineExceeded, Msg: msg}
}

// InvalidArgumentf builds an InvalidArgument error.
func InvalidArgumentf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindInvalidArgument, Msg: fmt.Sprintf(format, args...)}
}

// NotFound builds a NotFound error.
func NotFound(msg string) *Error {
	return &Error{Kind: ErrKindNotFound, Msg: msg}
}

// Internalf builds an InternalError.
func Internalf(format string, args ...interface{}) *Error {
	return &Error{Kind: ErrKindInternal, Msg: fmt.Sprintf(format, args...)}
}

// KindOf returns the kind of err, or (0, false) when err carries no kind.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// IsCorruption reports whether err is a Corruption error.
func IsCorruption(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrKindCorruption
}

// IsDeadlineExceeded reports whether err is a DeadlineExceeded error.
func IsDeadlineExceeded(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrKindDeadlineExceeded
}

// IsNotFound reports whether err is a NotFound error.
func IsNotFound(err error) bool {
	k, ok := KindOf(err)
	return ok && k == ErrKindNotFound
}
