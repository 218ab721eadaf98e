package format

import "errors"

var (
	// ErrTruncated indicates the buffer lacked the bytes required for a structure.
	ErrTruncated = errors.New("format: truncated buffer")
	// ErrBadTag indicates an unexpected key or value entry tag.
	ErrBadTag = errors.New("format: unexpected entry tag")
	// ErrGroupEnd indicates a missing or misplaced group-end marker.
	ErrGroupEnd = errors.New("format: bad group end")
	// ErrUnterminated indicates a string component without its terminator.
	ErrUnterminated = errors.New("format: unterminated string component")
	// ErrVarint indicates a malformed varint.
	ErrVarint = errors.New("format: bad varint")
)
