package busmessage

import (
	"errors"
	"fmt"
)

// Code classifies a CodecError, matching the taxonomy in spec §7.
type Code int

// Error codes a caller can match against with Is.
const (
	// CodeInvalidArgument covers a null required value, a bad type code,
	// an ill-formed signature, or a bad container kind for the position.
	CodeInvalidArgument Code = 1 + iota
	// CodeInvalidState covers an operation that requires a sealed or
	// unsealed message when the message is in the other state, or
	// closing a container when none is open.
	CodeInvalidState
	// CodePermissionDenied is the taxonomy's permission-denied class. No
	// operation in this package returns it: a write attempted on a sealed
	// message reports CodeInvalidState.
	CodePermissionDenied
	// CodeNotFound covers reading a header value that was never set.
	CodeNotFound
	// CodeTypeMismatch covers a signature position that disagrees with
	// the type being read or written.
	CodeTypeMismatch
	// CodeMalformedMessage covers header validation failures, bad
	// padding, length mismatches, an array size over the cap, depth
	// exceeded, or invalid UTF-8/path/name text.
	CodeMalformedMessage
	// CodeOutOfMemory covers allocation failure or a size overflow.
	CodeOutOfMemory
	// CodeExists covers setting a header value that is already set.
	CodeExists
	// CodeIO covers a partial write to a byte-sink writer variant.
	CodeIO
)

func (c Code) String() string {
	switch c {
	case CodeInvalidArgument:
		return "invalid-argument"
	case CodeInvalidState:
		return "invalid-state"
	case CodePermissionDenied:
		return "permission-denied"
	case CodeNotFound:
		return "not-found"
	case CodeTypeMismatch:
		return "type-mismatch"
	case CodeMalformedMessage:
		return "malformed-message"
	case CodeOutOfMemory:
		return "out-of-memory"
	case CodeExists:
		return "exists"
	case CodeIO:
		return "io"
	default:
		return "unknown"
	}
}

// CodecError is the error type returned by every fallible operation in
// this package. It carries a Code a caller can branch on via Is, the
// operation that failed, and an optional wrapped cause.
type CodecError struct {
	Code Code
	Op   string
	Err  error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("busmessage: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("busmessage: %s: %s", e.Op, e.Code)
}

func (e *CodecError) Unwrap() error {
	return e.Err
}

func newErr(code Code, op string, err error) *CodecError {
	return &CodecError{Code: code, Op: op, Err: err}
}

func errorf(code Code, op, format string, args ...any) *CodecError {
	return &CodecError{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

// Is reports whether err is a *CodecError with the given code, unwrapping
// as needed.
func Is(err error, code Code) bool {
	var ce *CodecError
	if errors.As(err, &ce) {
		return ce.Code == code
	}
	return false
}
