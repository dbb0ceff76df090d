package grid

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint16

const (
	RetCSuccess           RetCode = iota // 0: Operation executed successfully.
	RetCRemoved                          // 1: Entry is marked obsolete, the caller holds a retired reference.
	RetCFilterRejected                   // 2: An optional filter rejected the operation (normally reported as applied=false, not as an error).
	RetCStoreFailure                     // 3: A backing store or swap store operation failed.
	RetCProtocolViolation                // 4: A locking or transaction protocol rule was violated. Never retried.
	RetCTransformFailed                  // 5: An entry processor returned an error or panicked.
	RetCInvalidConfig                    // 6: Configuration rejected by validation.
	RetCInvalidOperation                 // 7: Invalid operation.
	RetCUnsupported                      // 8: Operation is not supported by this cache configuration.
	RetCClosed                           // 9: The cache has been closed.
	RetCInternalError                    // 10: Operation failed due to an internal error.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCRemoved:
		return "Removed"
	case RetCFilterRejected:
		return "FilterRejected"
	case RetCStoreFailure:
		return "StoreFailure"
	case RetCProtocolViolation:
		return "ProtocolViolation"
	case RetCTransformFailed:
		return "TransformFailed"
	case RetCInvalidConfig:
		return "InvalidConfig"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCUnsupported:
		return "Unsupported"
	case RetCClosed:
		return "Closed"
	case RetCInternalError:
		return "InternalError"
	default:
		return "Unknown"
	}
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode),
// an error message and optionally the underlying cause.
type Error struct {
	Code  RetCode // The return code
	Msg   string  // The error message
	Cause error   // Underlying error, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("GridError (code %s): %s: %v", e.Code, e.Msg, e.Cause)
	}
	return fmt.Sprintf("GridError (code %s): %s", e.Code, e.Msg)
}

// Unwrap exposes the cause for errors.Is / errors.As chains.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches errors by return code, so sentinel comparisons like
// errors.Is(err, &Error{Code: RetCRemoved}) work across wrapping.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// NewErrorf creates a new Error with a formatted message.
func NewErrorf(code RetCode, format string, args ...any) *Error {
	return &Error{
		Code: code,
		Msg:  fmt.Sprintf(format, args...),
	}
}

// WrapError creates a new Error wrapping an underlying cause.
func WrapError(code RetCode, msg string, cause error) *Error {
	return &Error{
		Code:  code,
		Msg:   msg,
		Cause: cause,
	}
}

// CodeOf extracts the return code of err, or RetCInternalError for foreign
// errors. Returns RetCSuccess for nil.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// IsRemoved reports whether err signals an operation on a retired entry.
// Callers receiving it retry against a fresh entry from the map.
func IsRemoved(err error) bool {
	return CodeOf(err) == RetCRemoved
}

// IsStoreFailure reports whether err originates from the backing store or
// the swap store.
func IsStoreFailure(err error) bool {
	return CodeOf(err) == RetCStoreFailure
}
