package adapter

import (
	"errors"
	"fmt"
)

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error wraps an error of an adapter operation with a return code and the
// adapter and operation it originated from. The wrapped error is kept untouched
// and can be reached with errors.Is and errors.As.
type Error struct {
	Code    RetCode // The return code
	Adapter string  // Name of the adapter
	Op      string  // Operation (e.g. "WriteDocs")
	Err     error   // The underlying error, may be nil
	Msg     string  // Additional message, may be empty
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return fmt.Sprintf("%s %s (code %s): %s", e.Adapter, e.Op, e.Code, msg)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error by code, so errors.Is(err, &Error{Code: RetCNotFound}) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Code == e.Code && (t.Adapter == "" || t.Adapter == e.Adapter)
}

// NewError creates a new Error wrapping err.
func NewError(code RetCode, adapter, op string, err error) *Error {
	return &Error{
		Code:    code,
		Adapter: adapter,
		Op:      op,
		Err:     err,
	}
}

// NewErrorf creates a new Error without an underlying error.
func NewErrorf(code RetCode, adapter, op string, format string, args ...interface{}) *Error {
	return &Error{
		Code:    code,
		Adapter: adapter,
		Op:      op,
		Msg:     fmt.Sprintf(format, args...),
	}
}

// CodeOf returns the code of the outermost *Error in err's chain.
// It returns RetCSuccess for nil and RetCInternalError for foreign errors.
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

// IsCode reports whether err carries the given code.
func IsCode(err error, code RetCode) bool {
	return err != nil && CodeOf(err) == code
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess              RetCode = iota // 0: Operation executed successfully.
	RetCInternalError                       // 1: Operation failed due to an internal error.
	RetCUnsupportedOperation                // 2: Operation is not supported by the backend.
	RetCInvalidOperation                    // 3: Invalid operation.
	RetCProvisioning                        // 4: The underlying resource could not be opened or created.
	RetCWrite                               // 5: Writing failed (encoding, quota, storage failure).
	RetCDuplicateID                         // 6: A document id is already stored (reject policy).
	RetCQuery                               // 7: Reading or querying failed (malformed pattern, decode failure).
	RetCNotFound                            // 8: A requested id is not stored (error policy).
	RetCProtocol                            // 9: The worker channel failed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCUnsupportedOperation:
		return "UnsupportedOperation"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCProvisioning:
		return "Provisioning"
	case RetCWrite:
		return "Write"
	case RetCDuplicateID:
		return "DuplicateID"
	case RetCQuery:
		return "Query"
	case RetCNotFound:
		return "NotFound"
	case RetCProtocol:
		return "Protocol"
	default:
		return "Unknown"
	}
}

// NotInitialized returns the error of an operation called before Init or after Clear.
func NotInitialized(adapter, op string) *Error {
	return NewErrorf(RetCInvalidOperation, adapter, op, "adapter is not initialized")
}
