package notify

import (
	"errors"
	"fmt"
)

// Result is the closed set of completion codes surfaced by the core.
type Result int

const (
	// Success indicates the operation completed.
	Success Result = iota
	// InvalidParameter indicates a caller-supplied argument was nil or out of range.
	InvalidParameter
	// Fail indicates a generic rejection (busy, inactive request, failed response).
	Fail
	// Timeout indicates the retry budget was exhausted without a response.
	Timeout
)

// String returns a human-readable name for the result
func (r Result) String() string {
	switch r {
	case Success:
		return "SUCCESS"
	case InvalidParameter:
		return "INVALID_PARAMETER"
	case Fail:
		return "FAIL"
	case Timeout:
		return "TIMEOUT"
	default:
		return fmt.Sprintf("Result(%d)", int(r))
	}
}

// Error carries a Result through Go error returns.
type Error struct {
	Result  Result // Completion code reported to the caller
	Message string // Human-readable detail
	Err     error  // Underlying cause (if any)
}

// Error implements the error interface
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Result, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Result, e.Message)
}

// Unwrap returns the underlying error for error chain inspection
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error with the same Result. This lets
// callers compare against the sentinel values below with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Result == e.Result
}

// Sentinels for errors.Is comparisons.
var (
	ErrInvalidParameter = &Error{Result: InvalidParameter, Message: "invalid parameter"}
	ErrFail             = &Error{Result: Fail, Message: "operation failed"}
	ErrTimeout          = &Error{Result: Timeout, Message: "operation timed out"}
)

// NewInvalidParameter creates an InvalidParameter error
func NewInvalidParameter(format string, args ...any) *Error {
	return &Error{Result: InvalidParameter, Message: fmt.Sprintf(format, args...)}
}

// NewFail creates a Fail error
func NewFail(format string, args ...any) *Error {
	return &Error{Result: Fail, Message: fmt.Sprintf(format, args...)}
}

// WrapFail creates a Fail error with an underlying cause
func WrapFail(message string, err error) *Error {
	return &Error{Result: Fail, Message: message, Err: err}
}

// ResultOf maps an error returned by the core back to its Result.
// nil maps to Success and errors without a Result map to Fail.
func ResultOf(err error) Result {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Result
	}
	return Fail
}
