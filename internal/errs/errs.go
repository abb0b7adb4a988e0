package errs

import (
	"context"
	"errors"
)

// Code is an error classification shared by the wait, fixture and retry packages.
type Code string

const (
	InvalidArgument  Code = "invalid_argument"
	DeadlineExceeded Code = "deadline_exceeded"
	SetupFailed      Code = "setup_failed"
	TeardownFailed   Code = "teardown_failed"
	Canceled         Code = "canceled"
	Unavailable      Code = "unavailable"
	Internal         Code = "internal"
)

// Coder is implemented by domain error types that carry their own code
// (wait.TimeoutError, fixture.SetupError, fixture.TeardownError).
type Coder interface {
	ErrorCode() Code
}

// Error is a coded error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message != "" {
		if e.Err != nil {
			return e.Message + ": " + e.Err.Error()
		}
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// ErrorCode implements Coder.
func (e *Error) ErrorCode() Code {
	if e == nil || e.Code == "" {
		return Internal
	}
	return e.Code
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{
		Code:    code,
		Message: message,
	}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{
		Code:    code,
		Message: message,
		Err:     cause,
	}
}

// CodeOf returns the code of the first coded error in err's tree,
// defaulting to internal. Bare context errors map to canceled and
// deadline_exceeded.
func CodeOf(err error) Code {
	if err == nil {
		return Internal
	}
	var coded Coder
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	if errors.Is(err, context.Canceled) {
		return Canceled
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return DeadlineExceeded
	}
	return Internal
}

// MessageOf returns the message of the first *Error in err's tree.
// Untyped errors yield "internal error".
func MessageOf(err error) string {
	if err == nil {
		return string(Internal)
	}
	var coded *Error
	if errors.As(err, &coded) && coded.Message != "" {
		return coded.Message
	}
	return "internal error"
}

// ExitCode maps an error code to a process exit status for cmd/ binaries.
func ExitCode(code Code) int {
	switch code {
	case InvalidArgument:
		return 2
	case DeadlineExceeded:
		return 3
	case SetupFailed:
		return 4
	case TeardownFailed:
		return 5
	case Canceled:
		return 130
	case Unavailable:
		return 69
	default:
		return 1
	}
}
