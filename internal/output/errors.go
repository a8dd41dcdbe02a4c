package output

import (
	"errors"
	"fmt"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrAuth(msg string) *Error {
	return &Error{
		Code:       CodeAuth,
		Message:    msg,
		HTTPStatus: 401,
	}
}

// ErrSessionRevoked reports that the server refused a silent switch for the
// given account, so the user has to enter the password again.
func ErrSessionRevoked(username, msg string) *Error {
	if msg == "" {
		msg = "Session expired"
	}
	return &Error{
		Code:       CodeSessionRevoked,
		Message:    msg,
		Hint:       "Run: linxtalk reauth " + username,
		HTTPStatus: 401,
	}
}

func ErrNetwork(cause error) *Error {
	return &Error{
		Code:      CodeNetwork,
		Message:   "Network error",
		Hint:      cause.Error(),
		Retryable: true,
		Cause:     cause,
	}
}

func ErrAPI(status int, msg string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    msg,
		HTTPStatus: status,
	}
}

func ErrDecode(what string, cause error) *Error {
	return &Error{
		Code:    CodeDecode,
		Message: fmt.Sprintf("cannot decode %s", what),
		Cause:   cause,
	}
}

func ErrStorage(op, key string, cause error) *Error {
	return &Error{
		Code:    CodeStorage,
		Message: fmt.Sprintf("%s %s", op, key),
		Hint:    cause.Error(),
		Cause:   cause,
	}
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}

// HasCode reports whether err is an *Error carrying code.
func HasCode(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
