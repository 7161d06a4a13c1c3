// Package fault defines the classified error taxonomy shared by every log
// viewer operation. Each failure that reaches an HTTP response or a stream
// error event carries one of the stable Type identifiers below; existing
// clients branch on these strings, so they must never change.
package fault

import (
	"errors"
	"fmt"
	"io/fs"
	"net/http"
)

// Type is a stable, client-facing error classification.
type Type string

const (
	NotConfigured Type = "NOT_CONFIGURED"
	InvalidPath   Type = "INVALID_PATH"
	FileNotFound  Type = "FILE_NOT_FOUND"
	NotAFile      Type = "NOT_A_FILE"
	NoPermission  Type = "NO_PERMISSION"
	AccessDenied  Type = "ACCESS_DENIED"
	IOError       Type = "IO_ERROR"
	SecurityError Type = "SECURITY_ERROR"
	FileDeleted   Type = "FILE_DELETED"

	// Directory configuration failures.
	EmptyPath    Type = "EMPTY_PATH"
	NotFound     Type = "NOT_FOUND"
	NotDirectory Type = "NOT_DIRECTORY"

	Unknown Type = "UNKNOWN_ERROR"

	// Request-level failures raised by the HTTP layer.
	BadRequest   Type = "BAD_REQUEST"
	Unauthorized Type = "UNAUTHORIZED"
)

// Error is a failure resolved to a Type. Message is safe to show to a
// viewer; Err keeps the underlying cause for logs and errors.Is checks.
type Error struct {
	Type    Type
	Message string
	Err     error
}

// New returns an Error without an underlying cause.
func New(t Type, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap returns an Error that records err as its cause.
func Wrap(t Type, msg string, err error) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is reports whether target is an *Error with the same Type, so sentinel
// values such as pathguard.ErrInvalidPath match any error of that class.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Type == e.Type
}

// Classify resolves any error into an *Error. Errors that already carry a
// classification are returned unchanged; filesystem errors map to
// FILE_NOT_FOUND or ACCESS_DENIED and everything else becomes IO_ERROR.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var fe *Error
	if errors.As(err, &fe) {
		return fe
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return Wrap(FileNotFound, "file not found", err)
	case errors.Is(err, fs.ErrPermission):
		return Wrap(AccessDenied, "file access denied", err)
	default:
		return Wrap(IOError, "error while reading file", err)
	}
}

// TypeOf returns the classification of err, or the empty Type for nil.
func TypeOf(err error) Type {
	if fe := Classify(err); fe != nil {
		return fe.Type
	}
	return ""
}

// HTTPStatus maps a Type to the status code used by the JSON API.
func HTTPStatus(t Type) int {
	switch t {
	case Unauthorized:
		return http.StatusUnauthorized
	case AccessDenied, SecurityError:
		return http.StatusForbidden
	case IOError, Unknown:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
