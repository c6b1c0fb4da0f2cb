package focal

import (
	"errors"
	"fmt"
)

// Application error codes.
const (
	EINVALID     = "invalid"     // validation failed
	ENOTFOUND    = "not_found"   // entity does not exist
	EUNAVAILABLE = "unavailable" // transient upstream failure
	EINTERNAL    = "internal"    // internal error
)

// Error represents an application-specific error. Application errors can be
// unwrapped by the caller to extract the machine-readable code and a
// human-readable message.
type Error struct {
	// Machine-readable error code.
	Code string

	// Human-readable message.
	Message string
}

// Error implements the error interface. Not used by the application
// otherwise.
func (e *Error) Error() string {
	return fmt.Sprintf("focal error: code=%s message=%s", e.Code, e.Message)
}

// ErrorCode unwraps an application error and returns its code.
// Non-application errors always return EINTERNAL.
func ErrorCode(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Code
	} else if IsEmbedderUnavailable(err) {
		return EUNAVAILABLE
	}
	return EINTERNAL
}

// ErrorMessage unwraps an application error and returns its message.
// Non-application errors always return "Internal error.".
func ErrorMessage(err error) string {
	var e *Error
	if err == nil {
		return ""
	} else if errors.As(err, &e) {
		return e.Message
	}
	return "Internal error."
}

// Errorf is a helper function to return an Error with a given code and
// formatted message.
func Errorf(code string, format string, args ...any) *Error {
	return &Error{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// EmbedderUnavailableError indicates the embedding model host cannot serve
// requests right now. Callers branch on this to queue work for later
// instead of failing the operation.
type EmbedderUnavailableError struct {
	Model           string
	Detail          string
	AutopullStarted bool
}

func (e *EmbedderUnavailableError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("embedder unavailable: model %q", e.Model)
	}
	return fmt.Sprintf("embedder unavailable: model %q: %s", e.Model, e.Detail)
}

// IsEmbedderUnavailable reports whether err wraps an EmbedderUnavailableError.
func IsEmbedderUnavailable(err error) bool {
	var e *EmbedderUnavailableError
	return errors.As(err, &e)
}
