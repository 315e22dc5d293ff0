package apperr

import (
	"errors"
	"fmt"
)

// Kind is the closed set of failure classes a public operation can report.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindAuthentication
	KindVerificationRequired
	KindAuthorization
	KindNotFound
	KindConflict
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuthentication:
		return "authentication"
	case KindVerificationRequired:
		return "verification_required"
	case KindAuthorization:
		return "authorization"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	default:
		return "internal"
	}
}

// Error carries a Kind, a machine code and a caller-safe message.
// Err holds the underlying cause and is never shown to the caller.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Code)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

func Authentication(code, message string) *Error {
	return New(KindAuthentication, code, message)
}

func VerificationRequired(code, message string) *Error {
	return New(KindVerificationRequired, code, message)
}

func Authorization(code, message string) *Error {
	return New(KindAuthorization, code, message)
}

func NotFound(code, message string) *Error {
	return New(KindNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

// Internal wraps an unexpected failure. The cause is kept for logging only.
func Internal(message string, cause error) *Error {
	return &Error{Kind: KindInternal, Code: "internal_error", Message: message, Err: cause}
}

// As extracts the *Error from err. Anything else is reported as an internal failure.
func As(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	return Internal("Something went wrong", err)
}

func KindOf(err error) Kind {
	if err == nil {
		return KindInternal
	}
	return As(err).Kind
}
