package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrConflict    = errors.New("conflict")
	ErrNotFound    = errors.New("not found")
	ErrUnsupported = errors.New("unsupported operation")
	ErrForbidden   = errors.New("forbidden")
	ErrFatal       = errors.New("fatal")

	ErrSystemTableReadOnly = fmt.Errorf("system tables cannot be modified: %w", ErrForbidden)
)

// Kind names a failure class reported across the service boundary.
type Kind string

const (
	KindValidation  Kind = "Validation"
	KindConflict    Kind = "Conflict"
	KindNotFound    Kind = "NotFound"
	KindUnsupported Kind = "Unsupported"
	KindForbidden   Kind = "Forbidden"
	KindFatal       Kind = "Fatal"
)

type classified struct {
	sentinel error
	msg      string
}

func (e *classified) Error() string { return e.msg }
func (e *classified) Unwrap() error { return e.sentinel }

func newf(sentinel error, format string, args ...any) error {
	return &classified{sentinel: sentinel, msg: fmt.Sprintf(format, args...)}
}

// Validationf returns an error matching ErrValidation with a caller-facing message.
func Validationf(format string, args ...any) error { return newf(ErrValidation, format, args...) }

// Conflictf returns an error matching ErrConflict.
func Conflictf(format string, args ...any) error { return newf(ErrConflict, format, args...) }

// NotFoundf returns an error matching ErrNotFound.
func NotFoundf(format string, args ...any) error { return newf(ErrNotFound, format, args...) }

// Unsupportedf returns an error matching ErrUnsupported.
func Unsupportedf(format string, args ...any) error { return newf(ErrUnsupported, format, args...) }

// Forbiddenf returns an error matching ErrForbidden.
func Forbiddenf(format string, args ...any) error { return newf(ErrForbidden, format, args...) }

// KindOf classifies err. Anything that does not wrap a known sentinel is Fatal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return KindValidation
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrUnsupported):
		return KindUnsupported
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	default:
		return KindFatal
	}
}
