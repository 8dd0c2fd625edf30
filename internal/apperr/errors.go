// Package apperr defines the error kinds shared by every service. Detection
// sites wrap one of the sentinels with context; callers match with errors.Is.
package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
	ErrConflict          = errors.New("conflict")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrStoreUnavailable  = errors.New("store unavailable")

	// transport only
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
)

// IsDomain reports whether err is an expected business outcome rather than
// an infrastructure failure.
func IsDomain(err error) bool {
	for _, k := range []error{ErrNotFound, ErrValidation, ErrInsufficientStock, ErrEmptyCart, ErrConflict, ErrInvalidTransition} {
		if errors.Is(err, k) {
			return true
		}
	}
	return false
}

// Retryable reports whether the caller may retry the same call later.
func Retryable(err error) bool { return errors.Is(err, ErrStoreUnavailable) }
