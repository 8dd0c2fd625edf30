package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeUniqueViolation      = "23505"
	codeInvalidTextRepr      = "22P02"
	codeLockNotAvailable     = "55P03"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeQueryCanceled        = "57014"
)

// driverError reports a kind with a fixed client-safe message. The driver
// error stays reachable through errors.As for logging.
type driverError struct {
	kind  error
	msg   string
	cause error
}

func (e *driverError) Error() string   { return e.kind.Error() + ": " + e.msg }
func (e *driverError) Unwrap() []error { return []error{e.kind, e.cause} }

// Classify maps driver errors onto the apperr taxonomy. Errors that already
// carry a kind are returned as is.
func Classify(err error) error {
	if err == nil {
		return nil
	}
	if apperr.IsDomain(err) || apperr.Retryable(err) {
		return err
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return &driverError{apperr.ErrNotFound, "no such record", err}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return &driverError{apperr.ErrConflict, "record already exists", err}
		case codeLockNotAvailable:
			return &driverError{apperr.ErrConflict, "record is locked by a concurrent request", err}
		case codeInvalidTextRepr:
			return &driverError{apperr.ErrValidation, "malformed identifier or value", err}
		case codeSerializationFailure, codeDeadlockDetected, codeQueryCanceled:
			return &driverError{apperr.ErrStoreUnavailable, "transient database failure", err}
		}
		return err
	}

	var connErr *pgconn.ConnectError
	var netErr net.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded), pgconn.Timeout(err):
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	case errors.As(err, &connErr), errors.As(err, &netErr):
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return err
}
