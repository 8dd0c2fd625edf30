package httpx

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/logx"
	"github.com/ariefcatur/go-checkout-core/internal/postgres"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("%w: order", apperr.ErrNotFound), http.StatusNotFound},
		{apperr.ErrValidation, http.StatusBadRequest},
		{apperr.ErrEmptyCart, http.StatusBadRequest},
		{fmt.Errorf("%w: mug", apperr.ErrInsufficientStock), http.StatusConflict},
		{apperr.ErrConflict, http.StatusConflict},
		{apperr.ErrInvalidTransition, http.StatusConflict},
		{apperr.ErrStoreUnavailable, http.StatusServiceUnavailable},
		{apperr.ErrUnauthorized, http.StatusUnauthorized},
		{apperr.ErrForbidden, http.StatusForbidden},
		{errors.New("disk on fire"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusOf(tt.err), tt.err.Error())
	}
}

func TestWriteError_HidesInternalDetail(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, logx.Discard(), errors.New("pq: password authentication failed for user app"))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")
	assert.Contains(t, rec.Body.String(), "internal server error")
}

func TestWriteError_DatabaseRejectionKeepsDriverTextInLogs(t *testing.T) {
	log, hook := test.NewNullLogger()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	raw := &pgconn.PgError{Code: "22P02", Message: `invalid input syntax for type uuid: "nope"`}
	writeError(rec, req, log, fmt.Errorf("order nope: %w", postgres.Classify(raw)))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotContains(t, rec.Body.String(), "invalid input syntax")
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, raw.Message, hook.LastEntry().Data["driver"])
}

func TestWriteError_StoreUnavailableIsRetryable(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	writeError(rec, req, logx.Discard(), fmt.Errorf("%w: timeout", apperr.ErrStoreUnavailable))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}
