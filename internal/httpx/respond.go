package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/ariefcatur/go-checkout-core/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/sirupsen/logrus"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

type listMeta struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, code int, data any) {
	writeJSON(w, code, envelope{Success: true, Data: data})
}

func writeList(w http.ResponseWriter, key string, items any, page orders.Page, total int) {
	writeData(w, http.StatusOK, map[string]any{
		key: items,
		"meta": listMeta{
			Page:       page.Page,
			Limit:      page.Limit,
			Total:      total,
			TotalPages: int(math.Ceil(float64(total) / float64(page.Limit))),
		},
	})
}

var statusByKind = []struct {
	kind error
	code int
}{
	{apperr.ErrNotFound, http.StatusNotFound},
	{apperr.ErrValidation, http.StatusBadRequest},
	{apperr.ErrEmptyCart, http.StatusBadRequest},
	{apperr.ErrInsufficientStock, http.StatusConflict},
	{apperr.ErrConflict, http.StatusConflict},
	{apperr.ErrInvalidTransition, http.StatusConflict},
	{apperr.ErrStoreUnavailable, http.StatusServiceUnavailable},
	{apperr.ErrUnauthorized, http.StatusUnauthorized},
	{apperr.ErrForbidden, http.StatusForbidden},
}

func statusOf(err error) int {
	for _, k := range statusByKind {
		if errors.Is(err, k.kind) {
			return k.code
		}
	}
	return http.StatusInternalServerError
}

// writeError is the single boundary where failures are logged. Domain errors
// carry their message to the client; anything else is reported generically.
func writeError(w http.ResponseWriter, r *http.Request, log logrus.FieldLogger, err error) {
	code := statusOf(err)
	msg := err.Error()
	switch {
	case code == http.StatusInternalServerError:
		msg = "internal server error"
		if log != nil {
			log.WithError(err).WithField("rid", middleware.GetReqID(r.Context())).Error("request failed")
		}
	case code == http.StatusServiceUnavailable:
		msg = "service temporarily unavailable, retry later"
		if log != nil {
			log.WithError(err).WithField("rid", middleware.GetReqID(r.Context())).Warn("store unavailable")
		}
	default:
		var pgErr *pgconn.PgError
		if log != nil && errors.As(err, &pgErr) {
			log.WithError(err).WithFields(logrus.Fields{
				"rid":        middleware.GetReqID(r.Context()),
				"sqlstate":   pgErr.Code,
				"driver":     pgErr.Message,
				"constraint": pgErr.ConstraintName,
			}).Info("request rejected by database")
		}
	}
	if code == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	writeJSON(w, code, envelope{Success: false, Message: msg})
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: invalid json body: %v", apperr.ErrValidation, err)
	}
	return nil
}

func pageOf(r *http.Request) orders.Page {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return orders.Page{Page: page, Limit: limit}.Normalize()
}
