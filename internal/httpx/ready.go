package httpx

import (
	"context"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"
)

const readyTimeout = 2 * time.Second

// Check is one dependency the process needs before it can take traffic.
type Check struct {
	Name string
	Ping func(ctx context.Context) error
}

// Ready answers 200 when every check pings and 503 otherwise. Failures are
// logged, not returned to the caller.
func Ready(log logrus.FieldLogger, checks ...Check) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()
		for _, c := range checks {
			if err := c.Ping(ctx); err != nil {
				log.WithError(err).WithField("check", c.Name).Warn("not ready")
				writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Message: "Not ready"})
				return
			}
		}
		writeData(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}
