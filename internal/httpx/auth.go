package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/ariefcatur/go-checkout-core/internal/apperr"
	"github.com/golang-jwt/jwt/v5"
)

const RoleAdmin = "admin"

// Claims is what the identity layer puts in the bearer token.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

type principal struct {
	UserID string
	Role   string
}

type ctxKey struct{}

func principalFrom(ctx context.Context) (principal, bool) {
	p, ok := ctx.Value(ctxKey{}).(principal)
	return p, ok
}

// Authenticate verifies an HS256 bearer token and stores its subject and
// role on the request context. Credentials are issued elsewhere.
func Authenticate(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || raw == "" {
				writeError(w, r, nil, apperr.ErrUnauthorized)
				return
			}
			var c Claims
			tok, err := jwt.ParseWithClaims(raw, &c, func(*jwt.Token) (any, error) {
				return secret, nil
			}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
			if err != nil || !tok.Valid || c.Subject == "" {
				writeError(w, r, nil, apperr.ErrUnauthorized)
				return
			}
			ctx := context.WithValue(r.Context(), ctxKey{}, principal{UserID: c.Subject, Role: c.Role})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, ok := principalFrom(r.Context())
			if !ok {
				writeError(w, r, nil, apperr.ErrUnauthorized)
				return
			}
			for _, role := range roles {
				if p.Role == role {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeError(w, r, nil, apperr.ErrForbidden)
		})
	}
}

// SignToken issues a token the way the identity layer does. Used by tests
// and local tooling.
func SignToken(secret []byte, userID, role string) (string, error) {
	c := Claims{Role: role, RegisteredClaims: jwt.RegisteredClaims{Subject: userID}}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(secret)
}
