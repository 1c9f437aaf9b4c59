package middleware

import (
	"errors"
	"net/http"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/velo-booking/internal/session"
)

// AdminJWT enforces an HMAC-signed admin JWT and attaches the admin session.
func AdminJWT(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			admin, err := session.ParseAdminToken(secret, session.BearerToken(r))
			switch {
			case errors.Is(err, session.ErrDisabled):
				http.Error(w, "admin auth disabled", http.StatusUnauthorized)
				return
			case errors.Is(err, session.ErrMissingToken):
				http.Error(w, "missing authorization header", http.StatusUnauthorized)
				return
			case err != nil:
				http.Error(w, "invalid token", http.StatusUnauthorized)
				return
			}
			ctx := session.WithContext(r.Context(), *admin)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Session attaches the caller's session to every request. Requests without
// a valid admin token are anonymous; nothing is rejected.
func Session(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := session.WithContext(r.Context(), session.FromRequest(secret, r))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AdminClaimsFromContext returns admin JWT claims if present.
func AdminClaimsFromContext(r *http.Request) (jwt.RegisteredClaims, bool) {
	admin, ok := session.FromContext(r.Context()).(session.Admin)
	if !ok {
		return jwt.RegisteredClaims{}, false
	}
	return admin.Claims, true
}
