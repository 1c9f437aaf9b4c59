// Package session decides whether the caller of a wizard is a staff member.
package session

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Context is the capability the wizard consults for admin-only behaviour.
type Context interface {
	IsAdmin() bool
}

// Static is a fixed session.
type Static bool

func (s Static) IsAdmin() bool { return bool(s) }

// Anonymous is the session of a public customer.
const Anonymous = Static(false)

// Admin is a session with staff rights, carrying the token claims.
type Admin struct {
	Claims jwt.RegisteredClaims
}

func (Admin) IsAdmin() bool { return true }

var (
	ErrMissingToken = errors.New("session: missing bearer token")
	ErrInvalidToken = errors.New("session: invalid token")
	ErrDisabled     = errors.New("session: admin auth disabled")
)

// ParseAdminToken validates an HMAC-signed admin JWT.
func ParseAdminToken(secret, tokenString string) (*Admin, error) {
	if secret == "" {
		return nil, ErrDisabled
	}
	if tokenString == "" {
		return nil, ErrMissingToken
	}
	claims := jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return &Admin{Claims: claims}, nil
}

// BearerToken extracts the token from an Authorization header.
func BearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))
}

// FromRequest returns an admin session when the request carries a valid
// admin token and Anonymous otherwise.
func FromRequest(secret string, r *http.Request) Context {
	admin, err := ParseAdminToken(secret, BearerToken(r))
	if err != nil {
		return Anonymous
	}
	return *admin
}

type contextKey struct{}

// WithContext attaches s to ctx.
func WithContext(ctx context.Context, s Context) context.Context {
	return context.WithValue(ctx, contextKey{}, s)
}

// FromContext returns the attached session, or Anonymous.
func FromContext(ctx context.Context) Context {
	if s, ok := ctx.Value(contextKey{}).(Context); ok && s != nil {
		return s
	}
	return Anonymous
}
