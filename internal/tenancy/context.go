// Package tenancy carries the store a request is scoped to. Admin routes
// under /admin/stores/{storeID} set it once; handlers below read it instead
// of the URL, so every staff query is bounded to a single bike shop.
package tenancy

import (
	"context"
	"errors"
	"strings"
)

// ErrNoStore is returned when a handler that needs a store scope runs
// without one.
var ErrNoStore = errors.New("tenancy: request is not scoped to a store")

type ctxKey struct{}

// WithStoreID scopes ctx to storeID. A blank id leaves ctx unscoped.
func WithStoreID(ctx context.Context, storeID string) context.Context {
	return context.WithValue(ctx, ctxKey{}, strings.TrimSpace(storeID))
}

// StoreIDFromContext returns the scoped store id.
func StoreIDFromContext(ctx context.Context) (string, bool) {
	storeID, ok := ctx.Value(ctxKey{}).(string)
	return storeID, ok && storeID != ""
}

// RequireStoreID is StoreIDFromContext for handlers that cannot run
// unscoped.
func RequireStoreID(ctx context.Context) (string, error) {
	storeID, ok := StoreIDFromContext(ctx)
	if !ok {
		return "", ErrNoStore
	}
	return storeID, nil
}
