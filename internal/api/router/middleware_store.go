package router

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/velo-booking/internal/tenancy"
)

const storeParam = "storeID"

// requireStoreID copies the {storeID} URL parameter into the request context.
func requireStoreID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		storeID := strings.TrimSpace(chi.URLParam(r, storeParam))
		if storeID == "" {
			http.Error(w, "missing store id", http.StatusBadRequest)
			return
		}
		ctx := tenancy.WithStoreID(r.Context(), storeID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// storeIDFromRequest exposes the store id for local handlers.
func storeIDFromRequest(r *http.Request) (string, bool) {
	return tenancy.StoreIDFromContext(r.Context())
}
