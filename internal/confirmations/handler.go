package confirmations

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/velo-booking/internal/tenancy"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// Handler serves receipts to the confirmation page and to staff.
type Handler struct {
	service *Service
	logger  *logging.Logger
}

func NewHandler(service *Service, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{service: service, logger: logger}
}

// GetByToken handles GET /api/confirmations/{token}.
func (h *Handler) GetByToken(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(chi.URLParam(r, "token"))
	if token == "" {
		writeError(w, http.StatusBadRequest, "missing_token", "confirmation token required")
		return
	}
	rec, err := h.service.GetByToken(r.Context(), token)
	if errors.Is(err, ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "confirmation not found")
		return
	}
	if err != nil {
		h.logger.Error("failed to load confirmation", "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load confirmation")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

type listResponse struct {
	StoreID  string    `json:"store_id"`
	Receipts []Receipt `json:"receipts"`
}

// List handles GET /admin/stores/{storeID}/confirmations. The store id is
// taken from the request context placed there by the admin middleware.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	storeID, err := tenancy.RequireStoreID(r.Context())
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_store", "store id required")
		return
	}
	q := r.URL.Query()
	filter := ListFilter{StoreID: storeID, ServiceID: strings.TrimSpace(q.Get("service_id"))}

	if filter.From, err = parseBound(q.Get("from")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD or RFC3339")
		return
	}
	if filter.To, err = parseBound(q.Get("to")); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD or RFC3339")
		return
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		filter.Limit = n
	}

	receipts, err := h.service.List(r.Context(), filter)
	if errors.Is(err, ErrInvalidFilter) {
		writeError(w, http.StatusBadRequest, "invalid_range", "from must be before to")
		return
	}
	if err != nil {
		h.logger.Error("failed to list confirmations", "store_id", storeID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to list confirmations")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{StoreID: storeID, Receipts: receipts})
}

func parseBound(raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
