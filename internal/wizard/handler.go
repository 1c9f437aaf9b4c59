package wizard

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/session"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

// Handler exposes wizards over JSON HTTP.
type Handler struct {
	registry *Registry
	logger   *logging.Logger
}

// NewHandler creates a wizard HTTP handler.
func NewHandler(registry *Registry, logger *logging.Logger) *Handler {
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{registry: registry, logger: logger}
}

// Routes returns the wizard routes, mounted under /api.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/stores/{storeRef}/wizards", h.CreateWizard)
	r.Route("/wizards/{wizardID}", func(r chi.Router) {
		r.Get("/", h.GetWizard)
		r.Delete("/", h.DeleteWizard)
		r.Post("/services/reload", h.ReloadServices)
		r.Post("/service", h.SelectService)
		r.Post("/date", h.SelectDate)
		r.Post("/slot", h.SelectSlot)
		r.Post("/continue", h.ContinueToForm)
		r.Post("/month/previous", h.PreviousMonth)
		r.Post("/month/next", h.NextMonth)
		r.Post("/edit/service", h.EditService)
		r.Post("/edit/datetime", h.EditDateTime)
		r.Put("/contact", h.UpdateContact)
		r.Put("/customer-query", h.SetCustomerQuery)
		r.Post("/customer", h.ApplyCustomer)
		r.Post("/submit", h.Submit)
	})
	return r
}

// CreateWizardRequest is the body of POST /api/stores/{storeRef}/wizards.
type CreateWizardRequest struct {
	ServiceType string `json:"service_type,omitempty"`
}

// CreateWizard starts a wizard for a store id or slug.
// POST /api/stores/{storeRef}/wizards
func (h *Handler) CreateWizard(w http.ResponseWriter, r *http.Request) {
	var req CreateWizardRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
			return
		}
	}
	if req.ServiceType == "" {
		req.ServiceType = r.URL.Query().Get("type")
	}

	wz, err := h.registry.Create(r.Context(), Params{
		StoreRef: chi.URLParam(r, "storeRef"),
		TypeHint: booking.ParseServiceType(req.ServiceType),
		Session:  session.FromContext(r.Context()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewFor(session.FromContext(r.Context()), wz))
}

// GetWizard returns the current view.
// GET /api/wizards/{wizardID}
func (h *Handler) GetWizard(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, viewFor(session.FromContext(r.Context()), wz))
}

// DeleteWizard abandons a wizard.
// DELETE /api/wizards/{wizardID}
func (h *Handler) DeleteWizard(w http.ResponseWriter, r *http.Request) {
	h.registry.Remove(r.Context(), chi.URLParam(r, "wizardID"))
	w.WriteHeader(http.StatusNoContent)
}

// ReloadServices retries the services fetch.
// POST /api/wizards/{wizardID}/services/reload
func (h *Handler) ReloadServices(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	if err := wz.ReloadServices(r.Context()); err != nil && errors.Is(err, ErrInvalidTransition) {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewFor(session.FromContext(r.Context()), wz))
}

// SelectServiceRequest is the body of POST /service.
type SelectServiceRequest struct {
	ServiceID string `json:"service_id"`
}

// SelectService chooses a service.
// POST /api/wizards/{wizardID}/service
func (h *Handler) SelectService(w http.ResponseWriter, r *http.Request) {
	var req SelectServiceRequest
	if !decode(w, r, &req) {
		return
	}
	h.act(w, r, func(wz *Wizard) error { return wz.SelectService(req.ServiceID) })
}

// SelectDateRequest is the body of POST /date.
type SelectDateRequest struct {
	Date booking.Date `json:"date"`
}

// SelectDate chooses a date and loads its slots.
// POST /api/wizards/{wizardID}/date
func (h *Handler) SelectDate(w http.ResponseWriter, r *http.Request) {
	var req SelectDateRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Date.IsZero() {
		writeError(w, http.StatusBadRequest, "invalid_body", "date is required")
		return
	}
	h.act(w, r, func(wz *Wizard) error { return wz.SelectDate(r.Context(), req.Date) })
}

// SelectSlotRequest is the body of POST /slot.
type SelectSlotRequest struct {
	TechnicianID string    `json:"technician_id"`
	Start        time.Time `json:"start"`
}

// SelectSlot chooses a slot from the current list.
// POST /api/wizards/{wizardID}/slot
func (h *Handler) SelectSlot(w http.ResponseWriter, r *http.Request) {
	var req SelectSlotRequest
	if !decode(w, r, &req) {
		return
	}
	h.act(w, r, func(wz *Wizard) error { return wz.SelectSlot(req.TechnicianID, req.Start) })
}

// ContinueToForm moves to the contact step.
// POST /api/wizards/{wizardID}/continue
func (h *Handler) ContinueToForm(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*Wizard).ContinueToForm)
}

// PreviousMonth POST /api/wizards/{wizardID}/month/previous
func (h *Handler) PreviousMonth(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*Wizard).PreviousMonth)
}

// NextMonth POST /api/wizards/{wizardID}/month/next
func (h *Handler) NextMonth(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*Wizard).NextMonth)
}

// EditService POST /api/wizards/{wizardID}/edit/service
func (h *Handler) EditService(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*Wizard).EditService)
}

// EditDateTime POST /api/wizards/{wizardID}/edit/datetime
func (h *Handler) EditDateTime(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*Wizard).EditDateTime)
}

// UpdateContact replaces the contact form.
// PUT /api/wizards/{wizardID}/contact
func (h *Handler) UpdateContact(w http.ResponseWriter, r *http.Request) {
	var form ContactForm
	if !decode(w, r, &form) {
		return
	}
	h.act(w, r, func(wz *Wizard) error { return wz.UpdateContact(form) })
}

// CustomerQueryRequest is the body of PUT /customer-query.
type CustomerQueryRequest struct {
	Query string `json:"query"`
}

// SetCustomerQuery feeds the staff customer search.
// PUT /api/wizards/{wizardID}/customer-query
func (h *Handler) SetCustomerQuery(w http.ResponseWriter, r *http.Request) {
	if !session.FromContext(r.Context()).IsAdmin() {
		h.respondError(w, r, ErrNotAdmin)
		return
	}
	var req CustomerQueryRequest
	if !decode(w, r, &req) {
		return
	}
	h.act(w, r, func(wz *Wizard) error { return wz.SetCustomerQuery(req.Query) })
}

// ApplyCustomerRequest is the body of POST /customer.
type ApplyCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

// ApplyCustomer prefills the contact form from a search result.
// POST /api/wizards/{wizardID}/customer
func (h *Handler) ApplyCustomer(w http.ResponseWriter, r *http.Request) {
	if !session.FromContext(r.Context()).IsAdmin() {
		h.respondError(w, r, ErrNotAdmin)
		return
	}
	var req ApplyCustomerRequest
	if !decode(w, r, &req) {
		return
	}
	h.act(w, r, func(wz *Wizard) error { return wz.ApplyCustomer(req.CustomerID) })
}

// SubmitResponse is returned by a successful submit.
type SubmitResponse struct {
	Confirmation booking.Confirmation `json:"confirmation"`
	Wizard       View                 `json:"wizard"`
}

// Submit creates the booking.
// POST /api/wizards/{wizardID}/submit
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	conf, err := wz.Submit(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SubmitResponse{Confirmation: *conf, Wizard: viewFor(session.FromContext(r.Context()), wz)})
}

func (h *Handler) wizard(w http.ResponseWriter, r *http.Request) (*Wizard, bool) {
	id := chi.URLParam(r, "wizardID")
	wz, err := h.registry.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return nil, false
	}
	return wz, true
}

func (h *Handler) act(w http.ResponseWriter, r *http.Request, op func(*Wizard) error) {
	wz, ok := h.wizard(w, r)
	if !ok {
		return
	}
	if err := op(wz); err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewFor(session.FromContext(r.Context()), wz))
}

type errorResponse struct {
	Error    string `json:"error"`
	Code     string `json:"code"`
	Redirect string `json:"redirect,omitempty"`
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *booking.ValidationError
	switch {
	case errors.Is(err, booking.ErrStoreNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "store not found", Code: "store_not_found", Redirect: "/stores"})
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, "wizard_not_found", "wizard not found")
	case errors.Is(err, booking.ErrIncompleteBookingData):
		writeError(w, http.StatusBadRequest, "incomplete_booking_data", "service, date and slot must be selected before submitting")
	case errors.As(err, &verr):
		writeError(w, http.StatusUnprocessableEntity, "validation_error", verr.Error())
	case errors.Is(err, booking.ErrBookingConflict):
		writeError(w, http.StatusConflict, "booking_conflict", "the selected time is no longer available, please choose another slot")
	case errors.Is(err, ErrSubmitInProgress):
		writeError(w, http.StatusConflict, "submit_in_progress", "a submission is already in progress")
	case errors.Is(err, ErrDateNotSelectable):
		writeError(w, http.StatusConflict, "date_not_selectable", "the date cannot be selected")
	case errors.Is(err, ErrSlotUnavailable):
		writeError(w, http.StatusConflict, "slot_unavailable", "the slot is not available")
	case errors.Is(err, ErrNoSlotSelected):
		writeError(w, http.StatusConflict, "no_slot_selected", "select a slot first")
	case errors.Is(err, ErrInvalidTransition):
		writeError(w, http.StatusConflict, "invalid_transition", err.Error())
	case errors.Is(err, ErrNotAdmin):
		writeError(w, http.StatusForbidden, "not_admin", "customer search requires staff access")
	case errors.Is(err, ErrUnknownService), errors.Is(err, ErrUnknownCustomer):
		writeError(w, http.StatusBadRequest, "unknown_reference", err.Error())
	default:
		h.logger.Error("wizard request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, "backend_error", "the booking service is unavailable, please try again")
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "invalid JSON body")
		return false
	}
	return true
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorResponse{Error: message, Code: code})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
