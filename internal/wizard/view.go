package wizard

import (
	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/calendar"
	"github.com/wolfman30/velo-booking/internal/customers"
	"github.com/wolfman30/velo-booking/internal/session"
)

// SlotsView is the slot list for the selected date.
type SlotsView struct {
	Date    *booking.Date      `json:"date,omitempty"`
	Slots   []booking.TimeSlot `json:"slots"`
	Loading bool               `json:"loading"`
	Error   string             `json:"error,omitempty"`
}

// View is the render model of a wizard.
type View struct {
	ID            string                `json:"id"`
	Step          Step                  `json:"step"`
	Store         booking.Store         `json:"store"`
	Admin         bool                  `json:"admin"`
	TypeHint      booking.ServiceType   `json:"type_hint,omitempty"`
	Services      []booking.Service     `json:"services"`
	ServicesError string                `json:"services_error,omitempty"`
	Draft         Draft                 `json:"draft"`
	Month         calendar.Month        `json:"month"`
	Calendar      []calendar.Day        `json:"calendar,omitempty"`
	Slots         SlotsView             `json:"slots"`
	Customers     *customers.View       `json:"customers,omitempty"`
	Submitting    bool                  `json:"submitting"`
	SubmitError   string                `json:"submit_error,omitempty"`
	Confirmation  *booking.Confirmation `json:"confirmation,omitempty"`
}

// View returns a consistent copy of the wizard state.
func (w *Wizard) View() View {
	w.mu.Lock()
	defer w.mu.Unlock()

	v := View{
		ID:         w.id,
		Step:       w.step,
		Store:      w.store,
		Admin:      w.admin,
		TypeHint:   w.typeHint,
		Services:   append([]booking.Service(nil), w.services...),
		Draft:      w.draft.clone(),
		Month:      w.month,
		Submitting: w.submitting,
	}
	if w.servicesErr != nil {
		v.ServicesError = w.servicesErr.Error()
	}
	if w.submitErr != nil {
		v.SubmitError = w.submitErr.Error()
	}
	if w.confirmation != nil {
		c := *w.confirmation
		v.Confirmation = &c
	}
	if w.draft.Service != nil && w.step != Confirmed {
		v.Calendar = calendar.Build(w.calendarOptionsLocked())
	}

	sv := w.slots.View()
	v.Slots = SlotsView{Slots: sv.Slots, Loading: sv.Loading}
	if !sv.Key.Date.IsZero() {
		d := sv.Key.Date
		v.Slots.Date = &d
	}
	if sv.Err != nil {
		v.Slots.Error = sv.Err.Error()
	}

	if w.lookup != nil && w.step == EnteringContactInfo {
		cv := w.lookup.View()
		v.Customers = &cv
	}
	return v
}

// Redacted drops customer search results, which only staff may see.
func (v View) Redacted() any {
	v.Customers = nil
	return v
}

func viewFor(s session.Context, wz *Wizard) View {
	v := wz.View()
	if !s.IsAdmin() {
		v.Customers = nil
	}
	return v
}
