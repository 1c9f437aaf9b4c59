package wizard

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wolfman30/velo-booking/internal/availability"
	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/calendar"
)

// Snapshot is the persisted form of a wizard.
type Snapshot struct {
	ID           string                `json:"id"`
	StoreID      string                `json:"store_id"`
	TypeHint     booking.ServiceType   `json:"type_hint,omitempty"`
	Admin        bool                  `json:"admin"`
	Step         Step                  `json:"step"`
	Services     []booking.Service     `json:"services"`
	Draft        Draft                 `json:"draft"`
	Month        calendar.Month        `json:"month"`
	FullyBooked  []booking.Date        `json:"fully_booked,omitempty"`
	Confirmation *booking.Confirmation `json:"confirmation,omitempty"`
	UpdatedAt    time.Time             `json:"updated_at"`
}

// Snapshot captures the wizard state. The slot list itself is not kept; it
// is fetched again on restore.
func (w *Wizard) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		ID:          w.id,
		StoreID:     w.store.ID,
		TypeHint:    w.typeHint,
		Admin:       w.admin,
		Step:        w.step,
		Services:    append([]booking.Service(nil), w.services...),
		Draft:       w.draft.clone(),
		Month:       w.month,
		FullyBooked: w.slots.FullyBooked(),
		UpdatedAt:   w.lastActive,
	}
	if w.confirmation != nil {
		c := *w.confirmation
		s.Confirmation = &c
	}
	return s
}

// Restore rebuilds a wizard from a snapshot. The store is resolved again and
// the selected date's slots are refetched when the wizard is choosing a slot.
func Restore(ctx context.Context, deps Deps, s Snapshot) (*Wizard, error) {
	deps = deps.withDefaults()
	if s.ID == "" || s.StoreID == "" {
		return nil, errors.New("wizard: restore: incomplete snapshot")
	}
	store, err := deps.Backend.ResolveStoreByID(ctx, s.StoreID)
	if err != nil {
		return nil, fmt.Errorf("wizard: restore %s: %w", s.ID, err)
	}
	if store == nil {
		return nil, fmt.Errorf("wizard: restore %s: %w", s.ID, booking.ErrStoreNotFound)
	}

	w := newWizard(deps, s.ID, *store, s.TypeHint, s.Admin)
	w.step = s.Step
	w.services = append([]booking.Service(nil), s.Services...)
	w.draft = s.Draft.clone()
	if s.Month.Year != 0 {
		w.month = s.Month
	}
	if s.Confirmation != nil {
		c := *s.Confirmation
		w.confirmation = &c
	}
	w.slots.RestoreFullyBooked(s.FullyBooked)
	if !s.UpdatedAt.IsZero() {
		w.lastActive = s.UpdatedAt
	}

	if w.step == ChoosingDateTime && w.draft.Service != nil && w.draft.Date != nil {
		ticket := w.slots.Begin(availability.Key{ServiceID: w.draft.Service.ID, Date: *w.draft.Date})
		if err := w.slots.Fetch(ctx, ticket); err != nil {
			w.logger.Warn("slot refetch after restore failed", "error", err)
		}
	}
	w.logger.Info("wizard restored", "step", w.step.String())
	return w, nil
}
