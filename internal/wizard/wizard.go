// Package wizard implements the multi-step booking flow: choose a service,
// choose a date and slot, enter contact details, confirm.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/wolfman30/velo-booking/internal/availability"
	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/calendar"
	"github.com/wolfman30/velo-booking/internal/customers"
	"github.com/wolfman30/velo-booking/internal/debounce"
	"github.com/wolfman30/velo-booking/internal/observability/metrics"
	"github.com/wolfman30/velo-booking/internal/session"
	"github.com/wolfman30/velo-booking/pkg/logging"
)

const recordTimeout = 15 * time.Second

// ConfirmationRecorder receives every booking the backend accepted.
type ConfirmationRecorder interface {
	RecordConfirmation(ctx context.Context, b booking.ConfirmedBooking) error
}

// Deps are the collaborators shared by all wizards.
type Deps struct {
	Backend   booking.Backend
	Logger    *logging.Logger
	Metrics   *metrics.WizardMetrics
	Validator *validator.Validate
	// Location is used when a store has no usable time zone.
	Location    *time.Location
	Now         func() time.Time
	SearchDelay time.Duration
	Scheduler   debounce.Scheduler
	Recorder    ConfirmationRecorder
	// OnChange is called without locks held after any state change,
	// including asynchronous slot and customer results.
	OnChange func(*Wizard)
	NewID    func() string
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.Default()
	}
	if d.Validator == nil {
		d.Validator = validator.New()
	}
	if d.Location == nil {
		d.Location = time.UTC
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.New().String() }
	}
	return d
}

// Params select the store and caller for a new wizard.
type Params struct {
	// StoreRef is a canonical store id or a slug.
	StoreRef string
	TypeHint booking.ServiceType
	Session  session.Context
}

// Wizard is one booking flow. It is safe for concurrent use; backend calls
// are made without holding the lock.
type Wizard struct {
	id       string
	deps     Deps
	logger   *logging.Logger
	store    booking.Store
	loc      *time.Location
	typeHint booking.ServiceType
	admin    bool
	slots    *availability.Cache
	lookup   *customers.Lookup

	mu           sync.Mutex
	step         Step
	services     []booking.Service
	servicesErr  error
	draft        Draft
	month        calendar.Month
	submitting   bool
	submitErr    error
	confirmation *booking.Confirmation
	lastActive   time.Time
}

// IsStoreID reports whether ref has the canonical 8-4-4-4-12 hex form.
func IsStoreID(ref string) bool {
	return len(ref) == 36 && uuid.Validate(ref) == nil
}

// ResolveStore looks a store up by id or by slug depending on the form of ref.
func ResolveStore(ctx context.Context, r booking.StoreResolver, ref string) (*booking.Store, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, booking.ErrStoreNotFound
	}
	var (
		store *booking.Store
		err   error
	)
	if IsStoreID(ref) {
		store, err = r.ResolveStoreByID(ctx, ref)
	} else {
		store, err = r.ResolveStoreBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if store == nil {
		return nil, booking.ErrStoreNotFound
	}
	return store, nil
}

// Start resolves the store, loads its eligible services and returns a wizard
// positioned at ChoosingService, or at ChoosingDateTime when exactly one
// service is eligible. A failed services fetch does not fail Start; it is
// reported in the view and can be retried with ReloadServices.
func Start(ctx context.Context, deps Deps, p Params) (*Wizard, error) {
	deps = deps.withDefaults()
	store, err := ResolveStore(ctx, deps.Backend, p.StoreRef)
	if err != nil {
		return nil, fmt.Errorf("wizard: resolve store %q: %w", p.StoreRef, err)
	}

	w := newWizard(deps, deps.NewID(), *store, p.TypeHint, p.Session != nil && p.Session.IsAdmin())
	w.logger.Info("wizard started", "store_ref", p.StoreRef, "type_hint", string(p.TypeHint), "admin", w.admin)

	services, err := deps.Backend.ListStoreServices(ctx, store.ID)
	w.mu.Lock()
	w.applyServicesLocked(services, err)
	w.mu.Unlock()
	return w, nil
}

func newWizard(deps Deps, id string, store booking.Store, hint booking.ServiceType, admin bool) *Wizard {
	w := &Wizard{
		id:       id,
		deps:     deps,
		logger:   deps.Logger.ForWizard(id, store.ID),
		store:    store,
		loc:      store.Location(deps.Location),
		typeHint: hint,
		admin:    admin,
	}
	w.slots = availability.New(store.ID, deps.Backend, w.logger, deps.Metrics)
	if admin {
		w.lookup = customers.NewLookup(store.ID, deps.Backend, customers.Options{
			Delay:     deps.SearchDelay,
			Scheduler: deps.Scheduler,
			Logger:    w.logger,
			Metrics:   deps.Metrics,
			OnChange:  w.changed,
		})
	}
	w.month = calendar.MonthOf(w.today())
	w.lastActive = deps.Now()
	return w
}

// ID returns the wizard id.
func (w *Wizard) ID() string { return w.id }

// Store returns the resolved store.
func (w *Wizard) Store() booking.Store { return w.store }

// IsAdmin reports whether the wizard was started by staff.
func (w *Wizard) IsAdmin() bool { return w.admin }

// Step returns the current step.
func (w *Wizard) Step() Step {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.step
}

// Draft returns a copy of the draft.
func (w *Wizard) Draft() Draft {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.draft.clone()
}

// LastActive returns the time of the last state change.
func (w *Wizard) LastActive() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastActive
}

// Close stops background work.
func (w *Wizard) Close() {
	if w.lookup != nil {
		w.lookup.Close()
	}
	w.slots.Reset()
}

func (w *Wizard) today() booking.Date {
	return booking.DateOf(w.deps.Now().In(w.loc))
}

func (w *Wizard) changed() {
	w.mu.Lock()
	w.lastActive = w.deps.Now()
	w.mu.Unlock()
	if w.deps.OnChange != nil {
		w.deps.OnChange(w)
	}
}

// moveLocked applies a and records the transition.
func (w *Wizard) moveLocked(a Action) error {
	next, err := transition(w.step, a)
	if err != nil {
		return err
	}
	if next != w.step {
		w.deps.Metrics.ObserveTransition(w.step.String(), next.String())
		w.logger.Debug("wizard step changed", "from", w.step.String(), "to", next.String(), "action", a.String())
		w.step = next
	}
	return nil
}

func (w *Wizard) checkLocked(a Action) error {
	_, err := transition(w.step, a)
	return err
}

func (w *Wizard) eligible(services []booking.Service) []booking.Service {
	out := make([]booking.Service, 0, len(services))
	for _, s := range services {
		if !s.Active || !w.store.Offers(s.Type) {
			continue
		}
		if w.typeHint != "" && s.Type != w.typeHint {
			continue
		}
		out = append(out, s)
	}
	return out
}

func (w *Wizard) applyServicesLocked(services []booking.Service, err error) {
	if err != nil {
		w.servicesErr = err
		w.logger.Warn("failed to load store services", "error", err)
		return
	}
	w.servicesErr = nil
	w.services = w.eligible(services)
	if len(w.services) == 1 && w.draft.Service == nil && w.step == ChoosingService {
		only := w.services[0]
		w.draft.Service = &only
		_ = w.moveLocked(ActionSelectService)
	}
}

// ReloadServices retries the services fetch.
func (w *Wizard) ReloadServices(ctx context.Context) error {
	w.mu.Lock()
	if err := w.checkLocked(ActionReloadServices); err != nil {
		w.mu.Unlock()
		return err
	}
	w.mu.Unlock()

	services, err := w.deps.Backend.ListStoreServices(ctx, w.store.ID)

	w.mu.Lock()
	if w.step == ChoosingService {
		w.applyServicesLocked(services, err)
	}
	w.mu.Unlock()
	w.changed()
	if err != nil {
		return fmt.Errorf("wizard: list services: %w", err)
	}
	return nil
}

// SelectService records the service and advances to date selection. A
// different service than before clears date, slot and the slot list.
func (w *Wizard) SelectService(serviceID string) error {
	w.mu.Lock()
	if err := w.checkLocked(ActionSelectService); err != nil {
		w.mu.Unlock()
		return err
	}
	var chosen *booking.Service
	for i := range w.services {
		if w.services[i].ID == serviceID {
			s := w.services[i]
			chosen = &s
			break
		}
	}
	if chosen == nil {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownService, serviceID)
	}
	if w.draft.Service == nil || w.draft.Service.ID != chosen.ID {
		w.draft.Date = nil
		w.draft.Slot = nil
		w.slots.Reset()
		w.slots.ClearMarker()
	}
	w.draft.Service = chosen
	_ = w.moveLocked(ActionSelectService)
	w.mu.Unlock()
	w.changed()
	return nil
}

func (w *Wizard) calendarOptionsLocked() calendar.Options {
	return calendar.Options{
		Month:          w.month,
		Today:          w.today(),
		ClosedWeekdays: w.store.OpeningHours.ClosedWeekdays(),
		FullyBooked:    w.slots.IsFullyBooked,
		Selected:       w.draft.Date,
	}
}

// SelectDate sets the date and loads its slots. Past dates, closed weekdays
// and fully booked dates are rejected with ErrDateNotSelectable and leave
// the wizard unchanged. A failed or superseded slot fetch is reflected in
// the view, not returned.
func (w *Wizard) SelectDate(ctx context.Context, date booking.Date) error {
	w.mu.Lock()
	if err := w.checkLocked(ActionSelectDate); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.draft.Service == nil {
		w.mu.Unlock()
		return booking.ErrIncompleteBookingData
	}
	if !calendar.Selectable(date, w.calendarOptionsLocked()) {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDateNotSelectable, date)
	}
	d := date
	w.draft.Date = &d
	w.draft.Slot = nil
	ticket := w.slots.Begin(availability.Key{ServiceID: w.draft.Service.ID, Date: date})
	w.mu.Unlock()
	w.changed()

	if err := w.slots.Fetch(ctx, ticket); err != nil && !errors.Is(err, availability.ErrStale) {
		w.logger.Warn("slot fetch failed", "date", date.String(), "error", err)
	}
	w.changed()
	return nil
}

// SelectSlot records an available slot from the current list. The step
// does not change.
func (w *Wizard) SelectSlot(technicianID string, start time.Time) error {
	w.mu.Lock()
	if err := w.checkLocked(ActionSelectSlot); err != nil {
		w.mu.Unlock()
		return err
	}
	slot, ok := w.slots.Find(technicianID, start)
	if !ok || !slot.Available || w.draft.Date == nil {
		w.mu.Unlock()
		return ErrSlotUnavailable
	}
	w.draft.Slot = &slot
	w.mu.Unlock()
	w.changed()
	return nil
}

// ContinueToForm moves to the contact step once a slot is selected.
func (w *Wizard) ContinueToForm() error {
	w.mu.Lock()
	if err := w.checkLocked(ActionContinueToForm); err != nil {
		w.mu.Unlock()
		return err
	}
	if w.draft.Service == nil || w.draft.Date == nil || w.draft.Slot == nil {
		w.mu.Unlock()
		return ErrNoSlotSelected
	}
	_ = w.moveLocked(ActionContinueToForm)
	w.mu.Unlock()
	w.changed()
	return nil
}

// PreviousMonth shows the previous month, but never one before the current
// month.
func (w *Wizard) PreviousMonth() error {
	w.mu.Lock()
	if err := w.checkLocked(ActionNavigateMonth); err != nil {
		w.mu.Unlock()
		return err
	}
	prev := w.month.Prev()
	if !prev.Before(calendar.MonthOf(w.today())) {
		w.month = prev
	}
	w.mu.Unlock()
	w.changed()
	return nil
}

// NextMonth shows the following month. Slots are not prefetched.
func (w *Wizard) NextMonth() error {
	w.mu.Lock()
	if err := w.checkLocked(ActionNavigateMonth); err != nil {
		w.mu.Unlock()
		return err
	}
	w.month = w.month.Next()
	w.mu.Unlock()
	w.changed()
	return nil
}

// EditService returns to service selection keeping the draft.
func (w *Wizard) EditService() error {
	return w.edit(ActionEditService)
}

// EditDateTime returns to date selection keeping the draft.
func (w *Wizard) EditDateTime() error {
	return w.edit(ActionEditDateTime)
}

func (w *Wizard) edit(a Action) error {
	w.mu.Lock()
	if w.submitting {
		w.mu.Unlock()
		return ErrSubmitInProgress
	}
	if err := w.moveLocked(a); err != nil {
		w.mu.Unlock()
		return err
	}
	w.submitErr = nil
	w.mu.Unlock()
	w.changed()
	return nil
}

// UpdateContact replaces the contact form.
func (w *Wizard) UpdateContact(form ContactForm) error {
	w.mu.Lock()
	if err := w.checkLocked(ActionUpdateContact); err != nil {
		w.mu.Unlock()
		return err
	}
	w.draft.Contact = form
	w.mu.Unlock()
	w.changed()
	return nil
}

// SetCustomerQuery feeds the staff customer search.
func (w *Wizard) SetCustomerQuery(q string) error {
	if !w.admin {
		return ErrNotAdmin
	}
	w.mu.Lock()
	err := w.checkLocked(ActionCustomerSearch)
	w.mu.Unlock()
	if err != nil {
		return err
	}
	w.lookup.SetQuery(q)
	w.changed()
	return nil
}

// ApplyCustomer copies a search result's name, email and phone into the
// contact form and clears the search.
func (w *Wizard) ApplyCustomer(customerID string) error {
	if !w.admin {
		return ErrNotAdmin
	}
	w.mu.Lock()
	if err := w.checkLocked(ActionCustomerSearch); err != nil {
		w.mu.Unlock()
		return err
	}
	c, ok := w.lookup.Find(customerID)
	if !ok {
		w.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownCustomer, customerID)
	}
	w.draft.Contact.FirstName = c.FirstName
	w.draft.Contact.LastName = c.LastName
	w.draft.Contact.Email = c.Email
	w.draft.Contact.Phone = c.Phone
	w.mu.Unlock()
	w.lookup.Clear()
	w.changed()
	return nil
}

// Submit creates the booking. At most one backend call is in flight per
// wizard; a concurrent Submit fails with ErrSubmitInProgress. On failure
// the wizard stays on the contact step with the draft untouched.
func (w *Wizard) Submit(ctx context.Context) (*booking.Confirmation, error) {
	w.mu.Lock()
	if err := w.checkLocked(ActionSubmit); err != nil {
		w.mu.Unlock()
		return nil, err
	}
	if w.submitting {
		w.mu.Unlock()
		return nil, ErrSubmitInProgress
	}
	if w.store.ID == "" || w.draft.Service == nil || w.draft.Slot == nil {
		w.mu.Unlock()
		w.deps.Metrics.ObserveSubmit("incomplete")
		return nil, booking.ErrIncompleteBookingData
	}
	if err := checkRequired(w.deps.Validator, w.draft.Contact); err != nil {
		w.submitErr = err
		w.mu.Unlock()
		w.deps.Metrics.ObserveSubmit("invalid")
		w.changed()
		return nil, err
	}

	req := booking.CreateBookingRequest{
		StoreID:      w.store.ID,
		ServiceID:    w.draft.Service.ID,
		TechnicianID: w.draft.Slot.TechnicianID,
		Start:        w.draft.Slot.Start,
		Customer:     w.draft.Contact.Contact(),
		Context:      w.draft.Contact.BookingContext(),
	}
	service := *w.draft.Service
	slot := *w.draft.Slot
	w.submitting = true
	w.submitErr = nil
	w.mu.Unlock()
	w.changed()

	conf, err := w.deps.Backend.CreateBooking(ctx, req)

	w.mu.Lock()
	w.submitting = false
	if err != nil {
		w.submitErr = err
		w.mu.Unlock()
		w.deps.Metrics.ObserveSubmit(submitOutcome(err))
		w.logger.Warn("booking submission failed", "service_id", req.ServiceID, "error", err)
		w.changed()
		return nil, fmt.Errorf("wizard: create booking: %w", err)
	}
	if conf == nil {
		conf = &booking.Confirmation{}
	}
	w.confirmation = conf
	_ = w.moveLocked(ActionSubmitSucceeded)
	confirmedAt := w.deps.Now()
	w.mu.Unlock()

	w.deps.Metrics.ObserveSubmit("ok")
	w.logger.Info("booking confirmed", "booking_id", conf.BookingID, "service_id", req.ServiceID)
	if w.lookup != nil {
		w.lookup.Close()
	}
	if w.deps.Recorder != nil {
		// The booking exists at the backend; recording must outlive a
		// client that disconnects now.
		recordCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
		defer cancel()
		err := w.deps.Recorder.RecordConfirmation(recordCtx, booking.ConfirmedBooking{
			Confirmation: *conf,
			Store:        w.store,
			Service:      service,
			Slot:         slot,
			Customer:     req.Customer,
			ConfirmedAt:  confirmedAt,
		})
		if err != nil {
			w.logger.Error("failed to record confirmation", "booking_id", conf.BookingID, "error", err)
		}
	}
	w.changed()
	return conf, nil
}

func submitOutcome(err error) string {
	switch {
	case errors.Is(err, booking.ErrBookingConflict):
		return "conflict"
	case booking.IsValidationError(err):
		return "invalid"
	default:
		return "error"
	}
}

func (d Draft) clone() Draft {
	out := Draft{Contact: d.Contact}
	if d.Service != nil {
		s := *d.Service
		out.Service = &s
	}
	if d.Date != nil {
		dt := *d.Date
		out.Date = &dt
	}
	if d.Slot != nil {
		sl := *d.Slot
		out.Slot = &sl
	}
	return out
}
