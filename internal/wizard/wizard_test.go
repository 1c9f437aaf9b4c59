package wizard

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/debounce"
	"github.com/wolfman30/velo-booking/internal/session"
)

func TestStartResolvesByIDOrSlug(t *testing.T) {
	backend := newFakeBackend()
	deps := testDeps(backend)

	if _, err := Start(context.Background(), deps, Params{StoreRef: testStoreID}); err != nil {
		t.Fatalf("start by id: %v", err)
	}
	if _, err := Start(context.Background(), deps, Params{StoreRef: testStoreSlug}); err != nil {
		t.Fatalf("start by slug: %v", err)
	}
	if backend.byIDCalls != 1 || backend.bySlugCalls != 1 {
		t.Fatalf("expected one id and one slug lookup, got id=%d slug=%d", backend.byIDCalls, backend.bySlugCalls)
	}

	// Uppercase hex still matches the identifier pattern.
	_, err := Start(context.Background(), deps, Params{StoreRef: "3F2B8C1E-4D5A-4B6C-8D7E-9F0A1B2C3D4E"})
	if !errors.Is(err, booking.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound, got %v", err)
	}
	if backend.byIDCalls != 2 {
		t.Fatalf("expected id lookup for uppercase uuid, got %d", backend.byIDCalls)
	}

	if _, err := Start(context.Background(), deps, Params{StoreRef: "unknown-shop"}); !errors.Is(err, booking.ErrStoreNotFound) {
		t.Fatalf("expected ErrStoreNotFound for unknown slug, got %v", err)
	}
}

func TestIsStoreID(t *testing.T) {
	tests := map[string]bool{
		testStoreID:                              true,
		"3f2b8c1e4d5a4b6c8d7e9f0a1b2c3d4e":       false,
		"{3f2b8c1e-4d5a-4b6c-8d7e-9f0a1b2c3d4e}": false,
		"velo-mitte":                             false,
		"3f2b8c1e-4d5a-4b6c-8d7e-9f0a1b2c3d4z":   false,
	}
	for ref, want := range tests {
		if got := IsStoreID(ref); got != want {
			t.Errorf("IsStoreID(%q) = %v, want %v", ref, got, want)
		}
	}
}

func TestTypeHintAutoSelectsSingleService(t *testing.T) {
	w, err := startWizard(newFakeBackend(), booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	v := w.View()
	if v.Step != ChoosingDateTime {
		t.Fatalf("expected ChoosingDateTime, got %s", v.Step)
	}
	if len(v.Services) != 1 || v.Services[0].ID != fittingService.ID {
		t.Fatalf("expected only the fitting service, got %+v", v.Services)
	}
	if v.Draft.Service == nil || v.Draft.Service.ID != fittingService.ID {
		t.Fatalf("expected fitting service preselected, got %+v", v.Draft.Service)
	}
}

func TestEligibleServicesHonourStoreFlags(t *testing.T) {
	backend := newFakeBackend()
	backend.store.OffersWorkshop = false
	backend.services = append(backend.services, booking.Service{ID: "svc-old", Type: booking.ServiceTypeFitting, Active: false})

	w, err := startWizard(backend, "", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if w.Step() != ChoosingDateTime || w.Draft().Service.ID != fittingService.ID {
		t.Fatalf("expected only active fitting service to be auto-selected, got step %s", w.Step())
	}
}

func TestMultipleServicesRequireChoice(t *testing.T) {
	w, err := startWizard(newFakeBackend(), "", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if w.Step() != ChoosingService {
		t.Fatalf("expected ChoosingService, got %s", w.Step())
	}
	if err := w.SelectService("nope"); !errors.Is(err, ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
	if err := w.SelectService(workshopService.ID); err != nil {
		t.Fatalf("select service: %v", err)
	}
	if w.Step() != ChoosingDateTime {
		t.Fatalf("expected ChoosingDateTime, got %s", w.Step())
	}
}

func TestServicesFailureThenReload(t *testing.T) {
	backend := newFakeBackend()
	backend.servicesErr = errors.New("catalog down")
	w, err := startWizard(backend, booking.ServiceTypeWorkshop, false)
	if err != nil {
		t.Fatalf("services failure must not fail start: %v", err)
	}
	if v := w.View(); v.ServicesError == "" || len(v.Services) != 0 {
		t.Fatalf("expected services error in view: %+v", v)
	}

	backend.servicesErr = nil
	if err := w.ReloadServices(context.Background()); err != nil {
		t.Fatalf("reload: %v", err)
	}
	v := w.View()
	if v.ServicesError != "" || v.Step != ChoosingDateTime || v.Draft.Service.ID != workshopService.ID {
		t.Fatalf("reload should auto-select the workshop service: %+v", v)
	}
}

func TestClosedWeekdayIsNoOp(t *testing.T) {
	backend := newFakeBackend()
	w, err := startWizard(backend, booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.SelectDate(context.Background(), tomorrow); err != nil {
		t.Fatalf("select date: %v", err)
	}
	before := w.View()

	for d := sunday; d.Month == time.October || d.Month == time.November && d.Day < 30; d = d.AddDays(7) {
		if err := w.SelectDate(context.Background(), d); !errors.Is(err, ErrDateNotSelectable) {
			t.Fatalf("SelectDate(%s) = %v, want ErrDateNotSelectable", d, err)
		}
	}
	if !reflect.DeepEqual(before, w.View()) {
		t.Fatal("rejected Sunday changed the wizard state")
	}
	if n := backend.availabilityCalls(); n != 1 {
		t.Fatalf("expected only the accepted date to be fetched, got %d fetches", n)
	}
}

func TestPastDateRejected(t *testing.T) {
	w, err := startWizard(newFakeBackend(), booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.SelectDate(context.Background(), yesterday); !errors.Is(err, ErrDateNotSelectable) {
		t.Fatalf("expected ErrDateNotSelectable for yesterday, got %v", err)
	}
	today := booking.DateOf(testNow)
	if err := w.SelectDate(context.Background(), today); err != nil {
		t.Fatalf("today must be selectable: %v", err)
	}
}

func TestOpeningHoursDriveClosedDays(t *testing.T) {
	backend := newFakeBackend()
	open := &booking.DayHours{Open: "09:00", Close: "18:00"}
	backend.store.OpeningHours = booking.OpeningHours{
		Monday: open, Tuesday: open, Thursday: open, Friday: open, Saturday: open, Sunday: open,
		Wednesday: &booking.DayHours{Closed: true},
	}
	backend.slots[sunday] = []booking.TimeSlot{slotAt(sunday, "tech-1", 10, true)}
	w, err := startWizard(backend, booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.SelectDate(context.Background(), wednesday); !errors.Is(err, ErrDateNotSelectable) {
		t.Fatalf("expected closed Wednesday rejected, got %v", err)
	}
	if err := w.SelectDate(context.Background(), sunday); err != nil {
		t.Fatalf("store open on Sunday: %v", err)
	}
}

func TestFullyBookedDateIsMarkedAndRejected(t *testing.T) {
	backend := newFakeBackend()
	backend.slots[wednesday] = []booking.TimeSlot{slotAt(wednesday, "tech-1", 9, false), slotAt(wednesday, "tech-2", 9, false)}
	w, err := startWizard(backend, booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.SelectDate(context.Background(), wednesday); err != nil {
		t.Fatalf("select date: %v", err)
	}
	v := w.View()
	day := v.Calendar[wednesday.Day-1]
	if !day.FullyBooked || !day.Disabled() {
		t.Fatalf("expected fully booked calendar day: %+v", day)
	}

	if err := w.SelectDate(context.Background(), tomorrow); err != nil {
		t.Fatalf("select other date: %v", err)
	}
	if err := w.SelectDate(context.Background(), wednesday); !errors.Is(err, ErrDateNotSelectable) {
		t.Fatalf("fully booked date must be rejected, got %v", err)
	}
}

func TestChangingServiceResetsDateAndSlot(t *testing.T) {
	w, err := startWizard(newFakeBackend(), "", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.SelectService(fittingService.ID); err != nil {
		t.Fatalf("select A: %v", err)
	}
	if err := w.SelectDate(context.Background(), tomorrow); err != nil {
		t.Fatalf("select date: %v", err)
	}
	if err := w.SelectSlot("tech-1", slotAt(tomorrow, "tech-1", 9, true).Start); err != nil {
		t.Fatalf("select slot: %v", err)
	}
	if err := w.EditService(); err != nil {
		t.Fatalf("edit service: %v", err)
	}
	if err := w.SelectService(workshopService.ID); err != nil {
		t.Fatalf("select B: %v", err)
	}
	d := w.Draft()
	if d.Date != nil || d.Slot != nil {
		t.Fatalf("expected date and slot reset, got date=%v slot=%v", d.Date, d.Slot)
	}
	if v := w.View(); len(v.Slots.Slots) != 0 || v.Slots.Date != nil {
		t.Fatalf("expected slot list reset: %+v", v.Slots)
	}
}

func TestReselectingSameServiceKeepsSelection(t *testing.T) {
	w, err := startWizard(newFakeBackend(), "", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = w.SelectService(fittingService.ID)
	_ = w.SelectDate(context.Background(), tomorrow)
	_ = w.EditService()
	if err := w.SelectService(fittingService.ID); err != nil {
		t.Fatalf("reselect: %v", err)
	}
	if d := w.Draft(); d.Date == nil || *d.Date != tomorrow {
		t.Fatalf("same service must keep the date, got %v", d.Date)
	}
}

func TestSelectSlotRejectsUnavailable(t *testing.T) {
	w, err := startWizard(newFakeBackend(), booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.SelectDate(context.Background(), tomorrow); err != nil {
		t.Fatalf("select date: %v", err)
	}
	if err := w.SelectSlot("tech-2", slotAt(tomorrow, "tech-2", 9, false).Start); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable, got %v", err)
	}
	if err := w.SelectSlot("tech-9", slotAt(tomorrow, "tech-9", 9, true).Start); !errors.Is(err, ErrSlotUnavailable) {
		t.Fatalf("expected ErrSlotUnavailable for unknown slot, got %v", err)
	}
	if err := w.SelectSlot("tech-1", slotAt(tomorrow, "tech-1", 9, true).Start); err != nil {
		t.Fatalf("select slot: %v", err)
	}
	if w.Step() != ChoosingDateTime {
		t.Fatalf("selecting a slot must not change step, got %s", w.Step())
	}

	if err := w.SelectDate(context.Background(), wednesday); err != nil {
		t.Fatalf("select date: %v", err)
	}
	if w.Draft().Slot != nil {
		t.Fatal("changing the date must clear the slot")
	}
}

func TestContinueToFormRequiresSlot(t *testing.T) {
	w, err := startWizard(newFakeBackend(), booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := w.ContinueToForm(); !errors.Is(err, ErrNoSlotSelected) {
		t.Fatalf("expected ErrNoSlotSelected, got %v", err)
	}
	if w.Step() != ChoosingDateTime {
		t.Fatalf("step changed without slot: %s", w.Step())
	}

	_ = w.SelectDate(context.Background(), tomorrow)
	_ = w.SelectSlot("tech-1", slotAt(tomorrow, "tech-1", 9, true).Start)
	if err := w.ContinueToForm(); err != nil {
		t.Fatalf("continue: %v", err)
	}
	if w.Step() != EnteringContactInfo {
		t.Fatalf("expected EnteringContactInfo, got %s", w.Step())
	}
}

func TestMonthNavigationIsClampedAndLazy(t *testing.T) {
	backend := newFakeBackend()
	w, err := startWizard(backend, booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	start := w.View().Month
	if err := w.PreviousMonth(); err != nil {
		t.Fatalf("previous: %v", err)
	}
	if got := w.View().Month; got != start {
		t.Fatalf("month moved before the current month: %v", got)
	}
	_ = w.NextMonth()
	_ = w.NextMonth()
	if got := w.View().Month; got.Month != time.December {
		t.Fatalf("expected December, got %v", got)
	}
	_ = w.PreviousMonth()
	if got := w.View().Month; got.Month != time.November {
		t.Fatalf("expected November, got %v", got)
	}
	if n := backend.availabilityCalls(); n != 0 {
		t.Fatalf("month navigation must not fetch slots, got %d", n)
	}
}

func TestEditKeepsContactForm(t *testing.T) {
	backend := newFakeBackend()
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := w.EditDateTime(); err != nil {
		t.Fatalf("edit date/time: %v", err)
	}
	if w.Step() != ChoosingDateTime {
		t.Fatalf("expected ChoosingDateTime, got %s", w.Step())
	}
	d := w.Draft()
	if d.Contact.FirstName != "Lena" || d.Slot == nil || d.Date == nil {
		t.Fatalf("edit must keep the draft: %+v", d)
	}
	if err := w.ContinueToForm(); err != nil {
		t.Fatalf("continue again: %v", err)
	}
}

func TestInvalidTransitionsLeaveStateUnchanged(t *testing.T) {
	w, err := startWizard(newFakeBackend(), "", false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	before := w.View()
	checks := []error{
		w.SelectDate(context.Background(), tomorrow),
		w.ContinueToForm(),
		w.NextMonth(),
		w.EditDateTime(),
		w.UpdateContact(ContactForm{FirstName: "x"}),
	}
	for i, err := range checks {
		if !errors.Is(err, ErrInvalidTransition) {
			t.Fatalf("check %d: expected ErrInvalidTransition, got %v", i, err)
		}
	}
	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("submit: expected ErrInvalidTransition, got %v", err)
	}
	if !reflect.DeepEqual(before, w.View()) {
		t.Fatal("invalid transitions changed the wizard")
	}
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		from Step
		a    Action
		to   Step
		ok   bool
	}{
		{ChoosingService, ActionSelectService, ChoosingDateTime, true},
		{ChoosingService, ActionContinueToForm, ChoosingService, false},
		{ChoosingDateTime, ActionContinueToForm, EnteringContactInfo, true},
		{ChoosingDateTime, ActionEditService, ChoosingService, true},
		{ChoosingDateTime, ActionSubmit, ChoosingDateTime, false},
		{EnteringContactInfo, ActionEditDateTime, ChoosingDateTime, true},
		{EnteringContactInfo, ActionSubmitSucceeded, Confirmed, true},
		{EnteringContactInfo, ActionSelectDate, EnteringContactInfo, false},
		{Confirmed, ActionEditService, Confirmed, false},
		{Confirmed, ActionSubmit, Confirmed, false},
	}
	for _, tt := range tests {
		got, err := transition(tt.from, tt.a)
		if (err == nil) != tt.ok {
			t.Fatalf("transition(%s, %s) error = %v, want ok=%v", tt.from, tt.a, err, tt.ok)
		}
		if got != tt.to {
			t.Fatalf("transition(%s, %s) = %s, want %s", tt.from, tt.a, got, tt.to)
		}
	}
}

func TestSelectDateOverlappingFetchesKeepLatestDate(t *testing.T) {
	backend := newFakeBackend()
	// The superseded date comes back fully booked; it must not be marked.
	backend.slots[tomorrow] = []booking.TimeSlot{slotAt(tomorrow, "tech-2", 9, false)}
	release := make(chan struct{})
	backend.availabilityGates = map[booking.Date]chan struct{}{tomorrow: release}
	backend.availabilityStarted = make(chan booking.Date, 4)

	w, err := startWizard(backend, booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	first := make(chan error, 1)
	go func() { first <- w.SelectDate(context.Background(), tomorrow) }()
	select {
	case d := <-backend.availabilityStarted:
		if d != tomorrow {
			t.Fatalf("expected the first fetch for %s, got %s", tomorrow, d)
		}
	case <-time.After(time.Second):
		t.Fatal("first fetch never started")
	}

	if err := w.SelectDate(context.Background(), wednesday); err != nil {
		t.Fatalf("select wednesday: %v", err)
	}
	close(release)
	select {
	case err := <-first:
		if err != nil {
			t.Fatalf("select tomorrow: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("first SelectDate did not return")
	}

	v := w.View()
	if v.Draft.Date == nil || *v.Draft.Date != wednesday {
		t.Fatalf("expected draft date %s, got %v", wednesday, v.Draft.Date)
	}
	if v.Slots.Date == nil || *v.Slots.Date != wednesday {
		t.Fatalf("expected slots for %s, got %v", wednesday, v.Slots.Date)
	}
	want := []booking.TimeSlot{slotAt(wednesday, "tech-1", 14, true)}
	if !reflect.DeepEqual(v.Slots.Slots, want) {
		t.Fatalf("expected wednesday slots %+v, got %+v", want, v.Slots.Slots)
	}
	for _, day := range v.Calendar {
		if day.Date == tomorrow && day.FullyBooked {
			t.Fatal("a discarded fetch must not mark its date fully booked")
		}
	}
}

func TestSubmitRecordsAfterClientDisconnects(t *testing.T) {
	backend := newFakeBackend()
	ctx, cancel := context.WithCancel(context.Background())
	rec := &ctxRecorder{}
	deps := testDeps(backend)
	deps.Backend = disconnectingBackend{fakeBackend: backend, disconnect: cancel}
	deps.Recorder = rec
	w, err := wizardAtContactStep(backend, deps)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	if _, err := w.Submit(ctx); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !rec.called {
		t.Fatal("expected the confirmation to be recorded")
	}
	if rec.err != nil {
		t.Fatalf("recording context was cancelled with the request: %v", rec.err)
	}
	if !rec.hasDeadline {
		t.Fatal("recording context must be bounded")
	}
}

func TestSubmitBuildsRequest(t *testing.T) {
	backend := newFakeBackend()
	rec := &recorderStub{}
	deps := testDeps(backend)
	deps.Recorder = rec
	w, err := wizardAtContactStep(backend, deps)
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	form := w.Draft().Contact
	form.Height = " 182 "
	form.Weight = "abc"
	form.ShoeSize = "42,5"
	if err := w.UpdateContact(form); err != nil {
		t.Fatalf("update contact: %v", err)
	}

	conf, err := w.Submit(context.Background())
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if conf.ConfirmationToken != "tok-1" || w.Step() != Confirmed {
		t.Fatalf("unexpected result: %+v step=%s", conf, w.Step())
	}

	calls := backend.createCalls()
	if len(calls) != 1 {
		t.Fatalf("expected one CreateBooking call, got %d", len(calls))
	}
	req := calls[0]
	if req.StoreID != testStoreID || req.ServiceID != fittingService.ID || req.TechnicianID != "tech-1" {
		t.Fatalf("unexpected ids: %+v", req)
	}
	if !req.Start.Equal(slotAt(tomorrow, "tech-1", 9, true).Start) {
		t.Fatalf("unexpected start %v", req.Start)
	}
	if req.Customer.Email != "lena@example.com" || req.Customer.FirstName != "Lena" {
		t.Fatalf("unexpected customer %+v", req.Customer)
	}
	if req.Context == nil || req.Context.HeightCM == nil || *req.Context.HeightCM != 182 {
		t.Fatalf("expected height 182, got %+v", req.Context)
	}
	if req.Context.WeightKG != nil {
		t.Fatalf("non-numeric weight must be omitted, got %v", *req.Context.WeightKG)
	}
	if req.Context.ShoeSize == nil || *req.Context.ShoeSize != 42.5 {
		t.Fatalf("expected shoe size 42.5, got %+v", req.Context.ShoeSize)
	}

	if len(rec.events) != 1 || rec.events[0].Confirmation.BookingID != "bk-1" || rec.events[0].Service.ID != fittingService.ID {
		t.Fatalf("expected one recorded confirmation, got %+v", rec.events)
	}
}

func TestSubmitOmitsEmptyContext(t *testing.T) {
	backend := newFakeBackend()
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if ctx := backend.createCalls()[0].Context; ctx != nil {
		t.Fatalf("expected no context payload, got %+v", ctx)
	}
}

func TestSubmitOmitsNonNumericMeasurements(t *testing.T) {
	backend := newFakeBackend()
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	form := w.Draft().Contact
	form.Height = "NaN"
	form.Weight = "abc"
	form.ShoeSize = "inf"
	if err := w.UpdateContact(form); err != nil {
		t.Fatalf("update contact: %v", err)
	}

	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("submit: %v", err)
	}
	if w.Step() != Confirmed {
		t.Fatalf("expected Confirmed, got %s", w.Step())
	}
	req := backend.createCalls()[0]
	if req.Context != nil {
		t.Fatalf("expected every measurement omitted, got %+v", req.Context)
	}
	if _, err := json.Marshal(req); err != nil {
		t.Fatalf("request must be encodable: %v", err)
	}
}

func TestParseNumber(t *testing.T) {
	tests := []struct {
		in   string
		want float64
		ok   bool
	}{
		{in: "182", want: 182, ok: true},
		{in: " 72,5 ", want: 72.5, ok: true},
		{in: ".5", want: 0.5, ok: true},
		{in: "+3", want: 3, ok: true},
		{in: "44.", want: 44, ok: true},
		{in: ""},
		{in: "abc"},
		{in: "NaN"},
		{in: "nan"},
		{in: "inf"},
		{in: "-Infinity"},
		{in: "0x1p3"},
		{in: "1e3"},
		{in: "1,2,3"},
		{in: "1_000"},
	}
	for _, tt := range tests {
		got := parseNumber(tt.in)
		if (got != nil) != tt.ok {
			t.Fatalf("parseNumber(%q) = %v, want ok=%v", tt.in, got, tt.ok)
		}
		if got != nil && *got != tt.want {
			t.Fatalf("parseNumber(%q) = %v, want %v", tt.in, *got, tt.want)
		}
	}
}

func TestSubmitRequiresContactFields(t *testing.T) {
	backend := newFakeBackend()
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := w.UpdateContact(ContactForm{FirstName: "Lena", Email: "  "}); err != nil {
		t.Fatalf("update: %v", err)
	}
	_, err = w.Submit(context.Background())
	var verr *booking.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := "missing required fields: accept_terms, email, last_name, phone"
	if verr.Message != want {
		t.Fatalf("message = %q, want %q", verr.Message, want)
	}
	if len(backend.createCalls()) != 0 {
		t.Fatal("backend must not be called")
	}
	if w.Step() != EnteringContactInfo {
		t.Fatalf("expected to stay on contact step, got %s", w.Step())
	}
}

func TestSubmitIncompleteDraft(t *testing.T) {
	backend := newFakeBackend()
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	w.mu.Lock()
	w.draft.Slot = nil
	w.mu.Unlock()

	if _, err := w.Submit(context.Background()); !errors.Is(err, booking.ErrIncompleteBookingData) {
		t.Fatalf("expected ErrIncompleteBookingData, got %v", err)
	}
	if len(backend.createCalls()) != 0 {
		t.Fatal("backend must not be called")
	}
}

func TestConcurrentSubmitCallsBackendOnce(t *testing.T) {
	backend := newFakeBackend()
	backend.createGate = make(chan struct{})
	backend.createStarted = make(chan struct{})
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}

	first := make(chan error, 1)
	go func() {
		_, err := w.Submit(context.Background())
		first <- err
	}()
	<-backend.createStarted

	if _, err := w.Submit(context.Background()); !errors.Is(err, ErrSubmitInProgress) {
		t.Fatalf("expected ErrSubmitInProgress, got %v", err)
	}
	if !w.View().Submitting {
		t.Fatal("view should report submitting")
	}
	close(backend.createGate)
	if err := <-first; err != nil {
		t.Fatalf("first submit: %v", err)
	}
	if n := len(backend.createCalls()); n != 1 {
		t.Fatalf("expected exactly one CreateBooking call, got %d", n)
	}
}

func TestConflictKeepsDraftOnContactStep(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = booking.ErrBookingConflict
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	before := w.Draft()

	_, err = w.Submit(context.Background())
	if !errors.Is(err, booking.ErrBookingConflict) {
		t.Fatalf("expected ErrBookingConflict, got %v", err)
	}
	if w.Step() != EnteringContactInfo {
		t.Fatalf("expected EnteringContactInfo, got %s", w.Step())
	}
	after := w.Draft()
	if !reflect.DeepEqual(before, after) {
		t.Fatalf("draft changed after conflict:\nbefore %+v\nafter  %+v", before, after)
	}
	v := w.View()
	if v.Submitting || v.SubmitError == "" {
		t.Fatalf("expected submit re-enabled with error shown: %+v", v)
	}

	// Resubmitting is allowed and makes a new call.
	backend.createErr = nil
	if _, err := w.Submit(context.Background()); err != nil {
		t.Fatalf("resubmit: %v", err)
	}
	if n := len(backend.createCalls()); n != 2 {
		t.Fatalf("expected two calls in total, got %d", n)
	}
}

func TestBackendValidationErrorSurfaced(t *testing.T) {
	backend := newFakeBackend()
	backend.createErr = &booking.ValidationError{Message: "Telefonnummer ist ungültig"}
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	_, err = w.Submit(context.Background())
	var verr *booking.ValidationError
	if !errors.As(err, &verr) || verr.Message != "Telefonnummer ist ungültig" {
		t.Fatalf("expected backend validation message, got %v", err)
	}
}

func TestCustomerLookupAdminOnly(t *testing.T) {
	backend := newFakeBackend()
	w, err := wizardAtContactStep(backend, testDeps(backend))
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if err := w.SetCustomerQuery("lena"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if err := w.ApplyCustomer("c1"); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if w.View().Customers != nil {
		t.Fatal("non-admin view must not expose customer search")
	}
}

func TestAdminCustomerSearchPrefillsContact(t *testing.T) {
	backend := newFakeBackend()
	backend.customers = []booking.Customer{{ID: "c1", FirstName: "Jonas", LastName: "Berg", Email: "jonas@example.com", Phone: "+49 40 555"}}
	clock := debounce.NewFakeScheduler()
	deps := testDeps(backend)
	deps.Scheduler = clock

	w, err := Start(context.Background(), deps, Params{StoreRef: testStoreSlug, TypeHint: booking.ServiceTypeFitting, Session: session.Static(true)})
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = w.SelectDate(context.Background(), tomorrow)
	_ = w.SelectSlot("tech-1", slotAt(tomorrow, "tech-1", 9, true).Start)
	_ = w.ContinueToForm()
	_ = w.UpdateContact(ContactForm{FirstName: "X", Notes: "Carbon frame", AcceptTerms: true})

	if err := w.SetCustomerQuery("jo"); err != nil {
		t.Fatalf("query: %v", err)
	}
	if err := w.SetCustomerQuery("jon"); err != nil {
		t.Fatalf("query: %v", err)
	}
	clock.Advance(299 * time.Millisecond)
	if n := len(backend.searchCalls()); n != 0 {
		t.Fatalf("expected no search before the delay, got %d", n)
	}
	clock.Advance(time.Millisecond)
	if got := backend.searchCalls(); len(got) != 1 || got[0] != "jon" {
		t.Fatalf("expected one search for jon, got %v", got)
	}

	if err := w.ApplyCustomer("c1"); err != nil {
		t.Fatalf("apply: %v", err)
	}
	c := w.Draft().Contact
	if c.FirstName != "Jonas" || c.LastName != "Berg" || c.Email != "jonas@example.com" || c.Phone != "+49 40 555" {
		t.Fatalf("contact not prefilled: %+v", c)
	}
	if c.Notes != "Carbon frame" || !c.AcceptTerms {
		t.Fatalf("prefill must only touch the four contact fields: %+v", c)
	}
	if v := w.View().Customers; v == nil || v.Query != "" || len(v.Results) != 0 {
		t.Fatalf("expected search cleared, got %+v", v)
	}
	if err := w.ApplyCustomer("c1"); !errors.Is(err, ErrUnknownCustomer) {
		t.Fatalf("expected ErrUnknownCustomer after clearing, got %v", err)
	}
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	backend := newFakeBackend()
	backend.slots[wednesday] = []booking.TimeSlot{slotAt(wednesday, "tech-1", 9, false)}
	w, err := startWizard(backend, booking.ServiceTypeFitting, false)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = w.SelectDate(context.Background(), wednesday)
	_ = w.SelectDate(context.Background(), tomorrow)
	_ = w.SelectSlot("tech-1", slotAt(tomorrow, "tech-1", 9, true).Start)

	restored, err := Restore(context.Background(), testDeps(backend), w.Snapshot())
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if restored.ID() != w.ID() || restored.Step() != ChoosingDateTime {
		t.Fatalf("unexpected restored wizard %s/%s", restored.ID(), restored.Step())
	}
	if !reflect.DeepEqual(restored.Draft(), w.Draft()) {
		t.Fatal("draft not restored")
	}
	v := restored.View()
	if !v.Calendar[wednesday.Day-1].FullyBooked {
		t.Fatal("fully booked marker not restored")
	}
	if len(v.Slots.Slots) != 2 {
		t.Fatalf("expected slots refetched for the selected date, got %+v", v.Slots)
	}
}
