package wizard

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
	"github.com/wolfman30/velo-booking/internal/debounce"
	"github.com/wolfman30/velo-booking/internal/session"
)

const (
	testStoreID   = "3f2b8c1e-4d5a-4b6c-8d7e-9f0a1b2c3d4e"
	testStoreSlug = "velo-mitte"
)

var (
	// Monday, 19 October 2026.
	testNow   = time.Date(2026, time.October, 19, 10, 0, 0, 0, time.UTC)
	tomorrow  = booking.Date{Year: 2026, Month: time.October, Day: 20}
	wednesday = booking.Date{Year: 2026, Month: time.October, Day: 21}
	sunday    = booking.Date{Year: 2026, Month: time.October, Day: 25}
	yesterday = booking.Date{Year: 2026, Month: time.October, Day: 18}

	fittingService  = booking.Service{ID: "svc-fit", Name: "Bike fitting", Type: booking.ServiceTypeFitting, DurationMinutes: 90, Active: true}
	workshopService = booking.Service{ID: "svc-ws", Name: "Inspection", Type: booking.ServiceTypeWorkshop, DurationMinutes: 60, Active: true}
)

func slotAt(d booking.Date, tech string, hour int, available bool) booking.TimeSlot {
	return booking.TimeSlot{
		TechnicianID: tech,
		Start:        time.Date(d.Year, d.Month, d.Day, hour, 0, 0, 0, time.UTC),
		Available:    available,
	}
}

type fakeBackend struct {
	mu sync.Mutex

	store       booking.Store
	services    []booking.Service
	servicesErr error
	slots       map[booking.Date][]booking.TimeSlot
	customers   []booking.Customer

	createErr     error
	createGate    chan struct{}
	createStarted chan struct{}

	// availabilityGates hold GetAvailability for a date until closed;
	// availabilityStarted, when set, receives each requested date.
	availabilityGates   map[booking.Date]chan struct{}
	availabilityStarted chan booking.Date

	byIDCalls    int
	bySlugCalls  int
	availability []booking.Date
	searches     []string
	creates      []booking.CreateBookingRequest
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		store: booking.Store{
			ID:             testStoreID,
			Slug:           testStoreSlug,
			Name:           "Velo Mitte",
			OffersFitting:  true,
			OffersWorkshop: true,
		},
		services: []booking.Service{fittingService, workshopService},
		slots: map[booking.Date][]booking.TimeSlot{
			tomorrow:  {slotAt(tomorrow, "tech-1", 9, true), slotAt(tomorrow, "tech-2", 9, false)},
			wednesday: {slotAt(wednesday, "tech-1", 14, true)},
		},
	}
}

func (f *fakeBackend) ResolveStoreBySlug(ctx context.Context, slug string) (*booking.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bySlugCalls++
	if slug != f.store.Slug {
		return nil, booking.ErrStoreNotFound
	}
	s := f.store
	return &s, nil
}

func (f *fakeBackend) ResolveStoreByID(ctx context.Context, id string) (*booking.Store, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byIDCalls++
	if id != f.store.ID {
		return nil, booking.ErrStoreNotFound
	}
	s := f.store
	return &s, nil
}

func (f *fakeBackend) ListStoreServices(ctx context.Context, storeID string) ([]booking.Service, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.servicesErr != nil {
		return nil, f.servicesErr
	}
	return append([]booking.Service(nil), f.services...), nil
}

func (f *fakeBackend) GetAvailability(ctx context.Context, storeID, serviceID string, date booking.Date) ([]booking.TimeSlot, error) {
	f.mu.Lock()
	f.availability = append(f.availability, date)
	gate, started := f.availabilityGates[date], f.availabilityStarted
	slots := append([]booking.TimeSlot(nil), f.slots[date]...)
	f.mu.Unlock()
	if started != nil {
		started <- date
	}
	if gate != nil {
		<-gate
	}
	return slots, nil
}

func (f *fakeBackend) CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (*booking.Confirmation, error) {
	f.mu.Lock()
	f.creates = append(f.creates, req)
	gate, started, err := f.createGate, f.createStarted, f.createErr
	f.mu.Unlock()
	if started != nil {
		close(started)
	}
	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	return &booking.Confirmation{BookingID: "bk-1", ConfirmationToken: "tok-1"}, nil
}

func (f *fakeBackend) SearchCustomers(ctx context.Context, storeID, query string) ([]booking.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searches = append(f.searches, query)
	return append([]booking.Customer(nil), f.customers...), nil
}

func (f *fakeBackend) availabilityCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.availability)
}

func (f *fakeBackend) createCalls() []booking.CreateBookingRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]booking.CreateBookingRequest(nil), f.creates...)
}

func (f *fakeBackend) searchCalls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searches...)
}

type recorderStub struct {
	mu     sync.Mutex
	events []booking.ConfirmedBooking
}

func (r *recorderStub) RecordConfirmation(ctx context.Context, b booking.ConfirmedBooking) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, b)
	return nil
}

func testDeps(backend *fakeBackend) Deps {
	return Deps{
		Backend:   backend,
		Now:       func() time.Time { return testNow },
		Scheduler: debounce.NewFakeScheduler(),
	}
}

func startWizard(backend *fakeBackend, hint booking.ServiceType, admin bool) (*Wizard, error) {
	return Start(context.Background(), testDeps(backend), Params{
		StoreRef: testStoreSlug,
		TypeHint: hint,
		Session:  session.Static(admin),
	})
}

// wizardAtContactStep drives a wizard to EnteringContactInfo with a
// complete contact form.
func wizardAtContactStep(backend *fakeBackend, deps Deps) (*Wizard, error) {
	w, err := Start(context.Background(), deps, Params{StoreRef: testStoreSlug, TypeHint: booking.ServiceTypeFitting})
	if err != nil {
		return nil, err
	}
	if err := w.SelectDate(context.Background(), tomorrow); err != nil {
		return nil, err
	}
	if err := w.SelectSlot("tech-1", slotAt(tomorrow, "tech-1", 9, true).Start); err != nil {
		return nil, err
	}
	if err := w.ContinueToForm(); err != nil {
		return nil, err
	}
	if err := w.UpdateContact(ContactForm{
		FirstName:   "Lena",
		LastName:    "Vogel",
		Email:       "lena@example.com",
		Phone:       "+49 30 1234567",
		AcceptTerms: true,
	}); err != nil {
		return nil, err
	}
	return w, nil
}

// disconnectingBackend cancels the request context once the booking has
// been created, like a browser that goes away mid-submit.
type disconnectingBackend struct {
	*fakeBackend
	disconnect context.CancelFunc
}

func (d disconnectingBackend) CreateBooking(ctx context.Context, req booking.CreateBookingRequest) (*booking.Confirmation, error) {
	conf, err := d.fakeBackend.CreateBooking(ctx, req)
	d.disconnect()
	return conf, err
}

type ctxRecorder struct {
	called      bool
	err         error
	hasDeadline bool
}

func (r *ctxRecorder) RecordConfirmation(ctx context.Context, _ booking.ConfirmedBooking) error {
	r.called = true
	r.err = ctx.Err()
	_, r.hasDeadline = ctx.Deadline()
	return nil
}
