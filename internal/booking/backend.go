// Package booking defines the bikeshop booking domain: stores, services,
// time slots, and the backend capabilities the booking wizard consumes.
package booking

import "context"

// StoreResolver resolves a store from either its canonical id or its
// human-readable slug. Both return ErrStoreNotFound when nothing matches.
type StoreResolver interface {
	ResolveStoreBySlug(ctx context.Context, slug string) (*Store, error)
	ResolveStoreByID(ctx context.Context, id string) (*Store, error)
}

// Catalog lists the services a store has enabled.
type Catalog interface {
	ListStoreServices(ctx context.Context, storeID string) ([]Service, error)
}

// AvailabilitySource returns the union of slots across every technician
// qualified for the service on the given day.
type AvailabilitySource interface {
	GetAvailability(ctx context.Context, storeID, serviceID string, date Date) ([]TimeSlot, error)
}

// Booker creates bookings. It is the authoritative conflict check: a slot
// that became unavailable since it was fetched is rejected with
// ErrBookingConflict.
type Booker interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*Confirmation, error)
}

// CustomerDirectory searches existing customers of a store.
type CustomerDirectory interface {
	SearchCustomers(ctx context.Context, storeID, query string) ([]Customer, error)
}

// Backend is the full set of capabilities the wizard depends on.
type Backend interface {
	StoreResolver
	Catalog
	AvailabilitySource
	Booker
	CustomerDirectory
}
