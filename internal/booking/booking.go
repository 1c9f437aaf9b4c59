package booking

import (
	"strings"
	"time"
)

// ServiceType tags a service as posture fitting or workshop repair.
type ServiceType string

const (
	ServiceTypeFitting  ServiceType = "fitting"
	ServiceTypeWorkshop ServiceType = "workshop"
)

// ParseServiceType normalizes a type hint. Unknown or empty input yields "".
func ParseServiceType(s string) ServiceType {
	switch ServiceType(strings.ToLower(strings.TrimSpace(s))) {
	case ServiceTypeFitting:
		return ServiceTypeFitting
	case ServiceTypeWorkshop:
		return ServiceTypeWorkshop
	default:
		return ""
	}
}

// Service is a bookable service as published by the catalog.
type Service struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Description     string      `json:"description,omitempty"`
	DurationMinutes int         `json:"duration_minutes"`
	PriceCents      int64       `json:"price_cents"`
	Type            ServiceType `json:"type"`
	// StoreSpecific is true for services defined by the store itself rather
	// than inherited from the global catalog.
	StoreSpecific bool `json:"store_specific"`
	Active        bool `json:"active"`
}

// DayHours holds the opening hours for a single weekday.
type DayHours struct {
	Open   string `json:"open"`  // "09:00" in 24-hour format
	Close  string `json:"close"` // "18:00" in 24-hour format
	Closed bool   `json:"closed"`
}

// OpeningHours maps weekdays to their hours. A nil day is treated as closed
// once the store publishes any hours at all.
type OpeningHours struct {
	Monday    *DayHours `json:"monday,omitempty"`
	Tuesday   *DayHours `json:"tuesday,omitempty"`
	Wednesday *DayHours `json:"wednesday,omitempty"`
	Thursday  *DayHours `json:"thursday,omitempty"`
	Friday    *DayHours `json:"friday,omitempty"`
	Saturday  *DayHours `json:"saturday,omitempty"`
	Sunday    *DayHours `json:"sunday,omitempty"`
}

// ForDay returns the hours for the given weekday, or nil when none are published.
func (h OpeningHours) ForDay(weekday time.Weekday) *DayHours {
	switch weekday {
	case time.Monday:
		return h.Monday
	case time.Tuesday:
		return h.Tuesday
	case time.Wednesday:
		return h.Wednesday
	case time.Thursday:
		return h.Thursday
	case time.Friday:
		return h.Friday
	case time.Saturday:
		return h.Saturday
	case time.Sunday:
		return h.Sunday
	default:
		return nil
	}
}

// HasAnyHours reports whether at least one weekday is published.
func (h OpeningHours) HasAnyHours() bool {
	for d := time.Sunday; d <= time.Saturday; d++ {
		if h.ForDay(d) != nil {
			return true
		}
	}
	return false
}

// ClosedWeekdays returns the weekdays on which the store does not operate.
// Stores that publish no hours fall back to closing on Sunday.
func (h OpeningHours) ClosedWeekdays() []time.Weekday {
	if !h.HasAnyHours() {
		return []time.Weekday{time.Sunday}
	}
	var closed []time.Weekday
	for d := time.Sunday; d <= time.Saturday; d++ {
		if hours := h.ForDay(d); hours == nil || hours.Closed {
			closed = append(closed, d)
		}
	}
	return closed
}

// Store is a bike shop location.
type Store struct {
	ID               string       `json:"id"`
	Slug             string       `json:"slug"`
	Name             string       `json:"name"`
	Street           string       `json:"street,omitempty"`
	PostalCode       string       `json:"postal_code,omitempty"`
	City             string       `json:"city,omitempty"`
	Country          string       `json:"country,omitempty"`
	Timezone         string       `json:"timezone,omitempty"`
	OpeningHours     OpeningHours `json:"opening_hours"`
	OffersWorkshop   bool         `json:"offers_workshop"`
	OffersFitting    bool         `json:"offers_fitting"`
	WorkshopCapacity int          `json:"workshop_capacity"`
}

// Offers reports whether the store's feature flags enable the service type.
func (s *Store) Offers(t ServiceType) bool {
	switch t {
	case ServiceTypeFitting:
		return s.OffersFitting
	case ServiceTypeWorkshop:
		return s.OffersWorkshop
	default:
		return false
	}
}

// Location returns the store's time zone, or fallback when it is unset or
// unknown.
func (s *Store) Location(fallback *time.Location) *time.Location {
	if fallback == nil {
		fallback = time.UTC
	}
	if strings.TrimSpace(s.Timezone) == "" {
		return fallback
	}
	loc, err := time.LoadLocation(s.Timezone)
	if err != nil {
		return fallback
	}
	return loc
}

// TimeSlot is one bookable start time for one technician.
type TimeSlot struct {
	TechnicianID string    `json:"technician_id"`
	Start        time.Time `json:"start"`
	Available    bool      `json:"available"`
}

// Matches reports whether the slot is identified by technician and start.
func (s TimeSlot) Matches(technicianID string, start time.Time) bool {
	return s.TechnicianID == technicianID && s.Start.Equal(start)
}

// Customer is an existing customer returned by a directory search.
type Customer struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// ContactDetails are the contact fields sent with a booking.
type ContactDetails struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

// FullName joins first and last name.
func (c ContactDetails) FullName() string {
	return strings.TrimSpace(c.FirstName + " " + c.LastName)
}

// BookingContext is the optional structured payload attached to a booking.
// Absent measurements are nil.
type BookingContext struct {
	HeightCM *float64 `json:"height_cm,omitempty"`
	WeightKG *float64 `json:"weight_kg,omitempty"`
	ShoeSize *float64 `json:"shoe_size,omitempty"`
	Notes    string   `json:"notes,omitempty"`
}

// IsEmpty reports whether no field carries a value.
func (c *BookingContext) IsEmpty() bool {
	return c == nil || (c.HeightCM == nil && c.WeightKG == nil && c.ShoeSize == nil && strings.TrimSpace(c.Notes) == "")
}

// CreateBookingRequest is the payload for Booker.CreateBooking.
type CreateBookingRequest struct {
	StoreID      string          `json:"store_id"`
	ServiceID    string          `json:"service_id"`
	TechnicianID string          `json:"technician_id"`
	Start        time.Time       `json:"start"`
	Customer     ContactDetails  `json:"customer"`
	Context      *BookingContext `json:"context,omitempty"`
}

// Confirmation is returned by a successful booking creation.
type Confirmation struct {
	BookingID         string `json:"booking_id"`
	ConfirmationToken string `json:"confirmation_token"`
}

// ConfirmedBooking describes a booking the backend accepted, as handed to
// downstream recorders (receipts, email, events).
type ConfirmedBooking struct {
	Confirmation Confirmation   `json:"confirmation"`
	Store        Store          `json:"store"`
	Service      Service        `json:"service"`
	Slot         TimeSlot       `json:"slot"`
	Customer     ContactDetails `json:"customer"`
	ConfirmedAt  time.Time      `json:"confirmed_at"`
}
