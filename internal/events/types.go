package events

import (
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
)

// EventTypeBookingConfirmed identifies BookingConfirmedV1 on the wire.
const EventTypeBookingConfirmed = "booking.confirmed.v1"

// BookingConfirmedV1 is emitted once the backend accepted a booking.
type BookingConfirmedV1 struct {
	EventID           string    `json:"event_id"`
	StoreID           string    `json:"store_id"`
	BookingID         string    `json:"booking_id"`
	ConfirmationToken string    `json:"confirmation_token"`
	ServiceID         string    `json:"service_id"`
	ServiceName       string    `json:"service_name,omitempty"`
	TechnicianID      string    `json:"technician_id"`
	StartsAt          time.Time `json:"starts_at"`
	CustomerName      string    `json:"customer_name,omitempty"`
	CustomerEmail     string    `json:"customer_email,omitempty"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}

func (BookingConfirmedV1) EventType() string { return EventTypeBookingConfirmed }

// NewBookingConfirmed builds the event for a confirmed booking. EventID is
// left empty; the envelope carries the transport id.
func NewBookingConfirmed(b booking.ConfirmedBooking) BookingConfirmedV1 {
	return BookingConfirmedV1{
		StoreID:           b.Store.ID,
		BookingID:         b.Confirmation.BookingID,
		ConfirmationToken: b.Confirmation.ConfirmationToken,
		ServiceID:         b.Service.ID,
		ServiceName:       b.Service.Name,
		TechnicianID:      b.Slot.TechnicianID,
		StartsAt:          b.Slot.Start.UTC(),
		CustomerName:      b.Customer.FullName(),
		CustomerEmail:     b.Customer.Email,
		ConfirmedAt:       b.ConfirmedAt.UTC(),
	}
}

// StoreAggregate is the aggregate key used for store scoped events.
func StoreAggregate(storeID string) string {
	return "store:" + storeID
}
