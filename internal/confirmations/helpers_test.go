package confirmations

import (
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
)

var startsAt = time.Date(2026, 10, 21, 8, 30, 0, 0, time.UTC)

func confirmedBooking(id, token string, start time.Time) booking.ConfirmedBooking {
	return booking.ConfirmedBooking{
		Confirmation: booking.Confirmation{BookingID: id, ConfirmationToken: token},
		Store:        booking.Store{ID: "store-1", Name: "Velo Mitte"},
		Service:      booking.Service{ID: "svc-fit", Name: "Bike Fitting"},
		Slot:         booking.TimeSlot{TechnicianID: "tech-1", Start: start, Available: true},
		Customer:     booking.ContactDetails{FirstName: "Ada", LastName: "Lovelace", Email: "ada@example.com"},
		ConfirmedAt:  time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC),
	}
}
