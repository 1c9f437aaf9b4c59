package confirmations

import (
	"context"
	"errors"
	"time"

	"github.com/wolfman30/velo-booking/internal/booking"
)

var (
	// ErrNotFound is returned when no receipt matches the lookup.
	ErrNotFound = errors.New("confirmations: receipt not found")
	// ErrInvalidFilter is returned for a listing without a store or with an
	// inverted range.
	ErrInvalidFilter = errors.New("confirmations: invalid filter")
)

// Receipt is the stored record of a confirmed booking.
type Receipt struct {
	BookingID     string    `json:"booking_id"`
	Token         string    `json:"confirmation_token"`
	StoreID       string    `json:"store_id"`
	StoreName     string    `json:"store_name"`
	ServiceID     string    `json:"service_id"`
	ServiceName   string    `json:"service_name"`
	TechnicianID  string    `json:"technician_id"`
	StartsAt      time.Time `json:"starts_at"`
	CustomerName  string    `json:"customer_name"`
	CustomerEmail string    `json:"customer_email"`
	ConfirmedAt   time.Time `json:"confirmed_at"`
}

// FromConfirmedBooking flattens a confirmed booking into a receipt.
func FromConfirmedBooking(b booking.ConfirmedBooking) Receipt {
	return Receipt{
		BookingID:     b.Confirmation.BookingID,
		Token:         b.Confirmation.ConfirmationToken,
		StoreID:       b.Store.ID,
		StoreName:     b.Store.Name,
		ServiceID:     b.Service.ID,
		ServiceName:   b.Service.Name,
		TechnicianID:  b.Slot.TechnicianID,
		StartsAt:      b.Slot.Start.UTC(),
		CustomerName:  b.Customer.FullName(),
		CustomerEmail: b.Customer.Email,
		ConfirmedAt:   b.ConfirmedAt.UTC(),
	}
}

// ListFilter narrows a store's receipts. From is inclusive and To exclusive,
// both applied to StartsAt.
type ListFilter struct {
	StoreID   string
	From      *time.Time
	To        *time.Time
	ServiceID string
	Limit     uint64
}

// DefaultListLimit caps listings that do not set a limit.
const DefaultListLimit = 200

func (f ListFilter) validate() error {
	if f.StoreID == "" {
		return ErrInvalidFilter
	}
	if f.From != nil && f.To != nil && !f.From.Before(*f.To) {
		return ErrInvalidFilter
	}
	return nil
}

func (f ListFilter) limit() uint64 {
	if f.Limit == 0 || f.Limit > DefaultListLimit {
		return DefaultListLimit
	}
	return f.Limit
}

// Repository persists receipts. Record is idempotent per booking id.
type Repository interface {
	Record(ctx context.Context, r Receipt) error
	GetByToken(ctx context.Context, token string) (*Receipt, error)
	ListByStore(ctx context.Context, f ListFilter) ([]Receipt, error)
}
