package booking

import "errors"

var (
	// ErrStoreNotFound is returned when a store id or slug cannot be resolved.
	ErrStoreNotFound = errors.New("booking: store not found")

	// ErrIncompleteBookingData is returned when a submit is attempted without
	// store, service, or slot.
	ErrIncompleteBookingData = errors.New("booking: incomplete booking data")

	// ErrBookingConflict is returned when the targeted slot was taken between
	// fetch and submit.
	ErrBookingConflict = errors.New("booking: slot is no longer available")
)

// ValidationError carries a backend-reported validation message that is
// shown to the user verbatim.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message == "" {
		return "booking: validation failed"
	}
	return e.Message
}

// IsValidationError reports whether err wraps a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
