package wizard

import "errors"

var (
	ErrInvalidTransition = errors.New("wizard: action not allowed in current step")
	ErrDateNotSelectable = errors.New("wizard: date is not selectable")
	ErrSlotUnavailable   = errors.New("wizard: slot is not available")
	ErrNoSlotSelected    = errors.New("wizard: no slot selected")
	ErrSubmitInProgress  = errors.New("wizard: submit already in progress")
	ErrNotAdmin          = errors.New("wizard: customer search requires an admin session")
	ErrUnknownService    = errors.New("wizard: unknown service")
	ErrUnknownCustomer   = errors.New("wizard: unknown customer")
	ErrNotFound          = errors.New("wizard: not found")
)
