package dispensing

import (
	"errors"
	"fmt"
)

// Named errors of the workflow. None are retried automatically: every one
// requires an explicit operator decision. Wrap with fmt.Errorf("...: %w", err)
// so callers can errors.Is.
var (
	// Admission errors
	ErrStockUnavailable = errors.New("stock unavailable for prescription")
	ErrOpenEntryExists  = errors.New("prescription already has an open dispensing entry")

	// Concurrency errors
	ErrAlreadyClaimed = errors.New("entry already claimed by another worker")
	ErrEntryCancelled = errors.New("entry has been cancelled")

	// Validation errors
	ErrAlreadyVerified              = errors.New("entry already has a verification for this attempt")
	ErrMissingOverrideJustification = errors.New("interaction override requires a justification")
	ErrNotYetVerified               = errors.New("entry has not been verified")
	ErrEmptyReason                  = errors.New("reason must not be empty")

	ErrEntryNotFound     = errors.New("dispensing entry not found")
	ErrInvalidTransition = errors.New("invalid status transition")
)

func errInvalidTransition(from, to Status) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}
