package common

import "errors"

// Sentinel errors classifying every failure surfaced by the marketplace
// engines. Engines wrap these with fmt.Errorf("...: %w", Err...) so callers
// can branch with errors.Is while the message names the violated invariant.
var (
	// ErrInvalidState signals an operation attempted from the wrong
	// lifecycle state.
	ErrInvalidState = errors.New("invalid state")
	// ErrUnauthorized signals a caller lacking the required role or party
	// identity.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidInput signals malformed amounts, shares that do not sum to
	// 10000, durations out of bounds and similar input violations.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound signals a referenced identifier with no record.
	ErrNotFound = errors.New("not found")
	// ErrInsufficientFunds signals a custody balance or deposit too small
	// for the requested movement.
	ErrInsufficientFunds = errors.New("insufficient funds")
	// ErrAlreadyProcessed signals an idempotency violation such as
	// re-claiming an escrow or re-resolving a dispute.
	ErrAlreadyProcessed = errors.New("already processed")
)
