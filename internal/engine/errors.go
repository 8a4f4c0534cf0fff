package engine

import (
	"errors"
	"fmt"
)

// Operation errors. Every operation is a single fallible unit: on any of
// these the invocation leaves no state behind.
var (
	ErrInactiveRound     = errors.New("round is no longer active")
	ErrNotActive         = errors.New("round is not active")
	ErrForbidden         = errors.New("forbidden")
	ErrNotAuthorized     = errors.New("not authorized")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrExcessiveFunds    = errors.New("excessive funds")
	ErrRoundNotFound     = errors.New("round not found")
	ErrPlayerNotFound    = errors.New("player not found")
	ErrMissingRewards    = errors.New("missing rewards")
	ErrInvalidSeed       = errors.New("invalid seed")
)

// ValidationError rejects structurally invalid setup input.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s", e.Reason)
}

// TooManyTicketsError rejects a purchase that would push a wallet past the
// configured per-wallet cap.
type TooManyTicketsError struct {
	MaxTicketsPerWallet uint32
}

func (e *TooManyTicketsError) Error() string {
	return fmt.Sprintf("too many tickets: at most %d per wallet", e.MaxTicketsPerWallet)
}
