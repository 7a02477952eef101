package bargain

import "errors"

// Error taxonomy. Handler layer yang map ke HTTP status code;
// engine cukup return sentinel + context via %w wrapping.
var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrProductUnavailable = errors.New("product unavailable")

	ErrSessionNotFound = errors.New("session not found")
	ErrSessionClosed   = errors.New("session closed")
	ErrSessionExpired  = errors.New("session expired")
	ErrInvalidRound    = errors.New("invalid round")

	ErrDuplicateHold = errors.New("active hold already exists")
	ErrHoldNotFound  = errors.New("hold not found")
	ErrHoldExpired   = errors.New("hold expired")

	// Transient: caller re-read state lalu retry. Engine tidak retry sendiri.
	ErrConcurrentModification = errors.New("concurrent modification")

	// Non-fatal promo failures: pricing degrade ke no-discount, bukan abort.
	ErrPromoInvalid    = errors.New("promo code invalid")
	ErrBudgetExhausted = errors.New("promo budget exhausted")
)
