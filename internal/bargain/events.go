package bargain

import (
	"encoding/json"
	"time"
)

const (
	EventSessionStarted = "SessionStarted"
	EventRoundSubmitted = "RoundSubmitted"
	EventHoldIssued     = "HoldIssued"
	EventHoldConsumed   = "HoldConsumed"
	EventSessionClosed  = "SessionClosed"
)

// Envelope versi 1. Payload spesifik per event type di bawah.
type Envelope struct {
	EventID       string          `json:"event_id"`   // uuid
	EventType     string          `json:"event_type"` // salah satu const di atas
	EventVersion  int             `json:"event_version"`
	OccurredAt    time.Time       `json:"occurred_at"` // RFC3339
	Producer      string          `json:"producer"`    // e.g., "bargain-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // session_id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload tipe per event ----

type SessionStartedPayload struct {
	SessionID        string `json:"session_id"`
	UserID           string `json:"user_id"`
	Module           Module `json:"module"`
	ProductRef       string `json:"product_ref"`
	SupplierNetCents int64  `json:"supplier_net_cents"`
	DisplayCents     int64  `json:"display_cents"`
	FloorCents       int64  `json:"floor_cents"`
	PromoCode        string `json:"promo_code,omitempty"`
	PromoApplied     bool   `json:"promo_applied"`
}

type RoundSubmittedPayload struct {
	SessionID      string  `json:"session_id"`
	RoundNumber    int     `json:"round_number"`
	UserOfferCents int64   `json:"user_offer_cents"`
	CounterCents   int64   `json:"counter_cents"`
	Outcome        Outcome `json:"outcome"`
}

type HoldIssuedPayload struct {
	SessionID        string    `json:"session_id"`
	HoldID           string    `json:"hold_id"`
	AgreedPriceCents int64     `json:"agreed_price_cents"`
	ExpiresAt        time.Time `json:"expires_at"`
}

type HoldConsumedPayload struct {
	SessionID        string `json:"session_id"`
	HoldID           string `json:"hold_id"`
	BookingReference string `json:"booking_reference"`
	FinalPriceCents  int64  `json:"final_price_cents"`
	SavingsCents     int64  `json:"savings_cents"`
}

type SessionClosedPayload struct {
	SessionID   string `json:"session_id"`
	FinalStatus Status `json:"final_status"`
	Reason      string `json:"reason,omitempty"`
}
