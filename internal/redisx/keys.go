package redisx

import "time"

const (
	// Cache status session: bargain_status:{session_id} -> JSON projection
	KeySessionStatus = "bargain_status:%s"

	// Dedup event processing di worker analytics: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Shadow key hold dengan TTL = umur hold: bargain_hold:{session_id}
	// -> hold_id. Fast path buat UI countdown; DB tetap kebenaran.
	KeyHold = "bargain_hold:%s"
)

var (
	TTLStatusCache = 1 * time.Minute
	TTLDedup       = 48 * time.Hour
)
