package bargain

// Status adalah lifecycle state dari satu bargain session.
type Status string

const (
	StatusActive    Status = "ACTIVE"
	StatusMatched   Status = "MATCHED"
	StatusCompleted Status = "COMPLETED"
	StatusRejected  Status = "REJECTED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal status = read-only; session tidak pernah dihapus (audit trail).
var validNext = map[Status]map[Status]bool{
	StatusActive:    {StatusMatched: true, StatusCompleted: true, StatusRejected: true, StatusExpired: true},
	StatusMatched:   {},
	StatusCompleted: {},
	StatusRejected:  {},
	StatusExpired:   {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Terminal() bool {
	return s != StatusActive
}

// HoldStatus adalah lifecycle state dari satu price hold.
type HoldStatus string

const (
	HoldActive   HoldStatus = "ACTIVE"
	HoldConsumed HoldStatus = "CONSUMED"
	HoldExpired  HoldStatus = "EXPIRED"
)

// Outcome dari satu round.
type Outcome string

const (
	OutcomeMatched        Outcome = "MATCHED"
	OutcomeCountered      Outcome = "COUNTERED"
	OutcomeFinalCountered Outcome = "FINAL_COUNTERED"
)
