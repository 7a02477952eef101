package bargain

const (
	TopicSessionStarted = "bargain.session.started"
	TopicRoundSubmitted = "bargain.round.submitted"
	TopicHoldIssued     = "bargain.hold.issued"
	TopicHoldConsumed   = "bargain.hold.consumed"
	TopicSessionClosed  = "bargain.session.closed"
)

// Partition key = session_id, supaya semua event 1 session maintain urutan.
func PartitionKey(sessionID string) []byte { return []byte(sessionID) }
