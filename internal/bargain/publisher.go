package bargain

import (
	"time"

	kafkax "github.com/faredown/bargain-engine.git/internal/kafka"
	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
)

var topicByEvent = map[string]string{
	EventSessionStarted: TopicSessionStarted,
	EventRoundSubmitted: TopicRoundSubmitted,
	EventHoldIssued:     TopicHoldIssued,
	EventHoldConsumed:   TopicHoldConsumed,
	EventSessionClosed:  TopicSessionClosed,
}

// KafkaEvents adalah EventSink produksi: wrap envelope v1 lalu publish async.
type KafkaEvents struct {
	Producer *kafkax.Producer
	Service  string
}

func (e *KafkaEvents) Emit(eventType, sessionID, traceID string, payload any) {
	ev := Envelope{
		EventID:       uuid.NewString(),
		EventType:     eventType,
		EventVersion:  1,
		OccurredAt:    time.Now().UTC(),
		Producer:      e.Service,
		TraceID:       traceID,
		CorrelationID: sessionID,
		Payload:       kafkax.MustMarshal(payload),
	}
	e.Producer.Publish(topicByEvent[eventType], PartitionKey(sessionID), kafkax.MustMarshal(ev),
		kafkago.Header{Key: "x-event-type", Value: []byte(eventType)},
		kafkago.Header{Key: "x-event-version", Value: []byte("1")},
	)
}
