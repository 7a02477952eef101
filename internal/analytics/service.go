package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/faredown/bargain-engine.git/internal/bargain"
	"github.com/faredown/bargain-engine.git/internal/redisx"
	"github.com/redis/go-redis/v9"
	kafkago "github.com/segmentio/kafka-go"
)

// Service adalah consumer side: semua event bargain.* masuk ke table
// bargain_events sebagai audit trail.
type Service struct {
	Repo        *bargain.EventRepo
	Redis       *redis.Client
	ServiceName string
}

// HandleEvent dipasang sebagai handler consumer.
func (s *Service) HandleEvent(ctx context.Context, m kafkago.Message) error {
	var env bargain.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		return err
	}
	if env.EventID == "" {
		return nil // bukan envelope kita, skip
	}

	// dedup via Redis (event_id); insert-nya sendiri juga idempotent
	dkey := fmt.Sprintf(redisx.KeyDedup, s.ServiceName, env.EventID)
	exists, _ := redisx.Exists(ctx, s.Redis, dkey)
	if exists {
		return nil
	}
	if err := s.Repo.Insert(ctx, env); err != nil {
		return err
	}
	_ = s.Redis.Set(ctx, dkey, "1", redisx.TTLDedup).Err()
	return nil
}
