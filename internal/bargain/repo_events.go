package bargain

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// EventRepo menyimpan raw analytics event (audit trail negosiasi).
type EventRepo struct{ DB *pgxpool.Pool }

// Insert idempotent by event_id; event ulang dari consumer retry tidak
// bikin baris ganda.
func (r *EventRepo) Insert(ctx context.Context, env Envelope) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO bargain_events (event_id, session_id, name, payload, occurred_at)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (event_id) DO NOTHING`,
		env.EventID, env.CorrelationID, env.EventType, []byte(env.Payload), env.OccurredAt)
	return err
}
