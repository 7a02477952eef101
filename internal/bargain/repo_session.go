package bargain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SessionRepo struct{ DB *pgxpool.Pool }

const sessionColumns = `id, user_id, product_ref, module,
	supplier_net_cents, markup_cents, display_cents,
	promo_code, promo_applied, promo_reason, promo_discount_cents,
	elastic_cents, total_discount_cents, target_cents, floor_cents,
	current_round, max_rounds, status, final_price_cents, promo_committed,
	created_at, expires_at`

func (r *SessionRepo) Create(ctx context.Context, s *Session) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO bargain_sessions (`+sessionColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)`,
		s.ID, s.UserID, s.ProductRef, s.Module,
		s.Snapshot.SupplierNetCents, s.Snapshot.MarkupCents, s.Snapshot.DisplayCents,
		s.Snapshot.PromoCode, s.Snapshot.PromoApplied, s.Snapshot.PromoReason, s.Snapshot.PromoDiscountCents,
		s.Snapshot.ElasticCents, s.Snapshot.TotalDiscountCents, s.Snapshot.TargetCents, s.Snapshot.FloorCents,
		s.CurrentRound, s.MaxRounds, s.Status, s.FinalPriceCents, s.PromoCommitted,
		s.CreatedAt, s.ExpiresAt)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func scanSession(row pgx.Row) (*Session, error) {
	var s Session
	err := row.Scan(&s.ID, &s.UserID, &s.ProductRef, &s.Module,
		&s.Snapshot.SupplierNetCents, &s.Snapshot.MarkupCents, &s.Snapshot.DisplayCents,
		&s.Snapshot.PromoCode, &s.Snapshot.PromoApplied, &s.Snapshot.PromoReason, &s.Snapshot.PromoDiscountCents,
		&s.Snapshot.ElasticCents, &s.Snapshot.TotalDiscountCents, &s.Snapshot.TargetCents, &s.Snapshot.FloorCents,
		&s.CurrentRound, &s.MaxRounds, &s.Status, &s.FinalPriceCents, &s.PromoCommitted,
		&s.CreatedAt, &s.ExpiresAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Get load session + seluruh round history (ordered).
func (r *SessionRepo) Get(ctx context.Context, id string) (*Session, error) {
	s, err := scanSession(r.DB.QueryRow(ctx, `SELECT `+sessionColumns+` FROM bargain_sessions WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.DB.Query(ctx, `
		SELECT round_number, user_offer_cents, counter_cents, outcome, narrative, warning, created_at
		FROM bargain_rounds WHERE session_id=$1 ORDER BY round_number`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var rd Round
		if err := rows.Scan(&rd.RoundNumber, &rd.UserOfferCents, &rd.CounterCents, &rd.Outcome, &rd.Narrative, &rd.Warning, &rd.CreatedAt); err != nil {
			return nil, err
		}
		s.Rounds = append(s.Rounds, rd)
	}
	return s, rows.Err()
}

// AppendRound: satu transaksi yang advance current_round dengan precondition
// optimistic (current_round harus masih = expectedRound saat write) lalu
// insert round record. Zero rows pada UPDATE berarti ada writer lain yang
// menang -> ErrConcurrentModification, caller re-read lalu retry.
func (r *SessionRepo) AppendRound(ctx context.Context, sessionID string, expectedRound int, round Round, newStatus Status, finalPriceCents int64) error {
	tx, err := r.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx, `
		UPDATE bargain_sessions
		SET current_round=$3, status=$4, final_price_cents=$5, updated_at=now()
		WHERE id=$1 AND current_round=$2 AND status=$6`,
		sessionID, expectedRound, expectedRound+1, newStatus, finalPriceCents, StatusActive)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		// bedakan not-found vs kalah race vs sudah terminal
		var cur int
		var st Status
		err := tx.QueryRow(ctx, `SELECT current_round, status FROM bargain_sessions WHERE id=$1`, sessionID).Scan(&cur, &st)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		if err != nil {
			return err
		}
		if st != StatusActive {
			return fmt.Errorf("%w: session %s is %s", ErrSessionClosed, sessionID, st)
		}
		return fmt.Errorf("%w: session %s at round %d, expected %d", ErrConcurrentModification, sessionID, cur, expectedRound)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO bargain_rounds (session_id, round_number, user_offer_cents, counter_cents, outcome, narrative, warning, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		sessionID, round.RoundNumber, round.UserOfferCents, round.CounterCents, round.Outcome, round.Narrative, round.Warning, round.CreatedAt)
	if err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Close transisi session ACTIVE -> terminal (EXPIRED/REJECTED).
// Return false kalau session sudah tidak ACTIVE (bukan error).
func (r *SessionRepo) Close(ctx context.Context, id string, to Status) (bool, error) {
	if !CanTransition(StatusActive, to) {
		return false, fmt.Errorf("%w: cannot close to %s", ErrInvalidInput, to)
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE bargain_sessions SET status=$2, updated_at=now()
		WHERE id=$1 AND status=$3`, id, to, StatusActive)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// MarkPromoCommitted: CAS guard supaya ledger commit exactly-once per session.
func (r *SessionRepo) MarkPromoCommitted(ctx context.Context, id string) (bool, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE bargain_sessions SET promo_committed=true, updated_at=now()
		WHERE id=$1 AND promo_committed=false`, id)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() == 1, nil
}

// ListByUser: history 20 session terakhir, tanpa rounds.
func (r *SessionRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+sessionColumns+` FROM bargain_sessions
		WHERE user_id=$1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}
