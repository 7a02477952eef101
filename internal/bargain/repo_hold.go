package bargain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type HoldRepo struct{ DB *pgxpool.Pool }

const holdColumns = `id, session_id, product_ref, agreed_price_cents,
	supplier_net_cents, markup_cents, promo_discount_cents,
	status, created_at, expires_at, consumed_at, booking_reference`

// Issue insert hold baru. Partial unique index di schema menjamin maksimal
// satu hold ACTIVE per session; pelanggaran di-translate ke ErrDuplicateHold.
// Orchestrator-nya single-writer per session, jadi ini defensive saja.
func (r *HoldRepo) Issue(ctx context.Context, h *Hold) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO bargain_holds (id, session_id, product_ref, agreed_price_cents,
			supplier_net_cents, markup_cents, promo_discount_cents, status, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		h.ID, h.SessionID, h.ProductRef, h.AgreedPriceCents,
		h.SupplierNetCents, h.MarkupCents, h.PromoDiscountCents, h.Status, h.CreatedAt, h.ExpiresAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return fmt.Errorf("%w: session %s", ErrDuplicateHold, h.SessionID)
	}
	if err != nil {
		return fmt.Errorf("insert hold: %w", err)
	}
	return nil
}

func scanHold(row pgx.Row) (*Hold, error) {
	var h Hold
	var consumedAt *time.Time
	var ref *string
	err := row.Scan(&h.ID, &h.SessionID, &h.ProductRef, &h.AgreedPriceCents,
		&h.SupplierNetCents, &h.MarkupCents, &h.PromoDiscountCents,
		&h.Status, &h.CreatedAt, &h.ExpiresAt, &consumedAt, &ref)
	if err != nil {
		return nil, err
	}
	h.ConsumedAt = consumedAt
	if ref != nil {
		h.BookingReference = *ref
	}
	return &h, nil
}

func (r *HoldRepo) Get(ctx context.Context, id string) (*Hold, error) {
	h, err := scanHold(r.DB.QueryRow(ctx, `SELECT `+holdColumns+` FROM bargain_holds WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrHoldNotFound, id)
	}
	return h, err
}

// LatestForSession ambil hold terakhir untuk session (status apapun),
// dipakai accept() dan status projection. nil kalau belum pernah ada hold.
func (r *HoldRepo) LatestForSession(ctx context.Context, sessionID string) (*Hold, error) {
	h, err := scanHold(r.DB.QueryRow(ctx, `
		SELECT `+holdColumns+` FROM bargain_holds
		WHERE session_id=$1 ORDER BY created_at DESC LIMIT 1`, sessionID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return h, err
}

// Consume: transisi ACTIVE -> CONSUMED atomik dengan guard expiry.
// Idempotent on retry: kalau hold sudah CONSUMED, return row lama
// (booking reference asli) dengan fresh=false; tidak ada booking kedua.
func (r *HoldRepo) Consume(ctx context.Context, holdID, bookingRef string, now time.Time) (h *Hold, fresh bool, err error) {
	h, err = scanHold(r.DB.QueryRow(ctx, `
		UPDATE bargain_holds
		SET status=$3, consumed_at=$4, booking_reference=$2
		WHERE id=$1 AND status=$5 AND expires_at > $4
		RETURNING `+holdColumns, holdID, bookingRef, HoldConsumed, now, HoldActive))
	if err == nil {
		return h, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	// UPDATE tidak kena: cari tahu kenapa.
	h, err = r.Get(ctx, holdID)
	if err != nil {
		return nil, false, err
	}
	if h.Status == HoldConsumed {
		return h, false, nil
	}
	return nil, false, fmt.Errorf("%w: hold %s expired at %s", ErrHoldExpired, holdID, h.ExpiresAt.Format(time.RFC3339))
}

// SweepExpired: maintenance; aman dipanggil concurrent dengan Consume
// karena dua-duanya guard status=ACTIVE.
func (r *HoldRepo) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	ct, err := r.DB.Exec(ctx, `
		UPDATE bargain_holds SET status=$2
		WHERE status=$1 AND expires_at <= $3`, HoldActive, HoldExpired, now)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ExpireForSession: dipakai reject() supaya hold aktif tidak orphan.
func (r *HoldRepo) ExpireForSession(ctx context.Context, sessionID string) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE bargain_holds SET status=$2
		WHERE session_id=$1 AND status=$3`, sessionID, HoldExpired, HoldActive)
	return err
}
