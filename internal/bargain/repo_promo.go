package bargain

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PromoRepo adalah promotion ledger adapter: validate (read) + commit (debit).
type PromoRepo struct{ DB *pgxpool.Pool }

type promoRow struct {
	Code             string
	Module           *string
	DiscountType     string // percent | fixed
	DiscountBps      int64
	DiscountCents    int64
	MinFareCents     int64
	Region           *string
	TravelFrom       *time.Time
	TravelTo         *time.Time
	AdvanceMinDays   *int
	GroupMin         *int
	GroupMax         *int
	StartsOn         *time.Time
	ExpiresOn        *time.Time
	Status           string
	BudgetCents      int64
	BudgetSpentCents int64
}

func invalidQuote(code, reason string) *PromoQuote {
	return &PromoQuote{Code: code, Valid: false, Reason: reason}
}

// Validate cek eligibility berurutan, short-circuit di kegagalan pertama.
// Kegagalan eligibility BUKAN error (pricing degrade ke no-discount);
// error hanya untuk kegagalan query.
func (r *PromoRepo) Validate(ctx context.Context, code string, pctx PromoContext) (*PromoQuote, error) {
	var p promoRow
	err := r.DB.QueryRow(ctx, `
		SELECT code, module, discount_type, discount_bps, discount_cents, min_fare_cents,
		       region, travel_from, travel_to, advance_min_days, group_min, group_max,
		       starts_on, expires_on, status, budget_cents, budget_spent_cents
		FROM promo_codes WHERE code=$1`, code).Scan(
		&p.Code, &p.Module, &p.DiscountType, &p.DiscountBps, &p.DiscountCents, &p.MinFareCents,
		&p.Region, &p.TravelFrom, &p.TravelTo, &p.AdvanceMinDays, &p.GroupMin, &p.GroupMax,
		&p.StartsOn, &p.ExpiresOn, &p.Status, &p.BudgetCents, &p.BudgetSpentCents)
	if errors.Is(err, pgx.ErrNoRows) {
		return invalidQuote(code, "PROMO_NOT_FOUND"), nil
	}
	if err != nil {
		return nil, fmt.Errorf("promo lookup: %w", err)
	}

	now := pctx.BookingDate
	if now.IsZero() {
		now = time.Now().UTC()
	}

	switch {
	case p.Status != "active":
		return invalidQuote(code, "PROMO_INACTIVE"), nil
	case p.StartsOn != nil && now.Before(*p.StartsOn):
		return invalidQuote(code, "PROMO_NOT_YET_VALID"), nil
	case p.ExpiresOn != nil && now.After(*p.ExpiresOn):
		return invalidQuote(code, "PROMO_EXPIRED"), nil
	case pctx.FareCents < p.MinFareCents:
		return invalidQuote(code, "MIN_FARE_NOT_MET"), nil
	case p.Module != nil && *p.Module != string(pctx.Module):
		return invalidQuote(code, "NOT_APPLICABLE"), nil
	case p.Region != nil && pctx.Region != "" && *p.Region != pctx.Region:
		return invalidQuote(code, "REGION_INVALID"), nil
	case p.TravelFrom != nil && !pctx.TravelDate.IsZero() && pctx.TravelDate.Before(*p.TravelFrom):
		return invalidQuote(code, "TRAVEL_PERIOD_INVALID"), nil
	case p.TravelTo != nil && !pctx.TravelDate.IsZero() && pctx.TravelDate.After(*p.TravelTo):
		return invalidQuote(code, "TRAVEL_PERIOD_INVALID"), nil
	case p.AdvanceMinDays != nil && !pctx.TravelDate.IsZero() &&
		pctx.TravelDate.Sub(now) < time.Duration(*p.AdvanceMinDays)*24*time.Hour:
		return invalidQuote(code, "ADVANCE_BOOKING_REQUIRED"), nil
	case p.GroupMin != nil && pctx.GroupSize < *p.GroupMin:
		return invalidQuote(code, "GROUP_SIZE_INVALID"), nil
	case p.GroupMax != nil && pctx.GroupSize > *p.GroupMax:
		return invalidQuote(code, "GROUP_SIZE_INVALID"), nil
	}

	remaining := p.BudgetCents - p.BudgetSpentCents
	if remaining <= 0 {
		return invalidQuote(code, "BUDGET_EXHAUSTED"), nil
	}

	discount := p.DiscountCents
	if p.DiscountType == "percent" {
		discount = bps(pctx.FareCents, p.DiscountBps)
	}
	// diskon tidak boleh melebihi sisa budget
	if discount > remaining {
		discount = remaining
	}
	return &PromoQuote{
		Code:                 code,
		Valid:                true,
		DiscountCents:        discount,
		RemainingBudgetCents: remaining,
	}, nil
}

// Commit debit budget + naikin usage counter. Decrement-with-floor atomik:
// precondition sisa budget di WHERE clause, bukan check-then-act terpisah,
// jadi dua negosiasi concurrent tidak bisa dua-duanya lolos di budget yang
// cuma cukup untuk satu.
func (r *PromoRepo) Commit(ctx context.Context, code string, discountCents int64) error {
	if discountCents <= 0 {
		return nil
	}
	ct, err := r.DB.Exec(ctx, `
		UPDATE promo_codes
		SET budget_spent_cents = budget_spent_cents + $2,
		    usage_count = usage_count + 1,
		    updated_at = now()
		WHERE code=$1 AND budget_cents - budget_spent_cents >= $2`, code, discountCents)
	if err != nil {
		return err
	}
	if ct.RowsAffected() != 1 {
		return fmt.Errorf("%w: %s", ErrBudgetExhausted, code)
	}
	return nil
}
