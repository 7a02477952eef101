package bargain

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// CatalogRepo adalah adapter ke catalog collaborator: supplier net rate
// per product. Harga di table per unit; dikali quantity context di sini.
type CatalogRepo struct{ DB *pgxpool.Pool }

func (r *CatalogRepo) SupplierNetRate(ctx context.Context, productRef string, module Module, qty QuantityContext) (int64, error) {
	var perUnit int64
	var available bool
	err := r.DB.QueryRow(ctx, `
		SELECT supplier_net_cents, available FROM products
		WHERE id=$1 AND module=$2`, productRef, module).Scan(&perUnit, &available)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s/%s", ErrProductUnavailable, module, productRef)
	}
	if err != nil {
		return 0, err
	}
	if !available {
		return 0, fmt.Errorf("%w: %s/%s has no inventory", ErrProductUnavailable, module, productRef)
	}
	return perUnit * int64(unitCount(module, qty)), nil
}

// unitCount: hotel dihitung per kamar, transfer per kendaraan, sisanya per pax.
func unitCount(module Module, qty QuantityContext) int {
	switch module {
	case ModuleHotel:
		if qty.Rooms > 0 {
			return qty.Rooms
		}
	case ModuleTransfer:
		if qty.Units > 0 {
			return qty.Units
		}
	}
	return qty.Total()
}

// MarkupRepo: markup-rule provider. Rule dengan category match lebih
// spesifik dari rule module-wide; di antara yang setara, priority tertinggi.
type MarkupRepo struct{ DB *pgxpool.Pool }

func (r *MarkupRepo) RuleFor(ctx context.Context, module Module, category string) (*MarkupRule, error) {
	var rule MarkupRule
	var cat *string
	err := r.DB.QueryRow(ctx, `
		SELECT id, module, category, markup_bps, elastic_bps, priority
		FROM markup_rules
		WHERE module=$1 AND (category=$2 OR category IS NULL)
		ORDER BY (category IS NOT NULL) DESC, priority DESC
		LIMIT 1`, module, category).Scan(
		&rule.ID, &rule.Module, &cat, &rule.MarkupBps, &rule.ElasticBps, &rule.Priority)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // calculator pakai default
	}
	if err != nil {
		return nil, err
	}
	if cat != nil {
		rule.Category = *cat
	}
	return &rule, nil
}

// BookingRepo adalah adapter ke booking collaborator: satu hold yang
// consumed jadi satu booking row. Dipanggil maksimal sekali per hold
// (guard idempotensi ada di HoldRepo.Consume).
type BookingRepo struct{ DB *pgxpool.Pool }

func (r *BookingRepo) CreateBooking(ctx context.Context, h *Hold, reference string) error {
	_, err := r.DB.Exec(ctx, `
		INSERT INTO bookings (reference, hold_id, session_id, product_ref, final_price_cents)
		VALUES ($1,$2,$3,$4,$5)`,
		reference, h.ID, h.SessionID, h.ProductRef, h.AgreedPriceCents)
	if err != nil {
		return fmt.Errorf("insert booking: %w", err)
	}
	return nil
}
