package bargain

import (
	"context"
	"fmt"
)

// MarkupRule menentukan markup di atas supplier net rate per module
// (opsional per category, e.g. "international" / "luxury").
type MarkupRule struct {
	ID         string
	Module     Module
	Category   string
	MarkupBps  int64 // markup atas supplier net
	ElasticBps int64 // porsi markup (bps dari markup amount) yang boleh dinego
	Priority   int
}

// Default kalau tidak ada rule yang match: flight/transfer 15%, sisanya 25%.
// Elastic default 80% dari markup.
const (
	defaultMarkupLowBps  = 1500
	defaultMarkupHighBps = 2500
	defaultElasticBps    = 8000
)

func DefaultMarkupRule(m Module) MarkupRule {
	bps := int64(defaultMarkupHighBps)
	if m == ModuleFlight || m == ModuleTransfer {
		bps = defaultMarkupLowBps
	}
	return MarkupRule{Module: m, MarkupBps: bps, ElasticBps: defaultElasticBps}
}

// MarkupProvider lookup rule paling spesifik untuk module+category.
// Return nil (tanpa error) kalau tidak ada rule; calculator pakai default.
type MarkupProvider interface {
	RuleFor(ctx context.Context, module Module, category string) (*MarkupRule, error)
}

// PromoValidator adalah sisi read-only dari promotion ledger.
// Eligibility failure dilaporkan via quote (Valid=false + Reason),
// bukan error; error hanya untuk kegagalan storage.
type PromoValidator interface {
	Validate(ctx context.Context, code string, pctx PromoContext) (*PromoQuote, error)
}

// Calculator menghitung Snapshot dari supplier net rate.
// Pure terhadap rule data yang di-supply; tidak ada side effect.
type Calculator struct {
	Markups      MarkupProvider
	Promos       PromoValidator
	MinMarginBps int64
}

// bps menghitung amount*b/10000 dengan truncation.
func bps(amount, b int64) int64 {
	return amount * b / 10000
}

// ceilBps seperti bps tapi round up; dipakai untuk margin floor supaya
// floor tidak pernah jatuh di bawah net*(1+minMargin) gara-gara truncation.
func ceilBps(amount, b int64) int64 {
	return (amount*b + 9999) / 10000
}

// ComputePricing menghasilkan snapshot harga untuk satu session.
// Promo yang invalid/expired/exhausted tidak meng-abort pricing:
// snapshot degrade ke no-discount dan PromoApplied=false + PromoReason diisi.
func (c *Calculator) ComputePricing(ctx context.Context, netCents int64, module Module, category, promoCode string, pctx PromoContext) (Snapshot, error) {
	if netCents <= 0 {
		return Snapshot{}, fmt.Errorf("%w: supplier net rate must be > 0, got %d", ErrInvalidInput, netCents)
	}
	if !ValidModule(module) {
		return Snapshot{}, fmt.Errorf("%w: unknown module %q", ErrInvalidInput, module)
	}

	rule, err := c.Markups.RuleFor(ctx, module, category)
	if err != nil {
		return Snapshot{}, fmt.Errorf("markup lookup: %w", err)
	}
	if rule == nil {
		def := DefaultMarkupRule(module)
		rule = &def
	}

	snap := Snapshot{SupplierNetCents: netCents}
	snap.MarkupCents = bps(netCents, rule.MarkupBps)
	snap.DisplayCents = netCents + snap.MarkupCents

	if promoCode != "" {
		snap.PromoCode = promoCode
		pctx.FareCents = snap.DisplayCents
		quote, err := c.Promos.Validate(ctx, promoCode, pctx)
		if err != nil {
			return Snapshot{}, fmt.Errorf("promo validate: %w", err)
		}
		if quote.Valid {
			snap.PromoApplied = true
			snap.PromoDiscountCents = quote.DiscountCents
		} else {
			snap.PromoReason = quote.Reason
		}
	}

	snap.ElasticCents = bps(snap.MarkupCents, rule.ElasticBps)
	snap.TotalDiscountCents = snap.PromoDiscountCents + snap.ElasticCents
	snap.TargetCents = snap.DisplayCents - snap.TotalDiscountCents

	// Floor murni dari margin minimum atas supplier net. Target boleh jatuh
	// di bawah floor (promo besar); policy yang menegakkan offer >= floor.
	snap.FloorCents = netCents + ceilBps(netCents, c.MinMarginBps)
	return snap, nil
}
