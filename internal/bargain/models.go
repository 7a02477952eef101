package bargain

import "time"

// Module tag untuk product reference. Immutable setelah session dibuat.
type Module string

const (
	ModuleFlight      Module = "flight"
	ModuleHotel       Module = "hotel"
	ModulePackage     Module = "package"
	ModuleTransfer    Module = "transfer"
	ModuleSightseeing Module = "sightseeing"
)

func ValidModule(m Module) bool {
	switch m {
	case ModuleFlight, ModuleHotel, ModulePackage, ModuleTransfer, ModuleSightseeing:
		return true
	}
	return false
}

// Snapshot hasil pricing calculator, dihitung sekali per session.
// Semua nilai uang dalam cents; fraksi dalam basis points.
type Snapshot struct {
	SupplierNetCents   int64
	MarkupCents        int64
	DisplayCents       int64 // supplier net + markup
	PromoCode          string
	PromoApplied       bool
	PromoReason        string // advisory kalau promo degrade, bukan error channel
	PromoDiscountCents int64
	ElasticCents       int64 // porsi markup yang boleh dinego
	TotalDiscountCents int64 // promo + elastic
	TargetCents        int64 // display - total discount (recommended target)
	FloorCents         int64 // net + minimum margin: harga terendah yang boleh disepakati
}

// Session adalah aggregate root negosiasi.
type Session struct {
	ID              string
	UserID          string
	ProductRef      string
	Module          Module
	Snapshot        Snapshot
	CurrentRound    int
	MaxRounds       int
	Status          Status
	FinalPriceCents int64 // 0 selama belum matched/completed
	PromoCommitted  bool
	CreatedAt       time.Time
	ExpiresAt       time.Time
	Rounds          []Round
}

// Round adalah satu pertukaran offer/response. Append-only, immutable.
type Round struct {
	RoundNumber    int
	UserOfferCents int64
	CounterCents   int64 // harga yang di-accept kalau matched, selain itu counter
	Outcome        Outcome
	Narrative      string
	Warning        string
	CreatedAt      time.Time
}

// Hold adalah lock harga single-use dengan expiry pendek.
type Hold struct {
	ID                 string
	SessionID          string
	ProductRef         string
	AgreedPriceCents   int64
	SupplierNetCents   int64
	MarkupCents        int64
	PromoDiscountCents int64
	Status             HoldStatus
	CreatedAt          time.Time
	ExpiresAt          time.Time
	ConsumedAt         *time.Time
	BookingReference   string
}

func (h *Hold) ExpiredAt(now time.Time) bool {
	return h.Status == HoldActive && now.After(h.ExpiresAt)
}

// PromoQuote hasil validasi promotion ledger terhadap booking context.
type PromoQuote struct {
	Code                 string
	Valid                bool
	Reason               string // kode alasan kalau invalid, e.g. PROMO_EXPIRED
	DiscountCents        int64
	RemainingBudgetCents int64
}

// PromoContext adalah konteks booking yang dicek terhadap eligibility rule.
type PromoContext struct {
	Module      Module
	FareCents   int64 // displayed price yang jadi basis diskon
	Region      string
	TravelDate  time.Time
	BookingDate time.Time
	GroupSize   int
}

// QuantityContext: jumlah pax/guest/unit per module, explicit per field
// (bukan open-ended map) supaya validasi total.
type QuantityContext struct {
	Adults   int `json:"adults"`
	Children int `json:"children"`
	Rooms    int `json:"rooms,omitempty"`
	Units    int `json:"units,omitempty"`
}

func (q QuantityContext) Total() int {
	n := q.Adults + q.Children
	if n <= 0 {
		n = 1
	}
	return n
}
