package bargain

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// In-memory fakes yang meniru semantik repo pg (CAS, partial unique index,
// conditional consume). Cukup untuk menguji orchestration tanpa DB.

type fakeSessions struct {
	byID map[string]*Session
}

func newFakeSessions() *fakeSessions {
	return &fakeSessions{byID: map[string]*Session{}}
}

func (f *fakeSessions) Create(ctx context.Context, s *Session) error {
	cp := *s
	f.byID[s.ID] = &cp
	return nil
}

func (f *fakeSessions) Get(ctx context.Context, id string) (*Session, error) {
	s, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	cp := *s
	cp.Rounds = append([]Round(nil), s.Rounds...)
	return &cp, nil
}

func (f *fakeSessions) AppendRound(ctx context.Context, sessionID string, expectedRound int, round Round, newStatus Status, finalPriceCents int64) error {
	s, ok := f.byID[sessionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	if s.Status != StatusActive {
		return fmt.Errorf("%w: session %s is %s", ErrSessionClosed, sessionID, s.Status)
	}
	if s.CurrentRound != expectedRound {
		return ErrConcurrentModification
	}
	s.CurrentRound = round.RoundNumber
	s.Status = newStatus
	s.FinalPriceCents = finalPriceCents
	s.Rounds = append(s.Rounds, round)
	return nil
}

func (f *fakeSessions) Close(ctx context.Context, id string, to Status) (bool, error) {
	s, ok := f.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if !CanTransition(s.Status, to) {
		return false, nil
	}
	s.Status = to
	return true, nil
}

func (f *fakeSessions) MarkPromoCommitted(ctx context.Context, id string) (bool, error) {
	s, ok := f.byID[id]
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	if s.PromoCommitted {
		return false, nil
	}
	s.PromoCommitted = true
	return true, nil
}

func (f *fakeSessions) ListByUser(ctx context.Context, userID string, limit int) ([]Session, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Session
	for _, s := range f.byID {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeHolds struct {
	byID map[string]*Hold
}

func newFakeHolds() *fakeHolds {
	return &fakeHolds{byID: map[string]*Hold{}}
}

func (f *fakeHolds) Issue(ctx context.Context, h *Hold) error {
	for _, e := range f.byID {
		if e.SessionID == h.SessionID && e.Status == HoldActive {
			return fmt.Errorf("%w: session %s", ErrDuplicateHold, h.SessionID)
		}
	}
	cp := *h
	f.byID[h.ID] = &cp
	return nil
}

func (f *fakeHolds) Get(ctx context.Context, id string) (*Hold, error) {
	h, ok := f.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrHoldNotFound, id)
	}
	cp := *h
	return &cp, nil
}

func (f *fakeHolds) LatestForSession(ctx context.Context, sessionID string) (*Hold, error) {
	var latest *Hold
	for _, h := range f.byID {
		if h.SessionID != sessionID {
			continue
		}
		if latest == nil || h.CreatedAt.After(latest.CreatedAt) {
			latest = h
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeHolds) Consume(ctx context.Context, holdID, bookingRef string, now time.Time) (*Hold, bool, error) {
	h, ok := f.byID[holdID]
	if !ok {
		return nil, false, fmt.Errorf("%w: %s", ErrHoldNotFound, holdID)
	}
	if h.Status == HoldActive && now.Before(h.ExpiresAt) {
		h.Status = HoldConsumed
		t := now
		h.ConsumedAt = &t
		h.BookingReference = bookingRef
		cp := *h
		return &cp, true, nil
	}
	if h.Status == HoldConsumed {
		cp := *h
		return &cp, false, nil
	}
	return nil, false, fmt.Errorf("%w: %s", ErrHoldExpired, holdID)
}

func (f *fakeHolds) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	var n int64
	for _, h := range f.byID {
		if h.Status == HoldActive && now.After(h.ExpiresAt) {
			h.Status = HoldExpired
			n++
		}
	}
	return n, nil
}

func (f *fakeHolds) ExpireForSession(ctx context.Context, sessionID string) error {
	for _, h := range f.byID {
		if h.SessionID == sessionID && h.Status == HoldActive {
			h.Status = HoldExpired
		}
	}
	return nil
}

type fakeLedger struct {
	quote   *PromoQuote
	commits []int64
}

func (f *fakeLedger) Validate(ctx context.Context, code string, pctx PromoContext) (*PromoQuote, error) {
	if f.quote != nil {
		return f.quote, nil
	}
	return &PromoQuote{Code: code, Valid: false, Reason: "PROMO_NOT_FOUND"}, nil
}

func (f *fakeLedger) Commit(ctx context.Context, code string, discountCents int64) error {
	f.commits = append(f.commits, discountCents)
	return nil
}

type fakeCatalog struct {
	netCents int64
	err      error
}

func (f *fakeCatalog) SupplierNetRate(ctx context.Context, productRef string, module Module, qty QuantityContext) (int64, error) {
	return f.netCents, f.err
}

type fakeBookings struct {
	refs []string
}

func (f *fakeBookings) CreateBooking(ctx context.Context, h *Hold, reference string) error {
	f.refs = append(f.refs, reference)
	return nil
}

type emitted struct {
	eventType string
	sessionID string
}

type fakeEvents struct {
	events []emitted
}

func (f *fakeEvents) Emit(eventType, sessionID, traceID string, payload any) {
	f.events = append(f.events, emitted{eventType: eventType, sessionID: sessionID})
}

func (f *fakeEvents) types() []string {
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.eventType)
	}
	return out
}

type engineFixture struct {
	svc      *Service
	sessions *fakeSessions
	holds    *fakeHolds
	ledger   *fakeLedger
	bookings *fakeBookings
	events   *fakeEvents
	clock    *time.Time
}

func newFixture(randV float64) *engineFixture {
	start := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	clock := &start

	f := &engineFixture{
		sessions: newFakeSessions(),
		holds:    newFakeHolds(),
		ledger:   &fakeLedger{},
		bookings: &fakeBookings{},
		events:   &fakeEvents{},
		clock:    clock,
	}
	cfg := DefaultPolicyConfig()
	f.svc = &Service{
		Sessions: f.sessions,
		Holds:    f.holds,
		Promos:   f.ledger,
		Catalog:  &fakeCatalog{netCents: 1_000_000},
		Bookings: f.bookings,
		Events:   f.events,
		Calc: &Calculator{
			Markups:      &stubMarkups{},
			Promos:       f.ledger,
			MinMarginBps: 200,
		},
		Policy: &Policy{Cfg: cfg, Rand: fixedRand{v: randV}},
		Cfg:    cfg,
		Now:    func() time.Time { return *clock },
	}
	return f
}

func (f *engineFixture) advance(d time.Duration) {
	*f.clock = f.clock.Add(d)
}

func (f *engineFixture) start(t *testing.T, promo string) *Session {
	t.Helper()
	sess, err := f.svc.Start(context.Background(), StartInput{
		UserID:     "user-1",
		ProductRef: "hotel-421",
		Module:     ModuleHotel,
		Quantity:   QuantityContext{Adults: 2, Rooms: 1},
		PromoCode:  promo,
		TraceID:    "trace-1",
	})
	require.NoError(t, err)
	return sess
}

func TestStartCreatesActiveSession(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")

	assert.Equal(t, StatusActive, sess.Status)
	assert.Equal(t, 0, sess.CurrentRound)
	assert.Equal(t, 3, sess.MaxRounds)
	// default hotel markup 25%
	assert.Equal(t, int64(1_250_000), sess.Snapshot.DisplayCents)
	assert.Equal(t, int64(1_050_000), sess.Snapshot.TargetCents)
	assert.Equal(t, f.clock.Add(10*time.Minute), sess.ExpiresAt)
	assert.Equal(t, []string{EventSessionStarted}, f.events.types())

	stored, err := f.sessions.Get(context.Background(), sess.ID)
	require.NoError(t, err)
	assert.Equal(t, sess.Snapshot, stored.Snapshot)
}

func TestStartValidation(t *testing.T) {
	f := newFixture(0.5)

	_, err := f.svc.Start(context.Background(), StartInput{UserID: "u", Module: ModuleHotel})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Start(context.Background(), StartInput{UserID: "u", ProductRef: "p", Module: Module("spa")})
	assert.ErrorIs(t, err, ErrInvalidInput)

	f.svc.Catalog = &fakeCatalog{err: ErrProductUnavailable}
	_, err = f.svc.Start(context.Background(), StartInput{UserID: "u", ProductRef: "p", Module: ModuleHotel})
	assert.ErrorIs(t, err, ErrProductUnavailable)
}

func TestOfferMatchedIssuesHold(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")
	ctx := context.Background()

	res, err := f.svc.SubmitOffer(ctx, sess.ID, 1_040_000, "trace-1")
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, res.Round.Outcome)
	assert.Equal(t, StatusMatched, res.Session.Status)
	assert.Equal(t, int64(1_040_000), res.Session.FinalPriceCents)
	assert.False(t, res.CanContinue)

	require.NotNil(t, res.Hold)
	assert.Equal(t, HoldActive, res.Hold.Status)
	assert.Equal(t, int64(1_040_000), res.Hold.AgreedPriceCents)
	assert.Equal(t, f.clock.Add(30*time.Second), res.Hold.ExpiresAt)

	assert.Equal(t, []string{EventSessionStarted, EventRoundSubmitted, EventHoldIssued}, f.events.types())

	// session terminal: round berikutnya ditolak
	_, err = f.svc.SubmitOffer(ctx, sess.ID, 1_041_000, "trace-1")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestThreeRoundFlow(t *testing.T) {
	f := newFixture(1.0)
	sess := f.start(t, "")
	ctx := context.Background()

	r1, err := f.svc.SubmitOffer(ctx, sess.ID, 900_000, "t")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCountered, r1.Round.Outcome)
	assert.True(t, r1.CanContinue)
	assert.Nil(t, r1.Hold)
	assert.Equal(t, int64(1_044_750), r1.Round.CounterCents)

	r2, err := f.svc.SubmitOffer(ctx, sess.ID, 950_000, "t")
	require.NoError(t, err)
	assert.Equal(t, OutcomeCountered, r2.Round.Outcome)
	assert.Equal(t, int64(1_071_000), r2.Round.CounterCents)

	r3, err := f.svc.SubmitOffer(ctx, sess.ID, 980_000, "t")
	require.NoError(t, err)
	assert.Equal(t, OutcomeFinalCountered, r3.Round.Outcome)
	assert.False(t, r3.CanContinue)
	assert.Equal(t, StatusCompleted, r3.Session.Status)
	require.NotNil(t, r3.Hold, "final round must issue a hold at the last counter price")
	assert.Equal(t, r3.Round.CounterCents, r3.Hold.AgreedPriceCents)

	stored, err := f.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Rounds, 3)
	assert.Equal(t, 3, stored.CurrentRound)
}

func TestAcceptConsumesHoldAndBooks(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")
	ctx := context.Background()

	_, err := f.svc.SubmitOffer(ctx, sess.ID, 1_040_000, "t")
	require.NoError(t, err)

	f.advance(10 * time.Second) // masih dalam hold window
	res, err := f.svc.Accept(ctx, sess.ID, "t")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.BookingReference, "BRG-"))
	assert.Equal(t, int64(1_040_000), res.FinalPriceCents)
	assert.Equal(t, int64(210_000), res.SavingsCents)
	assert.Equal(t, []string{res.BookingReference}, f.bookings.refs)

	// retry idempotent: reference sama, tidak ada booking kedua
	res2, err := f.svc.Accept(ctx, sess.ID, "t")
	require.NoError(t, err)
	assert.Equal(t, res.BookingReference, res2.BookingReference)
	assert.Len(t, f.bookings.refs, 1)
}

func TestAcceptAfterHoldExpiry(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")
	ctx := context.Background()

	_, err := f.svc.SubmitOffer(ctx, sess.ID, 1_040_000, "t")
	require.NoError(t, err)

	f.advance(31 * time.Second)
	_, err = f.svc.Accept(ctx, sess.ID, "t")
	assert.ErrorIs(t, err, ErrHoldExpired)
	assert.Empty(t, f.bookings.refs)
}

func TestAcceptWithoutHold(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")

	_, err := f.svc.Accept(context.Background(), sess.ID, "t")
	assert.ErrorIs(t, err, ErrHoldNotFound)
}

func TestRejectMidNegotiation(t *testing.T) {
	f := newFixture(1.0)
	sess := f.start(t, "")
	ctx := context.Background()

	for _, offer := range []int64{900_000, 950_000} {
		_, err := f.svc.SubmitOffer(ctx, sess.ID, offer, "t")
		require.NoError(t, err)
	}
	require.NoError(t, f.svc.Reject(ctx, sess.ID, "t"))

	stored, err := f.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, stored.Status)
	assert.Contains(t, f.events.types(), EventSessionClosed)

	err = f.svc.Reject(ctx, sess.ID, "t")
	assert.ErrorIs(t, err, ErrSessionClosed)

	// offer setelah reject juga ditolak
	_, err = f.svc.SubmitOffer(ctx, sess.ID, 980_000, "t")
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestRejectAfterTerminalRoundBlocked(t *testing.T) {
	f := newFixture(1.0)
	sess := f.start(t, "")
	ctx := context.Background()

	for _, offer := range []int64{900_000, 950_000, 980_000} {
		_, err := f.svc.SubmitOffer(ctx, sess.ID, offer, "t")
		require.NoError(t, err)
	}

	// session sudah COMPLETED; hold tinggal dibiarkan expire
	err := f.svc.Reject(ctx, sess.ID, "t")
	assert.ErrorIs(t, err, ErrSessionClosed)

	hold, err := f.holds.LatestForSession(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, HoldActive, hold.Status)
}

func TestSessionExpiryIsLazy(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")
	ctx := context.Background()

	f.advance(11 * time.Minute)
	_, err := f.svc.SubmitOffer(ctx, sess.ID, 1_040_000, "t")
	assert.ErrorIs(t, err, ErrSessionExpired)

	stored, err := f.sessions.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusExpired, stored.Status)
	assert.Contains(t, f.events.types(), EventSessionClosed)
}

func TestStatusReportsLazyExpiry(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")
	ctx := context.Background()

	_, err := f.svc.SubmitOffer(ctx, sess.ID, 1_040_000, "t")
	require.NoError(t, err)

	f.advance(11 * time.Minute)
	view, err := f.svc.Status(ctx, sess.ID)
	require.NoError(t, err)
	// session sudah MATCHED (terminal) jadi tidak ikut expired...
	assert.Equal(t, StatusMatched, view.Session.Status)
	// ...tapi hold yang lewat deadline dilaporkan EXPIRED walau sweeper belum jalan
	require.NotNil(t, view.Hold)
	assert.Equal(t, HoldExpired, view.Hold.Status)
}

func TestPromoCommittedExactlyOnce(t *testing.T) {
	f := newFixture(0.5)
	f.ledger.quote = &PromoQuote{Code: "FD10", Valid: true, DiscountCents: 50_000}
	sess := f.start(t, "FD10")
	ctx := context.Background()

	assert.True(t, sess.Snapshot.PromoApplied)
	// target turun 50_000 karena promo
	assert.Equal(t, int64(1_000_000), sess.Snapshot.TargetCents)

	// matched (offer di atas floor margin) -> commit saat round
	_, err := f.svc.SubmitOffer(ctx, sess.ID, 1_020_000, "t")
	require.NoError(t, err)
	assert.Equal(t, []int64{50_000}, f.ledger.commits)

	// accept tidak boleh debit kedua kali
	_, err = f.svc.Accept(ctx, sess.ID, "t")
	require.NoError(t, err)
	assert.Equal(t, []int64{50_000}, f.ledger.commits)
}

func TestPromoCommitDeferredUntilAccept(t *testing.T) {
	f := newFixture(1.0)
	f.ledger.quote = &PromoQuote{Code: "FD10", Valid: true, DiscountCents: 50_000}
	sess := f.start(t, "FD10")
	ctx := context.Background()

	// tiga round tanpa match: belum ada commit
	for _, offer := range []int64{800_000, 810_000, 820_000} {
		_, err := f.svc.SubmitOffer(ctx, sess.ID, offer, "t")
		require.NoError(t, err)
	}
	assert.Empty(t, f.ledger.commits)

	_, err := f.svc.Accept(ctx, sess.ID, "t")
	require.NoError(t, err)
	assert.Equal(t, []int64{50_000}, f.ledger.commits)
}

func TestHistory(t *testing.T) {
	f := newFixture(0.5)
	f.start(t, "")
	f.advance(time.Minute)
	f.start(t, "")

	list, err := f.svc.History(context.Background(), "user-1", 0)
	require.NoError(t, err)
	assert.Len(t, list, 2)
	assert.True(t, list[0].CreatedAt.After(list[1].CreatedAt) || list[0].CreatedAt.Equal(list[1].CreatedAt))

	_, err = f.svc.History(context.Background(), "", 0)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestSweepExpiredHolds(t *testing.T) {
	f := newFixture(0.5)
	sess := f.start(t, "")
	ctx := context.Background()

	_, err := f.svc.SubmitOffer(ctx, sess.ID, 1_040_000, "t")
	require.NoError(t, err)

	n, err := f.svc.SweepExpiredHolds(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	f.advance(time.Minute)
	n, err = f.svc.SweepExpiredHolds(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
