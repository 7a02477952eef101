package bargain

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Store interfaces: pg repo di file repo_*.go adalah implementasi produksi;
// test pakai fake in-memory.

type SessionStore interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	AppendRound(ctx context.Context, sessionID string, expectedRound int, round Round, newStatus Status, finalPriceCents int64) error
	Close(ctx context.Context, id string, to Status) (bool, error)
	MarkPromoCommitted(ctx context.Context, id string) (bool, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]Session, error)
}

type HoldStore interface {
	Issue(ctx context.Context, h *Hold) error
	Get(ctx context.Context, id string) (*Hold, error)
	LatestForSession(ctx context.Context, sessionID string) (*Hold, error)
	Consume(ctx context.Context, holdID, bookingRef string, now time.Time) (h *Hold, fresh bool, err error)
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
	ExpireForSession(ctx context.Context, sessionID string) error
}

type PromoLedger interface {
	PromoValidator
	Commit(ctx context.Context, code string, discountCents int64) error
}

type Catalog interface {
	SupplierNetRate(ctx context.Context, productRef string, module Module, qty QuantityContext) (int64, error)
}

type BookingService interface {
	CreateBooking(ctx context.Context, h *Hold, reference string) error
}

// EventSink: publish analytics event; fire-and-forget dari sisi engine.
type EventSink interface {
	Emit(eventType, sessionID, traceID string, payload any)
}

// Service adalah session orchestrator: satu-satunya yang boleh mutasi
// session state. Now injectable supaya expiry deterministik di test.
type Service struct {
	Sessions SessionStore
	Holds    HoldStore
	Promos   PromoLedger
	Catalog  Catalog
	Bookings BookingService
	Events   EventSink
	Calc     *Calculator
	Policy   *Policy
	Cfg      PolicyConfig
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

type StartInput struct {
	UserID     string
	ProductRef string
	Module     Module
	Category   string
	Quantity   QuantityContext
	PromoCode  string
	Region     string
	TravelDate time.Time
	TraceID    string
}

func (s *Service) Start(ctx context.Context, in StartInput) (*Session, error) {
	if in.ProductRef == "" || in.UserID == "" {
		return nil, fmt.Errorf("%w: product_ref and user_id are required", ErrInvalidInput)
	}
	if !ValidModule(in.Module) {
		return nil, fmt.Errorf("%w: unknown module %q", ErrInvalidInput, in.Module)
	}

	now := s.now()
	net, err := s.Catalog.SupplierNetRate(ctx, in.ProductRef, in.Module, in.Quantity)
	if err != nil {
		return nil, err
	}

	snap, err := s.Calc.ComputePricing(ctx, net, in.Module, in.Category, in.PromoCode, PromoContext{
		Module:      in.Module,
		Region:      in.Region,
		TravelDate:  in.TravelDate,
		BookingDate: now,
		GroupSize:   in.Quantity.Total(),
	})
	if err != nil {
		return nil, err
	}

	sess := &Session{
		ID:           uuid.NewString(),
		UserID:       in.UserID,
		ProductRef:   in.ProductRef,
		Module:       in.Module,
		Snapshot:     snap,
		CurrentRound: 0,
		MaxRounds:    s.Cfg.MaxRounds,
		Status:       StatusActive,
		CreatedAt:    now,
		ExpiresAt:    now.Add(s.Cfg.SessionTTL),
	}
	if err := s.Sessions.Create(ctx, sess); err != nil {
		return nil, err
	}

	s.Events.Emit(EventSessionStarted, sess.ID, in.TraceID, SessionStartedPayload{
		SessionID:        sess.ID,
		UserID:           sess.UserID,
		Module:           sess.Module,
		ProductRef:       sess.ProductRef,
		SupplierNetCents: snap.SupplierNetCents,
		DisplayCents:     snap.DisplayCents,
		FloorCents:       snap.FloorCents,
		PromoCode:        snap.PromoCode,
		PromoApplied:     snap.PromoApplied,
	})
	return sess, nil
}

type OfferResult struct {
	Session     *Session
	Round       Round
	CanContinue bool
	Hold        *Hold
}

// SubmitOffer: satu-satunya pintu masuk ke negotiation policy.
// Outcome matched atau round terakhir -> hold diterbitkan sebagai side effect
// dan session pindah ke status terminal.
func (s *Service) SubmitOffer(ctx context.Context, sessionID string, offerCents int64, traceID string) (*OfferResult, error) {
	sess, err := s.loadLive(ctx, sessionID, traceID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	roundNumber := sess.CurrentRound + 1
	round, err := s.Policy.Decide(sess, offerCents, roundNumber, now)
	if err != nil {
		return nil, err
	}

	newStatus := StatusActive
	var finalPrice int64
	switch {
	case round.Outcome == OutcomeMatched:
		newStatus = StatusMatched
		finalPrice = round.CounterCents
	case round.Outcome == OutcomeFinalCountered:
		newStatus = StatusCompleted
		finalPrice = round.CounterCents
	}

	if err := s.Sessions.AppendRound(ctx, sess.ID, sess.CurrentRound, round, newStatus, finalPrice); err != nil {
		return nil, err
	}
	sess.CurrentRound = roundNumber
	sess.Status = newStatus
	sess.FinalPriceCents = finalPrice
	sess.Rounds = append(sess.Rounds, round)

	s.Events.Emit(EventRoundSubmitted, sess.ID, traceID, RoundSubmittedPayload{
		SessionID:      sess.ID,
		RoundNumber:    round.RoundNumber,
		UserOfferCents: round.UserOfferCents,
		CounterCents:   round.CounterCents,
		Outcome:        round.Outcome,
	})

	res := &OfferResult{
		Session:     sess,
		Round:       round,
		CanContinue: round.Outcome == OutcomeCountered,
	}
	if newStatus == StatusActive {
		return res, nil
	}

	// Matched atau final round: terbitkan hold time-boxed.
	hold := &Hold{
		ID:                 uuid.NewString(),
		SessionID:          sess.ID,
		ProductRef:         sess.ProductRef,
		AgreedPriceCents:   round.CounterCents,
		SupplierNetCents:   sess.Snapshot.SupplierNetCents,
		MarkupCents:        sess.Snapshot.MarkupCents,
		PromoDiscountCents: sess.Snapshot.PromoDiscountCents,
		Status:             HoldActive,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.Cfg.HoldTTL),
	}
	if err := s.Holds.Issue(ctx, hold); err != nil {
		return nil, err
	}
	res.Hold = hold

	s.Events.Emit(EventHoldIssued, sess.ID, traceID, HoldIssuedPayload{
		SessionID:        sess.ID,
		HoldID:           hold.ID,
		AgreedPriceCents: hold.AgreedPriceCents,
		ExpiresAt:        hold.ExpiresAt,
	})

	// Promo di-commit hanya setelah round tercatat durable sebagai matched.
	// Untuk final-countered, commit terjadi waktu accept().
	if newStatus == StatusMatched {
		s.commitPromo(ctx, sess)
	}
	return res, nil
}

type AcceptResult struct {
	BookingReference string
	FinalPriceCents  int64
	SavingsCents     int64
}

// Accept konsumsi hold aktif dan serahkan harga ke booking collaborator.
// Idempotent: retry dengan hold yang sudah CONSUMED balikin reference asli.
func (s *Service) Accept(ctx context.Context, sessionID, traceID string) (*AcceptResult, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	hold, err := s.Holds.LatestForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if hold == nil {
		return nil, fmt.Errorf("%w: session %s has no hold", ErrHoldNotFound, sessionID)
	}

	ref := newBookingReference()
	hold, fresh, err := s.Holds.Consume(ctx, hold.ID, ref, s.now())
	if err != nil {
		return nil, err
	}

	savings := sess.Snapshot.DisplayCents - hold.AgreedPriceCents
	if !fresh {
		return &AcceptResult{
			BookingReference: hold.BookingReference,
			FinalPriceCents:  hold.AgreedPriceCents,
			SavingsCents:     savings,
		}, nil
	}

	if err := s.Bookings.CreateBooking(ctx, hold, hold.BookingReference); err != nil {
		// Hold sudah consumed; rekonsiliasi jadi urusan booking collaborator.
		return nil, err
	}
	s.commitPromo(ctx, sess)

	s.Events.Emit(EventHoldConsumed, sess.ID, traceID, HoldConsumedPayload{
		SessionID:        sess.ID,
		HoldID:           hold.ID,
		BookingReference: hold.BookingReference,
		FinalPriceCents:  hold.AgreedPriceCents,
		SavingsCents:     savings,
	})
	return &AcceptResult{
		BookingReference: hold.BookingReference,
		FinalPriceCents:  hold.AgreedPriceCents,
		SavingsCents:     savings,
	}, nil
}

// Reject: caller menutup session di titik non-terminal manapun.
// Hold aktif ikut di-expire supaya tidak orphan.
func (s *Service) Reject(ctx context.Context, sessionID, traceID string) error {
	closed, err := s.Sessions.Close(ctx, sessionID, StatusRejected)
	if err != nil {
		return err
	}
	if !closed {
		sess, err := s.Sessions.Get(ctx, sessionID)
		if err != nil {
			return err
		}
		return fmt.Errorf("%w: session %s is %s", ErrSessionClosed, sessionID, sess.Status)
	}
	if err := s.Holds.ExpireForSession(ctx, sessionID); err != nil {
		return err
	}
	s.Events.Emit(EventSessionClosed, sessionID, traceID, SessionClosedPayload{
		SessionID:   sessionID,
		FinalStatus: StatusRejected,
		Reason:      "rejected_by_user",
	})
	return nil
}

// SessionView adalah read-only projection untuk getStatus.
// Expiry dihitung lazy: session/hold yang lewat deadline dilaporkan EXPIRED
// walaupun sweeper belum jalan.
type SessionView struct {
	Session *Session
	Hold    *Hold
}

func (s *Service) Status(ctx context.Context, sessionID string) (*SessionView, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	if sess.Status == StatusActive && now.After(sess.ExpiresAt) {
		if _, err := s.Sessions.Close(ctx, sessionID, StatusExpired); err != nil {
			return nil, err
		}
		sess.Status = StatusExpired
	}

	hold, err := s.Holds.LatestForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if hold != nil && hold.ExpiredAt(now) {
		hold.Status = HoldExpired
	}
	return &SessionView{Session: sess, Hold: hold}, nil
}

func (s *Service) History(ctx context.Context, userID string, limit int) ([]Session, error) {
	if userID == "" {
		return nil, fmt.Errorf("%w: user_id is required", ErrInvalidInput)
	}
	return s.Sessions.ListByUser(ctx, userID, limit)
}

func (s *Service) SweepExpiredHolds(ctx context.Context) (int64, error) {
	return s.Holds.SweepExpired(ctx, s.now())
}

// loadLive: Get + lazy session expiry untuk jalur mutasi.
func (s *Service) loadLive(ctx context.Context, sessionID, traceID string) (*Session, error) {
	sess, err := s.Sessions.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case StatusActive:
	case StatusExpired:
		return nil, fmt.Errorf("%w: session %s", ErrSessionExpired, sessionID)
	default:
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, sessionID, sess.Status)
	}
	if s.now().After(sess.ExpiresAt) {
		if _, err := s.Sessions.Close(ctx, sessionID, StatusExpired); err != nil {
			return nil, err
		}
		s.Events.Emit(EventSessionClosed, sessionID, traceID, SessionClosedPayload{
			SessionID:   sessionID,
			FinalStatus: StatusExpired,
			Reason:      "session_timeout",
		})
		return nil, fmt.Errorf("%w: session %s", ErrSessionExpired, sessionID)
	}
	return sess, nil
}

// commitPromo: debit ledger exactly-once per session, di-guard CAS flag di
// session row. Kegagalan budget di titik ini non-fatal (harga sudah
// disepakati); cukup tercatat buat rekonsiliasi.
func (s *Service) commitPromo(ctx context.Context, sess *Session) {
	snap := sess.Snapshot
	if !snap.PromoApplied || snap.PromoDiscountCents <= 0 || sess.PromoCommitted {
		return
	}
	first, err := s.Sessions.MarkPromoCommitted(ctx, sess.ID)
	if err != nil || !first {
		if err != nil {
			log.Printf("promo commit mark: session=%s err=%v", sess.ID, err)
		}
		return
	}
	sess.PromoCommitted = true
	if err := s.Promos.Commit(ctx, snap.PromoCode, snap.PromoDiscountCents); err != nil {
		log.Printf("promo commit: session=%s code=%s err=%v", sess.ID, snap.PromoCode, err)
	}
}

func newBookingReference() string {
	return "BRG-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:12])
}
