package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/faredown/bargain-engine.git/internal/bargain"
	"github.com/faredown/bargain-engine.git/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
)

// BargainService adalah surface orchestrator yang dipakai handler;
// *bargain.Service memenuhinya, test pakai mock.
type BargainService interface {
	Start(ctx context.Context, in bargain.StartInput) (*bargain.Session, error)
	SubmitOffer(ctx context.Context, sessionID string, offerCents int64, traceID string) (*bargain.OfferResult, error)
	Accept(ctx context.Context, sessionID, traceID string) (*bargain.AcceptResult, error)
	Reject(ctx context.Context, sessionID, traceID string) error
	Status(ctx context.Context, sessionID string) (*bargain.SessionView, error)
	History(ctx context.Context, userID string, limit int) ([]bargain.Session, error)
	SweepExpiredHolds(ctx context.Context) (int64, error)
}

type BargainHandler struct {
	Svc   BargainService
	Redis *redis.Client
}

func (h *BargainHandler) Register(r *chi.Mux) {
	r.Post("/bargain/start", h.start)
	r.Post("/bargain/offer", h.offer)
	r.Post("/bargain/accept", h.accept)
	r.Post("/bargain/reject", h.reject)
	r.Get("/bargain/session/{id}", h.status)
	r.Get("/bargain/sessions", h.history)
	r.Post("/bargain/holds/sweep", h.sweep)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError map error taxonomy engine ke HTTP status.
func writeError(w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, bargain.ErrInvalidInput), errors.Is(err, bargain.ErrInvalidRound):
		code = http.StatusBadRequest
	case errors.Is(err, bargain.ErrSessionNotFound), errors.Is(err, bargain.ErrHoldNotFound):
		code = http.StatusNotFound
	case errors.Is(err, bargain.ErrProductUnavailable),
		errors.Is(err, bargain.ErrSessionClosed),
		errors.Is(err, bargain.ErrSessionExpired),
		errors.Is(err, bargain.ErrHoldExpired),
		errors.Is(err, bargain.ErrDuplicateHold),
		errors.Is(err, bargain.ErrConcurrentModification):
		code = http.StatusConflict
	}
	resp := map[string]any{"error": err.Error()}
	if errors.Is(err, bargain.ErrConcurrentModification) {
		resp["retryable"] = true
	}
	writeJSON(w, code, resp)
}

type startReq struct {
	UserID     string                  `json:"user_id"`
	ProductRef string                  `json:"product_ref"`
	Module     bargain.Module          `json:"module"`
	Category   string                  `json:"category,omitempty"`
	Quantity   bargain.QuantityContext `json:"quantity"`
	PromoCode  string                  `json:"promo_code,omitempty"`
	Region     string                  `json:"region,omitempty"`
	TravelDate string                  `json:"travel_date,omitempty"` // YYYY-MM-DD
}

type promoInfo struct {
	Code          string `json:"code"`
	Applied       bool   `json:"applied"`
	Reason        string `json:"reason,omitempty"`
	DiscountCents int64  `json:"discount_cents,omitempty"`
}

type startResp struct {
	SessionID         string     `json:"session_id"`
	Module            string     `json:"module"`
	DisplayPriceCents int64      `json:"display_price_cents"`
	FloorPriceCents   int64      `json:"floor_price_cents"`
	CeilingPriceCents int64      `json:"ceiling_price_cents"`
	MaxRounds         int        `json:"max_rounds"`
	ExpiresAt         time.Time  `json:"expires_at"`
	Promo             *promoInfo `json:"promo,omitempty"`
}

func (h *BargainHandler) start(w http.ResponseWriter, r *http.Request) {
	var req startReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	in := bargain.StartInput{
		UserID:     req.UserID,
		ProductRef: req.ProductRef,
		Module:     req.Module,
		Category:   req.Category,
		Quantity:   req.Quantity,
		PromoCode:  req.PromoCode,
		Region:     req.Region,
		TraceID:    r.Header.Get("X-Request-Id"),
	}
	if req.TravelDate != "" {
		d, err := time.Parse("2006-01-02", req.TravelDate)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid travel_date, want YYYY-MM-DD"})
			return
		}
		in.TravelDate = d
	}

	sess, err := h.Svc.Start(ctx, in)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := startResp{
		SessionID:         sess.ID,
		Module:            string(sess.Module),
		DisplayPriceCents: sess.Snapshot.DisplayCents,
		FloorPriceCents:   sess.Snapshot.FloorCents,
		CeilingPriceCents: sess.Snapshot.DisplayCents,
		MaxRounds:         sess.MaxRounds,
		ExpiresAt:         sess.ExpiresAt,
	}
	if sess.Snapshot.PromoCode != "" {
		resp.Promo = &promoInfo{
			Code:          sess.Snapshot.PromoCode,
			Applied:       sess.Snapshot.PromoApplied,
			Reason:        sess.Snapshot.PromoReason,
			DiscountCents: sess.Snapshot.PromoDiscountCents,
		}
	}
	writeJSON(w, http.StatusCreated, resp)
}

type offerReq struct {
	SessionID      string `json:"session_id"`
	UserOfferCents int64  `json:"user_offer_cents"`
}

type holdResp struct {
	ID              string    `json:"id"`
	ExpiresAt       time.Time `json:"expires_at"`
	DurationSeconds int       `json:"duration_seconds"`
}

type breakdown struct {
	SupplierNetCents   int64 `json:"supplier_net_cents"`
	MarkupCents        int64 `json:"markup_cents"`
	PromoDiscountCents int64 `json:"promo_discount_cents"`
	TotalDiscountCents int64 `json:"total_discount_cents"`
	DisplayCents       int64 `json:"display_cents"`
	SavingsCents       int64 `json:"savings_cents"`
}

type offerResp struct {
	SessionID        string    `json:"session_id"`
	RoundNumber      int       `json:"round_number"`
	Outcome          string    `json:"outcome"`
	SystemPriceCents int64     `json:"system_price_cents"`
	Narrative        string    `json:"narrative"`
	Warning          string    `json:"warning,omitempty"`
	CanContinue      bool      `json:"can_continue"`
	Breakdown        breakdown `json:"pricing_breakdown"`
	Hold             *holdResp `json:"hold,omitempty"`
}

func (h *BargainHandler) offer(w http.ResponseWriter, r *http.Request) {
	var req offerReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.SubmitOffer(ctx, req.SessionID, req.UserOfferCents, r.Header.Get("X-Request-Id"))
	if err != nil {
		writeError(w, err)
		return
	}

	snap := res.Session.Snapshot
	resp := offerResp{
		SessionID:        res.Session.ID,
		RoundNumber:      res.Round.RoundNumber,
		Outcome:          string(res.Round.Outcome),
		SystemPriceCents: res.Round.CounterCents,
		Narrative:        res.Round.Narrative,
		Warning:          res.Round.Warning,
		CanContinue:      res.CanContinue,
		Breakdown: breakdown{
			SupplierNetCents:   snap.SupplierNetCents,
			MarkupCents:        snap.MarkupCents,
			PromoDiscountCents: snap.PromoDiscountCents,
			TotalDiscountCents: snap.TotalDiscountCents,
			DisplayCents:       snap.DisplayCents,
			SavingsCents:       max0(snap.DisplayCents - res.Round.CounterCents),
		},
	}
	if res.Hold != nil {
		resp.Hold = &holdResp{
			ID:              res.Hold.ID,
			ExpiresAt:       res.Hold.ExpiresAt,
			DurationSeconds: int(time.Until(res.Hold.ExpiresAt).Seconds()),
		}
		// shadow key buat countdown di UI; DB tetap kebenaran
		key := fmt.Sprintf(redisx.KeyHold, res.Session.ID)
		_ = h.Redis.Set(ctx, key, res.Hold.ID, time.Until(res.Hold.ExpiresAt)).Err()
	}
	// invalidate cache status lama
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeySessionStatus, res.Session.ID)).Err()

	writeJSON(w, http.StatusOK, resp)
}

type sessionIDReq struct {
	SessionID string `json:"session_id"`
}

func (h *BargainHandler) accept(w http.ResponseWriter, r *http.Request) {
	var req sessionIDReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.Accept(ctx, req.SessionID, r.Header.Get("X-Request-Id"))
	if err != nil {
		writeError(w, err)
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeySessionStatus, req.SessionID)).Err()

	writeJSON(w, http.StatusOK, map[string]any{
		"booking_reference": res.BookingReference,
		"final_price_cents": res.FinalPriceCents,
		"savings_cents":     res.SavingsCents,
	})
}

func (h *BargainHandler) reject(w http.ResponseWriter, r *http.Request) {
	var req sessionIDReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing session_id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.Reject(ctx, req.SessionID, r.Header.Get("X-Request-Id")); err != nil {
		writeError(w, err)
		return
	}
	_ = h.Redis.Del(ctx, fmt.Sprintf(redisx.KeySessionStatus, req.SessionID)).Err()
	writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

type roundResp struct {
	RoundNumber      int       `json:"round_number"`
	UserOfferCents   int64     `json:"user_offer_cents"`
	SystemPriceCents int64     `json:"system_price_cents"`
	Outcome          string    `json:"outcome"`
	Narrative        string    `json:"narrative"`
	CreatedAt        time.Time `json:"created_at"`
}

type statusResp struct {
	SessionID       string      `json:"session_id"`
	Module          string      `json:"module"`
	ProductRef      string      `json:"product_ref"`
	Status          string      `json:"status"`
	CurrentRound    int         `json:"current_round"`
	MaxRounds       int         `json:"max_rounds"`
	DisplayCents    int64       `json:"display_cents"`
	FloorCents      int64       `json:"floor_cents"`
	FinalPriceCents int64       `json:"final_price_cents,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	ExpiresAt       time.Time   `json:"expires_at"`
	Rounds          []roundResp `json:"rounds"`
	Hold            *statusHold `json:"hold,omitempty"`
}

type statusHold struct {
	ID               string    `json:"id"`
	Status           string    `json:"status"`
	AgreedPriceCents int64     `json:"agreed_price_cents"`
	ExpiresAt        time.Time `json:"expires_at"`
	BookingReference string    `json:"booking_reference,omitempty"`
}

func (h *BargainHandler) status(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "id")
	if sessionID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "missing id"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) coba cache (hanya terisi untuk session yang sudah terminal)
	key := fmt.Sprintf(redisx.KeySessionStatus, sessionID)
	if s, err := h.Redis.Get(ctx, key).Result(); err == nil && s != "" {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(s))
		return
	}

	// 2) DB (dengan lazy expiry di service)
	view, err := h.Svc.Status(ctx, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	sess := view.Session
	resp := statusResp{
		SessionID:       sess.ID,
		Module:          string(sess.Module),
		ProductRef:      sess.ProductRef,
		Status:          string(sess.Status),
		CurrentRound:    sess.CurrentRound,
		MaxRounds:       sess.MaxRounds,
		DisplayCents:    sess.Snapshot.DisplayCents,
		FloorCents:      sess.Snapshot.FloorCents,
		FinalPriceCents: sess.FinalPriceCents,
		CreatedAt:       sess.CreatedAt,
		ExpiresAt:       sess.ExpiresAt,
	}
	for _, rd := range sess.Rounds {
		resp.Rounds = append(resp.Rounds, roundResp{
			RoundNumber:      rd.RoundNumber,
			UserOfferCents:   rd.UserOfferCents,
			SystemPriceCents: rd.CounterCents,
			Outcome:          string(rd.Outcome),
			Narrative:        rd.Narrative,
			CreatedAt:        rd.CreatedAt,
		})
	}
	if view.Hold != nil {
		resp.Hold = &statusHold{
			ID:               view.Hold.ID,
			Status:           string(view.Hold.Status),
			AgreedPriceCents: view.Hold.AgreedPriceCents,
			ExpiresAt:        view.Hold.ExpiresAt,
			BookingReference: view.Hold.BookingReference,
		}
	}

	// cache hanya kalau sudah tidak bisa berubah (terminal + tanpa hold aktif)
	if sess.Status.Terminal() && (view.Hold == nil || view.Hold.Status != bargain.HoldActive) {
		if b, err := json.Marshal(resp); err == nil {
			_ = h.Redis.Set(ctx, key, b, redisx.TTLStatusCache).Err()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *BargainHandler) history(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	sessions, err := h.Svc.History(ctx, userID, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(sessions))
	for _, s := range sessions {
		savings := int64(0)
		if s.FinalPriceCents > 0 {
			savings = max0(s.Snapshot.DisplayCents - s.FinalPriceCents)
		}
		out = append(out, map[string]any{
			"session_id":        s.ID,
			"module":            s.Module,
			"product_ref":       s.ProductRef,
			"status":            s.Status,
			"display_cents":     s.Snapshot.DisplayCents,
			"final_price_cents": s.FinalPriceCents,
			"savings_cents":     savings,
			"created_at":        s.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (h *BargainHandler) sweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	n, err := h.Svc.SweepExpiredHolds(ctx)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"expired_count": n})
}

func max0(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
