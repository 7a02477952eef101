package bargain

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// PolicyConfig: angka-angka di sini policy knob, bukan business rule yang
// dibakukan. Default mengikuti perilaku produksi lama.
type PolicyConfig struct {
	MaxRounds         int
	MatchToleranceBps int64 // offer dianggap match kalau >= target - 2%
	Round1TiltBps     int64 // round 1: 0.5% di bawah target ("best offer")
	RiskJitterBps     int64 // round 2: ±2% sekitar target
	FinalJitterBps    int64 // round terakhir: ±3%
	HoldTTL           time.Duration
	SessionTTL        time.Duration
}

func DefaultPolicyConfig() PolicyConfig {
	return PolicyConfig{
		MaxRounds:         3,
		MatchToleranceBps: 200,
		Round1TiltBps:     50,
		RiskJitterBps:     200,
		FinalJitterBps:    300,
		HoldTTL:           30 * time.Second,
		SessionTTL:        10 * time.Minute,
	}
}

// Rand di-inject supaya test bisa pin hasil round 2/3 yang random.
// *math/rand.Rand memenuhi interface ini.
type Rand interface {
	Float64() float64
}

// NewLockedRand: sumber random seeded yang aman dipakai lintas request.
func NewLockedRand(seed int64) Rand {
	return &lockedRand{r: rand.New(rand.NewSource(seed))}
}

type lockedRand struct {
	mu sync.Mutex
	r  *rand.Rand
}

func (l *lockedRand) Float64() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.r.Float64()
}

// Policy memutuskan outcome satu round: accept, atau counter-offer berapa.
// Pure terhadap session + rand; append round dilakukan orchestrator.
type Policy struct {
	Cfg  PolicyConfig
	Rand Rand
}

// Decide menghasilkan Round untuk offer user di roundNumber.
// Precondition: roundNumber == session.CurrentRound+1, <= MaxRounds,
// session masih ACTIVE. Counter price tidak pernah di bawah FloorCents
// (margin guarantee) dan tidak pernah di atas DisplayCents.
func (p *Policy) Decide(s *Session, offerCents int64, roundNumber int, now time.Time) (Round, error) {
	if s.Status != StatusActive {
		return Round{}, fmt.Errorf("%w: session %s is %s", ErrSessionClosed, s.ID, s.Status)
	}
	if roundNumber != s.CurrentRound+1 {
		return Round{}, fmt.Errorf("%w: expected round %d, got %d", ErrInvalidRound, s.CurrentRound+1, roundNumber)
	}
	if roundNumber > s.MaxRounds {
		return Round{}, fmt.Errorf("%w: max %d rounds", ErrInvalidRound, s.MaxRounds)
	}
	if offerCents <= 0 {
		return Round{}, fmt.Errorf("%w: offer must be > 0", ErrInvalidInput)
	}
	for _, r := range s.Rounds {
		if r.UserOfferCents == offerCents {
			return Round{}, fmt.Errorf("%w: price %d already offered in round %d", ErrInvalidInput, offerCents, r.RoundNumber)
		}
	}

	snap := s.Snapshot
	round := Round{
		RoundNumber:    roundNumber,
		UserOfferCents: offerCents,
		CreatedAt:      now,
	}

	// Price match: offer dalam tolerance band dari target, dan tidak pernah
	// di bawah floor. Acceptance irreversible untuk round itu.
	matchBar := snap.TargetCents - bps(snap.TargetCents, p.Cfg.MatchToleranceBps)
	if offerCents >= snap.FloorCents && offerCents >= matchBar {
		round.Outcome = OutcomeMatched
		// floor clamp terakhir: rule markup yang lebih tipis dari margin
		// minimum bikin display < floor, dan margin yang menang
		round.CounterCents = max64(min64(offerCents, snap.DisplayCents), snap.FloorCents)
		round.Narrative = matchedNarrative(roundNumber, s.MaxRounds, round.CounterCents)
		return round, nil
	}

	var deltaBps int64
	switch {
	case roundNumber == 1:
		deltaBps = -p.Cfg.Round1TiltBps
	case roundNumber >= s.MaxRounds:
		deltaBps = jitter(p.Rand, p.Cfg.FinalJitterBps)
	default:
		deltaBps = jitter(p.Rand, p.Cfg.RiskJitterBps)
	}

	counter := snap.TargetCents + bps(snap.TargetCents, deltaBps)
	counter = min64(counter, snap.DisplayCents)
	counter = max64(counter, snap.FloorCents)

	round.CounterCents = counter
	if roundNumber >= s.MaxRounds {
		round.Outcome = OutcomeFinalCountered
	} else {
		round.Outcome = OutcomeCountered
	}
	round.Narrative = counterNarrative(roundNumber, s.MaxRounds, s.Module, offerCents, counter, int(p.Cfg.HoldTTL.Seconds()))
	round.Warning = counterWarning(roundNumber, s.MaxRounds)
	return round, nil
}

// jitter ambil delta uniform di [-maxBps, +maxBps].
func jitter(r Rand, maxBps int64) int64 {
	return int64((r.Float64()*2 - 1) * float64(maxBps))
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
