// Package engine contains the real-time core of ghostarb: the shared market
// state written by the feed adapters, the divergence detector, the
// rate-limiting shield, and the dispatcher that fans signals out to the
// executor and observer paths.
package engine

import (
	"sync"
	"time"

	"ghostarb/internal/domain"
)

// State is the single shared snapshot of both markets plus the engine's
// gating status. Feed adapters are the only writers of prices; the shield is
// the only writer of the freeze status. Everything else reads through the
// accessors so the invariants (bounded history, monotonic timestamps,
// freeze hysteresis) stay in one place.
type State struct {
	mu sync.RWMutex

	spot    float64
	history []domain.PriceSample
	cap     int

	marketPrice        float64
	lastMeaningfulMove time.Time
	market             domain.MarketInfo

	status   domain.EngineStatus
	frozenAt time.Time
	paused   bool
}

// NewState creates a State with a bounded spot history of historyCap samples.
func NewState(historyCap int) *State {
	if historyCap <= 0 {
		historyCap = 50
	}
	return &State{
		cap:    historyCap,
		status: domain.StatusStable,
	}
}

// RecordSpot appends a spot sample, evicting the oldest once the history is
// full. Timestamps are clamped to be monotonically non-decreasing so a feed
// that replays or reorders ticks cannot corrupt lookback queries.
func (s *State) RecordSpot(price float64, ts time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.history); n > 0 && ts.Before(s.history[n-1].Time) {
		ts = s.history[n-1].Time
	}
	s.spot = price
	s.history = append(s.history, domain.PriceSample{Time: ts, Price: price})
	if len(s.history) > s.cap {
		s.history = s.history[len(s.history)-s.cap:]
	}
}

// Spot returns the latest spot price (0 before the first tick).
func (s *State) Spot() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.spot
}

// SampleCount returns the number of retained spot samples.
func (s *State) SampleCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.history)
}

// SampleBefore returns the newest sample strictly older than cutoff, or the
// oldest sample when none is old enough (the detector's base-move fallback).
func (s *State) SampleBefore(cutoff time.Time) (domain.PriceSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.history) == 0 {
		return domain.PriceSample{}, false
	}
	for i := len(s.history) - 1; i >= 0; i-- {
		if s.history[i].Time.Before(cutoff) {
			return s.history[i], true
		}
	}
	return s.history[0], true
}

// OldestSince returns the oldest sample at or after cutoff. ok is false when
// no sample is recent enough (the detector's velocity fallback).
func (s *State) OldestSince(cutoff time.Time) (domain.PriceSample, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.history {
		if !p.Time.Before(cutoff) {
			return p, true
		}
	}
	return domain.PriceSample{}, false
}

// SetMarketPrice records the latest prediction-market price. The meaningful
// move timestamp advances only when the relative change against the previous
// price exceeds epsilon, so poll cadence alone never makes a dead market look
// alive.
func (s *State) SetMarketPrice(price float64, ts time.Time, epsilon float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.marketPrice > 0 && abs(price-s.marketPrice) > s.marketPrice*epsilon {
		s.lastMeaningfulMove = ts
	}
	s.marketPrice = price
}

// MarketPrice returns the latest prediction-market price.
func (s *State) MarketPrice() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.marketPrice
}

// LastMeaningfulMove returns when the market price last moved by more than
// the configured epsilon. The zero time means it never has.
func (s *State) LastMeaningfulMove() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastMeaningfulMove
}

// SetMarket swaps the tracked instrument. External rollover may do this at
// any time; readers always see a consistent id+question pair.
func (s *State) SetMarket(info domain.MarketInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.market = info
}

// Market returns the tracked instrument identity.
func (s *State) Market() domain.MarketInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.market
}

// Status returns the circuit-breaker status.
func (s *State) Status() domain.EngineStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// FrozenAt returns the time of the most recent freeze (zero if never frozen).
func (s *State) FrozenAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.frozenAt
}

// freeze transitions to FROZEN, recording the freeze time on the
// STABLE→FROZEN edge only. Returns true on that edge.
func (s *State) freeze(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == domain.StatusFrozen {
		return false
	}
	s.status = domain.StatusFrozen
	s.frozenAt = now
	return true
}

// thaw transitions back to STABLE.
func (s *State) thaw() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = domain.StatusStable
}

// SetPaused flips the operator pause flag.
func (s *State) SetPaused(paused bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.paused = paused
}

// Paused reports the operator pause flag.
func (s *State) Paused() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.paused
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
