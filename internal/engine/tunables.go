package engine

import "sync"

// Tunables holds the operator-adjustable sizing overrides shared by the trade
// and observation paths. A zero value for either knob means "use the
// per-strategy default". A nil *Tunables behaves as all-zero, so callers that
// never wire the control surface need no guards.
type Tunables struct {
	mu           sync.RWMutex
	targetProfit float64
	buyPct       float64
}

// NewTunables returns an empty Tunables with no overrides set.
func NewTunables() *Tunables {
	return &Tunables{}
}

// Set replaces both overrides. Negative values are clamped to zero.
func (t *Tunables) Set(targetProfit, buyPct float64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if targetProfit < 0 {
		targetProfit = 0
	}
	if buyPct < 0 {
		buyPct = 0
	}
	t.targetProfit = targetProfit
	t.buyPct = buyPct
}

// TargetProfitPct returns the take-profit override, or 0 when unset.
func (t *Tunables) TargetProfitPct() float64 {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.targetProfit
}

// BuyPct returns the position-sizing override, or 0 when unset.
func (t *Tunables) BuyPct() float64 {
	if t == nil {
		return 0
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.buyPct
}
