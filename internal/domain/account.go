package domain

import "time"

// StrategyMode selects an account's risk profile. Each mode maps to a fixed
// parameter pair rather than free-form per-account tuning.
type StrategyMode string

const (
	StrategyConservative StrategyMode = "conservative"
	StrategyBalanced     StrategyMode = "balanced"
	StrategyAggressive   StrategyMode = "aggressive"
)

// StrategyParams are the sizing and exit parameters associated with a mode.
type StrategyParams struct {
	BuyPct       float64 // fraction of balance committed across all slots
	TargetProfit float64 // base take-profit fraction before signal scaling
}

// Params returns the parameter table entry for the mode. Unknown modes fall
// back to balanced.
func (m StrategyMode) Params() StrategyParams {
	switch m {
	case StrategyConservative:
		return StrategyParams{BuyPct: 0.15, TargetProfit: 0.005}
	case StrategyAggressive:
		return StrategyParams{BuyPct: 0.50, TargetProfit: 0.0075}
	default:
		return StrategyParams{BuyPct: 0.35, TargetProfit: 0.005}
	}
}

// Valid reports whether m is one of the known strategy modes.
func (m StrategyMode) Valid() bool {
	switch m {
	case StrategyConservative, StrategyBalanced, StrategyAggressive:
		return true
	}
	return false
}

// Account is one enrolled paper-trading ledger entry. The executed and
// observed ledgers hold independent Account rows for the same external
// identity; balances on the two sides never mix.
type Account struct {
	ID          int64
	Balance     float64
	PeakBalance float64 // high-water mark, reset only by explicit operator action
	Active      bool
	Strategy    StrategyMode
	JoinedAt    time.Time
}

// DrawdownLocked reports whether the account has breached the maximum
// drawdown and must be skipped until an explicit reset.
func (a Account) DrawdownLocked(maxDrawdownPct float64) bool {
	return a.Balance < a.PeakBalance*(1-maxDrawdownPct)
}
