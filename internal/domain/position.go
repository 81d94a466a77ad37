package domain

import "time"

// Path tags which engine path produced a position or settlement: the real
// (capital- and slot-consuming) executor, or the measurement-only observer.
type Path string

const (
	PathExecuted Path = "EXECUTED"
	PathObserved Path = "OBSERVED"
)

// ExitReason records why a position's monitoring loop closed it.
type ExitReason string

const (
	ExitTargetProfit ExitReason = "TARGET_PROFIT"
	ExitTimeout      ExitReason = "TIMEOUT"
	ExitStopLoss     ExitReason = "STOP_LOSS"
)

// Position is an in-flight paper position. It exists only in memory for the
// monitoring duration (seconds) and is converted into a SettlementRecord on
// close; a crash mid-position loses at most that position's audit trail.
type Position struct {
	ID        string
	AccountID int64
	Path      Path
	Entry     float64
	Shares    float64
	Invested  float64
	OpenedAt  time.Time
	Signal    Signal
}

// ProfitAt returns the net profit of the position if exited at price, after
// the given reality tax (slippage + taker fee as a fraction of the entry
// notional).
func (p Position) ProfitAt(price, realityTaxPct float64) float64 {
	gross := p.Shares*price - p.Shares*p.Entry
	tax := p.Shares * p.Entry * realityTaxPct
	return gross - tax
}
