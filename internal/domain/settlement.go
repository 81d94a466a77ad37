package domain

import "time"

// SettlementRecord is the immutable, append-only row written when a position
// (real or observed) closes. Profit and resulting balance are encrypted
// before storage; the plaintext fields here exist only in memory on the way
// in and after an explicit decrypting read.
type SettlementRecord struct {
	ID         int64
	AccountID  int64
	Path       Path
	Move       float64
	Velocity   float64
	Confidence float64
	Entry      float64
	Exit       float64
	Hold       time.Duration
	Reason     ExitReason
	Profit     float64
	Balance    float64
	CreatedAt  time.Time
}

// TradeView is one decrypted row of an account's trade history as exposed to
// external collaborators.
type TradeView struct {
	Time   time.Time  `json:"time"`
	Move   float64    `json:"move"`
	Entry  float64    `json:"entry"`
	Exit   float64    `json:"exit"`
	Hold   float64    `json:"hold_seconds"`
	Profit float64    `json:"profit"`
	Reason ExitReason `json:"reason"`
}

// ListOpts carries standard pagination parameters for history queries.
type ListOpts struct {
	Limit  int
	Offset int
}

// Efficiency is the executed-vs-observed comparison exposed to collaborators.
// Ratio is executed/observed*100, or 0 when the observed baseline is not
// positive.
type Efficiency struct {
	ExecutedProfit float64 `json:"executed_profit"`
	ObservedProfit float64 `json:"observed_profit"`
	Ratio          float64 `json:"ratio_pct"`
}

// AlphaEfficiency computes the efficiency ratio with the divide-by-zero guard
// required of the observed baseline.
func AlphaEfficiency(executed, observed float64) Efficiency {
	eff := Efficiency{ExecutedProfit: executed, ObservedProfit: observed}
	if observed > 0 {
		eff.Ratio = executed / observed * 100
	}
	return eff
}
