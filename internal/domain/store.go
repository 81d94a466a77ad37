package domain

import (
	"context"
	"time"
)

// AccountStore persists one side's account ledger. The executed and observed
// paths each get their own store instance backed by independent tables.
type AccountStore interface {
	Create(ctx context.Context, account Account) error
	Get(ctx context.Context, id int64) (Account, error)
	ListActive(ctx context.Context) ([]Account, error)
	UpdateBalance(ctx context.Context, id int64, balance, peak float64) error
	// AdjustBalance applies a relative delta atomically and returns the
	// resulting balance and peak. Settlement paths must use this rather than
	// UpdateBalance so concurrent positions on one account cannot erase each
	// other's profit.
	AdjustBalance(ctx context.Context, id int64, delta float64) (balance, peak float64, err error)
	SetActive(ctx context.Context, id int64, active bool) error
	SetStrategy(ctx context.Context, id int64, mode StrategyMode) error
	ResetPeak(ctx context.Context, id int64) error
}

// SettlementStore is the append-only ledger for one engine path. Records are
// never mutated or deleted by the engine; encryption of profit and balance
// happens inside the store on the way in.
type SettlementStore interface {
	Append(ctx context.Context, rec SettlementRecord) error
	ListByAccount(ctx context.Context, accountID int64, opts ListOpts) ([]TradeView, error)
	CumulativeProfit(ctx context.Context) (float64, error)
	ListBefore(ctx context.Context, before time.Time) ([]SettlementRecord, error)
}

// EngineConfig is the runtime-adjustable subset of configuration persisted
// across restarts: tracked instrument plus the operator-tunable knobs.
type EngineConfig struct {
	TokenID             string  `json:"token_id"`
	Question            string  `json:"question"`
	VolatilityThreshold float64 `json:"volatility_threshold"`
	TargetProfitPct     float64 `json:"target_profit_pct"`
	BuyPct              float64 `json:"buy_percent"`
}

// EngineConfigStore persists the EngineConfig blob.
type EngineConfigStore interface {
	Save(ctx context.Context, cfg EngineConfig) error
	Load(ctx context.Context) (EngineConfig, error)
}
