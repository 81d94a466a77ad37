// Package observer implements the measurement path: a frictionless replay of
// every admitted signal against the baseline account, used as the denominator
// of the efficiency ratio. It spends no slots and skips no trades; the only
// concessions to realism are the simulated execution delay and the same
// reality tax the executed path pays.
package observer

import (
	"context"
	"log/slog"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/engine"
	"ghostarb/internal/metrics"
)

// Quoter returns the current market price for a token.
type Quoter interface {
	GetPrice(ctx context.Context, tokenID string) (float64, error)
}

// Params are the observation tunables.
type Params struct {
	BaselineAccount int64
	ExecutionDelay  time.Duration
	// Three exit horizons measured from the signal. Each writes its own
	// ledger record; only the canonical one settles onto the balance.
	ShortHorizon     time.Duration
	CanonicalHorizon time.Duration
	LongHorizon      time.Duration
	BuyPct           float64
	MaxConcurrent    int
	SlippagePct      float64
	TakerFeePct      float64
	// Tunables carries the operator sizing override. May be nil.
	Tunables *engine.Tunables
}

// Observer replays signals on the observed ledger.
type Observer struct {
	state       *engine.State
	quoter      Quoter
	accounts    domain.AccountStore
	settlements domain.SettlementStore
	params      Params
	metrics     *metrics.Recorder
	logger      *slog.Logger
}

// New creates an Observer writing to the observed-path stores.
func New(state *engine.State, quoter Quoter, accounts domain.AccountStore, settlements domain.SettlementStore, params Params, rec *metrics.Recorder, logger *slog.Logger) *Observer {
	return &Observer{
		state:       state,
		quoter:      quoter,
		accounts:    accounts,
		settlements: settlements,
		params:      params,
		metrics:     rec,
		logger:      logger.With(slog.String("component", "observer")),
	}
}

// Observe replays one signal. It blocks until the long horizon has passed or
// ctx is cancelled.
func (o *Observer) Observe(ctx context.Context, sig domain.Signal) {
	acct, err := o.accounts.Get(ctx, o.params.BaselineAccount)
	if err != nil {
		o.logger.Error("loading baseline account", slog.Any("error", err))
		return
	}
	if !acct.Active {
		o.logger.Debug("baseline account not enrolled, skipping observation")
		return
	}

	// Simulated order latency: the observed path does not get to enter at
	// the signal-time price either.
	if !o.sleepUntil(ctx, sig.Time.Add(o.params.ExecutionDelay)) {
		return
	}

	// The observed path enters at mid, not at the walked book price: the
	// gap between the two is part of what the efficiency ratio measures.
	entry := o.state.MarketPrice()
	if entry <= 0 || entry >= 1 {
		o.logger.Debug("no usable mid price, dropping observation")
		return
	}

	buyPct := o.params.BuyPct
	if override := o.params.Tunables.BuyPct(); override > 0 {
		buyPct = override
	}
	invest := acct.Balance * buyPct / float64(o.params.MaxConcurrent)
	if invest <= 0 {
		return
	}
	pos := domain.Position{
		AccountID: acct.ID,
		Path:      domain.PathObserved,
		Entry:     entry,
		Shares:    invest / entry,
		Invested:  invest,
		OpenedAt:  time.Now(),
		Signal:    sig,
	}
	tax := o.params.SlippagePct + o.params.TakerFeePct

	// Every horizon writes its own ledger row with the same entry and tax.
	// Only the canonical one books the outcome onto the baseline balance;
	// the flanking two are pure measurement.
	if !o.sleepUntil(ctx, sig.Time.Add(o.params.ShortHorizon)) {
		return
	}
	shortPx := o.currentPrice(ctx, entry)
	shortProfit := pos.ProfitAt(shortPx, tax)
	o.appendRecord(ctx, pos, shortPx, shortProfit, acct.Balance+shortProfit)

	if !o.sleepUntil(ctx, sig.Time.Add(o.params.CanonicalHorizon)) {
		return
	}
	canonicalPx := o.currentPrice(ctx, entry)
	o.settle(ctx, acct, pos, canonicalPx, tax)

	if !o.sleepUntil(ctx, sig.Time.Add(o.params.LongHorizon)) {
		return
	}
	longPx := o.currentPrice(ctx, entry)
	longProfit := pos.ProfitAt(longPx, tax)
	o.appendRecord(ctx, pos, longPx, longProfit, acct.Balance+longProfit)
}

// settle books the canonical-horizon outcome onto the baseline account with a
// relative adjustment, so overlapping observations compose.
func (o *Observer) settle(ctx context.Context, acct domain.Account, pos domain.Position, exitPrice, tax float64) {
	profit := pos.ProfitAt(exitPrice, tax)

	balance, _, err := o.accounts.AdjustBalance(ctx, acct.ID, profit)
	if err != nil {
		o.logger.Error("updating baseline balance", slog.Any("error", err))
		return
	}

	o.appendRecord(ctx, pos, exitPrice, profit, balance)

	o.metrics.PositionSettled(string(domain.PathObserved), string(domain.ExitTimeout))
	o.logger.Info("observation settled",
		slog.Float64("entry", pos.Entry),
		slog.Float64("exit", exitPrice),
		slog.Float64("profit", profit),
		slog.Float64("balance", balance))
}

// appendRecord writes one horizon's outcome to the observed ledger. For the
// non-canonical horizons balance is the hypothetical result, never written
// back to the account.
func (o *Observer) appendRecord(ctx context.Context, pos domain.Position, exitPrice, profit, balance float64) {
	rec := domain.SettlementRecord{
		AccountID:  pos.AccountID,
		Path:       domain.PathObserved,
		Move:       pos.Signal.Move,
		Velocity:   pos.Signal.Velocity,
		Confidence: pos.Signal.Confidence,
		Entry:      pos.Entry,
		Exit:       exitPrice,
		Hold:       time.Since(pos.OpenedAt),
		Reason:     domain.ExitTimeout,
		Profit:     profit,
		Balance:    balance,
		CreatedAt:  time.Now(),
	}
	if err := o.settlements.Append(ctx, rec); err != nil {
		o.logger.Error("appending observed settlement", slog.Any("error", err))
	}
}

func (o *Observer) currentPrice(ctx context.Context, fallback float64) float64 {
	quoteCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if price, err := o.quoter.GetPrice(quoteCtx, o.state.Market().TokenID); err == nil && price > 0 {
		return price
	}
	if mid := o.state.MarketPrice(); mid > 0 {
		return mid
	}
	return fallback
}

// sleepUntil waits until the deadline, returning false on cancellation. A
// deadline already in the past returns immediately.
func (o *Observer) sleepUntil(ctx context.Context, deadline time.Time) bool {
	wait := time.Until(deadline)
	if wait <= 0 {
		return true
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
