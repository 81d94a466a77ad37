// Package executor implements the real trade path: per-signal gating, book
// liquidity checks, position sizing, and the short monitoring loop that turns
// an open position into a settlement record.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"ghostarb/internal/domain"
	"ghostarb/internal/engine"
	"ghostarb/internal/metrics"
)

// Quoter returns the current market price for a token.
type Quoter interface {
	GetPrice(ctx context.Context, tokenID string) (float64, error)
}

// BookSource returns a resting-order snapshot for a token.
type BookSource interface {
	GetBook(ctx context.Context, tokenID string) (domain.OrderbookSnapshot, error)
}

// Params are the position lifecycle tunables.
type Params struct {
	MaxConcurrent    int
	MaxDrawdownPct   float64
	SlippageCapPct   float64
	ExitTimeout      time.Duration
	PollInterval     time.Duration
	SlippagePct      float64
	TakerFeePct      float64
	StalenessWindow  time.Duration
	TargetScale      float64
	StopLoss         float64
	StopLossLowPrice float64
	LowPriceCutoff   float64
	// Tunables carries the operator overrides for target profit and position
	// sizing. May be nil.
	Tunables *engine.Tunables
}

// Executor runs the executed path for one account per call. It owns no slot
// bookkeeping: the dispatcher hands it at most MaxConcurrent concurrent
// trades per account and it simply runs each one to settlement or skip.
type Executor struct {
	state       *engine.State
	quoter      Quoter
	books       BookSource
	accounts    domain.AccountStore
	settlements domain.SettlementStore
	batcher     *Batcher
	threshold   func() float64
	params      Params
	metrics     *metrics.Recorder
	logger      *slog.Logger

	// drawdownNotified tracks which locked accounts have already been told,
	// so a locked account is not spammed on every signal.
	mu               sync.Mutex
	drawdownNotified map[int64]bool
}

// New creates an Executor. threshold supplies the detector's current base
// threshold for target scaling.
func New(state *engine.State, quoter Quoter, books BookSource, accounts domain.AccountStore, settlements domain.SettlementStore, batcher *Batcher, threshold func() float64, params Params, rec *metrics.Recorder, logger *slog.Logger) *Executor {
	return &Executor{
		state:            state,
		quoter:           quoter,
		books:            books,
		accounts:         accounts,
		settlements:      settlements,
		batcher:          batcher,
		threshold:        threshold,
		params:           params,
		metrics:          rec,
		logger:           logger.With(slog.String("component", "executor")),
		drawdownNotified: make(map[int64]bool),
	}
}

// Trade runs one executed-path attempt. It returns when the position is
// settled or the signal was skipped; errors are terminal for this trade only
// and are logged, not propagated.
func (ex *Executor) Trade(ctx context.Context, acct domain.Account, sig domain.Signal) {
	log := ex.logger.With(slog.Int64("account_id", acct.ID))

	if err := ex.checkMarketFresh(); err != nil {
		ex.metrics.TradeSkipped("stale_market")
		log.Debug("skipping signal", slog.Any("error", err))
		return
	}

	// Re-read the row: the balance may have moved since the dispatcher
	// listed active accounts.
	acct, err := ex.accounts.Get(ctx, acct.ID)
	if err != nil {
		log.Error("reloading account", slog.Any("error", err))
		return
	}
	if !acct.Active {
		return
	}

	if acct.DrawdownLocked(ex.params.MaxDrawdownPct) {
		ex.metrics.TradeSkipped("drawdown")
		ex.notifyDrawdownOnce(ctx, acct)
		return
	}
	ex.clearDrawdownNotice(acct.ID)

	pos, skip := ex.open(ctx, acct, sig, log)
	if skip != "" {
		ex.metrics.TradeSkipped(skip)
		return
	}

	base := acct.Strategy.Params().TargetProfit
	if override := ex.params.Tunables.TargetProfitPct(); override > 0 {
		base = override
	}
	target := ScaledTarget(sig, ex.threshold(), ex.params.TargetScale, base)
	exitPrice, reason := ex.monitor(ctx, pos, target)
	ex.settle(ctx, acct, pos, exitPrice, reason, log)
}

func (ex *Executor) checkMarketFresh() error {
	last := ex.state.LastMeaningfulMove()
	if last.IsZero() {
		return fmt.Errorf("no market movement observed yet: %w", domain.ErrStaleMarket)
	}
	if age := time.Since(last); age > ex.params.StalenessWindow {
		return fmt.Errorf("market quiet for %s: %w", age.Round(time.Second), domain.ErrStaleMarket)
	}
	return nil
}

// open sizes the position and fills it against the book snapshot. It returns
// a skip reason instead of a position when any liquidity gate fails.
func (ex *Executor) open(ctx context.Context, acct domain.Account, sig domain.Signal, log *slog.Logger) (domain.Position, string) {
	buyPct := acct.Strategy.Params().BuyPct
	if override := ex.params.Tunables.BuyPct(); override > 0 {
		buyPct = override
	}
	invest := acct.Balance * buyPct / float64(ex.params.MaxConcurrent)
	if invest <= 0 {
		return domain.Position{}, "no_capital"
	}

	market := ex.state.Market()
	book, err := ex.books.GetBook(ctx, market.TokenID)
	if err != nil {
		log.Warn("fetching book", slog.Any("error", err))
		return domain.Position{}, "book_unavailable"
	}

	entry, err := book.EffectiveAskPrice(invest)
	if err != nil {
		if errors.Is(err, domain.ErrThinBook) {
			log.Info("book too thin for size", slog.Float64("invest", invest))
		}
		return domain.Position{}, "thin_book"
	}
	if entry <= 0 || entry >= 1 {
		return domain.Position{}, "bad_entry"
	}

	mid := ex.state.MarketPrice()
	if mid > 0 && entry > mid*(1+ex.params.SlippageCapPct) {
		log.Info("entry beyond slippage cap",
			slog.Float64("entry", entry),
			slog.Float64("mid", mid))
		return domain.Position{}, "slippage"
	}

	pos := domain.Position{
		ID:        uuid.NewString(),
		AccountID: acct.ID,
		Path:      domain.PathExecuted,
		Entry:     entry,
		Shares:    invest / entry,
		Invested:  invest,
		OpenedAt:  time.Now(),
		Signal:    sig,
	}
	log.Info("position opened",
		slog.String("position_id", pos.ID),
		slog.Float64("entry", entry),
		slog.Float64("invest", invest),
		slog.Float64("move_pct", sig.Move*100))
	return pos, ""
}

// monitor polls the market until target profit, stop loss, or timeout.
func (ex *Executor) monitor(ctx context.Context, pos domain.Position, target float64) (float64, domain.ExitReason) {
	stop := StopFor(pos.Entry, ex.params)

	deadline := pos.OpenedAt.Add(ex.params.ExitTimeout)
	ticker := time.NewTicker(ex.params.PollInterval)
	defer ticker.Stop()

	last := pos.Entry
	for {
		select {
		case <-ctx.Done():
			return last, domain.ExitTimeout
		case now := <-ticker.C:
			price := ex.currentPrice(ctx)
			if price > 0 {
				last = price
			}
			ret := (last - pos.Entry) / pos.Entry
			switch {
			case ret >= target:
				return last, domain.ExitTargetProfit
			case ret <= stop:
				return last, domain.ExitStopLoss
			case now.After(deadline):
				return last, domain.ExitTimeout
			}
		}
	}
}

func (ex *Executor) currentPrice(ctx context.Context) float64 {
	quoteCtx, cancel := context.WithTimeout(ctx, ex.params.PollInterval)
	defer cancel()
	if price, err := ex.quoter.GetPrice(quoteCtx, ex.state.Market().TokenID); err == nil && price > 0 {
		return price
	}
	return ex.state.MarketPrice()
}

// settle applies the result to the account first and persists the ledger row
// second: a dropped audit row is recoverable, a balance that disagrees with
// what collaborators were shown is not. The balance write is a relative
// adjustment so concurrent positions on the same account compose instead of
// overwriting each other.
func (ex *Executor) settle(ctx context.Context, acct domain.Account, pos domain.Position, exitPrice float64, reason domain.ExitReason, log *slog.Logger) {
	profit := pos.ProfitAt(exitPrice, ex.params.SlippagePct+ex.params.TakerFeePct)

	balance, _, err := ex.accounts.AdjustBalance(ctx, acct.ID, profit)
	if err != nil {
		log.Error("updating balance", slog.Any("error", err))
		return
	}

	rec := domain.SettlementRecord{
		AccountID:  acct.ID,
		Path:       domain.PathExecuted,
		Move:       pos.Signal.Move,
		Velocity:   pos.Signal.Velocity,
		Confidence: pos.Signal.Confidence,
		Entry:      pos.Entry,
		Exit:       exitPrice,
		Hold:       time.Since(pos.OpenedAt),
		Reason:     reason,
		Profit:     profit,
		Balance:    balance,
		CreatedAt:  time.Now(),
	}
	if err := ex.settlements.Append(ctx, rec); err != nil {
		// The balance is already applied; losing one audit row must not
		// wedge the trade path.
		log.Error("appending settlement", slog.Any("error", err))
	}

	ex.metrics.PositionSettled(string(domain.PathExecuted), string(reason))
	log.Info("position settled",
		slog.String("position_id", pos.ID),
		slog.String("reason", string(reason)),
		slog.Float64("profit", profit),
		slog.Float64("balance", balance))

	if ex.batcher != nil {
		ex.batcher.Enqueue(rec)
	}
}

func (ex *Executor) notifyDrawdownOnce(ctx context.Context, acct domain.Account) {
	ex.mu.Lock()
	already := ex.drawdownNotified[acct.ID]
	ex.drawdownNotified[acct.ID] = true
	ex.mu.Unlock()
	if already {
		return
	}

	ex.logger.Warn("account drawdown locked",
		slog.Int64("account_id", acct.ID),
		slog.Float64("balance", acct.Balance),
		slog.Float64("peak", acct.PeakBalance))
	if ex.batcher != nil {
		ex.batcher.NotifyDirect(ctx, acct.ID, "Trading paused",
			fmt.Sprintf("Balance %.2f is more than %.1f%% below your peak of %.2f. Trading resumes once the drawdown recovers.",
				acct.Balance, ex.params.MaxDrawdownPct*100, acct.PeakBalance))
	}
}

func (ex *Executor) clearDrawdownNotice(accountID int64) {
	ex.mu.Lock()
	delete(ex.drawdownNotified, accountID)
	ex.mu.Unlock()
}

// ScaledTarget is the take-profit fraction for a position: the strategy's
// base target multiplied by a signal-strength factor, never below 1x.
func ScaledTarget(sig domain.Signal, threshold, scale, baseTarget float64) float64 {
	if baseTarget <= 0 {
		baseTarget = domain.StrategyBalanced.Params().TargetProfit
	}
	factor := 1.0
	if threshold > 0 {
		if s := scale * math.Abs(sig.Move) / threshold; s > 1 {
			factor = s
		}
	}
	return baseTarget * factor
}

// StopFor returns the stop-loss floor for an entry price. Low-priced entries
// get the wider stop because tick noise at the bottom of the book would churn
// the tight one.
func StopFor(entry float64, p Params) float64 {
	if entry <= p.LowPriceCutoff {
		return p.StopLossLowPrice
	}
	return p.StopLoss
}
