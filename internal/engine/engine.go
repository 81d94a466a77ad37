package engine

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/metrics"
)

// SignalChannel is the bus channel admitted signals are published on.
const SignalChannel = "ghostarb:signals"

// Trader runs one executed-path attempt for an account. Implementations own
// all per-trade gating beyond slot limits and must return when the position
// is settled or skipped.
type Trader interface {
	Trade(ctx context.Context, account domain.Account, sig domain.Signal)
}

// ShadowTrader replays a signal on the observed path.
type ShadowTrader interface {
	Observe(ctx context.Context, sig domain.Signal)
}

// Engine is the dispatcher between the detector and the two trade paths. It
// is the sole owner of the per-account slot counters: traders never touch
// them, they just run and report completion over a channel, so slot
// accounting needs no shared locks.
type Engine struct {
	state    *State
	accounts domain.AccountStore
	trader   Trader
	shadow   ShadowTrader
	bus      domain.SignalBus
	metrics  *metrics.Recorder
	logger   *slog.Logger

	maxSlots     int
	signalCh     chan domain.Signal
	completionCh chan int64
	slots        map[int64]int
	wg           sync.WaitGroup
}

// NewEngine creates the dispatcher. bus may be nil when no out-of-process
// consumers are wired.
func NewEngine(state *State, accounts domain.AccountStore, trader Trader, shadow ShadowTrader, bus domain.SignalBus, maxSlots int, rec *metrics.Recorder, logger *slog.Logger) *Engine {
	return &Engine{
		state:        state,
		accounts:     accounts,
		trader:       trader,
		shadow:       shadow,
		bus:          bus,
		metrics:      rec,
		maxSlots:     maxSlots,
		signalCh:     make(chan domain.Signal, 16),
		completionCh: make(chan int64, 64),
		slots:        make(map[int64]int),
		logger:       logger.With(slog.String("component", "dispatcher")),
	}
}

// Dispatch hands an admitted signal to the dispatcher without blocking the
// detector. Signals that arrive while the queue is full are dropped; a
// backlog that deep means the engine is already saturated.
func (e *Engine) Dispatch(sig domain.Signal) {
	select {
	case e.signalCh <- sig:
	default:
		e.logger.Warn("dispatch queue full, dropping signal",
			slog.Float64("move_pct", sig.Move*100))
	}
}

// State exposes the shared engine state for read-side surfaces.
func (e *Engine) State() *State { return e.state }

// Pause suspends signal evaluation until Resume.
func (e *Engine) Pause() { e.state.SetPaused(true) }

// Resume re-enables signal evaluation.
func (e *Engine) Resume() { e.state.SetPaused(false) }

// Run processes signals and trade completions until ctx is cancelled, then
// waits for in-flight trades to finish.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("dispatcher started", slog.Int("max_slots", e.maxSlots))
	defer e.logger.Info("dispatcher stopped")

	for {
		select {
		case <-ctx.Done():
			e.wg.Wait()
			return ctx.Err()
		case id := <-e.completionCh:
			e.release(id)
		case sig := <-e.signalCh:
			e.fanOut(ctx, sig)
		}
	}
}

func (e *Engine) fanOut(ctx context.Context, sig domain.Signal) {
	e.metrics.SignalAdmitted()
	e.publish(ctx, sig)

	listCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	accounts, err := e.accounts.ListActive(listCtx)
	cancel()
	if err != nil {
		e.logger.Error("listing active accounts", slog.Any("error", err))
		return
	}

	for _, acct := range accounts {
		if e.slots[acct.ID] >= e.maxSlots {
			e.metrics.TradeSkipped("no_slots")
			e.logger.Debug("all slots busy",
				slog.Int64("account_id", acct.ID),
				slog.Int("slots", e.slots[acct.ID]))
			continue
		}
		e.slots[acct.ID]++
		e.wg.Add(1)
		go e.runTrade(ctx, acct, sig)
	}
	e.metrics.SlotsInUse(e.totalSlots())

	if e.shadow != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.shadow.Observe(ctx, sig)
		}()
	}
}

func (e *Engine) runTrade(ctx context.Context, acct domain.Account, sig domain.Signal) {
	defer e.wg.Done()
	defer func() {
		select {
		case e.completionCh <- acct.ID:
		case <-time.After(5 * time.Second):
			// Run has already exited; the counters die with it.
		}
	}()
	e.trader.Trade(ctx, acct, sig)
}

func (e *Engine) release(id int64) {
	if e.slots[id] <= 1 {
		delete(e.slots, id)
	} else {
		e.slots[id]--
	}
	e.metrics.SlotsInUse(e.totalSlots())
}

func (e *Engine) totalSlots() int {
	n := 0
	for _, c := range e.slots {
		n += c
	}
	return n
}

func (e *Engine) publish(ctx context.Context, sig domain.Signal) {
	if e.bus == nil {
		return
	}
	payload, err := json.Marshal(sig)
	if err != nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := e.bus.Publish(pubCtx, SignalChannel, payload); err != nil {
		e.logger.Debug("signal publish failed", slog.Any("error", err))
	}
}
