// Package app provides the top-level application lifecycle. It wires the
// stores, caches, feeds, detector, dispatcher, and HTTP surface together and
// supervises them under one errgroup until shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"ghostarb/internal/config"
	"ghostarb/internal/engine"
	"ghostarb/internal/executor"
	"ghostarb/internal/feed"
	"ghostarb/internal/notify"
	"ghostarb/internal/observer"
	"ghostarb/internal/platform/polymarket"
	"ghostarb/internal/server"
	"ghostarb/internal/server/handler"
	"ghostarb/internal/service"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the engine goroutines, and blocks until
// the context is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg
	a.logger.InfoContext(ctx, "starting engine",
		slog.String("symbol", cfg.Spot.Symbol),
		slog.String("token_id", cfg.Polymarket.TokenID),
		slog.String("log_level", cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	if err := ensureBaseline(ctx, deps.ObservedAccounts,
		cfg.Observer.BaselineAccount, cfg.Executor.InitialBalance); err != nil {
		return fmt.Errorf("app: baseline account: %w", err)
	}

	// Persisted runtime tunables override the static file on restart.
	tokenID := cfg.Polymarket.TokenID
	threshold := cfg.Detector.VolatilityThreshold
	tunables := engine.NewTunables()
	if saved, err := deps.Configs.Load(ctx); err == nil {
		if saved.TokenID != "" {
			tokenID = saved.TokenID
		}
		if saved.VolatilityThreshold > 0 {
			threshold = saved.VolatilityThreshold
		}
		tunables.Set(saved.TargetProfitPct, saved.BuyPct)
		a.logger.Info("restored runtime config",
			slog.String("token_id", tokenID),
			slog.Float64("threshold", threshold),
			slog.Float64("target_profit_pct", saved.TargetProfitPct),
			slog.Float64("buy_pct", saved.BuyPct))
	}

	state := engine.NewState(cfg.Spot.HistorySize)

	pm := polymarket.NewClient(cfg.Polymarket.ClobHost, cfg.Polymarket.GammaHost)
	poller := feed.NewMarketPoller(feed.MarketPollerConfig{
		TokenID:      tokenID,
		PollInterval: cfg.Polymarket.PollInterval.Duration,
		MoveEpsilon:  cfg.Polymarket.MoveEpsilon,
	}, pm, state, deps.PriceCache, deps.Metrics, a.logger)

	spot := feed.NewSpotFeed(feed.SpotFeedConfig{
		WsURL:          cfg.Spot.WsURL,
		Symbol:         cfg.Spot.Symbol,
		ReconnectDelay: cfg.Spot.ReconnectDelay.Duration,
	}, state, deps.PriceCache, deps.Metrics, a.logger)

	shield := engine.NewShield(state, engine.ShieldParams{
		Window:     cfg.Shield.Window.Duration,
		MaxSignals: cfg.Shield.MaxSignals,
		Cooldown:   cfg.Shield.Cooldown.Duration,
	}, deps.Metrics, a.logger)

	shield.OnFreeze(func(frozen bool, _ time.Time) {
		// Deliver off the detector goroutine.
		go func() {
			if frozen {
				_ = deps.Notifier.Notify(context.Background(), notify.EventFreeze,
					"Dispatch frozen", "Signal density spike; trading is suspended until stability returns.")
				return
			}
			_ = deps.Notifier.Notify(context.Background(), notify.EventThaw,
				"Dispatch resumed", "Signal rate is back under the limit; trading resumed.")
		}()
	})

	batcher := executor.NewBatcher(deps.Notifier, cfg.Ledger.FlushInterval.Duration, a.logger)

	// The executor reads the detector's live threshold; the detector is
	// constructed last because it needs the dispatcher's callback.
	var detector *engine.Detector
	thresholdFn := func() float64 { return detector.Threshold() }

	exec := executor.New(state, pm, pm, deps.ExecutedAccounts, deps.ExecutedLedger,
		batcher, thresholdFn, executor.Params{
			MaxConcurrent:    cfg.Executor.MaxConcurrent,
			MaxDrawdownPct:   cfg.Executor.MaxDrawdownPct,
			SlippageCapPct:   cfg.Executor.SlippageCapPct,
			ExitTimeout:      cfg.Executor.ExitTimeout.Duration,
			PollInterval:     cfg.Executor.PollInterval.Duration,
			SlippagePct:      cfg.Executor.SlippagePct,
			TakerFeePct:      cfg.Executor.TakerFeePct,
			StalenessWindow:  cfg.Executor.StalenessWindow.Duration,
			TargetScale:      cfg.Executor.TargetScale,
			StopLoss:         cfg.Executor.StopLoss,
			StopLossLowPrice: cfg.Executor.StopLossLowPrice,
			LowPriceCutoff:   cfg.Executor.LowPriceCutoff,
			Tunables:         tunables,
		}, deps.Metrics, a.logger)

	shadow := observer.New(state, pm, deps.ObservedAccounts, deps.ObservedLedger,
		observer.Params{
			BaselineAccount:  cfg.Observer.BaselineAccount,
			ExecutionDelay:   cfg.Observer.ExecutionDelay.Duration,
			ShortHorizon:     cfg.Observer.ShortHorizon.Duration,
			CanonicalHorizon: cfg.Observer.CanonicalHorizon.Duration,
			LongHorizon:      cfg.Observer.LongHorizon.Duration,
			BuyPct:           cfg.Observer.BuyPct,
			MaxConcurrent:    cfg.Executor.MaxConcurrent,
			SlippagePct:      cfg.Executor.SlippagePct,
			TakerFeePct:      cfg.Executor.TakerFeePct,
			Tunables:         tunables,
		}, deps.Metrics, a.logger)

	eng := engine.NewEngine(state, deps.ExecutedAccounts, exec, shadow,
		deps.SignalBus, cfg.Executor.MaxConcurrent, deps.Metrics, a.logger)

	detector = engine.NewDetector(state, shield, engine.DetectorParams{
		TickInterval:        cfg.Detector.TickInterval.Duration,
		MinSamples:          cfg.Detector.MinSamples,
		BaseLookback:        cfg.Detector.BaseLookback.Duration,
		VelocityLookback:    cfg.Detector.VelocityLookback.Duration,
		VolatilityThreshold: threshold,
		VelocityAccelFactor: cfg.Detector.VelocityAccelFactor,
		RearmInterval:       cfg.Detector.RearmInterval.Duration,
		SanityFloor:         cfg.Spot.SanityFloor,
		FrozenPause:         cfg.Shield.FrozenPause.Duration,
		HeartbeatInterval:   cfg.Detector.HeartbeatInterval.Duration,
	}, eng.Dispatch, a.logger)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return spot.Run(ctx) })
	g.Go(func() error { return poller.Run(ctx) })
	g.Go(func() error { return detector.Run(ctx) })
	g.Go(func() error { return eng.Run(ctx) })
	g.Go(func() error { return batcher.Run(ctx) })
	if deps.Archiver != nil {
		g.Go(func() error { return deps.Archiver.Run(ctx) })
	}

	if cfg.Server.Enabled {
		accountSvc := service.NewAccountService(deps.ExecutedAccounts, deps.Notifier,
			cfg.Executor.InitialBalance, a.logger)
		ledgerSvc := service.NewLedgerService(deps.ExecutedLedger, deps.ObservedLedger, a.logger)
		engineSvc := service.NewEngineService(eng, detector, poller, tunables, deps.Configs, a.logger)

		srv := server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.APIKey,
		}, server.Handlers{
			Health:   handler.NewHealthHandler(),
			Accounts: handler.NewAccountHandler(accountSvc, ledgerSvc, a.logger),
			Ledger:   handler.NewLedgerHandler(ledgerSvc, a.logger),
			Engine:   handler.NewEngineHandler(engineSvc, a.logger),
		}, deps.Metrics, a.logger)

		g.Go(srv.Start)
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
				return err
			}
			return ctx.Err()
		})
	}

	_ = deps.Notifier.Notify(ctx, notify.EventStartup, "Engine started",
		fmt.Sprintf("Tracking %s against %s.", cfg.Spot.Symbol, tokenID))

	return g.Wait()
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
