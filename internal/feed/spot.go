// Package feed moves external market data into the engine's shared state:
// the spot trade stream over WebSocket and the prediction-market poller.
package feed

import (
	"context"
	"log/slog"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/engine"
	"ghostarb/internal/metrics"
	"ghostarb/internal/platform/binance"
)

// SpotFeedConfig holds the fast-feed parameters.
type SpotFeedConfig struct {
	WsURL          string
	Symbol         string
	ReconnectDelay time.Duration
}

// SpotFeed consumes the exchange trade stream and records every trade into
// the engine state. The latest price is mirrored to the price cache for
// out-of-process readers on a best-effort basis.
type SpotFeed struct {
	state   *engine.State
	cache   domain.PriceCache
	ws      *binance.WSClient
	metrics *metrics.Recorder
	logger  *slog.Logger
}

// NewSpotFeed creates a SpotFeed. cache may be nil.
func NewSpotFeed(cfg SpotFeedConfig, state *engine.State, cache domain.PriceCache, rec *metrics.Recorder, logger *slog.Logger) *SpotFeed {
	f := &SpotFeed{
		state:   state,
		cache:   cache,
		metrics: rec,
		logger:  logger.With(slog.String("component", "spot_feed")),
	}
	f.ws = binance.NewWSClient(cfg.WsURL, cfg.Symbol, cfg.ReconnectDelay, f.handleTrade, logger)
	f.ws.OnReconnect(rec.FeedReconnect)
	return f
}

// Run streams trades until ctx is cancelled.
func (f *SpotFeed) Run(ctx context.Context) error {
	f.logger.Info("spot feed started")
	defer f.logger.Info("spot feed stopped")
	return f.ws.Run(ctx)
}

func (f *SpotFeed) handleTrade(price float64, ts time.Time) {
	f.state.RecordSpot(price, ts)
	f.metrics.SpotPrice(price)

	if f.cache != nil {
		cacheCtx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
		if err := f.cache.SetPrice(cacheCtx, "spot", price, ts); err != nil {
			f.logger.Debug("price cache write failed", slog.Any("error", err))
		}
		cancel()
	}
}
