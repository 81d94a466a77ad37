package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/engine"
	"ghostarb/internal/metrics"
)

// MarketSource is the remote API surface the poller needs.
type MarketSource interface {
	GetPrice(ctx context.Context, tokenID string) (float64, error)
	GetMarket(ctx context.Context, tokenID string) (domain.MarketInfo, error)
}

// MarketPollerConfig holds the slow-feed parameters.
type MarketPollerConfig struct {
	TokenID      string
	PollInterval time.Duration
	// MoveEpsilon is the relative change below which a new price does not
	// count as market movement.
	MoveEpsilon float64
}

// MarketPoller polls the prediction-market price on a fixed cadence and
// keeps the engine's market-side state current. The tracked token can be
// swapped at runtime when the instrument rolls over.
type MarketPoller struct {
	source  MarketSource
	state   *engine.State
	cache   domain.PriceCache
	metrics *metrics.Recorder
	logger  *slog.Logger

	mu  sync.RWMutex
	cfg MarketPollerConfig
}

// NewMarketPoller creates a MarketPoller. cache may be nil.
func NewMarketPoller(cfg MarketPollerConfig, source MarketSource, state *engine.State, cache domain.PriceCache, rec *metrics.Recorder, logger *slog.Logger) *MarketPoller {
	return &MarketPoller{
		source:  source,
		state:   state,
		cache:   cache,
		metrics: rec,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "market_poller")),
	}
}

// SetToken swaps the tracked instrument, fetching its metadata first so the
// state never holds a token without its question.
func (p *MarketPoller) SetToken(ctx context.Context, tokenID string) error {
	info, err := p.source.GetMarket(ctx, tokenID)
	if err != nil {
		return err
	}
	p.state.SetMarket(info)

	p.mu.Lock()
	p.cfg.TokenID = tokenID
	p.mu.Unlock()

	p.logger.Info("tracking market",
		slog.String("token_id", tokenID),
		slog.String("question", info.Question))
	return nil
}

// Run resolves the initial market and polls until ctx is cancelled. Poll
// failures are logged and retried on the next tick; the market being briefly
// unreachable must not take down the engine.
func (p *MarketPoller) Run(ctx context.Context) error {
	if token := p.token(); token != "" && p.state.Market().TokenID == "" {
		if err := p.SetToken(ctx, token); err != nil {
			p.logger.Warn("resolving initial market", slog.Any("error", err))
		}
	}

	ticker := time.NewTicker(p.cfg.PollInterval)
	defer ticker.Stop()

	p.logger.Info("market poller started", slog.Duration("interval", p.cfg.PollInterval))
	defer p.logger.Info("market poller stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.poll(ctx)
		}
	}
}

func (p *MarketPoller) poll(ctx context.Context) {
	token := p.token()
	if token == "" {
		return
	}

	pollCtx, cancel := context.WithTimeout(ctx, p.cfg.PollInterval*4)
	defer cancel()

	price, err := p.source.GetPrice(pollCtx, token)
	if err != nil {
		p.logger.Debug("market poll failed", slog.Any("error", err))
		return
	}
	if price <= 0 || price >= 1 {
		return
	}

	now := time.Now()
	p.state.SetMarketPrice(price, now, p.cfg.MoveEpsilon)
	p.metrics.MarketPrice(price)

	if p.cache != nil {
		if err := p.cache.SetPrice(pollCtx, "market", price, now); err != nil {
			p.logger.Debug("price cache write failed", slog.Any("error", err))
		}
	}
}

func (p *MarketPoller) token() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.cfg.TokenID
}
