package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/engine"
	"ghostarb/internal/feed"
)

// EngineStatusView is the operator-facing snapshot of the engine.
type EngineStatusView struct {
	Status       domain.EngineStatus `json:"status"`
	Paused       bool                `json:"paused"`
	SpotPrice    float64             `json:"spot_price"`
	MarketPrice  float64             `json:"market_price"`
	TokenID      string              `json:"token_id"`
	Question     string              `json:"question"`
	SampleCount  int                 `json:"sample_count"`
	FrozenAt     *time.Time          `json:"frozen_at,omitempty"`
	LastMovement *time.Time          `json:"last_market_move,omitempty"`
}

// EngineService handles the operator control surface: status, pause/resume,
// and the persisted runtime tunables.
type EngineService struct {
	eng      *engine.Engine
	detector *engine.Detector
	poller   *feed.MarketPoller
	tunables *engine.Tunables
	configs  domain.EngineConfigStore
	logger   *slog.Logger
}

// NewEngineService creates an EngineService. configs may be nil when no
// database is wired; config updates then apply in memory only.
func NewEngineService(eng *engine.Engine, detector *engine.Detector, poller *feed.MarketPoller, tunables *engine.Tunables, configs domain.EngineConfigStore, logger *slog.Logger) *EngineService {
	return &EngineService{
		eng:      eng,
		detector: detector,
		poller:   poller,
		tunables: tunables,
		configs:  configs,
		logger:   logger.With(slog.String("component", "engine_service")),
	}
}

// Status returns the current engine snapshot.
func (s *EngineService) Status() EngineStatusView {
	state := s.eng.State()
	market := state.Market()
	view := EngineStatusView{
		Status:      state.Status(),
		Paused:      state.Paused(),
		SpotPrice:   state.Spot(),
		MarketPrice: state.MarketPrice(),
		TokenID:     market.TokenID,
		Question:    market.Question,
		SampleCount: state.SampleCount(),
	}
	if t := state.FrozenAt(); !t.IsZero() {
		view.FrozenAt = &t
	}
	if t := state.LastMeaningfulMove(); !t.IsZero() {
		view.LastMovement = &t
	}
	return view
}

// Pause suspends signal evaluation.
func (s *EngineService) Pause() {
	s.eng.Pause()
	s.logger.Info("engine paused")
}

// Resume re-enables signal evaluation.
func (s *EngineService) Resume() {
	s.eng.Resume()
	s.logger.Info("engine resumed")
}

// Config returns the current runtime tunables.
func (s *EngineService) Config() domain.EngineConfig {
	market := s.eng.State().Market()
	return domain.EngineConfig{
		TokenID:             market.TokenID,
		Question:            market.Question,
		VolatilityThreshold: s.detector.Threshold(),
		TargetProfitPct:     s.tunables.TargetProfitPct(),
		BuyPct:              s.tunables.BuyPct(),
	}
}

// UpdateConfig applies new runtime tunables and persists them. Zero-valued
// fields keep their current setting, so a partial update never clobbers the
// rest; a token swap re-resolves market metadata before taking effect.
func (s *EngineService) UpdateConfig(ctx context.Context, cfg domain.EngineConfig) error {
	if cfg.VolatilityThreshold < 0 {
		return fmt.Errorf("engine_service: negative threshold")
	}
	if cfg.TargetProfitPct < 0 || cfg.BuyPct < 0 {
		return fmt.Errorf("engine_service: negative sizing override")
	}
	if cfg.BuyPct > 1 {
		return fmt.Errorf("engine_service: buy percent above 1")
	}

	if cfg.TokenID != "" && cfg.TokenID != s.eng.State().Market().TokenID {
		if err := s.poller.SetToken(ctx, cfg.TokenID); err != nil {
			return fmt.Errorf("engine_service: swap token: %w", err)
		}
	}
	if cfg.VolatilityThreshold > 0 {
		s.detector.SetThreshold(cfg.VolatilityThreshold)
	}

	target := s.tunables.TargetProfitPct()
	if cfg.TargetProfitPct > 0 {
		target = cfg.TargetProfitPct
	}
	buy := s.tunables.BuyPct()
	if cfg.BuyPct > 0 {
		buy = cfg.BuyPct
	}
	s.tunables.Set(target, buy)

	if s.configs != nil {
		if err := s.configs.Save(ctx, s.Config()); err != nil {
			return fmt.Errorf("engine_service: persist config: %w", err)
		}
	}
	s.logger.Info("runtime config updated",
		slog.String("token_id", cfg.TokenID),
		slog.Float64("threshold", cfg.VolatilityThreshold),
		slog.Float64("target_profit_pct", target),
		slog.Float64("buy_pct", buy))
	return nil
}
