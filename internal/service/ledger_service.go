package service

import (
	"context"
	"fmt"
	"log/slog"

	"ghostarb/internal/domain"
)

// LedgerService exposes decrypted read views over the settlement ledgers.
type LedgerService struct {
	executed domain.SettlementStore
	observed domain.SettlementStore
	logger   *slog.Logger
}

// NewLedgerService creates a LedgerService over both paths' ledgers.
func NewLedgerService(executed, observed domain.SettlementStore, logger *slog.Logger) *LedgerService {
	return &LedgerService{
		executed: executed,
		observed: observed,
		logger:   logger.With(slog.String("component", "ledger_service")),
	}
}

// TradeHistory returns an account's recent executed trades, newest first.
func (s *LedgerService) TradeHistory(ctx context.Context, accountID int64, opts domain.ListOpts) ([]domain.TradeView, error) {
	views, err := s.executed.ListByAccount(ctx, accountID, opts)
	if err != nil {
		return nil, fmt.Errorf("ledger_service: trade history: %w", err)
	}
	return views, nil
}

// Efficiency computes the alpha-efficiency ratio: cumulative executed profit
// as a percentage of the observed baseline's cumulative profit.
func (s *LedgerService) Efficiency(ctx context.Context) (domain.Efficiency, error) {
	executed, err := s.executed.CumulativeProfit(ctx)
	if err != nil {
		return domain.Efficiency{}, fmt.Errorf("ledger_service: executed profit: %w", err)
	}
	observed, err := s.observed.CumulativeProfit(ctx)
	if err != nil {
		return domain.Efficiency{}, fmt.Errorf("ledger_service: observed profit: %w", err)
	}
	return domain.AlphaEfficiency(executed, observed), nil
}
