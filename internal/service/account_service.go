// Package service holds the use-case layer between the HTTP surface and the
// engine's stores.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/notify"
)

// AccountService manages enrollment and account settings on the executed
// ledger.
type AccountService struct {
	accounts       domain.AccountStore
	notifier       *notify.Notifier
	initialBalance float64
	logger         *slog.Logger
}

// NewAccountService creates an AccountService. notifier may be nil.
func NewAccountService(accounts domain.AccountStore, notifier *notify.Notifier, initialBalance float64, logger *slog.Logger) *AccountService {
	return &AccountService{
		accounts:       accounts,
		notifier:       notifier,
		initialBalance: initialBalance,
		logger:         logger.With(slog.String("component", "account_service")),
	}
}

// Enroll creates a new active account with the initial balance. Enrolling an
// existing ID returns the existing account unchanged.
func (s *AccountService) Enroll(ctx context.Context, id int64, mode domain.StrategyMode) (domain.Account, error) {
	if existing, err := s.accounts.Get(ctx, id); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return domain.Account{}, fmt.Errorf("account_service: enroll lookup: %w", err)
	}

	if !mode.Valid() {
		mode = domain.StrategyBalanced
	}
	acct := domain.Account{
		ID:          id,
		Balance:     s.initialBalance,
		PeakBalance: s.initialBalance,
		Active:      true,
		Strategy:    mode,
		JoinedAt:    time.Now(),
	}
	if err := s.accounts.Create(ctx, acct); err != nil {
		return domain.Account{}, fmt.Errorf("account_service: enroll: %w", err)
	}

	s.logger.Info("account enrolled",
		slog.Int64("account_id", id),
		slog.String("strategy", string(mode)))
	if s.notifier != nil {
		_ = s.notifier.SendTo(ctx, id, "Enrolled",
			fmt.Sprintf("Paper trading is live with a %.0f balance on the %s strategy.", s.initialBalance, mode))
	}
	return acct, nil
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id int64) (domain.Account, error) {
	return s.accounts.Get(ctx, id)
}

// ListActive returns all active accounts.
func (s *AccountService) ListActive(ctx context.Context) ([]domain.Account, error) {
	return s.accounts.ListActive(ctx)
}

// SetStrategy switches an account's risk profile.
func (s *AccountService) SetStrategy(ctx context.Context, id int64, mode domain.StrategyMode) error {
	if !mode.Valid() {
		return fmt.Errorf("account_service: unknown strategy %q", mode)
	}
	if err := s.accounts.SetStrategy(ctx, id, mode); err != nil {
		return fmt.Errorf("account_service: set strategy: %w", err)
	}
	s.logger.Info("strategy changed",
		slog.Int64("account_id", id),
		slog.String("strategy", string(mode)))
	return nil
}

// SetActive enables or disables an account's participation in dispatch.
func (s *AccountService) SetActive(ctx context.Context, id int64, active bool) error {
	if err := s.accounts.SetActive(ctx, id, active); err != nil {
		return fmt.Errorf("account_service: set active: %w", err)
	}
	return nil
}

// SetBalance overwrites an account's balance, raising the peak when the new
// balance exceeds it. This is an operator adjustment, not a trade outcome.
func (s *AccountService) SetBalance(ctx context.Context, id int64, balance float64) error {
	if balance < 0 {
		return fmt.Errorf("account_service: negative balance")
	}
	acct, err := s.accounts.Get(ctx, id)
	if err != nil {
		return err
	}
	peak := acct.PeakBalance
	if balance > peak {
		peak = balance
	}
	if err := s.accounts.UpdateBalance(ctx, id, balance, peak); err != nil {
		return fmt.Errorf("account_service: set balance: %w", err)
	}
	s.logger.Info("balance adjusted",
		slog.Int64("account_id", id),
		slog.Float64("balance", balance))
	return nil
}

// ResetPeak resets the high-water mark to the current balance, releasing a
// drawdown lock. This is an explicit operator action.
func (s *AccountService) ResetPeak(ctx context.Context, id int64) error {
	if err := s.accounts.ResetPeak(ctx, id); err != nil {
		return fmt.Errorf("account_service: reset peak: %w", err)
	}
	s.logger.Info("peak reset", slog.Int64("account_id", id))
	return nil
}
