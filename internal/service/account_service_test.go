package service

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostarb/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type memAccounts struct {
	mu sync.Mutex
	m  map[int64]domain.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{m: make(map[int64]domain.Account)}
}

func (s *memAccounts) Create(_ context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.m[a.ID]; !ok {
		s.m[a.ID] = a
	}
	return nil
}

func (s *memAccounts) Get(_ context.Context, id int64) (domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return a, nil
}

func (s *memAccounts) ListActive(_ context.Context) ([]domain.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Account
	for _, a := range s.m {
		if a.Active {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *memAccounts) UpdateBalance(_ context.Context, id int64, balance, peak float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.m[id]
	a.Balance, a.PeakBalance = balance, peak
	s.m[id] = a
	return nil
}

func (s *memAccounts) AdjustBalance(_ context.Context, id int64, delta float64) (float64, float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return 0, 0, domain.ErrNotFound
	}
	a.Balance += delta
	if a.Balance > a.PeakBalance {
		a.PeakBalance = a.Balance
	}
	s.m[id] = a
	return a.Balance, a.PeakBalance, nil
}

func (s *memAccounts) SetActive(_ context.Context, id int64, active bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Active = active
	s.m[id] = a
	return nil
}

func (s *memAccounts) SetStrategy(_ context.Context, id int64, mode domain.StrategyMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.Strategy = mode
	s.m[id] = a
	return nil
}

func (s *memAccounts) ResetPeak(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.m[id]
	if !ok {
		return domain.ErrNotFound
	}
	a.PeakBalance = a.Balance
	s.m[id] = a
	return nil
}

func TestEnrollCreatesAccount(t *testing.T) {
	store := newMemAccounts()
	svc := NewAccountService(store, nil, 1000, testLogger())

	acct, err := svc.Enroll(context.Background(), 42, domain.StrategyAggressive)
	require.NoError(t, err)
	assert.Equal(t, int64(42), acct.ID)
	assert.Equal(t, 1000.0, acct.Balance)
	assert.Equal(t, 1000.0, acct.PeakBalance)
	assert.True(t, acct.Active)
	assert.Equal(t, domain.StrategyAggressive, acct.Strategy)
	assert.WithinDuration(t, time.Now(), acct.JoinedAt, time.Second)
}

func TestEnrollIsIdempotent(t *testing.T) {
	store := newMemAccounts()
	svc := NewAccountService(store, nil, 1000, testLogger())

	first, err := svc.Enroll(context.Background(), 42, domain.StrategyBalanced)
	require.NoError(t, err)
	require.NoError(t, store.UpdateBalance(context.Background(), 42, 1234, 1234))

	// Re-enrolling must not reset the balance.
	again, err := svc.Enroll(context.Background(), 42, domain.StrategyConservative)
	require.NoError(t, err)
	assert.Equal(t, 1234.0, again.Balance)
	assert.Equal(t, first.Strategy, again.Strategy)
}

func TestEnrollUnknownStrategyFallsBack(t *testing.T) {
	svc := NewAccountService(newMemAccounts(), nil, 1000, testLogger())

	acct, err := svc.Enroll(context.Background(), 7, domain.StrategyMode("degen"))
	require.NoError(t, err)
	assert.Equal(t, domain.StrategyBalanced, acct.Strategy)
}

func TestSetStrategyValidates(t *testing.T) {
	store := newMemAccounts()
	svc := NewAccountService(store, nil, 1000, testLogger())
	_, err := svc.Enroll(context.Background(), 7, domain.StrategyBalanced)
	require.NoError(t, err)

	assert.Error(t, svc.SetStrategy(context.Background(), 7, domain.StrategyMode("degen")))
	assert.NoError(t, svc.SetStrategy(context.Background(), 7, domain.StrategyConservative))

	acct, _ := svc.Get(context.Background(), 7)
	assert.Equal(t, domain.StrategyConservative, acct.Strategy)
}

func TestSetBalanceRaisesPeak(t *testing.T) {
	store := newMemAccounts()
	svc := NewAccountService(store, nil, 1000, testLogger())
	_, err := svc.Enroll(context.Background(), 7, domain.StrategyBalanced)
	require.NoError(t, err)

	require.NoError(t, svc.SetBalance(context.Background(), 7, 2000))
	acct, _ := svc.Get(context.Background(), 7)
	assert.Equal(t, 2000.0, acct.Balance)
	assert.Equal(t, 2000.0, acct.PeakBalance)

	// Lowering the balance leaves the peak alone.
	require.NoError(t, svc.SetBalance(context.Background(), 7, 1500))
	acct, _ = svc.Get(context.Background(), 7)
	assert.Equal(t, 1500.0, acct.Balance)
	assert.Equal(t, 2000.0, acct.PeakBalance)

	assert.Error(t, svc.SetBalance(context.Background(), 7, -5))
}

func TestResetPeakReleasesDrawdown(t *testing.T) {
	store := newMemAccounts()
	svc := NewAccountService(store, nil, 1000, testLogger())
	_, err := svc.Enroll(context.Background(), 7, domain.StrategyBalanced)
	require.NoError(t, err)
	require.NoError(t, store.UpdateBalance(context.Background(), 7, 90, 100))

	acct, _ := svc.Get(context.Background(), 7)
	require.True(t, acct.DrawdownLocked(0.05))

	require.NoError(t, svc.ResetPeak(context.Background(), 7))
	acct, _ = svc.Get(context.Background(), 7)
	assert.False(t, acct.DrawdownLocked(0.05))
	assert.Equal(t, 90.0, acct.PeakBalance)
}
