package engine

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ghostarb/internal/domain"
)

type stubAccounts struct {
	accounts []domain.Account
}

func (s *stubAccounts) Create(context.Context, domain.Account) error { return nil }
func (s *stubAccounts) Get(_ context.Context, id int64) (domain.Account, error) {
	for _, a := range s.accounts {
		if a.ID == id {
			return a, nil
		}
	}
	return domain.Account{}, domain.ErrNotFound
}
func (s *stubAccounts) ListActive(context.Context) ([]domain.Account, error) {
	return s.accounts, nil
}
func (s *stubAccounts) UpdateBalance(context.Context, int64, float64, float64) error { return nil }
func (s *stubAccounts) AdjustBalance(context.Context, int64, float64) (float64, float64, error) {
	return 0, 0, nil
}
func (s *stubAccounts) SetActive(context.Context, int64, bool) error                 { return nil }
func (s *stubAccounts) SetStrategy(context.Context, int64, domain.StrategyMode) error {
	return nil
}
func (s *stubAccounts) ResetPeak(context.Context, int64) error { return nil }

// blockingTrader holds each trade open until released.
type blockingTrader struct {
	started atomic.Int32
	release chan struct{}
}

func (t *blockingTrader) Trade(ctx context.Context, _ domain.Account, _ domain.Signal) {
	t.started.Add(1)
	select {
	case <-t.release:
	case <-ctx.Done():
	}
}

type countingShadow struct {
	observed atomic.Int32
}

func (s *countingShadow) Observe(context.Context, domain.Signal) {
	s.observed.Add(1)
}

type captureBus struct {
	mu       sync.Mutex
	payloads [][]byte
}

func (b *captureBus) Publish(_ context.Context, _ string, payload []byte) error {
	b.mu.Lock()
	b.payloads = append(b.payloads, payload)
	b.mu.Unlock()
	return nil
}

func (b *captureBus) Subscribe(context.Context, string) (<-chan []byte, error) {
	return nil, nil
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestEngineRespectsSlotLimit(t *testing.T) {
	accounts := &stubAccounts{accounts: []domain.Account{{ID: 7, Active: true}}}
	trader := &blockingTrader{release: make(chan struct{})}
	eng := NewEngine(NewState(50), accounts, trader, nil, nil, 1, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	sig := domain.Signal{Time: time.Now(), Move: 0.001, Confidence: 0.9}
	eng.Dispatch(sig)
	waitFor(t, func() bool { return trader.started.Load() == 1 })

	// Second signal arrives while the single slot is occupied.
	eng.Dispatch(sig)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(1), trader.started.Load())

	// Completion frees the slot; a later signal runs. Re-dispatch until the
	// release has been processed.
	close(trader.release)
	waitFor(t, func() bool {
		eng.Dispatch(sig)
		return trader.started.Load() >= 2
	})

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestEngineShadowsEverySignal(t *testing.T) {
	accounts := &stubAccounts{accounts: []domain.Account{{ID: 7, Active: true}}}
	trader := &blockingTrader{release: make(chan struct{})}
	close(trader.release)
	shadow := &countingShadow{}
	eng := NewEngine(NewState(50), accounts, trader, shadow, nil, 1, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	for i := 0; i < 3; i++ {
		eng.Dispatch(domain.Signal{Time: time.Now(), Move: 0.001})
		waitFor(t, func() bool { return shadow.observed.Load() == int32(i+1) })
	}

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
	assert.Equal(t, int32(3), shadow.observed.Load())
}

func TestEnginePublishesSignals(t *testing.T) {
	accounts := &stubAccounts{}
	trader := &blockingTrader{release: make(chan struct{})}
	close(trader.release)
	bus := &captureBus{}
	eng := NewEngine(NewState(50), accounts, trader, nil, bus, 1, nil, testLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- eng.Run(ctx) }()

	sig := domain.Signal{Time: time.Now().UTC(), Move: 0.0004, Velocity: 0.0002, Confidence: 0.88}
	eng.Dispatch(sig)
	waitFor(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.payloads) == 1
	})

	var decoded domain.Signal
	require.NoError(t, json.Unmarshal(bus.payloads[0], &decoded))
	assert.InDelta(t, sig.Move, decoded.Move, 1e-12)
	assert.InDelta(t, sig.Confidence, decoded.Confidence, 1e-12)

	cancel()
	require.ErrorIs(t, <-done, context.Canceled)
}

func TestEnginePauseResume(t *testing.T) {
	eng := NewEngine(NewState(50), &stubAccounts{}, &blockingTrader{release: make(chan struct{})}, nil, nil, 1, nil, testLogger())

	assert.False(t, eng.State().Paused())
	eng.Pause()
	assert.True(t, eng.State().Paused())
	eng.Resume()
	assert.False(t, eng.State().Paused())
}
