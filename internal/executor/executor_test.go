package executor

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
	"ghostarb/internal/engine"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testParams() Params {
	return Params{
		MaxConcurrent:    5,
		MaxDrawdownPct:   0.05,
		SlippageCapPct:   0.005,
		ExitTimeout:      300 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		SlippagePct:      0.002,
		TakerFeePct:      0.001,
		StalenessWindow:  10 * time.Minute,
		TargetScale:      0.75,
		StopLoss:         -0.005,
		StopLossLowPrice: -0.02,
		LowPriceCutoff:   0.1,
	}
}

type memAccounts struct {
	mu sync.Mutex
	m  map[int64]domain.Account
}

func newMemAccounts(accounts ...domain.Account) *memAccounts {
	s := &memAccounts{m: make(map[int64]domain.Account)}
	for _, a := range accounts {
		s.m[a.ID] = a
	}
	return s
}

func (s *memAccounts) Create(_ context.Context, a domain.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m[a.ID] = a
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
	a := s.m[id]
	a.Active = active
	s.m[id] = a
	return nil
}

func (s *memAccounts) SetStrategy(_ context.Context, id int64, mode domain.StrategyMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.m[id]
	a.Strategy = mode
	s.m[id] = a
	return nil
}

func (s *memAccounts) ResetPeak(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a := s.m[id]
	a.PeakBalance = a.Balance
	s.m[id] = a
	return nil
}

type memSettlements struct {
	mu   sync.Mutex
	recs []domain.SettlementRecord
}

func (s *memSettlements) Append(_ context.Context, rec domain.SettlementRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs = append(s.recs, rec)
	return nil
}

func (s *memSettlements) ListByAccount(context.Context, int64, domain.ListOpts) ([]domain.TradeView, error) {
	return nil, nil
}

func (s *memSettlements) CumulativeProfit(context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum float64
	for _, r := range s.recs {
		sum += r.Profit
	}
	return sum, nil
}

func (s *memSettlements) ListBefore(context.Context, time.Time) ([]domain.SettlementRecord, error) {
	return nil, nil
}

func (s *memSettlements) all() []domain.SettlementRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.SettlementRecord(nil), s.recs...)
}

type fixedQuoter struct {
	mu    sync.Mutex
	price float64
}

func (q *fixedQuoter) GetPrice(context.Context, string) (float64, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.price, nil
}

func (q *fixedQuoter) set(p float64) {
	q.mu.Lock()
	q.price = p
	q.mu.Unlock()
}

type fixedBooks struct {
	book domain.OrderbookSnapshot
}

func (b *fixedBooks) GetBook(context.Context, string) (domain.OrderbookSnapshot, error) {
	return b.book, nil
}

func deepBook(price float64) domain.OrderbookSnapshot {
	return domain.OrderbookSnapshot{
		TokenID: "tok",
		Asks:    []domain.PriceLevel{{Price: price, Size: 1_000_000}},
	}
}

func freshState() *engine.State {
	state := engine.NewState(50)
	state.SetMarket(domain.MarketInfo{TokenID: "tok", Question: "BTC up today?", AcceptingOrders: true})
	state.SetMarketPrice(0.49, time.Now().Add(-time.Second), 0.00001)
	state.SetMarketPrice(0.50, time.Now(), 0.00001)
	return state
}

func testSignal() domain.Signal {
	return domain.Signal{Time: time.Now(), Move: 0.0003, Velocity: 0.0001, Confidence: 0.6}
}

func newTestExecutor(state *engine.State, quoter Quoter, books BookSource, accounts domain.AccountStore, settlements domain.SettlementStore) *Executor {
	return New(state, quoter, books, accounts, settlements, nil,
		func() float64 { return 0.0002 }, testParams(), nil, testLogger())
}

func TestSizingSplitsBuyPctAcrossSlots(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 1, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.5}, &fixedBooks{book: deepBook(0.5)}, newMemAccounts(acct), &memSettlements{})

	var total float64
	for i := 0; i < testParams().MaxConcurrent; i++ {
		pos, skip := ex.open(context.Background(), acct, testSignal(), testLogger())
		require.Empty(t, skip)
		total += pos.Invested
	}
	// Five full slots together commit exactly balance * buy_pct.
	assert.InDelta(t, 1000*0.35, total, 1e-9)
}

func TestTradeTargetProfit(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 7, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	accounts := newMemAccounts(acct)
	settlements := &memSettlements{}
	quoter := &fixedQuoter{price: 0.52}
	ex := newTestExecutor(state, quoter, &fixedBooks{book: deepBook(0.5)}, accounts, settlements)

	ex.Trade(context.Background(), acct, testSignal())

	recs := settlements.all()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExitTargetProfit, recs[0].Reason)
	assert.Equal(t, domain.PathExecuted, recs[0].Path)
	assert.InDelta(t, 0.5, recs[0].Entry, 1e-9)
	assert.InDelta(t, 0.52, recs[0].Exit, 1e-9)

	// invest = 1000*0.35/5 = 70, shares = 140; gross = 140*0.02 = 2.8,
	// tax = 140*0.5*0.003 = 0.21.
	assert.InDelta(t, 2.59, recs[0].Profit, 1e-9)

	updated, err := accounts.Get(context.Background(), 7)
	require.NoError(t, err)
	assert.InDelta(t, 1002.59, updated.Balance, 1e-9)
	assert.InDelta(t, 1002.59, updated.PeakBalance, 1e-9)
}

func TestSettlementsComposeAcrossConcurrentPositions(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 11, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	accounts := newMemAccounts(acct)
	settlements := &memSettlements{}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.52}, &fixedBooks{book: deepBook(0.5)}, accounts, settlements)

	pos := domain.Position{
		ID:        "p1",
		AccountID: 11,
		Path:      domain.PathExecuted,
		Entry:     0.5,
		Shares:    140,
		Invested:  70,
		OpenedAt:  time.Now(),
		Signal:    testSignal(),
	}

	// Two overlapping positions both settle from the same account snapshot
	// taken when they opened; each profit must still land on the balance.
	ex.settle(context.Background(), acct, pos, 0.52, domain.ExitTargetProfit, testLogger())
	pos.ID = "p2"
	ex.settle(context.Background(), acct, pos, 0.52, domain.ExitTargetProfit, testLogger())

	updated, err := accounts.Get(context.Background(), 11)
	require.NoError(t, err)
	assert.InDelta(t, 1000+2*2.59, updated.Balance, 1e-9)

	recs := settlements.all()
	require.Len(t, recs, 2)
	assert.InDelta(t, 1000+2.59, recs[0].Balance, 1e-9)
	assert.InDelta(t, 1000+2*2.59, recs[1].Balance, 1e-9)
}

func TestTradeAppliesRuntimeOverrides(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 12, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	accounts := newMemAccounts(acct)
	settlements := &memSettlements{}

	params := testParams()
	params.Tunables = engine.NewTunables()
	params.Tunables.Set(0.10, 0.10)
	ex := New(state, &fixedQuoter{price: 0.52}, &fixedBooks{book: deepBook(0.5)}, accounts, settlements, nil,
		func() float64 { return 0.0002 }, params, nil, testLogger())

	ex.Trade(context.Background(), acct, testSignal())

	recs := settlements.all()
	require.Len(t, recs, 1)
	// Sized by the 10% override rather than the strategy's 35%: invest 20,
	// shares 40.
	assert.InDelta(t, 40*0.02-40*0.5*0.003, recs[0].Profit, 1e-9)
	// A 4% move stays below the 10% override target, so the exit is the
	// timeout, not target profit.
	assert.Equal(t, domain.ExitTimeout, recs[0].Reason)
}

func TestTradeStopLoss(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 8, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	accounts := newMemAccounts(acct)
	settlements := &memSettlements{}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.49}, &fixedBooks{book: deepBook(0.5)}, accounts, settlements)

	ex.Trade(context.Background(), acct, testSignal())

	recs := settlements.all()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExitStopLoss, recs[0].Reason)
	assert.Negative(t, recs[0].Profit)

	updated, _ := accounts.Get(context.Background(), 8)
	assert.Less(t, updated.Balance, 1000.0)
	// Peak is a high-water mark; a losing trade never lowers it.
	assert.InDelta(t, 1000.0, updated.PeakBalance, 1e-9)
}

func TestTradeTimeout(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 9, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	settlements := &memSettlements{}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.5005}, &fixedBooks{book: deepBook(0.5)}, newMemAccounts(acct), settlements)

	ex.Trade(context.Background(), acct, testSignal())

	recs := settlements.all()
	require.Len(t, recs, 1)
	assert.Equal(t, domain.ExitTimeout, recs[0].Reason)
}

func TestTradeSkipsStaleMarket(t *testing.T) {
	// No market movement ever recorded: the staleness gate fires first.
	state := engine.NewState(50)
	state.SetMarket(domain.MarketInfo{TokenID: "tok"})
	acct := domain.Account{ID: 2, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	accounts := newMemAccounts(acct)
	settlements := &memSettlements{}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.5}, &fixedBooks{book: deepBook(0.5)}, accounts, settlements)

	ex.Trade(context.Background(), acct, testSignal())

	assert.Empty(t, settlements.all())
	updated, _ := accounts.Get(context.Background(), 2)
	assert.Equal(t, 1000.0, updated.Balance)
}

func TestTradeSkipsDrawdownLocked(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 3, Balance: 94, PeakBalance: 100, Active: true, Strategy: domain.StrategyBalanced}
	accounts := newMemAccounts(acct)
	settlements := &memSettlements{}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.52}, &fixedBooks{book: deepBook(0.5)}, accounts, settlements)

	ex.Trade(context.Background(), acct, testSignal())
	assert.Empty(t, settlements.all())

	// Recovered above the drawdown floor: trading resumes.
	require.NoError(t, accounts.UpdateBalance(context.Background(), 3, 96, 100))
	acct, _ = accounts.Get(context.Background(), 3)
	ex.Trade(context.Background(), acct, testSignal())
	assert.Len(t, settlements.all(), 1)
}

func TestTradeSkipsSlippageCap(t *testing.T) {
	state := freshState() // mid 0.50
	acct := domain.Account{ID: 4, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	settlements := &memSettlements{}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.6}, &fixedBooks{book: deepBook(0.6)}, newMemAccounts(acct), settlements)

	ex.Trade(context.Background(), acct, testSignal())
	assert.Empty(t, settlements.all())
}

func TestTradeSkipsThinBook(t *testing.T) {
	state := freshState()
	acct := domain.Account{ID: 5, Balance: 1000, PeakBalance: 1000, Active: true, Strategy: domain.StrategyBalanced}
	settlements := &memSettlements{}
	thin := domain.OrderbookSnapshot{TokenID: "tok", Asks: []domain.PriceLevel{{Price: 0.5, Size: 10}}}
	ex := newTestExecutor(state, &fixedQuoter{price: 0.5}, &fixedBooks{book: thin}, newMemAccounts(acct), settlements)

	ex.Trade(context.Background(), acct, testSignal())
	assert.Empty(t, settlements.all())
}

func TestScaledTarget(t *testing.T) {
	base := 0.005

	// Strong move: 0.75 * (0.0004/0.0002) = 1.5x.
	got := ScaledTarget(domain.Signal{Move: 0.0004}, 0.0002, 0.75, base)
	assert.InDelta(t, 0.0075, got, 1e-12)

	// Barely-qualifying move scales below 1x and is clamped to the base.
	got = ScaledTarget(domain.Signal{Move: 0.00021}, 0.0002, 0.75, base)
	assert.InDelta(t, base, got, 1e-12)

	// Sign of the move does not matter.
	got = ScaledTarget(domain.Signal{Move: -0.0004}, 0.0002, 0.75, base)
	assert.InDelta(t, 0.0075, got, 1e-12)
}

func TestStopFor(t *testing.T) {
	p := testParams()
	assert.Equal(t, -0.005, StopFor(0.5, p))
	assert.Equal(t, -0.02, StopFor(0.05, p))
	assert.Equal(t, -0.02, StopFor(0.1, p))
}

func TestDigest(t *testing.T) {
	recs := []domain.SettlementRecord{
		{Reason: domain.ExitTargetProfit, Entry: 0.5, Exit: 0.52, Profit: 2.59, Balance: 1002.59},
		{Reason: domain.ExitStopLoss, Entry: 0.5, Exit: 0.49, Profit: -1.2, Balance: 1001.39},
	}
	title, body := Digest(recs)
	assert.Equal(t, "2 trade(s) settled", title)
	assert.Contains(t, body, "TARGET_PROFIT")
	assert.Contains(t, body, "STOP_LOSS")
	assert.Contains(t, body, "Wins 1 / Losses 1")
	assert.Contains(t, body, "balance 1001.39")
}

func TestBatcherEnqueueAndFlush(t *testing.T) {
	b := NewBatcher(nil, time.Minute, testLogger())
	b.Enqueue(domain.SettlementRecord{AccountID: 1, Profit: 1})
	b.Enqueue(domain.SettlementRecord{AccountID: 1, Profit: -0.5})
	b.Enqueue(domain.SettlementRecord{AccountID: 2, Profit: 0.25})

	assert.Equal(t, 2, b.Pending(1))
	assert.Equal(t, 1, b.Pending(2))

	b.Flush(context.Background())
	assert.Zero(t, b.Pending(1))
	assert.Zero(t, b.Pending(2))
}
