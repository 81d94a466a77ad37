package executor

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"ghostarb/internal/domain"
	"ghostarb/internal/notify"
)

// Batcher collects settlement records per account and delivers them as a
// single digest per flush interval, so an account that settles five positions
// in a burst gets one message instead of five.
type Batcher struct {
	notifier *notify.Notifier
	interval time.Duration
	logger   *slog.Logger

	mu     sync.Mutex
	queues map[int64][]domain.SettlementRecord
}

// NewBatcher creates a Batcher flushing every interval. notifier may be nil,
// in which case digests are logged and dropped.
func NewBatcher(notifier *notify.Notifier, interval time.Duration, logger *slog.Logger) *Batcher {
	return &Batcher{
		notifier: notifier,
		interval: interval,
		queues:   make(map[int64][]domain.SettlementRecord),
		logger:   logger.With(slog.String("component", "batcher")),
	}
}

// Enqueue adds a settlement to its account's pending digest. Never blocks.
func (b *Batcher) Enqueue(rec domain.SettlementRecord) {
	b.mu.Lock()
	b.queues[rec.AccountID] = append(b.queues[rec.AccountID], rec)
	b.mu.Unlock()
}

// Pending returns the number of queued settlements for an account.
func (b *Batcher) Pending(accountID int64) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[accountID])
}

// NotifyDirect bypasses batching for messages that must go out immediately
// (drawdown locks, enrollment confirmations).
func (b *Batcher) NotifyDirect(ctx context.Context, accountID int64, title, message string) {
	if b.notifier == nil {
		return
	}
	_ = b.notifier.SendTo(ctx, accountID, title, message)
}

// Run flushes on the interval until ctx is cancelled, with a final flush so
// settlements landing during shutdown still go out.
func (b *Batcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			b.Flush(flushCtx)
			cancel()
			return ctx.Err()
		case <-ticker.C:
			b.Flush(ctx)
		}
	}
}

// Flush drains all queues and sends one digest per account.
func (b *Batcher) Flush(ctx context.Context) {
	b.mu.Lock()
	drained := b.queues
	b.queues = make(map[int64][]domain.SettlementRecord)
	b.mu.Unlock()

	for accountID, recs := range drained {
		if len(recs) == 0 {
			continue
		}
		title, body := Digest(recs)
		if b.notifier == nil {
			b.logger.Info("digest (no notifier)",
				slog.Int64("account_id", accountID),
				slog.String("digest", body))
			continue
		}
		if err := b.notifier.SendTo(ctx, accountID, title, body); err != nil {
			b.logger.Warn("digest delivery failed",
				slog.Int64("account_id", accountID),
				slog.Int("settlements", len(recs)))
		}
	}
}

// Digest renders a batch of settlements into one message. The balance shown
// is the one resulting from the last settlement in the batch.
func Digest(recs []domain.SettlementRecord) (string, string) {
	var wins, losses int
	var net float64
	for _, r := range recs {
		net += r.Profit
		if r.Profit >= 0 {
			wins++
		} else {
			losses++
		}
	}

	title := fmt.Sprintf("%d trade(s) settled", len(recs))
	var sb strings.Builder
	for _, r := range recs {
		sb.WriteString(fmt.Sprintf("%s  entry %.3f exit %.3f  %+.2f\n",
			r.Reason, r.Entry, r.Exit, r.Profit))
	}
	sb.WriteString(fmt.Sprintf("Wins %d / Losses %d\n", wins, losses))
	sb.WriteString(fmt.Sprintf("Net %+.2f, balance %.2f", net, recs[len(recs)-1].Balance))
	return title, sb.String()
}
