package executor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"ghostarb/internal/domain"
)

func TestBatcherQueuesPerAccount(t *testing.T) {
	b := NewBatcher(nil, time.Second, testLogger())

	b.Enqueue(domain.SettlementRecord{AccountID: 1, Profit: 1.5})
	b.Enqueue(domain.SettlementRecord{AccountID: 1, Profit: -0.3})
	b.Enqueue(domain.SettlementRecord{AccountID: 2, Profit: 0.7})

	assert.Equal(t, 2, b.Pending(1))
	assert.Equal(t, 1, b.Pending(2))
	assert.Equal(t, 0, b.Pending(9))
}

func TestBatcherFlushDrainsQueues(t *testing.T) {
	b := NewBatcher(nil, time.Second, testLogger())

	b.Enqueue(domain.SettlementRecord{AccountID: 1, Profit: 1.5, Balance: 1001.5})
	b.Flush(context.Background())

	assert.Equal(t, 0, b.Pending(1))
}

func TestDigestSummarisesBatch(t *testing.T) {
	recs := []domain.SettlementRecord{
		{Reason: domain.ExitTargetProfit, Entry: 0.45, Exit: 0.48, Profit: 2.10, Balance: 1002.10},
		{Reason: domain.ExitStopLoss, Entry: 0.52, Exit: 0.50, Profit: -1.40, Balance: 1000.70},
		{Reason: domain.ExitTimeout, Entry: 0.30, Exit: 0.31, Profit: 0.55, Balance: 1001.25},
	}

	title, body := Digest(recs)

	assert.Equal(t, "3 trade(s) settled", title)
	assert.Contains(t, body, "Wins 2 / Losses 1")
	assert.Contains(t, body, "Net +1.25, balance 1001.25")
	assert.Contains(t, body, "entry 0.450 exit 0.480  +2.10")
}

func TestDigestSingleLoss(t *testing.T) {
	recs := []domain.SettlementRecord{
		{Reason: domain.ExitStopLoss, Entry: 0.60, Exit: 0.55, Profit: -3.00, Balance: 997.00},
	}

	title, body := Digest(recs)

	assert.Equal(t, "1 trade(s) settled", title)
	assert.Contains(t, body, "Wins 0 / Losses 1")
	assert.Contains(t, body, "Net -3.00, balance 997.00")
}
