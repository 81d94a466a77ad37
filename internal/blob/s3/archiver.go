package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"ghostarb/internal/domain"
)

// SettlementSource provides read access to a settlement ledger for archival.
// The Postgres stores satisfy it through their time-ranged ListBefore query.
type SettlementSource interface {
	ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error)
}

// Archiver periodically snapshots aged settlement rows from both ledger
// paths to JSONL objects in the bucket. Rows are never deleted from the
// primary store here; pruning is a separate, explicit operator step taken
// after an archive has been verified.
type Archiver struct {
	writer   *Writer
	executed SettlementSource
	observed SettlementSource

	after  time.Duration
	every  time.Duration
	logger *slog.Logger
}

// NewArchiver creates an Archiver over both ledger paths. after is the
// minimum age a row must reach before it is archived; every is the interval
// between archive sweeps.
func NewArchiver(writer *Writer, executed, observed SettlementSource, after, every time.Duration, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer:   writer,
		executed: executed,
		observed: observed,
		after:    after,
		every:    every,
		logger:   logger.With(slog.String("component", "archiver")),
	}
}

// Run sweeps both ledgers on the configured interval until ctx is cancelled.
func (a *Archiver) Run(ctx context.Context) error {
	ticker := time.NewTicker(a.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			a.sweep(ctx)
		}
	}
}

func (a *Archiver) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-a.after)
	for _, src := range []struct {
		path  domain.Path
		store SettlementSource
	}{
		{domain.PathExecuted, a.executed},
		{domain.PathObserved, a.observed},
	} {
		n, err := a.archivePath(ctx, src.path, src.store, cutoff)
		if err != nil {
			a.logger.Error("archive sweep failed",
				slog.String("path", string(src.path)),
				slog.Any("error", err))
			continue
		}
		if n > 0 {
			a.logger.Info("ledger archived",
				slog.String("path", string(src.path)),
				slog.Int("rows", n))
		}
	}
}

// archivePath uploads all of one ledger's rows older than the cutoff as a
// single JSONL object keyed by path and cutoff day, returning the row count.
func (a *Archiver) archivePath(ctx context.Context, path domain.Path, src SettlementSource, cutoff time.Time) (int, error) {
	recs, err := src.ListBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("s3blob: ledger query: %w", err)
	}
	if len(recs) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(recs)
	if err != nil {
		return 0, fmt.Errorf("s3blob: ledger marshal: %w", err)
	}

	key := archiveKey(path, cutoff)
	if err := a.writer.Put(ctx, key, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: ledger upload %s: %w", key, err)
	}
	return len(recs), nil
}

// archiveKey builds the object key for an archive snapshot, partitioned by
// ledger path and cutoff day.
//
//	archive/settlements/executed/2026-08-22.jsonl
//	archive/settlements/observed/2026-08-22.jsonl
func archiveKey(path domain.Path, cutoff time.Time) string {
	return fmt.Sprintf("archive/settlements/%s/%s.jsonl", path, cutoff.Format("2006-01-02"))
}

// archiveRow is the JSONL shape of one settlement row. Profit and balance
// travel decrypted; the bucket is assumed to be private to the operator.
type archiveRow struct {
	ID         int64   `json:"id"`
	AccountID  int64   `json:"account_id"`
	Move       float64 `json:"move"`
	Velocity   float64 `json:"velocity"`
	Confidence float64 `json:"confidence"`
	Entry      float64 `json:"entry"`
	Exit       float64 `json:"exit"`
	HoldMs     int64   `json:"hold_ms"`
	Reason     string  `json:"reason"`
	Profit     float64 `json:"profit"`
	Balance    float64 `json:"balance"`
	CreatedAt  string  `json:"created_at"`
}

// marshalJSONL serialises settlement rows as newline-delimited JSON, one
// compact object per line.
func marshalJSONL(recs []domain.SettlementRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range recs {
		row := archiveRow{
			ID:         rec.ID,
			AccountID:  rec.AccountID,
			Move:       rec.Move,
			Velocity:   rec.Velocity,
			Confidence: rec.Confidence,
			Entry:      rec.Entry,
			Exit:       rec.Exit,
			HoldMs:     rec.Hold.Milliseconds(),
			Reason:     string(rec.Reason),
			Profit:     rec.Profit,
			Balance:    rec.Balance,
			CreatedAt:  rec.CreatedAt.Format(time.RFC3339Nano),
		}
		if err := enc.Encode(row); err != nil {
			return nil, fmt.Errorf("jsonl encode row %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
