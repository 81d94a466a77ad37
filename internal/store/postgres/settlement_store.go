package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ghostarb/internal/crypto"
	"ghostarb/internal/domain"
)

// SettlementStore implements domain.SettlementStore against one path's
// settlement table. Profit and balance are sealed with the field cipher on
// the way in and opened on the way out; every other column stays queryable
// plaintext for the ML consumers.
type SettlementStore struct {
	pool   *pgxpool.Pool
	cipher *crypto.FieldCipher
	table  string
}

// NewSettlementStore creates a SettlementStore for the given path.
func NewSettlementStore(pool *pgxpool.Pool, cipher *crypto.FieldCipher, path domain.Path) *SettlementStore {
	table := "settlements_executed"
	if path == domain.PathObserved {
		table = "settlements_observed"
	}
	return &SettlementStore{pool: pool, cipher: cipher, table: table}
}

func (s *SettlementStore) Append(ctx context.Context, rec domain.SettlementRecord) error {
	profit, err := s.cipher.EncryptFloat(rec.Profit)
	if err != nil {
		return fmt.Errorf("settlement seal profit: %w", err)
	}
	balance, err := s.cipher.EncryptFloat(rec.Balance)
	if err != nil {
		return fmt.Errorf("settlement seal balance: %w", err)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (account_id, move, velocity, confidence, entry, exit,
			hold_ms, reason, profit, balance, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`, s.table)

	_, err = s.pool.Exec(ctx, query,
		rec.AccountID, rec.Move, rec.Velocity, rec.Confidence,
		rec.Entry, rec.Exit, rec.Hold.Milliseconds(), string(rec.Reason),
		profit, balance, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("settlement append: %w", err)
	}
	return nil
}

func (s *SettlementStore) ListByAccount(ctx context.Context, accountID int64, opts domain.ListOpts) ([]domain.TradeView, error) {
	limit := opts.Limit
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	query := fmt.Sprintf(`
		SELECT created_at, move, entry, exit, hold_ms, reason, profit
		FROM %s WHERE account_id = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`, s.table)

	rows, err := s.pool.Query(ctx, query, accountID, limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("settlement list: %w", err)
	}
	defer rows.Close()

	var out []domain.TradeView
	for rows.Next() {
		var v domain.TradeView
		var holdMs int64
		var reason string
		var profit []byte
		if err := rows.Scan(&v.Time, &v.Move, &v.Entry, &v.Exit, &holdMs, &reason, &profit); err != nil {
			return nil, fmt.Errorf("settlement scan: %w", err)
		}
		v.Hold = float64(holdMs) / 1000
		v.Reason = domain.ExitReason(reason)
		v.Profit = s.cipher.DecryptFloat(profit)
		out = append(out, v)
	}
	return out, rows.Err()
}

// CumulativeProfit sums every settlement's profit on this path. The sum
// happens client-side: ciphertext does not aggregate in SQL.
func (s *SettlementStore) CumulativeProfit(ctx context.Context) (float64, error) {
	query := fmt.Sprintf(`SELECT profit FROM %s`, s.table)
	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("settlement cumulative: %w", err)
	}
	defer rows.Close()

	var total float64
	for rows.Next() {
		var profit []byte
		if err := rows.Scan(&profit); err != nil {
			return 0, fmt.Errorf("settlement cumulative scan: %w", err)
		}
		total += s.cipher.DecryptFloat(profit)
	}
	return total, rows.Err()
}

func (s *SettlementStore) ListBefore(ctx context.Context, before time.Time) ([]domain.SettlementRecord, error) {
	query := fmt.Sprintf(`
		SELECT id, account_id, move, velocity, confidence, entry, exit,
			hold_ms, reason, profit, balance, created_at
		FROM %s WHERE created_at < $1 ORDER BY created_at`, s.table)

	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("settlement list before: %w", err)
	}
	defer rows.Close()

	path := domain.PathExecuted
	if s.table == "settlements_observed" {
		path = domain.PathObserved
	}

	var out []domain.SettlementRecord
	for rows.Next() {
		var rec domain.SettlementRecord
		var holdMs int64
		var reason string
		var profit, balance []byte
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.Move, &rec.Velocity,
			&rec.Confidence, &rec.Entry, &rec.Exit, &holdMs, &reason,
			&profit, &balance, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("settlement scan: %w", err)
		}
		rec.Path = path
		rec.Hold = time.Duration(holdMs) * time.Millisecond
		rec.Reason = domain.ExitReason(reason)
		rec.Profit = s.cipher.DecryptFloat(profit)
		rec.Balance = s.cipher.DecryptFloat(balance)
		out = append(out, rec)
	}
	return out, rows.Err()
}
