package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ghostarb/internal/domain"
)

// AccountStore implements domain.AccountStore against one path's account
// table.
type AccountStore struct {
	pool  *pgxpool.Pool
	table string
}

// NewAccountStore creates an AccountStore for the given path.
func NewAccountStore(pool *pgxpool.Pool, path domain.Path) *AccountStore {
	table := "accounts_executed"
	if path == domain.PathObserved {
		table = "accounts_observed"
	}
	return &AccountStore{pool: pool, table: table}
}

func (s *AccountStore) Create(ctx context.Context, a domain.Account) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (id, balance, peak_balance, active, strategy, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`, s.table)
	_, err := s.pool.Exec(ctx, query,
		a.ID, a.Balance, a.PeakBalance, a.Active, string(a.Strategy), a.JoinedAt)
	if err != nil {
		return fmt.Errorf("account create: %w", err)
	}
	return nil
}

func (s *AccountStore) Get(ctx context.Context, id int64) (domain.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, balance, peak_balance, active, strategy, joined_at
		FROM %s WHERE id = $1`, s.table)

	var a domain.Account
	var strategy string
	err := s.pool.QueryRow(ctx, query, id).Scan(
		&a.ID, &a.Balance, &a.PeakBalance, &a.Active, &strategy, &a.JoinedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("account get: %w", err)
	}
	a.Strategy = domain.StrategyMode(strategy)
	return a, nil
}

func (s *AccountStore) ListActive(ctx context.Context) ([]domain.Account, error) {
	query := fmt.Sprintf(`
		SELECT id, balance, peak_balance, active, strategy, joined_at
		FROM %s WHERE active ORDER BY id`, s.table)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("account list: %w", err)
	}
	defer rows.Close()

	var out []domain.Account
	for rows.Next() {
		var a domain.Account
		var strategy string
		if err := rows.Scan(&a.ID, &a.Balance, &a.PeakBalance, &a.Active, &strategy, &a.JoinedAt); err != nil {
			return nil, fmt.Errorf("account scan: %w", err)
		}
		a.Strategy = domain.StrategyMode(strategy)
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *AccountStore) UpdateBalance(ctx context.Context, id int64, balance, peak float64) error {
	query := fmt.Sprintf(`UPDATE %s SET balance = $2, peak_balance = $3 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, balance, peak)
	if err != nil {
		return fmt.Errorf("account update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *AccountStore) AdjustBalance(ctx context.Context, id int64, delta float64) (float64, float64, error) {
	query := fmt.Sprintf(`
		UPDATE %s
		SET balance = balance + $2,
		    peak_balance = GREATEST(peak_balance, balance + $2)
		WHERE id = $1
		RETURNING balance, peak_balance`, s.table)

	var balance, peak float64
	err := s.pool.QueryRow(ctx, query, id, delta).Scan(&balance, &peak)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, 0, domain.ErrNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("account adjust balance: %w", err)
	}
	return balance, peak, nil
}

func (s *AccountStore) SetActive(ctx context.Context, id int64, active bool) error {
	query := fmt.Sprintf(`UPDATE %s SET active = $2 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, active)
	if err != nil {
		return fmt.Errorf("account set active: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *AccountStore) SetStrategy(ctx context.Context, id int64, mode domain.StrategyMode) error {
	query := fmt.Sprintf(`UPDATE %s SET strategy = $2 WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id, string(mode))
	if err != nil {
		return fmt.Errorf("account set strategy: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *AccountStore) ResetPeak(ctx context.Context, id int64) error {
	query := fmt.Sprintf(`UPDATE %s SET peak_balance = balance WHERE id = $1`, s.table)
	tag, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("account reset peak: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}
