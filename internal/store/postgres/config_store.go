package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"ghostarb/internal/domain"
)

// ConfigStore persists the single-row runtime configuration blob.
type ConfigStore struct {
	pool *pgxpool.Pool
}

// NewConfigStore creates a ConfigStore backed by the given pool.
func NewConfigStore(pool *pgxpool.Pool) *ConfigStore {
	return &ConfigStore{pool: pool}
}

func (s *ConfigStore) Save(ctx context.Context, cfg domain.EngineConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("engine config marshal: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO engine_config (id, data, updated_at)
		VALUES (1, $1, NOW())
		ON CONFLICT (id) DO UPDATE SET data = $1, updated_at = NOW()`, data)
	if err != nil {
		return fmt.Errorf("engine config save: %w", err)
	}
	return nil
}

func (s *ConfigStore) Load(ctx context.Context) (domain.EngineConfig, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT data FROM engine_config WHERE id = 1`).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.EngineConfig{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.EngineConfig{}, fmt.Errorf("engine config load: %w", err)
	}

	var cfg domain.EngineConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return domain.EngineConfig{}, fmt.Errorf("engine config unmarshal: %w", err)
	}
	return cfg, nil
}
