package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	s3blob "ghostarb/internal/blob/s3"
	"ghostarb/internal/cache/redis"
	"ghostarb/internal/config"
	"ghostarb/internal/crypto"
	"ghostarb/internal/domain"
	"ghostarb/internal/metrics"
	"ghostarb/internal/notify"
	"ghostarb/internal/store/postgres"
)

// Dependencies bundles the infrastructure the engine needs: both paths'
// ledgers, the optional cache and archive layers, and the notification
// channels. It is constructed by Wire and torn down by the returned cleanup
// function.
type Dependencies struct {
	ExecutedAccounts domain.AccountStore
	ObservedAccounts domain.AccountStore
	ExecutedLedger   domain.SettlementStore
	ObservedLedger   domain.SettlementStore
	Configs          domain.EngineConfigStore

	PriceCache domain.PriceCache
	SignalBus  domain.SignalBus

	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
	Metrics  *metrics.Recorder
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{
		Metrics: metrics.NewRecorder(),
	}

	// The ledger cipher is a hard requirement; Validate has already rejected
	// an empty key.
	cipher, err := crypto.NewFieldCipher(cfg.Ledger.EncryptionKey)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: ledger cipher: %w", err)
	}

	// --- PostgreSQL ---
	pgClient, err := postgres.New(ctx, postgres.ClientConfig{
		DSN:      cfg.Postgres.DSN,
		Host:     cfg.Postgres.Host,
		Port:     cfg.Postgres.Port,
		Database: cfg.Postgres.Database,
		User:     cfg.Postgres.User,
		Password: cfg.Postgres.Password,
		SSLMode:  cfg.Postgres.SSLMode,
		MaxConns: cfg.Postgres.PoolMaxConns,
		MinConns: cfg.Postgres.PoolMinConns,
	})
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("wire: postgres: %w", err)
	}
	closers = append(closers, pgClient.Close)

	if cfg.Postgres.RunMigrations {
		if err := pgClient.RunMigrations(ctx); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
		}
	}

	pool := pgClient.Pool()
	deps.ExecutedAccounts = postgres.NewAccountStore(pool, domain.PathExecuted)
	deps.ObservedAccounts = postgres.NewAccountStore(pool, domain.PathObserved)
	deps.ExecutedLedger = postgres.NewSettlementStore(pool, cipher, domain.PathExecuted)
	deps.ObservedLedger = postgres.NewSettlementStore(pool, cipher, domain.PathObserved)
	deps.Configs = postgres.NewConfigStore(pool)

	// --- Redis (optional) ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.PriceCache = redis.NewPriceCache(redisClient)
		deps.SignalBus = redis.NewSignalBus(redisClient)
	}

	// --- S3 ledger archive (optional) ---
	if cfg.S3.Bucket != "" {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         true,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.Archiver = s3blob.NewArchiver(
			s3blob.NewWriter(s3Client),
			deps.ExecutedLedger,
			deps.ObservedLedger,
			cfg.S3.ArchiveAfter.Duration,
			cfg.S3.ArchiveEvery.Duration,
			logger,
		)
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// ensureBaseline creates the observed path's baseline account on first run so
// the shadow trader always has a ledger to write to.
func ensureBaseline(ctx context.Context, store domain.AccountStore, id int64, balance float64) error {
	_, err := store.Get(ctx, id)
	if err == nil {
		return nil
	}
	if !errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("wire: baseline lookup: %w", err)
	}
	return store.Create(ctx, domain.Account{
		ID:          id,
		Balance:     balance,
		PeakBalance: balance,
		Active:      true,
		Strategy:    domain.StrategyBalanced,
		JoinedAt:    time.Now(),
	})
}
