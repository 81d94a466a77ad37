// Package config defines the top-level configuration for the ghostarb engine
// and provides validation helpers.
package config

import (
	"fmt"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by GHOSTARB_* environment variables.
type Config struct {
	Spot       SpotConfig       `toml:"spot"`
	Polymarket PolymarketConfig `toml:"polymarket"`
	Detector   DetectorConfig   `toml:"detector"`
	Shield     ShieldConfig     `toml:"shield"`
	Executor   ExecutorConfig   `toml:"executor"`
	Observer   ObserverConfig   `toml:"observer"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Redis      RedisConfig      `toml:"redis"`
	S3         S3Config         `toml:"s3"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Server     ServerConfig     `toml:"server"`
	Notify     NotifyConfig     `toml:"notify"`
	LogLevel   string           `toml:"log_level"`
}

// SpotConfig holds the reference spot feed parameters.
type SpotConfig struct {
	WsURL          string   `toml:"ws_url"`
	Symbol         string   `toml:"symbol"`
	HistorySize    int      `toml:"history_size"`
	SanityFloor    float64  `toml:"sanity_floor"`
	ReconnectDelay duration `toml:"reconnect_delay"`
}

// PolymarketConfig holds the prediction-market poller parameters.
type PolymarketConfig struct {
	ClobHost     string   `toml:"clob_host"`
	GammaHost    string   `toml:"gamma_host"`
	TokenID      string   `toml:"token_id"`
	Question     string   `toml:"question"`
	PollInterval duration `toml:"poll_interval"`
	// MoveEpsilon is the relative price change that counts as a meaningful
	// market move for staleness tracking.
	MoveEpsilon float64 `toml:"move_epsilon"`
}

// DetectorConfig holds the signal detector parameters.
type DetectorConfig struct {
	TickInterval        duration `toml:"tick_interval"`
	MinSamples          int      `toml:"min_samples"`
	BaseLookback        duration `toml:"base_lookback"`
	VelocityLookback    duration `toml:"velocity_lookback"`
	VolatilityThreshold float64  `toml:"volatility_threshold"`
	// VelocityAccelFactor reduces the effective threshold by this fraction
	// when momentum confirms the move.
	VelocityAccelFactor float64  `toml:"velocity_accel_factor"`
	RearmInterval       duration `toml:"rearm_interval"`
	HeartbeatInterval   duration `toml:"heartbeat_interval"`
}

// ShieldConfig holds the circuit-breaker parameters.
type ShieldConfig struct {
	Window      duration `toml:"window"`
	MaxSignals  int      `toml:"max_signals"`
	Cooldown    duration `toml:"cooldown"`
	FrozenPause duration `toml:"frozen_pause"`
}

// ExecutorConfig holds the position lifecycle parameters.
type ExecutorConfig struct {
	MaxConcurrent   int      `toml:"max_concurrent"`
	MaxDrawdownPct  float64  `toml:"max_drawdown_pct"`
	SlippageCapPct  float64  `toml:"slippage_cap_pct"`
	ExitTimeout     duration `toml:"exit_timeout"`
	PollInterval    duration `toml:"poll_interval"`
	SlippagePct     float64  `toml:"slippage_pct"`
	TakerFeePct     float64  `toml:"taker_fee_pct"`
	StalenessWindow duration `toml:"staleness_window"`
	// TargetScale multiplies the signal-strength ratio when scaling the
	// take-profit target. Empirically chosen; kept configurable.
	TargetScale float64 `toml:"target_scale"`
	// StopLoss is the base stop-loss floor; StopLossLowPrice applies instead
	// when the entry is at or below LowPriceCutoff, where microstructure
	// noise makes tight stops churn.
	StopLoss         float64 `toml:"stop_loss"`
	StopLossLowPrice float64 `toml:"stop_loss_low_price"`
	LowPriceCutoff   float64 `toml:"low_price_cutoff"`
	InitialBalance   float64 `toml:"initial_balance"`
}

// ObserverConfig holds the parallel-observer parameters.
type ObserverConfig struct {
	BaselineAccount  int64    `toml:"baseline_account"`
	ExecutionDelay   duration `toml:"execution_delay"`
	ShortHorizon     duration `toml:"short_horizon"`
	CanonicalHorizon duration `toml:"canonical_horizon"`
	LongHorizon      duration `toml:"long_horizon"`
	BuyPct           float64  `toml:"buy_pct"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters. Leave Addr empty to disable
// the price cache and signal bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
}

// S3Config holds the ledger archive target. Leave Bucket empty to disable
// archiving.
type S3Config struct {
	Endpoint       string   `toml:"endpoint"`
	Region         string   `toml:"region"`
	Bucket         string   `toml:"bucket"`
	AccessKey      string   `toml:"access_key"`
	SecretKey      string   `toml:"secret_key"`
	ForcePathStyle bool     `toml:"force_path_style"`
	ArchiveAfter   duration `toml:"archive_after"`
	ArchiveEvery   duration `toml:"archive_every"`
}

// LedgerConfig holds the settlement-ledger encryption settings. The key is a
// hard startup requirement: the process refuses to run without it.
type LedgerConfig struct {
	EncryptionKey string   `toml:"encryption_key"`
	FlushInterval duration `toml:"flush_interval"`
}

// ServerConfig holds HTTP API parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials. Account IDs double as
// Telegram chat IDs, matching the enrollment flow of the chat surface.
type NotifyConfig struct {
	TelegramToken string `toml:"telegram_token"`
	// TelegramChatID is the operator broadcast chat; per-account digests are
	// addressed by account ID instead.
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	// Events limits broadcast delivery; empty allows everything.
	Events []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "1.4s" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration. Tunables mirror the values the
// engine was calibrated with; operators override via TOML or environment.
func Defaults() Config {
	return Config{
		Spot: SpotConfig{
			WsURL:          "wss://stream.binance.com:9443/ws",
			Symbol:         "btcusdt",
			HistorySize:    50,
			SanityFloor:    10_000,
			ReconnectDelay: duration{5 * time.Second},
		},
		Polymarket: PolymarketConfig{
			ClobHost:     "https://clob.polymarket.com",
			GammaHost:    "https://gamma-api.polymarket.com",
			PollInterval: duration{time.Second},
			MoveEpsilon:  0.00001,
		},
		Detector: DetectorConfig{
			TickInterval:        duration{100 * time.Millisecond},
			MinSamples:          6,
			BaseLookback:        duration{1400 * time.Millisecond},
			VelocityLookback:    duration{time.Second},
			VolatilityThreshold: 0.0002,
			VelocityAccelFactor: 0.25,
			RearmInterval:       duration{time.Second},
			HeartbeatInterval:   duration{time.Minute},
		},
		Shield: ShieldConfig{
			Window:      duration{10 * time.Second},
			MaxSignals:  5,
			Cooldown:    duration{30 * time.Second},
			FrozenPause: duration{time.Second},
		},
		Executor: ExecutorConfig{
			MaxConcurrent:    5,
			MaxDrawdownPct:   0.05,
			SlippageCapPct:   0.005,
			ExitTimeout:      duration{8 * time.Second},
			PollInterval:     duration{100 * time.Millisecond},
			SlippagePct:      0.002,
			TakerFeePct:      0.001,
			StalenessWindow:  duration{10 * time.Minute},
			TargetScale:      0.75,
			StopLoss:         -0.005,
			StopLossLowPrice: -0.02,
			LowPriceCutoff:   0.1,
			InitialBalance:   1000,
		},
		Observer: ObserverConfig{
			ExecutionDelay:   duration{500 * time.Millisecond},
			ShortHorizon:     duration{3 * time.Second},
			CanonicalHorizon: duration{7 * time.Second},
			LongHorizon:      duration{15 * time.Second},
			BuyPct:           0.35,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "ghostarb",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:       "us-east-1",
			ArchiveAfter: duration{7 * 24 * time.Hour},
			ArchiveEvery: duration{24 * time.Hour},
		},
		Ledger: LedgerConfig{
			FlushInterval: duration{1500 * time.Millisecond},
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    8080,
		},
		LogLevel: "info",
	}
}

// Validate checks that the configuration is internally consistent and that
// hard requirements (encryption key, sane intervals) are met.
func (c *Config) Validate() error {
	if c.Ledger.EncryptionKey == "" {
		return fmt.Errorf("config: ledger.encryption_key is required (set GHOSTARB_LEDGER_ENCRYPTION_KEY)")
	}
	if c.Spot.WsURL == "" || c.Spot.Symbol == "" {
		return fmt.Errorf("config: spot.ws_url and spot.symbol are required")
	}
	if c.Spot.HistorySize < c.Detector.MinSamples {
		return fmt.Errorf("config: spot.history_size (%d) must be >= detector.min_samples (%d)",
			c.Spot.HistorySize, c.Detector.MinSamples)
	}
	if c.Detector.VolatilityThreshold <= 0 {
		return fmt.Errorf("config: detector.volatility_threshold must be positive")
	}
	if c.Detector.VelocityAccelFactor < 0 || c.Detector.VelocityAccelFactor >= 1 {
		return fmt.Errorf("config: detector.velocity_accel_factor must be in [0, 1)")
	}
	if c.Shield.MaxSignals <= 0 || c.Shield.Window.Duration <= 0 {
		return fmt.Errorf("config: shield.max_signals and shield.window must be positive")
	}
	if c.Executor.MaxConcurrent <= 0 {
		return fmt.Errorf("config: executor.max_concurrent must be positive")
	}
	if c.Executor.MaxDrawdownPct <= 0 || c.Executor.MaxDrawdownPct >= 1 {
		return fmt.Errorf("config: executor.max_drawdown_pct must be in (0, 1)")
	}
	if c.Executor.PollInterval.Duration <= 0 || c.Executor.ExitTimeout.Duration <= 0 {
		return fmt.Errorf("config: executor.poll_interval and executor.exit_timeout must be positive")
	}
	if c.Observer.ShortHorizon.Duration >= c.Observer.CanonicalHorizon.Duration ||
		c.Observer.CanonicalHorizon.Duration >= c.Observer.LongHorizon.Duration {
		return fmt.Errorf("config: observer horizons must be strictly increasing (short < canonical < long)")
	}
	if c.Polymarket.TokenID == "" {
		return fmt.Errorf("config: polymarket.token_id is required")
	}
	return nil
}
