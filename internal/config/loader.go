package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies GHOSTARB_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known GHOSTARB_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	// ── Spot feed ──
	setStr(&cfg.Spot.WsURL, "GHOSTARB_SPOT_WS_URL")
	setStr(&cfg.Spot.Symbol, "GHOSTARB_SPOT_SYMBOL")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "GHOSTARB_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "GHOSTARB_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.TokenID, "GHOSTARB_POLYMARKET_TOKEN_ID")

	// ── Detector / shield ──
	setFloat64(&cfg.Detector.VolatilityThreshold, "GHOSTARB_DETECTOR_VOLATILITY_THRESHOLD")
	setFloat64(&cfg.Detector.VelocityAccelFactor, "GHOSTARB_DETECTOR_VELOCITY_ACCEL_FACTOR")
	setInt(&cfg.Shield.MaxSignals, "GHOSTARB_SHIELD_MAX_SIGNALS")
	setDuration(&cfg.Shield.Cooldown, "GHOSTARB_SHIELD_COOLDOWN")

	// ── Executor / observer ──
	setInt(&cfg.Executor.MaxConcurrent, "GHOSTARB_EXECUTOR_MAX_CONCURRENT")
	setFloat64(&cfg.Executor.MaxDrawdownPct, "GHOSTARB_EXECUTOR_MAX_DRAWDOWN_PCT")
	setFloat64(&cfg.Executor.InitialBalance, "GHOSTARB_EXECUTOR_INITIAL_BALANCE")
	setInt64(&cfg.Observer.BaselineAccount, "GHOSTARB_OBSERVER_BASELINE_ACCOUNT")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "GHOSTARB_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "GHOSTARB_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "GHOSTARB_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "GHOSTARB_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "GHOSTARB_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "GHOSTARB_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "GHOSTARB_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.RunMigrations, "GHOSTARB_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "GHOSTARB_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "GHOSTARB_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "GHOSTARB_REDIS_DB")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "GHOSTARB_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "GHOSTARB_S3_REGION")
	setStr(&cfg.S3.Bucket, "GHOSTARB_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "GHOSTARB_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "GHOSTARB_S3_SECRET_KEY")

	// ── Ledger ──
	setStr(&cfg.Ledger.EncryptionKey, "GHOSTARB_LEDGER_ENCRYPTION_KEY")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "GHOSTARB_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "GHOSTARB_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "GHOSTARB_SERVER_API_KEY")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "GHOSTARB_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "GHOSTARB_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "GHOSTARB_NOTIFY_DISCORD_WEBHOOK_URL")

	// ── Top-level ──
	setStr(&cfg.LogLevel, "GHOSTARB_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
