package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies POLYQUOTER_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known POLYQUOTER_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "POLYQUOTER_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.FunderAddress, "POLYQUOTER_WALLET_FUNDER_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "POLYQUOTER_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "POLYQUOTER_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "POLYQUOTER_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "POLYQUOTER_POLYMARKET_GAMMA_HOST")
	setStr(&cfg.Polymarket.DataHost, "POLYQUOTER_POLYMARKET_DATA_HOST")
	setStr(&cfg.Polymarket.WsHost, "POLYQUOTER_POLYMARKET_WS_HOST")
	setInt(&cfg.Polymarket.ChainID, "POLYQUOTER_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "POLYQUOTER_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.ApiKey, "POLYQUOTER_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "POLYQUOTER_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "POLYQUOTER_POLYMARKET_API_PASSPHRASE")

	// ── Trading ──
	setFloat64(&cfg.Trading.MinSpread, "POLYQUOTER_TRADING_MIN_SPREAD")
	setFloat64(&cfg.Trading.MaxChunkValue, "POLYQUOTER_TRADING_MAX_CHUNK_VALUE")
	setFloat64(&cfg.Trading.MinOrderValue, "POLYQUOTER_TRADING_MIN_ORDER_VALUE")
	setBool(&cfg.Trading.TrackBalance, "POLYQUOTER_TRADING_TRACK_BALANCE")

	// ── Scheduler ──
	setDuration(&cfg.Scheduler.Interval, "POLYQUOTER_SCHEDULER_INTERVAL")
	setInt(&cfg.Scheduler.MaxConcurrent, "POLYQUOTER_SCHEDULER_MAX_CONCURRENT")
	setInt(&cfg.Scheduler.ReconcileEvery, "POLYQUOTER_SCHEDULER_RECONCILE_EVERY")
	setInt(&cfg.Scheduler.AlertThreshold, "POLYQUOTER_SCHEDULER_ALERT_THRESHOLD")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "POLYQUOTER_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "POLYQUOTER_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "POLYQUOTER_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "POLYQUOTER_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "POLYQUOTER_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "POLYQUOTER_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "POLYQUOTER_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "POLYQUOTER_POSTGRES_SSLMODE")
	setInt(&cfg.Postgres.PoolMaxConns, "POLYQUOTER_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "POLYQUOTER_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POLYQUOTER_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "POLYQUOTER_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "POLYQUOTER_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "POLYQUOTER_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "POLYQUOTER_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "POLYQUOTER_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "POLYQUOTER_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "POLYQUOTER_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "POLYQUOTER_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "POLYQUOTER_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "POLYQUOTER_S3_REGION")
	setStr(&cfg.S3.Bucket, "POLYQUOTER_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "POLYQUOTER_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "POLYQUOTER_S3_SECRET_KEY")
	setBool(&cfg.S3.ForcePathStyle, "POLYQUOTER_S3_FORCE_PATH_STYLE")

	// ── Notify ──
	setStr(&cfg.Notify.ServerChanKey, "POLYQUOTER_NOTIFY_SERVERCHAN_KEY")
	setStr(&cfg.Notify.TelegramToken, "POLYQUOTER_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "POLYQUOTER_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "POLYQUOTER_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "POLYQUOTER_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.MarketsPath, "POLYQUOTER_MARKETS_PATH")
	setStr(&cfg.LogLevel, "POLYQUOTER_LOG_LEVEL")
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

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}
