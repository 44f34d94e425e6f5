package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	s3blob "github.com/quoterlabs/polyquoter/internal/blob/s3"
	"github.com/quoterlabs/polyquoter/internal/cache/redis"
	"github.com/quoterlabs/polyquoter/internal/config"
	"github.com/quoterlabs/polyquoter/internal/crypto"
	"github.com/quoterlabs/polyquoter/internal/domain"
	"github.com/quoterlabs/polyquoter/internal/notify"
	"github.com/quoterlabs/polyquoter/internal/platform/polymarket"
	"github.com/quoterlabs/polyquoter/internal/store/postgres"
)

// Dependencies bundles everything the quoting loop needs. Wire constructs
// the concrete implementations; optional subsystems stay nil when disabled
// in configuration.
type Dependencies struct {
	Signer *crypto.Signer

	Clob  *polymarket.ClobClient
	Gamma *polymarket.GammaClient
	Data  *polymarket.DataClient

	// Optional persistence (Postgres).
	Fills     domain.FillStore
	Snapshots domain.PositionStore

	// Optional shared state (Redis).
	Limiter domain.RateLimiter
	Sizes   domain.SizeCache

	// Optional fill archival (S3 + Postgres).
	Archiver *s3blob.Archiver

	Notifier *notify.Notifier
}

// fillRetention is how long fills stay queryable in Postgres before the
// archiver moves them to object storage.
const fillRetention = 30 * 24 * time.Hour

// Wire constructs all dependencies from configuration and returns them with
// a cleanup function to call on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	// --- Wallet and exchange clients ---
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("wire: wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, cfg.Polymarket.ChainID)
	if err != nil {
		return nil, nil, fmt.Errorf("wire: signer: %w", err)
	}
	deps.Signer = signer

	var auth *crypto.HMACAuth
	if cfg.Polymarket.ApiKey != "" {
		auth = &crypto.HMACAuth{
			Key:        cfg.Polymarket.ApiKey,
			Secret:     cfg.Polymarket.ApiSecret,
			Passphrase: cfg.Polymarket.ApiPassphrase,
		}
	}
	deps.Clob = polymarket.NewClobClient(
		cfg.Polymarket.ClobHost,
		signer,
		auth,
		cfg.Wallet.FunderAddress,
		cfg.Polymarket.SignatureType,
	)
	if auth == nil {
		// No stored API credentials; derive them from the wallet key.
		if err := deps.Clob.DeriveAPIKey(ctx); err != nil {
			return nil, nil, fmt.Errorf("wire: derive api key: %w", err)
		}
		logger.Info("derived CLOB API credentials from wallet key")
	}

	deps.Gamma = polymarket.NewGammaClient(cfg.Polymarket.GammaHost)
	deps.Data = polymarket.NewDataClient(cfg.Polymarket.DataHost)

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pool, err := postgres.Connect(ctx, postgres.Options{
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
		closers = append(closers, pool.Close)

		if cfg.Postgres.RunMigrations {
			if err := postgres.Migrate(ctx, pool); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		deps.Fills = postgres.NewFillStore(pool)
		deps.Snapshots = postgres.NewPositionStore(pool)
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.Connect(ctx, redis.Options{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.Limiter = redis.NewRateLimiter(redisClient)
		deps.Sizes = redis.NewSizeCache(redisClient)
	}

	// --- S3 fill archive ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		if deps.Fills != nil {
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				deps.Fills,
				fillRetention,
				logger,
			)
		} else {
			logger.Warn("s3 enabled without postgres, fill archiver disabled")
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.ServerChanKey != "" {
		senders = append(senders, notify.NewServerChanSender(cfg.Notify.ServerChanKey))
	}
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
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
