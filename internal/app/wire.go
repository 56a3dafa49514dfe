package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	s3blob "github.com/alanyoungcy/arbscanner/internal/blob/s3"
	"github.com/alanyoungcy/arbscanner/internal/cache/redis"
	"github.com/alanyoungcy/arbscanner/internal/config"
	"github.com/alanyoungcy/arbscanner/internal/domain"
	"github.com/alanyoungcy/arbscanner/internal/notify"
	"github.com/alanyoungcy/arbscanner/internal/server/handler"
	"github.com/alanyoungcy/arbscanner/internal/service"
	"github.com/alanyoungcy/arbscanner/internal/store/postgres"
)

// Dependencies bundles every infrastructure dependency that the application
// modes need to operate. It is constructed by Wire and torn down by the
// returned cleanup function. Optional backends are nil when disabled.
type Dependencies struct {
	// Caches and coordination. Snapshots and Bus fall back to in-process
	// implementations without Redis; RateLimiter and Locks stay nil.
	Snapshots   domain.SnapshotCache
	Bus         domain.SignalBus
	RateLimiter domain.RateLimiter
	Locks       domain.LockManager

	// Stores
	Opportunities *postgres.OpportunityStore
	AuditStore    domain.AuditStore

	// Blob storage
	BlobReader domain.BlobReader
	Archiver   domain.Archiver

	// Notifications
	Notifier *notify.Notifier

	// Scans records accepted reports and serves them to the API.
	Scans *service.ScanService

	// Health probes every enabled backend.
	Health map[string]handler.HealthCheck
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

	deps := &Dependencies{Health: make(map[string]handler.HealthCheck)}

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
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
		deps.Opportunities = postgres.NewOpportunityStore(pool)
		deps.AuditStore = postgres.NewAuditStore(pool)
		deps.Health["postgres"] = pgClient.Ping
	}

	// --- Redis ---
	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
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

		deps.Snapshots = redis.NewSnapshotCache(redisClient, cfg.Redis.SnapshotTTL.Duration)
		deps.Bus = redis.NewSignalBus(redisClient, cfg.Redis.StreamMaxLen)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.Locks = redis.NewLockManager(redisClient)
		deps.Health["redis"] = redisClient.Ping
	} else {
		logger.Info("redis disabled, using in-process snapshots and bus")
		deps.Snapshots = service.NewMemorySnapshots()
		deps.Bus = service.NewLocalBus()
	}

	// --- S3 blob storage ---
	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		deps.BlobReader = s3blob.NewReader(s3Client)
		deps.Health["s3"] = s3Client.Health
		// Validate guarantees postgres alongside s3.
		if deps.Opportunities != nil {
			deps.Archiver = s3blob.NewArchiver(
				s3blob.NewWriter(s3Client),
				deps.Opportunities,
				deps.Opportunities,
				deps.AuditStore,
			)
		}
	}

	// --- Notifications ---
	var senders []notify.Sender
	if cfg.Notify.TelegramToken != "" && cfg.Notify.TelegramChatID != "" {
		senders = append(senders, notify.NewTelegramSender(
			cfg.Notify.TelegramToken,
			cfg.Notify.TelegramChatID,
		))
	}
	if cfg.Notify.DiscordWebhookURL != "" {
		senders = append(senders, notify.NewDiscordSender(cfg.Notify.DiscordWebhookURL))
	}
	deps.Notifier = notify.NewNotifier(senders, notify.Config{
		Events:           cfg.Notify.Events,
		MinProfitPercent: decimal.NewFromFloat(cfg.Notify.MinProfitPercent),
		MaxItems:         cfg.Notify.MaxItems,
		DedupTTL:         cfg.Notify.DedupTTL.Duration,
	}, logger)

	deps.Scans = service.NewScanService(scanServiceConfig(deps, logger))

	return deps, cleanup, nil
}

// scanServiceConfig leaves disabled sinks as untyped nils so the service
// skips them.
func scanServiceConfig(deps *Dependencies, logger *slog.Logger) service.ScanServiceConfig {
	sc := service.ScanServiceConfig{
		Cache:  deps.Snapshots,
		Bus:    deps.Bus,
		Audit:  deps.AuditStore,
		Logger: logger,
	}
	if deps.Opportunities != nil {
		sc.Store = deps.Opportunities
	}
	if deps.Notifier != nil && deps.Notifier.Enabled() {
		sc.Notifier = deps.Notifier
	}
	return sc
}
