// Package bootstrap wires the infrastructure shared by the till binaries.
package bootstrap

import (
	"context"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/application/service"
	"github.com/sangkips/tillsync/internal/config"
	"github.com/sangkips/tillsync/internal/infrastructure/cache"
	"github.com/sangkips/tillsync/internal/infrastructure/database"
	"github.com/sangkips/tillsync/internal/infrastructure/events"
	"github.com/sangkips/tillsync/internal/infrastructure/repository"
	"github.com/sangkips/tillsync/internal/replication"
	"gorm.io/gorm"
)

// Cleanup releases what a constructor opened
type Cleanup func()

// OpenDatabase connects and migrates the till database
func OpenDatabase(cfg *config.Config, log zerolog.Logger) (*gorm.DB, error) {
	db, err := database.New(&cfg.Database, cfg.App.Debug, log)
	if err != nil {
		return nil, err
	}
	if err := database.AutoMigrate(db); err != nil {
		return nil, errors.Wrap(err, "run migrations")
	}
	return db, nil
}

// NewPublisher returns the Kafka publisher when Kafka is enabled and a no-op
// publisher otherwise.
func NewPublisher(cfg *config.Config, log zerolog.Logger) (service.EventPublisher, Cleanup) {
	if !cfg.Kafka.Enabled {
		return service.NopPublisher{}, func() {}
	}
	pub := events.NewKafkaPublisher(events.NewKafkaWriter(cfg.Kafka.Brokers, cfg.Kafka.Topic), cfg.App.Name, log)
	log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("publishing ledger events to kafka")
	return pub, func() {
		if err := pub.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close kafka writer")
		}
	}
}

// NewRunLock returns a process-local lock, backed by Redis when enabled.
func NewRunLock(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*cache.RunLock, Cleanup, error) {
	if !cfg.Redis.Enabled {
		return cache.NewRunLock(nil, cfg.Redis.LockTTL), func() {}, nil
	}
	client, err := cache.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, nil, err
	}
	log.Info().Str("addr", cfg.Redis.Addr).Msg("sync runs locked through redis")
	return cache.NewRunLock(client, cfg.Redis.LockTTL), func() {
		if err := client.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close redis client")
		}
	}, nil
}

// NewSyncJob builds the replication job from configuration. reg may be nil.
func NewSyncJob(ctx context.Context, cfg *config.Config, db *gorm.DB, reg prometheus.Registerer, log zerolog.Logger) (*replication.SyncJob, Cleanup, error) {
	sc := cfg.Sync
	if err := sc.Validate(); err != nil {
		return nil, nil, errors.Wrap(err, "sync configuration")
	}
	lock, cleanup, err := NewRunLock(ctx, cfg, log)
	if err != nil {
		return nil, nil, err
	}

	transmitter := replication.NewTransmitter(replication.TransmitterConfig{
		BaseURL:           sc.RemoteURL,
		TokenURL:          sc.TokenURL,
		ClientID:          sc.ClientID,
		ClientSecret:      sc.ClientSecret,
		MaxAttempts:       sc.MaxAttempts,
		InitialBackoff:    sc.InitialBackoff,
		MaxBackoff:        sc.MaxBackoff,
		RequestTimeout:    sc.RequestTimeout,
		RequestsPerSecond: sc.RequestsPerSecond,
	}, &http.Client{}, log)

	driver := replication.NewDriver(
		repository.NewSyncSourceRepository(db),
		transmitter,
		replication.BatchSizes{Products: sc.ProductBatchSize, Transactions: sc.TransactionBatchSize},
		sc.CursorOverlap,
	)

	var metrics *replication.Metrics
	if reg != nil {
		metrics = replication.NewMetrics(reg)
	}

	job := replication.NewSyncJob(
		sc.JobName,
		driver,
		repository.NewSyncCursorRepository(db),
		repository.NewSyncFailureRepository(db),
		lock,
		metrics,
		sc.RunTimeout,
		log,
	)
	return job, cleanup, nil
}
