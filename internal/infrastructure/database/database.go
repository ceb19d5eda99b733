package database

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/config"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// New opens the configured database. Postgres is the production store;
// sqlite serves single-till installs and tests.
func New(cfg *config.DatabaseConfig, debug bool, log zerolog.Logger) (*gorm.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		db, err := NewSQLiteDB(cfg.Path, debug)
		if err != nil {
			return nil, err
		}
		log.Info().Str("path", cfg.Path).Msg("connected to sqlite database")
		return db, nil
	case "postgres", "":
		db, err := NewPostgresDB(cfg, debug)
		if err != nil {
			return nil, err
		}
		log.Info().Str("host", cfg.Host).Str("database", cfg.Name).Msg("connected to postgres database")
		return db, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewPostgresDB creates a new PostgreSQL database connection
func NewPostgresDB(cfg *config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.New(postgres.Config{
		DSN:                  cfg.DSN(),
		PreferSimpleProtocol: true, // disables implicit prepared statement usage
	}), &gorm.Config{
		Logger: gormLogger(debug),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetMaxOpenConns(100)

	return db, nil
}

// NewSQLiteDB opens a sqlite file. A single connection serializes writers,
// which is how sqlite expects to be used.
func NewSQLiteDB(path string, debug bool) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(path+"?_busy_timeout=5000&_foreign_keys=on"), &gorm.Config{
		Logger: gormLogger(debug),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	return db, nil
}

func gormLogger(debug bool) logger.Interface {
	if debug {
		return logger.Default.LogMode(logger.Info)
	}
	return logger.Default.LogMode(logger.Warn)
}

// AutoMigrate runs GORM auto-migration for all entities
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		// Catalog
		&entity.Product{},
		&entity.Customer{},

		// Checkout and settlement
		&entity.Receipt{},
		&entity.Sale{},
		&entity.Payment{},
		&entity.PaymentMethodLine{},
		&entity.PartialPayment{},
		&entity.StoreCreditGrant{},
		&entity.StoreCreditUsage{},

		// Replication state
		&entity.SyncCursor{},
		&entity.SyncFailure{},

		// System entities
		&entity.IdempotencyKey{},
	)
	if err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
