package database

import (
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/config"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSQLiteAndMigrate(t *testing.T) {
	cfg := &config.DatabaseConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "till.db")}

	db, err := New(cfg, false, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))

	for _, model := range []interface{}{
		&entity.Receipt{}, &entity.PartialPayment{}, &entity.StoreCreditGrant{},
		&entity.SyncCursor{}, &entity.SyncFailure{}, &entity.PaymentMethodLine{},
	} {
		assert.True(t, db.Migrator().HasTable(model))
	}
}

func TestNewRejectsUnknownDriver(t *testing.T) {
	_, err := New(&config.DatabaseConfig{Driver: "oracle"}, false, zerolog.Nop())
	assert.Error(t, err)
}
