package replication_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"github.com/sangkips/tillsync/internal/infrastructure/cache"
	"github.com/sangkips/tillsync/internal/infrastructure/database"
	"github.com/sangkips/tillsync/internal/infrastructure/repository"
	"github.com/sangkips/tillsync/internal/mirror"
	"github.com/sangkips/tillsync/internal/replication"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	jobName      = "pos"
	clientID     = "till-01"
	clientSecret = "correct horse"
)

type harness struct {
	local        *gorm.DB
	remote       *gorm.DB
	job          *replication.SyncJob
	lock         *cache.RunLock
	failReceipts atomic.Bool
}

func newHarness(t *testing.T, secret string) *harness {
	t.Helper()
	dir := t.TempDir()
	log := zerolog.Nop()
	h := &harness{}

	local, err := database.NewSQLiteDB(filepath.Join(dir, "till.db"), false)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(local))
	h.local = local

	remote, err := database.NewSQLiteDB(filepath.Join(dir, "mirror.db"), false)
	require.NoError(t, err)
	require.NoError(t, mirror.Migrate(remote))
	h.remote = remote

	hash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.MinCost)
	require.NoError(t, err)
	jwt := utils.NewJWTManager("e2e-signing-key", "tillsync-mirror", time.Hour)
	router := mirror.NewRouter(mirror.NewStore(remote, log), mirror.NewTokenIssuer(clientID, string(hash), jwt, log), log)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.failReceipts.Load() && r.URL.Path == "/sync/receipts" {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		router.ServeHTTP(w, r)
	}))
	t.Cleanup(srv.Close)

	transmitter := replication.NewTransmitter(replication.TransmitterConfig{
		BaseURL:        srv.URL,
		TokenURL:       srv.URL + "/oauth/token",
		ClientID:       clientID,
		ClientSecret:   secret,
		MaxAttempts:    2,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		RequestTimeout: 5 * time.Second,
	}, srv.Client(), log)

	driver := replication.NewDriver(repository.NewSyncSourceRepository(local), transmitter,
		replication.BatchSizes{Products: 2, Transactions: 2}, 5*time.Minute)
	h.lock = cache.NewRunLock(nil, time.Minute)
	h.job = replication.NewSyncJob(jobName, driver,
		repository.NewSyncCursorRepository(local),
		repository.NewSyncFailureRepository(local),
		h.lock, nil, time.Minute, log)
	return h
}

type seeded struct {
	product *entity.Product
	receipt *entity.Receipt
	sale    *entity.Sale
	payment *entity.Payment
	line    *entity.PaymentMethodLine
}

// seedPartialSale records one product sold on a receipt with a cash deposit.
func (h *harness) seedPartialSale(t *testing.T, code string) *seeded {
	t.Helper()
	s := &seeded{}
	s.product = &entity.Product{Code: code, Brand: "Ankara", Size: "M", Color: "blue", Quantity: 4, SellingPrice: 5000}
	require.NoError(t, h.local.Create(s.product).Error)

	s.receipt = &entity.Receipt{
		ReceiptNumber:    "RCP-" + code,
		UserID:           uuid.New(),
		SubTotal:         5000,
		Total:            5000,
		AmountPaid:       2000,
		BalanceRemaining: 3000,
		PaymentStatus:    enum.PaymentStatusPartial,
	}
	require.NoError(t, h.local.Create(s.receipt).Error)

	s.payment = &entity.Payment{
		ReceiptID:   s.receipt.ID,
		Status:      enum.PaymentStatusPartial,
		TotalAmount: 5000,
		TotalPaid:   2000,
		PaymentDate: time.Now(),
	}
	require.NoError(t, h.local.Create(s.payment).Error)

	s.sale = &entity.Sale{
		ReceiptID: s.receipt.ID,
		ProductID: s.product.ID,
		PaymentID: &s.payment.ID,
		Quantity:  1,
		UnitPrice: 5000,
		LineTotal: 5000,
		SaleDate:  time.Now(),
	}
	require.NoError(t, h.local.Create(s.sale).Error)

	s.line = &entity.PaymentMethodLine{PaymentID: s.payment.ID, Method: enum.PaymentMethodCash, Amount: 2000}
	require.NoError(t, h.local.Create(s.line).Error)
	return s
}

func (h *harness) cursor(t *testing.T) *entity.SyncCursor {
	t.Helper()
	c, err := repository.NewSyncCursorRepository(h.local).Get(context.Background(), jobName)
	require.NoError(t, err)
	return c
}

func counts(s *replication.RunSummary, e replication.EntityType) replication.EntityCounts {
	if c, ok := s.Counts[e]; ok {
		return *c
	}
	return replication.EntityCounts{}
}

func TestReplicationEndToEnd(t *testing.T) {
	h := newHarness(t, clientSecret)
	s := h.seedPartialSale(t, "6001")
	ctx := context.Background()

	first, err := h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 5, first.Totals().Created)
	assert.Zero(t, first.Totals().Failed)
	assert.True(t, first.CursorAdvanced)

	var sale mirror.Sale
	require.NoError(t, h.remote.First(&sale, "natural_key = ?", s.sale.ID.String()).Error)
	assert.Equal(t, "code:6001", sale.ProductKey)
	require.NotNil(t, sale.PaymentKey)
	assert.Equal(t, s.payment.ID.String(), *sale.PaymentKey)

	var receipt mirror.Receipt
	require.NoError(t, h.remote.First(&receipt, "natural_key = ?", s.receipt.ID.String()).Error)
	assert.Equal(t, int64(3000), receipt.BalanceRemaining)
	assert.Equal(t, "partial", receipt.PaymentStatus)

	var line mirror.PaymentMethodLine
	require.NoError(t, h.remote.First(&line, "natural_key = ?", s.line.ID.String()).Error)
	assert.Equal(t, int64(2000), line.Amount)

	c := h.cursor(t)
	require.NotNil(t, c)
	assert.True(t, c.LastSyncedAt.Equal(first.StartedAt))
	assert.Equal(t, first.RunID, c.LastRunID)

	// The overlap window picks the same rows up again; the mirror sees no change.
	second, err := h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err)
	assert.Zero(t, second.Totals().Created)
	assert.Zero(t, second.Totals().Failed)
	assert.Equal(t, 5, second.Totals().Skipped)

	var n int64
	require.NoError(t, h.remote.Model(&mirror.Sale{}).Count(&n).Error)
	assert.Equal(t, int64(1), n)

	status, err := h.job.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, second.RunID, status.LastRun.RunID)
}

func TestReplicationSettlementUpdatesMirror(t *testing.T) {
	h := newHarness(t, clientSecret)
	s := h.seedPartialSale(t, "6002")
	ctx := context.Background()

	_, err := h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err)

	// Settle the balance locally.
	require.NoError(t, h.local.Model(s.receipt).Updates(map[string]any{
		"amount_paid":       int64(5000),
		"balance_remaining": int64(0),
		"payment_status":    enum.PaymentStatusPaid,
	}).Error)
	require.NoError(t, h.local.Model(s.payment).Updates(map[string]any{
		"total_paid": int64(5000),
		"status":     enum.PaymentStatusPaid,
	}).Error)
	require.NoError(t, h.local.Create(&entity.PaymentMethodLine{
		PaymentID: s.payment.ID, Method: enum.PaymentMethodMobileMoney, Amount: 3000,
	}).Error)

	summary, err := h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, counts(summary, replication.EntityReceipts).Updated)
	assert.Equal(t, 1, counts(summary, replication.EntityPayments).Updated)
	assert.Equal(t, 1, counts(summary, replication.EntityPaymentMethodLines).Created)

	var receipt mirror.Receipt
	require.NoError(t, h.remote.First(&receipt, "natural_key = ?", s.receipt.ID.String()).Error)
	assert.Equal(t, "paid", receipt.PaymentStatus)
	assert.Zero(t, receipt.BalanceRemaining)
}

func TestReplicationBatchFailureKeepsCursor(t *testing.T) {
	h := newHarness(t, clientSecret)
	s := h.seedPartialSale(t, "6003")
	ctx := context.Background()

	h.failReceipts.Store(true)
	summary, err := h.job.Run(ctx, replication.ModeIncremental)
	require.Error(t, err)
	assert.True(t, replication.IsTransient(err))
	assert.False(t, summary.CursorAdvanced)
	assert.Equal(t, 1, counts(summary, replication.EntityProducts).Created)
	assert.Nil(t, h.cursor(t), "cursor must not move past an unacknowledged batch")

	var n int64
	require.NoError(t, h.remote.Model(&mirror.Sale{}).Count(&n).Error)
	assert.Zero(t, n, "entities after the failing one are not sent")

	h.failReceipts.Store(false)
	summary, err = h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err)
	assert.Equal(t, 1, counts(summary, replication.EntityProducts).Skipped)
	assert.Equal(t, 1, counts(summary, replication.EntityReceipts).Created)
	assert.Equal(t, 1, counts(summary, replication.EntitySales).Created)

	require.NoError(t, h.remote.Model(&mirror.Sale{}).Where("natural_key = ?", s.sale.ID.String()).Count(&n).Error)
	assert.Equal(t, int64(1), n)
	assert.NotNil(t, h.cursor(t))
}

func TestReplicationAuthenticationFailure(t *testing.T) {
	h := newHarness(t, "wrong secret")
	h.seedPartialSale(t, "6004")

	_, err := h.job.Run(context.Background(), replication.ModeIncremental)
	require.Error(t, err)
	assert.True(t, errors.Is(err, replication.ErrAuthentication))
	assert.Nil(t, h.cursor(t))

	var n int64
	require.NoError(t, h.remote.Model(&mirror.Product{}).Count(&n).Error)
	assert.Zero(t, n)
}

func TestReplicationRecordsFailures(t *testing.T) {
	h := newHarness(t, clientSecret)
	h.seedPartialSale(t, "6005")
	broken := &entity.Product{Code: "6006", Brand: "  "}
	require.NoError(t, h.local.Create(broken).Error)
	ctx := context.Background()

	summary, err := h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err, "record failures do not fail the run")
	assert.True(t, summary.CursorAdvanced)
	assert.Equal(t, 1, counts(summary, replication.EntityProducts).Failed)

	failures, err := h.job.Failures(ctx, 10)
	require.NoError(t, err)
	require.Len(t, failures, 1)
	assert.Equal(t, "products", failures[0].EntityType)
	assert.Equal(t, "code:6006", failures[0].NaturalKey)
	assert.Equal(t, summary.RunID, failures[0].RunID)
}

func TestReplicationResetCursorPushesEverything(t *testing.T) {
	h := newHarness(t, clientSecret)
	h.seedPartialSale(t, "6007")
	ctx := context.Background()

	_, err := h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err)
	require.NoError(t, h.job.ResetCursor(ctx))
	assert.Nil(t, h.cursor(t))

	summary, err := h.job.Run(ctx, replication.ModeIncremental)
	require.NoError(t, err)
	assert.Nil(t, summary.Since)
	assert.Equal(t, 5, summary.Totals().Skipped)
}

func TestReplicationSkipsOverlappingRun(t *testing.T) {
	h := newHarness(t, clientSecret)
	ctx := context.Background()

	release, ok, err := h.lock.TryAcquire(ctx, "sync:"+jobName)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = h.job.Run(ctx, replication.ModeFull)
	assert.ErrorIs(t, err, apperror.ErrSyncAlreadyRunning)

	require.NoError(t, release(ctx))
	_, err = h.job.Run(ctx, replication.ModeFull)
	assert.NoError(t, err)
}
