package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/enum"
	"github.com/sangkips/tillsync/internal/infrastructure/database"
	"github.com/sangkips/tillsync/internal/infrastructure/repository"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

type testEnv struct {
	db         *gorm.DB
	checkout   *CheckoutService
	settlement *SettlementService
	credits    *StoreCreditService
	publisher  *recordingPublisher
	cashier    uuid.UUID
	clock      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.NewSQLiteDB(filepath.Join(t.TempDir(), "till.db"), false)
	require.NoError(t, err)
	require.NoError(t, database.AutoMigrate(db))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	log := zerolog.Nop()
	tx := repository.NewTransactor(db)
	receipts := repository.NewReceiptRepository(db)
	payments := repository.NewPaymentRepository(db)
	customers := repository.NewCustomerRepository(db)
	pub := &recordingPublisher{}

	env := &testEnv{
		db:        db,
		publisher: pub,
		cashier:   uuid.New(),
		clock:     time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	now := func() time.Time { return env.clock }

	env.credits = NewStoreCreditService(tx, repository.NewStoreCreditRepository(db), customers, pub, log)
	env.credits.now = now
	env.settlement = NewSettlementService(tx, receipts, payments, repository.NewPartialPaymentRepository(db), env.credits, pub, log)
	env.settlement.now = now
	env.checkout = NewCheckoutService(tx, receipts, repository.NewSaleRepository(db), payments,
		repository.NewProductRepository(db), customers, env.settlement, log)
	env.checkout.now = now
	return env
}

func (e *testEnv) advance(d time.Duration) {
	e.clock = e.clock.Add(d)
}

func (e *testEnv) product(t *testing.T, price int64, qty int) *entity.Product {
	t.Helper()
	p := &entity.Product{
		Code:         "BC-" + uuid.New().String()[:6],
		Brand:        "Ankara",
		Category:     "dress",
		Size:         "M",
		Color:        "blue",
		Location:     "lagos",
		Quantity:     qty,
		SellingPrice: price,
	}
	require.NoError(t, e.db.Create(p).Error)
	return p
}

func (e *testEnv) customer(t *testing.T) *entity.Customer {
	t.Helper()
	c := &entity.Customer{Name: "Ada Obi"}
	require.NoError(t, e.db.Create(c).Error)
	return c
}

// receipt checks out a single line priced at total.
func (e *testEnv) receipt(t *testing.T, total int64, customerID *uuid.UUID) *entity.Receipt {
	t.Helper()
	p := e.product(t, total, 10)
	r, err := e.checkout.CreateReceipt(context.Background(), &CreateReceiptInput{
		UserID:     e.cashier,
		CustomerID: customerID,
		Items:      []SaleItemInput{{ProductID: p.ID, Quantity: 1}},
	})
	require.NoError(t, err)
	return r
}

func (e *testEnv) reload(t *testing.T, id uuid.UUID) *entity.Receipt {
	t.Helper()
	var r entity.Receipt
	require.NoError(t, e.db.First(&r, "id = ?", id).Error)
	return &r
}

func (e *testEnv) ledgerSum(t *testing.T, receiptID uuid.UUID) int64 {
	t.Helper()
	var sum int64
	require.NoError(t, e.db.Model(&entity.PartialPayment{}).
		Where("receipt_id = ?", receiptID).
		Select("COALESCE(SUM(amount), 0)").Scan(&sum).Error)
	return sum
}

// requireConsistent checks the balance invariants of a receipt.
func (e *testEnv) requireConsistent(t *testing.T, id uuid.UUID) *entity.Receipt {
	t.Helper()
	r := e.reload(t, id)
	require.NoError(t, r.CheckBalance())
	require.Equal(t, r.AmountPaid, e.ledgerSum(t, id))
	return r
}

func (e *testEnv) grant(t *testing.T, customerID uuid.UUID, amount int64) *entity.StoreCreditGrant {
	t.Helper()
	g, err := e.credits.IssueGrant(context.Background(), &IssueGrantInput{
		CustomerID: customerID,
		Amount:     amount,
		IssuedBy:   e.cashier,
	})
	require.NoError(t, err)
	return g
}

func (e *testEnv) reloadGrant(t *testing.T, id uuid.UUID) *entity.StoreCreditGrant {
	t.Helper()
	var g entity.StoreCreditGrant
	require.NoError(t, e.db.First(&g, "id = ?", id).Error)
	return &g
}

func cash(amount int64) PaymentEntry {
	return PaymentEntry{Amount: amount, Method: enum.PaymentMethodCash}
}
