package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/internal/domain/enum"
	domainRepo "github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/pkg/apperror"
	"github.com/sangkips/tillsync/pkg/pagination"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type receiptRepository struct {
	db *gorm.DB
}

// NewReceiptRepository creates a new receipt repository
func NewReceiptRepository(db *gorm.DB) domainRepo.ReceiptRepository {
	return &receiptRepository{db: db}
}

func (r *receiptRepository) Create(ctx context.Context, receipt *entity.Receipt) error {
	return conn(ctx, r.db).Create(receipt).Error
}

func (r *receiptRepository) GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	var receipt entity.Receipt
	err := conn(ctx, r.db).First(&receipt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &receipt, err
}

func (r *receiptRepository) GetForUpdate(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	var receipt entity.Receipt
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&receipt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &receipt, translateError(err)
}

func (r *receiptRepository) GetWithDetails(ctx context.Context, id uuid.UUID) (*entity.Receipt, error) {
	var receipt entity.Receipt
	err := conn(ctx, r.db).
		Preload("Customer").
		Preload("Sales", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("Sales.Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Preload("Payment").
		Preload("Payment.Lines", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC") }).
		Preload("PartialPayments", func(db *gorm.DB) *gorm.DB { return db.Order("payment_date ASC") }).
		First(&receipt, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &receipt, err
}

func (r *receiptRepository) ApplySettlement(ctx context.Context, receipt *entity.Receipt, expectedVersion int64) error {
	result := conn(ctx, r.db).Model(&entity.Receipt{}).
		Where("id = ? AND version = ?", receipt.ID, expectedVersion).
		Updates(map[string]interface{}{
			"amount_paid":       receipt.AmountPaid,
			"balance_remaining": receipt.BalanceRemaining,
			"payment_status":    receipt.PaymentStatus,
			"version":           expectedVersion + 1,
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.ErrConcurrentSettlement
	}
	receipt.Version = expectedVersion + 1
	return nil
}

func (r *receiptRepository) ListOutstanding(ctx context.Context, params *pagination.Params) ([]entity.Receipt, int64, error) {
	var receipts []entity.Receipt
	var total int64

	query := conn(ctx, r.db).Model(&entity.Receipt{}).
		Where("payment_status <> ?", enum.PaymentStatusPaid)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	params.Normalize()
	err := query.Offset(params.Offset()).Limit(params.PerPage).
		Preload("Customer").
		Order("created_at DESC").
		Find(&receipts).Error

	return receipts, total, err
}

type saleRepository struct {
	db *gorm.DB
}

// NewSaleRepository creates a new sale repository
func NewSaleRepository(db *gorm.DB) domainRepo.SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) CreateBatch(ctx context.Context, sales []entity.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	return conn(ctx, r.db).Create(&sales).Error
}

func (r *saleRepository) GetByReceiptID(ctx context.Context, receiptID uuid.UUID) ([]entity.Sale, error) {
	var sales []entity.Sale
	err := conn(ctx, r.db).Where("receipt_id = ?", receiptID).Order("created_at ASC").Find(&sales).Error
	return sales, err
}

type paymentRepository struct {
	db *gorm.DB
}

// NewPaymentRepository creates a new payment repository
func NewPaymentRepository(db *gorm.DB) domainRepo.PaymentRepository {
	return &paymentRepository{db: db}
}

func (r *paymentRepository) Create(ctx context.Context, payment *entity.Payment) error {
	return conn(ctx, r.db).Create(payment).Error
}

func (r *paymentRepository) GetByReceiptID(ctx context.Context, receiptID uuid.UUID) (*entity.Payment, error) {
	var payment entity.Payment
	err := conn(ctx, r.db).First(&payment, "receipt_id = ?", receiptID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &payment, err
}

func (r *paymentRepository) UpdateTotals(ctx context.Context, payment *entity.Payment) error {
	return conn(ctx, r.db).Model(payment).Updates(map[string]interface{}{
		"status":       payment.Status,
		"total_paid":   payment.TotalPaid,
		"payment_date": payment.PaymentDate,
	}).Error
}

func (r *paymentRepository) AddLine(ctx context.Context, line *entity.PaymentMethodLine) error {
	return conn(ctx, r.db).Create(line).Error
}

type partialPaymentRepository struct {
	db *gorm.DB
}

// NewPartialPaymentRepository creates a new settlement ledger repository
func NewPartialPaymentRepository(db *gorm.DB) domainRepo.PartialPaymentRepository {
	return &partialPaymentRepository{db: db}
}

func (r *partialPaymentRepository) Create(ctx context.Context, entry *entity.PartialPayment) error {
	return conn(ctx, r.db).Create(entry).Error
}

func (r *partialPaymentRepository) SumByReceipt(ctx context.Context, receiptID uuid.UUID) (int64, error) {
	var sum int64
	err := conn(ctx, r.db).Model(&entity.PartialPayment{}).
		Where("receipt_id = ?", receiptID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&sum).Error
	return sum, err
}

func (r *partialPaymentRepository) ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]entity.PartialPayment, error) {
	var entries []entity.PartialPayment
	err := conn(ctx, r.db).
		Where("receipt_id = ?", receiptID).
		Order("payment_date ASC, created_at ASC").
		Find(&entries).Error
	return entries, err
}
