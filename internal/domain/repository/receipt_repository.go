package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
	"github.com/sangkips/tillsync/pkg/pagination"
)

// ReceiptRepository defines the interface for receipt data operations
type ReceiptRepository interface {
	Create(ctx context.Context, receipt *entity.Receipt) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	// GetForUpdate loads the receipt holding a row lock for the rest of the
	// surrounding transaction.
	GetForUpdate(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	GetWithDetails(ctx context.Context, id uuid.UUID) (*entity.Receipt, error)
	// ApplySettlement writes the receipt's payment columns only if its
	// version is still expectedVersion, bumping the version on success.
	ApplySettlement(ctx context.Context, receipt *entity.Receipt, expectedVersion int64) error
	ListOutstanding(ctx context.Context, params *pagination.Params) ([]entity.Receipt, int64, error)
}

// SaleRepository defines the interface for sale line operations
type SaleRepository interface {
	CreateBatch(ctx context.Context, sales []entity.Sale) error
	GetByReceiptID(ctx context.Context, receiptID uuid.UUID) ([]entity.Sale, error)
}

// PaymentRepository defines the interface for the payment container and its
// method lines
type PaymentRepository interface {
	Create(ctx context.Context, payment *entity.Payment) error
	GetByReceiptID(ctx context.Context, receiptID uuid.UUID) (*entity.Payment, error)
	UpdateTotals(ctx context.Context, payment *entity.Payment) error
	AddLine(ctx context.Context, line *entity.PaymentMethodLine) error
}

// PartialPaymentRepository defines the append-only settlement ledger
type PartialPaymentRepository interface {
	Create(ctx context.Context, entry *entity.PartialPayment) error
	SumByReceipt(ctx context.Context, receiptID uuid.UUID) (int64, error)
	ListByReceipt(ctx context.Context, receiptID uuid.UUID) ([]entity.PartialPayment, error)
}
