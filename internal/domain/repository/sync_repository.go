package repository

import (
	"context"
	"time"

	"github.com/sangkips/tillsync/internal/domain/entity"
)

// SyncSourceRepository selects the rows a replication run pushes. A nil
// since selects everything; otherwise rows with updated_at >= since.
type SyncSourceRepository interface {
	ChangedProducts(ctx context.Context, since *time.Time) ([]entity.Product, error)
	ChangedReceipts(ctx context.Context, since *time.Time) ([]entity.Receipt, error)
	// ChangedSales preloads each sale's product.
	ChangedSales(ctx context.Context, since *time.Time) ([]entity.Sale, error)
	// ChangedPayments preloads each payment's sales.
	ChangedPayments(ctx context.Context, since *time.Time) ([]entity.Payment, error)
	ChangedPaymentMethodLines(ctx context.Context, since *time.Time) ([]entity.PaymentMethodLine, error)
}

// SyncCursorRepository persists per-job cursors
type SyncCursorRepository interface {
	Get(ctx context.Context, jobName string) (*entity.SyncCursor, error)
	Save(ctx context.Context, cursor *entity.SyncCursor) error
	Delete(ctx context.Context, jobName string) error
}

// SyncFailureRepository is the per-job record failure log
type SyncFailureRepository interface {
	CreateBatch(ctx context.Context, failures []entity.SyncFailure) error
	ListRecent(ctx context.Context, jobName string, limit int) ([]entity.SyncFailure, error)
}
