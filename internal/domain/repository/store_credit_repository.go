package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
)

// StoreCreditRepository defines the interface for credit grants and usages
type StoreCreditRepository interface {
	CreateGrant(ctx context.Context, grant *entity.StoreCreditGrant) error
	ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]entity.StoreCreditGrant, error)
	// ListConsumableForUpdate returns the customer's active, unexpired grants
	// with a positive balance, oldest IssuedAt first, locked for the
	// surrounding transaction.
	ListConsumableForUpdate(ctx context.Context, customerID uuid.UUID, at time.Time) ([]entity.StoreCreditGrant, error)
	// Deduct takes amount from a grant only if it still holds that much.
	Deduct(ctx context.Context, grantID uuid.UUID, amount int64) error
	CreateUsage(ctx context.Context, usage *entity.StoreCreditUsage) error
	ListUsagesByReceipt(ctx context.Context, receiptID uuid.UUID) ([]entity.StoreCreditUsage, error)
}
