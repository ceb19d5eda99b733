package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
	domainRepo "github.com/sangkips/tillsync/internal/domain/repository"
	"github.com/sangkips/tillsync/pkg/apperror"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type storeCreditRepository struct {
	db *gorm.DB
}

// NewStoreCreditRepository creates a new store credit repository
func NewStoreCreditRepository(db *gorm.DB) domainRepo.StoreCreditRepository {
	return &storeCreditRepository{db: db}
}

func (r *storeCreditRepository) CreateGrant(ctx context.Context, grant *entity.StoreCreditGrant) error {
	return conn(ctx, r.db).Create(grant).Error
}

func (r *storeCreditRepository) ListByCustomer(ctx context.Context, customerID uuid.UUID) ([]entity.StoreCreditGrant, error) {
	var grants []entity.StoreCreditGrant
	err := conn(ctx, r.db).
		Where("customer_id = ?", customerID).
		Order("issued_at ASC, id ASC").
		Find(&grants).Error
	return grants, err
}

func (r *storeCreditRepository) ListConsumableForUpdate(ctx context.Context, customerID uuid.UUID, at time.Time) ([]entity.StoreCreditGrant, error) {
	var grants []entity.StoreCreditGrant
	err := conn(ctx, r.db).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("customer_id = ? AND is_active = ? AND remaining_amount > 0", customerID, true).
		Where("(expires_at IS NULL OR expires_at > ?)", at).
		Order("issued_at ASC, id ASC").
		Find(&grants).Error
	return grants, translateError(err)
}

func (r *storeCreditRepository) Deduct(ctx context.Context, grantID uuid.UUID, amount int64) error {
	result := conn(ctx, r.db).Model(&entity.StoreCreditGrant{}).
		Where("id = ? AND is_active = ? AND remaining_amount >= ?", grantID, true, amount).
		Updates(map[string]interface{}{
			"remaining_amount": gorm.Expr("remaining_amount - ?", amount),
			"is_active":        gorm.Expr("remaining_amount - ? > 0", amount),
		})
	if result.Error != nil {
		return translateError(result.Error)
	}
	if result.RowsAffected == 0 {
		return apperror.ErrConcurrentSettlement
	}
	return nil
}

func (r *storeCreditRepository) CreateUsage(ctx context.Context, usage *entity.StoreCreditUsage) error {
	return conn(ctx, r.db).Create(usage).Error
}

func (r *storeCreditRepository) ListUsagesByReceipt(ctx context.Context, receiptID uuid.UUID) ([]entity.StoreCreditUsage, error) {
	var usages []entity.StoreCreditUsage
	err := conn(ctx, r.db).Where("receipt_id = ?", receiptID).Order("used_at ASC").Find(&usages).Error
	return usages, err
}
