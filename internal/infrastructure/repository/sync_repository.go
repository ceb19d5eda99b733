package repository

import (
	"context"
	"errors"
	"time"

	"github.com/sangkips/tillsync/internal/domain/entity"
	domainRepo "github.com/sangkips/tillsync/internal/domain/repository"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type syncSourceRepository struct {
	db *gorm.DB
}

// NewSyncSourceRepository creates the change selector used by replication
func NewSyncSourceRepository(db *gorm.DB) domainRepo.SyncSourceRepository {
	return &syncSourceRepository{db: db}
}

// changedSince filters on updated_at and orders rows deterministically.
func changedSince(since *time.Time) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if since != nil {
			db = db.Where("updated_at >= ?", *since)
		}
		return db.Order("updated_at ASC, id ASC")
	}
}

func (r *syncSourceRepository) ChangedProducts(ctx context.Context, since *time.Time) ([]entity.Product, error) {
	var products []entity.Product
	err := conn(ctx, r.db).Scopes(changedSince(since)).Find(&products).Error
	return products, err
}

func (r *syncSourceRepository) ChangedReceipts(ctx context.Context, since *time.Time) ([]entity.Receipt, error) {
	var receipts []entity.Receipt
	err := conn(ctx, r.db).Scopes(changedSince(since)).Find(&receipts).Error
	return receipts, err
}

func (r *syncSourceRepository) ChangedSales(ctx context.Context, since *time.Time) ([]entity.Sale, error) {
	var sales []entity.Sale
	err := conn(ctx, r.db).
		Preload("Product", func(db *gorm.DB) *gorm.DB { return db.Unscoped() }).
		Scopes(changedSince(since)).
		Find(&sales).Error
	return sales, err
}

func (r *syncSourceRepository) ChangedPayments(ctx context.Context, since *time.Time) ([]entity.Payment, error) {
	var payments []entity.Payment
	err := conn(ctx, r.db).
		Preload("Sales", func(db *gorm.DB) *gorm.DB { return db.Order("created_at ASC, id ASC") }).
		Scopes(changedSince(since)).
		Find(&payments).Error
	return payments, err
}

func (r *syncSourceRepository) ChangedPaymentMethodLines(ctx context.Context, since *time.Time) ([]entity.PaymentMethodLine, error) {
	var lines []entity.PaymentMethodLine
	err := conn(ctx, r.db).Scopes(changedSince(since)).Find(&lines).Error
	return lines, err
}

type syncCursorRepository struct {
	db *gorm.DB
}

// NewSyncCursorRepository creates a new cursor repository
func NewSyncCursorRepository(db *gorm.DB) domainRepo.SyncCursorRepository {
	return &syncCursorRepository{db: db}
}

func (r *syncCursorRepository) Get(ctx context.Context, jobName string) (*entity.SyncCursor, error) {
	var cursor entity.SyncCursor
	err := conn(ctx, r.db).First(&cursor, "job_name = ?", jobName).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return &cursor, err
}

func (r *syncCursorRepository) Save(ctx context.Context, cursor *entity.SyncCursor) error {
	return conn(ctx, r.db).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "job_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"last_synced_at", "last_run_id", "updated_at"}),
	}).Create(cursor).Error
}

func (r *syncCursorRepository) Delete(ctx context.Context, jobName string) error {
	return conn(ctx, r.db).Delete(&entity.SyncCursor{}, "job_name = ?", jobName).Error
}

type syncFailureRepository struct {
	db *gorm.DB
}

// NewSyncFailureRepository creates a new failure log repository
func NewSyncFailureRepository(db *gorm.DB) domainRepo.SyncFailureRepository {
	return &syncFailureRepository{db: db}
}

func (r *syncFailureRepository) CreateBatch(ctx context.Context, failures []entity.SyncFailure) error {
	if len(failures) == 0 {
		return nil
	}
	return conn(ctx, r.db).CreateInBatches(&failures, 100).Error
}

func (r *syncFailureRepository) ListRecent(ctx context.Context, jobName string, limit int) ([]entity.SyncFailure, error) {
	var failures []entity.SyncFailure
	if limit <= 0 {
		limit = 50
	}
	err := conn(ctx, r.db).
		Where("job_name = ?", jobName).
		Order("created_at DESC").
		Limit(limit).
		Find(&failures).Error
	return failures, err
}
