package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
)

// IdempotencyRepository defines the interface for idempotency key operations
type IdempotencyRepository interface {
	// GetByKey retrieves an idempotency key by its key string and user ID
	GetByKey(ctx context.Context, key string, userID uuid.UUID) (*entity.IdempotencyKey, error)
	// Reserve inserts ikey unless the key is already held for the user and
	// reports whether this call took it
	Reserve(ctx context.Context, ikey *entity.IdempotencyKey) (bool, error)
	// Complete stores the response of a reserved key
	Complete(ctx context.Context, ikey *entity.IdempotencyKey) error
	// Delete drops a key so the request can be retried
	Delete(ctx context.Context, id uuid.UUID) error
	// DeleteExpired removes expired idempotency keys and reports how many
	DeleteExpired(ctx context.Context) (int64, error)
}
