package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/sangkips/tillsync/internal/domain/entity"
)

// ProductRepository defines the product operations checkout needs
type ProductRepository interface {
	Create(ctx context.Context, product *entity.Product) error
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]entity.Product, error)
	// AtomicDecrementBatch decrements stock for every product or none, and
	// returns the IDs that lacked stock.
	AtomicDecrementBatch(ctx context.Context, decrements map[uuid.UUID]int) ([]uuid.UUID, error)
}

// CustomerRepository defines the customer lookups the ledger needs
type CustomerRepository interface {
	Create(ctx context.Context, customer *entity.Customer) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Customer, error)
}
