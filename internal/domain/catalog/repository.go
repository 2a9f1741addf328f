package catalog

import (
	"context"

	"github.com/google/uuid"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// ProductRepository defines persistence operations for products.
//
// AdjustStock must be implemented as a single SQL-side increment (never a
// read-modify-write in application code) so that concurrent purchases and
// sales touching the same product cannot lose updates. SaveCostWithLock must
// check the aggregate version so concurrent cost recomputations conflict
// instead of silently overwriting each other.
type ProductRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Product, error)
	FindBySKU(ctx context.Context, sku string) (*Product, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) ([]Product, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Product, error)
	Count(ctx context.Context, filter shared.Filter) (int64, error)
	Save(ctx context.Context, product *Product) error

	// AdjustStock atomically applies delta to the product's stock.
	// Returns shared.ErrProductNotFound if the product no longer exists.
	AdjustStock(ctx context.Context, id uuid.UUID, delta int64) error

	// SaveCostWithLock persists the product's cost with an optimistic version
	// check. Returns a CONCURRENCY_CONFLICT domain error when the row was
	// modified by another transaction.
	SaveCostWithLock(ctx context.Context, product *Product) error

	// Exists reports whether a product with the given ID exists
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// CostUpdate pairs a product with its recomputed landed cost
type CostUpdate struct {
	ProductID uuid.UUID
	Cost      decimal.Decimal
}
