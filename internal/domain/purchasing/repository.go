package purchasing

import (
	"context"

	"github.com/google/uuid"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// PurchaseRepository defines persistence operations for purchases
type PurchaseRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Purchase, error)
	FindByNumber(ctx context.Context, number string) (*Purchase, error)
	FindAll(ctx context.Context, filter shared.Filter) ([]Purchase, error)
	Count(ctx context.Context, filter shared.Filter) (int64, error)

	// Save persists the purchase and its items. Implementations must replace
	// the item set (create/update/delete) so the aggregate stays authoritative.
	Save(ctx context.Context, purchase *Purchase) error

	// Delete removes the purchase; items cascade
	Delete(ctx context.Context, id uuid.UUID) error

	// GeneratePurchaseNumber generates the next sequential purchase number
	GeneratePurchaseNumber(ctx context.Context) (string, error)

	// FindLatestCompletedCost returns the final unit cost contributed to the
	// product by the most recently completed purchase, excluding the given
	// purchase. Returns (zero, false, nil) when no completed purchase remains.
	FindLatestCompletedCost(ctx context.Context, productID, excludePurchaseID uuid.UUID) (decimal.Decimal, bool, error)
}
