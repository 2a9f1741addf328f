package inventory

import (
	"context"

	"github.com/google/uuid"
	"github.com/retail/backend/internal/domain/shared"
)

// StockMovementRepository defines persistence for the movement ledger.
// The ledger is append-only: there is deliberately no update or delete.
type StockMovementRepository interface {
	Append(ctx context.Context, movement *StockMovement) error
	FindByProduct(ctx context.Context, productID uuid.UUID, filter shared.Filter) ([]StockMovement, error)
	CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error)
}
