package partner

import (
	"context"

	"github.com/google/uuid"
)

// SupplierRepository defines persistence operations for suppliers
type SupplierRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*Supplier, error)
	Save(ctx context.Context, supplier *Supplier) error
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}
