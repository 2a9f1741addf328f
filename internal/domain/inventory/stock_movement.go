package inventory

import (
	"time"

	"github.com/google/uuid"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// MovementDirection represents the direction of a stock movement
type MovementDirection string

const (
	// MovementIn represents stock entering (purchase completion)
	MovementIn MovementDirection = "IN"
	// MovementOut represents stock leaving (sale, purchase deletion reversal)
	MovementOut MovementDirection = "OUT"
)

// String returns the string representation of MovementDirection
func (d MovementDirection) String() string {
	return string(d)
}

// IsValid returns true if the direction is valid
func (d MovementDirection) IsValid() bool {
	return d == MovementIn || d == MovementOut
}

// Movement reasons written by the purchasing flows
const (
	ReasonPurchaseCompleted = "Purchase completed"
	ReasonPurchaseReversal  = "Purchase deletion reversal"
)

// StockMovement is an append-only ledger entry recording a stock change.
// Entries are never mutated or deleted; together they form the audit trail
// from which product stock can be reconstructed.
type StockMovement struct {
	ID        uuid.UUID         `gorm:"type:uuid;primary_key"`
	ProductID uuid.UUID         `gorm:"type:uuid;not null;index"`
	Direction MovementDirection `gorm:"type:varchar(3);not null"`
	Quantity  int64             `gorm:"not null"`
	UnitCost  decimal.Decimal   `gorm:"type:decimal(18,4);not null;default:0"` // Landed unit cost at the time of the movement
	Reason    string            `gorm:"type:varchar(200);not null"`
	Reference string            `gorm:"type:varchar(100);index"` // Free text, e.g. the purchase number
	CreatedAt time.Time         `gorm:"not null;index"`
}

// TableName returns the table name for GORM
func (StockMovement) TableName() string {
	return "stock_movements"
}

// NewStockMovement creates a new ledger entry
func NewStockMovement(productID uuid.UUID, direction MovementDirection, quantity int64, unitCost decimal.Decimal, reason, reference string) (*StockMovement, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if !direction.IsValid() {
		return nil, shared.NewDomainError("INVALID_DIRECTION", "Movement direction must be IN or OUT")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Movement quantity must be positive")
	}
	if reason == "" {
		return nil, shared.NewDomainError("INVALID_REASON", "Movement reason cannot be empty")
	}

	return &StockMovement{
		ID:        uuid.New(),
		ProductID: productID,
		Direction: direction,
		Quantity:  quantity,
		UnitCost:  unitCost,
		Reason:    reason,
		Reference: reference,
		CreatedAt: time.Now(),
	}, nil
}

// SignedQuantity returns the quantity with direction applied
func (m *StockMovement) SignedQuantity() int64 {
	if m.Direction == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}
