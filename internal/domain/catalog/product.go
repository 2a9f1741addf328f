package catalog

import (
	"time"

	"github.com/retail/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Product represents a sellable product aggregate root.
// Stock and Cost are shared mutable state across purchases and sales; every
// mutator must go through the repository's atomic update discipline.
type Product struct {
	shared.BaseAggregateRoot
	SKU         string          `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name        string          `gorm:"type:varchar(200);not null"`
	Description string          `gorm:"type:varchar(500)"`
	CategoryID  *string         `gorm:"type:varchar(50);index"`
	SalePrice   decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // List price in pesos
	Cost        decimal.Decimal `gorm:"type:decimal(18,4);not null;default:0"` // Last landed unit cost in pesos
	Stock       int64           `gorm:"not null;default:0"`                    // Quantity on hand
	Active      bool            `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Product) TableName() string {
	return "products"
}

// NewProduct creates a new product
func NewProduct(sku, name string, salePrice decimal.Decimal) (*Product, error) {
	if sku == "" {
		return nil, shared.NewDomainError("INVALID_SKU", "SKU cannot be empty")
	}
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Product name cannot be empty")
	}
	if salePrice.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Sale price cannot be negative")
	}

	return &Product{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		SKU:               sku,
		Name:              name,
		SalePrice:         salePrice,
		Cost:              decimal.Zero,
		Stock:             0,
		Active:            true,
	}, nil
}

// SetCost sets the running landed cost. Negative costs are rejected.
func (p *Product) SetCost(cost decimal.Decimal) error {
	if cost.IsNegative() {
		return shared.NewDomainError("INVALID_COST", "Cost cannot be negative")
	}
	p.Cost = cost
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// AddStock increases the on-hand quantity
func (p *Product) AddStock(quantity int64) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	p.Stock += quantity
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// RemoveStock decreases the on-hand quantity. Stock may go negative when a
// reversal races a sale; the movement ledger keeps the audit trail.
func (p *Product) RemoveStock(quantity int64) error {
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	p.Stock -= quantity
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
	return nil
}

// Deactivate marks the product as no longer sellable
func (p *Product) Deactivate() {
	p.Active = false
	p.UpdatedAt = time.Now()
	p.IncrementVersion()
}
