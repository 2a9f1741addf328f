package partner

import (
	"time"

	"github.com/retail/backend/internal/domain/shared"
)

// Supplier represents a goods supplier referenced by purchases
type Supplier struct {
	shared.BaseAggregateRoot
	Name    string `gorm:"type:varchar(200);not null"`
	TaxID   string `gorm:"type:varchar(50);index"`
	Email   string `gorm:"type:varchar(200)"`
	Phone   string `gorm:"type:varchar(50)"`
	Address string `gorm:"type:varchar(500)"`
	Active  bool   `gorm:"not null;default:true"`
}

// TableName returns the table name for GORM
func (Supplier) TableName() string {
	return "suppliers"
}

// NewSupplier creates a new supplier
func NewSupplier(name string) (*Supplier, error) {
	if name == "" {
		return nil, shared.NewDomainError("INVALID_NAME", "Supplier name cannot be empty")
	}
	return &Supplier{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Active:            true,
	}, nil
}

// Deactivate marks the supplier as inactive
func (s *Supplier) Deactivate() {
	s.Active = false
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
}
