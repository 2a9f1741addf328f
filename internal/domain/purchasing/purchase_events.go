package purchasing

import (
	"github.com/google/uuid"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/shopspring/decimal"
)

// Aggregate type constant
const AggregateTypePurchase = "Purchase"

// Event type constants
const (
	EventTypePurchaseCreated           = "PurchaseCreated"
	EventTypePurchaseCompleted         = "PurchaseCompleted"
	EventTypePurchaseDeleted           = "PurchaseDeleted"
	EventTypePurchaseCostsRecalculated = "PurchaseCostsRecalculated"
)

// PurchaseItemInfo carries line item cost information in events
type PurchaseItemInfo struct {
	ItemID          uuid.UUID       `json:"item_id"`
	ProductID       uuid.UUID       `json:"product_id"`
	Quantity        int64           `json:"quantity"`
	UnitPricePesos  decimal.Decimal `json:"unit_price_pesos"`
	DistributedCost decimal.Decimal `json:"distributed_cost"`
	FinalUnitCost   decimal.Decimal `json:"final_unit_cost"`
	TotalCost       decimal.Decimal `json:"total_cost"`
}

func itemInfos(p *Purchase) []PurchaseItemInfo {
	infos := make([]PurchaseItemInfo, len(p.Items))
	for i, item := range p.Items {
		infos[i] = PurchaseItemInfo{
			ItemID:          item.ID,
			ProductID:       item.ProductID,
			Quantity:        item.Quantity,
			UnitPricePesos:  item.UnitPricePesos,
			DistributedCost: item.DistributedCost,
			FinalUnitCost:   item.FinalUnitCost,
			TotalCost:       item.TotalCost,
		}
	}
	return infos
}

// PurchaseCreatedEvent is raised when a new purchase is created
type PurchaseCreatedEvent struct {
	shared.BaseDomainEvent
	PurchaseID   uuid.UUID `json:"purchase_id"`
	Number       string    `json:"number"`
	SupplierID   uuid.UUID `json:"supplier_id"`
	SupplierName string    `json:"supplier_name"`
}

// NewPurchaseCreatedEvent creates a new PurchaseCreatedEvent
func NewPurchaseCreatedEvent(p *Purchase) *PurchaseCreatedEvent {
	return &PurchaseCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseCreated, AggregateTypePurchase, p.ID),
		PurchaseID:      p.ID,
		Number:          p.Number,
		SupplierID:      p.SupplierID,
		SupplierName:    p.SupplierName,
	}
}

// PurchaseCompletedEvent is raised when a purchase transitions to COMPLETED
// and its costs are about to be applied to stock
type PurchaseCompletedEvent struct {
	shared.BaseDomainEvent
	PurchaseID    uuid.UUID          `json:"purchase_id"`
	Number        string             `json:"number"`
	SubtotalPesos decimal.Decimal    `json:"subtotal_pesos"`
	TotalOverhead decimal.Decimal    `json:"total_overhead"`
	Total         decimal.Decimal    `json:"total"`
	Items         []PurchaseItemInfo `json:"items"`
}

// NewPurchaseCompletedEvent creates a new PurchaseCompletedEvent
func NewPurchaseCompletedEvent(p *Purchase) *PurchaseCompletedEvent {
	return &PurchaseCompletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseCompleted, AggregateTypePurchase, p.ID),
		PurchaseID:      p.ID,
		Number:          p.Number,
		SubtotalPesos:   p.SubtotalPesos,
		TotalOverhead:   p.TotalOverhead,
		Total:           p.Total,
		Items:           itemInfos(p),
	}
}

// PurchaseDeletedEvent is raised when a purchase is deleted; Reversed is true
// when stock and cost side effects were rolled back
type PurchaseDeletedEvent struct {
	shared.BaseDomainEvent
	PurchaseID uuid.UUID          `json:"purchase_id"`
	Number     string             `json:"number"`
	Reversed   bool               `json:"reversed"`
	Items      []PurchaseItemInfo `json:"items"`
}

// NewPurchaseDeletedEvent creates a new PurchaseDeletedEvent
func NewPurchaseDeletedEvent(p *Purchase, reversed bool) *PurchaseDeletedEvent {
	return &PurchaseDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseDeleted, AggregateTypePurchase, p.ID),
		PurchaseID:      p.ID,
		Number:          p.Number,
		Reversed:        reversed,
		Items:           itemInfos(p),
	}
}

// PurchaseCostsRecalculatedEvent is raised when a completed purchase's cost
// figures are corrected without reapplying stock
type PurchaseCostsRecalculatedEvent struct {
	shared.BaseDomainEvent
	PurchaseID uuid.UUID          `json:"purchase_id"`
	Number     string             `json:"number"`
	Items      []PurchaseItemInfo `json:"items"`
}

// NewPurchaseCostsRecalculatedEvent creates a new PurchaseCostsRecalculatedEvent
func NewPurchaseCostsRecalculatedEvent(p *Purchase) *PurchaseCostsRecalculatedEvent {
	return &PurchaseCostsRecalculatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypePurchaseCostsRecalculated, AggregateTypePurchase, p.ID),
		PurchaseID:      p.ID,
		Number:          p.Number,
		Items:           itemInfos(p),
	}
}
