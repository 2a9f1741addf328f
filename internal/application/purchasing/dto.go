package purchasing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retail/backend/internal/domain/purchasing"
	"github.com/retail/backend/internal/domain/shared/valueobject"
)

// ItemAction identifies the kind of change carried by an ItemChange entry.
type ItemAction string

const (
	ItemActionCreate ItemAction = "create"
	ItemActionUpdate ItemAction = "update"
	ItemActionDelete ItemAction = "delete"
)

// CostInput carries a single overhead cost amount with its currency
type CostInput struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency" binding:"omitempty,oneof=ARS USD EUR BRL CNY"`
}

func (c CostInput) toDomain() purchasing.CostField {
	currency := valueobject.DefaultCurrency
	if c.Currency != "" {
		currency = valueobject.Currency(c.Currency)
	}
	return purchasing.NewCostField(c.Amount, currency)
}

// OverheadCostsInput carries the purchase-level overhead cost fields
type OverheadCostsInput struct {
	Freight   CostInput `json:"freight"`
	Customs   CostInput `json:"customs"`
	Tax       CostInput `json:"tax"`
	Insurance CostInput `json:"insurance"`
	Other     CostInput `json:"other"`
}

func (o OverheadCostsInput) toDomain() purchasing.OverheadCosts {
	return purchasing.OverheadCosts{
		Freight:   o.Freight.toDomain(),
		Customs:   o.Customs.toDomain(),
		Tax:       o.Tax.toDomain(),
		Insurance: o.Insurance.toDomain(),
		Other:     o.Other.toDomain(),
	}
}

// CreateItemInput is one purchase line in a create request
type CreateItemInput struct {
	ProductID        uuid.UUID        `json:"product_id" binding:"required"`
	Quantity         int64            `json:"quantity" binding:"required,gt=0"`
	UnitPriceForeign *decimal.Decimal `json:"unit_price_foreign,omitempty"`
	UnitPricePesos   decimal.Decimal  `json:"unit_price_pesos"`
}

// CreatePurchaseRequest is the request to create a new purchase
type CreatePurchaseRequest struct {
	SupplierID   uuid.UUID           `json:"supplier_id" binding:"required"`
	Type         string              `json:"type" binding:"required,oneof=LOCAL IMPORT"`
	Currency     string              `json:"currency" binding:"omitempty,oneof=ARS USD EUR BRL CNY"`
	ExchangeRate *decimal.Decimal    `json:"exchange_rate,omitempty"`
	Costs        OverheadCostsInput  `json:"costs"`
	Items        []CreateItemInput   `json:"items" binding:"required,min=1,dive"`
	Notes        string              `json:"notes"`
	ExpectedDate *time.Time          `json:"expected_date,omitempty"`
}

// ItemChange is one entry of the item change set in an update request.
// Action selects the variant: "create" uses the item fields, "update" uses
// ID plus the item fields, "delete" uses only ID.
type ItemChange struct {
	Action           ItemAction       `json:"action" binding:"required,oneof=create update delete"`
	ID               *uuid.UUID       `json:"id,omitempty"`
	ProductID        uuid.UUID        `json:"product_id,omitempty"`
	Quantity         int64            `json:"quantity,omitempty"`
	UnitPriceForeign *decimal.Decimal `json:"unit_price_foreign,omitempty"`
	UnitPricePesos   decimal.Decimal  `json:"unit_price_pesos,omitempty"`
}

// UpdatePurchaseRequest is the request to edit an existing purchase.
// Nil pointer fields are left unchanged; Items carries the change set.
type UpdatePurchaseRequest struct {
	ExchangeRate *decimal.Decimal    `json:"exchange_rate,omitempty"`
	Costs        *OverheadCostsInput `json:"costs,omitempty"`
	Items        []ItemChange        `json:"items,omitempty" binding:"omitempty,dive"`
	Notes        *string             `json:"notes,omitempty"`
	ExpectedDate *time.Time          `json:"expected_date,omitempty"`
}

// ChangeStatusRequest advances a purchase through its lifecycle
type ChangeStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=ORDERED SHIPPED IN_TRANSIT RECEIVED"`
}

// ListPurchasesRequest carries filtering and pagination for purchase listing
type ListPurchasesRequest struct {
	Page       int        `form:"page"`
	PageSize   int        `form:"page_size"`
	Status     string     `form:"status" binding:"omitempty,oneof=PENDING ORDERED SHIPPED IN_TRANSIT RECEIVED COMPLETED"`
	SupplierID *uuid.UUID `form:"supplier_id"`
	Search     string     `form:"search"`
}

// PurchaseItemResponse is one purchase line in a response
type PurchaseItemResponse struct {
	ID               uuid.UUID        `json:"id"`
	ProductID        uuid.UUID        `json:"product_id"`
	Quantity         int64            `json:"quantity"`
	UnitPriceForeign *decimal.Decimal `json:"unit_price_foreign,omitempty"`
	UnitPricePesos   decimal.Decimal  `json:"unit_price_pesos"`
	DistributedCost  decimal.Decimal  `json:"distributed_cost"`
	FinalUnitCost    decimal.Decimal  `json:"final_unit_cost"`
	TotalCost        decimal.Decimal  `json:"total_cost"`
}

// CostResponse is one overhead cost field in a response
type CostResponse struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// OverheadCostsResponse carries the overhead cost fields in a response
type OverheadCostsResponse struct {
	Freight   CostResponse `json:"freight"`
	Customs   CostResponse `json:"customs"`
	Tax       CostResponse `json:"tax"`
	Insurance CostResponse `json:"insurance"`
	Other     CostResponse `json:"other"`
}

// PurchaseResponse is the full representation of a purchase
type PurchaseResponse struct {
	ID            uuid.UUID              `json:"id"`
	Number        string                 `json:"number"`
	SupplierID    uuid.UUID              `json:"supplier_id"`
	SupplierName  string                 `json:"supplier_name"`
	Type          string                 `json:"type"`
	Currency      string                 `json:"currency"`
	ExchangeRate  *decimal.Decimal       `json:"exchange_rate,omitempty"`
	Costs         OverheadCostsResponse  `json:"costs"`
	SubtotalPesos decimal.Decimal        `json:"subtotal_pesos"`
	TotalOverhead decimal.Decimal        `json:"total_overhead"`
	Total         decimal.Decimal        `json:"total"`
	Status        string                 `json:"status"`
	OrderDate     time.Time              `json:"order_date"`
	ExpectedDate  *time.Time             `json:"expected_date,omitempty"`
	CompletedAt   *time.Time             `json:"completed_at,omitempty"`
	Notes         string                 `json:"notes,omitempty"`
	Items         []PurchaseItemResponse `json:"items"`
	Version       int                    `json:"version"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func toCostResponse(c purchasing.CostField) CostResponse {
	return CostResponse{Amount: c.Amount, Currency: string(c.Currency)}
}

// ToPurchaseResponse converts a purchase aggregate to its response representation
func ToPurchaseResponse(p *purchasing.Purchase) PurchaseResponse {
	items := make([]PurchaseItemResponse, len(p.Items))
	for i, item := range p.Items {
		items[i] = PurchaseItemResponse{
			ID:               item.ID,
			ProductID:        item.ProductID,
			Quantity:         item.Quantity,
			UnitPriceForeign: item.UnitPriceForeign,
			UnitPricePesos:   item.UnitPricePesos,
			DistributedCost:  item.DistributedCost,
			FinalUnitCost:    item.FinalUnitCost,
			TotalCost:        item.TotalCost,
		}
	}
	return PurchaseResponse{
		ID:           p.ID,
		Number:       p.Number,
		SupplierID:   p.SupplierID,
		SupplierName: p.SupplierName,
		Type:         string(p.Type),
		Currency:     string(p.Currency),
		ExchangeRate: p.ExchangeRate,
		Costs: OverheadCostsResponse{
			Freight:   toCostResponse(p.Costs.Freight),
			Customs:   toCostResponse(p.Costs.Customs),
			Tax:       toCostResponse(p.Costs.Tax),
			Insurance: toCostResponse(p.Costs.Insurance),
			Other:     toCostResponse(p.Costs.Other),
		},
		SubtotalPesos: p.SubtotalPesos,
		TotalOverhead: p.TotalOverhead,
		Total:         p.Total,
		Status:        string(p.Status),
		OrderDate:     p.OrderDate,
		ExpectedDate:  p.ExpectedDate,
		CompletedAt:   p.CompletedAt,
		Notes:         p.Notes,
		Items:         items,
		Version:       p.Version,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}
