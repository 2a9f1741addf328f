package purchasing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/retail/backend/internal/domain/shared/valueobject"
	"github.com/shopspring/decimal"
)

// PurchaseStatus represents the status of a purchase
type PurchaseStatus string

const (
	PurchaseStatusPending   PurchaseStatus = "PENDING"
	PurchaseStatusOrdered   PurchaseStatus = "ORDERED"
	PurchaseStatusShipped   PurchaseStatus = "SHIPPED"
	PurchaseStatusInTransit PurchaseStatus = "IN_TRANSIT"
	PurchaseStatusReceived  PurchaseStatus = "RECEIVED"
	PurchaseStatusCompleted PurchaseStatus = "COMPLETED"
)

// statusOrder defines the forward progression of the lifecycle
var statusOrder = map[PurchaseStatus]int{
	PurchaseStatusPending:   0,
	PurchaseStatusOrdered:   1,
	PurchaseStatusShipped:   2,
	PurchaseStatusInTransit: 3,
	PurchaseStatusReceived:  4,
	PurchaseStatusCompleted: 5,
}

// IsValid checks if the status is a valid PurchaseStatus
func (s PurchaseStatus) IsValid() bool {
	_, ok := statusOrder[s]
	return ok
}

// String returns the string representation of PurchaseStatus
func (s PurchaseStatus) String() string {
	return string(s)
}

// CanTransitionTo checks if the status can move forward to the target status.
// Backward transitions are never allowed and COMPLETED is terminal.
func (s PurchaseStatus) CanTransitionTo(target PurchaseStatus) bool {
	from, ok := statusOrder[s]
	if !ok {
		return false
	}
	to, ok := statusOrder[target]
	if !ok {
		return false
	}
	if s == PurchaseStatusCompleted {
		return false
	}
	return to > from
}

// CanEdit returns true if items and costs may still be modified freely
func (s PurchaseStatus) CanEdit() bool {
	return s == PurchaseStatusPending || s == PurchaseStatusOrdered || s == PurchaseStatusShipped
}

// CanDelete returns true if the purchase may be deleted.
// Goods in transit or received-but-not-completed are protected.
func (s PurchaseStatus) CanDelete() bool {
	return s != PurchaseStatusInTransit && s != PurchaseStatusReceived
}

// PurchaseType distinguishes local purchases from imports
type PurchaseType string

const (
	PurchaseTypeLocal  PurchaseType = "LOCAL"
	PurchaseTypeImport PurchaseType = "IMPORT"
)

// IsValid checks if the type is a valid PurchaseType
func (t PurchaseType) IsValid() bool {
	return t == PurchaseTypeLocal || t == PurchaseTypeImport
}

// CostField is an overhead cost tagged with the currency it was entered in.
// Each of the five overhead categories carries its own tag, so a purchase may
// mix foreign-denominated freight with peso-denominated taxes.
type CostField struct {
	Amount   decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"`
	Currency valueobject.Currency `gorm:"type:varchar(3);not null;default:'ARS'"`
}

// NewCostField creates a tagged overhead cost value
func NewCostField(amount decimal.Decimal, currency valueobject.Currency) CostField {
	if currency == "" {
		currency = valueobject.DefaultCurrency
	}
	return CostField{Amount: amount, Currency: currency}
}

// Money returns the cost as a Money value object
func (c CostField) Money() valueobject.Money {
	m, _ := valueobject.NewMoney(c.Amount, c.Currency)
	return m
}

// Pesos converts the cost to pesos at the given exchange rate
func (c CostField) Pesos(rate decimal.Decimal) decimal.Decimal {
	return c.Money().ToPesos(rate).Amount()
}

// IsForeign returns true if the cost is denominated in a foreign currency
// and actually carries an amount
func (c CostField) IsForeign() bool {
	return !c.Currency.IsLocal() && !c.Amount.IsZero()
}

// OverheadCosts holds the five purchase-level overhead cost categories
type OverheadCosts struct {
	Freight   CostField `gorm:"embedded;embeddedPrefix:freight_"`
	Customs   CostField `gorm:"embedded;embeddedPrefix:customs_"`
	Tax       CostField `gorm:"embedded;embeddedPrefix:tax_"`
	Insurance CostField `gorm:"embedded;embeddedPrefix:insurance_"`
	Other     CostField `gorm:"embedded;embeddedPrefix:other_"`
}

// fields returns the cost categories in a stable order
func (c OverheadCosts) fields() []CostField {
	return []CostField{c.Freight, c.Customs, c.Tax, c.Insurance, c.Other}
}

// normalized returns a copy with empty currency tags defaulted to pesos,
// so zero-value cost fields are valid
func (c OverheadCosts) normalized() OverheadCosts {
	norm := func(f CostField) CostField {
		if f.Currency == "" {
			f.Currency = valueobject.DefaultCurrency
		}
		return f
	}
	return OverheadCosts{
		Freight:   norm(c.Freight),
		Customs:   norm(c.Customs),
		Tax:       norm(c.Tax),
		Insurance: norm(c.Insurance),
		Other:     norm(c.Other),
	}
}

// TotalPesos sums the five categories after per-category conversion to pesos
func (c OverheadCosts) TotalPesos(rate decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, f := range c.fields() {
		total = total.Add(f.Pesos(rate))
	}
	return total
}

// HasForeign returns true if any non-zero cost is foreign-denominated
func (c OverheadCosts) HasForeign() bool {
	for _, f := range c.fields() {
		if f.IsForeign() {
			return true
		}
	}
	return false
}

// Validate checks amounts are non-negative and currencies are known
func (c OverheadCosts) Validate() error {
	for _, f := range c.fields() {
		if f.Amount.IsNegative() {
			return shared.NewDomainError("INVALID_COST", "Overhead cost cannot be negative")
		}
		if !f.Currency.IsValid() {
			return shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Unknown currency %q", f.Currency))
		}
	}
	return nil
}

// PurchaseItem represents a line item owned exclusively by one Purchase.
// DistributedCost, FinalUnitCost and TotalCost are recomputed every time the
// parent purchase's items or overhead costs change.
type PurchaseItem struct {
	ID               uuid.UUID        `gorm:"type:uuid;primary_key"`
	PurchaseID       uuid.UUID        `gorm:"type:uuid;not null;index"`
	ProductID        uuid.UUID        `gorm:"type:uuid;not null;index"`
	Quantity         int64            `gorm:"not null"`
	UnitPriceForeign *decimal.Decimal `gorm:"type:decimal(18,4)"`                    // Nullable, only for imports
	UnitPricePesos   decimal.Decimal  `gorm:"type:decimal(18,4);not null"`           // Unit price in pesos
	DistributedCost  decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"` // Share of overhead
	FinalUnitCost    decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"` // Landed unit cost
	TotalCost        decimal.Decimal  `gorm:"type:decimal(18,4);not null;default:0"` // FinalUnitCost * Quantity
	CreatedAt        time.Time        `gorm:"not null"`
	UpdatedAt        time.Time        `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PurchaseItem) TableName() string {
	return "purchase_items"
}

// NewPurchaseItem creates a new purchase line item
func NewPurchaseItem(purchaseID, productID uuid.UUID, quantity int64, unitPriceForeign *decimal.Decimal, unitPricePesos decimal.Decimal) (*PurchaseItem, error) {
	if productID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_PRODUCT", "Product ID cannot be empty")
	}
	if quantity <= 0 {
		return nil, shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPricePesos.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}
	if unitPriceForeign != nil && unitPriceForeign.IsNegative() {
		return nil, shared.NewDomainError("INVALID_PRICE", "Foreign unit price cannot be negative")
	}

	now := time.Now()
	return &PurchaseItem{
		ID:               uuid.New(),
		PurchaseID:       purchaseID,
		ProductID:        productID,
		Quantity:         quantity,
		UnitPriceForeign: unitPriceForeign,
		UnitPricePesos:   unitPricePesos,
		DistributedCost:  decimal.Zero,
		FinalUnitCost:    unitPricePesos,
		TotalCost:        unitPricePesos.Mul(decimal.NewFromInt(quantity)),
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// costLine returns the item as input for the distribution engine
func (i *PurchaseItem) costLine() CostLine {
	return CostLine{Quantity: i.Quantity, UnitPricePesos: i.UnitPricePesos}
}

// applyShare stores a computed cost share, rounded for persistence
func (i *PurchaseItem) applyShare(share CostShare) {
	i.DistributedCost = share.DistributedCost.Round(2)
	i.FinalUnitCost = share.FinalUnitCost.Round(2)
	i.TotalCost = share.TotalCost.Round(2)
	i.UpdatedAt = time.Now()
}

// Purchase represents a supplier purchase aggregate root: header, overhead
// costs and line items. It owns the landed-cost computation for its items.
type Purchase struct {
	shared.BaseAggregateRoot
	Number        string               `gorm:"type:varchar(50);not null;uniqueIndex"`
	SupplierID    uuid.UUID            `gorm:"type:uuid;not null;index"`
	SupplierName  string               `gorm:"type:varchar(200);not null"`
	Type          PurchaseType         `gorm:"type:varchar(10);not null;default:'LOCAL'"`
	Currency      valueobject.Currency `gorm:"type:varchar(3);not null;default:'ARS'"`
	ExchangeRate  *decimal.Decimal     `gorm:"type:decimal(18,6)"` // Required when foreign costs are present
	Costs         OverheadCosts        `gorm:"embedded"`
	SubtotalPesos decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"` // Sum of item amounts in pesos
	TotalOverhead decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"` // Overhead converted to pesos
	Total         decimal.Decimal      `gorm:"type:decimal(18,4);not null;default:0"` // SubtotalPesos + TotalOverhead
	Status        PurchaseStatus       `gorm:"type:varchar(20);not null;default:'PENDING'"`
	OrderDate     time.Time            `gorm:"not null"`
	ExpectedDate  *time.Time
	Notes         string         `gorm:"type:text"`
	Items         []PurchaseItem `gorm:"foreignKey:PurchaseID;references:ID;constraint:OnDelete:CASCADE"`
	CompletedAt   *time.Time
}

// TableName returns the table name for GORM
func (Purchase) TableName() string {
	return "purchases"
}

// NewPurchase creates a new purchase in PENDING status
func NewPurchase(number string, supplierID uuid.UUID, supplierName string, purchaseType PurchaseType, currency valueobject.Currency, exchangeRate *decimal.Decimal) (*Purchase, error) {
	if number == "" {
		return nil, shared.NewDomainError("INVALID_NUMBER", "Purchase number cannot be empty")
	}
	if supplierID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_SUPPLIER", "Supplier ID cannot be empty")
	}
	if !purchaseType.IsValid() {
		return nil, shared.NewDomainError("INVALID_TYPE", fmt.Sprintf("Unknown purchase type %q", purchaseType))
	}
	if !currency.IsValid() {
		return nil, shared.NewDomainError("INVALID_CURRENCY", fmt.Sprintf("Unknown currency %q", currency))
	}
	if exchangeRate != nil && exchangeRate.LessThanOrEqual(decimal.Zero) {
		return nil, shared.NewDomainError("INVALID_EXCHANGE_RATE", "Exchange rate must be positive")
	}

	purchase := &Purchase{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Number:            number,
		SupplierID:        supplierID,
		SupplierName:      supplierName,
		Type:              purchaseType,
		Currency:          currency,
		ExchangeRate:      exchangeRate,
		SubtotalPesos:     decimal.Zero,
		TotalOverhead:     decimal.Zero,
		Total:             decimal.Zero,
		Status:            PurchaseStatusPending,
		OrderDate:         time.Now(),
		Items:             make([]PurchaseItem, 0),
	}

	purchase.AddDomainEvent(NewPurchaseCreatedEvent(purchase))

	return purchase, nil
}

// rate returns the exchange rate, or zero when unset
func (p *Purchase) rate() decimal.Decimal {
	if p.ExchangeRate == nil {
		return decimal.Zero
	}
	return *p.ExchangeRate
}

// canModifyItems reports whether items/costs may change in the current status.
// COMPLETED is included for the figures-only cost-correction path; callers
// that must exclude it check Status.CanEdit instead.
func (p *Purchase) canModifyItems() bool {
	return p.Status.CanEdit() || p.Status == PurchaseStatusCompleted
}

// AddItem adds a new line item and recomputes all costs
func (p *Purchase) AddItem(productID uuid.UUID, quantity int64, unitPriceForeign *decimal.Decimal, unitPricePesos decimal.Decimal) (*PurchaseItem, error) {
	if !p.canModifyItems() {
		return nil, shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify items of a purchase in %s status", p.Status))
	}

	item, err := NewPurchaseItem(p.ID, productID, quantity, unitPriceForeign, unitPricePesos)
	if err != nil {
		return nil, err
	}

	p.Items = append(p.Items, *item)
	p.recalculate()
	p.touch()

	return &p.Items[len(p.Items)-1], nil
}

// UpdateItem updates quantity and prices of an existing line item by ID
func (p *Purchase) UpdateItem(itemID uuid.UUID, quantity int64, unitPriceForeign *decimal.Decimal, unitPricePesos decimal.Decimal) error {
	if !p.canModifyItems() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify items of a purchase in %s status", p.Status))
	}
	if quantity <= 0 {
		return shared.NewDomainError("INVALID_QUANTITY", "Quantity must be positive")
	}
	if unitPricePesos.IsNegative() {
		return shared.NewDomainError("INVALID_PRICE", "Unit price cannot be negative")
	}

	for idx := range p.Items {
		if p.Items[idx].ID == itemID {
			p.Items[idx].Quantity = quantity
			p.Items[idx].UnitPriceForeign = unitPriceForeign
			p.Items[idx].UnitPricePesos = unitPricePesos
			p.Items[idx].UpdatedAt = time.Now()
			p.recalculate()
			p.touch()
			return nil
		}
	}

	return shared.NewDomainError("ITEM_NOT_FOUND", "Purchase item not found")
}

// RemoveItem removes a line item. A purchase must always keep at least one item.
func (p *Purchase) RemoveItem(itemID uuid.UUID) error {
	if !p.canModifyItems() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify items of a purchase in %s status", p.Status))
	}
	if len(p.Items) <= 1 {
		return shared.NewDomainError("NO_ITEMS", "A purchase must have at least one item")
	}

	for idx, item := range p.Items {
		if item.ID == itemID {
			p.Items = append(p.Items[:idx], p.Items[idx+1:]...)
			p.recalculate()
			p.touch()
			return nil
		}
	}

	return shared.NewDomainError("ITEM_NOT_FOUND", "Purchase item not found")
}

// SetOverheadCosts replaces the five overhead cost categories and recomputes
func (p *Purchase) SetOverheadCosts(costs OverheadCosts) error {
	if !p.canModifyItems() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify costs of a purchase in %s status", p.Status))
	}
	costs = costs.normalized()
	if err := costs.Validate(); err != nil {
		return err
	}

	p.Costs = costs
	p.recalculate()
	p.touch()
	return nil
}

// SetExchangeRate updates the exchange rate and recomputes
func (p *Purchase) SetExchangeRate(rate *decimal.Decimal) error {
	if !p.canModifyItems() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify a purchase in %s status", p.Status))
	}
	if rate != nil && rate.LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("INVALID_EXCHANGE_RATE", "Exchange rate must be positive")
	}

	p.ExchangeRate = rate
	p.recalculate()
	p.touch()
	return nil
}

// SetNotes sets the free-text notes. Like the figure mutators it is rejected
// while goods are in transit or received but not yet completed.
func (p *Purchase) SetNotes(notes string) error {
	if !p.canModifyItems() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify a purchase in %s status", p.Status))
	}
	p.Notes = notes
	p.touch()
	return nil
}

// SetExpectedDate sets the expected arrival date
func (p *Purchase) SetExpectedDate(date *time.Time) error {
	if !p.canModifyItems() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot modify a purchase in %s status", p.Status))
	}
	p.ExpectedDate = date
	p.touch()
	return nil
}

// ValidateExchangeRate returns a validation error when any foreign-denominated
// cost or item price is present without a positive exchange rate. The
// conversion helper treats that combination as zero, which silently understates
// the landed cost, so it must be rejected before persistence.
func (p *Purchase) ValidateExchangeRate() error {
	needsRate := p.Costs.HasForeign()
	for _, item := range p.Items {
		if item.UnitPriceForeign != nil && !item.UnitPriceForeign.IsZero() && !p.Currency.IsLocal() {
			needsRate = true
			break
		}
	}
	if needsRate && p.rate().LessThanOrEqual(decimal.Zero) {
		return shared.NewDomainError("MISSING_EXCHANGE_RATE", "Foreign-denominated costs require a positive exchange rate")
	}
	return nil
}

// ChangeStatus moves the purchase forward in its lifecycle.
// Completion must go through Complete, which is the only path to COMPLETED.
func (p *Purchase) ChangeStatus(target PurchaseStatus) error {
	if target == PurchaseStatusCompleted {
		return shared.NewDomainError("INVALID_STATE", "Use completion to transition to COMPLETED")
	}
	if !target.IsValid() {
		return shared.NewDomainError("INVALID_STATUS", fmt.Sprintf("Unknown status %q", target))
	}
	if !p.Status.CanTransitionTo(target) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot transition from %s to %s", p.Status, target))
	}

	p.Status = target
	p.touch()
	return nil
}

// Complete transitions the purchase to COMPLETED. This is a one-time
// transition; the caller applies stock and cost side effects atomically.
func (p *Purchase) Complete() error {
	if p.Status == PurchaseStatusCompleted {
		return shared.NewDomainError("ALREADY_COMPLETED", "Purchase has already been completed")
	}
	if !p.Status.CanTransitionTo(PurchaseStatusCompleted) {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot complete a purchase in %s status", p.Status))
	}
	if len(p.Items) == 0 {
		return shared.NewDomainError("NO_ITEMS", "Cannot complete a purchase without items")
	}
	if err := p.ValidateExchangeRate(); err != nil {
		return err
	}

	now := time.Now()
	p.Status = PurchaseStatusCompleted
	p.CompletedAt = &now
	p.touch()

	p.AddDomainEvent(NewPurchaseCompletedEvent(p))

	return nil
}

// ValidateDeletable returns a state error when the purchase is protected
func (p *Purchase) ValidateDeletable() error {
	if !p.Status.CanDelete() {
		return shared.NewDomainError("INVALID_STATE", fmt.Sprintf("Cannot delete a purchase in %s status", p.Status))
	}
	return nil
}

// IsCompleted returns true if the purchase has been completed
func (p *Purchase) IsCompleted() bool {
	return p.Status == PurchaseStatusCompleted
}

// ItemCount returns the number of line items
func (p *Purchase) ItemCount() int {
	return len(p.Items)
}

// GetItem returns a line item by its ID
func (p *Purchase) GetItem(itemID uuid.UUID) *PurchaseItem {
	for idx := range p.Items {
		if p.Items[idx].ID == itemID {
			return &p.Items[idx]
		}
	}
	return nil
}

// recalculate recomputes header aggregates and redistributes overhead across
// items. Maintains the invariant Total = SubtotalPesos + TotalOverhead.
func (p *Purchase) recalculate() {
	lines := make([]CostLine, len(p.Items))
	for idx := range p.Items {
		lines[idx] = p.Items[idx].costLine()
	}

	subtotal := Subtotal(lines)
	overhead := p.Costs.TotalPesos(p.rate())
	shares := Distribute(lines, overhead)
	for idx := range p.Items {
		p.Items[idx].applyShare(shares[idx])
	}

	p.SubtotalPesos = subtotal.Round(2)
	p.TotalOverhead = overhead.Round(2)
	p.Total = subtotal.Add(overhead).Round(2)
}

// touch refreshes the modification timestamp. The version counter is
// advanced once per save by the repository, not per mutation, so a request
// that edits several fields still moves the version a single step.
func (p *Purchase) touch() {
	p.UpdatedAt = time.Now()
}
