package persistence

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/retail/backend/internal/domain/purchasing"
	"github.com/retail/backend/internal/domain/shared"
)

// GormPurchaseRepository implements PurchaseRepository using GORM
type GormPurchaseRepository struct {
	db *gorm.DB
}

// NewGormPurchaseRepository creates a new GormPurchaseRepository
func NewGormPurchaseRepository(db *gorm.DB) *GormPurchaseRepository {
	return &GormPurchaseRepository{db: db}
}

// FindByID finds a purchase by its ID, items included
func (r *GormPurchaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.Purchase, error) {
	var purchase purchasing.Purchase
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&purchase, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

// FindByNumber finds a purchase by its purchase number
func (r *GormPurchaseRepository) FindByNumber(ctx context.Context, number string) (*purchasing.Purchase, error) {
	var purchase purchasing.Purchase
	if err := r.db.WithContext(ctx).
		Preload("Items").
		First(&purchase, "number = ?", number).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &purchase, nil
}

// FindAll finds purchases with filtering and pagination
func (r *GormPurchaseRepository) FindAll(ctx context.Context, filter shared.Filter) ([]purchasing.Purchase, error) {
	var purchases []purchasing.Purchase
	query := r.applyFilter(r.db.WithContext(ctx).Model(&purchasing.Purchase{}), filter)

	if filter.Page > 0 && filter.PageSize > 0 {
		query = query.Offset((filter.Page - 1) * filter.PageSize).Limit(filter.PageSize)
	}

	sortField := ValidateSortField(filter.OrderBy, PurchaseSortFields, "created_at")
	query = query.Order(sortField + " " + ValidateSortOrder(filter.OrderDir))

	if err := query.Preload("Items").Find(&purchases).Error; err != nil {
		return nil, err
	}
	return purchases, nil
}

// Count counts purchases matching the filter
func (r *GormPurchaseRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	var count int64
	query := r.applyFilter(r.db.WithContext(ctx).Model(&purchasing.Purchase{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, err
	}
	return count, nil
}

// Save persists the purchase and its items. New purchases are inserted with
// their items; existing ones are updated with an optimistic version check and
// the item set is replaced to match the aggregate.
func (r *GormPurchaseRepository) Save(ctx context.Context, purchase *purchasing.Purchase) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&purchasing.Purchase{}).
			Where("id = ?", purchase.ID).
			Count(&count).Error; err != nil {
			return err
		}

		if count == 0 {
			return tx.Create(purchase).Error
		}

		currentVersion := purchase.Version
		purchase.IncrementVersion()
		purchase.UpdatedAt = time.Now()

		result := tx.Model(&purchasing.Purchase{}).
			Where("id = ? AND version = ?", purchase.ID, currentVersion).
			Updates(map[string]interface{}{
				"supplier_id":        purchase.SupplierID,
				"supplier_name":      purchase.SupplierName,
				"type":               purchase.Type,
				"currency":           purchase.Currency,
				"exchange_rate":      purchase.ExchangeRate,
				"freight_amount":     purchase.Costs.Freight.Amount,
				"freight_currency":   purchase.Costs.Freight.Currency,
				"customs_amount":     purchase.Costs.Customs.Amount,
				"customs_currency":   purchase.Costs.Customs.Currency,
				"tax_amount":         purchase.Costs.Tax.Amount,
				"tax_currency":       purchase.Costs.Tax.Currency,
				"insurance_amount":   purchase.Costs.Insurance.Amount,
				"insurance_currency": purchase.Costs.Insurance.Currency,
				"other_amount":       purchase.Costs.Other.Amount,
				"other_currency":     purchase.Costs.Other.Currency,
				"subtotal_pesos":     purchase.SubtotalPesos,
				"total_overhead":     purchase.TotalOverhead,
				"total":              purchase.Total,
				"status":             purchase.Status,
				"order_date":         purchase.OrderDate,
				"expected_date":      purchase.ExpectedDate,
				"notes":              purchase.Notes,
				"completed_at":       purchase.CompletedAt,
				"version":            purchase.Version,
				"updated_at":         purchase.UpdatedAt,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			purchase.Version = currentVersion
			return shared.ErrConcurrencyConflict
		}

		return r.replaceItems(tx, purchase)
	})
}

// replaceItems reconciles the stored item rows with the aggregate's item set
func (r *GormPurchaseRepository) replaceItems(tx *gorm.DB, purchase *purchasing.Purchase) error {
	itemIDs := make([]uuid.UUID, len(purchase.Items))
	for i, item := range purchase.Items {
		itemIDs[i] = item.ID
	}

	query := tx.Where("purchase_id = ?", purchase.ID)
	if len(itemIDs) > 0 {
		query = query.Where("id NOT IN ?", itemIDs)
	}
	if err := query.Delete(&purchasing.PurchaseItem{}).Error; err != nil {
		return err
	}

	for i := range purchase.Items {
		purchase.Items[i].PurchaseID = purchase.ID
		if err := tx.Save(&purchase.Items[i]).Error; err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the purchase; item rows cascade
func (r *GormPurchaseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result := r.db.WithContext(ctx).Delete(&purchasing.Purchase{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// GeneratePurchaseNumber generates the next sequential purchase number in the
// form PC-YYYY-NNNN, restarting the counter each year.
func (r *GormPurchaseRepository) GeneratePurchaseNumber(ctx context.Context) (string, error) {
	prefix := fmt.Sprintf("PC-%d-", time.Now().Year())

	var last purchasing.Purchase
	err := r.db.WithContext(ctx).
		Model(&purchasing.Purchase{}).
		Where("number LIKE ?", prefix+"%").
		Order("number DESC").
		First(&last).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	var nextNum int64 = 1
	if err == nil && last.Number != "" {
		parts := strings.Split(last.Number, "-")
		if len(parts) == 3 {
			var num int64
			if _, parseErr := fmt.Sscanf(parts[2], "%d", &num); parseErr == nil {
				nextNum = num + 1
			}
		}
	}

	return fmt.Sprintf("%s%04d", prefix, nextNum), nil
}

// FindLatestCompletedCost returns the final unit cost the product received
// from the most recently completed purchase other than the excluded one.
func (r *GormPurchaseRepository) FindLatestCompletedCost(ctx context.Context, productID, excludePurchaseID uuid.UUID) (decimal.Decimal, bool, error) {
	var row struct {
		FinalUnitCost decimal.Decimal
	}
	err := r.db.WithContext(ctx).
		Table("purchase_items").
		Select("purchase_items.final_unit_cost").
		Joins("JOIN purchases ON purchases.id = purchase_items.purchase_id").
		Where("purchase_items.product_id = ? AND purchases.status = ? AND purchases.id <> ?",
			productID, purchasing.PurchaseStatusCompleted, excludePurchaseID).
		Order("purchases.completed_at DESC").
		Limit(1).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return decimal.Zero, false, nil
		}
		return decimal.Zero, false, err
	}
	return row.FinalUnitCost, true, nil
}

// applyFilter applies search and field filters to the query
func (r *GormPurchaseRepository) applyFilter(query *gorm.DB, filter shared.Filter) *gorm.DB {
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("number ILIKE ? OR supplier_name ILIKE ?", pattern, pattern)
	}

	for key, value := range filter.Filters {
		switch key {
		case "supplier_id":
			query = query.Where("supplier_id = ?", value)
		case "status":
			query = query.Where("status = ?", value)
		case "type":
			query = query.Where("type = ?", value)
		case "start_date":
			if t, ok := value.(time.Time); ok {
				query = query.Where("order_date >= ?", t)
			}
		case "end_date":
			if t, ok := value.(time.Time); ok {
				query = query.Where("order_date <= ?", t)
			}
		}
	}
	return query
}

var _ purchasing.PurchaseRepository = (*GormPurchaseRepository)(nil)
