package persistence

import "strings"

// ValidateSortOrder normalizes the sort order to ASC or DESC.
// Returns "DESC" when the input is invalid or empty.
func ValidateSortOrder(orderDir string) string {
	if strings.ToUpper(strings.TrimSpace(orderDir)) == "ASC" {
		return "ASC"
	}
	return "DESC"
}

// ValidateSortField validates the sort field against a whitelist.
// Returns the defaultField when the input is not whitelisted.
func ValidateSortField(sortField string, allowedFields map[string]bool, defaultField string) string {
	trimmed := strings.TrimSpace(sortField)
	if allowedFields[trimmed] {
		return trimmed
	}
	return defaultField
}

// PurchaseSortFields contains allowed sort fields for purchases
var PurchaseSortFields = map[string]bool{
	"created_at":   true,
	"updated_at":   true,
	"number":       true,
	"status":       true,
	"order_date":   true,
	"completed_at": true,
	"total":        true,
}

// ProductSortFields contains allowed sort fields for products
var ProductSortFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"sku":        true,
	"name":       true,
	"sale_price": true,
	"cost":       true,
	"stock":      true,
}
