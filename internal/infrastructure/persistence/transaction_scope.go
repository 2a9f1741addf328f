package persistence

import (
	"context"
	"time"

	"gorm.io/gorm"

	apppurchasing "github.com/retail/backend/internal/application/purchasing"
	"github.com/retail/backend/internal/domain/catalog"
	"github.com/retail/backend/internal/domain/inventory"
	"github.com/retail/backend/internal/domain/purchasing"
)

// GormTransactionScope implements TransactionScope using GORM transactions.
// Purchase completion, edits and deletion run their repository operations
// through one shared transaction.
type GormTransactionScope struct {
	db      *gorm.DB
	timeout time.Duration
}

// NewGormTransactionScope creates a new GormTransactionScope
func NewGormTransactionScope(db *gorm.DB) *GormTransactionScope {
	return &GormTransactionScope{db: db}
}

// WithTimeout bounds each transaction; a cancelled context rolls it back
func (s *GormTransactionScope) WithTimeout(d time.Duration) *GormTransactionScope {
	s.timeout = d
	return s
}

// Execute runs the given function within a database transaction.
// If the function returns an error, the transaction is rolled back.
func (s *GormTransactionScope) Execute(ctx context.Context, fn func(repos apppurchasing.TransactionalRepositories) error) error {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormTransactionalRepositories{tx: tx})
	})
}

// gormTransactionalRepositories binds the repositories to one transaction
type gormTransactionalRepositories struct {
	tx *gorm.DB
}

// Purchases returns the purchase repository scoped to the current transaction
func (r *gormTransactionalRepositories) Purchases() purchasing.PurchaseRepository {
	return NewGormPurchaseRepository(r.tx)
}

// Products returns the product repository scoped to the current transaction
func (r *gormTransactionalRepositories) Products() catalog.ProductRepository {
	return NewGormProductRepository(r.tx)
}

// Movements returns the stock movement repository scoped to the current transaction
func (r *gormTransactionalRepositories) Movements() inventory.StockMovementRepository {
	return NewGormStockMovementRepository(r.tx)
}

var _ apppurchasing.TransactionScope = (*GormTransactionScope)(nil)
var _ apppurchasing.TransactionalRepositories = (*gormTransactionalRepositories)(nil)
