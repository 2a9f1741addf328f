package purchasing

import (
	"context"

	"github.com/retail/backend/internal/domain/catalog"
	"github.com/retail/backend/internal/domain/inventory"
	"github.com/retail/backend/internal/domain/purchasing"
)

// TransactionScope provides transactional access to the repositories touched
// by purchase mutations. Completion, edit and deletion each run as one unit
// of work: every repository operation inside Execute shares the same database
// transaction and is committed or rolled back atomically, so partial stock or
// cost application is never visible.
type TransactionScope interface {
	// Execute runs the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	Execute(ctx context.Context, fn func(repos TransactionalRepositories) error) error
}

// TransactionalRepositories provides access to all repositories within a
// transaction. All repositories returned share the same underlying database
// transaction.
type TransactionalRepositories interface {
	// Purchases returns the purchase repository scoped to the current transaction
	Purchases() purchasing.PurchaseRepository
	// Products returns the product repository scoped to the current transaction
	Products() catalog.ProductRepository
	// Movements returns the stock movement repository scoped to the current transaction
	Movements() inventory.StockMovementRepository
}

// NoOpTransactionScope runs the unit of work without a real transaction.
// Used in tests and wherever transactional guarantees are provided externally.
type NoOpTransactionScope struct {
	purchases purchasing.PurchaseRepository
	products  catalog.ProductRepository
	movements inventory.StockMovementRepository
}

// NewNoOpTransactionScope creates a NoOpTransactionScope over the given repositories
func NewNoOpTransactionScope(
	purchases purchasing.PurchaseRepository,
	products catalog.ProductRepository,
	movements inventory.StockMovementRepository,
) *NoOpTransactionScope {
	return &NoOpTransactionScope{
		purchases: purchases,
		products:  products,
		movements: movements,
	}
}

// Execute runs the function without a real transaction
func (s *NoOpTransactionScope) Execute(_ context.Context, fn func(repos TransactionalRepositories) error) error {
	return fn(s)
}

// Purchases returns the purchase repository
func (s *NoOpTransactionScope) Purchases() purchasing.PurchaseRepository {
	return s.purchases
}

// Products returns the product repository
func (s *NoOpTransactionScope) Products() catalog.ProductRepository {
	return s.products
}

// Movements returns the stock movement repository
func (s *NoOpTransactionScope) Movements() inventory.StockMovementRepository {
	return s.movements
}

var _ TransactionScope = (*NoOpTransactionScope)(nil)
var _ TransactionalRepositories = (*NoOpTransactionScope)(nil)
