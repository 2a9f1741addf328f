package purchasing

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/retail/backend/internal/domain/catalog"
	"github.com/retail/backend/internal/domain/inventory"
	"github.com/retail/backend/internal/domain/partner"
	"github.com/retail/backend/internal/domain/purchasing"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/retail/backend/internal/domain/shared/valueobject"
)

// MockPurchaseRepository is a mock implementation of purchasing.PurchaseRepository
type MockPurchaseRepository struct {
	mock.Mock
}

func (m *MockPurchaseRepository) FindByID(ctx context.Context, id uuid.UUID) (*purchasing.Purchase, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*purchasing.Purchase), args.Error(1)
}

func (m *MockPurchaseRepository) FindByNumber(ctx context.Context, number string) (*purchasing.Purchase, error) {
	args := m.Called(ctx, number)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*purchasing.Purchase), args.Error(1)
}

func (m *MockPurchaseRepository) FindAll(ctx context.Context, filter shared.Filter) ([]purchasing.Purchase, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]purchasing.Purchase), args.Error(1)
}

func (m *MockPurchaseRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockPurchaseRepository) Save(ctx context.Context, purchase *purchasing.Purchase) error {
	args := m.Called(ctx, purchase)
	return args.Error(0)
}

func (m *MockPurchaseRepository) Delete(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockPurchaseRepository) GeneratePurchaseNumber(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPurchaseRepository) FindLatestCompletedCost(ctx context.Context, productID, excludePurchaseID uuid.UUID) (decimal.Decimal, bool, error) {
	args := m.Called(ctx, productID, excludePurchaseID)
	return args.Get(0).(decimal.Decimal), args.Bool(1), args.Error(2)
}

// MockProductRepository is a mock implementation of catalog.ProductRepository
type MockProductRepository struct {
	mock.Mock
}

func (m *MockProductRepository) FindByID(ctx context.Context, id uuid.UUID) (*catalog.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindBySKU(ctx context.Context, sku string) (*catalog.Product, error) {
	args := m.Called(ctx, sku)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Product, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) FindAll(ctx context.Context, filter shared.Filter) ([]catalog.Product, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]catalog.Product), args.Error(1)
}

func (m *MockProductRepository) Count(ctx context.Context, filter shared.Filter) (int64, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProductRepository) Save(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) AdjustStock(ctx context.Context, id uuid.UUID, delta int64) error {
	args := m.Called(ctx, id, delta)
	return args.Error(0)
}

func (m *MockProductRepository) SaveCostWithLock(ctx context.Context, product *catalog.Product) error {
	args := m.Called(ctx, product)
	return args.Error(0)
}

func (m *MockProductRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockSupplierRepository is a mock implementation of partner.SupplierRepository
type MockSupplierRepository struct {
	mock.Mock
}

func (m *MockSupplierRepository) FindByID(ctx context.Context, id uuid.UUID) (*partner.Supplier, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*partner.Supplier), args.Error(1)
}

func (m *MockSupplierRepository) Save(ctx context.Context, supplier *partner.Supplier) error {
	args := m.Called(ctx, supplier)
	return args.Error(0)
}

func (m *MockSupplierRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

// MockMovementRepository is a mock implementation of inventory.StockMovementRepository
type MockMovementRepository struct {
	mock.Mock
}

func (m *MockMovementRepository) Append(ctx context.Context, movement *inventory.StockMovement) error {
	args := m.Called(ctx, movement)
	return args.Error(0)
}

func (m *MockMovementRepository) FindByProduct(ctx context.Context, productID uuid.UUID, filter shared.Filter) ([]inventory.StockMovement, error) {
	args := m.Called(ctx, productID, filter)
	return args.Get(0).([]inventory.StockMovement), args.Error(1)
}

func (m *MockMovementRepository) CountByProduct(ctx context.Context, productID uuid.UUID) (int64, error) {
	args := m.Called(ctx, productID)
	return args.Get(0).(int64), args.Error(1)
}

// fakeIdempotencyStore is an in-memory idempotency store for tests
type fakeIdempotencyStore struct {
	mu   sync.Mutex
	keys map[string]bool
}

func newFakeIdempotencyStore() *fakeIdempotencyStore {
	return &fakeIdempotencyStore{keys: make(map[string]bool)}
}

func (s *fakeIdempotencyStore) MarkProcessed(_ context.Context, key string, _ time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.keys[key] {
		return false, nil
	}
	s.keys[key] = true
	return true, nil
}

func (s *fakeIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.keys[key], nil
}

func (s *fakeIdempotencyStore) Close() error { return nil }

type serviceFixture struct {
	service      *PurchaseService
	purchaseRepo *MockPurchaseRepository
	productRepo  *MockProductRepository
	supplierRepo *MockSupplierRepository
	movementRepo *MockMovementRepository
	idempotency  *fakeIdempotencyStore
}

func newServiceFixture() *serviceFixture {
	purchaseRepo := new(MockPurchaseRepository)
	productRepo := new(MockProductRepository)
	supplierRepo := new(MockSupplierRepository)
	movementRepo := new(MockMovementRepository)
	idem := newFakeIdempotencyStore()
	txScope := NewNoOpTransactionScope(purchaseRepo, productRepo, movementRepo)

	service := NewPurchaseService(txScope, purchaseRepo, productRepo, supplierRepo, idem, zap.NewNop())
	return &serviceFixture{
		service:      service,
		purchaseRepo: purchaseRepo,
		productRepo:  productRepo,
		supplierRepo: supplierRepo,
		movementRepo: movementRepo,
		idempotency:  idem,
	}
}

func createTestSupplier(t *testing.T) *partner.Supplier {
	t.Helper()
	supplier, err := partner.NewSupplier("Importadora Sur")
	require.NoError(t, err)
	return supplier
}

// buildLocalPurchase builds the two-line reference purchase: 5 units at 1000
// and 3 units at 2000, with 875 of local tax overhead.
func buildLocalPurchase(t *testing.T, productA, productB uuid.UUID) *purchasing.Purchase {
	t.Helper()
	purchase, err := purchasing.NewPurchase("PC-2026-0001", uuid.New(), "Importadora Sur",
		purchasing.PurchaseTypeLocal, valueobject.DefaultCurrency, nil)
	require.NoError(t, err)

	_, err = purchase.AddItem(productA, 5, nil, decimal.NewFromInt(1000))
	require.NoError(t, err)
	_, err = purchase.AddItem(productB, 3, nil, decimal.NewFromInt(2000))
	require.NoError(t, err)

	costs := purchasing.OverheadCosts{
		Tax: purchasing.NewCostField(decimal.NewFromInt(875), valueobject.DefaultCurrency),
	}
	require.NoError(t, purchase.SetOverheadCosts(costs))
	purchase.ClearDomainEvents()
	return purchase
}

func completedPurchase(t *testing.T, productA, productB uuid.UUID) *purchasing.Purchase {
	t.Helper()
	purchase := buildLocalPurchase(t, productA, productB)
	require.NoError(t, purchase.Complete())
	purchase.ClearDomainEvents()
	return purchase
}

func domainCode(t *testing.T, err error) string {
	t.Helper()
	var domainErr *shared.DomainError
	require.True(t, errors.As(err, &domainErr), "expected domain error, got %v", err)
	return domainErr.Code
}

func TestNewPurchaseService(t *testing.T) {
	f := newServiceFixture()
	assert.NotNil(t, f.service)
}

func TestPurchaseService_Create(t *testing.T) {
	ctx := context.Background()

	t.Run("success distributes overhead across items", func(t *testing.T) {
		f := newServiceFixture()
		supplier := createTestSupplier(t)
		productA := uuid.New()
		productB := uuid.New()

		f.supplierRepo.On("FindByID", ctx, supplier.ID).Return(supplier, nil).Once()
		f.purchaseRepo.On("GeneratePurchaseNumber", ctx).Return("PC-2026-0001", nil).Once()
		f.productRepo.On("Exists", ctx, productA).Return(true, nil).Once()
		f.productRepo.On("Exists", ctx, productB).Return(true, nil).Once()
		f.purchaseRepo.On("Save", ctx, mock.AnythingOfType("*purchasing.Purchase")).Return(nil).Once()

		response, err := f.service.Create(ctx, CreatePurchaseRequest{
			SupplierID: supplier.ID,
			Type:       "LOCAL",
			Costs: OverheadCostsInput{
				Tax: CostInput{Amount: decimal.NewFromInt(875)},
			},
			Items: []CreateItemInput{
				{ProductID: productA, Quantity: 5, UnitPricePesos: decimal.NewFromInt(1000)},
				{ProductID: productB, Quantity: 3, UnitPricePesos: decimal.NewFromInt(2000)},
			},
		})

		require.NoError(t, err)
		require.NotNil(t, response)
		assert.Equal(t, "PC-2026-0001", response.Number)
		assert.Equal(t, "PENDING", response.Status)
		assert.True(t, response.SubtotalPesos.Equal(decimal.NewFromInt(11000)))
		assert.True(t, response.TotalOverhead.Equal(decimal.NewFromInt(875)))
		assert.True(t, response.Total.Equal(decimal.NewFromInt(11875)))

		require.Len(t, response.Items, 2)
		assert.True(t, response.Items[0].FinalUnitCost.Equal(decimal.RequireFromString("1079.55")),
			"got %s", response.Items[0].FinalUnitCost)
		assert.True(t, response.Items[1].FinalUnitCost.Equal(decimal.RequireFromString("2159.09")),
			"got %s", response.Items[1].FinalUnitCost)

		f.purchaseRepo.AssertExpectations(t)
		f.productRepo.AssertExpectations(t)
		f.supplierRepo.AssertExpectations(t)
	})

	t.Run("unknown supplier", func(t *testing.T) {
		f := newServiceFixture()
		supplierID := uuid.New()
		f.supplierRepo.On("FindByID", ctx, supplierID).Return(nil, shared.ErrNotFound).Once()

		response, err := f.service.Create(ctx, CreatePurchaseRequest{
			SupplierID: supplierID,
			Type:       "LOCAL",
			Items: []CreateItemInput{
				{ProductID: uuid.New(), Quantity: 1, UnitPricePesos: decimal.NewFromInt(100)},
			},
		})

		assert.Nil(t, response)
		assert.Equal(t, "SUPPLIER_NOT_FOUND", domainCode(t, err))
	})

	t.Run("unknown product", func(t *testing.T) {
		f := newServiceFixture()
		supplier := createTestSupplier(t)
		productID := uuid.New()

		f.supplierRepo.On("FindByID", ctx, supplier.ID).Return(supplier, nil).Once()
		f.purchaseRepo.On("GeneratePurchaseNumber", ctx).Return("PC-2026-0002", nil).Once()
		f.productRepo.On("Exists", ctx, productID).Return(false, nil).Once()

		response, err := f.service.Create(ctx, CreatePurchaseRequest{
			SupplierID: supplier.ID,
			Type:       "LOCAL",
			Items: []CreateItemInput{
				{ProductID: productID, Quantity: 1, UnitPricePesos: decimal.NewFromInt(100)},
			},
		})

		assert.Nil(t, response)
		assert.Equal(t, "PRODUCT_NOT_FOUND", domainCode(t, err))
	})

	t.Run("foreign costs without exchange rate rejected", func(t *testing.T) {
		f := newServiceFixture()
		supplier := createTestSupplier(t)
		productID := uuid.New()

		f.supplierRepo.On("FindByID", ctx, supplier.ID).Return(supplier, nil).Once()
		f.purchaseRepo.On("GeneratePurchaseNumber", ctx).Return("PC-2026-0003", nil).Once()
		f.productRepo.On("Exists", ctx, productID).Return(true, nil).Once()

		response, err := f.service.Create(ctx, CreatePurchaseRequest{
			SupplierID: supplier.ID,
			Type:       "IMPORT",
			Currency:   "USD",
			Costs: OverheadCostsInput{
				Freight: CostInput{Amount: decimal.NewFromInt(50), Currency: "USD"},
			},
			Items: []CreateItemInput{
				{ProductID: productID, Quantity: 1, UnitPricePesos: decimal.NewFromInt(100)},
			},
		})

		assert.Nil(t, response)
		assert.Equal(t, "MISSING_EXCHANGE_RATE", domainCode(t, err))
		f.purchaseRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})
}

func TestPurchaseService_GetByID(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	purchase := buildLocalPurchase(t, uuid.New(), uuid.New())

	t.Run("success", func(t *testing.T) {
		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()

		response, err := f.service.GetByID(ctx, purchase.ID)

		require.NoError(t, err)
		assert.Equal(t, purchase.ID, response.ID)
		assert.Len(t, response.Items, 2)
	})

	t.Run("not found", func(t *testing.T) {
		missing := uuid.New()
		f.purchaseRepo.On("FindByID", ctx, missing).Return(nil, shared.ErrNotFound).Once()

		response, err := f.service.GetByID(ctx, missing)

		assert.Nil(t, response)
		assert.True(t, errors.Is(err, shared.ErrNotFound))
	})
}

func TestPurchaseService_List(t *testing.T) {
	ctx := context.Background()
	f := newServiceFixture()
	purchase := buildLocalPurchase(t, uuid.New(), uuid.New())

	f.purchaseRepo.On("FindAll", ctx, mock.AnythingOfType("shared.Filter")).
		Return([]purchasing.Purchase{*purchase}, nil).Once()
	f.purchaseRepo.On("Count", ctx, mock.AnythingOfType("shared.Filter")).
		Return(int64(1), nil).Once()

	result, err := f.service.List(ctx, ListPurchasesRequest{Page: 1, PageSize: 10, Status: "PENDING"})

	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)
	require.Len(t, result.Items, 1)
	assert.Equal(t, purchase.Number, result.Items[0].Number)
}

func TestPurchaseService_Update(t *testing.T) {
	ctx := context.Background()

	t.Run("recomputes figures after overhead change", func(t *testing.T) {
		f := newServiceFixture()
		purchase := buildLocalPurchase(t, uuid.New(), uuid.New())

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()
		f.purchaseRepo.On("Save", ctx, purchase).Return(nil).Once()

		newCosts := &OverheadCostsInput{
			Tax:     CostInput{Amount: decimal.NewFromInt(875)},
			Freight: CostInput{Amount: decimal.NewFromInt(125)},
		}
		response, err := f.service.Update(ctx, purchase.ID, UpdatePurchaseRequest{Costs: newCosts})

		require.NoError(t, err)
		assert.True(t, response.TotalOverhead.Equal(decimal.NewFromInt(1000)))
		assert.True(t, response.Total.Equal(decimal.NewFromInt(12000)))
	})

	t.Run("item change set applies creates before deletes", func(t *testing.T) {
		f := newServiceFixture()
		productA := uuid.New()
		productB := uuid.New()
		productC := uuid.New()
		purchase := buildLocalPurchase(t, productA, productB)
		itemA := purchase.Items[0].ID
		itemB := purchase.Items[1].ID

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()
		f.productRepo.On("Exists", ctx, productC).Return(true, nil).Once()
		f.purchaseRepo.On("Save", ctx, purchase).Return(nil).Once()

		// Delete both original lines and add one new; only the ordering
		// creates -> updates -> deletes keeps the purchase non-empty
		// throughout.
		response, err := f.service.Update(ctx, purchase.ID, UpdatePurchaseRequest{
			Items: []ItemChange{
				{Action: ItemActionDelete, ID: &itemA},
				{Action: ItemActionDelete, ID: &itemB},
				{Action: ItemActionCreate, ProductID: productC, Quantity: 10, UnitPricePesos: decimal.NewFromInt(500)},
			},
		})

		require.NoError(t, err)
		require.Len(t, response.Items, 1)
		assert.Equal(t, productC, response.Items[0].ProductID)
		// Sole remaining line absorbs the full overhead
		assert.True(t, response.Items[0].DistributedCost.Equal(decimal.RequireFromString("875.00")),
			"got %s", response.Items[0].DistributedCost)
	})

	t.Run("removing the last item rejected", func(t *testing.T) {
		f := newServiceFixture()
		productA := uuid.New()
		productB := uuid.New()
		purchase := buildLocalPurchase(t, productA, productB)
		itemA := purchase.Items[0].ID
		itemB := purchase.Items[1].ID

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()

		_, err := f.service.Update(ctx, purchase.ID, UpdatePurchaseRequest{
			Items: []ItemChange{
				{Action: ItemActionDelete, ID: &itemA},
				{Action: ItemActionDelete, ID: &itemB},
			},
		})

		assert.Equal(t, "NO_ITEMS", domainCode(t, err))
		f.purchaseRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("in-transit purchase cannot be edited", func(t *testing.T) {
		f := newServiceFixture()
		purchase := buildLocalPurchase(t, uuid.New(), uuid.New())
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusOrdered))
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusShipped))
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusInTransit))

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()

		_, err := f.service.Update(ctx, purchase.ID, UpdatePurchaseRequest{
			Costs: &OverheadCostsInput{Tax: CostInput{Amount: decimal.NewFromInt(10)}},
		})

		assert.Equal(t, "INVALID_STATE", domainCode(t, err))
	})

	t.Run("notes-only edit of received purchase rejected", func(t *testing.T) {
		f := newServiceFixture()
		purchase := buildLocalPurchase(t, uuid.New(), uuid.New())
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusOrdered))
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusShipped))
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusInTransit))
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusReceived))

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()

		notes := "llegó con demora"
		_, err := f.service.Update(ctx, purchase.ID, UpdatePurchaseRequest{Notes: &notes})

		assert.Equal(t, "INVALID_STATE", domainCode(t, err))
		f.purchaseRepo.AssertNotCalled(t, "Save", mock.Anything, mock.Anything)
	})

	t.Run("completed purchase edit corrects figures only", func(t *testing.T) {
		f := newServiceFixture()
		purchase := completedPurchase(t, uuid.New(), uuid.New())

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()
		f.purchaseRepo.On("Save", ctx, purchase).Return(nil).Once()

		newCosts := &OverheadCostsInput{Tax: CostInput{Amount: decimal.NewFromInt(1750)}}
		response, err := f.service.Update(ctx, purchase.ID, UpdatePurchaseRequest{Costs: newCosts})

		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", response.Status)
		assert.True(t, response.TotalOverhead.Equal(decimal.NewFromInt(1750)))
		// Product costs are untouched until reconciliation is requested
		f.productRepo.AssertNotCalled(t, "SaveCostWithLock", mock.Anything, mock.Anything)
	})
}

func TestPurchaseService_Complete(t *testing.T) {
	ctx := context.Background()

	t.Run("applies stock, cost and ledger entries per item", func(t *testing.T) {
		f := newServiceFixture()
		productA := uuid.New()
		productB := uuid.New()
		purchase := buildLocalPurchase(t, productA, productB)

		prodA, err := catalog.NewProduct("SKU-A", "Producto A", decimal.NewFromInt(1500))
		require.NoError(t, err)
		prodA.ID = productA
		prodB, err := catalog.NewProduct("SKU-B", "Producto B", decimal.NewFromInt(2500))
		require.NoError(t, err)
		prodB.ID = productB

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()
		f.productRepo.On("AdjustStock", ctx, productA, int64(5)).Return(nil).Once()
		f.productRepo.On("AdjustStock", ctx, productB, int64(3)).Return(nil).Once()
		f.productRepo.On("FindByID", ctx, productA).Return(prodA, nil).Once()
		f.productRepo.On("FindByID", ctx, productB).Return(prodB, nil).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodA).Return(nil).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodB).Return(nil).Once()
		f.movementRepo.On("Append", ctx, mock.MatchedBy(func(m *inventory.StockMovement) bool {
			return m.Direction == inventory.MovementIn &&
				m.Reason == inventory.ReasonPurchaseCompleted &&
				m.Reference == "PC-2026-0001"
		})).Return(nil).Twice()
		f.purchaseRepo.On("Save", ctx, purchase).Return(nil).Once()

		response, err := f.service.Complete(ctx, purchase.ID)

		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", response.Status)
		assert.NotNil(t, response.CompletedAt)
		assert.True(t, prodA.Cost.Equal(decimal.RequireFromString("1079.55")), "got %s", prodA.Cost)
		assert.True(t, prodB.Cost.Equal(decimal.RequireFromString("2159.09")), "got %s", prodB.Cost)

		processed, err := f.idempotency.IsProcessed(ctx, completionKey(purchase.ID))
		require.NoError(t, err)
		assert.True(t, processed)

		f.purchaseRepo.AssertExpectations(t)
		f.productRepo.AssertExpectations(t)
		f.movementRepo.AssertExpectations(t)
	})

	t.Run("replayed completion rejected by idempotency store", func(t *testing.T) {
		f := newServiceFixture()
		purchaseID := uuid.New()
		_, err := f.idempotency.MarkProcessed(ctx, completionKey(purchaseID), time.Hour)
		require.NoError(t, err)

		response, err := f.service.Complete(ctx, purchaseID)

		assert.Nil(t, response)
		assert.Equal(t, "ALREADY_COMPLETED", domainCode(t, err))
		f.purchaseRepo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	})

	t.Run("already completed purchase rejected by status gate", func(t *testing.T) {
		f := newServiceFixture()
		purchase := completedPurchase(t, uuid.New(), uuid.New())

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()

		response, err := f.service.Complete(ctx, purchase.ID)

		assert.Nil(t, response)
		assert.Equal(t, "ALREADY_COMPLETED", domainCode(t, err))
		f.productRepo.AssertNotCalled(t, "AdjustStock", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("retries after concurrency conflict", func(t *testing.T) {
		f := newServiceFixture()
		productA := uuid.New()
		productB := uuid.New()

		prodA, err := catalog.NewProduct("SKU-A", "Producto A", decimal.NewFromInt(1500))
		require.NoError(t, err)
		prodA.ID = productA
		prodB, err := catalog.NewProduct("SKU-B", "Producto B", decimal.NewFromInt(2500))
		require.NoError(t, err)
		prodB.ID = productB

		// A fresh aggregate per attempt, as a real repository would return
		purchaseID := uuid.New()
		f.purchaseRepo.On("FindByID", ctx, purchaseID).Return(buildLocalPurchase(t, productA, productB), nil).Once()
		f.purchaseRepo.On("FindByID", ctx, purchaseID).Return(buildLocalPurchase(t, productA, productB), nil).Once()
		f.productRepo.On("AdjustStock", ctx, productA, int64(5)).Return(nil).Twice()
		f.productRepo.On("FindByID", ctx, productA).Return(prodA, nil).Twice()
		f.productRepo.On("SaveCostWithLock", ctx, prodA).Return(shared.ErrConcurrencyConflict).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodA).Return(nil).Once()
		f.productRepo.On("AdjustStock", ctx, productB, int64(3)).Return(nil).Once()
		f.productRepo.On("FindByID", ctx, productB).Return(prodB, nil).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodB).Return(nil).Once()
		f.movementRepo.On("Append", ctx, mock.Anything).Return(nil)
		f.purchaseRepo.On("Save", ctx, mock.AnythingOfType("*purchasing.Purchase")).Return(nil).Once()

		response, err := f.service.Complete(ctx, purchaseID)

		require.NoError(t, err)
		assert.Equal(t, "COMPLETED", response.Status)
		f.purchaseRepo.AssertExpectations(t)
	})
}

func TestPurchaseService_Delete(t *testing.T) {
	ctx := context.Background()

	t.Run("pending purchase deleted without reversal", func(t *testing.T) {
		f := newServiceFixture()
		purchase := buildLocalPurchase(t, uuid.New(), uuid.New())

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()
		f.purchaseRepo.On("Delete", ctx, purchase.ID).Return(nil).Once()

		err := f.service.Delete(ctx, purchase.ID)

		require.NoError(t, err)
		f.productRepo.AssertNotCalled(t, "AdjustStock", mock.Anything, mock.Anything, mock.Anything)
		f.movementRepo.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("in-transit purchase protected", func(t *testing.T) {
		f := newServiceFixture()
		purchase := buildLocalPurchase(t, uuid.New(), uuid.New())
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusOrdered))
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusShipped))
		require.NoError(t, purchase.ChangeStatus(purchasing.PurchaseStatusInTransit))

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()

		err := f.service.Delete(ctx, purchase.ID)

		assert.Equal(t, "INVALID_STATE", domainCode(t, err))
		f.purchaseRepo.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything)
	})

	t.Run("completed purchase reversed before removal", func(t *testing.T) {
		f := newServiceFixture()
		productA := uuid.New()
		productB := uuid.New()
		purchase := completedPurchase(t, productA, productB)

		prodA, err := catalog.NewProduct("SKU-A", "Producto A", decimal.NewFromInt(1500))
		require.NoError(t, err)
		prodA.ID = productA
		prodA.Stock = 5
		prodB, err := catalog.NewProduct("SKU-B", "Producto B", decimal.NewFromInt(2500))
		require.NoError(t, err)
		prodB.ID = productB
		prodB.Stock = 3

		priorCost := decimal.RequireFromString("950.00")

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()
		f.productRepo.On("AdjustStock", ctx, productA, int64(-5)).Return(nil).Once()
		f.productRepo.On("AdjustStock", ctx, productB, int64(-3)).Return(nil).Once()
		f.movementRepo.On("Append", ctx, mock.MatchedBy(func(m *inventory.StockMovement) bool {
			return m.Direction == inventory.MovementOut &&
				m.Reason == inventory.ReasonPurchaseReversal &&
				m.Reference == "PC-2026-0001 (reversed)"
		})).Return(nil).Twice()
		// Product A has an earlier completed purchase to fall back to;
		// product B does not and drops to zero.
		f.purchaseRepo.On("FindLatestCompletedCost", ctx, productA, purchase.ID).
			Return(priorCost, true, nil).Once()
		f.purchaseRepo.On("FindLatestCompletedCost", ctx, productB, purchase.ID).
			Return(decimal.Zero, false, nil).Once()
		f.productRepo.On("FindByID", ctx, productA).Return(prodA, nil).Once()
		f.productRepo.On("FindByID", ctx, productB).Return(prodB, nil).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodA).Return(nil).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodB).Return(nil).Once()
		f.purchaseRepo.On("Delete", ctx, purchase.ID).Return(nil).Once()

		err = f.service.Delete(ctx, purchase.ID)

		require.NoError(t, err)
		assert.True(t, prodA.Cost.Equal(priorCost), "got %s", prodA.Cost)
		assert.True(t, prodB.Cost.IsZero(), "got %s", prodB.Cost)

		f.purchaseRepo.AssertExpectations(t)
		f.productRepo.AssertExpectations(t)
		f.movementRepo.AssertExpectations(t)
	})
}

func TestPurchaseService_ReconcileProductCosts(t *testing.T) {
	ctx := context.Background()

	t.Run("pushes current figures onto products", func(t *testing.T) {
		f := newServiceFixture()
		productA := uuid.New()
		productB := uuid.New()
		purchase := completedPurchase(t, productA, productB)

		prodA, err := catalog.NewProduct("SKU-A", "Producto A", decimal.NewFromInt(1500))
		require.NoError(t, err)
		prodA.ID = productA
		prodB, err := catalog.NewProduct("SKU-B", "Producto B", decimal.NewFromInt(2500))
		require.NoError(t, err)
		prodB.ID = productB

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()
		f.productRepo.On("FindByID", ctx, productA).Return(prodA, nil).Once()
		f.productRepo.On("FindByID", ctx, productB).Return(prodB, nil).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodA).Return(nil).Once()
		f.productRepo.On("SaveCostWithLock", ctx, prodB).Return(nil).Once()

		err = f.service.ReconcileProductCosts(ctx, purchase.ID)

		require.NoError(t, err)
		assert.True(t, prodA.Cost.Equal(decimal.RequireFromString("1079.55")), "got %s", prodA.Cost)
		assert.True(t, prodB.Cost.Equal(decimal.RequireFromString("2159.09")), "got %s", prodB.Cost)
	})

	t.Run("rejects non-completed purchase", func(t *testing.T) {
		f := newServiceFixture()
		purchase := buildLocalPurchase(t, uuid.New(), uuid.New())

		f.purchaseRepo.On("FindByID", ctx, purchase.ID).Return(purchase, nil).Once()

		err := f.service.ReconcileProductCosts(ctx, purchase.ID)

		assert.Equal(t, "INVALID_STATE", domainCode(t, err))
		f.productRepo.AssertNotCalled(t, "SaveCostWithLock", mock.Anything, mock.Anything)
	})
}
