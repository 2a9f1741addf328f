package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/retail/backend/internal/domain/catalog"
	"github.com/retail/backend/internal/domain/partner"
	"github.com/retail/backend/internal/domain/inventory"
	"github.com/retail/backend/internal/domain/purchasing"
	"github.com/retail/backend/internal/domain/shared"
	"github.com/retail/backend/internal/domain/shared/valueobject"
)

// defaultRetryAttempts bounds how often a mutation is replayed after an
// optimistic locking conflict before the conflict is surfaced to the caller.
const defaultRetryAttempts = 3

// PurchaseService handles purchase business operations: creation, edits,
// completion (stock and cost application) and deletion (reversal).
type PurchaseService struct {
	txScope       TransactionScope
	purchaseRepo  purchasing.PurchaseRepository
	productRepo   catalog.ProductRepository
	supplierRepo  partner.SupplierRepository
	idempotency   shared.IdempotencyStore
	idemConfig    shared.IdempotencyConfig
	retryAttempts int
	logger        *zap.Logger
}

// NewPurchaseService creates a new PurchaseService
func NewPurchaseService(
	txScope TransactionScope,
	purchaseRepo purchasing.PurchaseRepository,
	productRepo catalog.ProductRepository,
	supplierRepo partner.SupplierRepository,
	idempotency shared.IdempotencyStore,
	logger *zap.Logger,
) *PurchaseService {
	return &PurchaseService{
		txScope:       txScope,
		purchaseRepo:  purchaseRepo,
		productRepo:   productRepo,
		supplierRepo:  supplierRepo,
		idempotency:   idempotency,
		idemConfig:    shared.DefaultIdempotencyConfig(),
		retryAttempts: defaultRetryAttempts,
		logger:        logger,
	}
}

// SetIdempotencyConfig overrides the idempotency configuration
func (s *PurchaseService) SetIdempotencyConfig(cfg shared.IdempotencyConfig) {
	s.idemConfig = cfg
}

// SetRetryAttempts overrides how many times conflicting mutations are retried
func (s *PurchaseService) SetRetryAttempts(n int) {
	if n > 0 {
		s.retryAttempts = n
	}
}

// Create creates a new purchase
func (s *PurchaseService) Create(ctx context.Context, req CreatePurchaseRequest) (*PurchaseResponse, error) {
	supplier, err := s.supplierRepo.FindByID(ctx, req.SupplierID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrSupplierNotFound
		}
		return nil, err
	}

	number, err := s.purchaseRepo.GeneratePurchaseNumber(ctx)
	if err != nil {
		return nil, err
	}

	currency := valueobject.DefaultCurrency
	if req.Currency != "" {
		currency = valueobject.Currency(req.Currency)
	}

	purchase, err := purchasing.NewPurchase(
		number,
		supplier.ID,
		supplier.Name,
		purchasing.PurchaseType(req.Type),
		currency,
		req.ExchangeRate,
	)
	if err != nil {
		return nil, err
	}

	for _, item := range req.Items {
		if err := s.ensureProductExists(ctx, item.ProductID); err != nil {
			return nil, err
		}
		if _, err := purchase.AddItem(item.ProductID, item.Quantity, item.UnitPriceForeign, item.UnitPricePesos); err != nil {
			return nil, err
		}
	}

	if err := purchase.SetOverheadCosts(req.Costs.toDomain()); err != nil {
		return nil, err
	}

	if req.Notes != "" {
		if err := purchase.SetNotes(req.Notes); err != nil {
			return nil, err
		}
	}
	if err := purchase.SetExpectedDate(req.ExpectedDate); err != nil {
		return nil, err
	}

	// Foreign amounts without a usable exchange rate are rejected up front
	// rather than silently converted to zero.
	if err := purchase.ValidateExchangeRate(); err != nil {
		return nil, err
	}

	if err := s.purchaseRepo.Save(ctx, purchase); err != nil {
		return nil, err
	}

	s.logEvents(purchase)

	response := ToPurchaseResponse(purchase)
	return &response, nil
}

// GetByID retrieves a purchase by ID
func (s *PurchaseService) GetByID(ctx context.Context, id uuid.UUID) (*PurchaseResponse, error) {
	purchase, err := s.purchaseRepo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToPurchaseResponse(purchase)
	return &response, nil
}

// GetByNumber retrieves a purchase by its purchase number
func (s *PurchaseService) GetByNumber(ctx context.Context, number string) (*PurchaseResponse, error) {
	purchase, err := s.purchaseRepo.FindByNumber(ctx, number)
	if err != nil {
		return nil, err
	}
	response := ToPurchaseResponse(purchase)
	return &response, nil
}

// List retrieves purchases with pagination and filtering
func (s *PurchaseService) List(ctx context.Context, req ListPurchasesRequest) (*shared.Paginated[PurchaseResponse], error) {
	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	filter.Search = req.Search
	if req.Status != "" {
		filter.Filters["status"] = req.Status
	}
	if req.SupplierID != nil {
		filter.Filters["supplier_id"] = *req.SupplierID
	}

	purchases, err := s.purchaseRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.purchaseRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	responses := make([]PurchaseResponse, len(purchases))
	for i := range purchases {
		responses[i] = ToPurchaseResponse(&purchases[i])
	}

	result := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &result, nil
}

// Update edits an existing purchase: exchange rate, overhead costs, notes and
// the item change set. Figures are recomputed and persisted atomically. Edits
// to a completed purchase adjust its recorded figures only; product costs are
// not touched until ReconcileProductCosts is called explicitly.
func (s *PurchaseService) Update(ctx context.Context, id uuid.UUID, req UpdatePurchaseRequest) (*PurchaseResponse, error) {
	var response PurchaseResponse

	err := s.withRetry(ctx, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			purchase, err := repos.Purchases().FindByID(ctx, id)
			if err != nil {
				return err
			}

			wasCompleted := purchase.IsCompleted()

			if req.ExchangeRate != nil {
				if err := purchase.SetExchangeRate(req.ExchangeRate); err != nil {
					return err
				}
			}
			if req.Costs != nil {
				if err := purchase.SetOverheadCosts(req.Costs.toDomain()); err != nil {
					return err
				}
			}
			if err := s.applyItemChanges(ctx, repos, purchase, req.Items); err != nil {
				return err
			}
			if req.Notes != nil {
				if err := purchase.SetNotes(*req.Notes); err != nil {
					return err
				}
			}
			if req.ExpectedDate != nil {
				if err := purchase.SetExpectedDate(req.ExpectedDate); err != nil {
					return err
				}
			}

			if err := purchase.ValidateExchangeRate(); err != nil {
				return err
			}

			if wasCompleted {
				purchase.AddDomainEvent(purchasing.NewPurchaseCostsRecalculatedEvent(purchase))
			}

			if err := repos.Purchases().Save(ctx, purchase); err != nil {
				return err
			}

			s.logEvents(purchase)
			response = ToPurchaseResponse(purchase)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// applyItemChanges applies the item change set in create, update, delete
// order so the at-least-one-item rule is judged against the final item set
// rather than an intermediate one.
func (s *PurchaseService) applyItemChanges(ctx context.Context, repos TransactionalRepositories, purchase *purchasing.Purchase, changes []ItemChange) error {
	for _, change := range changes {
		if change.Action != ItemActionCreate {
			continue
		}
		if exists, err := repos.Products().Exists(ctx, change.ProductID); err != nil {
			return err
		} else if !exists {
			return shared.ErrProductNotFound
		}
		if _, err := purchase.AddItem(change.ProductID, change.Quantity, change.UnitPriceForeign, change.UnitPricePesos); err != nil {
			return err
		}
	}
	for _, change := range changes {
		if change.Action != ItemActionUpdate {
			continue
		}
		if change.ID == nil {
			return shared.NewDomainError("INVALID_INPUT", "Item update requires an item id")
		}
		if err := purchase.UpdateItem(*change.ID, change.Quantity, change.UnitPriceForeign, change.UnitPricePesos); err != nil {
			return err
		}
	}
	for _, change := range changes {
		if change.Action != ItemActionDelete {
			continue
		}
		if change.ID == nil {
			return shared.NewDomainError("INVALID_INPUT", "Item delete requires an item id")
		}
		if err := purchase.RemoveItem(*change.ID); err != nil {
			return err
		}
	}
	return nil
}

// ChangeStatus advances a purchase along its lifecycle. COMPLETED is not a
// valid target here; completion goes through Complete.
func (s *PurchaseService) ChangeStatus(ctx context.Context, id uuid.UUID, req ChangeStatusRequest) (*PurchaseResponse, error) {
	var response PurchaseResponse

	err := s.withRetry(ctx, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			purchase, err := repos.Purchases().FindByID(ctx, id)
			if err != nil {
				return err
			}
			if err := purchase.ChangeStatus(purchasing.PurchaseStatus(req.Status)); err != nil {
				return err
			}
			if err := repos.Purchases().Save(ctx, purchase); err != nil {
				return err
			}
			response = ToPurchaseResponse(purchase)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return &response, nil
}

// Complete marks a purchase as completed and applies its effects in one
// transaction: stock is incremented per item, each product's cost is set to
// the item's final unit cost, and an IN movement is recorded per item. The
// idempotency store guards against duplicate application when the same
// completion request is replayed.
func (s *PurchaseService) Complete(ctx context.Context, id uuid.UUID) (*PurchaseResponse, error) {
	idemKey := completionKey(id)
	if s.idemConfig.Enabled {
		processed, err := s.idempotency.IsProcessed(ctx, idemKey)
		if err != nil {
			s.logger.Warn("idempotency check failed, relying on status gate",
				zap.String("purchase_id", id.String()),
				zap.Error(err))
		} else if processed {
			return nil, shared.NewDomainError("ALREADY_COMPLETED", "Purchase has already been completed")
		}
	}

	var response PurchaseResponse

	err := s.withRetry(ctx, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			purchase, err := repos.Purchases().FindByID(ctx, id)
			if err != nil {
				return err
			}

			if err := purchase.Complete(); err != nil {
				return err
			}

			for i := range purchase.Items {
				item := &purchase.Items[i]
				if err := s.applyItemCompletion(ctx, repos, purchase, item); err != nil {
					return err
				}
			}

			if err := repos.Purchases().Save(ctx, purchase); err != nil {
				return err
			}

			s.logEvents(purchase)
			response = ToPurchaseResponse(purchase)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.idemConfig.Enabled {
		if _, err := s.idempotency.MarkProcessed(ctx, idemKey, s.idemConfig.TTL); err != nil {
			// The completion itself committed; the status gate still rejects
			// replays, so a failed mark is only logged.
			s.logger.Warn("failed to mark completion as processed",
				zap.String("purchase_id", id.String()),
				zap.Error(err))
		}
	}

	return &response, nil
}

// applyItemCompletion applies one completed item: stock increment, product
// cost update and ledger entry.
func (s *PurchaseService) applyItemCompletion(ctx context.Context, repos TransactionalRepositories, purchase *purchasing.Purchase, item *purchasing.PurchaseItem) error {
	if err := repos.Products().AdjustStock(ctx, item.ProductID, item.Quantity); err != nil {
		return err
	}

	product, err := repos.Products().FindByID(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrProductNotFound
		}
		return err
	}
	if err := product.SetCost(item.FinalUnitCost); err != nil {
		return err
	}
	if err := repos.Products().SaveCostWithLock(ctx, product); err != nil {
		return err
	}

	movement, err := inventory.NewStockMovement(
		item.ProductID,
		inventory.MovementIn,
		item.Quantity,
		item.FinalUnitCost,
		inventory.ReasonPurchaseCompleted,
		purchase.Number,
	)
	if err != nil {
		return err
	}
	return repos.Movements().Append(ctx, movement)
}

// Delete removes a purchase. Completed purchases are reversed first: stock is
// decremented per item, an OUT movement is recorded, and each product's cost
// is recomputed from the most recently completed remaining purchase (zero when
// none remains). Reversal and removal commit atomically.
func (s *PurchaseService) Delete(ctx context.Context, id uuid.UUID) error {
	return s.withRetry(ctx, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			purchase, err := repos.Purchases().FindByID(ctx, id)
			if err != nil {
				return err
			}

			if err := purchase.ValidateDeletable(); err != nil {
				return err
			}

			reversed := purchase.IsCompleted()
			if reversed {
				for i := range purchase.Items {
					item := &purchase.Items[i]
					if err := s.reverseItemCompletion(ctx, repos, purchase, item); err != nil {
						return err
					}
				}
			}

			if err := repos.Purchases().Delete(ctx, purchase.ID); err != nil {
				return err
			}

			event := purchasing.NewPurchaseDeletedEvent(purchase, reversed)
			s.logger.Info("domain event",
				zap.String("event_type", event.EventType()),
				zap.String("aggregate_id", event.AggregateID().String()),
				zap.Bool("reversed", reversed))
			return nil
		})
	})
}

// reverseItemCompletion undoes one completed item: stock decrement, reversal
// ledger entry and product cost recomputation from remaining history.
func (s *PurchaseService) reverseItemCompletion(ctx context.Context, repos TransactionalRepositories, purchase *purchasing.Purchase, item *purchasing.PurchaseItem) error {
	// Stock may go negative when a sale raced the reversal; the ledger keeps
	// the audit trail either way.
	if err := repos.Products().AdjustStock(ctx, item.ProductID, -item.Quantity); err != nil {
		return err
	}

	movement, err := inventory.NewStockMovement(
		item.ProductID,
		inventory.MovementOut,
		item.Quantity,
		item.FinalUnitCost,
		inventory.ReasonPurchaseReversal,
		fmt.Sprintf("%s (reversed)", purchase.Number),
	)
	if err != nil {
		return err
	}
	if err := repos.Movements().Append(ctx, movement); err != nil {
		return err
	}

	cost, found, err := repos.Purchases().FindLatestCompletedCost(ctx, item.ProductID, purchase.ID)
	if err != nil {
		return err
	}
	if !found {
		cost = decimal.Zero
	}

	product, err := repos.Products().FindByID(ctx, item.ProductID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return shared.ErrProductNotFound
		}
		return err
	}
	if err := product.SetCost(cost); err != nil {
		return err
	}
	return repos.Products().SaveCostWithLock(ctx, product)
}

// ReconcileProductCosts pushes a completed purchase's current final unit
// costs onto its products. Used after figures-only edits of a completed
// purchase, as a separate explicit step.
func (s *PurchaseService) ReconcileProductCosts(ctx context.Context, id uuid.UUID) error {
	return s.withRetry(ctx, func() error {
		return s.txScope.Execute(ctx, func(repos TransactionalRepositories) error {
			purchase, err := repos.Purchases().FindByID(ctx, id)
			if err != nil {
				return err
			}
			if !purchase.IsCompleted() {
				return shared.NewDomainError("INVALID_STATE", "Only completed purchases can be reconciled")
			}

			for i := range purchase.Items {
				item := &purchase.Items[i]
				product, err := repos.Products().FindByID(ctx, item.ProductID)
				if err != nil {
					if errors.Is(err, shared.ErrNotFound) {
						return shared.ErrProductNotFound
					}
					return err
				}
				if err := product.SetCost(item.FinalUnitCost); err != nil {
					return err
				}
				if err := repos.Products().SaveCostWithLock(ctx, product); err != nil {
					return err
				}
			}
			return nil
		})
	})
}

func (s *PurchaseService) ensureProductExists(ctx context.Context, id uuid.UUID) error {
	exists, err := s.productRepo.Exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return shared.ErrProductNotFound
	}
	return nil
}

// withRetry replays the operation after optimistic locking conflicts, up to
// the configured attempt count. Any other error is returned immediately.
func (s *PurchaseService) withRetry(ctx context.Context, op func() error) error {
	var err error
	for attempt := 1; attempt <= s.retryAttempts; attempt++ {
		err = op()
		if err == nil || !isConcurrencyConflict(err) {
			return err
		}
		if ctx.Err() != nil {
			return err
		}
		s.logger.Debug("retrying after concurrency conflict",
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.retryAttempts))
		time.Sleep(time.Duration(attempt) * 10 * time.Millisecond)
	}
	return err
}

func isConcurrencyConflict(err error) bool {
	var domainErr *shared.DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == "CONCURRENCY_CONFLICT" || domainErr.Code == "OPTIMISTIC_LOCK"
	}
	return false
}

// logEvents logs and clears the purchase's accumulated domain events
func (s *PurchaseService) logEvents(purchase *purchasing.Purchase) {
	for _, event := range purchase.GetDomainEvents() {
		s.logger.Info("domain event",
			zap.String("event_type", event.EventType()),
			zap.String("aggregate_type", event.AggregateType()),
			zap.String("aggregate_id", event.AggregateID().String()))
	}
	purchase.ClearDomainEvents()
}

func completionKey(id uuid.UUID) string {
	return fmt.Sprintf("purchase:complete:%s", id.String())
}
