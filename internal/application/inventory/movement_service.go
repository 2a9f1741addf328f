package inventory

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retail/backend/internal/domain/catalog"
	"github.com/retail/backend/internal/domain/inventory"
	"github.com/retail/backend/internal/domain/shared"
)

// MovementResponse is one ledger entry in a response
type MovementResponse struct {
	ID        uuid.UUID       `json:"id"`
	ProductID uuid.UUID       `json:"product_id"`
	Direction string          `json:"direction"`
	Quantity  int64           `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	Reason    string          `json:"reason"`
	Reference string          `json:"reference,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListMovementsRequest carries pagination for movement listing
type ListMovementsRequest struct {
	Page     int `form:"page"`
	PageSize int `form:"page_size"`
}

// MovementService provides read access to the stock movement ledger
type MovementService struct {
	movementRepo inventory.StockMovementRepository
	productRepo  catalog.ProductRepository
}

// NewMovementService creates a new MovementService
func NewMovementService(movementRepo inventory.StockMovementRepository, productRepo catalog.ProductRepository) *MovementService {
	return &MovementService{
		movementRepo: movementRepo,
		productRepo:  productRepo,
	}
}

// ListByProduct retrieves a product's movement history, newest first
func (s *MovementService) ListByProduct(ctx context.Context, productID uuid.UUID, req ListMovementsRequest) (*shared.Paginated[MovementResponse], error) {
	exists, err := s.productRepo.Exists(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, shared.ErrProductNotFound
	}

	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}

	movements, err := s.movementRepo.FindByProduct(ctx, productID, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.movementRepo.CountByProduct(ctx, productID)
	if err != nil {
		return nil, err
	}

	responses := make([]MovementResponse, len(movements))
	for i, m := range movements {
		responses[i] = MovementResponse{
			ID:        m.ID,
			ProductID: m.ProductID,
			Direction: m.Direction.String(),
			Quantity:  m.Quantity,
			UnitCost:  m.UnitCost,
			Reason:    m.Reason,
			Reference: m.Reference,
			CreatedAt: m.CreatedAt,
		}
	}

	result := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &result, nil
}
