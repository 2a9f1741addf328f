package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/retail/backend/internal/domain/catalog"
	"github.com/retail/backend/internal/domain/shared"
)

// ProductResponse is the API representation of a product
type ProductResponse struct {
	ID          uuid.UUID       `json:"id"`
	SKU         string          `json:"sku"`
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	CategoryID  *string         `json:"category_id,omitempty"`
	SalePrice   decimal.Decimal `json:"sale_price"`
	Cost        decimal.Decimal `json:"cost"`
	Stock       int64           `json:"stock"`
	Active      bool            `json:"active"`
	Version     int             `json:"version"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// ListProductsRequest carries filtering and pagination for product listing
type ListProductsRequest struct {
	Page       int
	PageSize   int
	Search     string
	Active     *bool
	CategoryID string
}

// ProductService provides read access to the product catalog
type ProductService struct {
	productRepo catalog.ProductRepository
}

// NewProductService creates a new ProductService
func NewProductService(productRepo catalog.ProductRepository) *ProductService {
	return &ProductService{productRepo: productRepo}
}

// GetByID returns a single product by its ID
func (s *ProductService) GetByID(ctx context.Context, id uuid.UUID) (*ProductResponse, error) {
	product, err := s.productRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrProductNotFound
		}
		return nil, err
	}
	resp := toProductResponse(product)
	return &resp, nil
}

// GetBySKU returns a single product by its SKU
func (s *ProductService) GetBySKU(ctx context.Context, sku string) (*ProductResponse, error) {
	product, err := s.productRepo.FindBySKU(ctx, sku)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return nil, shared.ErrProductNotFound
		}
		return nil, err
	}
	resp := toProductResponse(product)
	return &resp, nil
}

// List returns a page of products matching the request filters
func (s *ProductService) List(ctx context.Context, req ListProductsRequest) (*shared.Paginated[ProductResponse], error) {
	filter := shared.DefaultFilter()
	if req.Page > 0 {
		filter.Page = req.Page
	}
	if req.PageSize > 0 {
		filter.PageSize = req.PageSize
	}
	filter.Search = req.Search
	if req.Active != nil {
		filter.Filters["active"] = *req.Active
	}
	if req.CategoryID != "" {
		filter.Filters["category_id"] = req.CategoryID
	}

	products, err := s.productRepo.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.productRepo.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	items := make([]ProductResponse, 0, len(products))
	for i := range products {
		items = append(items, toProductResponse(&products[i]))
	}

	result := shared.NewPaginated(items, total, filter.Page, filter.PageSize)
	return &result, nil
}

func toProductResponse(p *catalog.Product) ProductResponse {
	return ProductResponse{
		ID:          p.ID,
		SKU:         p.SKU,
		Name:        p.Name,
		Description: p.Description,
		CategoryID:  p.CategoryID,
		SalePrice:   p.SalePrice,
		Cost:        p.Cost,
		Stock:       p.Stock,
		Active:      p.Active,
		Version:     p.Version,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}
