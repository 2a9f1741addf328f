package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	catalogapp "github.com/retail/backend/internal/application/catalog"
	inventoryapp "github.com/retail/backend/internal/application/inventory"
	"github.com/retail/backend/internal/interfaces/http/dto"
)

// ProductHandler handles product-related API endpoints
type ProductHandler struct {
	BaseHandler
	productService  *catalogapp.ProductService
	movementService *inventoryapp.MovementService
}

// NewProductHandler creates a new ProductHandler
func NewProductHandler(productService *catalogapp.ProductService, movementService *inventoryapp.MovementService) *ProductHandler {
	return &ProductHandler{
		productService:  productService,
		movementService: movementService,
	}
}

// List handles GET /products
func (h *ProductHandler) List(c *gin.Context) {
	var query dto.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindingError(c, err)
		return
	}

	req := catalogapp.ListProductsRequest{
		Page:       query.Page,
		PageSize:   query.PageSize,
		Search:     query.Search,
		CategoryID: c.Query("category_id"),
	}

	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			h.BadRequest(c, "Invalid active filter, expected true or false")
			return
		}
		req.Active = &active
	}

	result, err := h.productService.List(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// GetByID handles GET /products/:id
func (h *ProductHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}

	product, err := h.productService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, product)
}

// GetBySKU handles GET /products/sku/:sku
func (h *ProductHandler) GetBySKU(c *gin.Context) {
	sku := c.Param("sku")
	if sku == "" {
		h.BadRequest(c, "SKU is required")
		return
	}

	product, err := h.productService.GetBySKU(c.Request.Context(), sku)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, product)
}

// ListMovements handles GET /products/:id/movements
func (h *ProductHandler) ListMovements(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid product ID format")
		return
	}

	var req inventoryapp.ListMovementsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	result, err := h.movementService.ListByProduct(c.Request.Context(), id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}
