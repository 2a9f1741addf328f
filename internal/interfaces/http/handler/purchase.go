package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	purchasingapp "github.com/retail/backend/internal/application/purchasing"
)

// PurchaseHandler handles purchase-related API endpoints
type PurchaseHandler struct {
	BaseHandler
	purchaseService *purchasingapp.PurchaseService
}

// NewPurchaseHandler creates a new PurchaseHandler
func NewPurchaseHandler(purchaseService *purchasingapp.PurchaseService) *PurchaseHandler {
	return &PurchaseHandler{
		purchaseService: purchaseService,
	}
}

// Create handles POST /purchases
func (h *PurchaseHandler) Create(c *gin.Context) {
	var req purchasingapp.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	purchase, err := h.purchaseService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Created(c, purchase)
}

// GetByID handles GET /purchases/:id
func (h *PurchaseHandler) GetByID(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid purchase ID format")
		return
	}

	purchase, err := h.purchaseService.GetByID(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, purchase)
}

// GetByNumber handles GET /purchases/number/:number
func (h *PurchaseHandler) GetByNumber(c *gin.Context) {
	number := c.Param("number")
	if number == "" {
		h.BadRequest(c, "Purchase number is required")
		return
	}

	purchase, err := h.purchaseService.GetByNumber(c.Request.Context(), number)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, purchase)
}

// listPurchasesQuery carries the query string parameters for List.
// supplier_id is parsed separately because gin form binding does not
// handle uuid values.
type listPurchasesQuery struct {
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
	Status   string `form:"status" binding:"omitempty,oneof=PENDING ORDERED SHIPPED IN_TRANSIT RECEIVED COMPLETED"`
	Search   string `form:"search"`
}

// List handles GET /purchases
func (h *PurchaseHandler) List(c *gin.Context) {
	var query listPurchasesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindingError(c, err)
		return
	}

	req := purchasingapp.ListPurchasesRequest{
		Page:     query.Page,
		PageSize: query.PageSize,
		Status:   query.Status,
		Search:   query.Search,
	}

	if raw := c.Query("supplier_id"); raw != "" {
		supplierID, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid supplier ID format")
			return
		}
		req.SupplierID = &supplierID
	}

	result, err := h.purchaseService.List(c.Request.Context(), req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.SuccessWithMeta(c, result.Items, result.Total, result.Page, result.PageSize)
}

// Update handles PUT /purchases/:id
func (h *PurchaseHandler) Update(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid purchase ID format")
		return
	}

	var req purchasingapp.UpdatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	purchase, err := h.purchaseService.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, purchase)
}

// ChangeStatus handles POST /purchases/:id/status
func (h *PurchaseHandler) ChangeStatus(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid purchase ID format")
		return
	}

	var req purchasingapp.ChangeStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindingError(c, err)
		return
	}

	purchase, err := h.purchaseService.ChangeStatus(c.Request.Context(), id, req)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, purchase)
}

// Complete handles POST /purchases/:id/complete
func (h *PurchaseHandler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid purchase ID format")
		return
	}

	purchase, err := h.purchaseService.Complete(c.Request.Context(), id)
	if err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.Success(c, purchase)
}

// Delete handles DELETE /purchases/:id
func (h *PurchaseHandler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid purchase ID format")
		return
	}

	if err := h.purchaseService.Delete(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}

// ReconcileProductCosts handles POST /purchases/:id/reconcile-costs
func (h *PurchaseHandler) ReconcileProductCosts(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "Invalid purchase ID format")
		return
	}

	if err := h.purchaseService.ReconcileProductCosts(c.Request.Context(), id); err != nil {
		h.HandleDomainError(c, err)
		return
	}

	h.NoContent(c)
}
