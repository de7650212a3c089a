package handler

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/vetclinic/backend/internal/application/billing"
)

// InvoiceItemHandler handles invoice item endpoints
type InvoiceItemHandler struct {
	BaseHandler
	itemService *billingapp.InvoiceItemService
}

// NewInvoiceItemHandler creates a new InvoiceItemHandler
func NewInvoiceItemHandler(itemService *billingapp.InvoiceItemService) *InvoiceItemHandler {
	return &InvoiceItemHandler{itemService: itemService}
}

// Create handles POST /invoice-items. The response carries the item and the
// invoice totals after recalculation.
func (h *InvoiceItemHandler) Create(c *gin.Context) {
	var req billingapp.CreateInvoiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.itemService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, result)
}

// List handles GET /invoice-items?invoice_id=
func (h *InvoiceItemHandler) List(c *gin.Context) {
	raw := c.Query("invoice_id")
	if raw == "" {
		h.BadRequest(c, "invoice_id is required")
		return
	}
	invoiceID, err := uuid.Parse(raw)
	if err != nil {
		h.BadRequest(c, "Invalid invoice ID format")
		return
	}

	items, err := h.itemService.ListByInvoice(c.Request.Context(), invoiceID, c.Query("include"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, items)
}

// GetByID handles GET /invoice-items/:id
func (h *InvoiceItemHandler) GetByID(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice item")
	if !ok {
		return
	}
	item, err := h.itemService.GetByID(c.Request.Context(), id, c.Query("include"))
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, item)
}

// Update handles PUT /invoice-items/:id
func (h *InvoiceItemHandler) Update(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice item")
	if !ok {
		return
	}
	var req billingapp.UpdateInvoiceItemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	result, err := h.itemService.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Delete handles DELETE /invoice-items/:id
func (h *InvoiceItemHandler) Delete(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice item")
	if !ok {
		return
	}
	result, err := h.itemService.Delete(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
