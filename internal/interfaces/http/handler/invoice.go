package handler

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	billingapp "github.com/vetclinic/backend/internal/application/billing"
)

// InvoiceHandler handles invoice endpoints
type InvoiceHandler struct {
	BaseHandler
	invoiceService *billingapp.InvoiceService
}

// NewInvoiceHandler creates a new InvoiceHandler
func NewInvoiceHandler(invoiceService *billingapp.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

// Create handles POST /invoices
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req billingapp.CreateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	invoice, err := h.invoiceService.Create(c.Request.Context(), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Created(c, invoice)
}

// GetByID handles GET /invoices/:id. Soft-deleted invoices are only
// returned with include_deleted=true.
func (h *InvoiceHandler) GetByID(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	includeDeleted, _ := strconv.ParseBool(c.Query("include_deleted"))

	invoice, err := h.invoiceService.GetByID(c.Request.Context(), id, includeDeleted)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// List handles GET /invoices
func (h *InvoiceHandler) List(c *gin.Context) {
	var query billingapp.ListInvoicesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		h.BindError(c, err)
		return
	}
	if raw := c.Query("client_id"); raw != "" {
		clientID, err := uuid.Parse(raw)
		if err != nil {
			h.BadRequest(c, "Invalid client ID format")
			return
		}
		query.ClientID = &clientID
	}

	page, err := h.invoiceService.List(c.Request.Context(), query)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	SuccessWithPage(c, page)
}

// Update handles PUT /invoices/:id
func (h *InvoiceHandler) Update(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	var req billingapp.UpdateInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	invoice, err := h.invoiceService.Update(c.Request.Context(), id, req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// Delete handles DELETE /invoices/:id (soft delete)
func (h *InvoiceHandler) Delete(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	if err := h.invoiceService.Delete(c.Request.Context(), id); err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, gin.H{"id": id, "deleted": true})
}

// Restore handles POST /invoices/:id/restore
func (h *InvoiceHandler) Restore(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.Restore(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// MarkPaid handles POST /invoices/:id/mark-paid
func (h *InvoiceHandler) MarkPaid(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	invoice, err := h.invoiceService.MarkPaid(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, invoice)
}

// ForceRecalculate handles POST /invoices/:id/force-recalculate
func (h *InvoiceHandler) ForceRecalculate(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	result, err := h.invoiceService.ForceRecalculate(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}
