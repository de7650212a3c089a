package handler

import (
	"github.com/gin-gonic/gin"
	billingapp "github.com/vetclinic/backend/internal/application/billing"
)

// MaintenanceHandler exposes the billing repair operations
type MaintenanceHandler struct {
	BaseHandler
	maintenanceService *billingapp.MaintenanceService
}

// NewMaintenanceHandler creates a new MaintenanceHandler
func NewMaintenanceHandler(maintenanceService *billingapp.MaintenanceService) *MaintenanceHandler {
	return &MaintenanceHandler{maintenanceService: maintenanceService}
}

// Diagnose handles GET /invoices/:id/debug
func (h *MaintenanceHandler) Diagnose(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	diagnosis, err := h.maintenanceService.Diagnose(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, diagnosis)
}

// NormalizeReferences handles POST /invoices/:id/fix-invoice-id-format
func (h *MaintenanceHandler) NormalizeReferences(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	result, err := h.maintenanceService.NormalizeInvoiceReferences(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// FixItemPrices handles POST /invoices/:id/fix-item-prices
func (h *MaintenanceHandler) FixItemPrices(c *gin.Context) {
	id, ok := h.ParseID(c, "id", "invoice")
	if !ok {
		return
	}
	result, err := h.maintenanceService.FixItemPrices(c.Request.Context(), id)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// BackfillNumbers handles POST /invoices/maintenance/fix-missing-numbers
func (h *MaintenanceHandler) BackfillNumbers(c *gin.Context) {
	result, err := h.maintenanceService.BackfillNumbers(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, result)
}

// Overview handles GET /invoices/maintenance/overview
func (h *MaintenanceHandler) Overview(c *gin.Context) {
	counts, err := h.maintenanceService.Overview(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, counts)
}
