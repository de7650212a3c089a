package router

import (
	"github.com/gin-gonic/gin"
	"github.com/vetclinic/backend/internal/interfaces/http/handler"
)

// BillingHandlers groups the handlers mounted by BillingRoutes
type BillingHandlers struct {
	Invoices    *handler.InvoiceHandler
	Items       *handler.InvoiceItemHandler
	Maintenance *handler.MaintenanceHandler
}

// BillingRoutes builds the /invoices and /invoice-items groups
func BillingRoutes(h BillingHandlers) []RouteRegistrar {
	invoices := NewDomainGroup("invoices", "/invoices").
		POST("", h.Invoices.Create).
		GET("", h.Invoices.List).
		GET("/:id", h.Invoices.GetByID).
		PUT("/:id", h.Invoices.Update).
		DELETE("/:id", h.Invoices.Delete).
		POST("/:id/restore", h.Invoices.Restore).
		POST("/:id/mark-paid", h.Invoices.MarkPaid).
		POST("/:id/force-recalculate", h.Invoices.ForceRecalculate).
		POST("/:id/recalculate-totals", h.Invoices.ForceRecalculate).
		GET("/:id/debug", h.Maintenance.Diagnose).
		POST("/:id/fix-invoice-id-format", h.Maintenance.NormalizeReferences).
		POST("/:id/fix-item-prices", h.Maintenance.FixItemPrices)

	invoices.Group("maintenance", "/maintenance").
		POST("/fix-missing-numbers", h.Maintenance.BackfillNumbers).
		GET("/overview", h.Maintenance.Overview)

	items := NewDomainGroup("invoice-items", "/invoice-items").
		POST("", h.Items.Create).
		GET("", h.Items.List).
		GET("/:id", h.Items.GetByID).
		PUT("/:id", h.Items.Update).
		DELETE("/:id", h.Items.Delete)

	return []RouteRegistrar{invoices, items}
}

// RegisterSystemRoutes mounts health and info endpoints at the engine root
func RegisterSystemRoutes(engine *gin.Engine, h *handler.SystemHandler) {
	engine.GET("/health", h.Live)
	engine.GET("/health/ready", h.Ready)
	engine.GET("/system/info", h.GetSystemInfo)
}
