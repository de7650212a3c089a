package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/billing"
)

// CreateInvoiceRequest represents a request to create an invoice.
// InvoiceDate defaults to the creation time. Items are stored with the
// invoice and its totals are computed from them.
type CreateInvoiceRequest struct {
	ClientID        uuid.UUID            `json:"client_id" binding:"required"`
	PetID           *uuid.UUID           `json:"pet_id"`
	InvoiceDate     *time.Time           `json:"invoice_date"`
	DueDate         *time.Time           `json:"due_date"`
	DiscountPercent *decimal.Decimal     `json:"discount_percent"`
	Deposit         *decimal.Decimal     `json:"deposit"`
	Notes           string               `json:"notes" binding:"max=2000"`
	Items           []InvoiceLineRequest `json:"items" binding:"omitempty,max=200,dive"`
}

// InvoiceLineRequest is an item supplied while creating its invoice
type InvoiceLineRequest struct {
	ItemType        string           `json:"item_type" binding:"required,oneof=service product"`
	ItemName        string           `json:"item_name" binding:"required,min=1,max=255"`
	ItemDescription string           `json:"item_description" binding:"max=2000"`
	UnitPrice       *decimal.Decimal `json:"unit_price"`
	Quantity        int              `json:"quantity" binding:"required,min=1"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	ServiceID       *uuid.UUID       `json:"service_id"`
	ProductID       *uuid.UUID       `json:"product_id"`
}

func (l InvoiceLineRequest) params(invoiceID uuid.UUID) billing.NewInvoiceItemParams {
	p := billing.NewInvoiceItemParams{
		InvoiceID:       invoiceID,
		ItemType:        billing.ItemType(l.ItemType),
		ItemName:        l.ItemName,
		ItemDescription: l.ItemDescription,
		Quantity:        l.Quantity,
		ServiceID:       l.ServiceID,
		ProductID:       l.ProductID,
	}
	if l.UnitPrice != nil {
		p.UnitPrice = *l.UnitPrice
	}
	if l.DiscountPercent != nil {
		p.DiscountPercent = *l.DiscountPercent
	}
	return p
}

// UpdateInvoiceRequest is a partial update; absent fields are left untouched
type UpdateInvoiceRequest struct {
	ClientID        *uuid.UUID       `json:"client_id"`
	PetID           *uuid.UUID       `json:"pet_id"`
	ClearPet        bool             `json:"clear_pet"`
	InvoiceDate     *time.Time       `json:"invoice_date"`
	DueDate         *time.Time       `json:"due_date"`
	ClearDueDate    bool             `json:"clear_due_date"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	Deposit         *decimal.Decimal `json:"deposit"`
	Notes           *string          `json:"notes" binding:"omitempty,max=2000"`
}

// ListInvoicesQuery holds the list parameters
type ListInvoicesQuery struct {
	Page           int        `form:"page" binding:"omitempty,min=1"`
	PerPage        int        `form:"per_page" binding:"omitempty,min=1,max=100"`
	ClientID       *uuid.UUID `form:"-"`
	Search         string     `form:"search" binding:"max=100"`
	SortBy         string     `form:"sort_by"`
	SortOrder      string     `form:"sort_order" binding:"omitempty,oneof=asc desc ASC DESC"`
	IncludeDeleted bool       `form:"include_deleted"`
	// AutoFix defaults to true when absent
	AutoFix       *bool  `form:"auto_fix"`
	Include       string `form:"include"`
	PaymentStatus string `form:"payment_status" binding:"omitempty,oneof=UNPAID PAID"`
}

// InvoiceResponse represents an invoice in API responses
type InvoiceResponse struct {
	ID              uuid.UUID              `json:"id"`
	InvoiceNumber   string                 `json:"invoice_number"`
	ClientID        uuid.UUID              `json:"client_id"`
	PetID           *uuid.UUID             `json:"pet_id"`
	InvoiceDate     time.Time              `json:"invoice_date"`
	DueDate         *time.Time             `json:"due_date"`
	Subtotal        decimal.Decimal        `json:"subtotal"`
	DiscountPercent decimal.Decimal        `json:"discount_percent"`
	DiscountAmount  decimal.Decimal        `json:"discount_amount"`
	Total           decimal.Decimal        `json:"total"`
	Deposit         decimal.Decimal        `json:"deposit"`
	Notes           string                 `json:"notes"`
	Status          bool                   `json:"status"`
	PaymentStatus   string                 `json:"payment_status"`
	PaidAt          *time.Time             `json:"paid_at"`
	Version         int                    `json:"version"`
	CreatedAt       time.Time              `json:"created_at"`
	UpdatedAt       time.Time              `json:"updated_at"`
	Client          *billing.ClientSummary `json:"client,omitempty"`
	Pet             *billing.PetSummary    `json:"pet,omitempty"`
	Items           []InvoiceItemResponse  `json:"items,omitempty"`
	// AutoFixed is set when listing repaired the stored totals
	AutoFixed bool `json:"auto_fixed,omitempty"`
}

// ToInvoiceResponse converts a domain invoice
func ToInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:              inv.ID,
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
		PetID:           inv.PetID,
		InvoiceDate:     inv.InvoiceDate,
		DueDate:         inv.DueDate,
		Subtotal:        inv.Subtotal,
		DiscountPercent: inv.DiscountPercent,
		DiscountAmount:  inv.DiscountAmount,
		Total:           inv.Total,
		Deposit:         inv.Deposit,
		Notes:           inv.Notes,
		Status:          inv.Status,
		PaymentStatus:   inv.PaymentStatus.String(),
		PaidAt:          inv.PaidAt,
		Version:         inv.Version,
		CreatedAt:       inv.CreatedAt,
		UpdatedAt:       inv.UpdatedAt,
	}
}

// CreateInvoiceItemRequest represents a request to add an item to an invoice.
// A missing unit price is taken from the captured catalog snapshot.
type CreateInvoiceItemRequest struct {
	InvoiceID       uuid.UUID        `json:"invoice_id" binding:"required"`
	ItemType        string           `json:"item_type" binding:"required,oneof=service product"`
	ItemName        string           `json:"item_name" binding:"required,min=1,max=255"`
	ItemDescription string           `json:"item_description" binding:"max=2000"`
	UnitPrice       *decimal.Decimal `json:"unit_price"`
	Quantity        int              `json:"quantity" binding:"required,min=1"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	ServiceID       *uuid.UUID       `json:"service_id"`
	ProductID       *uuid.UUID       `json:"product_id"`
}

func (r CreateInvoiceItemRequest) line() InvoiceLineRequest {
	return InvoiceLineRequest{
		ItemType:        r.ItemType,
		ItemName:        r.ItemName,
		ItemDescription: r.ItemDescription,
		UnitPrice:       r.UnitPrice,
		Quantity:        r.Quantity,
		DiscountPercent: r.DiscountPercent,
		ServiceID:       r.ServiceID,
		ProductID:       r.ProductID,
	}
}

// UpdateInvoiceItemRequest is a partial update of an item
type UpdateInvoiceItemRequest struct {
	ItemType        *string          `json:"item_type" binding:"omitempty,oneof=service product"`
	ItemName        *string          `json:"item_name" binding:"omitempty,min=1,max=255"`
	ItemDescription *string          `json:"item_description" binding:"omitempty,max=2000"`
	UnitPrice       *decimal.Decimal `json:"unit_price"`
	Quantity        *int             `json:"quantity" binding:"omitempty,min=1"`
	DiscountPercent *decimal.Decimal `json:"discount_percent"`
	ServiceID       *uuid.UUID       `json:"service_id"`
	ProductID       *uuid.UUID       `json:"product_id"`
}

func (r UpdateInvoiceItemRequest) toChanges() billing.InvoiceItemChanges {
	c := billing.InvoiceItemChanges{
		ItemName:        r.ItemName,
		ItemDescription: r.ItemDescription,
		UnitPrice:       r.UnitPrice,
		Quantity:        r.Quantity,
		DiscountPercent: r.DiscountPercent,
		ServiceID:       r.ServiceID,
		ProductID:       r.ProductID,
	}
	if r.ItemType != nil {
		t := billing.ItemType(*r.ItemType)
		c.ItemType = &t
	}
	return c
}

// CatalogRecordResponse is the current catalog state of a referenced record
type CatalogRecordResponse struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	Status        bool            `json:"status"`
	StockQuantity *int            `json:"stock_quantity,omitempty"`
}

func toCatalogRecordResponse(r *billing.CatalogRecord) *CatalogRecordResponse {
	if r == nil {
		return nil
	}
	return &CatalogRecordResponse{
		ID:            r.ID,
		Name:          r.Name,
		Description:   r.Description,
		Price:         r.Price,
		Category:      r.Category,
		Status:        r.Active,
		StockQuantity: r.StockQuantity,
	}
}

// InvoiceItemResponse represents an invoice item in API responses
type InvoiceItemResponse struct {
	ID                  uuid.UUID                `json:"id"`
	InvoiceID           uuid.UUID                `json:"invoice_id"`
	ItemType            string                   `json:"item_type"`
	ItemName            string                   `json:"item_name"`
	ItemDescription     string                   `json:"item_description"`
	UnitPrice           decimal.Decimal          `json:"unit_price"`
	Quantity            int                      `json:"quantity"`
	DiscountPercent     decimal.Decimal          `json:"discount_percent"`
	NetPrice            decimal.Decimal          `json:"net_price"`
	ServiceID           *uuid.UUID               `json:"service_id"`
	ProductID           *uuid.UUID               `json:"product_id"`
	OriginalServiceData *billing.CatalogSnapshot `json:"original_service_data"`
	OriginalProductData *billing.CatalogSnapshot `json:"original_product_data"`
	SnapshotStatus      string                   `json:"snapshot_status"`
	CreatedAt           time.Time                `json:"created_at"`
	UpdatedAt           time.Time                `json:"updated_at"`
	Service             *CatalogRecordResponse   `json:"service,omitempty"`
	Product             *CatalogRecordResponse   `json:"product,omitempty"`
}

// ToInvoiceItemResponse converts a domain item
func ToInvoiceItemResponse(item *billing.InvoiceItem) InvoiceItemResponse {
	return InvoiceItemResponse{
		ID:                  item.ID,
		InvoiceID:           item.InvoiceID,
		ItemType:            item.ItemType.String(),
		ItemName:            item.ItemName,
		ItemDescription:     item.ItemDescription,
		UnitPrice:           item.UnitPrice,
		Quantity:            item.Quantity,
		DiscountPercent:     item.DiscountPercent,
		NetPrice:            item.NetPrice,
		ServiceID:           item.ServiceID,
		ProductID:           item.ProductID,
		OriginalServiceData: item.OriginalServiceData,
		OriginalProductData: item.OriginalProductData,
		SnapshotStatus:      item.SnapshotStatus.String(),
		CreatedAt:           item.CreatedAt,
		UpdatedAt:           item.UpdatedAt,
	}
}

func toInvoiceItemResponses(items []billing.InvoiceItem) []InvoiceItemResponse {
	out := make([]InvoiceItemResponse, len(items))
	for i := range items {
		out[i] = ToInvoiceItemResponse(&items[i])
	}
	return out
}

// ItemMutationResponse is returned by item writes together with the totals
// of the invoice after recalculation
type ItemMutationResponse struct {
	Item          *InvoiceItemResponse `json:"item,omitempty"`
	InvoiceTotals billing.Totals       `json:"invoice_totals"`
}

// RecalculationResponse describes a recalculation
type RecalculationResponse struct {
	InvoiceID         uuid.UUID      `json:"invoice_id"`
	InvoiceNumber     string         `json:"invoice_number"`
	Before            billing.Totals `json:"before"`
	After             billing.Totals `json:"after"`
	Changed           bool           `json:"changed"`
	ItemCount         int            `json:"items_count"`
	NormalizedRefs    int64          `json:"normalized_refs"`
	RepairedNetPrices int            `json:"repaired_net_prices"`
}

func toRecalculationResponse(r *billing.RecalcResult) *RecalculationResponse {
	return &RecalculationResponse{
		InvoiceID:         r.InvoiceID,
		InvoiceNumber:     r.InvoiceNumber,
		Before:            r.Before,
		After:             r.After,
		Changed:           r.Changed(),
		ItemCount:         r.ItemCount,
		NormalizedRefs:    r.NormalizedRefs,
		RepairedNetPrices: r.RepairedNetPrices,
	}
}

// ItemDiagnosis compares one item's stored and derived net price
type ItemDiagnosis struct {
	ID              uuid.UUID       `json:"id"`
	ItemName        string          `json:"item_name"`
	UnitPrice       decimal.Decimal `json:"unit_price"`
	Quantity        int             `json:"quantity"`
	DiscountPercent decimal.Decimal `json:"discount_percent"`
	StoredNetPrice  decimal.Decimal `json:"stored_net_price"`
	ComputedNet     decimal.Decimal `json:"computed_net_price"`
	StaleNetPrice   bool            `json:"stale_net_price"`
	LegacyReference bool            `json:"legacy_reference"`
}

// DiagnosisResponse compares stored invoice totals with the derived ones
// without changing anything
type DiagnosisResponse struct {
	InvoiceID        uuid.UUID       `json:"invoice_id"`
	InvoiceNumber    string          `json:"invoice_number"`
	Status           bool            `json:"status"`
	Stored           billing.Totals  `json:"stored"`
	Computed         billing.Totals  `json:"computed"`
	Diverges         bool            `json:"diverges"`
	Tolerance        decimal.Decimal `json:"tolerance"`
	LegacyReferences int64           `json:"legacy_references"`
	Items            []ItemDiagnosis `json:"items"`
}

// ItemPriceFix describes one item considered by FixItemPrices
type ItemPriceFix struct {
	ItemID    uuid.UUID       `json:"item_id"`
	ItemName  string          `json:"item_name"`
	OldPrice  decimal.Decimal `json:"old_price"`
	NewPrice  decimal.Decimal `json:"new_price"`
	Repriced  bool            `json:"repriced"`
	SkipCause string          `json:"skip_cause,omitempty"`
}

// FixItemPricesResponse reports FixItemPrices
type FixItemPricesResponse struct {
	InvoiceID     uuid.UUID              `json:"invoice_id"`
	Items         []ItemPriceFix         `json:"items"`
	Recalculation *RecalculationResponse `json:"recalculation"`
}

// NumberAssignment is one invoice numbered by BackfillNumbers
type NumberAssignment struct {
	InvoiceID     uuid.UUID `json:"invoice_id"`
	InvoiceNumber string    `json:"invoice_number"`
}

// BackfillResponse reports BackfillNumbers
type BackfillResponse struct {
	Assigned []NumberAssignment `json:"assigned"`
	Failed   int                `json:"failed"`
}

// NormalizeResponse reports a reference normalization pass
type NormalizeResponse struct {
	InvoiceID  *uuid.UUID `json:"invoice_id,omitempty"`
	Normalized int64      `json:"normalized"`
	Remaining  int64      `json:"remaining"`
}
