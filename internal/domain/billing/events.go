package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/shared"
)

// Invoice event types
const (
	EventTypeInvoiceCreated            = "InvoiceCreated"
	EventTypeInvoiceTotalsRecalculated = "InvoiceTotalsRecalculated"
	EventTypeInvoicePaid               = "InvoicePaid"
	EventTypeInvoiceSoftDeleted        = "InvoiceSoftDeleted"
	EventTypeInvoiceRestored           = "InvoiceRestored"
)

// InvoiceCreatedEvent is raised when an invoice receives its number
type InvoiceCreatedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string    `json:"invoice_number"`
	ClientID      uuid.UUID `json:"client_id"`
}

// NewInvoiceCreatedEvent creates an InvoiceCreatedEvent
func NewInvoiceCreatedEvent(inv *Invoice) *InvoiceCreatedEvent {
	return &InvoiceCreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceCreated, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		ClientID:        inv.ClientID,
	}
}

// InvoiceTotalsRecalculatedEvent is raised when recalculation changed the totals
type InvoiceTotalsRecalculatedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
	Before        Totals `json:"before"`
	After         Totals `json:"after"`
	ItemCount     int    `json:"item_count"`
}

// NewInvoiceTotalsRecalculatedEvent creates an InvoiceTotalsRecalculatedEvent
func NewInvoiceTotalsRecalculatedEvent(inv *Invoice, before Totals, itemCount int) *InvoiceTotalsRecalculatedEvent {
	return &InvoiceTotalsRecalculatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceTotalsRecalculated, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		Before:          before,
		After:           inv.Totals(),
		ItemCount:       itemCount,
	}
}

// InvoicePaidEvent is raised when an invoice is marked paid
type InvoicePaidEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string          `json:"invoice_number"`
	Total         decimal.Decimal `json:"total"`
	PaidAt        time.Time       `json:"paid_at"`
}

// NewInvoicePaidEvent creates an InvoicePaidEvent
func NewInvoicePaidEvent(inv *Invoice) *InvoicePaidEvent {
	e := &InvoicePaidEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoicePaid, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
		Total:           inv.Total,
	}
	if inv.PaidAt != nil {
		e.PaidAt = *inv.PaidAt
	}
	return e
}

// InvoiceSoftDeletedEvent is raised when an invoice is soft-deleted
type InvoiceSoftDeletedEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
}

// NewInvoiceSoftDeletedEvent creates an InvoiceSoftDeletedEvent
func NewInvoiceSoftDeletedEvent(inv *Invoice) *InvoiceSoftDeletedEvent {
	return &InvoiceSoftDeletedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceSoftDeleted, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
	}
}

// InvoiceRestoredEvent is raised when a soft-deleted invoice is restored
type InvoiceRestoredEvent struct {
	shared.BaseDomainEvent
	InvoiceNumber string `json:"invoice_number"`
}

// NewInvoiceRestoredEvent creates an InvoiceRestoredEvent
func NewInvoiceRestoredEvent(inv *Invoice) *InvoiceRestoredEvent {
	return &InvoiceRestoredEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeInvoiceRestored, AggregateTypeInvoice, inv.ID),
		InvoiceNumber:   inv.InvoiceNumber,
	}
}
