package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/vetclinic/backend/internal/domain/shared"
)

// InvoiceFilter defines filtering options for invoice queries
type InvoiceFilter struct {
	shared.Filter
	ClientID       *uuid.UUID
	PaymentStatus  *PaymentStatus
	IncludeDeleted bool
	// SearchClientIDs and SearchPetIDs widen Search to invoices whose client
	// or pet name matched; they are resolved through the lookups beforehand.
	SearchClientIDs []uuid.UUID
	SearchPetIDs    []uuid.UUID
}

// RecalcResult describes one serialized recalculation of an invoice
type RecalcResult struct {
	InvoiceID         uuid.UUID `json:"invoice_id"`
	InvoiceNumber     string    `json:"invoice_number"`
	Before            Totals    `json:"before"`
	After             Totals    `json:"after"`
	ItemCount         int       `json:"items_count"`
	NormalizedRefs    int64     `json:"normalized_refs"`
	RepairedNetPrices int       `json:"repaired_net_prices"`
	// Invoice is the stored invoice after recalculation, with any pending
	// domain events attached
	Invoice *Invoice `json:"-"`
}

// Changed reports whether the stored totals moved
func (r *RecalcResult) Changed() bool {
	return !r.Before.Equal(r.After)
}

// InvoiceStateCounts summarizes stored invoices by state
type InvoiceStateCounts struct {
	Active         int64 `json:"active"`
	Deleted        int64 `json:"deleted"`
	Paid           int64 `json:"paid"`
	MissingNumber  int64 `json:"missing_number"`
	LegacyItemRefs int64 `json:"legacy_item_refs"`
}

// InvoiceRepository defines the persistence operations for invoices
type InvoiceRepository interface {
	// Create persists a new invoice together with its initial items in one
	// transaction
	Create(ctx context.Context, inv *Invoice, items ...*InvoiceItem) error

	// FindByID returns the invoice or nil when it does not exist or is
	// soft-deleted and includeDeleted is false
	FindByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*Invoice, error)

	// FindAll returns a page of invoices matching the filter
	FindAll(ctx context.Context, filter InvoiceFilter) ([]Invoice, error)

	// Count returns the number of invoices matching the filter
	Count(ctx context.Context, filter InvoiceFilter) (int64, error)

	// Save updates an existing invoice, failing with a concurrency conflict
	// when the stored version moved since the invoice was loaded
	Save(ctx context.Context, inv *Invoice) error

	// Recalculate derives the invoice totals from its items and stores them.
	// Items referencing the invoice through the legacy encoding are normalized
	// in the same transaction. Calls for the same invoice are serialized.
	Recalculate(ctx context.Context, id uuid.UUID) (*RecalcResult, error)

	// FindWithoutNumber returns invoices whose number is empty
	FindWithoutNumber(ctx context.Context) ([]Invoice, error)

	// ListNumbersWithPrefix returns every invoice number starting with prefix
	ListNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error)

	// CountByState summarizes stored invoices
	CountByState(ctx context.Context) (InvoiceStateCounts, error)
}

// InvoiceItemRepository defines the persistence operations for invoice items
type InvoiceItemRepository interface {
	// Create persists a new item with the canonical invoice reference
	Create(ctx context.Context, item *InvoiceItem) error

	// FindByID returns the item or nil when it does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*InvoiceItem, error)

	// FindByInvoice returns the items of an invoice over both reference
	// encodings, oldest first
	FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]InvoiceItem, error)

	// Update persists item changes and normalizes its invoice reference
	Update(ctx context.Context, item *InvoiceItem) error

	// Delete removes the item permanently. It returns false if it did not exist.
	Delete(ctx context.Context, id uuid.UUID) (bool, error)

	// NormalizeReferences rewrites legacy references of one invoice's items
	NormalizeReferences(ctx context.Context, invoiceID uuid.UUID) (int64, error)

	// NormalizeAllReferences rewrites every legacy reference that parses as an id
	NormalizeAllReferences(ctx context.Context) (int64, error)

	// CountLegacyReferences counts items still using the legacy encoding,
	// optionally restricted to one invoice
	CountLegacyReferences(ctx context.Context, invoiceID *uuid.UUID) (int64, error)
}
