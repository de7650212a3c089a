package billing

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/shared"
)

// AggregateTypeInvoice is the aggregate type name carried by invoice events
const AggregateTypeInvoice = "Invoice"

// PaymentStatus is the explicit payment marker of an invoice.
// It is only changed by MarkPaid and never derived from deposit or totals.
type PaymentStatus string

const (
	PaymentStatusUnpaid PaymentStatus = "UNPAID"
	PaymentStatusPaid   PaymentStatus = "PAID"
)

// String returns the string representation of PaymentStatus
func (s PaymentStatus) String() string {
	return string(s)
}

// IsValid returns true if the payment status is valid
func (s PaymentStatus) IsValid() bool {
	switch s {
	case PaymentStatusUnpaid, PaymentStatusPaid:
		return true
	}
	return false
}

var _ shared.EventRecorder = (*Invoice)(nil)

// Invoice is the billing header aggregating invoice items.
// Status true means active, false means soft-deleted.
type Invoice struct {
	shared.BaseAggregateRoot
	InvoiceNumber   string
	ClientID        uuid.UUID
	PetID           *uuid.UUID
	InvoiceDate     time.Time
	DueDate         *time.Time
	Subtotal        decimal.Decimal
	DiscountPercent decimal.Decimal
	DiscountAmount  decimal.Decimal
	Total           decimal.Decimal
	Deposit         decimal.Decimal
	Notes           string
	Status          bool
	PaymentStatus   PaymentStatus
	PaidAt          *time.Time
}

// NewInvoiceParams holds the caller supplied fields of a new invoice
type NewInvoiceParams struct {
	ClientID        uuid.UUID
	PetID           *uuid.UUID
	InvoiceDate     time.Time
	DueDate         *time.Time
	DiscountPercent decimal.Decimal
	Deposit         decimal.Decimal
	Notes           string
}

// Validate checks the fields independently of numbering
func (p NewInvoiceParams) Validate() error {
	if p.ClientID == uuid.Nil {
		return validationError("client_id is required")
	}
	if p.InvoiceDate.IsZero() {
		return validationError("invoice_date is required")
	}
	if err := ValidateDiscountPercent(p.DiscountPercent); err != nil {
		return err
	}
	if p.Deposit.IsNegative() {
		return validationError("deposit cannot be negative")
	}
	return nil
}

// NewInvoice creates an active, unpaid invoice with zero totals
func NewInvoice(invoiceNumber string, p NewInvoiceParams) (*Invoice, error) {
	if strings.TrimSpace(invoiceNumber) == "" {
		return nil, validationError("invoice_number cannot be empty")
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}

	inv := &Invoice{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		InvoiceNumber:     invoiceNumber,
		ClientID:          p.ClientID,
		PetID:             p.PetID,
		InvoiceDate:       p.InvoiceDate,
		DueDate:           p.DueDate,
		DiscountPercent:   p.DiscountPercent,
		Deposit:           RoundMoney(p.Deposit),
		Notes:             p.Notes,
		Status:            true,
		PaymentStatus:     PaymentStatusUnpaid,
	}
	inv.setTotals(ZeroTotals())

	inv.AddDomainEvent(NewInvoiceCreatedEvent(inv))
	return inv, nil
}

// IsActive returns true unless the invoice is soft-deleted
func (inv *Invoice) IsActive() bool {
	return inv.Status
}

// IsPaid returns true once MarkPaid succeeded
func (inv *Invoice) IsPaid() bool {
	return inv.PaymentStatus == PaymentStatusPaid
}

// Totals returns the stored totals
func (inv *Invoice) Totals() Totals {
	return Totals{
		Subtotal:       inv.Subtotal,
		DiscountAmount: inv.DiscountAmount,
		Total:          inv.Total,
	}
}

// Recalculate derives totals from items and stores them.
// It returns the totals that were stored before.
func (inv *Invoice) Recalculate(items []InvoiceItem) Totals {
	before := inv.Totals()
	after := ComputeTotals(inv.DiscountPercent, items)
	inv.setTotals(after)
	inv.Touch()
	if !before.Equal(after) {
		inv.AddDomainEvent(NewInvoiceTotalsRecalculatedEvent(inv, before, len(items)))
	}
	return before
}

func (inv *Invoice) setTotals(t Totals) {
	inv.Subtotal = t.Subtotal
	inv.DiscountAmount = t.DiscountAmount
	inv.Total = t.Total
}

// InvoiceChanges is a partial update of the invoice header; nil fields are
// left untouched. Totals, status and payment state are not updatable here.
type InvoiceChanges struct {
	ClientID        *uuid.UUID
	PetID           *uuid.UUID
	ClearPet        bool
	InvoiceDate     *time.Time
	DueDate         *time.Time
	ClearDueDate    bool
	DiscountPercent *decimal.Decimal
	Deposit         *decimal.Decimal
	Notes           *string
}

// ApplyChanges merges c into the invoice. It reports whether the discount
// percent was part of the update, which means totals must be recalculated.
func (inv *Invoice) ApplyChanges(c InvoiceChanges) (bool, error) {
	if c.ClientID != nil && *c.ClientID == uuid.Nil {
		return false, validationError("client_id cannot be empty")
	}
	if c.InvoiceDate != nil && c.InvoiceDate.IsZero() {
		return false, validationError("invoice_date cannot be empty")
	}
	if c.DiscountPercent != nil {
		if err := ValidateDiscountPercent(*c.DiscountPercent); err != nil {
			return false, err
		}
	}
	if c.Deposit != nil && c.Deposit.IsNegative() {
		return false, validationError("deposit cannot be negative")
	}

	if c.ClientID != nil {
		inv.ClientID = *c.ClientID
	}
	switch {
	case c.ClearPet:
		inv.PetID = nil
	case c.PetID != nil:
		inv.PetID = c.PetID
	}
	if c.InvoiceDate != nil {
		inv.InvoiceDate = *c.InvoiceDate
	}
	switch {
	case c.ClearDueDate:
		inv.DueDate = nil
	case c.DueDate != nil:
		inv.DueDate = c.DueDate
	}
	if c.DiscountPercent != nil {
		inv.DiscountPercent = *c.DiscountPercent
	}
	if c.Deposit != nil {
		inv.Deposit = RoundMoney(*c.Deposit)
	}
	if c.Notes != nil {
		inv.Notes = *c.Notes
	}
	inv.Touch()
	return c.DiscountPercent != nil, nil
}

// AssignNumber sets the number of an invoice that has none
func (inv *Invoice) AssignNumber(number string) error {
	if strings.TrimSpace(number) == "" {
		return validationError("invoice_number cannot be empty")
	}
	if inv.InvoiceNumber != "" {
		return shared.NewDomainError(shared.CodeInvalidState, "Invoice already has a number")
	}
	inv.InvoiceNumber = number
	inv.Touch()
	return nil
}

// SoftDelete deactivates the invoice. Items are retained. It returns false
// if the invoice was already deleted.
func (inv *Invoice) SoftDelete() bool {
	if !inv.Status {
		return false
	}
	inv.Status = false
	inv.Touch()
	inv.AddDomainEvent(NewInvoiceSoftDeletedEvent(inv))
	return true
}

// Restore reactivates a soft-deleted invoice. It returns false if the invoice
// was already active.
func (inv *Invoice) Restore() bool {
	if inv.Status {
		return false
	}
	inv.Status = true
	inv.Touch()
	inv.AddDomainEvent(NewInvoiceRestoredEvent(inv))
	return true
}

// MarkPaid records payment. Marking an already paid invoice is a no-op and
// keeps the original PaidAt.
func (inv *Invoice) MarkPaid(at time.Time) error {
	if !inv.Status {
		return ErrInvoiceDeleted
	}
	if inv.IsPaid() {
		return nil
	}
	paidAt := at.UTC()
	inv.PaymentStatus = PaymentStatusPaid
	inv.PaidAt = &paidAt
	inv.Touch()
	inv.AddDomainEvent(NewInvoicePaidEvent(inv))
	return nil
}
