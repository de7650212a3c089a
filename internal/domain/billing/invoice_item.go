package billing

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/shared"
)

// ItemType distinguishes billable services from products
type ItemType string

const (
	ItemTypeService ItemType = "service"
	ItemTypeProduct ItemType = "product"
)

// String returns the string representation of ItemType
func (t ItemType) String() string {
	return string(t)
}

// IsValid returns true if the item type is valid
func (t ItemType) IsValid() bool {
	switch t {
	case ItemTypeService, ItemTypeProduct:
		return true
	}
	return false
}

// InvoiceItem is one billable line of an invoice.
//
// InvoiceID is always the canonical reference. Rows read through the legacy
// string encoding carry LegacyReference=true until they are normalized.
type InvoiceItem struct {
	shared.BaseEntity
	InvoiceID           uuid.UUID
	ItemType            ItemType
	ItemName            string
	ItemDescription     string
	UnitPrice           decimal.Decimal
	Quantity            int
	DiscountPercent     decimal.Decimal
	NetPrice            decimal.Decimal
	ServiceID           *uuid.UUID
	ProductID           *uuid.UUID
	OriginalServiceData *CatalogSnapshot
	OriginalProductData *CatalogSnapshot
	SnapshotStatus      SnapshotStatus
	LegacyReference     bool
}

// NewInvoiceItemParams holds the caller supplied fields of a new item
type NewInvoiceItemParams struct {
	InvoiceID       uuid.UUID
	ItemType        ItemType
	ItemName        string
	ItemDescription string
	UnitPrice       decimal.Decimal
	Quantity        int
	DiscountPercent decimal.Decimal
	ServiceID       *uuid.UUID
	ProductID       *uuid.UUID
}

// Validate checks the item fields against the resolved snapshot. The invoice
// reference is not checked so items can be validated before their invoice exists.
func (p NewInvoiceItemParams) Validate(snapshot SnapshotResult) error {
	if !p.ItemType.IsValid() {
		return validationError("item_type must be one of: service, product")
	}
	if strings.TrimSpace(p.ItemName) == "" {
		return validationError("item_name is required")
	}
	return validatePricing(p.unitPrice(snapshot), p.Quantity, p.DiscountPercent)
}

// unitPrice falls back to the snapshot price when none was supplied
func (p NewInvoiceItemParams) unitPrice(snapshot SnapshotResult) decimal.Decimal {
	if p.UnitPrice.IsZero() {
		if price, ok := snapshot.Price(); ok {
			return RoundMoney(price)
		}
	}
	return p.UnitPrice
}

// NewInvoiceItem builds a validated item and freezes the snapshot into it.
// A zero unit price is replaced by the snapshot price when one was captured.
func NewInvoiceItem(p NewInvoiceItemParams, snapshot SnapshotResult) (*InvoiceItem, error) {
	if p.InvoiceID == uuid.Nil {
		return nil, validationError("invoice_id is required")
	}
	if err := p.Validate(snapshot); err != nil {
		return nil, err
	}

	status := snapshot.Status
	if !status.IsValid() {
		status = SnapshotNotApplicable
	}

	item := &InvoiceItem{
		BaseEntity:          shared.NewBaseEntity(),
		InvoiceID:           p.InvoiceID,
		ItemType:            p.ItemType,
		ItemName:            strings.TrimSpace(p.ItemName),
		ItemDescription:     p.ItemDescription,
		UnitPrice:           p.unitPrice(snapshot),
		Quantity:            p.Quantity,
		DiscountPercent:     p.DiscountPercent,
		ServiceID:           p.ServiceID,
		ProductID:           p.ProductID,
		OriginalServiceData: snapshot.Service,
		OriginalProductData: snapshot.Product,
		SnapshotStatus:      status,
	}
	item.NetPrice = item.ComputedNetPrice()
	return item, nil
}

// InvoiceItemChanges is a partial update; nil fields are left untouched.
// Snapshots are not part of it: they are write-once.
type InvoiceItemChanges struct {
	ItemType        *ItemType
	ItemName        *string
	ItemDescription *string
	UnitPrice       *decimal.Decimal
	Quantity        *int
	DiscountPercent *decimal.Decimal
	ServiceID       *uuid.UUID
	ProductID       *uuid.UUID
}

// HasPricingChange reports whether the changes touch the net price inputs
func (c InvoiceItemChanges) HasPricingChange() bool {
	return c.UnitPrice != nil || c.Quantity != nil || c.DiscountPercent != nil
}

// ApplyChanges merges c into the item and recomputes the net price when a
// pricing field changed. It returns whether the net price changed.
func (i *InvoiceItem) ApplyChanges(c InvoiceItemChanges) (bool, error) {
	if c.ItemType != nil && !c.ItemType.IsValid() {
		return false, validationError("item_type must be one of: service, product")
	}
	if c.ItemName != nil && strings.TrimSpace(*c.ItemName) == "" {
		return false, validationError("item_name cannot be empty")
	}

	unitPrice, quantity, discount := i.UnitPrice, i.Quantity, i.DiscountPercent
	if c.UnitPrice != nil {
		unitPrice = *c.UnitPrice
	}
	if c.Quantity != nil {
		quantity = *c.Quantity
	}
	if c.DiscountPercent != nil {
		discount = *c.DiscountPercent
	}
	if err := validatePricing(unitPrice, quantity, discount); err != nil {
		return false, err
	}

	if c.ItemType != nil {
		i.ItemType = *c.ItemType
	}
	if c.ItemName != nil {
		i.ItemName = strings.TrimSpace(*c.ItemName)
	}
	if c.ItemDescription != nil {
		i.ItemDescription = *c.ItemDescription
	}
	if c.ServiceID != nil {
		i.ServiceID = c.ServiceID
	}
	if c.ProductID != nil {
		i.ProductID = c.ProductID
	}

	previous := i.NetPrice
	i.UnitPrice, i.Quantity, i.DiscountPercent = unitPrice, quantity, discount
	if c.HasPricingChange() {
		i.NetPrice = i.ComputedNetPrice()
	}
	i.Touch()
	return !previous.Equal(i.NetPrice), nil
}

// RepriceFromCatalog sets a unit price for an item whose stored price is zero.
// It returns false when the item already had a price.
func (i *InvoiceItem) RepriceFromCatalog(price decimal.Decimal) bool {
	if i.UnitPrice.GreaterThan(decimal.Zero) || !price.GreaterThan(decimal.Zero) {
		return false
	}
	i.UnitPrice = RoundMoney(price)
	i.NetPrice = i.ComputedNetPrice()
	i.Touch()
	return true
}

// ComputedNetPrice derives the net price from the item's pricing fields
func (i *InvoiceItem) ComputedNetPrice() decimal.Decimal {
	return NetPrice(i.UnitPrice, i.Quantity, i.DiscountPercent)
}

// HasStaleNetPrice reports whether the stored net price disagrees with the derived one
func (i *InvoiceItem) HasStaleNetPrice() bool {
	return !i.NetPrice.Equal(i.ComputedNetPrice())
}

// ValidateDiscountPercent checks the 0-100 range shared by items and invoices
func ValidateDiscountPercent(d decimal.Decimal) error {
	if d.IsNegative() || d.GreaterThan(hundred) {
		return validationError("discount_percent must be between 0 and 100")
	}
	return validateScale("discount_percent", d)
}

// validateScale rejects values the decimal(_,2) columns would round on write
func validateScale(field string, d decimal.Decimal) error {
	if !d.Equal(RoundMoney(d)) {
		return validationError(field + " cannot have more than 2 decimal places")
	}
	return nil
}

func validatePricing(unitPrice decimal.Decimal, quantity int, discount decimal.Decimal) error {
	if !unitPrice.GreaterThan(decimal.Zero) {
		return validationError("unit_price must be positive")
	}
	if err := validateScale("unit_price", unitPrice); err != nil {
		return err
	}
	if quantity <= 0 {
		return validationError("quantity must be positive")
	}
	return ValidateDiscountPercent(discount)
}
