package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/billing"
)

// InvoiceModel is the persistence model for the Invoice aggregate root.
// InvoiceNumber is nullable so that rows imported without a number can be
// backfilled without violating the unique index.
type InvoiceModel struct {
	AggregateModel
	InvoiceNumber   *string               `gorm:"type:varchar(32);uniqueIndex:idx_invoices_number"`
	ClientID        uuid.UUID             `gorm:"type:uuid;not null;index"`
	PetID           *uuid.UUID            `gorm:"type:uuid;index"`
	InvoiceDate     time.Time             `gorm:"not null;index"`
	DueDate         *time.Time            `gorm:"index"`
	Subtotal        decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	DiscountPercent decimal.Decimal       `gorm:"type:decimal(5,2);not null"`
	DiscountAmount  decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	Total           decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	Deposit         decimal.Decimal       `gorm:"type:decimal(12,2);not null"`
	Notes           string                `gorm:"type:text"`
	Status          bool                  `gorm:"not null;index"`
	PaymentStatus   billing.PaymentStatus `gorm:"type:varchar(10);not null;index"`
	PaidAt          *time.Time
}

// TableName returns the table name for GORM
func (InvoiceModel) TableName() string {
	return "invoices"
}

// ToDomain converts the persistence model to a domain Invoice.
func (m *InvoiceModel) ToDomain() *billing.Invoice {
	inv := &billing.Invoice{
		BaseAggregateRoot: m.ToDomainAggregateRoot(),
		ClientID:          m.ClientID,
		PetID:             m.PetID,
		InvoiceDate:       m.InvoiceDate,
		DueDate:           m.DueDate,
		Subtotal:          m.Subtotal,
		DiscountPercent:   m.DiscountPercent,
		DiscountAmount:    m.DiscountAmount,
		Total:             m.Total,
		Deposit:           m.Deposit,
		Notes:             m.Notes,
		Status:            m.Status,
		PaymentStatus:     m.PaymentStatus,
		PaidAt:            m.PaidAt,
	}
	if m.InvoiceNumber != nil {
		inv.InvoiceNumber = *m.InvoiceNumber
	}
	if !inv.PaymentStatus.IsValid() {
		inv.PaymentStatus = billing.PaymentStatusUnpaid
	}
	return inv
}

// FromDomain populates the persistence model from a domain Invoice.
func (m *InvoiceModel) FromDomain(inv *billing.Invoice) {
	m.FromDomainAggregateRoot(inv.BaseAggregateRoot)
	m.InvoiceNumber = nil
	if n := strings.TrimSpace(inv.InvoiceNumber); n != "" {
		m.InvoiceNumber = &n
	}
	m.ClientID = inv.ClientID
	m.PetID = inv.PetID
	m.InvoiceDate = inv.InvoiceDate
	m.DueDate = inv.DueDate
	m.Subtotal = inv.Subtotal
	m.DiscountPercent = inv.DiscountPercent
	m.DiscountAmount = inv.DiscountAmount
	m.Total = inv.Total
	m.Deposit = inv.Deposit
	m.Notes = inv.Notes
	m.Status = inv.Status
	m.PaymentStatus = inv.PaymentStatus
	m.PaidAt = inv.PaidAt
}

// InvoiceModelFromDomain creates a new persistence model from a domain Invoice.
func InvoiceModelFromDomain(inv *billing.Invoice) *InvoiceModel {
	m := &InvoiceModel{}
	m.FromDomain(inv)
	return m
}

// InvoiceItemModel is the persistence model for invoice line items.
//
// InvoiceID is the canonical reference. LegacyInvoiceRef holds the untyped
// string reference written by older importers; rows carrying only the
// legacy form are normalized on recalculation.
type InvoiceItemModel struct {
	BaseModel
	InvoiceID           *uuid.UUID             `gorm:"type:uuid;index"`
	LegacyInvoiceRef    *string                `gorm:"type:varchar(64);index"`
	ItemType            billing.ItemType       `gorm:"type:varchar(20);not null"`
	ItemName            string                 `gorm:"type:varchar(255);not null"`
	ItemDescription     string                 `gorm:"type:text"`
	UnitPrice           decimal.Decimal        `gorm:"type:decimal(12,2);not null"`
	Quantity            int                    `gorm:"not null"`
	DiscountPercent     decimal.Decimal        `gorm:"type:decimal(5,2);not null"`
	NetPrice            decimal.Decimal        `gorm:"type:decimal(12,2);not null"`
	ServiceID           *uuid.UUID             `gorm:"type:uuid;index"`
	ProductID           *uuid.UUID             `gorm:"type:uuid;index"`
	OriginalServiceData SnapshotColumn         `gorm:"type:jsonb"`
	OriginalProductData SnapshotColumn         `gorm:"type:jsonb"`
	SnapshotStatus      billing.SnapshotStatus `gorm:"type:varchar(20);not null"`
}

// TableName returns the table name for GORM
func (InvoiceItemModel) TableName() string {
	return "invoice_items"
}

// ResolvedInvoiceID returns the invoice the row belongs to, whichever
// encoding carries it. The second value is true when only the legacy
// encoding was present.
func (m *InvoiceItemModel) ResolvedInvoiceID() (uuid.UUID, bool) {
	if m.InvoiceID != nil {
		return *m.InvoiceID, false
	}
	if m.LegacyInvoiceRef != nil {
		if id, err := uuid.Parse(strings.TrimSpace(*m.LegacyInvoiceRef)); err == nil {
			return id, true
		}
	}
	return uuid.Nil, m.LegacyInvoiceRef != nil
}

// ToDomain converts the persistence model to a domain InvoiceItem.
func (m *InvoiceItemModel) ToDomain() *billing.InvoiceItem {
	invoiceID, legacy := m.ResolvedInvoiceID()
	status := m.SnapshotStatus
	if !status.IsValid() {
		status = billing.SnapshotNotApplicable
	}
	return &billing.InvoiceItem{
		BaseEntity:          m.BaseModel.ToDomain(),
		InvoiceID:           invoiceID,
		ItemType:            m.ItemType,
		ItemName:            m.ItemName,
		ItemDescription:     m.ItemDescription,
		UnitPrice:           m.UnitPrice,
		Quantity:            m.Quantity,
		DiscountPercent:     m.DiscountPercent,
		NetPrice:            m.NetPrice,
		ServiceID:           m.ServiceID,
		ProductID:           m.ProductID,
		OriginalServiceData: m.OriginalServiceData.Snapshot,
		OriginalProductData: m.OriginalProductData.Snapshot,
		SnapshotStatus:      status,
		LegacyReference:     legacy,
	}
}

// FromDomain populates the persistence model from a domain InvoiceItem.
// Writes always use the canonical encoding.
func (m *InvoiceItemModel) FromDomain(item *billing.InvoiceItem) {
	m.FromDomainBaseEntity(item.BaseEntity)
	invoiceID := item.InvoiceID
	m.InvoiceID = &invoiceID
	m.LegacyInvoiceRef = nil
	m.ItemType = item.ItemType
	m.ItemName = item.ItemName
	m.ItemDescription = item.ItemDescription
	m.UnitPrice = item.UnitPrice
	m.Quantity = item.Quantity
	m.DiscountPercent = item.DiscountPercent
	m.NetPrice = item.NetPrice
	m.ServiceID = item.ServiceID
	m.ProductID = item.ProductID
	m.OriginalServiceData = SnapshotColumn{Snapshot: item.OriginalServiceData}
	m.OriginalProductData = SnapshotColumn{Snapshot: item.OriginalProductData}
	m.SnapshotStatus = item.SnapshotStatus
}

// InvoiceItemModelFromDomain creates a new persistence model from a domain InvoiceItem.
func InvoiceItemModelFromDomain(item *billing.InvoiceItem) *InvoiceItemModel {
	m := &InvoiceItemModel{}
	m.FromDomain(item)
	return m
}

// InvoiceItemsToDomain converts a slice of models, dropping duplicates that
// were matched through both encodings.
func InvoiceItemsToDomain(rows []InvoiceItemModel) []billing.InvoiceItem {
	items := make([]billing.InvoiceItem, 0, len(rows))
	seen := make(map[uuid.UUID]struct{}, len(rows))
	for i := range rows {
		if _, dup := seen[rows[i].ID]; dup {
			continue
		}
		seen[rows[i].ID] = struct{}{}
		items = append(items, *rows[i].ToDomain())
	}
	return items
}

// SnapshotColumn stores a frozen catalog snapshot as JSON. A nil snapshot is NULL.
type SnapshotColumn struct {
	Snapshot *billing.CatalogSnapshot
}

// Value implements driver.Valuer
func (c SnapshotColumn) Value() (driver.Value, error) {
	if c.Snapshot == nil {
		return nil, nil
	}
	b, err := json.Marshal(c.Snapshot)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (c *SnapshotColumn) Scan(value interface{}) error {
	if value == nil {
		c.Snapshot = nil
		return nil
	}

	var bytes []byte
	switch v := value.(type) {
	case []byte:
		bytes = v
	case string:
		bytes = []byte(v)
	default:
		return errors.New("failed to scan SnapshotColumn: unsupported type")
	}
	if len(bytes) == 0 || string(bytes) == "null" {
		c.Snapshot = nil
		return nil
	}

	var snap billing.CatalogSnapshot
	if err := json.Unmarshal(bytes, &snap); err != nil {
		return err
	}
	c.Snapshot = &snap
	return nil
}

// InvoiceSequenceModel is the per year-month invoice number counter.
type InvoiceSequenceModel struct {
	YearMonth string    `gorm:"type:varchar(4);primaryKey"`
	LastValue int64     `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for GORM
func (InvoiceSequenceModel) TableName() string {
	return "invoice_sequences"
}
