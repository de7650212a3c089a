package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/billing"
)

// The tables below are owned by other parts of the practice backend. Billing
// only reads them through the lookup adapters.

// ServiceModel is a row of the service catalog.
type ServiceModel struct {
	BaseModel
	Name        string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	Description string          `gorm:"type:varchar(1000)"`
	Price       decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	Duration    int             `gorm:"not null"`
	Category    string          `gorm:"type:varchar(100)"`
	ServiceType string          `gorm:"type:varchar(100);not null"`
	Status      bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ServiceModel) TableName() string {
	return "services"
}

// ToCatalogRecord converts the row to a billing catalog record.
func (m *ServiceModel) ToCatalogRecord() *billing.CatalogRecord {
	return &billing.CatalogRecord{
		ID:          m.ID,
		Name:        m.Name,
		Description: m.Description,
		Price:       m.Price,
		Category:    m.Category,
		Active:      m.Status,
	}
}

// ProductModel is a row of the product catalog.
type ProductModel struct {
	BaseModel
	Name          string          `gorm:"type:varchar(255);not null;uniqueIndex"`
	Description   string          `gorm:"type:varchar(1000)"`
	Price         decimal.Decimal `gorm:"type:decimal(12,2);not null"`
	StockQuantity int             `gorm:"not null"`
	Category      string          `gorm:"type:varchar(100)"`
	SKU           string          `gorm:"column:sku;type:varchar(50)"`
	Status        bool            `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ProductModel) TableName() string {
	return "products"
}

// ToCatalogRecord converts the row to a billing catalog record.
func (m *ProductModel) ToCatalogRecord() *billing.CatalogRecord {
	qty := m.StockQuantity
	return &billing.CatalogRecord{
		ID:            m.ID,
		Name:          m.Name,
		Description:   m.Description,
		Price:         m.Price,
		Category:      m.Category,
		Active:        m.Status,
		StockQuantity: &qty,
	}
}

// ClientModel is a row of the client directory.
type ClientModel struct {
	BaseModel
	Name             string `gorm:"type:varchar(255);not null;index"`
	Gender           string `gorm:"type:varchar(10);not null"`
	PhoneNumber      string `gorm:"type:varchar(15);not null;uniqueIndex"`
	OtherContactInfo string `gorm:"type:varchar(255)"`
	Status           bool   `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ClientModel) TableName() string {
	return "clients"
}

// ToSummary converts the row to the billing display summary.
func (m *ClientModel) ToSummary() *billing.ClientSummary {
	return &billing.ClientSummary{
		ID:          m.ID,
		Name:        m.Name,
		PhoneNumber: m.PhoneNumber,
		ContactInfo: m.OtherContactInfo,
	}
}

// PetModel is a row of the pet directory.
type PetModel struct {
	BaseModel
	Name      string     `gorm:"type:varchar(255);not null;index"`
	ClientID  uuid.UUID  `gorm:"type:uuid;not null;index"`
	SpeciesID *uuid.UUID `gorm:"type:uuid"`
	BreedID   *uuid.UUID `gorm:"type:uuid"`
	Status    bool       `gorm:"not null"`
}

// TableName returns the table name for GORM
func (PetModel) TableName() string {
	return "pets"
}

// ToSummary converts the row to the billing display summary.
func (m *PetModel) ToSummary() *billing.PetSummary {
	return &billing.PetSummary{
		ID:        m.ID,
		Name:      m.Name,
		ClientID:  m.ClientID,
		SpeciesID: m.SpeciesID,
		BreedID:   m.BreedID,
	}
}
