package persistence

import (
	"fmt"

	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// BillingModels lists every model owned or read by billing, in creation order
func BillingModels() []interface{} {
	return []interface{}{
		&models.ServiceModel{},
		&models.ProductModel{},
		&models.ClientModel{},
		&models.PetModel{},
		&models.InvoiceModel{},
		&models.InvoiceItemModel{},
		&models.InvoiceSequenceModel{},
	}
}

// AutoMigrateBilling creates the billing tables from the GORM models
func AutoMigrateBilling(db *gorm.DB) error {
	if err := db.AutoMigrate(BillingModels()...); err != nil {
		return fmt.Errorf("auto-migrate billing models: %w", err)
	}
	return nil
}
