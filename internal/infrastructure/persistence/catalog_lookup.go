package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// GormCatalogLookup reads the service and product catalog tables
type GormCatalogLookup struct {
	db *gorm.DB
}

// NewGormCatalogLookup creates a new GormCatalogLookup
func NewGormCatalogLookup(db *gorm.DB) *GormCatalogLookup {
	return &GormCatalogLookup{db: db}
}

// GetService returns the current service record, or nil if it does not exist
func (l *GormCatalogLookup) GetService(ctx context.Context, id uuid.UUID) (*billing.CatalogRecord, error) {
	var model models.ServiceModel
	if err := l.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup service %s: %w", id, err)
	}
	return model.ToCatalogRecord(), nil
}

// GetProduct returns the current product record, or nil if it does not exist
func (l *GormCatalogLookup) GetProduct(ctx context.Context, id uuid.UUID) (*billing.CatalogRecord, error) {
	var model models.ProductModel
	if err := l.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("lookup product %s: %w", id, err)
	}
	return model.ToCatalogRecord(), nil
}
