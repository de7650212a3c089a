package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
)

// legacyRefMatch matches items that reference an invoice only through the
// untyped string column.
const legacyRefMatch = "invoice_id IS NULL AND LOWER(TRIM(legacy_invoice_ref)) = ?"

// itemsOfInvoice scopes a query to the items of one invoice. With legacy set,
// rows carrying only the legacy encoding are matched too.
func itemsOfInvoice(invoiceID uuid.UUID, legacy bool) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		if !legacy {
			return db.Where("invoice_id = ?", invoiceID)
		}
		return db.Where("invoice_id = ? OR ("+legacyRefMatch+")", invoiceID, invoiceID.String())
	}
}

// normalizeItemReferences moves every item of invoiceID onto the canonical
// encoding and clears leftover legacy values. It is idempotent.
func normalizeItemReferences(tx *gorm.DB, invoiceID uuid.UUID) (int64, error) {
	now := time.Now().UTC()
	moved := tx.Model(&models.InvoiceItemModel{}).
		Where(legacyRefMatch, invoiceID.String()).
		Updates(map[string]interface{}{
			"invoice_id":         invoiceID,
			"legacy_invoice_ref": nil,
			"updated_at":         now,
		})
	if moved.Error != nil {
		return 0, fmt.Errorf("normalize legacy item references: %w", moved.Error)
	}

	cleared := tx.Model(&models.InvoiceItemModel{}).
		Where("invoice_id = ? AND legacy_invoice_ref IS NOT NULL", invoiceID).
		Updates(map[string]interface{}{
			"legacy_invoice_ref": nil,
			"updated_at":         now,
		})
	if cleared.Error != nil {
		return 0, fmt.Errorf("clear legacy item references: %w", cleared.Error)
	}
	return moved.RowsAffected + cleared.RowsAffected, nil
}

// GormInvoiceItemRepository implements billing.InvoiceItemRepository using GORM
type GormInvoiceItemRepository struct {
	db          *gorm.DB
	legacyReads bool
}

// NewGormInvoiceItemRepository creates a new GormInvoiceItemRepository.
// Reads tolerate the legacy reference encoding until disabled with
// WithLegacyReads(false).
func NewGormInvoiceItemRepository(db *gorm.DB) *GormInvoiceItemRepository {
	return &GormInvoiceItemRepository{db: db, legacyReads: true}
}

// WithLegacyReads toggles matching of the legacy reference encoding on reads
func (r *GormInvoiceItemRepository) WithLegacyReads(enabled bool) *GormInvoiceItemRepository {
	r.legacyReads = enabled
	return r
}

// Create persists a new item
func (r *GormInvoiceItemRepository) Create(ctx context.Context, item *billing.InvoiceItem) error {
	model := models.InvoiceItemModelFromDomain(item)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("create invoice item: %w", err)
	}
	item.LegacyReference = false
	return nil
}

// FindByID finds an item by its ID. It returns nil when the item does not exist.
func (r *GormInvoiceItemRepository) FindByID(ctx context.Context, id uuid.UUID) (*billing.InvoiceItem, error) {
	var model models.InvoiceItemModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invoice item: %w", err)
	}
	return model.ToDomain(), nil
}

// FindByInvoice returns the items of an invoice, oldest first
func (r *GormInvoiceItemRepository) FindByInvoice(ctx context.Context, invoiceID uuid.UUID) ([]billing.InvoiceItem, error) {
	var rows []models.InvoiceItemModel
	if err := r.db.WithContext(ctx).
		Scopes(itemsOfInvoice(invoiceID, r.legacyReads)).
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find invoice items: %w", err)
	}
	return models.InvoiceItemsToDomain(rows), nil
}

// Update persists item changes. Snapshot columns are never rewritten and the
// invoice reference is written in the canonical encoding.
func (r *GormInvoiceItemRepository) Update(ctx context.Context, item *billing.InvoiceItem) error {
	model := models.InvoiceItemModelFromDomain(item)
	result := r.db.WithContext(ctx).
		Model(model).
		Select("*").
		Omit("id", "created_at", "original_service_data", "original_product_data", "snapshot_status").
		Updates(model)
	if result.Error != nil {
		return fmt.Errorf("update invoice item: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return billing.ErrInvoiceItemNotFound
	}
	item.LegacyReference = false
	return nil
}

// Delete removes the item permanently
func (r *GormInvoiceItemRepository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Delete(&models.InvoiceItemModel{}, "id = ?", id)
	if result.Error != nil {
		return false, fmt.Errorf("delete invoice item: %w", result.Error)
	}
	return result.RowsAffected > 0, nil
}

// NormalizeReferences rewrites legacy references of one invoice's items
func (r *GormInvoiceItemRepository) NormalizeReferences(ctx context.Context, invoiceID uuid.UUID) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		n, err = normalizeItemReferences(tx, invoiceID)
		return err
	})
	return n, err
}

const normalizeBatchSize = 200

// NormalizeAllReferences rewrites every legacy reference that parses as an
// invoice id. Rows whose legacy value is not an id are left untouched.
func (r *GormInvoiceItemRepository) NormalizeAllReferences(ctx context.Context) (int64, error) {
	var total int64
	var rows []models.InvoiceItemModel

	result := r.db.WithContext(ctx).
		Where("legacy_invoice_ref IS NOT NULL").
		FindInBatches(&rows, normalizeBatchSize, func(tx *gorm.DB, _ int) error {
			for i := range rows {
				invoiceID, _ := rows[i].ResolvedInvoiceID()
				if invoiceID == uuid.Nil {
					continue
				}
				res := r.db.WithContext(ctx).
					Model(&models.InvoiceItemModel{}).
					Where("id = ?", rows[i].ID).
					Updates(map[string]interface{}{
						"invoice_id":         invoiceID,
						"legacy_invoice_ref": nil,
						"updated_at":         time.Now().UTC(),
					})
				if res.Error != nil {
					return res.Error
				}
				total += res.RowsAffected
			}
			return nil
		})
	if result.Error != nil {
		return total, fmt.Errorf("normalize all item references: %w", result.Error)
	}
	return total, nil
}

// CountLegacyReferences counts items still carrying a legacy reference
func (r *GormInvoiceItemRepository) CountLegacyReferences(ctx context.Context, invoiceID *uuid.UUID) (int64, error) {
	query := r.db.WithContext(ctx).
		Model(&models.InvoiceItemModel{}).
		Where("legacy_invoice_ref IS NOT NULL")
	if invoiceID != nil {
		query = query.Where("invoice_id = ? OR LOWER(TRIM(legacy_invoice_ref)) = ?", *invoiceID, invoiceID.String())
	}
	var count int64
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count legacy item references: %w", err)
	}
	return count, nil
}
