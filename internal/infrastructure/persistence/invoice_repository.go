package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var errDuplicateInvoiceNumber = shared.NewDomainError(shared.CodeConcurrencyConflict, "Invoice number already exists")

// GormInvoiceRepository implements billing.InvoiceRepository using GORM
type GormInvoiceRepository struct {
	db          *gorm.DB
	legacyReads bool
	recalcLocks *keyedMutex
}

// NewGormInvoiceRepository creates a new GormInvoiceRepository
func NewGormInvoiceRepository(db *gorm.DB) *GormInvoiceRepository {
	return &GormInvoiceRepository{
		db:          db,
		legacyReads: true,
		recalcLocks: newKeyedMutex(),
	}
}

// WithLegacyReads toggles matching of legacy item references during recalculation
func (r *GormInvoiceRepository) WithLegacyReads(enabled bool) *GormInvoiceRepository {
	r.legacyReads = enabled
	return r
}

// Create persists a new invoice and its initial items. Nothing is stored
// when any row fails.
func (r *GormInvoiceRepository) Create(ctx context.Context, inv *billing.Invoice, items ...*billing.InvoiceItem) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(models.InvoiceModelFromDomain(inv)).Error; err != nil {
			return err
		}
		for _, item := range items {
			if err := tx.Create(models.InvoiceItemModelFromDomain(item)).Error; err != nil {
				return fmt.Errorf("item %s: %w", item.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return errDuplicateInvoiceNumber
		}
		return fmt.Errorf("create invoice: %w", err)
	}
	for _, item := range items {
		item.LegacyReference = false
	}
	return nil
}

// FindByID finds an invoice by its ID. Soft-deleted invoices are only
// returned when includeDeleted is set; nil means not found.
func (r *GormInvoiceRepository) FindByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*billing.Invoice, error) {
	query := r.db.WithContext(ctx).Where("id = ?", id)
	if !includeDeleted {
		query = query.Where("status = ?", true)
	}

	var model models.InvoiceModel
	if err := query.First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("find invoice: %w", err)
	}
	return model.ToDomain(), nil
}

// FindAll finds a page of invoices matching the filter
func (r *GormInvoiceRepository) FindAll(ctx context.Context, filter billing.InvoiceFilter) ([]billing.Invoice, error) {
	var rows []models.InvoiceModel
	query := r.applyFilter(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list invoices: %w", err)
	}

	invoices := make([]billing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, nil
}

// Count counts invoices matching the filter
func (r *GormInvoiceRepository) Count(ctx context.Context, filter billing.InvoiceFilter) (int64, error) {
	var count int64
	query := r.applyFilterWithoutPagination(r.db.WithContext(ctx).Model(&models.InvoiceModel{}), filter)
	if err := query.Count(&count).Error; err != nil {
		return 0, fmt.Errorf("count invoices: %w", err)
	}
	return count, nil
}

// Save updates the invoice header with an optimistic version check.
// Totals are owned by Recalculate and are not written here.
func (r *GormInvoiceRepository) Save(ctx context.Context, inv *billing.Invoice) error {
	model := models.InvoiceModelFromDomain(inv)
	nextVersion := inv.Version + 1

	result := r.db.WithContext(ctx).
		Model(&models.InvoiceModel{}).
		Where("id = ? AND version = ?", inv.ID, inv.Version).
		Updates(map[string]interface{}{
			"invoice_number":   model.InvoiceNumber,
			"client_id":        model.ClientID,
			"pet_id":           model.PetID,
			"invoice_date":     model.InvoiceDate,
			"due_date":         model.DueDate,
			"discount_percent": model.DiscountPercent,
			"deposit":          model.Deposit,
			"notes":            model.Notes,
			"status":           model.Status,
			"payment_status":   model.PaymentStatus,
			"paid_at":          model.PaidAt,
			"version":          nextVersion,
			"updated_at":       model.UpdatedAt,
		})
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return errDuplicateInvoiceNumber
		}
		return fmt.Errorf("save invoice: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var exists int64
		if err := r.db.WithContext(ctx).Model(&models.InvoiceModel{}).Where("id = ?", inv.ID).Count(&exists).Error; err != nil {
			return fmt.Errorf("save invoice: %w", err)
		}
		if exists == 0 {
			return billing.ErrInvoiceNotFound
		}
		return shared.NewDomainError(shared.CodeConcurrencyConflict, "The invoice has been modified by another request")
	}

	inv.Version = nextVersion
	return nil
}

// Recalculate derives totals from the invoice's items inside one transaction
// that holds the invoice row lock. Legacy item references are normalized and
// stale item net prices repaired before the totals are written.
func (r *GormInvoiceRepository) Recalculate(ctx context.Context, id uuid.UUID) (*billing.RecalcResult, error) {
	unlock := r.recalcLocks.Lock(id)
	defer unlock()

	var result *billing.RecalcResult
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx
		if supportsRowLocks(tx) {
			query = query.Clauses(clause.Locking{Strength: "UPDATE"})
		}
		var model models.InvoiceModel
		if err := query.First(&model, "id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return billing.ErrInvoiceNotFound
			}
			return fmt.Errorf("lock invoice: %w", err)
		}

		normalized, err := normalizeItemReferences(tx, id)
		if err != nil {
			return err
		}

		var rows []models.InvoiceItemModel
		if err := tx.Scopes(itemsOfInvoice(id, r.legacyReads)).
			Order("created_at ASC, id ASC").
			Find(&rows).Error; err != nil {
			return fmt.Errorf("load invoice items: %w", err)
		}
		items := models.InvoiceItemsToDomain(rows)

		now := time.Now().UTC()
		repaired := 0
		for i := range items {
			if !items[i].HasStaleNetPrice() {
				continue
			}
			items[i].NetPrice = items[i].ComputedNetPrice()
			if err := tx.Model(&models.InvoiceItemModel{}).
				Where("id = ?", items[i].ID).
				Updates(map[string]interface{}{"net_price": items[i].NetPrice, "updated_at": now}).Error; err != nil {
				return fmt.Errorf("repair item net price: %w", err)
			}
			repaired++
		}

		inv := model.ToDomain()
		before := inv.Recalculate(items)
		inv.UpdatedAt = now
		if err := tx.Model(&models.InvoiceModel{}).
			Where("id = ?", id).
			Updates(map[string]interface{}{
				"subtotal":        inv.Subtotal,
				"discount_amount": inv.DiscountAmount,
				"total":           inv.Total,
				"updated_at":      now,
			}).Error; err != nil {
			return fmt.Errorf("store invoice totals: %w", err)
		}

		result = &billing.RecalcResult{
			InvoiceID:         inv.ID,
			InvoiceNumber:     inv.InvoiceNumber,
			Before:            before,
			After:             inv.Totals(),
			ItemCount:         len(items),
			NormalizedRefs:    normalized,
			RepairedNetPrices: repaired,
			Invoice:           inv,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// FindWithoutNumber returns invoices stored without a number, oldest first
func (r *GormInvoiceRepository) FindWithoutNumber(ctx context.Context) ([]billing.Invoice, error) {
	var rows []models.InvoiceModel
	if err := r.db.WithContext(ctx).
		Where("invoice_number IS NULL OR invoice_number = ''").
		Order("created_at ASC, id ASC").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("find invoices without number: %w", err)
	}
	invoices := make([]billing.Invoice, len(rows))
	for i := range rows {
		invoices[i] = *rows[i].ToDomain()
	}
	return invoices, nil
}

// ListNumbersWithPrefix returns every invoice number starting with prefix
func (r *GormInvoiceRepository) ListNumbersWithPrefix(ctx context.Context, prefix string) ([]string, error) {
	return listNumbersWithPrefix(r.db.WithContext(ctx), prefix)
}

func listNumbersWithPrefix(db *gorm.DB, prefix string) ([]string, error) {
	var numbers []string
	if err := db.Model(&models.InvoiceModel{}).
		Where("invoice_number LIKE ?", prefix+"%").
		Pluck("invoice_number", &numbers).Error; err != nil {
		return nil, fmt.Errorf("list invoice numbers: %w", err)
	}
	return numbers, nil
}

// CountByState summarizes stored invoices
func (r *GormInvoiceRepository) CountByState(ctx context.Context) (billing.InvoiceStateCounts, error) {
	var counts billing.InvoiceStateCounts
	db := r.db.WithContext(ctx)

	queries := []struct {
		target *int64
		model  interface{}
		where  string
		args   []interface{}
	}{
		{&counts.Active, &models.InvoiceModel{}, "status = ?", []interface{}{true}},
		{&counts.Deleted, &models.InvoiceModel{}, "status = ?", []interface{}{false}},
		{&counts.Paid, &models.InvoiceModel{}, "payment_status = ?", []interface{}{billing.PaymentStatusPaid}},
		{&counts.MissingNumber, &models.InvoiceModel{}, "invoice_number IS NULL OR invoice_number = ''", nil},
		{&counts.LegacyItemRefs, &models.InvoiceItemModel{}, "legacy_invoice_ref IS NOT NULL", nil},
	}
	for _, q := range queries {
		if err := db.Model(q.model).Where(q.where, q.args...).Count(q.target).Error; err != nil {
			return counts, fmt.Errorf("count invoices by state: %w", err)
		}
	}
	return counts, nil
}

// applyFilter applies filtering, ordering and pagination
func (r *GormInvoiceRepository) applyFilter(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	query = r.applyFilterWithoutPagination(query, filter)

	query = invoiceSort.apply(query, filter.OrderBy, filter.OrderDir)

	if filter.PageSize > 0 {
		query = query.Offset(filter.Offset()).Limit(filter.PageSize)
	}
	return query
}

// applyFilterWithoutPagination applies filter options without pagination
func (r *GormInvoiceRepository) applyFilterWithoutPagination(query *gorm.DB, filter billing.InvoiceFilter) *gorm.DB {
	if !filter.IncludeDeleted {
		query = query.Where("status = ?", true)
	}
	if filter.ClientID != nil {
		query = query.Where("client_id = ?", *filter.ClientID)
	}
	if filter.PaymentStatus != nil {
		query = query.Where("payment_status = ?", *filter.PaymentStatus)
	}

	if pattern := likePattern(filter.Search); pattern != "" {
		cond := `LOWER(invoice_number) LIKE ? ESCAPE '\'`
		args := []interface{}{pattern}
		if len(filter.SearchClientIDs) > 0 {
			cond += " OR client_id IN ?"
			args = append(args, filter.SearchClientIDs)
		}
		if len(filter.SearchPetIDs) > 0 {
			cond += " OR pet_id IN ?"
			args = append(args, filter.SearchPetIDs)
		}
		query = query.Where("("+cond+")", args...)
	}
	return query
}

// supportsRowLocks reports whether the dialect understands SELECT ... FOR UPDATE
func supportsRowLocks(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
