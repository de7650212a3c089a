package persistence

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/infrastructure/persistence/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var yearMonthPattern = regexp.MustCompile(`^\d{4}$`)

// GormInvoiceSequence implements billing.InvoiceSequence on the
// invoice_sequences table. The increment runs as a row-level UPDATE so
// concurrent callers for the same year-month queue on the row.
type GormInvoiceSequence struct {
	db *gorm.DB
}

// NewGormInvoiceSequence creates a new GormInvoiceSequence
func NewGormInvoiceSequence(db *gorm.DB) *GormInvoiceSequence {
	return &GormInvoiceSequence{db: db}
}

// Next reserves and returns the next value for yearMonth (YYMM)
func (s *GormInvoiceSequence) Next(ctx context.Context, yearMonth string) (int64, error) {
	if !yearMonthPattern.MatchString(yearMonth) {
		return 0, fmt.Errorf("invalid year-month %q", yearMonth)
	}

	var value int64
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.ensureRow(tx, yearMonth); err != nil {
			return err
		}

		now := time.Now().UTC()
		res := tx.Model(&models.InvoiceSequenceModel{}).
			Where("year_month = ?", yearMonth).
			Updates(map[string]interface{}{
				"last_value": gorm.Expr("last_value + ?", 1),
				"updated_at": now,
			})
		if res.Error != nil {
			return fmt.Errorf("increment invoice sequence: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return fmt.Errorf("invoice sequence %s vanished during increment", yearMonth)
		}

		return tx.Model(&models.InvoiceSequenceModel{}).
			Where("year_month = ?", yearMonth).
			Select("last_value").
			Scan(&value).Error
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// Seed returns the highest suffix already used by stored invoice numbers of
// yearMonth. A fresh counter starts from it so existing data is respected.
func (s *GormInvoiceSequence) Seed(ctx context.Context, yearMonth string) (int64, error) {
	return seedFromInvoices(s.db.WithContext(ctx), yearMonth)
}

func (s *GormInvoiceSequence) ensureRow(tx *gorm.DB, yearMonth string) error {
	var existing int64
	if err := tx.Model(&models.InvoiceSequenceModel{}).
		Where("year_month = ?", yearMonth).
		Count(&existing).Error; err != nil {
		return fmt.Errorf("check invoice sequence: %w", err)
	}
	if existing > 0 {
		return nil
	}

	seed, err := seedFromInvoices(tx, yearMonth)
	if err != nil {
		return err
	}
	row := models.InvoiceSequenceModel{YearMonth: yearMonth, LastValue: seed, UpdatedAt: time.Now().UTC()}
	if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error; err != nil {
		return fmt.Errorf("seed invoice sequence: %w", err)
	}
	return nil
}

func seedFromInvoices(db *gorm.DB, yearMonth string) (int64, error) {
	prefix := billing.InvoiceNumberPrefix + yearMonth
	numbers, err := listNumbersWithPrefix(db, prefix)
	if err != nil {
		return 0, err
	}
	return billing.HighestSuffix(prefix, numbers), nil
}
