package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SnapshotStatus tells whether catalog data was frozen into an item.
type SnapshotStatus string

const (
	// SnapshotCaptured means every referenced catalog record was frozen
	SnapshotCaptured SnapshotStatus = "captured"
	// SnapshotMissing means a referenced record does not exist in the catalog
	SnapshotMissing SnapshotStatus = "missing"
	// SnapshotUnavailable means the catalog could not be consulted
	SnapshotUnavailable SnapshotStatus = "unavailable"
	// SnapshotNotApplicable means the item references no catalog record
	SnapshotNotApplicable SnapshotStatus = "not_applicable"
)

// String returns the string representation of SnapshotStatus
func (s SnapshotStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is one of the known values
func (s SnapshotStatus) IsValid() bool {
	switch s {
	case SnapshotCaptured, SnapshotMissing, SnapshotUnavailable, SnapshotNotApplicable:
		return true
	}
	return false
}

// CatalogSnapshot is the frozen copy of a catalog record stored on an item.
type CatalogSnapshot struct {
	ID            uuid.UUID       `json:"id"`
	Name          string          `json:"name"`
	Description   string          `json:"description"`
	Price         decimal.Decimal `json:"price"`
	Category      string          `json:"category"`
	Status        bool            `json:"status"`
	StockQuantity *int            `json:"stock_quantity,omitempty"`
	SnapshotDate  time.Time       `json:"snapshot_date"`
}

// SnapshotResult is the outcome of resolving the catalog references of an item.
// A failed resolution never prevents item creation; Err carries the cause so
// callers can log it.
type SnapshotResult struct {
	Status  SnapshotStatus
	Service *CatalogSnapshot
	Product *CatalogSnapshot
	Err     error
}

// Price returns the price of the captured snapshot, preferring the service.
func (r SnapshotResult) Price() (decimal.Decimal, bool) {
	if r.Service != nil {
		return r.Service.Price, true
	}
	if r.Product != nil {
		return r.Product.Price, true
	}
	return decimal.Zero, false
}

// ErrCatalogRecordMissing is reported in SnapshotResult.Err when a referenced
// record does not exist.
var ErrCatalogRecordMissing = errors.New("catalog record not found")

// SnapshotResolver captures catalog data at item creation time.
type SnapshotResolver struct {
	catalog CatalogLookup
	now     func() time.Time
}

// NewSnapshotResolver creates a resolver backed by the given catalog.
func NewSnapshotResolver(catalog CatalogLookup) *SnapshotResolver {
	return &SnapshotResolver{
		catalog: catalog,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the snapshot timestamp source.
func (r *SnapshotResolver) WithClock(now func() time.Time) *SnapshotResolver {
	r.now = now
	return r
}

// Resolve looks up every referenced record. Unavailable wins over missing,
// which wins over captured.
func (r *SnapshotResolver) Resolve(ctx context.Context, serviceID, productID *uuid.UUID) SnapshotResult {
	if serviceID == nil && productID == nil {
		return SnapshotResult{Status: SnapshotNotApplicable}
	}
	if r.catalog == nil {
		return SnapshotResult{Status: SnapshotUnavailable, Err: errors.New("catalog lookup not configured")}
	}

	result := SnapshotResult{Status: SnapshotCaptured}
	takenAt := r.now()

	if serviceID != nil {
		record, err := r.catalog.GetService(ctx, *serviceID)
		result.Service = r.capture(&result, record, err, takenAt, false)
	}
	if productID != nil {
		record, err := r.catalog.GetProduct(ctx, *productID)
		result.Product = r.capture(&result, record, err, takenAt, true)
	}
	return result
}

func (r *SnapshotResolver) capture(result *SnapshotResult, record *CatalogRecord, err error, takenAt time.Time, product bool) *CatalogSnapshot {
	switch {
	case err != nil:
		result.Status = SnapshotUnavailable
		result.Err = errors.Join(result.Err, err)
		return nil
	case record == nil:
		if result.Status != SnapshotUnavailable {
			result.Status = SnapshotMissing
		}
		result.Err = errors.Join(result.Err, ErrCatalogRecordMissing)
		return nil
	}

	snap := &CatalogSnapshot{
		ID:           record.ID,
		Name:         record.Name,
		Description:  record.Description,
		Price:        record.Price,
		Category:     record.Category,
		Status:       record.Active,
		SnapshotDate: takenAt,
	}
	if product && record.StockQuantity != nil {
		qty := *record.StockQuantity
		snap.StockQuantity = &qty
	}
	return snap
}
