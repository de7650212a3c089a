package billing

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/billing"
	"go.uber.org/zap"
)

// Item price fix skip causes
const (
	skipAlreadyPriced = "already_priced"
	skipNoReference   = "no_catalog_reference"
	skipNoPrice       = "catalog_price_unavailable"
)

// MaintenanceService exposes diagnosis and repair operations over stored
// billing data
type MaintenanceService struct {
	serviceBase
	items     billing.InvoiceItemRepository
	catalog   billing.CatalogLookup
	sequence  billing.InvoiceSequence
	tolerance decimal.Decimal
}

// NewMaintenanceService creates a new MaintenanceService.
// sequence may be nil, in which case backfilled numbers are computed from
// the numbers already stored.
func NewMaintenanceService(
	invoices billing.InvoiceRepository,
	items billing.InvoiceItemRepository,
	catalog billing.CatalogLookup,
	sequence billing.InvoiceSequence,
	settings Settings,
) *MaintenanceService {
	return &MaintenanceService{
		serviceBase: newServiceBase(invoices),
		items:       items,
		catalog:     catalog,
		sequence:    sequence,
		tolerance:   settings.Tolerance,
	}
}

// Diagnose compares stored and derived totals of an invoice without writing
func (s *MaintenanceService) Diagnose(ctx context.Context, id uuid.UUID) (*DiagnosisResponse, error) {
	inv, err := s.loadInvoice(ctx, id, true)
	if err != nil {
		return nil, err
	}
	items, err := s.items.FindByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	computed := billing.ComputeTotals(inv.DiscountPercent, items)
	response := &DiagnosisResponse{
		InvoiceID:     inv.ID,
		InvoiceNumber: inv.InvoiceNumber,
		Status:        inv.Status,
		Stored:        inv.Totals(),
		Computed:      computed,
		Diverges:      computed.DivergesFrom(inv.Totals(), s.tolerance),
		Tolerance:     s.tolerance,
		Items:         make([]ItemDiagnosis, len(items)),
	}
	for i := range items {
		item := &items[i]
		response.Items[i] = ItemDiagnosis{
			ID:              item.ID,
			ItemName:        item.ItemName,
			UnitPrice:       item.UnitPrice,
			Quantity:        item.Quantity,
			DiscountPercent: item.DiscountPercent,
			StoredNetPrice:  item.NetPrice,
			ComputedNet:     item.ComputedNetPrice(),
			StaleNetPrice:   item.HasStaleNetPrice(),
			LegacyReference: item.LegacyReference,
		}
		if item.LegacyReference {
			response.LegacyReferences++
		}
	}
	return response, nil
}

// NormalizeInvoiceReferences rewrites the legacy item references of one invoice
func (s *MaintenanceService) NormalizeInvoiceReferences(ctx context.Context, id uuid.UUID) (*NormalizeResponse, error) {
	if _, err := s.loadInvoice(ctx, id, true); err != nil {
		return nil, err
	}
	n, err := s.items.NormalizeReferences(ctx, id)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordNormalizedReferences(ctx, n)
	remaining, err := s.items.CountLegacyReferences(ctx, &id)
	if err != nil {
		return nil, err
	}
	return &NormalizeResponse{InvoiceID: &id, Normalized: n, Remaining: remaining}, nil
}

// NormalizeAllReferences rewrites every legacy item reference
func (s *MaintenanceService) NormalizeAllReferences(ctx context.Context) (*NormalizeResponse, error) {
	n, err := s.items.NormalizeAllReferences(ctx)
	if err != nil {
		return nil, err
	}
	s.metrics.RecordNormalizedReferences(ctx, n)
	remaining, err := s.items.CountLegacyReferences(ctx, nil)
	if err != nil {
		return nil, err
	}
	s.log(ctx).Info("Legacy item references normalized",
		zap.Int64("normalized", n),
		zap.Int64("remaining", remaining),
	)
	return &NormalizeResponse{Normalized: n, Remaining: remaining}, nil
}

// FixItemPrices fills zero unit prices of an active invoice's items from the
// catalog, falling back to the frozen snapshot, then recalculates the invoice
func (s *MaintenanceService) FixItemPrices(ctx context.Context, id uuid.UUID) (*FixItemPricesResponse, error) {
	inv, err := s.loadInvoice(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !inv.IsActive() {
		return nil, billing.ErrInvoiceDeleted
	}
	items, err := s.items.FindByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}

	response := &FixItemPricesResponse{InvoiceID: id, Items: make([]ItemPriceFix, 0, len(items))}
	for i := range items {
		item := &items[i]
		fix := ItemPriceFix{ItemID: item.ID, ItemName: item.ItemName, OldPrice: item.UnitPrice, NewPrice: item.UnitPrice}
		switch {
		case item.UnitPrice.GreaterThan(decimal.Zero):
			fix.SkipCause = skipAlreadyPriced
		case item.ServiceID == nil && item.ProductID == nil:
			fix.SkipCause = skipNoReference
		default:
			price, ok := s.catalogPrice(ctx, item)
			if !ok || !item.RepriceFromCatalog(price) {
				fix.SkipCause = skipNoPrice
				break
			}
			if err := s.items.Update(ctx, item); err != nil {
				return nil, err
			}
			fix.NewPrice = item.UnitPrice
			fix.Repriced = true
		}
		response.Items = append(response.Items, fix)
	}

	result, err := s.recalculate(ctx, id, TriggerFixItemPrices)
	if err != nil {
		return nil, err
	}
	response.Recalculation = toRecalculationResponse(result)
	return response, nil
}

// catalogPrice returns the current catalog price of the item's reference,
// or its snapshot price when the catalog cannot provide one
func (s *MaintenanceService) catalogPrice(ctx context.Context, item *billing.InvoiceItem) (decimal.Decimal, bool) {
	if s.catalog != nil {
		var (
			record *billing.CatalogRecord
			err    error
		)
		if item.ServiceID != nil {
			record, err = s.catalog.GetService(ctx, *item.ServiceID)
		} else {
			record, err = s.catalog.GetProduct(ctx, *item.ProductID)
		}
		if err != nil {
			s.log(ctx).Warn("Catalog lookup failed during price fix",
				zap.String("item_id", item.ID.String()),
				zap.Error(err),
			)
		}
		if record != nil && record.Price.GreaterThan(decimal.Zero) {
			return record.Price, true
		}
	}
	snapshot := billing.SnapshotResult{Service: item.OriginalServiceData, Product: item.OriginalProductData}
	price, ok := snapshot.Price()
	return price, ok && price.GreaterThan(decimal.Zero)
}

// BackfillNumbers assigns a number to every invoice stored without one,
// using the year-month the invoice was created in
func (s *MaintenanceService) BackfillNumbers(ctx context.Context) (*BackfillResponse, error) {
	invoices, err := s.invoices.FindWithoutNumber(ctx)
	if err != nil {
		return nil, err
	}

	response := &BackfillResponse{Assigned: make([]NumberAssignment, 0, len(invoices))}
	for i := range invoices {
		inv := &invoices[i]
		number, err := s.nextNumberFor(ctx, inv)
		if err == nil {
			err = inv.AssignNumber(number)
		}
		if err == nil {
			err = s.invoices.Save(ctx, inv)
		}
		if err != nil {
			response.Failed++
			s.log(ctx).Warn("Invoice number backfill failed",
				zap.String("invoice_id", inv.ID.String()),
				zap.Error(err),
			)
			continue
		}
		response.Assigned = append(response.Assigned, NumberAssignment{InvoiceID: inv.ID, InvoiceNumber: number})
	}
	if len(invoices) > 0 {
		s.log(ctx).Info("Invoice numbers backfilled",
			zap.Int("assigned", len(response.Assigned)),
			zap.Int("failed", response.Failed),
		)
	}
	return response, nil
}

func (s *MaintenanceService) nextNumberFor(ctx context.Context, inv *billing.Invoice) (string, error) {
	created := inv.CreatedAt
	if created.IsZero() {
		created = s.now()
	}
	if s.sequence != nil {
		n, err := s.sequence.Next(ctx, billing.YearMonth(created))
		if err != nil {
			return "", billing.ErrSequenceUnavailable
		}
		return billing.FormatInvoiceNumber(created, n), nil
	}
	existing, err := s.invoices.ListNumbersWithPrefix(ctx, billing.InvoicePrefix(created))
	if err != nil {
		return "", err
	}
	return billing.NextInvoiceNumber(created, existing), nil
}

// Overview summarizes stored invoices by state
func (s *MaintenanceService) Overview(ctx context.Context) (*billing.InvoiceStateCounts, error) {
	counts, err := s.invoices.CountByState(ctx)
	if err != nil {
		return nil, err
	}
	return &counts, nil
}
