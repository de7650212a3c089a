package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// InvoiceItemService handles invoice item operations. Every write is
// followed by a serialized recalculation of the parent invoice.
type InvoiceItemService struct {
	serviceBase
	items    billing.InvoiceItemRepository
	catalog  billing.CatalogLookup
	resolver *billing.SnapshotResolver
}

// NewInvoiceItemService creates a new InvoiceItemService. Snapshots are
// frozen from catalog, which must not serve cached records.
func NewInvoiceItemService(
	invoices billing.InvoiceRepository,
	items billing.InvoiceItemRepository,
	catalog billing.CatalogLookup,
) *InvoiceItemService {
	return &InvoiceItemService{
		serviceBase: newServiceBase(invoices),
		items:       items,
		catalog:     catalog,
		resolver:    billing.NewSnapshotResolver(catalog),
	}
}

// SetDisplayCatalog sets the lookup attaching catalog data to read
// responses. Snapshots keep using the lookup given to the constructor.
func (s *InvoiceItemService) SetDisplayCatalog(catalog billing.CatalogLookup) {
	if catalog != nil {
		s.catalog = catalog
	}
}

// SetClock overrides the time source of the service and its snapshots
func (s *InvoiceItemService) SetClock(now func() time.Time) {
	s.serviceBase.SetClock(now)
	s.resolver.WithClock(now)
}

// activeInvoice loads the parent invoice and rejects soft-deleted ones
func (s *InvoiceItemService) activeInvoice(ctx context.Context, id uuid.UUID) (*billing.Invoice, error) {
	inv, err := s.loadInvoice(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if !inv.IsActive() {
		return nil, billing.ErrInvoiceDeleted
	}
	return inv, nil
}

func (s *InvoiceItemService) loadItem(ctx context.Context, id uuid.UUID) (*billing.InvoiceItem, error) {
	item, err := s.items.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, billing.ErrInvoiceItemNotFound
	}
	return item, nil
}

// Create adds an item to an active invoice. Catalog data is frozen into the
// item when available; a failed lookup is logged and does not prevent creation.
func (s *InvoiceItemService) Create(ctx context.Context, req CreateInvoiceItemRequest) (*ItemMutationResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice_item", "create",
		telemetry.SpanAttrInvoiceID, req.InvoiceID.String(),
	)
	defer span.End()

	inv, err := s.activeInvoice(ctx, req.InvoiceID)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	snapshot := s.resolveSnapshot(ctx, s.resolver, req.ServiceID, req.ProductID,
		zap.String("invoice_id", inv.ID.String()),
	)
	params := req.line().params(inv.ID)
	item, err := billing.NewInvoiceItem(params, snapshot)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	if err := s.items.Create(ctx, item); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	telemetry.SetAttributes(span, telemetry.SpanAttrItemID, item.ID.String())
	s.metrics.RecordItemCreated(ctx, item.SnapshotStatus.String())

	response := ToInvoiceItemResponse(item)
	return &ItemMutationResponse{
		Item:          &response,
		InvoiceTotals: s.totalsAfterWrite(ctx, inv, TriggerItemCreated),
	}, nil
}

// totalsAfterWrite recalculates the parent invoice. The item write already
// committed, so a failed recalculation is logged and the stored totals are
// returned; auto-fix or force-recalculate repair them later.
func (s *InvoiceItemService) totalsAfterWrite(ctx context.Context, inv *billing.Invoice, trigger string) billing.Totals {
	result, err := s.recalculate(ctx, inv.ID, trigger)
	if err != nil {
		s.log(ctx).Error("Recalculation after item write failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.String("trigger", trigger),
			zap.Error(err),
		)
		return inv.Totals()
	}
	return result.After
}

// ListByInvoice returns the items of an invoice, including soft-deleted
// invoices. include may name "service" and "product" to attach live catalog data.
func (s *InvoiceItemService) ListByInvoice(ctx context.Context, invoiceID uuid.UUID, include string) ([]InvoiceItemResponse, error) {
	if _, err := s.loadInvoice(ctx, invoiceID, true); err != nil {
		return nil, err
	}
	items, err := s.items.FindByInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	responses := toInvoiceItemResponses(items)
	s.attachCatalog(ctx, responses, include)
	return responses, nil
}

// GetByID returns one item
func (s *InvoiceItemService) GetByID(ctx context.Context, id uuid.UUID, include string) (*InvoiceItemResponse, error) {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	responses := []InvoiceItemResponse{ToInvoiceItemResponse(item)}
	s.attachCatalog(ctx, responses, include)
	return &responses[0], nil
}

func (s *InvoiceItemService) attachCatalog(ctx context.Context, responses []InvoiceItemResponse, include string) {
	if s.catalog == nil {
		return
	}
	withService, withProduct := parseInclude(include, "service"), parseInclude(include, "product")
	for i := range responses {
		if withService && responses[i].ServiceID != nil {
			record, err := s.catalog.GetService(ctx, *responses[i].ServiceID)
			if err != nil {
				s.log(ctx).Warn("Service lookup failed", zap.String("service_id", responses[i].ServiceID.String()), zap.Error(err))
			}
			responses[i].Service = toCatalogRecordResponse(record)
		}
		if withProduct && responses[i].ProductID != nil {
			record, err := s.catalog.GetProduct(ctx, *responses[i].ProductID)
			if err != nil {
				s.log(ctx).Warn("Product lookup failed", zap.String("product_id", responses[i].ProductID.String()), zap.Error(err))
			}
			responses[i].Product = toCatalogRecordResponse(record)
		}
	}
}

// Update merges the request into an item. Snapshots are left untouched.
func (s *InvoiceItemService) Update(ctx context.Context, id uuid.UUID, req UpdateInvoiceItemRequest) (*ItemMutationResponse, error) {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	inv, err := s.activeInvoice(ctx, item.InvoiceID)
	if err != nil {
		return nil, err
	}
	if _, err := item.ApplyChanges(req.toChanges()); err != nil {
		return nil, err
	}
	if err := s.items.Update(ctx, item); err != nil {
		return nil, err
	}

	response := ToInvoiceItemResponse(item)
	return &ItemMutationResponse{
		Item:          &response,
		InvoiceTotals: s.totalsAfterWrite(ctx, inv, TriggerItemUpdated),
	}, nil
}

// Delete removes an item permanently and recalculates its invoice
func (s *InvoiceItemService) Delete(ctx context.Context, id uuid.UUID) (*ItemMutationResponse, error) {
	item, err := s.loadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	inv, err := s.activeInvoice(ctx, item.InvoiceID)
	if err != nil {
		return nil, err
	}
	deleted, err := s.items.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	if !deleted {
		return nil, billing.ErrInvoiceItemNotFound
	}
	return &ItemMutationResponse{
		InvoiceTotals: s.totalsAfterWrite(ctx, inv, TriggerItemDeleted),
	}, nil
}
