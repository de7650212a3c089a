package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
	"github.com/vetclinic/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

const (
	defaultPerPage = 15
	maxPerPage     = 100
)

// InvoiceService handles invoice business operations
type InvoiceService struct {
	serviceBase
	items    billing.InvoiceItemRepository
	resolver *billing.SnapshotResolver
	sequence billing.InvoiceSequence
	clients  billing.ClientLookup
	pets     billing.PetLookup
	settings Settings
}

// NewInvoiceService creates a new InvoiceService. Items supplied at creation
// are snapshotted from catalog.
func NewInvoiceService(
	invoices billing.InvoiceRepository,
	items billing.InvoiceItemRepository,
	catalog billing.CatalogLookup,
	sequence billing.InvoiceSequence,
	clients billing.ClientLookup,
	pets billing.PetLookup,
	settings Settings,
) *InvoiceService {
	return &InvoiceService{
		serviceBase: newServiceBase(invoices),
		items:       items,
		resolver:    billing.NewSnapshotResolver(catalog),
		sequence:    sequence,
		clients:     clients,
		pets:        pets,
		settings:    settings,
	}
}

// SetClock overrides the time source of the service and its snapshots
func (s *InvoiceService) SetClock(now func() time.Time) {
	s.serviceBase.SetClock(now)
	s.resolver.WithClock(now)
}

// pendingLine is a creation-time item validated before its invoice exists
type pendingLine struct {
	params   billing.NewInvoiceItemParams
	snapshot billing.SnapshotResult
}

// prepareLines snapshots and validates the items of a new invoice
func (s *InvoiceService) prepareLines(ctx context.Context, lines []InvoiceLineRequest) ([]pendingLine, error) {
	pending := make([]pendingLine, 0, len(lines))
	for i, line := range lines {
		snapshot := s.resolveSnapshot(ctx, s.resolver, line.ServiceID, line.ProductID,
			zap.Int("line", i),
		)
		params := line.params(uuid.Nil)
		if err := params.Validate(snapshot); err != nil {
			var de *shared.DomainError
			if errors.As(err, &de) {
				return nil, shared.NewDomainError(de.Code, fmt.Sprintf("items[%d]: %s", i, de.Message))
			}
			return nil, err
		}
		pending = append(pending, pendingLine{params: params, snapshot: snapshot})
	}
	return pending, nil
}

// Create numbers and stores a new invoice. Items supplied with it are stored
// in the same transaction and the initial totals are computed from them.
func (s *InvoiceService) Create(ctx context.Context, req CreateInvoiceRequest) (*InvoiceResponse, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "create")
	defer span.End()

	now := s.now()
	params := billing.NewInvoiceParams{
		ClientID:        req.ClientID,
		PetID:           req.PetID,
		InvoiceDate:     now,
		DueDate:         req.DueDate,
		DiscountPercent: decimal.Zero,
		Deposit:         decimal.Zero,
		Notes:           req.Notes,
	}
	if req.InvoiceDate != nil {
		params.InvoiceDate = *req.InvoiceDate
	}
	if req.DiscountPercent != nil {
		params.DiscountPercent = *req.DiscountPercent
	}
	if req.Deposit != nil {
		params.Deposit = *req.Deposit
	}
	if err := params.Validate(); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	lines, err := s.prepareLines(ctx, req.Items)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	seq, err := s.sequence.Next(ctx, billing.YearMonth(now))
	if err != nil {
		telemetry.RecordError(span, err)
		s.log(ctx).Error("Invoice number sequence failed",
			zap.String("year_month", billing.YearMonth(now)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", billing.ErrSequenceUnavailable, err)
	}

	inv, err := billing.NewInvoice(billing.FormatInvoiceNumber(now, seq), params)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	inv.CreatedAt, inv.UpdatedAt = now, now

	items := make([]*billing.InvoiceItem, 0, len(lines))
	values := make([]billing.InvoiceItem, 0, len(lines))
	for _, line := range lines {
		line.params.InvoiceID = inv.ID
		item, err := billing.NewInvoiceItem(line.params, line.snapshot)
		if err != nil {
			telemetry.RecordError(span, err)
			return nil, err
		}
		item.CreatedAt, item.UpdatedAt = now, now
		items = append(items, item)
		values = append(values, *item)
	}
	if len(values) > 0 {
		inv.Recalculate(values)
		inv.UpdatedAt = now
	}

	if err := s.invoices.Create(ctx, inv, items...); err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}
	for _, item := range items {
		s.metrics.RecordItemCreated(ctx, item.SnapshotStatus.String())
	}
	telemetry.SetAttributes(span,
		telemetry.SpanAttrInvoiceID, inv.ID.String(),
		telemetry.SpanAttrInvoiceNumber, inv.InvoiceNumber,
	)
	s.metrics.RecordInvoiceCreated(ctx)
	s.log(ctx).Info("Invoice created",
		zap.String("invoice_id", inv.ID.String()),
		zap.String("invoice_number", inv.InvoiceNumber),
		zap.Int("items_count", len(items)),
		zap.String("total", inv.Total.String()),
	)
	s.publish(ctx, inv)

	response := ToInvoiceResponse(inv)
	if len(values) > 0 {
		response.Items = toInvoiceItemResponses(values)
	}
	return &response, nil
}

// GetByID returns an invoice with its items
func (s *InvoiceService) GetByID(ctx context.Context, id uuid.UUID, includeDeleted bool) (*InvoiceResponse, error) {
	inv, err := s.loadInvoice(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	items, err := s.items.FindByInvoice(ctx, id)
	if err != nil {
		return nil, err
	}
	response := ToInvoiceResponse(inv)
	response.Items = toInvoiceItemResponses(items)
	return &response, nil
}

// List returns a page of invoices. When auto-fix is requested and enabled,
// invoices whose stored totals diverge from their items are recalculated
// before they are returned.
func (s *InvoiceService) List(ctx context.Context, q ListInvoicesQuery) (*shared.Paginated[InvoiceResponse], error) {
	filter := s.buildFilter(ctx, q)

	invoices, err := s.invoices.FindAll(ctx, filter)
	if err != nil {
		return nil, err
	}
	total, err := s.invoices.Count(ctx, filter)
	if err != nil {
		return nil, err
	}

	autoFix := s.settings.AutoFixEnabled && (q.AutoFix == nil || *q.AutoFix)
	includeClient, includePet := parseInclude(q.Include, "client"), parseInclude(q.Include, "pet")

	responses := make([]InvoiceResponse, len(invoices))
	for i := range invoices {
		inv := &invoices[i]
		fixed := false
		if autoFix {
			inv, fixed = s.autoFix(ctx, inv)
		}
		responses[i] = ToInvoiceResponse(inv)
		responses[i].AutoFixed = fixed
		if includeClient {
			responses[i].Client = s.lookupClient(ctx, inv.ClientID)
		}
		if includePet && inv.PetID != nil {
			responses[i].Pet = s.lookupPet(ctx, *inv.PetID)
		}
	}

	page := shared.NewPaginated(responses, total, filter.Page, filter.PageSize)
	return &page, nil
}

func (s *InvoiceService) buildFilter(ctx context.Context, q ListInvoicesQuery) billing.InvoiceFilter {
	filter := billing.InvoiceFilter{
		Filter: shared.Filter{
			Page:     q.Page,
			PageSize: q.PerPage,
			OrderBy:  q.SortBy,
			OrderDir: strings.ToLower(q.SortOrder),
			Search:   strings.TrimSpace(q.Search),
		},
		ClientID:       q.ClientID,
		IncludeDeleted: q.IncludeDeleted,
	}
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.PageSize < 1 {
		filter.PageSize = defaultPerPage
	}
	if filter.PageSize > maxPerPage {
		filter.PageSize = maxPerPage
	}
	if q.PaymentStatus != "" {
		status := billing.PaymentStatus(q.PaymentStatus)
		filter.PaymentStatus = &status
	}

	if filter.Search != "" {
		if s.clients != nil {
			ids, err := s.clients.FindClientIDsByName(ctx, filter.Search)
			if err != nil {
				s.log(ctx).Warn("Client name search unavailable", zap.Error(err))
			}
			filter.SearchClientIDs = ids
		}
		if s.pets != nil {
			ids, err := s.pets.FindPetIDsByName(ctx, filter.Search)
			if err != nil {
				s.log(ctx).Warn("Pet name search unavailable", zap.Error(err))
			}
			filter.SearchPetIDs = ids
		}
	}
	return filter
}

// autoFix recalculates inv when its stored totals diverge from its items.
// Failures leave the listed record as stored.
func (s *InvoiceService) autoFix(ctx context.Context, inv *billing.Invoice) (*billing.Invoice, bool) {
	items, err := s.items.FindByInvoice(ctx, inv.ID)
	if err != nil {
		s.log(ctx).Warn("Auto-fix skipped, items unavailable",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		return inv, false
	}
	computed := billing.ComputeTotals(inv.DiscountPercent, items)
	if !computed.DivergesFrom(inv.Totals(), s.settings.Tolerance) {
		return inv, false
	}

	result, err := s.recalculate(ctx, inv.ID, TriggerAutoFix)
	if err != nil || result.Invoice == nil {
		s.log(ctx).Warn("Auto-fix failed",
			zap.String("invoice_id", inv.ID.String()),
			zap.Error(err),
		)
		return inv, false
	}
	s.metrics.RecordAutoFix(ctx)
	return result.Invoice, true
}

func (s *InvoiceService) lookupClient(ctx context.Context, id uuid.UUID) *billing.ClientSummary {
	if s.clients == nil {
		return nil
	}
	client, err := s.clients.GetClient(ctx, id)
	if err != nil {
		s.log(ctx).Warn("Client lookup failed", zap.String("client_id", id.String()), zap.Error(err))
		return nil
	}
	return client
}

func (s *InvoiceService) lookupPet(ctx context.Context, id uuid.UUID) *billing.PetSummary {
	if s.pets == nil {
		return nil
	}
	pet, err := s.pets.GetPet(ctx, id)
	if err != nil {
		s.log(ctx).Warn("Pet lookup failed", zap.String("pet_id", id.String()), zap.Error(err))
		return nil
	}
	return pet
}

// Update merges the request into the invoice. A discount change triggers
// recalculation after the header is stored.
func (s *InvoiceService) Update(ctx context.Context, id uuid.UUID, req UpdateInvoiceRequest) (*InvoiceResponse, error) {
	inv, err := s.loadInvoice(ctx, id, false)
	if err != nil {
		return nil, err
	}

	discountChanged, err := inv.ApplyChanges(billing.InvoiceChanges{
		ClientID:        req.ClientID,
		PetID:           req.PetID,
		ClearPet:        req.ClearPet,
		InvoiceDate:     req.InvoiceDate,
		DueDate:         req.DueDate,
		ClearDueDate:    req.ClearDueDate,
		DiscountPercent: req.DiscountPercent,
		Deposit:         req.Deposit,
		Notes:           req.Notes,
	})
	if err != nil {
		return nil, err
	}
	if err := s.invoices.Save(ctx, inv); err != nil {
		return nil, err
	}
	s.publish(ctx, inv)

	if discountChanged {
		result, err := s.recalculate(ctx, id, TriggerDiscountChanged)
		if err != nil {
			return nil, err
		}
		if result.Invoice != nil {
			inv = result.Invoice
		}
	}

	response := ToInvoiceResponse(inv)
	return &response, nil
}

// Delete soft-deletes an invoice. Its items are retained.
func (s *InvoiceService) Delete(ctx context.Context, id uuid.UUID) error {
	inv, err := s.loadInvoice(ctx, id, false)
	if err != nil {
		return err
	}
	if !inv.SoftDelete() {
		return nil
	}
	if err := s.invoices.Save(ctx, inv); err != nil {
		return err
	}
	s.log(ctx).Info("Invoice soft-deleted", zap.String("invoice_id", id.String()))
	s.publish(ctx, inv)
	return nil
}

// Restore reactivates a soft-deleted invoice
func (s *InvoiceService) Restore(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.loadInvoice(ctx, id, true)
	if err != nil {
		return nil, err
	}
	if inv.Restore() {
		if err := s.invoices.Save(ctx, inv); err != nil {
			return nil, err
		}
		s.publish(ctx, inv)
	}
	response := ToInvoiceResponse(inv)
	return &response, nil
}

// MarkPaid records payment of an active invoice. Repeated calls keep the
// first payment time.
func (s *InvoiceService) MarkPaid(ctx context.Context, id uuid.UUID) (*InvoiceResponse, error) {
	inv, err := s.loadInvoice(ctx, id, true)
	if err != nil {
		return nil, err
	}
	wasPaid := inv.IsPaid()
	if err := inv.MarkPaid(s.now()); err != nil {
		return nil, err
	}
	if !wasPaid {
		if err := s.invoices.Save(ctx, inv); err != nil {
			return nil, err
		}
		s.publish(ctx, inv)
	}
	response := ToInvoiceResponse(inv)
	return &response, nil
}

// ForceRecalculate recalculates totals regardless of divergence
func (s *InvoiceService) ForceRecalculate(ctx context.Context, id uuid.UUID) (*RecalculationResponse, error) {
	result, err := s.recalculate(ctx, id, TriggerForced)
	if err != nil {
		return nil, err
	}
	return toRecalculationResponse(result), nil
}

func parseInclude(include, relation string) bool {
	for _, part := range strings.Split(include, ",") {
		if strings.EqualFold(strings.TrimSpace(part), relation) {
			return true
		}
	}
	return false
}
