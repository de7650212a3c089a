package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
	"github.com/vetclinic/backend/internal/infrastructure/logger"
	"github.com/vetclinic/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// Recalculation triggers reported in logs and metrics
const (
	TriggerItemCreated     = "item_created"
	TriggerItemUpdated     = "item_updated"
	TriggerItemDeleted     = "item_deleted"
	TriggerDiscountChanged = "discount_changed"
	TriggerForced          = "forced"
	TriggerAutoFix         = "auto_fix"
	TriggerFixItemPrices   = "fix_item_prices"
)

// Settings controls repair behaviour of the billing services
type Settings struct {
	// AutoFixEnabled allows listing to repair diverging totals
	AutoFixEnabled bool
	// Tolerance is the accepted divergence between stored and computed totals
	Tolerance decimal.Decimal
}

// DefaultSettings enables auto-fix with the default tolerance
func DefaultSettings() Settings {
	return Settings{
		AutoFixEnabled: true,
		Tolerance:      billing.DefaultTotalsTolerance,
	}
}

// serviceBase holds the collaborators shared by the billing services
type serviceBase struct {
	invoices       billing.InvoiceRepository
	eventPublisher shared.EventPublisher
	metrics        *telemetry.BillingMetrics
	logger         *zap.Logger
	now            func() time.Time
}

func newServiceBase(invoices billing.InvoiceRepository) serviceBase {
	return serviceBase{
		invoices: invoices,
		metrics:  telemetry.NewNoopBillingMetrics(),
		logger:   zap.NewNop(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetEventPublisher sets the publisher receiving invoice events after commit
func (s *serviceBase) SetEventPublisher(publisher shared.EventPublisher) {
	s.eventPublisher = publisher
}

// SetMetrics replaces the no-op billing instruments
func (s *serviceBase) SetMetrics(m *telemetry.BillingMetrics) {
	if m != nil {
		s.metrics = m
	}
}

// SetLogger sets the fallback logger used when the context carries none
func (s *serviceBase) SetLogger(l *zap.Logger) {
	if l != nil {
		s.logger = l
	}
}

// SetClock overrides the time source
func (s *serviceBase) SetClock(now func() time.Time) {
	s.now = now
}

func (s *serviceBase) log(ctx context.Context) *zap.Logger {
	return logger.WithTrace(ctx, s.contextLogger(ctx))
}

func (s *serviceBase) contextLogger(ctx context.Context) *zap.Logger {
	if logger.GetRequestID(ctx) != "" {
		return logger.FromContext(ctx)
	}
	return s.logger
}

// publish sends pending events of inv and clears them. Delivery failures are
// logged and never fail the operation that already committed.
func (s *serviceBase) publish(ctx context.Context, inv *billing.Invoice) {
	if inv == nil {
		return
	}
	events := inv.GetDomainEvents()
	defer inv.ClearDomainEvents()
	if s.eventPublisher == nil || len(events) == 0 {
		return
	}
	if err := s.eventPublisher.Publish(ctx, events...); err != nil {
		s.log(ctx).Warn("Failed to publish invoice events",
			zap.String("invoice_id", inv.ID.String()),
			zap.Int("event_count", len(events)),
			zap.Error(err),
		)
	}
}

// resolveSnapshot freezes the catalog records referenced by one item.
// A missing or unreachable record is logged and counted; the item is still billed.
func (s *serviceBase) resolveSnapshot(
	ctx context.Context,
	resolver *billing.SnapshotResolver,
	serviceID, productID *uuid.UUID,
	fields ...zap.Field,
) billing.SnapshotResult {
	snapshot := resolver.Resolve(ctx, serviceID, productID)
	if snapshot.Status == billing.SnapshotMissing || snapshot.Status == billing.SnapshotUnavailable {
		s.metrics.RecordSnapshotFailure(ctx, snapshot.Status.String())
		s.log(ctx).Warn("Catalog snapshot not captured", append(fields,
			zap.String("snapshot_status", snapshot.Status.String()),
			zap.Error(snapshot.Err),
		)...)
	}
	return snapshot
}

// loadInvoice returns the invoice or ErrInvoiceNotFound
func (s *serviceBase) loadInvoice(ctx context.Context, id uuid.UUID, includeDeleted bool) (*billing.Invoice, error) {
	inv, err := s.invoices.FindByID(ctx, id, includeDeleted)
	if err != nil {
		return nil, err
	}
	if inv == nil {
		return nil, billing.ErrInvoiceNotFound
	}
	return inv, nil
}

// recalculate runs the serialized recalculation of one invoice and reports it
func (s *serviceBase) recalculate(ctx context.Context, id uuid.UUID, trigger string) (*billing.RecalcResult, error) {
	ctx, span := telemetry.StartServiceSpan(ctx, "invoice", "recalculate",
		telemetry.SpanAttrInvoiceID, id.String(),
		"trigger", trigger,
	)
	defer span.End()

	start := time.Now()
	result, err := s.invoices.Recalculate(ctx, id)
	s.metrics.RecordRecalculation(ctx, trigger, time.Since(start), err)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	telemetry.SetAttributes(span,
		telemetry.SpanAttrItemCount, result.ItemCount,
		telemetry.SpanAttrTotalsChanged, result.Changed(),
	)
	s.metrics.RecordNormalizedReferences(ctx, result.NormalizedRefs)
	if result.Changed() || result.NormalizedRefs > 0 || result.RepairedNetPrices > 0 {
		s.log(ctx).Info("Invoice totals recalculated",
			zap.String("invoice_id", id.String()),
			zap.String("trigger", trigger),
			zap.String("total_before", result.Before.Total.String()),
			zap.String("total_after", result.After.Total.String()),
			zap.Int("items_count", result.ItemCount),
			zap.Int64("normalized_refs", result.NormalizedRefs),
			zap.Int("repaired_net_prices", result.RepairedNetPrices),
		)
	}
	s.publish(ctx, result.Invoice)
	return result, nil
}
