package event

import (
	"context"

	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
	"github.com/vetclinic/backend/internal/infrastructure/telemetry"
	"go.uber.org/zap"
)

// AuditLogHandler writes every invoice event to the log as an encoded
// envelope
type AuditLogHandler struct {
	codec  *Codec
	logger *zap.Logger
}

func NewAuditLogHandler(codec *Codec, logger *zap.Logger) *AuditLogHandler {
	return &AuditLogHandler{codec: codec, logger: logger.Named("audit")}
}

func (h *AuditLogHandler) EventTypes() []string {
	return nil
}

func (h *AuditLogHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	data, err := h.codec.Encode(evt)
	if err != nil {
		return err
	}
	h.logger.Info("Invoice event",
		zap.String("event_type", evt.EventType()),
		zap.String("invoice_id", evt.AggregateID().String()),
		zap.String("trace_id", telemetry.GetTraceID(ctx)),
		zap.ByteString("envelope", data),
	)
	return nil
}

// MetricsHandler counts invoice events by type
type MetricsHandler struct {
	metrics *telemetry.BillingMetrics
}

func NewMetricsHandler(metrics *telemetry.BillingMetrics) *MetricsHandler {
	return &MetricsHandler{metrics: metrics}
}

func (h *MetricsHandler) EventTypes() []string {
	return []string{
		billing.EventTypeInvoiceCreated,
		billing.EventTypeInvoiceTotalsRecalculated,
		billing.EventTypeInvoicePaid,
		billing.EventTypeInvoiceSoftDeleted,
		billing.EventTypeInvoiceRestored,
	}
}

func (h *MetricsHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	h.metrics.RecordInvoiceEvent(ctx, evt.EventType())
	return nil
}

// SubscribeBillingHandlers wires the audit and metrics handlers into bus.
// When store is non-nil the audit handler skips redelivered events.
func SubscribeBillingHandlers(bus shared.EventSubscriber, codec *Codec, metrics *telemetry.BillingMetrics, store shared.IdempotencyStore, cfg shared.IdempotencyConfig, logger *zap.Logger) {
	var audit shared.EventHandler = NewAuditLogHandler(codec, logger)
	if store != nil {
		audit = NewIdempotentHandler(audit, store, cfg, logger)
	}
	bus.Subscribe(audit)
	bus.Subscribe(NewMetricsHandler(metrics))
}
