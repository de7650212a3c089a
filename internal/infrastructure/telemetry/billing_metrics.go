package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// BillingMetrics holds the billing instruments.
type BillingMetrics struct {
	invoicesCreated      *Counter
	itemsCreated         *Counter
	snapshotFailures     *Counter
	recalculations       *Counter
	recalcDuration       *Histogram
	autoFixes            *Counter
	normalizedReferences *Counter
	invoiceEvents        *Counter
}

// NewBillingMetrics creates the billing instruments on meter
func NewBillingMetrics(meter metric.Meter) (*BillingMetrics, error) {
	var (
		m   BillingMetrics
		err error
	)
	counters := []struct {
		target      **Counter
		name        string
		description string
	}{
		{&m.invoicesCreated, "billing.invoices.created", "Invoices created"},
		{&m.itemsCreated, "billing.items.created", "Invoice items created, by snapshot status"},
		{&m.snapshotFailures, "billing.snapshot.failures", "Catalog snapshots that could not be captured"},
		{&m.recalculations, "billing.recalculations", "Invoice totals recalculations, by trigger and outcome"},
		{&m.autoFixes, "billing.autofix.repairs", "Invoices repaired while listing"},
		{&m.normalizedReferences, "billing.references.normalized", "Legacy item references rewritten"},
		{&m.invoiceEvents, "billing.invoice.events", "Invoice domain events, by type"},
	}
	for _, c := range counters {
		if *c.target, err = NewCounter(meter, c.name, c.description, "1"); err != nil {
			return nil, err
		}
	}

	m.recalcDuration, err = NewHistogram(meter, HistogramOpts{
		Name:        "billing.recalculation.duration",
		Description: "Duration of serialized invoice recalculations",
		Unit:        "s",
		Boundaries:  SmallDurationBuckets,
	})
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// NewNoopBillingMetrics returns instruments that record nothing
func NewNoopBillingMetrics() *BillingMetrics {
	m, _ := NewBillingMetrics(noop.NewMeterProvider().Meter(TracerName))
	return m
}

// RecordInvoiceCreated counts a created invoice
func (m *BillingMetrics) RecordInvoiceCreated(ctx context.Context) {
	m.invoicesCreated.Inc(ctx)
}

// RecordItemCreated counts a created item by its snapshot status
func (m *BillingMetrics) RecordItemCreated(ctx context.Context, snapshotStatus string) {
	m.itemsCreated.Inc(ctx, AttrSnapshotStatus.String(snapshotStatus))
}

// RecordSnapshotFailure counts an item whose snapshot was missing or unavailable
func (m *BillingMetrics) RecordSnapshotFailure(ctx context.Context, snapshotStatus string) {
	m.snapshotFailures.Inc(ctx, AttrSnapshotStatus.String(snapshotStatus))
}

// RecordRecalculation records one recalculation
func (m *BillingMetrics) RecordRecalculation(ctx context.Context, trigger string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.recalculations.Inc(ctx, AttrOperation.String(trigger), AttrOutcome.String(outcome))
	m.recalcDuration.RecordDuration(ctx, d, AttrOperation.String(trigger))
}

// RecordAutoFix counts an invoice repaired during listing
func (m *BillingMetrics) RecordAutoFix(ctx context.Context) {
	m.autoFixes.Inc(ctx)
}

// RecordNormalizedReferences counts rewritten legacy references
func (m *BillingMetrics) RecordNormalizedReferences(ctx context.Context, n int64) {
	if n > 0 {
		m.normalizedReferences.Add(ctx, n)
	}
}

// RecordInvoiceEvent counts a published invoice event
func (m *BillingMetrics) RecordInvoiceEvent(ctx context.Context, eventType string) {
	m.invoiceEvents.Inc(ctx, AttrEventType.String(eventType))
}
