// Package event dispatches billing domain events to in-process handlers.
package event

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/vetclinic/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// ErrBusStopped is returned by Publish before Start or after Stop
var ErrBusStopped = errors.New("event bus is not running")

// Bus delivers events synchronously to subscribed handlers. A failing or
// panicking handler is logged and does not prevent delivery to the others,
// and its error is not returned to the publisher.
type Bus struct {
	subs    *subscriptions
	logger  *zap.Logger
	running atomic.Bool
	failed  atomic.Int64
}

// NewBus creates a stopped bus
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{subs: newSubscriptions(), logger: logger}
}

// Publish delivers events in order
func (b *Bus) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if !b.running.Load() {
		return ErrBusStopped
	}
	for _, evt := range events {
		for _, h := range b.subs.forType(evt.EventType()) {
			if err := b.deliver(ctx, h, evt); err != nil {
				b.failed.Add(1)
				b.logger.Error("Event handler failed",
					zap.String("event_type", evt.EventType()),
					zap.String("event_id", evt.EventID().String()),
					zap.String("aggregate_id", evt.AggregateID().String()),
					zap.Error(err),
				)
			}
		}
	}
	return nil
}

func (b *Bus) deliver(ctx context.Context, h shared.EventHandler, evt shared.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return h.Handle(ctx, evt)
}

// Subscribe registers handler for eventTypes, or for the handler's own
// EventTypes when none are given
func (b *Bus) Subscribe(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = handler.EventTypes()
	}
	b.subs.add(handler, eventTypes...)
	b.logger.Debug("Event handler subscribed", zap.Strings("event_types", eventTypes))
}

// Unsubscribe removes handler from every event type
func (b *Bus) Unsubscribe(handler shared.EventHandler) {
	b.subs.remove(handler)
}

// Start makes the bus accept events
func (b *Bus) Start(ctx context.Context) error {
	b.running.Store(true)
	b.logger.Info("Event bus started", zap.Int("subscriptions", b.subs.count()))
	return nil
}

// Stop makes Publish reject events
func (b *Bus) Stop(ctx context.Context) error {
	b.running.Store(false)
	b.logger.Info("Event bus stopped", zap.Int64("failed_deliveries", b.failed.Load()))
	return nil
}

// FailedDeliveries returns how many handler invocations failed
func (b *Bus) FailedDeliveries() int64 {
	return b.failed.Load()
}

var _ shared.EventBus = (*Bus)(nil)
