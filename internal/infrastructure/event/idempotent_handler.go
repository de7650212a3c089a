package event

import (
	"context"
	"sync/atomic"

	"github.com/vetclinic/backend/internal/domain/shared"
	"go.uber.org/zap"
)

// IdempotencyStats counts outcomes of an IdempotentHandler
type IdempotencyStats struct {
	Processed  int64 `json:"processed"`
	Duplicates int64 `json:"duplicates"`
	Failed     int64 `json:"failed"`
}

// IdempotentHandler skips events whose ID was already handled
type IdempotentHandler struct {
	next   shared.EventHandler
	store  shared.IdempotencyStore
	config shared.IdempotencyConfig
	logger *zap.Logger

	processed, duplicates, failed atomic.Int64
}

// NewIdempotentHandler wraps next
func NewIdempotentHandler(next shared.EventHandler, store shared.IdempotencyStore, cfg shared.IdempotencyConfig, logger *zap.Logger) *IdempotentHandler {
	return &IdempotentHandler{next: next, store: store, config: cfg, logger: logger}
}

func (h *IdempotentHandler) EventTypes() []string {
	return h.next.EventTypes()
}

// Handle runs the wrapped handler once per event ID. When the store is
// unreachable the event is handled anyway. The key is kept after a failure
// so the event is only retried once it expires.
func (h *IdempotentHandler) Handle(ctx context.Context, evt shared.DomainEvent) error {
	if h.config.Enabled {
		fresh, err := h.store.MarkProcessed(ctx, evt.EventID().String(), h.config.TTL)
		switch {
		case err != nil:
			h.logger.Warn("Idempotency store unavailable, handling event anyway",
				zap.String("event_id", evt.EventID().String()),
				zap.Error(err),
			)
		case !fresh:
			h.duplicates.Add(1)
			h.logger.Debug("Skipping duplicate event",
				zap.String("event_id", evt.EventID().String()),
				zap.String("event_type", evt.EventType()),
			)
			return nil
		}
	}

	if err := h.next.Handle(ctx, evt); err != nil {
		h.failed.Add(1)
		return err
	}
	h.processed.Add(1)
	return nil
}

// Stats returns a snapshot of the counters
func (h *IdempotentHandler) Stats() IdempotencyStats {
	return IdempotencyStats{
		Processed:  h.processed.Load(),
		Duplicates: h.duplicates.Load(),
		Failed:     h.failed.Load(),
	}
}

var _ shared.EventHandler = (*IdempotentHandler)(nil)
