package event

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/vetclinic/backend/internal/domain/billing"
	"github.com/vetclinic/backend/internal/domain/shared"
)

// Envelope is the wire form of a domain event
type Envelope struct {
	EventID       uuid.UUID       `json:"event_id"`
	EventType     string          `json:"event_type"`
	AggregateID   uuid.UUID       `json:"aggregate_id"`
	AggregateType string          `json:"aggregate_type"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
}

// Codec encodes domain events into envelopes and decodes them back into
// their registered Go types
type Codec struct {
	mu    sync.RWMutex
	types map[string]reflect.Type
}

// NewCodec creates a codec with no registered types
func NewCodec() *Codec {
	return &Codec{types: make(map[string]reflect.Type)}
}

// Register associates eventType with the concrete type of prototype
func (c *Codec) Register(eventType string, prototype shared.DomainEvent) {
	t := reflect.TypeOf(prototype)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	c.mu.Lock()
	c.types[eventType] = t
	c.mu.Unlock()
}

// Types returns the registered event types in sorted order
func (c *Codec) Types() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, 0, len(c.types))
	for t := range c.types {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Encode wraps evt in an envelope
func (c *Codec) Encode(evt shared.DomainEvent) ([]byte, error) {
	payload, err := json.Marshal(evt)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", evt.EventType(), err)
	}
	return json.Marshal(Envelope{
		EventID:       evt.EventID(),
		EventType:     evt.EventType(),
		AggregateID:   evt.AggregateID(),
		AggregateType: evt.AggregateType(),
		OccurredAt:    evt.OccurredAt(),
		Payload:       payload,
	})
}

// Decode parses an envelope produced by Encode
func (c *Codec) Decode(data []byte) (shared.DomainEvent, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	c.mu.RLock()
	t, ok := c.types[env.EventType]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown event type %q", env.EventType)
	}

	ptr := reflect.New(t).Interface()
	if err := json.Unmarshal(env.Payload, ptr); err != nil {
		return nil, fmt.Errorf("decode %s payload: %w", env.EventType, err)
	}
	evt, ok := ptr.(shared.DomainEvent)
	if !ok {
		return nil, fmt.Errorf("type registered for %q is not a domain event", env.EventType)
	}
	return evt, nil
}

// RegisterBillingEvents registers every invoice event type
func RegisterBillingEvents(c *Codec) {
	c.Register(billing.EventTypeInvoiceCreated, &billing.InvoiceCreatedEvent{})
	c.Register(billing.EventTypeInvoiceTotalsRecalculated, &billing.InvoiceTotalsRecalculatedEvent{})
	c.Register(billing.EventTypeInvoicePaid, &billing.InvoicePaidEvent{})
	c.Register(billing.EventTypeInvoiceSoftDeleted, &billing.InvoiceSoftDeletedEvent{})
	c.Register(billing.EventTypeInvoiceRestored, &billing.InvoiceRestoredEvent{})
}
