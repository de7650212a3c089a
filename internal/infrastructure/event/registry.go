package event

import (
	"sync"

	"github.com/vetclinic/backend/internal/domain/shared"
)

const wildcardType = "*"

// subscriptions maps event types to their handlers. Handlers subscribed
// without event types are stored under the wildcard key and receive
// every event.
type subscriptions struct {
	mu     sync.RWMutex
	byType map[string][]shared.EventHandler
}

func newSubscriptions() *subscriptions {
	return &subscriptions{byType: make(map[string][]shared.EventHandler)}
}

func (s *subscriptions) add(handler shared.EventHandler, eventTypes ...string) {
	if len(eventTypes) == 0 {
		eventTypes = []string{wildcardType}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range eventTypes {
		s.byType[t] = append(s.byType[t], handler)
	}
}

func (s *subscriptions) remove(handler shared.EventHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for t, handlers := range s.byType {
		kept := handlers[:0]
		for _, h := range handlers {
			if h != handler {
				kept = append(kept, h)
			}
		}
		if len(kept) == 0 {
			delete(s.byType, t)
			continue
		}
		s.byType[t] = kept
	}
}

// forType returns the handlers for eventType followed by wildcard handlers.
// The returned slice is a copy.
func (s *subscriptions) forType(eventType string) []shared.EventHandler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	typed, wild := s.byType[eventType], s.byType[wildcardType]
	out := make([]shared.EventHandler, 0, len(typed)+len(wild))
	out = append(out, typed...)
	return append(out, wild...)
}

func (s *subscriptions) count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, handlers := range s.byType {
		n += len(handlers)
	}
	return n
}
