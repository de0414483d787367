package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// EventHandler handles a published event.
type EventHandler func(context.Context, Event) error

// Dispatcher interface allows event publication/subscription.
type Dispatcher interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(eventType EventType, handler EventHandler)
}

// memoryBus is a synchronous in-process dispatcher. A failing subscriber
// is logged and skipped; room state transitions never roll back because a
// notification hook errored.
type memoryBus struct {
	logger *zap.Logger

	mu          sync.RWMutex
	subscribers map[EventType][]EventHandler
}

// NewInMemoryDispatcher creates a dispatcher instance.
func NewInMemoryDispatcher(opts ...DispatcherOption) Dispatcher {
	bus := &memoryBus{
		logger:      zap.NewNop(),
		subscribers: make(map[EventType][]EventHandler),
	}
	for _, opt := range opts {
		opt(bus)
	}
	return bus
}

// DispatcherOption customizes dispatcher construction.
type DispatcherOption func(*memoryBus)

// WithLogger reports subscriber failures through the given logger.
func WithLogger(logger *zap.Logger) DispatcherOption {
	return func(bus *memoryBus) {
		if logger != nil {
			bus.logger = logger
		}
	}
}

// Publish synchronously invokes every subscriber for the event type.
func (b *memoryBus) Publish(ctx context.Context, event Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler{}, b.subscribers[event.Type]...)
	b.mu.RUnlock()

	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			b.logger.Warn("event subscriber failed",
				zap.String("type", string(event.Type)),
				zap.String("action", event.Action),
				zap.Error(err))
		}
	}
	return nil
}

// Subscribe registers a handler for the given event type.
func (b *memoryBus) Subscribe(eventType EventType, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}
