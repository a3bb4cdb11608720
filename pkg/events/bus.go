package events

import (
	"context"
	"sync"

	"github.com/stockflow/stockflow-backend/pkg/logger"
)

// Subscriber handles a committed domain event.
type Subscriber func(ctx context.Context, ev Event) error

// Bus is the in-process publish mechanism. Publish is only called with events
// from committed transactions; subscriber failures are isolated and logged,
// never propagated back to the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string][]Subscriber
	logger      *logger.Logger
}

// NewBus creates an event bus.
func NewBus(log *logger.Logger) *Bus {
	return &Bus{
		subscribers: make(map[string][]Subscriber),
		logger:      log.WithComponent("event-bus"),
	}
}

// Subscribe registers a subscriber for a specific event name.
func (b *Bus) Subscribe(name string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[name] = append(b.subscribers[name], sub)
}

// SubscribeAll registers a subscriber for every event name.
func (b *Bus) SubscribeAll(sub Subscriber) {
	b.Subscribe("*", sub)
}

// Publish dispatches an event to all matching subscribers.
func (b *Bus) Publish(ctx context.Context, ev Event) {
	b.mu.RLock()
	subs := make([]Subscriber, 0, len(b.subscribers[ev.Name])+len(b.subscribers["*"]))
	subs = append(subs, b.subscribers[ev.Name]...)
	subs = append(subs, b.subscribers["*"]...)
	b.mu.RUnlock()

	for _, sub := range subs {
		if err := sub(ctx, ev); err != nil {
			b.logger.Error().
				Err(err).
				Str("event_id", ev.ID).
				Str("event_name", ev.Name).
				Msg("subscriber failed to handle event")
		}
	}
}

// PublishAll dispatches a batch of events in order.
func (b *Bus) PublishAll(ctx context.Context, evs []Event) {
	for _, ev := range evs {
		b.Publish(ctx, ev)
	}
}
