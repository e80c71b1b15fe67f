package realtime

import (
	"context"
	"sync"
	"time"
)

// MemoryBroker delivers events between goroutines of a single process.
type MemoryBroker struct {
	mu     sync.RWMutex
	topics map[string]map[*Subscription]struct{}
	closed bool
}

// NewMemoryBroker constructs an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{topics: make(map[string]map[*Subscription]struct{})}
}

// Publish delivers the event to every subscriber of its topic.
func (b *MemoryBroker) Publish(_ context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for sub := range b.topics[event.Topic] {
		sub.deliver(event)
	}
	return nil
}

// Subscribe registers a subscription on the given topics.
func (b *MemoryBroker) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	var sub *Subscription
	sub = newSubscription(func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for _, topic := range topics {
			delete(b.topics[topic], sub)
			if len(b.topics[topic]) == 0 {
				delete(b.topics, topic)
			}
		}
	})

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil, ErrBrokerClosed
	}
	for _, topic := range topics {
		if b.topics[topic] == nil {
			b.topics[topic] = make(map[*Subscription]struct{})
		}
		b.topics[topic][sub] = struct{}{}
	}
	b.mu.Unlock()

	sub.closeOnDone(ctx)
	return sub, nil
}

// Subscribers reports how many subscriptions listen on topic.
func (b *MemoryBroker) Subscribers(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}

// Close ends every open subscription.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	b.closed = true
	subs := make(map[*Subscription]struct{})
	for _, set := range b.topics {
		for sub := range set {
			subs[sub] = struct{}{}
		}
	}
	b.mu.Unlock()

	for sub := range subs {
		sub.Close()
	}
	return nil
}
