package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrBrokerClosed is returned when subscribing to a closed broker.
var ErrBrokerClosed = errors.New("realtime broker closed")

// RedisBroker fans events out across API instances using Redis pub/sub.
type RedisBroker struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisBroker constructs a broker publishing on channels named prefix:topic.
func NewRedisBroker(client *redis.Client, prefix string, logger *zap.Logger) *RedisBroker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if prefix == "" {
		prefix = "presensi"
	}
	return &RedisBroker{client: client, prefix: prefix, logger: logger}
}

func (b *RedisBroker) channel(topic string) string {
	return fmt.Sprintf("%s:%s", b.prefix, topic)
}

// Publish serialises the event and publishes it on the topic channel.
func (b *RedisBroker) Publish(ctx context.Context, event Event) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal realtime event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel(event.Topic), payload).Err(); err != nil {
		return fmt.Errorf("redis publish %s: %w", event.Topic, err)
	}
	return nil
}

// Subscribe opens a pub/sub connection for the given topics.
func (b *RedisBroker) Subscribe(ctx context.Context, topics ...string) (*Subscription, error) {
	channels := make([]string, len(topics))
	for i, topic := range topics {
		channels[i] = b.channel(topic)
	}
	pubsub := b.client.Subscribe(ctx, channels...)
	// wait for the subscription confirmation so no event published afterwards is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	sub := newSubscription(func() {
		if err := pubsub.Close(); err != nil {
			b.logger.Debug("redis pubsub close", zap.Error(err))
		}
	})

	go func() {
		for msg := range pubsub.Channel() {
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("discarding malformed realtime event", zap.String("channel", msg.Channel), zap.Error(err))
				continue
			}
			sub.deliver(event)
		}
		sub.Close()
	}()

	sub.closeOnDone(ctx)
	return sub, nil
}

// Close is a no-op: the Redis client is shared with the cache and owned by the caller.
func (b *RedisBroker) Close() error {
	return nil
}
