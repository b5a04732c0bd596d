package realtime

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/noteduco342/unichat-backend/internal/cache"
	"github.com/noteduco342/unichat-backend/internal/metrics"
	"github.com/vmihailenco/msgpack/v5"
)

const DefaultChannel = "unichat:changes"

// RedisBroker shares change events between processes over redis pub/sub.
// Events published here reach local subscribers only after the round trip,
// so every process observes the same order.
type RedisBroker struct {
	redis   *cache.RedisCache
	channel string
	local   *LocalBroker
}

func NewRedisBroker(redis *cache.RedisCache, channel string) *RedisBroker {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisBroker{
		redis:   redis,
		channel: channel,
		local:   NewLocalBroker(),
	}
}

func (b *RedisBroker) Publish(ctx context.Context, event ChangeEvent) error {
	payload, err := msgpack.Marshal(&event)
	if err != nil {
		return fmt.Errorf("encode change event: %w", err)
	}
	if err := b.redis.Publish(ctx, b.channel, payload); err != nil {
		return fmt.Errorf("publish change event: %w", err)
	}
	metrics.ChangeEvents.WithLabelValues(string(event.Kind)).Inc()
	return nil
}

func (b *RedisBroker) Subscribe(groupID string) *Subscription {
	return b.local.Subscribe(groupID)
}

// Run relays events from redis to local subscribers until ctx is done.
func (b *RedisBroker) Run(ctx context.Context) error {
	pubsub := b.redis.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		b.local.Fail(err)
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			b.local.Fail(ErrBrokerClosed)
			return nil
		case msg, ok := <-ch:
			if !ok {
				b.local.Fail(ErrBrokerClosed)
				return ErrBrokerClosed
			}
			var event ChangeEvent
			if err := msgpack.Unmarshal([]byte(msg.Payload), &event); err != nil {
				slog.Warn("dropping undecodable change event", "error", err)
				continue
			}
			b.local.dispatch(event)
		}
	}
}
