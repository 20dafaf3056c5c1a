// Package redisbus implements bus.Bus on Redis pub/sub.
package redisbus

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/ramory-l/sockhub/bus"
)

// DefaultChannel is the pub/sub channel used when none is given.
const DefaultChannel = "sockhub:broadcast"

// Bus publishes broadcasts on a Redis channel.
type Bus struct {
	client  *redis.Client
	channel string
	log     *slog.Logger

	mu  sync.Mutex
	sub *redis.PubSub
}

// New returns a Bus on channel. An empty channel uses DefaultChannel.
func New(client *redis.Client, channel string) *Bus {
	if channel == "" {
		channel = DefaultChannel
	}
	return &Bus{
		client:  client,
		channel: channel,
		log:     slog.Default().With("component", "redisbus", "channel", channel),
	}
}

// Publish implements bus.Bus.
func (b *Bus) Publish(ctx context.Context, m bus.Message) error {
	payload, err := bus.Marshal(m)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, b.channel, payload).Err(); err != nil {
		return fmt.Errorf("redisbus: publish: %w", err)
	}
	return nil
}

// Subscribe implements bus.Bus.
func (b *Bus) Subscribe(ctx context.Context, h bus.Handler) error {
	sub := b.client.Subscribe(ctx, b.channel)
	// Wait for the subscription confirmation so no publish after Subscribe
	// returns is missed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redisbus: subscribe: %w", err)
	}

	b.mu.Lock()
	b.sub = sub
	b.mu.Unlock()

	go func() {
		for msg := range sub.Channel() {
			m, err := bus.Unmarshal([]byte(msg.Payload))
			if err != nil {
				b.log.Warn("dropping undecodable message", "err", err)
				continue
			}
			h(m)
		}
	}()
	return nil
}

// Close ends the subscription. The Redis client stays open.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sub == nil {
		return nil
	}
	err := b.sub.Close()
	b.sub = nil
	return err
}
