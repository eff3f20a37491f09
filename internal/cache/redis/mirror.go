package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/updownlabs/updownbot/internal/domain"
)

// tickTTL bounds how long a mirrored tick stays visible after the feed dies.
const tickTTL = 2 * time.Minute

// TickMirror implements domain.TickPublisher with a hash per asset.
type TickMirror struct {
	client *Client
}

// NewTickMirror creates a mirror on the given client.
func NewTickMirror(client *Client) *TickMirror {
	return &TickMirror{client: client}
}

func tickKey(asset string) string {
	return "updown:tick:" + asset
}

// PublishTick writes the latest tick for the asset.
func (m *TickMirror) PublishTick(ctx context.Context, asset string, tick domain.ReferenceTick) error {
	key := tickKey(asset)
	fields := map[string]any{
		"price": strconv.FormatFloat(tick.Price, 'f', -1, 64),
		"ts":    tick.Timestamp.UnixMilli(),
		"seq":   tick.Seq,
	}
	pipe := m.client.rdb.Pipeline()
	pipe.HSet(ctx, key, fields)
	pipe.Expire(ctx, key, tickTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: publish tick %s: %w", asset, err)
	}
	return nil
}

// EventBus implements domain.EventBus over Redis pub/sub.
type EventBus struct {
	client *Client
}

// NewEventBus creates a bus on the given client.
func NewEventBus(client *Client) *EventBus {
	return &EventBus{client: client}
}

// Publish sends the payload to out-of-process subscribers on the channel.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.rdb.Publish(ctx, "updown:"+channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}
