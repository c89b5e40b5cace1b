package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/autocrm-inc/autocrm/internal/domain/changefeed"
	"github.com/autocrm-inc/autocrm/internal/shared/logger"
)

const DefaultChangeChannel = "autocrm:changes"

// RedisChangeBus relays change events between instances over Redis Pub/Sub.
// Publish sends local events out; Run delivers events published by other
// instances to the local publisher, normally the ChangeHub.
type RedisChangeBus struct {
	client     *redis.Client
	channel    string
	local      changefeed.Publisher
	logger     logger.Interface
	instanceID string // Stamped as event origin to avoid self-delivery

	minBackoff time.Duration
	maxBackoff time.Duration
}

// NewRedisChangeBus creates a Redis-based change bus.
func NewRedisChangeBus(client *redis.Client, channel string, local changefeed.Publisher, log logger.Interface) *RedisChangeBus {
	if channel == "" {
		channel = DefaultChangeChannel
	}
	if log == nil {
		log = logger.NewNop()
	}
	return &RedisChangeBus{
		client:     client,
		channel:    channel,
		local:      local,
		logger:     log,
		instanceID: uuid.NewString(),
		minBackoff: time.Second,
		maxBackoff: 30 * time.Second,
	}
}

// SetBackoff overrides the reconnect backoff bounds.
func (b *RedisChangeBus) SetBackoff(minBackoff, maxBackoff time.Duration) {
	b.minBackoff = minBackoff
	b.maxBackoff = max(maxBackoff, minBackoff)
}

func (b *RedisChangeBus) InstanceID() string {
	return b.instanceID
}

// Publish sends e to the other instances.
func (b *RedisChangeBus) Publish(ctx context.Context, e changefeed.Event) error {
	e.Origin = b.instanceID
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal change event: %w", err)
	}

	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		b.logger.Errorw("failed to publish change event",
			"event_id", e.ID,
			"table", e.Table,
			"error", err,
		)
		return fmt.Errorf("failed to publish change event: %w", err)
	}

	b.logger.Debugw("change event published to Redis",
		"event_id", e.ID,
		"table", e.Table,
		"operation", e.Operation,
	)
	return nil
}

// Run receives events until ctx is done, reconnecting with exponential
// backoff whenever the subscription drops.
func (b *RedisChangeBus) Run(ctx context.Context) error {
	backoff := b.minBackoff

	for {
		connected, err := b.subscribe(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			backoff = b.minBackoff
		}

		b.logger.Warnw("change bus disconnected, reconnecting",
			"channel", b.channel,
			"error", err,
			"backoff", backoff,
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff = min(backoff*2, b.maxBackoff)
	}
}

// subscribe relays one Redis subscription. connected reports whether the
// subscription was confirmed before it ended.
func (b *RedisChangeBus) subscribe(ctx context.Context) (connected bool, err error) {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return false, fmt.Errorf("failed to subscribe to channel %s: %w", b.channel, err)
	}

	b.logger.Infow("subscribed to change bus channel",
		"channel", b.channel,
	)

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			b.logger.Infow("change bus subscriber stopped",
				"channel", b.channel,
				"reason", ctx.Err(),
			)
			return true, ctx.Err()

		case msg, ok := <-ch:
			if !ok {
				b.logger.Warnw("change bus channel closed",
					"channel", b.channel,
				)
				return true, nil
			}
			b.deliver(ctx, msg.Payload)
		}
	}
}

// deliver runs inline so events reach the hub in the order Redis sent them.
func (b *RedisChangeBus) deliver(ctx context.Context, payload string) {
	var e changefeed.Event
	if err := json.Unmarshal([]byte(payload), &e); err != nil {
		b.logger.Warnw("failed to unmarshal change event",
			"payload", payload,
			"error", err,
		)
		return
	}

	// Skip events from own instance; they were delivered locally already.
	if e.Origin == b.instanceID {
		return
	}

	if err := b.local.Publish(ctx, e); err != nil {
		b.logger.Warnw("failed to deliver remote change event",
			"event_id", e.ID,
			"error", err,
		)
	}
}
