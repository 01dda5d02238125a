package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"quizgame-service/internal/events"
	"quizgame-service/internal/logger"
)

const publishAttempts = 3

// EventBus shares game events between instances over one pub/sub channel.
// Each instance forwards what it receives into its local hub.
type EventBus struct {
	client  *redis.Client
	channel string
	log     *logger.Logger
}

func NewEventBus(client *redis.Client, channel string, log *logger.Logger) *EventBus {
	if channel == "" {
		channel = "game-events"
	}
	return &EventBus{
		client:  client,
		channel: channel,
		log:     log.With("component", "redis.EventBus"),
	}
}

// Publish retries transient failures with a short linear backoff.
func (b *EventBus) Publish(ctx context.Context, e events.Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	for attempt := 1; ; attempt++ {
		err = b.client.Publish(ctx, b.channel, raw).Err()
		if err == nil {
			return nil
		}
		if attempt == publishAttempts {
			return fmt.Errorf("publish %s for game %d: %w", e.Kind, e.GameID, err)
		}
		b.log.Warn("publish event, retrying", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * 50 * time.Millisecond):
		}
	}
}

// StartForwarder subscribes and calls onEvent for every event until ctx is done.
// It returns once the subscription is confirmed.
func (b *EventBus) StartForwarder(ctx context.Context, onEvent func(events.Event)) error {
	if onEvent == nil {
		return fmt.Errorf("onEvent callback required")
	}
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		defer sub.Close()
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-ch:
				if !ok {
					return
				}
				var e events.Event
				if err := json.Unmarshal([]byte(m.Payload), &e); err != nil {
					b.log.Warn("bad event payload", "error", err)
					continue
				}
				onEvent(e)
			}
		}
	}()
	return nil
}
