package redis

import (
	"context"
	"testing"
	"time"

	"quizgame-service/internal/events"
	"quizgame-service/internal/logger"
)

func TestEventBusForwardsIntoHub(t *testing.T) {
	_, client := newClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := events.NewHub(logger.Nop())
	ch, unsubscribe := hub.Subscribe(42)
	defer unsubscribe()

	bus := NewEventBus(client, "test-events", logger.Nop())
	if err := bus.StartForwarder(ctx, hub.Deliver); err != nil {
		t.Fatalf("start forwarder: %v", err)
	}

	sent := events.New(42, events.Answered, time.Now().UTC(), map[string]any{"points": "15"})
	if err := bus.Publish(ctx, sent); err != nil {
		t.Fatalf("publish: %v", err)
	}

	select {
	case got := <-ch:
		if got.ID != sent.ID || got.Kind != events.Answered || got.GameID != 42 {
			t.Fatalf("unexpected event %+v", got)
		}
		payload, ok := got.Payload.(map[string]any)
		if !ok || payload["points"] != "15" {
			t.Fatalf("unexpected payload %#v", got.Payload)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for forwarded event")
	}
}

func TestEventBusPublishFailsWhenDown(t *testing.T) {
	mr, client := newClient(t)
	bus := NewEventBus(client, "", logger.Nop())
	mr.Close()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := bus.Publish(ctx, events.New(1, events.Joined, time.Now(), nil)); err == nil {
		t.Fatalf("expected publish error with redis down")
	}
}
