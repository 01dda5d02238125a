package redis

import (
	"context"
	"errors"
	"testing"
	"time"

	"quizgame-service/internal/logger"
)

func TestLockerExcludesAndReleases(t *testing.T) {
	mr, client := newClient(t)
	l := NewLocker(client, time.Second, logger.Nop())
	l.wait = 50 * time.Millisecond

	unlock, err := l.Lock(context.Background(), "game:1")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	if !mr.Exists("lock:game:1") {
		t.Fatalf("expected lock key")
	}
	if _, err := l.Lock(context.Background(), "game:1"); !errors.Is(err, ErrLockTimeout) {
		t.Fatalf("expected ErrLockTimeout, got %v", err)
	}
	if _, err := l.Lock(context.Background(), "game:2"); err != nil {
		t.Fatalf("other key should be free: %v", err)
	}

	unlock()
	if mr.Exists("lock:game:1") {
		t.Fatalf("expected lock released")
	}
	again, err := l.Lock(context.Background(), "game:1")
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	again()
}

func TestLockerReleaseKeepsForeignToken(t *testing.T) {
	mr, client := newClient(t)
	l := NewLocker(client, time.Second, logger.Nop())

	unlock, err := l.Lock(context.Background(), "player:7")
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	// the lock expired and someone else took it
	if err := mr.Set("lock:player:7", "someone-else"); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	unlock()
	if got, _ := mr.Get("lock:player:7"); got != "someone-else" {
		t.Fatalf("release removed a lock it did not own")
	}
}

func TestLockerExpiresAbandonedLock(t *testing.T) {
	mr, client := newClient(t)
	l := NewLocker(client, time.Second, logger.Nop())
	if _, err := l.Lock(context.Background(), "game:3"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	mr.FastForward(2 * time.Second)
	unlock, err := l.Lock(context.Background(), "game:3")
	if err != nil {
		t.Fatalf("expected expired lock to be reacquired: %v", err)
	}
	unlock()
}

func TestLockerHonoursContext(t *testing.T) {
	_, client := newClient(t)
	l := NewLocker(client, time.Minute, logger.Nop())
	if _, err := l.Lock(context.Background(), "game:4"); err != nil {
		t.Fatalf("lock: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if _, err := l.Lock(ctx, "game:4"); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}
