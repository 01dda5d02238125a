// Package events carries game notifications from the engine to subscribers.
package events

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names a game event.
type Kind string

const (
	Joined          Kind = "joined"
	QuestionChanged Kind = "question_changed"
	Answered        Kind = "answered"
	Check           Kind = "check"
	Finished        Kind = "finished"
)

// Event is one notification about a game. Payload is a player, game, answer or
// generated question depending on Kind; after crossing a bus it is decoded JSON.
type Event struct {
	ID      string    `json:"id"`
	GameID  int64     `json:"gameId"`
	Kind    Kind      `json:"kind"`
	At      time.Time `json:"at"`
	Payload any       `json:"payload"`
}

// New stamps an event with a fresh id.
func New(gameID int64, kind Kind, at time.Time, payload any) Event {
	return Event{ID: uuid.NewString(), GameID: gameID, Kind: kind, At: at, Payload: payload}
}

// Publisher delivers events. Implementations own retries; callers only log failures.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Fanout publishes to every publisher and joins their errors.
type Fanout []Publisher

func (f Fanout) Publish(ctx context.Context, e Event) error {
	var errs []error
	for _, p := range f {
		if err := p.Publish(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
