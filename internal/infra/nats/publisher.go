// Package nats publishes game events to NATS for consumers outside the service.
package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"quizgame-service/internal/events"
	"quizgame-service/internal/logger"
)

// Connect dials url, authenticating with token when one is set.
func Connect(url, token string) (*nats.Conn, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	opts := []nats.Option{nats.Name("quizgame-service")}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	return nats.Connect(url, opts...)
}

// Publisher sends each event to games.<gameID>.<kind>.
type Publisher struct {
	conn   *nats.Conn
	prefix string
	log    *logger.Logger
}

func NewPublisher(conn *nats.Conn, prefix string, log *logger.Logger) *Publisher {
	if prefix == "" {
		prefix = "games"
	}
	return &Publisher{conn: conn, prefix: prefix, log: log.With("component", "nats.Publisher")}
}

func (p *Publisher) Publish(_ context.Context, e events.Event) error {
	raw, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if err := p.conn.Publish(Subject(p.prefix, e.GameID, e.Kind), raw); err != nil {
		return fmt.Errorf("nats publish %s: %w", e.Kind, err)
	}
	return nil
}

// Subject names the subject an event is published on.
func Subject(prefix string, gameID int64, kind events.Kind) string {
	return fmt.Sprintf("%s.%d.%s", prefix, gameID, kind)
}

func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.log.Warn("drain nats connection", "error", err)
	}
}
