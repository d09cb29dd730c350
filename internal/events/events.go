package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"go.uber.org/zap"

	"water-dispatch-backend/config"
)

// Event types published by the dispatch monitor.
const (
	TypeRequestCreated    = "request.created"
	TypeDeliveryCompleted = "delivery.completed"
)

// Event is the payload published for every dispatch transition.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	RequestID  string    `json:"request_id,omitempty"`
	Priority   string    `json:"priority,omitempty"`
	Automatic  bool      `json:"automatic"`
	Level      int       `json:"level"`
	OccurredAt time.Time `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(eventType, userID string, level int) Event {
	return Event{
		ID:         uuid.New(),
		Type:       eventType,
		UserID:     userID,
		Level:      level,
		OccurredAt: time.Now().UTC(),
	}
}

// Publisher delivers dispatch events to interested consumers.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close()
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close()                               {}

// NatsPublisher publishes events as JSON on "<prefix>.<type>" subjects.
type NatsPublisher struct {
	conn   *nats.Conn
	prefix string
}

// Connect returns a NATS-backed publisher, or Nop when no URL is configured.
func Connect(cfg config.EventsConfig, log *zap.Logger) (Publisher, error) {
	if cfg.NatsURL == "" {
		log.Info("event publication disabled")
		return Nop{}, nil
	}

	conn, err := nats.Connect(cfg.NatsURL,
		nats.Name("dispatchd"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.Timeout(5*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn("nats disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NatsPublisher{conn: conn, prefix: cfg.SubjectPrefix}, nil
}

// Subject returns the subject an event type is published on.
func Subject(prefix, eventType string) string {
	if prefix == "" {
		return eventType
	}
	return prefix + "." + eventType
}

// Publish marshals and publishes the event.
func (p *NatsPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := p.conn.Publish(Subject(p.prefix, event.Type), data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", event.Type, err)
	}
	return nil
}

// Close drains pending messages and closes the connection.
func (p *NatsPublisher) Close() {
	if err := p.conn.Drain(); err != nil {
		p.conn.Close()
	}
}
