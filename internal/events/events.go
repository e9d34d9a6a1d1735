// Package events publishes task outcomes to NATS for downstream consumers.
package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

// Outcome is the message published once per processed task.
type Outcome struct {
	TaskID         string    `json:"task_id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	MessageID      string    `json:"message_id,omitempty"`
	Action         string    `json:"action"`
	Tagged         bool      `json:"tagged,omitempty"`
	Emoji          string    `json:"emoji,omitempty"`
	Error          string    `json:"error,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

// Publisher receives task outcomes. Implementations must not block long.
type Publisher interface {
	Publish(o Outcome) error
	Close()
}

type conn interface {
	Publish(subject string, data []byte) error
	Close()
}

// NATSPublisher publishes outcomes as JSON on a single subject.
type NATSPublisher struct {
	nc      conn
	subject string
}

// Connect dials url with reconnects enabled.
func Connect(url, subject string, log *zap.Logger) (*NATSPublisher, error) {
	if log == nil {
		log = zap.NewNop()
	}
	nc, err := nats.Connect(url,
		nats.Name("replybot"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn("nats disconnected", zap.Error(err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("nats reconnected", zap.String("url", nc.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	return &NATSPublisher{nc: nc, subject: subject}, nil
}

func (p *NATSPublisher) Publish(o Outcome) error {
	data, err := json.Marshal(o)
	if err != nil {
		return fmt.Errorf("encode outcome: %w", err)
	}
	if err := p.nc.Publish(p.subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", p.subject, err)
	}
	return nil
}

func (p *NATSPublisher) Close() {
	if p.nc != nil {
		p.nc.Close()
	}
}

// Nop drops every outcome. It is used when no NATS url is configured.
type Nop struct{}

func (Nop) Publish(Outcome) error { return nil }
func (Nop) Close()                {}
