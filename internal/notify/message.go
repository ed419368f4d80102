// Package notify renders transactional email and hands it to a delivery
// transport: SMTP directly, or a RabbitMQ/Kafka queue drained by
// cmd/mail_worker.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var ErrNoRecipients = errors.New("message has no recipients")

// Message is one rendered email. It is also the queue payload.
type Message struct {
	Kind      string    `json:"kind"`
	To        []string  `json:"to"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func (m Message) validate() error {
	if len(m.To) == 0 {
		return ErrNoRecipients
	}
	for _, to := range m.To {
		if strings.TrimSpace(to) == "" {
			return ErrNoRecipients
		}
	}
	return nil
}

// DecodeMessage parses a queued message.
func DecodeMessage(raw []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(raw, &m); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	if err := m.validate(); err != nil {
		return Message{}, err
	}
	return m, nil
}

// Sender delivers or enqueues a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
	Close() error
}

// LogSender only logs messages. Used in development.
type LogSender struct {
	loggerf func(format string, args ...interface{})
}

func NewLogSender(loggerf func(format string, args ...interface{})) *LogSender {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	return &LogSender{loggerf: loggerf}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	s.loggerf("level=info msg=email kind=%s to=%s subject=%q", msg.Kind, strings.Join(msg.To, ","), msg.Subject)
	return nil
}

func (s *LogSender) Close() error { return nil }
