package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

type amqpPublisher interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// AMQPSender enqueues messages on a durable RabbitMQ queue.
type AMQPSender struct {
	mu      sync.Mutex
	conn    *amqp.Connection
	ch      amqpPublisher
	queue   string
	loggerf func(format string, args ...interface{})
}

func NewAMQPSender(url, queue string, loggerf func(format string, args ...interface{})) (*AMQPSender, error) {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("rabbitmq dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("rabbitmq queue declare %s: %w", queue, err)
	}
	return &AMQPSender{conn: conn, ch: ch, queue: queue, loggerf: loggerf}, nil
}

func (s *AMQPSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	// amqp channels are not safe for concurrent publishing.
	s.mu.Lock()
	defer s.mu.Unlock()
	err = s.ch.PublishWithContext(ctx, "", s.queue, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now().UTC(),
		Type:         msg.Kind,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("rabbitmq publish %s: %w", msg.Kind, err)
	}
	s.loggerf("level=info msg=email queued kind=%s queue=%s", msg.Kind, s.queue)
	return nil
}

func (s *AMQPSender) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ch != nil {
		_ = s.ch.Close()
	}
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaSender produces messages to a Kafka topic keyed by the first
// recipient.
type KafkaSender struct {
	writer  messageWriter
	topic   string
	loggerf func(format string, args ...interface{})
}

func NewKafkaSender(brokers []string, topic string, loggerf func(format string, args ...interface{})) *KafkaSender {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.LeastBytes{},
		BatchTimeout: 50 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
	return &KafkaSender{writer: w, topic: topic, loggerf: loggerf}
}

func (s *KafkaSender) Send(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	err = s.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(msg.To[0]),
		Value: data,
		Time:  time.Now(),
		Headers: []kafka.Header{
			{Key: "kind", Value: []byte(msg.Kind)},
		},
	})
	if err != nil {
		return fmt.Errorf("kafka write %s: %w", msg.Kind, err)
	}
	s.loggerf("level=info msg=email queued kind=%s topic=%s", msg.Kind, s.topic)
	return nil
}

func (s *KafkaSender) Close() error {
	if s.writer == nil {
		return nil
	}
	return s.writer.Close()
}

var (
	_ Sender = (*LogSender)(nil)
	_ Sender = (*SMTPSender)(nil)
	_ Sender = (*AMQPSender)(nil)
	_ Sender = (*KafkaSender)(nil)
)
