package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
)

// HandleFunc delivers one dequeued message.
type HandleFunc func(ctx context.Context, msg Message) error

// ConsumeAMQP drains the queue until ctx is cancelled, reconnecting with
// backoff when the broker goes away. Undecodable messages are dropped;
// failed deliveries are requeued once.
func ConsumeAMQP(ctx context.Context, url, queue string, handle HandleFunc, loggerf func(format string, args ...interface{})) error {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		conn, err := amqp.Dial(url)
		if err != nil {
			loggerf("level=warn msg=rabbitmq dial failed err=%v retry_in=%s", err, backoff)
			if !sleepCtx(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeAMQP(ctx, conn, queue, handle, loggerf)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		loggerf("level=warn msg=rabbitmq consume loop ended err=%v", err)
		if !sleepCtx(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeAMQP(ctx context.Context, conn *amqp.Connection, queue string, handle HandleFunc, loggerf func(format string, args ...interface{})) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(10, 0, false); err != nil {
		loggerf("level=warn msg=rabbitmq qos failed err=%v", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	deliveries, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			switch err := deliver(ctx, d.Body, handle); {
			case err == nil:
				_ = d.Ack(false)
			case errors.Is(err, errUndecodable):
				loggerf("level=error msg=dropping queued email err=%v", err)
				_ = d.Nack(false, false)
			default:
				loggerf("level=error msg=queued email delivery failed redelivered=%t err=%v", d.Redelivered, err)
				_ = d.Nack(false, !d.Redelivered)
			}
		}
	}
}

// ConsumeKafka reads the topic in a consumer group until ctx is cancelled.
// Delivery failures are logged and the offset is committed anyway so one
// bad address cannot stall the partition.
func ConsumeKafka(ctx context.Context, brokers []string, groupID, topic string, handle HandleFunc, loggerf func(format string, args ...interface{})) error {
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:           brokers,
		GroupID:           groupID,
		Topic:             topic,
		HeartbeatInterval: 3 * time.Second,
		SessionTimeout:    30 * time.Second,
	})
	defer func() { _ = reader.Close() }()

	for {
		m, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("kafka read: %w", err)
		}
		if err := deliver(ctx, m.Value, handle); err != nil {
			loggerf("level=error msg=queued email delivery failed partition=%d offset=%d err=%v", m.Partition, m.Offset, err)
		}
	}
}

var errUndecodable = errors.New("undecodable message")

func deliver(ctx context.Context, raw []byte, handle HandleFunc) error {
	msg, err := DecodeMessage(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", errUndecodable, err)
	}
	return handle(ctx, msg)
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
