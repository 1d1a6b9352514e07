package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/ticket-inventory/internal/notify"
)

const maxBackoff = 30 * time.Second

// Handler processes one decoded notification.  A returned error rejects
// the message without requeueing it.
type Handler func(ctx context.Context, n notify.Notification) error

// Consume reads the queue until ctx is cancelled, reconnecting with
// doubling backoff whenever the broker goes away.  It returns ctx.Err().
func Consume(ctx context.Context, url, queue string, h Handler, logger logrus.FieldLogger) error {
	log := logger.WithFields(logrus.Fields{"component": "notify-consumer", "queue": queue})
	backoff := time.Second
	for {
		conn, err := amqp.Dial(url)
		if err != nil {
			log.WithError(err).Warnf("failed to dial broker; retrying in %s", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < maxBackoff {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = consumeLoop(ctx, conn, queue, h, log)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.WithError(err).Warn("consume loop ended; reconnecting")
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, queue string, h Handler, log logrus.FieldLogger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.WithError(err).Warn("set QoS failed")
	}
	if err := declare(ch, queue); err != nil {
		return err
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := handleMessage(ctx, d.Body, h); err != nil {
				log.WithError(err).Error("handle message failed")
				_ = d.Nack(false, false)
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func handleMessage(ctx context.Context, body []byte, h Handler) error {
	var n notify.Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if n.Type == "" {
		return errors.New("notification without type")
	}
	return h(ctx, n)
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// LogHandler writes every notification as a structured log line.  It is
// what cmd/notifier runs when no delivery channel is configured.
func LogHandler(logger logrus.FieldLogger) Handler {
	return func(_ context.Context, n notify.Notification) error {
		logger.WithFields(logrus.Fields{
			"type":              n.Type,
			"event_id":          n.EventID,
			"ticket_id":         n.TicketID,
			"waitlist_entry_id": n.WaitlistEntryID,
			"user_id":           n.UserID,
			"at":                n.Timestamp.Format(time.RFC3339),
		}).Info("notification")
		return nil
	}
}
