// Package rabbitmq provides the RabbitMQ dispatch queue integration.
//
// It binds one durable queue on one channel and implements both sides of
// the dispatch contract: the filler publishes persistent job documents, the
// consumer takes them one at a time under manual acknowledgement.
package rabbitmq

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fairyhunter13/imagegen-dispatch/internal/adapter/observability"
	"github.com/fairyhunter13/imagegen-dispatch/internal/domain"
)

const (
	heartbeat   = 60 * time.Second
	dialTimeout = 10 * time.Second
)

// Queue wraps one connection, one channel and one durable queue.
// Methods are not safe for concurrent use; the worker runs one mode on one
// goroutine, which is the only access pattern here.
type Queue struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	name string
}

// Dial connects to the broker, declares the durable queue and returns the
// bound Queue. The vhost travels in the handshake, not in the URL, so
// names with slashes need no escaping.
func Dial(url, vhost, queue string) (*Queue, error) {
	if queue == "" {
		return nil, fmt.Errorf("missing queue name")
	}
	slog.Info("dialing rabbitmq", slog.String("vhost", vhost), slog.String("queue", queue))

	props := amqp.NewConnectionProperties()
	props.SetClientConnectionName("imagegen-dispatch")
	conn, err := amqp.DialConfig(url, amqp.Config{
		Vhost:      vhost,
		Heartbeat:  heartbeat,
		Dial:       amqp.DefaultDial(dialTimeout),
		Properties: props,
	})
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	state, err := ch.QueueDeclare(queue, true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, fmt.Errorf("queue declare: %w", err)
	}

	go logBlocked(conn)

	slog.Info("rabbitmq queue ready",
		slog.String("queue", queue),
		slog.Int("messages", state.Messages))
	return &Queue{conn: conn, ch: ch, name: queue}, nil
}

// logBlocked surfaces broker flow control, which otherwise looks like a
// publisher hang.
func logBlocked(conn *amqp.Connection) {
	for b := range conn.NotifyBlocked(make(chan amqp.Blocking, 8)) {
		if b.Active {
			slog.Warn("rabbitmq connection blocked", slog.String("reason", b.Reason))
		} else {
			slog.Info("rabbitmq connection unblocked")
		}
	}
}

// Publish sends body as a persistent JSON message carrying messageID, so a
// broker restart never drops an already dispatched job.
func (q *Queue) Publish(ctx domain.Context, body []byte, messageID string) error {
	err := q.ch.PublishWithContext(ctx, "", q.name, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    messageID,
		Timestamp:    time.Now(),
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", messageID, translate(err))
	}
	return nil
}

// Depth reports the queue's current message count via a passive declare.
func (q *Queue) Depth(_ domain.Context) (int, error) {
	state, err := q.ch.QueueDeclarePassive(q.name, true, false, false, false, nil)
	if err != nil {
		return 0, fmt.Errorf("queue inspect: %w", translate(err))
	}
	observability.SetQueueDepth(state.Messages)
	return state.Messages, nil
}

// Deliveries opens a prefetch-1, manually acknowledged subscription. The
// returned channel closes when the broker connection drops or ctx is done;
// callers decide whether a close is a restart condition.
func (q *Queue) Deliveries(ctx domain.Context) (<-chan domain.Delivery, error) {
	if err := q.ch.Qos(1, 0, false); err != nil {
		return nil, fmt.Errorf("qos: %w", translate(err))
	}
	msgs, err := q.ch.Consume(q.name, "", false, false, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("consume: %w", translate(err))
	}
	out := make(chan domain.Delivery)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case d, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- wrapDelivery(d):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func wrapDelivery(d amqp.Delivery) domain.Delivery {
	return domain.Delivery{
		Body:      d.Body,
		MessageID: d.MessageId,
		Ack:       func() error { return d.Ack(false) },
		Reject:    func() error { return d.Nack(false, false) },
	}
}

// translate maps closed-connection failures onto the domain sentinel the
// run harness restarts on.
func translate(err error) error {
	if errors.Is(err, amqp.ErrClosed) {
		return fmt.Errorf("%w: %v", domain.ErrConnectionLost, err)
	}
	return err
}

// Close releases the channel and connection.
func (q *Queue) Close() error {
	if q.ch != nil {
		_ = q.ch.Close()
	}
	if q.conn != nil {
		return q.conn.Close()
	}
	return nil
}
