package amqp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/rabbitmq/amqp091-go"
	"github.com/sony/gobreaker"

	"findot/internal/events"
	"findot/internal/log"
)

// Handler applies one ledger event. Returning an error requeues the message.
type Handler func(ctx context.Context, ev events.LedgerEvent) error

// Client publishes and consumes ledger events on a durable direct exchange.
type Client struct {
	url          string
	exchangeName string
	queueName    string
	logger       *log.Logger
	breaker      *gobreaker.CircuitBreaker

	// dialMu serializes reconnects from Publish and Consume.
	dialMu  sync.Mutex
	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel
}

var _ events.Publisher = (*Client)(nil)

func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	c := newClient(url, exchangeName, queueName, logger)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(url, exchangeName, queueName string, logger *log.Logger) *Client {
	return &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "amqp-publish",
			MaxRequests: 1,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
		}),
	}
}

// connect dials a fresh connection unless another caller already replaced
// a closed channel. The replaced channel and connection are closed.
func (c *Client) connect() error {
	c.dialMu.Lock()
	defer c.dialMu.Unlock()

	c.mu.Lock()
	current := c.channel
	c.mu.Unlock()
	if current != nil && !current.IsClosed() {
		return nil
	}

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := setup(channel, c.exchangeName, c.queueName); err != nil {
		channel.Close()
		conn.Close()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	var stale []io.Closer
	if c.channel != nil {
		stale = append(stale, c.channel)
	}
	if c.conn != nil {
		stale = append(stale, c.conn)
	}
	closeAll(stale...)
	c.conn, c.channel = conn, channel
	return nil
}

// closeAll closes in order, ignoring errors from links that are already down.
func closeAll(closers ...io.Closer) {
	for _, cl := range closers {
		_ = cl.Close()
	}
}

func setup(ch *amqp091.Channel, exchange, queue string) error {
	if err := ch.ExchangeDeclare(exchange, "direct", true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue: %w", err)
	}
	// routing key equals the queue name on a direct exchange
	if err := ch.QueueBind(queue, queue, exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// Publish sends ev as a persistent JSON message. After repeated failures the
// breaker opens and publishes fail fast until the broker recovers.
func (c *Client) Publish(ctx context.Context, ev events.LedgerEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	body, err := NewLedgerEventMessage(ev).ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	_, err = c.breaker.Execute(func() (interface{}, error) {
		c.mu.Lock()
		ch := c.channel
		c.mu.Unlock()
		if ch == nil || ch.IsClosed() {
			if err := c.connect(); err != nil {
				return nil, err
			}
			c.mu.Lock()
			ch = c.channel
			c.mu.Unlock()
		}

		pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return nil, ch.PublishWithContext(pubCtx, c.exchangeName, c.queueName, false, false, amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			Timestamp:    time.Now(),
			Body:         body,
		})
	})
	if err != nil {
		return fmt.Errorf("publish %s event: %w", ev.Kind, err)
	}
	c.logger.DebugContext(ctx, "Published ledger event", log.FieldEvent, string(ev.Kind), log.FieldRowRef, string(ev.Ref))
	return nil
}

// acknowledger is the part of amqp091.Delivery used by process.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// process decodes one delivery and runs handler on it. Undecodable messages
// are dropped; handler failures are requeued.
func (c *Client) process(ctx context.Context, body []byte, d acknowledger, handler Handler) {
	msg, err := LedgerEventMessageFromJSON(body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Failed to decode ledger event", log.FieldError, err)
		_ = d.Nack(false, false)
		return
	}
	if err := handler(ctx, msg.Event()); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle ledger event",
			log.FieldEvent, msg.Kind, log.FieldRowRef, msg.Ref, log.FieldError, err)
		_ = d.Nack(false, true)
		return
	}
	_ = d.Ack(false)
}

// Consume delivers events to handler until ctx ends, reconnecting with
// exponential backoff when the broker connection drops.
func (c *Client) Consume(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		err := c.consumeOnce(ctx, handler)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil && !isConnectionError(err) {
			return err
		}
		wait := exponentialBackoff(attempt)
		c.logger.WarnContext(ctx, "AMQP consumer disconnected, reconnecting", log.FieldError, err, "backoff", wait.String())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		if err := c.connect(); err != nil {
			attempt++
			continue
		}
		attempt = 0
	}
}

func (c *Client) consumeOnce(ctx context.Context, handler Handler) error {
	c.mu.Lock()
	ch := c.channel
	c.mu.Unlock()
	if ch == nil {
		return errors.New("connection closed")
	}
	if err := ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("set qos: %w", err)
	}
	msgs, err := ch.Consume(c.queueName, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}
	c.logger.InfoContext(ctx, "Consuming ledger events", "queue", c.queueName)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("connection closed")
			}
			c.process(ctx, delivery.Body, delivery, handler)
		}
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// exponentialBackoff doubles from one second, capped at thirty.
func exponentialBackoff(attempt int) time.Duration {
	if attempt > 5 {
		return 30 * time.Second
	}
	d := time.Second << attempt
	if d > 30*time.Second {
		return 30 * time.Second
	}
	return d
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, s := range []string{"connection refused", "connection closed", "eof", "broken pipe", "use of closed network connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
