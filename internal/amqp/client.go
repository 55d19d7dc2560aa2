// Package amqp carries record-changed events from the server to the worker.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"fintrack/internal/log"
	"fintrack/internal/metrics"

	"github.com/rabbitmq/amqp091-go"
)

// Circuit breaker states.
const (
	StateClosed int32 = iota
	StateOpen
	StateHalfOpen
)

const (
	maxFailures    = 5
	openTimeout    = 30 * time.Second
	publishTimeout = 5 * time.Second
	maxBackoff     = 30 * time.Second
)

// ErrCircuitOpen is returned by Publish while the broker is considered down.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// Publisher is what the server and the recurring processor need.
type Publisher interface {
	PublishRecordChanged(ctx context.Context, msg *RecordChangedMessage) error
}

// Client publishes and consumes record-changed messages on a durable direct
// exchange. The connection is opened lazily and re-dialed after connection
// errors; repeated failures open a circuit breaker.
type Client struct {
	url          string
	exchangeName string
	queueName    string
	routingKey   string
	// subscriber clients own a private auto-delete queue, so every
	// subscriber sees every message instead of competing for them.
	subscriber bool
	logger     *log.Logger

	mu      sync.Mutex
	conn    *amqp091.Connection
	channel *amqp091.Channel

	state        int32
	failureCount int64
	lastFailure  time.Time
}

// NewClient dials the broker and declares the exchange, queue and binding.
func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	c := newClient(url, exchangeName, queueName, logger)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

// NewSubscriber dials the broker and binds a private queue to the messages
// published under routingKey. The worker's durable queue is left alone.
func NewSubscriber(url, exchangeName, routingKey string, logger *log.Logger) (*Client, error) {
	c := newSubscriber(url, exchangeName, routingKey, logger)
	if err := c.connect(); err != nil {
		return nil, err
	}
	return c, nil
}

func newClient(url, exchangeName, queueName string, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.Default(log.ComponentAMQP)
	}
	return &Client{
		url:          url,
		exchangeName: exchangeName,
		queueName:    queueName,
		routingKey:   queueName,
		logger:       logger.WithComponent(log.ComponentAMQP),
	}
}

func newSubscriber(url, exchangeName, routingKey string, logger *log.Logger) *Client {
	c := newClient(url, exchangeName, "", logger)
	c.routingKey = routingKey
	c.subscriber = true
	return c
}

func (c *Client) connect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.channel != nil && !c.channel.IsClosed() {
		return nil
	}
	c.closeLocked()

	conn, err := amqp091.Dial(c.url)
	if err != nil {
		return fmt.Errorf("dial AMQP: %w", err)
	}
	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	c.conn, c.channel = conn, channel

	if err := c.setup(); err != nil {
		c.closeLocked()
		return fmt.Errorf("setup exchange and queue: %w", err)
	}
	return nil
}

func (c *Client) setup() error {
	err := c.channel.ExchangeDeclare(
		c.exchangeName, // name
		"direct",       // type
		true,           // durable
		false,          // auto-deleted
		false,          // internal
		false,          // no-wait
		nil,            // arguments
	)
	if err != nil {
		return fmt.Errorf("declare exchange: %w", err)
	}

	if c.subscriber {
		q, err := c.channel.QueueDeclare(
			"",    // name chosen by the broker
			false, // durable
			true,  // delete when unused
			true,  // exclusive
			false, // no-wait
			nil,   // arguments
		)
		if err != nil {
			return fmt.Errorf("declare subscriber queue: %w", err)
		}
		c.queueName = q.Name
	} else {
		_, err = c.channel.QueueDeclare(
			c.queueName, // name
			true,        // durable
			false,       // delete when unused
			false,       // exclusive
			false,       // no-wait
			nil,         // arguments
		)
		if err != nil {
			return fmt.Errorf("declare queue: %w", err)
		}
	}

	if err := c.channel.QueueBind(c.queueName, c.routingKey, c.exchangeName, false, nil); err != nil {
		return fmt.Errorf("bind queue: %w", err)
	}
	return nil
}

// PublishRecordChanged publishes msg as a persistent JSON message.
func (c *Client) PublishRecordChanged(ctx context.Context, msg *RecordChangedMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if c.isCircuitOpen() {
		metrics.IncEvent("publish", "rejected")
		return ErrCircuitOpen
	}

	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	c.mu.Lock()
	err = c.connectLocked()
	if err == nil {
		err = c.channel.PublishWithContext(ctx,
			c.exchangeName, // exchange
			c.routingKey,   // routing key
			false,          // mandatory
			false,          // immediate
			amqp091.Publishing{
				ContentType:  "application/json",
				DeliveryMode: amqp091.Persistent,
				Timestamp:    msg.Timestamp,
				Body:         body,
			})
		if err != nil && isConnectionError(err) {
			c.closeLocked()
		}
	}
	c.mu.Unlock()

	if err != nil {
		c.recordFailure()
		metrics.IncEvent("publish", "error")
		return fmt.Errorf("publish message: %w", err)
	}
	c.recordSuccess()
	metrics.IncEvent("publish", "ok")

	c.logger.DebugContext(ctx, "Published record changed message",
		log.FieldUserID, msg.UserID,
		log.FieldEntity, msg.Entity,
		log.FieldRecordID, msg.ID,
		log.FieldOperation, msg.Op)
	return nil
}

// Handler processes one message. A returned error requeues the message.
type Handler func(ctx context.Context, msg *RecordChangedMessage) error

// ConsumeRecordChanged delivers messages to handler until ctx is done.
// Messages are acknowledged after handler succeeds, requeued when it fails
// and dropped when they cannot be decoded. Lost connections are re-dialed.
func (c *Client) ConsumeRecordChanged(ctx context.Context, handler Handler) error {
	attempt := 0
	for {
		msgs, err := c.consume()
		if err != nil {
			if !isConnectionError(err) {
				return err
			}
			delay := exponentialBackoff(attempt)
			attempt++
			c.logger.WarnContext(ctx, "AMQP consumer unavailable, retrying",
				log.FieldError, err,
				"retry_in", delay)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			continue
		}
		attempt = 0
		c.logger.InfoContext(ctx, "Started consuming record changed messages", "queue", c.queueName)

		if err := c.drain(ctx, msgs, handler); err != nil {
			return err
		}
		c.logger.WarnContext(ctx, "AMQP delivery channel closed, reconnecting")
		c.mu.Lock()
		c.closeLocked()
		c.mu.Unlock()
	}
}

func (c *Client) consume() (<-chan amqp091.Delivery, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.connectLocked(); err != nil {
		return nil, err
	}
	msgs, err := c.channel.Consume(
		c.queueName, // queue
		"",          // consumer
		false,       // auto-ack
		false,       // exclusive
		false,       // no-local
		false,       // no-wait
		nil,         // args
	)
	if err != nil {
		return nil, fmt.Errorf("start consuming: %w", err)
	}
	return msgs, nil
}

// drain returns nil when the delivery channel closes and ctx.Err() when ctx
// is done.
func (c *Client) drain(ctx context.Context, msgs <-chan amqp091.Delivery, handler Handler) error {
	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case d, ok := <-msgs:
			if !ok {
				return nil
			}
			c.handleDelivery(ctx, d, handler)
		}
	}
}

func (c *Client) handleDelivery(ctx context.Context, d amqp091.Delivery, handler Handler) {
	msg, err := RecordChangedMessageFromJSON(d.Body)
	if err != nil {
		c.logger.ErrorContext(ctx, "Dropping malformed message", log.FieldError, err)
		metrics.IncEvent("consume", "malformed")
		if nerr := d.Nack(false, false); nerr != nil {
			c.logger.ErrorContext(ctx, "Failed to nack message", log.FieldError, nerr)
		}
		return
	}

	fields := log.NewFields().
		WithRecord(msg.UserID, string(msg.Entity), msg.ID).
		WithOperation(msg.Op)

	if err := handler(ctx, msg); err != nil {
		c.logger.ErrorContext(ctx, "Failed to handle message, requeueing", fields.WithError(err).ToSlice()...)
		metrics.IncEvent("consume", "requeued")
		if nerr := d.Nack(false, true); nerr != nil {
			c.logger.ErrorContext(ctx, "Failed to nack message", log.FieldError, nerr)
		}
		return
	}

	if err := d.Ack(false); err != nil {
		c.logger.ErrorContext(ctx, "Failed to ack message", log.FieldError, err)
		return
	}
	metrics.IncEvent("consume", "ok")
	c.logger.InfoContext(ctx, "Processed record changed message", fields.ToSlice()...)
}

func (c *Client) isCircuitOpen() bool {
	if atomic.LoadInt32(&c.state) != StateOpen {
		return false
	}
	c.mu.Lock()
	last := c.lastFailure
	c.mu.Unlock()
	if time.Since(last) > openTimeout {
		atomic.StoreInt32(&c.state, StateHalfOpen)
		return false
	}
	return true
}

func (c *Client) recordFailure() {
	n := atomic.AddInt64(&c.failureCount, 1)
	c.mu.Lock()
	c.lastFailure = time.Now()
	c.mu.Unlock()
	if n >= maxFailures || atomic.LoadInt32(&c.state) == StateHalfOpen {
		if atomic.SwapInt32(&c.state, StateOpen) != StateOpen {
			c.logger.Warn("AMQP circuit breaker opened", "failures", n)
		}
	}
}

func (c *Client) recordSuccess() {
	atomic.StoreInt64(&c.failureCount, 0)
	atomic.StoreInt32(&c.state, StateClosed)
}

// exponentialBackoff doubles from one second, capped at maxBackoff.
func exponentialBackoff(attempt int) time.Duration {
	if attempt >= 5 {
		return maxBackoff
	}
	d := time.Second << attempt
	if d > maxBackoff {
		return maxBackoff
	}
	return d
}

var connectionErrorMarkers = []string{
	"connection refused",
	"connection closed",
	"connection reset",
	"eof",
	"broken pipe",
	"use of closed network connection",
	"channel/connection is not open",
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp091.ErrClosed) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range connectionErrorMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func (c *Client) closeLocked() {
	if c.channel != nil {
		c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	var err error
	if c.channel != nil {
		err = c.channel.Close()
		c.channel = nil
	}
	if c.conn != nil {
		if cerr := c.conn.Close(); cerr != nil && !errors.Is(cerr, amqp091.ErrClosed) {
			err = errors.Join(err, cerr)
		}
		c.conn = nil
	}
	return err
}
