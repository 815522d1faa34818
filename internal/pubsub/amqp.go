package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

var (
	ErrQueueFull   = errors.New("publish queue full")
	ErrQueueClosed = errors.New("publish queue closed")
)

type amqpChannel interface {
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// AMQPPublisher mirrors realtime messages onto a topic exchange so other
// services can consume them. Publish only enqueues; the loop started by Start
// does the network I/O.
type AMQPPublisher struct {
	channel  amqpChannel
	exchange string
	timeout  time.Duration

	mu     sync.RWMutex
	queue  chan Message
	closed bool

	dropped atomic.Uint64
	closers []func() error

	started atomic.Bool
	drained chan struct{}
}

const drainTimeout = 10 * time.Second

// DialAMQP connects to the broker and declares a durable topic exchange.
func DialAMQP(url, exchange string, bufferSize int) (*AMQPPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dialing broker: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("opening channel: %w", err)
	}

	if err := ch.ExchangeDeclare(exchange, amqp.ExchangeTopic, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declaring exchange %q: %w", exchange, err)
	}

	p := newAMQPPublisher(ch, exchange, bufferSize)
	p.closers = []func() error{ch.Close, conn.Close}
	return p, nil
}

func newAMQPPublisher(ch amqpChannel, exchange string, bufferSize int) *AMQPPublisher {
	if bufferSize <= 0 {
		bufferSize = 1
	}
	return &AMQPPublisher{
		channel:  ch,
		exchange: exchange,
		timeout:  5 * time.Second,
		queue:    make(chan Message, bufferSize),
		drained:  make(chan struct{}),
	}
}

func (p *AMQPPublisher) Publish(_ context.Context, msg Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrQueueClosed
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		p.dropped.Add(1)
		return ErrQueueFull
	}
}

// Start launches the send loop. Cancelling ctx stops it immediately; Close
// stops it after everything already queued has been sent.
func (p *AMQPPublisher) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	go p.run(ctx)
}

func (p *AMQPPublisher) run(ctx context.Context) {
	defer close(p.drained)
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-p.queue:
			if !ok {
				return
			}
			if err := p.send(ctx, msg); err != nil {
				slog.Warn("failed to mirror message to broker", "component", "pubsub", "topic", msg.Topic, "error", err)
			}
		}
	}
}

func (p *AMQPPublisher) send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshaling message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	return p.channel.PublishWithContext(ctx, p.exchange, RoutingKey(msg.Topic), false, false, amqp.Publishing{
		ContentType: "application/json",
		Type:        msg.Type,
		Timestamp:   time.Now().UTC(),
		Body:        body,
	})
}

func (p *AMQPPublisher) Dropped() uint64 {
	return p.dropped.Load()
}

// Close refuses new messages, waits for the queued ones to be sent and then
// closes the broker connection.
func (p *AMQPPublisher) Close() error {
	p.mu.Lock()
	if !p.closed {
		p.closed = true
		close(p.queue)
	}
	p.mu.Unlock()

	if p.started.Load() {
		select {
		case <-p.drained:
		case <-time.After(drainTimeout):
			slog.Warn("broker queue not drained before close", "component", "pubsub", "pending", len(p.queue))
		}
	}

	var errs []error
	for _, c := range p.closers {
		if err := c(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RoutingKey maps "trades/abc/status" to "trades.abc.status" so consumers can
// bind with AMQP wildcards such as "trades.*.status".
func RoutingKey(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}
