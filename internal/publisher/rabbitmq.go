package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/domain"
	"github.com/Harsh-BH/oplock/internal/metrics"
)

const (
	exchangeType = "topic"

	// Reconnection settings
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 30 * time.Second

	// Publish timeout
	publishTimeout = 5 * time.Second

	eventBufferSize = 1024
)

var (
	// ErrPublisherClosed is returned by Publish after Close.
	ErrPublisherClosed = errors.New("publisher is closed")

	// ErrBufferFull is returned when the event could not be queued.
	ErrBufferFull = errors.New("event buffer full, event dropped")
)

type rabbitPublisher struct {
	url      string
	exchange string
	conn     *amqp.Connection
	channel  *amqp.Channel
	logger   *zap.Logger
	mu       sync.RWMutex
	closed   bool

	events chan *domain.LockEvent
	done   chan struct{}
	wg     sync.WaitGroup
}

// NewRabbitMQPublisher connects to the broker, declares the durable topic
// exchange and starts the background publish loop.
func NewRabbitMQPublisher(url, exchange string, logger *zap.Logger) (Publisher, error) {
	p := &rabbitPublisher{
		url:      url,
		exchange: exchange,
		logger:   logger,
		events:   make(chan *domain.LockEvent, eventBufferSize),
		done:     make(chan struct{}),
	}

	if err := p.connect(); err != nil {
		return nil, err
	}

	// Watch for connection closures and reconnect
	go p.watchConnection()

	p.wg.Add(1)
	go p.loop()

	return p, nil
}

func (p *rabbitPublisher) connect() error {
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("rabbitmq: dial: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("rabbitmq: channel: %w", err)
	}

	// Enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: enable confirms: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, exchangeType, true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("rabbitmq: declare exchange: %w", err)
	}

	p.mu.Lock()
	p.conn = conn
	p.channel = ch
	p.mu.Unlock()

	p.logger.Info("RabbitMQ event publisher initialized", zap.String("exchange", p.exchange))

	return nil
}

// watchConnection monitors the connection and reconnects on failure.
func (p *rabbitPublisher) watchConnection() {
	for {
		p.mu.RLock()
		if p.closed {
			p.mu.RUnlock()
			return
		}
		conn := p.conn
		p.mu.RUnlock()

		if conn == nil {
			time.Sleep(reconnectDelay)
			continue
		}

		// Block until the connection closes
		reason, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
		if !ok {
			return
		}

		p.logger.Warn("RabbitMQ connection lost, reconnecting...",
			zap.String("reason", reason.Error()),
		)

		p.mu.Lock()
		p.channel = nil
		p.mu.Unlock()

		delay := reconnectDelay
		for {
			p.mu.RLock()
			if p.closed {
				p.mu.RUnlock()
				return
			}
			p.mu.RUnlock()

			time.Sleep(delay)

			if err := p.connect(); err != nil {
				p.logger.Warn("RabbitMQ reconnect failed", zap.Error(err), zap.Duration("retry_in", delay))
				delay = delay * 2
				if delay > maxReconnectDelay {
					delay = maxReconnectDelay
				}
				continue
			}

			p.logger.Info("RabbitMQ reconnected successfully")
			break
		}
	}
}

// Publish queues the event for the background loop. It never waits for the broker.
func (p *rabbitPublisher) Publish(ctx context.Context, event *domain.LockEvent) error {
	p.mu.RLock()
	closed := p.closed
	p.mu.RUnlock()
	if closed {
		return ErrPublisherClosed
	}

	select {
	case p.events <- event:
		return nil
	case <-p.done:
		return ErrPublisherClosed
	default:
		metrics.EventsDropped.Inc()
		return ErrBufferFull
	}
}

func (p *rabbitPublisher) loop() {
	defer p.wg.Done()
	for {
		select {
		case ev := <-p.events:
			p.send(ev)
		case <-p.done:
			// Flush what is already queued, then exit.
			for {
				select {
				case ev := <-p.events:
					p.send(ev)
				default:
					return
				}
			}
		}
	}
}

func (p *rabbitPublisher) send(event *domain.LockEvent) {
	if err := p.publishOne(event); err != nil {
		metrics.EventsDropped.Inc()
		p.logger.Warn("Failed to publish lock event",
			zap.String("event", string(event.Type)),
			zap.String("operation_id", event.OperationID),
			zap.Error(err),
		)
	}
}

func (p *rabbitPublisher) publishOne(event *domain.LockEvent) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal event: %w", err)
	}

	p.mu.RLock()
	ch := p.channel
	p.mu.RUnlock()

	if ch == nil {
		return fmt.Errorf("rabbitmq: channel not available (reconnecting)")
	}

	msgID, err := uuid.NewV7()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	// Each publish waits on its own delivery tag, so a late ack for an
	// earlier timed-out message cannot be taken for this one.
	conf, err := ch.PublishWithDeferredConfirmWithContext(publishCtx,
		p.exchange,
		string(event.Type),
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    msgID.String(),
			Timestamp:    event.OccurredAt,
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	if conf == nil {
		return fmt.Errorf("rabbitmq: channel not in confirm mode")
	}
	if err := awaitConfirm(publishCtx, conf, event.OperationID); err != nil {
		return err
	}

	p.logger.Debug("Published lock event",
		zap.String("event", string(event.Type)),
		zap.String("operation_id", event.OperationID),
		zap.Int("body_size", len(body)),
	)
	return nil
}

// confirmation is the part of *amqp.DeferredConfirmation publishOne waits on.
type confirmation interface {
	WaitContext(ctx context.Context) (bool, error)
}

// awaitConfirm blocks until the broker confirms this one message or ctx ends.
// A channel closed before the confirm arrives reports as a nack.
func awaitConfirm(ctx context.Context, conf confirmation, operationID string) error {
	acked, err := conf.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation timeout (operation_id=%s): %w", operationID, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked event (operation_id=%s)", operationID)
	}
	return nil
}

// Ping reports whether the broker connection is currently usable.
func (p *rabbitPublisher) Ping(ctx context.Context) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		return fmt.Errorf("rabbitmq: not connected")
	}
	return nil
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	close(p.done)
	p.wg.Wait()

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
