package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/Harsh-BH/geocache/internal/broker"
	"github.com/Harsh-BH/geocache/internal/domain"
)

const (
	// Connection settings
	dialTimeout    = 2 * time.Second
	redialInterval = 1 * time.Second

	// Publish timeout
	publishTimeout = 3 * time.Second
)

var errReconnecting = errors.New("connection not available (reconnecting)")

// Publisher defines the interface for publishing jobs to the message broker.
type Publisher interface {
	Publish(ctx context.Context, job *domain.GeocodeJob) error

	// Inspect reports how many consumers are attached to the job queue.
	Inspect(ctx context.Context) (consumers int, err error)

	Close() error
}

type rabbitPublisher struct {
	url      string
	conn     *amqp.Connection
	channel  *amqp.Channel
	lastDial time.Time
	logger   *zap.Logger
	mu       sync.Mutex
	closed   bool
}

// NewRabbitMQPublisher creates a RabbitMQ publisher. It does not dial: the
// connection is opened on first use and reopened on the first use after it drops,
// so an unreachable broker at startup only disables the async path.
func NewRabbitMQPublisher(url string, logger *zap.Logger) Publisher {
	return &rabbitPublisher{
		url:    url,
		logger: logger,
	}
}

// acquire returns a usable confirm-mode channel, dialing if needed. Redials are
// rate limited so a down broker costs at most one dial per redialInterval.
func (p *rabbitPublisher) acquire() (*amqp.Connection, *amqp.Channel, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, nil, errors.New("publisher closed")
	}
	if p.conn != nil && !p.conn.IsClosed() {
		if p.channel != nil && !p.channel.IsClosed() {
			return p.conn, p.channel, nil
		}
		ch, err := p.openChannel(p.conn)
		if err != nil {
			return nil, nil, err
		}
		p.channel = ch
		return p.conn, ch, nil
	}

	if time.Since(p.lastDial) < redialInterval {
		return nil, nil, errReconnecting
	}
	p.lastDial = time.Now()

	conn, err := amqp.DialConfig(p.url, amqp.Config{
		Dial:      amqp.DefaultDial(dialTimeout),
		Heartbeat: 10 * time.Second,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("dial: %w", err)
	}

	ch, err := p.openChannel(conn)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	if err := broker.Declare(ch); err != nil {
		ch.Close()
		conn.Close()
		return nil, nil, err
	}

	p.conn = conn
	p.channel = ch
	go p.watchConnection(conn, conn.NotifyClose(make(chan *amqp.Error, 1)))

	p.logger.Info("RabbitMQ publisher connected",
		zap.String("exchange", broker.ExchangeName),
		zap.String("queue", broker.QueueName),
	)
	return conn, ch, nil
}

func (p *rabbitPublisher) openChannel(conn *amqp.Connection) (*amqp.Channel, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("channel: %w", err)
	}
	// Enable publisher confirms
	if err := ch.Confirm(false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("enable confirms: %w", err)
	}
	return ch, nil
}

// watchConnection drops the cached handles when the connection closes so the
// next publish or probe redials.
func (p *rabbitPublisher) watchConnection(conn *amqp.Connection, closed <-chan *amqp.Error) {
	reason, ok := <-closed

	p.mu.Lock()
	if p.conn == conn {
		p.conn = nil
		p.channel = nil
	}
	shuttingDown := p.closed
	p.mu.Unlock()

	if ok && !shuttingDown {
		p.logger.Warn("RabbitMQ connection lost, will redial on next use",
			zap.String("reason", reason.Error()),
		)
	}
}

func (p *rabbitPublisher) Publish(ctx context.Context, job *domain.GeocodeJob) error {
	body, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("rabbitmq: marshal job: %w", err)
	}

	_, ch, err := p.acquire()
	if err != nil {
		return fmt.Errorf("rabbitmq: %w", err)
	}

	publishCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := ch.PublishWithDeferredConfirmWithContext(publishCtx,
		broker.ExchangeName,
		broker.RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.JobID,
			Timestamp:    time.Now(),
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish: %w", err)
	}

	// Wait for broker confirmation
	acked, err := confirm.WaitContext(publishCtx)
	if err != nil {
		return fmt.Errorf("rabbitmq: publish confirmation (job_id=%s): %w", job.JobID, err)
	}
	if !acked {
		return fmt.Errorf("rabbitmq: broker nacked message (job_id=%s)", job.JobID)
	}

	p.logger.Debug("Published job to RabbitMQ",
		zap.String("job_id", job.JobID),
		zap.String("kind", string(job.Kind)),
		zap.Int("body_size", len(body)),
	)
	return nil
}

// Inspect opens a throw-away channel and passively declares the job queue. A
// passive declare failure closes the channel it ran on, which is why it does not
// use the publishing channel.
func (p *rabbitPublisher) Inspect(ctx context.Context) (int, error) {
	type result struct {
		consumers int
		err       error
	}
	done := make(chan result, 1)

	go func() {
		conn, _, err := p.acquire()
		if err != nil {
			done <- result{err: err}
			return
		}
		ch, err := conn.Channel()
		if err != nil {
			done <- result{err: fmt.Errorf("channel: %w", err)}
			return
		}
		defer ch.Close()

		q, err := ch.QueueDeclarePassive(broker.QueueName, true, false, false, false, broker.QueueArgs())
		if err != nil {
			done <- result{err: fmt.Errorf("inspect queue: %w", err)}
			return
		}
		done <- result{consumers: q.Consumers}
	}()

	select {
	case r := <-done:
		if r.err != nil {
			return 0, fmt.Errorf("rabbitmq: %w", r.err)
		}
		return r.consumers, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("rabbitmq: inspect: %w", ctx.Err())
	}
}

func (p *rabbitPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.closed = true

	if p.channel != nil {
		p.channel.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
