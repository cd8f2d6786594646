package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/streadway/amqp"

	"medreport/models"
)

const (
	// maxDialTimeout bounds connection setup, including the AMQP handshake.
	maxDialTimeout = 3 * time.Second
	// redialInterval is how long publishes fail fast after a failed connect.
	redialInterval = 10 * time.Second
)

// Publisher sends report events to a direct exchange, reconnecting lazily
// when the broker drops the connection.
type Publisher struct {
	mu         sync.Mutex
	amqpURL    string
	conn       *amqp.Connection
	channel    *amqp.Channel
	exchange   string
	routingKey string
	// nextDial holds off reconnects after a failure so that callers do not
	// queue behind the mutex while the broker is down.
	nextDial time.Time
	now      func() time.Time
}

// NewPublisher connects to the broker and declares the exchange.
func NewPublisher(ctx context.Context, amqpURL, exchange, routingKey string) (*Publisher, error) {
	p := &Publisher{
		amqpURL:    amqpURL,
		exchange:   exchange,
		routingKey: routingKey,
		now:        time.Now,
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if err := p.connectLocked(ctx); err != nil {
		return nil, err
	}
	return p, nil
}

// PublishReportEvent publishes event with the configured routing key.
func (p *Publisher) PublishReportEvent(ctx context.Context, event models.ReportEvent) error {
	publishing, err := newPublishing(event)
	if err != nil {
		return err
	}
	return p.publish(ctx, p.routingKey, publishing)
}

func newPublishing(message any) (amqp.Publishing, error) {
	body, err := json.Marshal(message)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal message to JSON: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
		Timestamp:    time.Now(),
	}, nil
}

// Close closes the channel and the connection.
func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	if p.channel != nil {
		if chErr := p.channel.Close(); chErr != nil {
			log.WithError(chErr).Warn("Failed to close AMQP channel")
			err = chErr
		}
		p.channel = nil
	}
	if p.conn != nil {
		if connErr := p.conn.Close(); connErr != nil {
			log.WithError(connErr).Warn("Failed to close AMQP connection")
			if err == nil {
				err = connErr
			}
		}
		p.conn = nil
	}
	return err
}

// IsConnected reports whether the publisher holds an open channel.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && !p.conn.IsClosed() && p.channel != nil
}

// dialTimeout is the time left on ctx, capped at maxDialTimeout.
func dialTimeout(ctx context.Context) time.Duration {
	timeout := maxDialTimeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return timeout
}

func (p *Publisher) connectLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context done before connecting: %w", err)
	}
	timeout := dialTimeout(ctx)
	if timeout <= 0 {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", context.DeadlineExceeded)
	}

	conn, err := amqp.DialConfig(p.amqpURL, amqp.Config{
		Heartbeat: 10 * time.Second,
		Locale:    "en_US",
		Dial:      amqp.DefaultDial(timeout),
	})
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.ExchangeDeclare(p.exchange, "direct", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Channel setup does not take a context; honor cancellation afterwards.
	if err := ctx.Err(); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("context done while connecting: %w", err)
	}

	p.conn = conn
	p.channel = ch
	return nil
}

// reconnectLocked replaces a dead connection, failing fast while a recent
// attempt is still cooling down.
func (p *Publisher) reconnectLocked(ctx context.Context) error {
	now := p.clock()
	if now.Before(p.nextDial) {
		return fmt.Errorf("failed to connect to RabbitMQ: broker unavailable, next attempt in %s",
			p.nextDial.Sub(now).Round(time.Second))
	}
	p.closeLocked()
	if err := p.connectLocked(ctx); err != nil {
		p.nextDial = p.clock().Add(redialInterval)
		return err
	}
	p.nextDial = time.Time{}
	return nil
}

func (p *Publisher) clock() time.Time {
	if p.now == nil {
		return time.Now()
	}
	return p.now()
}

func (p *Publisher) closeLocked() {
	if p.channel != nil {
		_ = p.channel.Close()
		p.channel = nil
	}
	if p.conn != nil {
		_ = p.conn.Close()
		p.conn = nil
	}
}

func isConnClosedErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, amqp.ErrClosed) {
		return true
	}
	return strings.Contains(err.Error(), "channel/connection is not open")
}

func (p *Publisher) publish(ctx context.Context, routingKey string, publishing amqp.Publishing) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil || p.conn.IsClosed() || p.channel == nil {
		if err := p.reconnectLocked(ctx); err != nil {
			return err
		}
	}

	err := p.channel.Publish(p.exchange, routingKey, false, false, publishing)
	if err != nil && isConnClosedErr(err) {
		log.WithError(err).Warn("AMQP connection lost, reconnecting")
		if connErr := p.reconnectLocked(ctx); connErr != nil {
			return fmt.Errorf("failed to publish message: %w (reconnect failed: %v)", err, connErr)
		}
		err = p.channel.Publish(p.exchange, routingKey, false, false, publishing)
	}
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}
