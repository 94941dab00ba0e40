// Package relay mirrors every published fixture event onto an AMQP topic
// exchange so downstream consumers (stats archiving, notifications) can
// follow a match without holding a WebSocket.
//
// The relay never slows the broadcast path: Mirror enqueues without
// blocking and drops the message when the queue is full.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/streadway/amqp"

	"github.com/albapepper/scoracle-live/internal/broadcast"
	"github.com/albapepper/scoracle-live/internal/match"
)

const defaultQueueSize = 1024

// Publisher is the part of *amqp.Channel the relay needs.
type Publisher interface {
	Publish(exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
}

// Relay forwards broadcast messages to an exchange from one goroutine.
type Relay struct {
	pub      Publisher
	exchange string
	logger   *slog.Logger
	queue    chan broadcast.Message

	conn      *amqp.Connection
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	published atomic.Int64
	dropped   atomic.Int64
	failed    atomic.Int64
}

// New creates a relay over an existing publisher.
func New(pub Publisher, exchange string, size int, logger *slog.Logger) *Relay {
	if size < 1 {
		size = defaultQueueSize
	}
	return &Relay{
		pub:      pub,
		exchange: exchange,
		logger:   logger,
		queue:    make(chan broadcast.Message, size),
		done:     make(chan struct{}),
	}
}

// Dial connects to the broker and declares a durable topic exchange.
func Dial(url, exchange string, logger *slog.Logger) (*Relay, error) {
	conn, err := amqp.DialConfig(url, amqp.Config{
		Heartbeat: 30 * time.Second,
		Locale:    "en_US",
	})
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(
		exchange,
		amqp.ExchangeTopic,
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("declare exchange %s: %w", exchange, err)
	}

	r := New(ch, exchange, defaultQueueSize, logger)
	r.conn = conn
	go r.watch(conn.NotifyClose(make(chan *amqp.Error, 1)))
	logger.Info("Event relay connected", "exchange", exchange)
	return r, nil
}

func (r *Relay) watch(closed <-chan *amqp.Error) {
	if err, ok := <-closed; ok && err != nil {
		r.logger.Error("Event relay connection closed", "error", err)
	}
}

// RoutingKey is fixture.<id>.<event>. Dots inside the id would split the key
// into extra words, so they are replaced.
func RoutingKey(fixtureID string, t match.EventType) string {
	return "fixture." + strings.ReplaceAll(fixtureID, ".", "_") + "." + string(t)
}

// Mirror enqueues msg for publishing. It never blocks.
func (r *Relay) Mirror(msg broadcast.Message) {
	select {
	case <-r.done:
		return
	default:
	}
	select {
	case r.queue <- msg:
	default:
		if r.dropped.Add(1)%100 == 1 {
			r.logger.Warn("Event relay queue full, dropping", "fixture_id", msg.FixtureID,
				"event", msg.Type, "dropped", r.dropped.Load())
		}
	}
}

// Start runs the publishing loop in the background until ctx ends or Close.
func (r *Relay) Start(ctx context.Context) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		r.run(ctx)
	}()
}

func (r *Relay) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case msg := <-r.queue:
			r.publish(msg)
		}
	}
}

func (r *Relay) publish(msg broadcast.Message) {
	body, err := broadcast.Encode(msg)
	if err != nil {
		r.failed.Add(1)
		r.logger.Error("Failed to encode relayed event", "fixture_id", msg.FixtureID, "event", msg.Type, "error", err)
		return
	}
	err = r.pub.Publish(r.exchange, RoutingKey(msg.FixtureID, msg.Type), false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    msg.SentAt,
		Type:         string(msg.Type),
		Body:         body,
	})
	if err != nil {
		r.failed.Add(1)
		r.logger.Warn("Failed to relay event", "fixture_id", msg.FixtureID, "event", msg.Type, "error", err)
		return
	}
	r.published.Add(1)
}

// Stats reports relay counters.
func (r *Relay) Stats() map[string]int64 {
	return map[string]int64{
		"published": r.published.Load(),
		"dropped":   r.dropped.Load(),
		"failed":    r.failed.Load(),
	}
}

// Close stops the loop and closes the broker connection, if any.
// Messages still queued are discarded.
func (r *Relay) Close() error {
	r.closeOnce.Do(func() { close(r.done) })
	r.wg.Wait()
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}
