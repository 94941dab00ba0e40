// Package broadcast fans fixture events out to the connections watching a
// fixture. The hub holds no membership of its own: it asks a Directory for
// the members at publish time and enqueues to each one without blocking.
package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/albapepper/scoracle-live/internal/match"
)

var (
	// ErrOutboxFull means the subscriber is not draining fast enough; the
	// message was dropped for that subscriber only.
	ErrOutboxFull = errors.New("outbox full")
	// ErrClosed means the subscriber's connection has gone away.
	ErrClosed = errors.New("subscriber closed")
)

// Message is one server frame: {"event","fixtureId","version","data","ts"}.
// Version is the fixture version that produced the event; events of one
// commit share it. A viewer seeing it skip a value has missed a commit and
// should refetch the snapshot. Audience and control frames carry none.
type Message struct {
	Type      match.EventType `json:"event"`
	FixtureID string          `json:"fixtureId"`
	Version   int64           `json:"version,omitempty"`
	Payload   any             `json:"data"`
	SentAt    time.Time       `json:"ts"`
}

// Encode renders m as a wire frame.
func Encode(m Message) ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s for %s: %w", m.Type, m.FixtureID, err)
	}
	return data, nil
}

// Subscriber receives frames for the fixture it watches. Deliver must not
// block; it enqueues data or fails.
type Subscriber interface {
	ID() string
	Deliver(msg Message, data []byte) error
}

// Directory resolves the current members of a fixture room.
type Directory interface {
	Members(fixtureID string) []Subscriber
}

// Mirror receives a copy of every published message, e.g. for relaying to
// a message broker. Mirror must not block.
type Mirror interface {
	Mirror(msg Message)
}

// Failure is one subscriber that could not take a message.
type Failure struct {
	SubscriberID string
	Err          error
}

// Fanout encodes msg once and delivers it to every subscriber in subs. It
// never blocks on a slow subscriber.
func Fanout(subs []Subscriber, msg Message) (delivered int, failures []Failure, err error) {
	data, err := Encode(msg)
	if err != nil {
		return 0, nil, err
	}
	for _, s := range subs {
		if derr := s.Deliver(msg, data); derr != nil {
			failures = append(failures, Failure{SubscriberID: s.ID(), Err: derr})
			continue
		}
		delivered++
	}
	return delivered, failures, nil
}

// Option configures a Hub.
type Option func(*Hub)

// WithMirror attaches a mirror that sees every published message.
func WithMirror(m Mirror) Option {
	return func(h *Hub) { h.mirror = m }
}

// WithNow replaces the timestamp source.
func WithNow(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

// Hub is the BroadcastHub.
type Hub struct {
	dir    Directory
	mirror Mirror
	logger *slog.Logger
	now    func() time.Time
}

// NewHub creates a hub publishing to the members listed by dir.
func NewHub(dir Directory, logger *slog.Logger, opts ...Option) *Hub {
	h := &Hub{dir: dir, logger: logger, now: time.Now}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Publish sends one event of fixture version to every connection subscribed
// to fixtureID right now. Delivery problems are logged per subscriber and
// never returned.
func (h *Hub) Publish(fixtureID string, version int64, eventType match.EventType, payload any) int {
	msg := Message{
		Type:      eventType,
		FixtureID: fixtureID,
		Version:   version,
		Payload:   payload,
		SentAt:    h.now().UTC(),
	}
	if h.mirror != nil {
		h.mirror.Mirror(msg)
	}

	delivered, failures, err := Fanout(h.dir.Members(fixtureID), msg)
	if err != nil {
		h.logger.Error("Broadcast encode failed", "fixture_id", fixtureID, "event", eventType, "error", err)
		return 0
	}
	for _, f := range failures {
		h.logger.Warn("Broadcast delivery dropped",
			"fixture_id", fixtureID, "event", eventType,
			"conn_id", f.SubscriberID, "error", f.Err)
	}
	return delivered
}

// PublishDelta publishes each change of d in order, all stamped with version.
func (h *Hub) PublishDelta(fixtureID string, version int64, d match.Delta) {
	for _, c := range d {
		h.Publish(fixtureID, version, c.Type, c.Payload)
	}
}
