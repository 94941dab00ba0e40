// Package subscription tracks which connection watches which fixture and
// keeps the per-fixture audience count.
package subscription

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/albapepper/scoracle-live/internal/broadcast"
	"github.com/albapepper/scoracle-live/internal/match"
)

type membership struct {
	sub       broadcast.Subscriber
	fixtureID string
}

// Registry is the SubscriptionRegistry. A connection watches at most one
// fixture. Audience updates for a room are sent to that room's members
// while the registry lock is held, so counts arrive in the order they
// changed.
type Registry struct {
	logger *slog.Logger
	mirror broadcast.Mirror
	now    func() time.Time

	mu     sync.RWMutex
	byConn map[string]membership
	rooms  map[string]map[string]broadcast.Subscriber
}

// Option configures a Registry.
type Option func(*Registry)

// WithMirror forwards audience updates to m as well.
func WithMirror(m broadcast.Mirror) Option {
	return func(r *Registry) { r.mirror = m }
}

// New creates an empty registry.
func New(logger *slog.Logger, opts ...Option) *Registry {
	r := &Registry{
		logger: logger,
		now:    time.Now,
		byConn: make(map[string]membership),
		rooms:  make(map[string]map[string]broadcast.Subscriber),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Join subscribes sub to fixtureID, leaving any previous fixture first. It
// returns the new audience count of fixtureID. Joining the same fixture
// again changes nothing.
func (r *Registry) Join(sub broadcast.Subscriber, fixtureID string) int {
	connID := sub.ID()

	r.mu.Lock()
	defer r.mu.Unlock()

	if m, ok := r.byConn[connID]; ok {
		if m.fixtureID == fixtureID {
			return len(r.rooms[fixtureID])
		}
		r.removeLocked(connID, m.fixtureID)
	}

	room, ok := r.rooms[fixtureID]
	if !ok {
		room = make(map[string]broadcast.Subscriber)
		r.rooms[fixtureID] = room
	}
	room[connID] = sub
	r.byConn[connID] = membership{sub: sub, fixtureID: fixtureID}
	r.emitLocked(fixtureID)
	return len(room)
}

// Leave unsubscribes connID. It returns the fixture it left and that
// fixture's remaining audience, or "" and 0 if it was not subscribed.
func (r *Registry) Leave(connID string) (string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.byConn[connID]
	if !ok {
		return "", 0
	}
	n := r.removeLocked(connID, m.fixtureID)
	return m.fixtureID, n
}

// Disconnect is Leave for a connection that has gone away.
func (r *Registry) Disconnect(connID string) {
	if fixtureID, n := r.Leave(connID); fixtureID != "" {
		r.logger.Debug("Connection left on disconnect", "conn_id", connID, "fixture_id", fixtureID, "audience", n)
	}
}

// CountFor returns the number of connections watching fixtureID.
func (r *Registry) CountFor(fixtureID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[fixtureID])
}

// FixtureOf returns the fixture connID watches, if any.
func (r *Registry) FixtureOf(connID string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.byConn[connID]
	return m.fixtureID, ok
}

// Members snapshots the subscribers of fixtureID.
func (r *Registry) Members(fixtureID string) []broadcast.Subscriber {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room := r.rooms[fixtureID]
	out := make([]broadcast.Subscriber, 0, len(room))
	for _, s := range room {
		out = append(out, s)
	}
	return out
}

// Rooms returns the audience count of every fixture with at least one viewer.
func (r *Registry) Rooms() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]int, len(r.rooms))
	for id, room := range r.rooms {
		out[id] = len(room)
	}
	return out
}

// FixtureIDs lists fixtures with viewers, sorted.
func (r *Registry) FixtureIDs() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

func (r *Registry) removeLocked(connID, fixtureID string) int {
	delete(r.byConn, connID)
	room := r.rooms[fixtureID]
	delete(room, connID)
	if len(room) == 0 {
		delete(r.rooms, fixtureID)
	}
	r.emitLocked(fixtureID)
	return len(room)
}

func (r *Registry) emitLocked(fixtureID string) {
	room := r.rooms[fixtureID]
	msg := broadcast.Message{
		Type:      match.AudienceUpdate,
		FixtureID: fixtureID,
		Payload:   match.AudiencePayload{Count: len(room)},
		SentAt:    r.now().UTC(),
	}
	if r.mirror != nil {
		r.mirror.Mirror(msg)
	}

	subs := make([]broadcast.Subscriber, 0, len(room))
	for _, s := range room {
		subs = append(subs, s)
	}
	_, failures, err := broadcast.Fanout(subs, msg)
	if err != nil {
		r.logger.Error("Audience update encode failed", "fixture_id", fixtureID, "error", err)
		return
	}
	for _, f := range failures {
		r.logger.Warn("Audience update dropped", "fixture_id", fixtureID, "conn_id", f.SubscriberID, "error", f.Err)
	}
}
