// Package engine validates live-fixture commands, applies them through the
// store and publishes the resulting deltas. It also owns the match clock
// lifecycle: timers start when a fixture enters active play and stop when
// it leaves.
//
// Every delta is published from the store's commit hook, while the
// fixture's exclusive section is still held, so subscribers see events in
// commit order.
package engine

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/scoracle-live/internal/clock"
	"github.com/albapepper/scoracle-live/internal/match"
	"github.com/albapepper/scoracle-live/internal/store"
)

// Publisher delivers one event of a committed fixture version to its room.
type Publisher interface {
	Publish(fixtureID string, version int64, eventType match.EventType, payload any) int
}

// Audience reports live viewer counts.
type Audience interface {
	CountFor(fixtureID string) int
}

// Options tune the engine. Zero values take the defaults below.
type Options struct {
	TickInterval    time.Duration // wall time between clock ticks
	TickMinutes     int           // match minutes per tick
	MinuteTolerance int           // how far ahead of the clock an event may be recorded
	MaxCheer        int           // cheers accepted per request
	Now             func() time.Time
	NewID           func() string
	ClockOptions    []clock.Option
}

func (o *Options) defaults() {
	if o.TickInterval <= 0 {
		o.TickInterval = time.Minute
	}
	if o.TickMinutes < 1 {
		o.TickMinutes = 1
	}
	if o.MinuteTolerance < 0 {
		o.MinuteTolerance = 0
	}
	if o.MaxCheer < 1 {
		o.MaxCheer = 10
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
}

// Engine is the LiveFixtureEngine.
type Engine struct {
	store    *store.Store
	hub      Publisher
	audience Audience
	clock    *clock.Clock
	opts     Options
	logger   *slog.Logger
}

// New wires an engine over st. The engine builds its own clock.
func New(st *store.Store, hub Publisher, audience Audience, opts Options, logger *slog.Logger) *Engine {
	opts.defaults()
	e := &Engine{
		store:    st,
		hub:      hub,
		audience: audience,
		opts:     opts,
		logger:   logger,
	}
	e.clock = clock.New(opts.TickInterval, e.advance, logger, opts.ClockOptions...)
	return e
}

// Clock exposes the match clock for inspection.
func (e *Engine) Clock() *clock.Clock { return e.clock }

// Recover loads persisted live fixtures and restarts their clocks.
func (e *Engine) Recover(ctx context.Context) error {
	n, err := e.store.Warm(ctx)
	if err != nil {
		return err
	}
	started := e.clock.RecoverAll(e.store)
	e.logger.Info("Live fixtures recovered", "loaded", n, "clocks", started)
	return nil
}

// Close stops every clock timer.
func (e *Engine) Close() {
	e.clock.StopAll()
}

// Forget drops fixtureID from memory and stops its clock. Persistence is
// untouched; a later access hydrates the fixture again if it is still live.
func (e *Engine) Forget(fixtureID string) bool {
	e.clock.Stop(fixtureID)
	return e.store.Delete(fixtureID)
}

// Reload replaces the in-memory copy with the persisted document and
// restarts its clock when the fixture is in active play.
func (e *Engine) Reload(ctx context.Context, fixtureID string) error {
	e.Forget(fixtureID)
	doc, err := e.store.Load(ctx, fixtureID)
	if err != nil {
		return err
	}
	if doc.Status.ActivePlay() {
		e.clock.Start(fixtureID)
	}
	e.logger.Info("Live fixture reloaded", "fixture_id", fixtureID, "version", doc.Version)
	return nil
}

// GetLiveFixture returns the viewer snapshot of a fixture.
func (e *Engine) GetLiveFixture(ctx context.Context, fixtureID string) (*match.LiveFixture, error) {
	doc, err := e.store.Load(ctx, fixtureID)
	if err != nil {
		return nil, err
	}
	return doc.Public(), nil
}

// GetAudienceCount returns how many connections watch fixtureID.
func (e *Engine) GetAudienceCount(fixtureID string) int {
	return e.audience.CountFor(fixtureID)
}

// ListLiveFixtures returns viewer snapshots of every active fixture.
func (e *Engine) ListLiveFixtures() []*match.LiveFixture {
	docs := e.store.Snapshots()
	for i, d := range docs {
		docs[i] = d.Public()
	}
	return docs
}

// apply runs a mutating command: role check, terminal guard, then fn under
// the fixture's exclusive section. It returns the committed snapshot, or
// the current one when fn produced no change.
func (e *Engine) apply(ctx context.Context, a match.Actor, command string, allowed []match.Role, fixtureID string, fn store.MutateFunc) (*match.LiveFixture, error) {
	if err := match.Authorize(a, command, allowed); err != nil {
		return nil, err
	}

	var committed *match.LiveFixture
	_, err := e.store.Mutate(ctx, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		if f.Status.Terminal() {
			return nil, match.Errorf(match.KindInvalidFixtureState, "fixture %s is %s", fixtureID, f.Status)
		}
		return fn(f)
	}, func(f *match.LiveFixture, d match.Delta) {
		committed = f.Public()
		e.commit(f, d)
	})
	if err != nil {
		return nil, err
	}
	if committed == nil {
		return e.GetLiveFixture(ctx, fixtureID)
	}
	return committed, nil
}

// commit publishes d and reconciles the clock with the committed status.
// It runs inside the fixture's exclusive section.
func (e *Engine) commit(f *match.LiveFixture, d match.Delta) {
	for _, c := range d {
		e.hub.Publish(f.ID, f.Version, c.Type, c.Payload)
		if c.Type != match.StatusUpdate {
			continue
		}
		if f.Status.ActivePlay() {
			e.clock.Start(f.ID)
		} else {
			e.clock.Stop(f.ID)
		}
	}
}

// advance is the clock's tick: one step of the match minute, applied only
// if token is still the fixture's live timer and play is running.
func (e *Engine) advance(ctx context.Context, fixtureID string, token uint64) error {
	_, err := e.store.Mutate(ctx, fixtureID, func(f *match.LiveFixture) (match.Delta, error) {
		if !e.clock.Current(fixtureID, token) || !f.Status.ActivePlay() {
			return nil, clock.ErrStopped
		}
		f.CurrentMinute += e.opts.TickMinutes
		var d match.Delta
		d.Add(match.MinuteUpdate, match.MinutePayload{
			CurrentMinute: f.CurrentMinute,
			InjuryTime:    f.InjuryTime,
		})
		return d, nil
	}, e.commit)
	return err
}

func (e *Engine) now() time.Time { return e.opts.Now().UTC() }
