// Package clock advances live fixtures' match minute between administrator
// actions. Each fixture in active play owns one timer goroutine; every timer
// carries a token so a tick that races a Stop can be recognised as stale by
// the receiver.
package clock

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/albapepper/scoracle-live/internal/match"
)

// ErrStopped is returned by a TickFunc when its timer is no longer wanted
// (stale token, fixture left active play). The timer exits without logging.
var ErrStopped = errors.New("clock stopped")

// TickFunc advances fixtureID by one tick. token identifies the timer that
// fired; the receiver must verify it with Current inside its own critical
// section before applying anything.
type TickFunc func(ctx context.Context, fixtureID string, token uint64) error

// Ticker is the subset of *time.Ticker a timer needs.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory builds a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// NewRealTicker wraps time.NewTicker.
func NewRealTicker(d time.Duration) Ticker {
	return realTicker{t: time.NewTicker(d)}
}

// Source lists the fixtures to resume after a restart.
type Source interface {
	Snapshots() []*match.LiveFixture
}

// Option configures a Clock.
type Option func(*Clock)

// WithTickerFactory replaces the wall-clock ticker, used by tests to drive
// ticks by hand.
func WithTickerFactory(f TickerFactory) Option {
	return func(c *Clock) { c.newTicker = f }
}

type timer struct {
	token  uint64
	cancel context.CancelFunc
}

// Clock is the MinuteClock. The zero value is not usable; call New.
type Clock struct {
	interval  time.Duration
	tick      TickFunc
	newTicker TickerFactory
	logger    *slog.Logger

	mu     sync.Mutex
	timers map[string]*timer
	seq    uint64
	wg     sync.WaitGroup
}

// New creates a clock that calls tick for each running fixture every interval.
func New(interval time.Duration, tick TickFunc, logger *slog.Logger, opts ...Option) *Clock {
	c := &Clock{
		interval:  interval,
		tick:      tick,
		newTicker: NewRealTicker,
		logger:    logger,
		timers:    make(map[string]*timer),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Start launches the timer for fixtureID unless one is already running.
// It reports whether a new timer was created. Start never blocks on a
// running timer, so it is safe to call from inside a fixture's critical
// section.
func (c *Clock) Start(fixtureID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.timers[fixtureID]; ok {
		return false
	}
	c.seq++
	ctx, cancel := context.WithCancel(context.Background())
	t := &timer{token: c.seq, cancel: cancel}
	c.timers[fixtureID] = t

	ticker := c.newTicker(c.interval)
	c.wg.Add(1)
	go c.run(ctx, fixtureID, t.token, ticker)

	c.logger.Debug("Clock started", "fixture_id", fixtureID, "token", t.token)
	return true
}

// Stop cancels the timer for fixtureID. It reports whether one was running.
// A tick already in flight sees its token invalidated.
func (c *Clock) Stop(fixtureID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[fixtureID]
	if !ok {
		return false
	}
	t.cancel()
	delete(c.timers, fixtureID)
	c.logger.Debug("Clock stopped", "fixture_id", fixtureID, "token", t.token)
	return true
}

// Current reports whether token belongs to the live timer of fixtureID.
func (c *Clock) Current(fixtureID string, token uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.timers[fixtureID]
	return ok && t.token == token
}

// Running lists fixture ids with a live timer.
func (c *Clock) Running() []string {
	c.mu.Lock()
	ids := make([]string, 0, len(c.timers))
	for id := range c.timers {
		ids = append(ids, id)
	}
	c.mu.Unlock()
	sort.Strings(ids)
	return ids
}

// RecoverAll starts a timer for every active-play fixture in src and
// returns how many were started.
func (c *Clock) RecoverAll(src Source) int {
	n := 0
	for _, f := range src.Snapshots() {
		if f.Status.ActivePlay() && c.Start(f.ID) {
			n++
		}
	}
	if n > 0 {
		c.logger.Info("Clock timers recovered", "count", n)
	}
	return n
}

// StopAll cancels every timer and waits for their goroutines to exit.
func (c *Clock) StopAll() {
	c.mu.Lock()
	for id, t := range c.timers {
		t.cancel()
		delete(c.timers, id)
	}
	c.mu.Unlock()
	c.wg.Wait()
}

func (c *Clock) run(ctx context.Context, fixtureID string, token uint64, ticker Ticker) {
	defer c.wg.Done()
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			err := c.tick(ctx, fixtureID, token)
			if err == nil {
				continue
			}
			if !errors.Is(err, ErrStopped) && ctx.Err() == nil {
				c.logger.Warn("Clock tick failed, stopping timer",
					"fixture_id", fixtureID, "error", err)
			}
			c.release(fixtureID, token)
			return
		}
	}
}

// release drops the timer entry only if it still belongs to token, so a
// newer timer started after a Stop is left alone.
func (c *Clock) release(fixtureID string, token uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if t, ok := c.timers[fixtureID]; ok && t.token == token {
		t.cancel()
		delete(c.timers, fixtureID)
	}
}
