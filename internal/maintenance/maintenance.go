// Package maintenance runs periodic background tasks as Go tickers: archive
// retries for finalized fixtures, eviction of finished fixtures from memory
// and purging of old archived rows.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/scoracle-live/internal/cache"
	"github.com/albapepper/scoracle-live/internal/config"
)

// Store is the part of the fixture store maintenance drives.
type Store interface {
	RetryArchives(ctx context.Context) (archived int, failed int)
	EvictFinalized(retention time.Duration) []string
}

// Purger deletes archived rows. Only the Postgres backend has one.
type Purger interface {
	PurgeArchived(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config controls maintenance task intervals. Zero duration disables a task.
type Config struct {
	ArchiveRetryInterval time.Duration // Re-archive fixtures whose archive failed
	EvictInterval        time.Duration // Drop finished fixtures from memory
	FinalizedRetention   time.Duration // How long a finished fixture stays readable
	ArchivedRetention    time.Duration // How long archived rows are kept
}

// DefaultConfig returns sensible production defaults.
func DefaultConfig() Config {
	return Config{
		ArchiveRetryInterval: time.Minute,
		EvictInterval:        10 * time.Minute,
		FinalizedRetention:   6 * time.Hour,
		ArchivedRetention:    30 * 24 * time.Hour,
	}
}

// FromAppConfig maps the environment configuration.
func FromAppConfig(c *config.Config) Config {
	return Config{
		ArchiveRetryInterval: c.ArchiveRetryInterval,
		EvictInterval:        c.EvictInterval,
		FinalizedRetention:   c.FinalizedRetention,
		ArchivedRetention:    c.ArchivedRetention,
	}
}

// Runner holds the collaborators of the maintenance tasks.
type Runner struct {
	store  Store
	cache  *cache.Cache
	purger Purger // nil in memory mode
	cfg    Config
	logger *slog.Logger
	now    func() time.Time
}

// New creates a runner. purger may be nil.
func New(st Store, c *cache.Cache, purger Purger, cfg Config, logger *slog.Logger) *Runner {
	return &Runner{
		store:  st,
		cache:  c,
		purger: purger,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
	}
}

// Start launches all configured maintenance tickers. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func (r *Runner) Start(ctx context.Context) {
	r.logger.Info("Maintenance tickers started",
		"archive_retry", r.cfg.ArchiveRetryInterval,
		"evict", r.cfg.EvictInterval,
		"retention", r.cfg.FinalizedRetention)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	// Archive retry: finalized fixtures whose archive call failed
	if r.cfg.ArchiveRetryInterval > 0 {
		t := time.NewTicker(r.cfg.ArchiveRetryInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { r.RetryArchives(ctx) })
	}

	// Eviction: finished fixtures past retention, plus old archived rows
	if r.cfg.EvictInterval > 0 {
		t := time.NewTicker(r.cfg.EvictInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() {
			r.Evict()
			r.PurgeArchived(ctx)
		})
	}

	<-ctx.Done()
	r.logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

// RetryArchives re-runs archiving for fixtures left pending.
func (r *Runner) RetryArchives(ctx context.Context) {
	archived, failed := r.store.RetryArchives(ctx)
	if archived > 0 || failed > 0 {
		r.logger.Info("Archive retry", "archived", archived, "failed", failed)
	}
}

// Evict drops finished fixtures from memory along with their cached snapshots.
func (r *Runner) Evict() int {
	ids := r.store.EvictFinalized(r.cfg.FinalizedRetention)
	for _, id := range ids {
		r.cache.DeletePrefix(cache.SnapshotPrefix(id))
	}
	if len(ids) > 0 {
		r.logger.Info("Evicted finished fixtures", "count", len(ids))
	}
	return len(ids)
}

// PurgeArchived deletes archived rows older than ArchivedRetention.
func (r *Runner) PurgeArchived(ctx context.Context) {
	if r.purger == nil || r.cfg.ArchivedRetention <= 0 {
		return
	}
	n, err := r.purger.PurgeArchived(ctx, r.now().Add(-r.cfg.ArchivedRetention))
	if err != nil {
		r.logger.Warn("Cleanup: failed to purge archived fixtures", "error", err)
		return
	}
	if n > 0 {
		r.logger.Info("Cleanup: purged archived fixtures", "count", n)
	}
}
