package maintenance

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/albapepper/scoracle-live/internal/cache"
)

type fakeStore struct {
	retries   atomic.Int32
	evicted   []string
	retention time.Duration
}

func (f *fakeStore) RetryArchives(context.Context) (int, int) {
	f.retries.Add(1)
	return 1, 0
}

func (f *fakeStore) EvictFinalized(retention time.Duration) []string {
	f.retention = retention
	ids := f.evicted
	f.evicted = nil
	return ids
}

type fakePurger struct {
	cutoff time.Time
	err    error
}

func (f *fakePurger) PurgeArchived(_ context.Context, cutoff time.Time) (int64, error) {
	f.cutoff = cutoff
	return 2, f.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestEvictDropsCachedSnapshots(t *testing.T) {
	c := cache.New(true)
	defer c.Close()
	c.Set(cache.SnapshotKey("done", 7), []byte("a"), time.Minute)
	c.Set(cache.SnapshotKey("done", 8), []byte("b"), time.Minute)
	c.Set(cache.SnapshotKey("live", 3), []byte("c"), time.Minute)

	st := &fakeStore{evicted: []string{"done"}}
	r := New(st, c, nil, DefaultConfig(), discardLogger())

	if n := r.Evict(); n != 1 {
		t.Fatalf("evicted %d, want 1", n)
	}
	if st.retention != 6*time.Hour {
		t.Errorf("retention = %s", st.retention)
	}
	if _, _, ok := c.Get(cache.SnapshotKey("done", 8)); ok {
		t.Error("evicted fixture still cached")
	}
	if _, _, ok := c.Get(cache.SnapshotKey("live", 3)); !ok {
		t.Error("other fixture's snapshot dropped")
	}
}

func TestPurgeArchived(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	p := &fakePurger{}
	r := New(&fakeStore{}, cache.New(false), p, DefaultConfig(), discardLogger())
	r.now = func() time.Time { return now }

	r.PurgeArchived(context.Background())
	if want := now.Add(-30 * 24 * time.Hour); !p.cutoff.Equal(want) {
		t.Errorf("cutoff = %s, want %s", p.cutoff, want)
	}

	p.err = errors.New("connection refused")
	r.PurgeArchived(context.Background())

	// No purger in memory mode.
	New(&fakeStore{}, cache.New(false), nil, DefaultConfig(), discardLogger()).PurgeArchived(context.Background())
}

func TestStartRunsTasks(t *testing.T) {
	st := &fakeStore{}
	cfg := Config{ArchiveRetryInterval: 5 * time.Millisecond}
	r := New(st, cache.New(false), nil, cfg, discardLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	done := make(chan struct{})
	go func() {
		r.Start(ctx)
		close(done)
	}()
	<-done
	if st.retries.Load() == 0 {
		t.Error("archive retry never ran")
	}
}
