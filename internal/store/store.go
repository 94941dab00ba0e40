// Package store owns the authoritative live-fixture documents.
//
// Every mutation of a fixture runs under that fixture's exclusive section:
// the mutate function works on a private copy, the copy is persisted, and
// only then is it installed as the committed document. Readers load the
// committed document through an atomic pointer, so they never wait on a
// writer and never observe a half-applied change. Different fixtures never
// contend with each other.
package store

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/albapepper/scoracle-live/internal/match"
)

const defaultTimeout = 3 * time.Second

// Persistence is the backing store collaborator.
type Persistence interface {
	// LoadLiveFixture returns the live (not archived) document, or an error
	// matching match.ErrNotFound.
	LoadLiveFixture(ctx context.Context, id string) (*match.LiveFixture, error)
	// CreateLiveFixture writes the first version of a fixture, replacing an
	// archived row with the same id. It fails with an error matching
	// match.ErrAlreadyExists when a live row exists.
	CreateLiveFixture(ctx context.Context, doc *match.LiveFixture) error
	// SaveLiveFixture writes a newer version of a live fixture. A stale
	// version or an archived row is an error; archived rows stay archived.
	SaveLiveFixture(ctx context.Context, doc *match.LiveFixture) error
	ArchiveFixture(ctx context.Context, id string) error
	ListLiveFixtures(ctx context.Context) ([]*match.LiveFixture, error)
}

// MutateFunc edits f in place and describes the change. Returning an error
// discards the edit. Returning an empty delta commits nothing.
type MutateFunc func(f *match.LiveFixture) (match.Delta, error)

// CommitFunc runs after a change has been persisted and installed, while the
// fixture's exclusive section is still held. f is the committed document and
// must not be modified.
type CommitFunc func(f *match.LiveFixture, delta match.Delta)

// Options tune a Store.
type Options struct {
	Timeout time.Duration // bound on each persistence call
	Now     func() time.Time
}

type entry struct {
	mu             sync.Mutex // exclusive section for mutations
	current        atomic.Pointer[match.LiveFixture]
	finalized      atomic.Bool
	archivePending atomic.Bool
	deleted        atomic.Bool
}

// Store is the FixtureStateStore.
type Store struct {
	persist Persistence
	timeout time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu      sync.RWMutex
	entries map[string]*entry
	ended   map[string]match.Status // evicted terminal fixtures, bounded by maxEnded
}

// maxEnded bounds how many evicted fixture ids keep their terminal status.
const maxEnded = 4096

// New creates a store over p.
func New(p Persistence, opts Options, logger *slog.Logger) *Store {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Store{
		persist: p,
		timeout: opts.Timeout,
		now:     opts.Now,
		logger:  logger,
		entries: make(map[string]*entry),
		ended:   make(map[string]match.Status),
	}
}

// Get returns a copy of the committed document.
func (s *Store) Get(id string) (*match.LiveFixture, bool) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok {
		return nil, false
	}
	doc := e.current.Load()
	if doc == nil {
		return nil, false
	}
	return doc.Clone(), true
}

// Load is Get with hydration from persistence on a miss.
func (s *Store) Load(ctx context.Context, id string) (*match.LiveFixture, error) {
	e, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	doc := e.current.Load()
	if doc == nil || e.deleted.Load() {
		return nil, match.Errorf(match.KindNotFound, "live fixture %s not found", id)
	}
	return doc.Clone(), nil
}

// Create persists initial as a new live fixture. It fails with AlreadyExists
// if id is already held in memory or persisted as live.
func (s *Store) Create(ctx context.Context, id string, initial *match.LiveFixture, onCommit CommitFunc) error {
	if initial == nil || initial.ID != id {
		return match.Errorf(match.KindValidationFailed, "initial document must carry id %q", id)
	}

	s.mu.Lock()
	if _, exists := s.entries[id]; exists {
		s.mu.Unlock()
		return match.Errorf(match.KindAlreadyExists, "live fixture %s already exists", id)
	}
	// Reserve the id; the entry stays invisible until current is set.
	e := &entry{}
	e.mu.Lock()
	defer e.mu.Unlock()
	s.entries[id] = e
	s.mu.Unlock()

	release := func() {
		e.deleted.Store(true)
		s.mu.Lock()
		if s.entries[id] == e {
			delete(s.entries, id)
		}
		s.mu.Unlock()
	}

	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	_, err := s.persist.LoadLiveFixture(lctx, id)
	cancel()
	switch {
	case err == nil:
		release()
		return match.Errorf(match.KindAlreadyExists, "live fixture %s already persisted", id)
	case !errors.Is(err, match.ErrNotFound):
		release()
		return match.Wrap(match.KindStoreUnavailable, err, "check live fixture %s", id)
	}

	doc := initial.Clone()
	now := s.now()
	doc.Version = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.persist.CreateLiveFixture(sctx, doc)
	cancel()
	if errors.Is(err, match.ErrAlreadyExists) {
		release()
		return match.Errorf(match.KindAlreadyExists, "live fixture %s already persisted", id)
	}
	if err != nil {
		release()
		return match.Wrap(match.KindStoreUnavailable, err, "create live fixture %s", id)
	}

	e.current.Store(doc)
	s.mu.Lock()
	delete(s.ended, id)
	s.mu.Unlock()
	if onCommit != nil {
		onCommit(doc, nil)
	}
	return nil
}

// Mutate applies fn to fixture id under its exclusive section. fn's error is
// returned unmodified and nothing is committed. A persistence failure aborts
// the mutation with StoreUnavailable before onCommit runs.
//
// A fixture evicted after finishing answers InvalidFixtureState, not NotFound.
func (s *Store) Mutate(ctx context.Context, id string, fn MutateFunc, onCommit CommitFunc) (match.Delta, error) {
	e, err := s.lookup(ctx, id)
	if errors.Is(err, match.ErrNotFound) {
		if st, ok := s.endedStatus(id); ok {
			return nil, match.Errorf(match.KindInvalidFixtureState, "fixture %s is %s", id, st)
		}
	}
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	cur := e.current.Load()
	if cur == nil || e.deleted.Load() {
		return nil, match.Errorf(match.KindNotFound, "live fixture %s not found", id)
	}

	work := cur.Clone()
	delta, err := fn(work)
	if err != nil {
		return nil, err
	}
	if len(delta) == 0 {
		return nil, nil
	}

	work.Version = cur.Version + 1
	work.UpdatedAt = s.now()

	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	err = s.persist.SaveLiveFixture(sctx, work)
	cancel()
	if err != nil {
		return nil, match.Wrap(match.KindStoreUnavailable, err, "save live fixture %s", id)
	}

	e.current.Store(work)
	if onCommit != nil {
		onCommit(work, delta)
	}
	return delta, nil
}

// Finalize archives fixture id and removes it from the active set. The
// committed document stays readable through Get until evicted. When the
// archive call fails the fixture is kept as pending and RetryArchives picks
// it up later.
func (s *Store) Finalize(ctx context.Context, id string) error {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if !ok || e.current.Load() == nil {
		return match.Errorf(match.KindNotFound, "live fixture %s not found", id)
	}

	// Wait for any in-flight save so the archive sees the final version.
	e.mu.Lock()
	defer e.mu.Unlock()

	e.finalized.Store(true)
	actx, cancel := context.WithTimeout(ctx, s.timeout)
	err := s.persist.ArchiveFixture(actx, id)
	cancel()
	if err != nil {
		e.archivePending.Store(true)
		return match.Wrap(match.KindStoreUnavailable, err, "archive live fixture %s", id)
	}
	e.archivePending.Store(false)
	return nil
}

// RetryArchives re-runs Finalize for every fixture whose archive failed.
func (s *Store) RetryArchives(ctx context.Context) (archived int, failed int) {
	for _, id := range s.PendingArchives() {
		if err := s.Finalize(ctx, id); err != nil {
			s.logger.Warn("Archive retry failed", "fixture_id", id, "error", err)
			failed++
			continue
		}
		archived++
	}
	return archived, failed
}

// PendingArchives lists fixtures finalized in memory but not yet archived.
func (s *Store) PendingArchives() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id, e := range s.entries {
		if e.archivePending.Load() {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// EvictFinalized drops archived fixtures whose FinalizedAt is older than
// retention and returns their ids.
func (s *Store) EvictFinalized(retention time.Duration) []string {
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	defer s.mu.Unlock()
	var evicted []string
	for id, e := range s.entries {
		if !e.finalized.Load() || e.archivePending.Load() {
			continue
		}
		doc := e.current.Load()
		if doc == nil || doc.FinalizedAt == nil || doc.FinalizedAt.After(cutoff) {
			continue
		}
		e.deleted.Store(true)
		delete(s.entries, id)
		s.ended[id] = doc.Status
		evicted = append(evicted, id)
	}
	for id := range s.ended {
		if len(s.ended) <= maxEnded {
			break
		}
		delete(s.ended, id)
	}
	sort.Strings(evicted)
	return evicted
}

func (s *Store) endedStatus(id string) (match.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.ended[id]
	return st, ok
}

// Delete drops fixture id from memory. It does not touch persistence.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[id]
	if !ok {
		return false
	}
	e.deleted.Store(true)
	delete(s.entries, id)
	return true
}

// Snapshots returns copies of every active (not finalized) fixture, ordered by id.
func (s *Store) Snapshots() []*match.LiveFixture {
	s.mu.RLock()
	out := make([]*match.LiveFixture, 0, len(s.entries))
	for _, e := range s.entries {
		if e.finalized.Load() {
			continue
		}
		if doc := e.current.Load(); doc != nil {
			out = append(out, doc.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Len returns how many fixtures are held in memory, finalized ones included.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Warm loads every persisted live fixture not yet in memory.
func (s *Store) Warm(ctx context.Context) (int, error) {
	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	docs, err := s.persist.ListLiveFixtures(lctx)
	cancel()
	if err != nil {
		return 0, match.Wrap(match.KindStoreUnavailable, err, "list live fixtures")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, doc := range docs {
		if _, exists := s.entries[doc.ID]; exists {
			continue
		}
		s.entries[doc.ID] = newEntry(doc)
		n++
	}
	return n, nil
}

// lookup returns the entry for id, hydrating it from persistence on a miss.
func (s *Store) lookup(ctx context.Context, id string) (*entry, error) {
	s.mu.RLock()
	e, ok := s.entries[id]
	s.mu.RUnlock()
	if ok {
		return e, nil
	}

	lctx, cancel := context.WithTimeout(ctx, s.timeout)
	doc, err := s.persist.LoadLiveFixture(lctx, id)
	cancel()
	if errors.Is(err, match.ErrNotFound) {
		return nil, match.Errorf(match.KindNotFound, "live fixture %s not found", id)
	}
	if err != nil {
		return nil, match.Wrap(match.KindStoreUnavailable, err, "load live fixture %s", id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[id]; ok {
		return e, nil
	}
	e = newEntry(doc)
	s.entries[id] = e
	s.logger.Info("Hydrated live fixture from persistence", "fixture_id", id, "version", doc.Version)
	return e, nil
}

func newEntry(doc *match.LiveFixture) *entry {
	e := &entry{}
	e.current.Store(doc)
	// A terminal document still persisted as live missed its archive.
	if doc.Status.Terminal() {
		e.finalized.Store(true)
		e.archivePending.Store(true)
	}
	return e
}
