package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/albapepper/scoracle-live/internal/match"
)

// MemoryPersistence keeps documents in process memory. Used for local
// development (LIVE_PERSISTENCE=memory) and tests.
type MemoryPersistence struct {
	mu       sync.Mutex
	docs     map[string]*match.LiveFixture
	archived map[string]*match.LiveFixture
}

// NewMemoryPersistence creates an empty in-memory backend.
func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		docs:     make(map[string]*match.LiveFixture),
		archived: make(map[string]*match.LiveFixture),
	}
}

func (m *MemoryPersistence) LoadLiveFixture(ctx context.Context, id string) (*match.LiveFixture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, match.Errorf(match.KindNotFound, "live fixture %s not persisted", id)
	}
	return doc.Clone(), nil
}

func (m *MemoryPersistence) CreateLiveFixture(ctx context.Context, doc *match.LiveFixture) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, live := m.docs[doc.ID]; live {
		return match.Errorf(match.KindAlreadyExists, "live fixture %s already persisted", doc.ID)
	}
	delete(m.archived, doc.ID)
	m.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryPersistence) SaveLiveFixture(ctx context.Context, doc *match.LiveFixture) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, live := m.docs[doc.ID]
	if !live {
		if _, done := m.archived[doc.ID]; done {
			return fmt.Errorf("save live fixture %s: fixture is archived", doc.ID)
		}
	} else if cur.Version >= doc.Version {
		return fmt.Errorf("save live fixture %s: stale write at version %d", doc.ID, doc.Version)
	}
	m.docs[doc.ID] = doc.Clone()
	return nil
}

func (m *MemoryPersistence) ArchiveFixture(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		if _, done := m.archived[id]; done {
			return nil
		}
		return match.Errorf(match.KindNotFound, "live fixture %s not persisted", id)
	}
	delete(m.docs, id)
	m.archived[id] = doc
	return nil
}

func (m *MemoryPersistence) ListLiveFixtures(ctx context.Context) ([]*match.LiveFixture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*match.LiveFixture, 0, len(m.docs))
	for _, doc := range m.docs {
		out = append(out, doc.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Archived returns the archived copy of id, if any.
func (m *MemoryPersistence) Archived(id string) (*match.LiveFixture, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.archived[id]
	if !ok {
		return nil, false
	}
	return doc.Clone(), true
}
