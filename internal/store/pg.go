package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-live/internal/db"
	"github.com/albapepper/scoracle-live/internal/match"
)

// PGPersistence stores each live fixture as one JSONB row in live_fixtures.
// Statements are prepared per connection by db.New.
type PGPersistence struct {
	pool *pgxpool.Pool
}

// NewPGPersistence wraps an open pool.
func NewPGPersistence(pool *pgxpool.Pool) *PGPersistence {
	return &PGPersistence{pool: pool}
}

func (p *PGPersistence) LoadLiveFixture(ctx context.Context, id string) (*match.LiveFixture, error) {
	var raw []byte
	err := p.pool.QueryRow(ctx, db.StmtLiveFixtureLoad, id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, match.Errorf(match.KindNotFound, "live fixture %s not persisted", id)
	}
	if err != nil {
		return nil, fmt.Errorf("load live fixture %s: %w", id, err)
	}
	return decodeFixture(raw)
}

func (p *PGPersistence) CreateLiveFixture(ctx context.Context, doc *match.LiveFixture) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode live fixture %s: %w", doc.ID, err)
	}
	tag, err := p.pool.Exec(ctx, db.StmtLiveFixtureCreate, doc.ID, string(doc.Status), doc.Version, raw)
	if err != nil {
		return fmt.Errorf("create live fixture %s: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return match.Errorf(match.KindAlreadyExists, "live fixture %s already persisted", doc.ID)
	}
	return nil
}

// SaveLiveFixture fails when doc is not newer than the stored version or
// the row has been archived.
func (p *PGPersistence) SaveLiveFixture(ctx context.Context, doc *match.LiveFixture) error {
	raw, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode live fixture %s: %w", doc.ID, err)
	}
	tag, err := p.pool.Exec(ctx, db.StmtLiveFixtureSave, doc.ID, string(doc.Status), doc.Version, raw)
	if err != nil {
		return fmt.Errorf("save live fixture %s: %w", doc.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("save live fixture %s: stale or archived at version %d", doc.ID, doc.Version)
	}
	return nil
}

func (p *PGPersistence) ArchiveFixture(ctx context.Context, id string) error {
	tag, err := p.pool.Exec(ctx, db.StmtLiveFixtureArch, id)
	if err != nil {
		return fmt.Errorf("archive live fixture %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return match.Errorf(match.KindNotFound, "live fixture %s not persisted", id)
	}
	return nil
}

// PurgeArchived deletes rows archived before cutoff.
func (p *PGPersistence) PurgeArchived(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := p.pool.Exec(ctx, db.StmtLiveFixturesPurge, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge archived fixtures: %w", err)
	}
	return tag.RowsAffected(), nil
}

func (p *PGPersistence) ListLiveFixtures(ctx context.Context) ([]*match.LiveFixture, error) {
	rows, err := p.pool.Query(ctx, db.StmtLiveFixturesActive)
	if err != nil {
		return nil, fmt.Errorf("list live fixtures: %w", err)
	}
	defer rows.Close()

	var out []*match.LiveFixture
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan live fixture: %w", err)
		}
		doc, err := decodeFixture(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list live fixtures: %w", err)
	}
	return out, nil
}

func decodeFixture(raw []byte) (*match.LiveFixture, error) {
	var doc match.LiveFixture
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode live fixture: %w", err)
	}
	// JSON null collections come back nil; normalise to the shape New builds.
	if doc.PlayerOfTheMatch.Votes == nil {
		doc.PlayerOfTheMatch.Votes = make(map[string]int)
	}
	if doc.PlayerOfTheMatch.Voters == nil {
		doc.PlayerOfTheMatch.Voters = make(map[string]string)
	}
	return &doc, nil
}
