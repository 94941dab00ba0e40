// Package db provides a pgxpool-based connection pool with prepared statement
// registration, health checking and embedded goose migrations.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-live/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

// Statement names shared with the persistence layer.
const (
	StmtHealthCheck        = "health_check"
	StmtLiveFixtureLoad    = "live_fixture_load"
	StmtLiveFixtureCreate  = "live_fixture_create"
	StmtLiveFixtureSave    = "live_fixture_save"
	StmtLiveFixtureArch    = "live_fixture_archive"
	StmtLiveFixturesActive = "live_fixtures_active"
	StmtLiveFixturesPurge  = "live_fixtures_purge"
)

// registerPreparedStatements registers all statements the API and CLI use.
// The live_fixtures migration must have run before a connection is opened.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		StmtHealthCheck: "SELECT 1",

		StmtLiveFixtureLoad: "SELECT doc FROM live_fixtures WHERE id = $1 AND archived_at IS NULL",

		// Re-initializing an archived id replaces it; a live row is left alone.
		StmtLiveFixtureCreate: `
			INSERT INTO live_fixtures (id, status, version, doc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
				version = EXCLUDED.version,
				doc = EXCLUDED.doc,
				archived_at = NULL,
				created_at = NOW(),
				updated_at = NOW()
			WHERE live_fixtures.archived_at IS NOT NULL`,

		// Version guard: a stale writer never overwrites a newer document,
		// and no writer brings an archived row back.
		StmtLiveFixtureSave: `
			INSERT INTO live_fixtures (id, status, version, doc)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO UPDATE
			SET status = EXCLUDED.status,
				version = EXCLUDED.version,
				doc = EXCLUDED.doc,
				updated_at = NOW()
			WHERE live_fixtures.version < EXCLUDED.version
			  AND live_fixtures.archived_at IS NULL`,

		StmtLiveFixtureArch: `
			UPDATE live_fixtures
			SET archived_at = COALESCE(archived_at, NOW()), updated_at = NOW()
			WHERE id = $1`,

		StmtLiveFixturesActive: "SELECT doc FROM live_fixtures WHERE archived_at IS NULL ORDER BY id",

		StmtLiveFixturesPurge: "DELETE FROM live_fixtures WHERE archived_at IS NOT NULL AND archived_at < $1",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
