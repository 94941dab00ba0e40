// Package listener provides a Postgres LISTEN/NOTIFY consumer for operator
// commands aimed at a running server. It holds a dedicated pgx connection
// (not from the pool) listening on the `live_fixture_ops` channel.
//
// The liveops CLI edits persisted fixtures directly; it then notifies the
// channel so the server drops or reloads its in-memory copy instead of
// overwriting the change with its next save.
package listener

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	Channel          = "live_fixture_ops"
	reconnectBackoff = 5 * time.Second
	maxReconnect     = 30 * time.Second
)

// Operations carried on the channel.
const (
	OpForget = "forget" // fixture was archived or removed out of band
	OpReload = "reload" // persisted document changed; hydrate it again
)

// OpEvent is the JSON payload of pg_notify('live_fixture_ops', ...).
type OpEvent struct {
	Op        string `json:"op"`
	FixtureID string `json:"fixtureId"`
	Timestamp int64  `json:"ts"`
}

// Target applies operator events to the running engine.
type Target interface {
	Forget(fixtureID string) bool
	Reload(ctx context.Context, fixtureID string) error
}

// Notify publishes ev on the channel through pool.
func Notify(ctx context.Context, pool *pgxpool.Pool, ev OpEvent) error {
	if ev.Timestamp == 0 {
		ev.Timestamp = time.Now().Unix()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, "SELECT pg_notify($1, $2)", Channel, string(payload)); err != nil {
		return fmt.Errorf("notify %s: %w", Channel, err)
	}
	return nil
}

// Start opens a dedicated connection and listens on the ops channel. It
// reconnects automatically on connection loss. Blocks until ctx is
// cancelled. Intended to be called with `go`.
func Start(ctx context.Context, dbURL string, target Target, logger *slog.Logger) {
	backoff := reconnectBackoff

	for {
		err := listenLoop(ctx, dbURL, target, logger)
		if ctx.Err() != nil {
			logger.Info("Ops listener stopped (context cancelled)")
			return
		}

		logger.Error("Ops listener disconnected, reconnecting...",
			"error", err, "backoff", backoff)

		select {
		case <-time.After(backoff):
			backoff = min(backoff*2, maxReconnect)
		case <-ctx.Done():
			return
		}
	}
}

// listenLoop runs a single listen session. Returns when the connection drops
// or the context is cancelled.
func listenLoop(ctx context.Context, dbURL string, target Target, logger *slog.Logger) error {
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(context.Background())

	_, err = conn.Exec(ctx, "LISTEN "+Channel)
	if err != nil {
		return fmt.Errorf("LISTEN %s: %w", Channel, err)
	}
	logger.Info("Ops listener connected", "channel", Channel)

	for {
		notification, err := conn.WaitForNotification(ctx)
		if err != nil {
			return fmt.Errorf("wait for notification: %w", err)
		}
		Handle(ctx, target, notification.Payload, logger)
	}
}

// Handle decodes one payload and applies it to target.
func Handle(ctx context.Context, target Target, payload string, logger *slog.Logger) {
	var ev OpEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		logger.Warn("Failed to parse ops event", "payload", payload, "error", err)
		return
	}
	if ev.FixtureID == "" {
		logger.Warn("Ops event without fixture id", "op", ev.Op)
		return
	}

	logger.Info("Ops event received", "op", ev.Op, "fixture_id", ev.FixtureID)
	switch ev.Op {
	case OpForget:
		if !target.Forget(ev.FixtureID) {
			logger.Debug("Ops forget: fixture not in memory", "fixture_id", ev.FixtureID)
		}
	case OpReload:
		if err := target.Reload(ctx, ev.FixtureID); err != nil {
			logger.Warn("Ops reload failed", "fixture_id", ev.FixtureID, "error", err)
		}
	default:
		logger.Warn("Unknown ops event", "op", ev.Op, "fixture_id", ev.FixtureID)
	}
}
