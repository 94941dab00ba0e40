// Command liveops is the Scoracle Live operations CLI.
//
// Usage:
//
//	scoracle-liveops migrate up
//	scoracle-liveops migrate status
//	scoracle-liveops fixtures list
//	scoracle-liveops fixtures show --id fx-2026-03-01-rams-owls
//	scoracle-liveops fixtures archive --id fx-2026-03-01-rams-owls
//	scoracle-liveops fixtures reload --id fx-2026-03-01-rams-owls
//	scoracle-liveops fixtures purge --older-than 720h
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"text/tabwriter"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-live/internal/config"
	"github.com/albapepper/scoracle-live/internal/db"
	"github.com/albapepper/scoracle-live/internal/listener"
	"github.com/albapepper/scoracle-live/internal/store"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:          "scoracle-liveops",
		Short:        "Scoracle Live operations CLI",
		SilenceUsage: true,
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(fixturesCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the live_fixtures schema",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(db.Migrate)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(db.MigrateDown)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Print migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(db.MigrationStatus)
		},
	})
	return cmd
}

func runMigrate(fn func(ctx context.Context, databaseURL string) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := loadPostgresConfig()
	if err != nil {
		return err
	}
	start := time.Now()
	if err := fn(ctx, cfg.DatabaseURL); err != nil {
		return err
	}
	logger.Info("Migration command finished", "duration", time.Since(start).Round(time.Millisecond))
	return nil
}

// --------------------------------------------------------------------------
// fixtures command
// --------------------------------------------------------------------------

func fixturesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fixtures",
		Short: "Inspect and manage persisted live fixtures",
	}
	cmd.AddCommand(fixturesListCmd())
	cmd.AddCommand(fixturesShowCmd())
	cmd.AddCommand(fixturesArchiveCmd())
	cmd.AddCommand(fixturesReloadCmd())
	cmd.AddCommand(fixturesPurgeCmd())
	return cmd
}

func fixturesListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List fixtures that are live (not archived)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, p *store.PGPersistence) error {
				docs, err := p.ListLiveFixtures(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tSTATUS\tMINUTE\tSCORE\tVERSION\tUPDATED")
				for _, f := range docs {
					fmt.Fprintf(tw, "%s\t%s\t%d'\t%s %d-%d %s\t%d\t%s\n",
						f.ID, f.Status, f.CurrentMinute,
						f.HomeTeam.Name, f.Result.HomeScore, f.Result.AwayScore, f.AwayTeam.Name,
						f.Version, f.UpdatedAt.Format(time.RFC3339))
				}
				if err := tw.Flush(); err != nil {
					return err
				}
				logger.Info("Live fixtures listed", "count", len(docs))
				return nil
			})
		},
	}
}

func fixturesShowCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print one live fixture document as JSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithStore(func(ctx context.Context, p *store.PGPersistence) error {
				doc, err := p.LoadLiveFixture(ctx, id)
				if err != nil {
					return err
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(doc.Public())
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Fixture id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func fixturesArchiveCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive a fixture so it is no longer recovered on restart",
		Long: "Archive stamps the persisted row as archived and tells running servers " +
			"to drop their in-memory copy. The stored status is left as it was. " +
			"Prefer the status endpoint for fixtures that finished normally; this is " +
			"for abandoned or stuck ones.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithPool(func(ctx context.Context, pool *db.Pool, p *store.PGPersistence) error {
				if err := p.ArchiveFixture(ctx, id); err != nil {
					return err
				}
				if err := listener.Notify(ctx, pool.Pool, listener.OpEvent{Op: listener.OpForget, FixtureID: id}); err != nil {
					logger.Warn("Archived, but servers were not notified", "fixture_id", id, "error", err)
				}
				logger.Info("Fixture archived", "fixture_id", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Fixture id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func fixturesReloadCmd() *cobra.Command {
	var id string
	cmd := &cobra.Command{
		Use:   "reload",
		Short: "Ask running servers to re-read a fixture from the database",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithPool(func(ctx context.Context, pool *db.Pool, p *store.PGPersistence) error {
				if _, err := p.LoadLiveFixture(ctx, id); err != nil {
					return err
				}
				if err := listener.Notify(ctx, pool.Pool, listener.OpEvent{Op: listener.OpReload, FixtureID: id}); err != nil {
					return err
				}
				logger.Info("Reload requested", "fixture_id", id)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Fixture id (required)")
	cmd.MarkFlagRequired("id")
	return cmd
}

func fixturesPurgeCmd() *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Delete archived fixtures older than a cutoff",
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return fmt.Errorf("--older-than must be positive")
			}
			return runWithStore(func(ctx context.Context, p *store.PGPersistence) error {
				n, err := p.PurgeArchived(ctx, time.Now().Add(-olderThan))
				if err != nil {
					return err
				}
				logger.Info("Archived fixtures purged", "count", n, "older_than", olderThan)
				return nil
			})
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 30*24*time.Hour, "Archive age cutoff")
	return cmd
}

// --------------------------------------------------------------------------
// helpers
// --------------------------------------------------------------------------

func loadPostgresConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if cfg.Persistence != config.PersistencePostgres {
		return nil, fmt.Errorf("liveops needs LIVE_PERSISTENCE=%s", config.PersistencePostgres)
	}
	return cfg, nil
}

// runWithStore handles config loading, DB connection, and context cancellation.
func runWithStore(fn func(ctx context.Context, p *store.PGPersistence) error) error {
	return runWithPool(func(ctx context.Context, _ *db.Pool, p *store.PGPersistence) error {
		return fn(ctx, p)
	})
}

func runWithPool(fn func(ctx context.Context, pool *db.Pool, p *store.PGPersistence) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := loadPostgresConfig()
	if err != nil {
		return err
	}

	pool, err := db.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer pool.Close()

	return fn(ctx, pool, store.NewPGPersistence(pool.Pool))
}
