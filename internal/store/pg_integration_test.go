//go:build integration

package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/albapepper/scoracle-live/internal/config"
	"github.com/albapepper/scoracle-live/internal/db"
	"github.com/albapepper/scoracle-live/internal/match"
)

var testPool *db.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()
	container, err := postgres.Run(ctx,
		"docker.io/postgres:16-alpine",
		postgres.WithDatabase("live"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("pass"),
		postgres.BasicWaitStrategies(),
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "start postgres: %v\n", err)
		os.Exit(1)
	}

	url, err := container.ConnectionString(ctx, "sslmode=disable")
	if err == nil {
		err = db.Migrate(ctx, url)
	}
	if err == nil {
		testPool, err = db.New(ctx, &config.Config{
			DatabaseURL:    url,
			DBPoolMinConns: 1,
			DBPoolMaxConns: 4,
			DBPoolMaxLife:  time.Minute,
		})
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "prepare database: %v\n", err)
		container.Terminate(ctx)
		os.Exit(1)
	}

	code := m.Run()
	testPool.Close()
	container.Terminate(ctx)
	os.Exit(code)
}

func TestPGPersistence_RoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewPGPersistence(testPool.Pool)

	doc := newFixture("pg-roundtrip")
	doc.Version = 1
	doc.PlayerOfTheMatch.Votes["p9"] = 3
	doc.PlayerOfTheMatch.Voters["u1"] = "p9"
	if err := p.SaveLiveFixture(ctx, doc); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := p.LoadLiveFixture(ctx, doc.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.HomeTeam.Name != doc.HomeTeam.Name || got.Version != 1 {
		t.Errorf("loaded %+v", got)
	}
	if got.PlayerOfTheMatch.Voters["u1"] != "p9" {
		t.Error("voters were not persisted")
	}
}

func TestPGPersistence_StaleWrite(t *testing.T) {
	ctx := context.Background()
	p := NewPGPersistence(testPool.Pool)

	doc := newFixture("pg-stale")
	doc.Version = 2
	if err := p.SaveLiveFixture(ctx, doc); err != nil {
		t.Fatalf("Save v2: %v", err)
	}
	doc.Version = 1
	if err := p.SaveLiveFixture(ctx, doc); err == nil {
		t.Fatal("saving an older version should fail")
	}
}

func TestPGPersistence_Archive(t *testing.T) {
	ctx := context.Background()
	p := NewPGPersistence(testPool.Pool)

	doc := newFixture("pg-archive")
	doc.Version = 1
	if err := p.SaveLiveFixture(ctx, doc); err != nil {
		t.Fatal(err)
	}
	if err := p.ArchiveFixture(ctx, doc.ID); err != nil {
		t.Fatalf("Archive: %v", err)
	}
	if err := p.ArchiveFixture(ctx, doc.ID); err != nil {
		t.Errorf("second Archive should be a no-op, got %v", err)
	}
	if _, err := p.LoadLiveFixture(ctx, doc.ID); !errors.Is(err, match.ErrNotFound) {
		t.Errorf("got %v, want NotFound after archive", err)
	}
	live, err := p.ListLiveFixtures(ctx)
	if err != nil {
		t.Fatal(err)
	}
	for _, f := range live {
		if f.ID == doc.ID {
			t.Error("archived fixture listed as live")
		}
	}
}

func TestPGPersistence_StoreHydration(t *testing.T) {
	ctx := context.Background()
	p := NewPGPersistence(testPool.Pool)

	s := New(p, Options{}, discardLogger())
	if err := s.Create(ctx, "pg-store", newFixture("pg-store"), nil); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Mutate(ctx, "pg-store", incHome, nil); err != nil {
		t.Fatalf("Mutate: %v", err)
	}

	fresh := New(p, Options{}, discardLogger())
	if _, err := fresh.Warm(ctx); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	doc, ok := fresh.Get("pg-store")
	if !ok || doc.Result.HomeScore != 1 || doc.Version != 2 {
		t.Errorf("warmed doc = %+v", doc)
	}
}

func TestPGPersistence_PurgeArchived(t *testing.T) {
	ctx := context.Background()
	p := NewPGPersistence(testPool.Pool)

	for _, id := range []string{"pg-purge-old", "pg-purge-live"} {
		doc := newFixture(id)
		doc.Version = 1
		if err := p.SaveLiveFixture(ctx, doc); err != nil {
			t.Fatal(err)
		}
	}
	if err := p.ArchiveFixture(ctx, "pg-purge-old"); err != nil {
		t.Fatal(err)
	}

	n, err := p.PurgeArchived(ctx, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("PurgeArchived: %v", err)
	}
	if n < 1 {
		t.Errorf("purged %d rows, want at least 1", n)
	}
	if _, err := p.LoadLiveFixture(ctx, "pg-purge-live"); err != nil {
		t.Errorf("live fixture purged: %v", err)
	}
}

func TestPGPersistence_SaveNeverUnarchives(t *testing.T) {
	ctx := context.Background()
	p := NewPGPersistence(testPool.Pool)

	doc := newFixture("pg-unarchive")
	doc.Version = 1
	if err := p.CreateLiveFixture(ctx, doc); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := p.ArchiveFixture(ctx, doc.ID); err != nil {
		t.Fatal(err)
	}

	doc.Version = 2
	if err := p.SaveLiveFixture(ctx, doc); err == nil {
		t.Fatal("saving over an archived row should fail")
	}
	if _, err := p.LoadLiveFixture(ctx, doc.ID); !errors.Is(err, match.ErrNotFound) {
		t.Errorf("got %v, want the row to stay archived", err)
	}

	doc.Version = 1
	if err := p.CreateLiveFixture(ctx, doc); err != nil {
		t.Fatalf("re-create over archived row: %v", err)
	}
	if _, err := p.LoadLiveFixture(ctx, doc.ID); err != nil {
		t.Errorf("re-created fixture not live: %v", err)
	}
	if err := p.CreateLiveFixture(ctx, doc); !errors.Is(err, match.ErrAlreadyExists) {
		t.Errorf("got %v, want AlreadyExists for a live row", err)
	}
}
