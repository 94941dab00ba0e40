package config

import (
	"testing"
	"time"
)

func TestLoad_MemoryDefaults(t *testing.T) {
	t.Setenv("LIVE_PERSISTENCE", PersistenceMemory)
	t.Setenv("DATABASE_URL", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClockTickInterval != 60*time.Second {
		t.Errorf("ClockTickInterval %v, want 60s", cfg.ClockTickInterval)
	}
	if cfg.ClockTickMinutes != 1 {
		t.Errorf("ClockTickMinutes %d, want 1", cfg.ClockTickMinutes)
	}
	if cfg.EventMinuteTolerance != 2 {
		t.Errorf("EventMinuteTolerance %d, want 2", cfg.EventMinuteTolerance)
	}
}

func TestLoad_PostgresRequiresURL(t *testing.T) {
	t.Setenv("LIVE_PERSISTENCE", PersistencePostgres)
	t.Setenv("DATABASE_URL", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail without DATABASE_URL")
	}
}

func TestLoad_UnknownPersistence(t *testing.T) {
	t.Setenv("LIVE_PERSISTENCE", "redis")
	if _, err := Load(); err == nil {
		t.Fatal("Load should reject unknown backend")
	}
}

func TestLoad_ClockOverrides(t *testing.T) {
	t.Setenv("LIVE_PERSISTENCE", PersistenceMemory)
	t.Setenv("CLOCK_TICK_INTERVAL", "2m")
	t.Setenv("CLOCK_TICK_MINUTES", "1")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ClockTickInterval != 2*time.Minute {
		t.Errorf("ClockTickInterval %v, want 2m", cfg.ClockTickInterval)
	}

	t.Setenv("CLOCK_TICK_MINUTES", "0")
	if _, err := Load(); err == nil {
		t.Error("Load should reject CLOCK_TICK_MINUTES=0")
	}
}

func TestEnvDuration_BareSeconds(t *testing.T) {
	t.Setenv("SOME_TIMEOUT", "45")
	if got := envDuration("SOME_TIMEOUT", time.Second); got != 45*time.Second {
		t.Errorf("envDuration = %v, want 45s", got)
	}
}

func TestEnvList(t *testing.T) {
	t.Setenv("ORIGINS", " a.com, ,b.com ")
	got := envList("ORIGINS", nil)
	if len(got) != 2 || got[0] != "a.com" || got[1] != "b.com" {
		t.Errorf("envList = %v, want [a.com b.com]", got)
	}
}
