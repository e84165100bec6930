package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(viper.New(), filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Geo.PollWindow != time.Second || cfg.Geo.ProcessingGrace != time.Second {
		t.Errorf("unexpected poll defaults: %+v", cfg.Geo)
	}
	if cfg.Spatial.IncidentStale != 2*time.Minute || cfg.Spatial.EventStale != 10*time.Minute {
		t.Errorf("unexpected spatial defaults: %+v", cfg.Spatial)
	}
	if !cfg.Geo.RequireConsumers {
		t.Error("expected consumers to be required by default")
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("GEO_POLL_WINDOW", "2s")
	t.Setenv("WORKER_POOL_SIZE", "8")

	cfg, err := load(viper.New(), filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Geo.PollWindow != 2*time.Second {
		t.Errorf("expected 2s window, got %s", cfg.Geo.PollWindow)
	}
	if cfg.Worker.PoolSize != 8 {
		t.Errorf("expected pool size 8, got %d", cfg.Worker.PoolSize)
	}
}

func TestLoad_EnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte("API_PORT=9999\nLOG_LEVEL=debug\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := load(viper.New(), path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 9999 || cfg.Log.Level != "debug" {
		t.Errorf("env file not applied: port=%d level=%s", cfg.Server.Port, cfg.Log.Level)
	}
}

func TestLoad_RejectsStaleBeyondTTL(t *testing.T) {
	t.Setenv("SPATIAL_INCIDENT_STALE", "1h")

	if _, err := load(viper.New(), filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Fatal("expected validation error")
	}
}
