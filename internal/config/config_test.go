package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Tracking.MaxAccuracyM != 70 {
		t.Fatalf("expected default accuracy ceiling 70, got %f", cfg.Tracking.MaxAccuracyM)
	}
	if cfg.Sync.BatchSize != 100 {
		t.Fatalf("expected default batch size 100, got %d", cfg.Sync.BatchSize)
	}
	if cfg.GPS.Type != "demo" {
		t.Fatalf("expected demo gps by default, got %q", cfg.GPS.Type)
	}
}

func TestLoadYAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roadlog.yaml")
	data := `
api:
  base_url: https://api.example.com
  trip_id: remote-12
tracking:
  max_accuracy_m: 50
  min_send_interval_sec: 90
sync:
  batch_size: 25
stops:
  - id: depot
    type: depot
    lat: 43.65
    lon: -79.38
    radius_m: 120
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com" {
		t.Fatalf("wrong base url %q", cfg.API.BaseURL)
	}
	if cfg.Tracking.MaxAccuracyM != 50 || cfg.Tracking.MinSendIntervalSec != 90 {
		t.Fatalf("tracking overrides not applied: %+v", cfg.Tracking)
	}
	// Untouched keys keep their defaults.
	if cfg.Tracking.MinSendDistanceM != 500 {
		t.Fatalf("expected default send distance, got %f", cfg.Tracking.MinSendDistanceM)
	}
	if cfg.Sync.BatchSize != 25 {
		t.Fatalf("wrong batch size %d", cfg.Sync.BatchSize)
	}
	if len(cfg.Stops) != 1 || cfg.Stops[0].ID != "depot" || cfg.Stops[0].RadiusM != 120 {
		t.Fatalf("stops not parsed: %+v", cfg.Stops)
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roadlog.yaml")
	if err := os.WriteFile(path, []byte("api:\n  token: from-file\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("API_TOKEN", "from-env")
	t.Setenv("SYNC_BATCH_SIZE", "42")
	t.Setenv("MAX_ACCURACY_M", "55.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.API.Token != "from-env" {
		t.Fatalf("expected env token to win, got %q", cfg.API.Token)
	}
	if cfg.Sync.BatchSize != 42 {
		t.Fatalf("wrong batch size %d", cfg.Sync.BatchSize)
	}
	if cfg.Tracking.MaxAccuracyM != 55.5 {
		t.Fatalf("wrong accuracy ceiling %f", cfg.Tracking.MaxAccuracyM)
	}
}

func TestBadEnvValue(t *testing.T) {
	t.Setenv("SYNC_BATCH_SIZE", "lots")
	if _, err := Load(""); err == nil {
		t.Fatalf("expected error for non-numeric override")
	}
}
