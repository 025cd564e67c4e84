package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	envVars := []string{
		"MISSIONMIND_PORT", "MISSIONMIND_METRICS_PORT", "MISSIONMIND_ADMIN_TOKEN",
		"MISSIONMIND_DATABASE_URL", "MISSIONMIND_EVENTS_URL", "MISSIONMIND_SUMMARIZER_URL",
		"MISSIONMIND_SWEEP_INTERVAL_MS", "MISSIONMIND_SWEEP_WORKERS",
		"MISSIONMIND_HORIZON_DAYS", "MISSIONMIND_LOG_LEVEL",
	}
	for _, k := range envVars {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 8700 {
		t.Errorf("expected port 8700, got %d", cfg.Server.Port)
	}
	if cfg.Server.MetricsPort != 8701 {
		t.Errorf("expected metrics port 8701, got %d", cfg.Server.MetricsPort)
	}
	if cfg.Events.URL != "nats://localhost:4222" {
		t.Errorf("expected nats URL, got %s", cfg.Events.URL)
	}
	if cfg.Scoring.HorizonDays != 30 {
		t.Errorf("expected horizon 30, got %d", cfg.Scoring.HorizonDays)
	}
	if cfg.Scoring.Weights.Urgency != 0.35 {
		t.Errorf("expected urgency weight 0.35, got %f", cfg.Scoring.Weights.Urgency)
	}
	if cfg.Risk.AmberThreshold != 0.25 || cfg.Risk.RedThreshold != 0.6 {
		t.Errorf("unexpected risk thresholds: %+v", cfg.Risk)
	}
	if cfg.Quality.MinDescriptionLen != 30 {
		t.Errorf("expected min description 30, got %d", cfg.Quality.MinDescriptionLen)
	}
	if cfg.Sweep.Workers != 4 || cfg.Sweep.MaxRetries != 3 {
		t.Errorf("unexpected sweep defaults: %+v", cfg.Sweep)
	}
	if cfg.SweepInterval() != 5*time.Minute {
		t.Errorf("expected sweep interval 5m, got %v", cfg.SweepInterval())
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("unexpected logging defaults: %+v", cfg.Logging)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("MISSIONMIND_PORT", "9100")
	t.Setenv("MISSIONMIND_DATABASE_URL", "postgres://localhost/missionmind_test")
	t.Setenv("MISSIONMIND_EVENTS_URL", "nats://nats:4222")
	t.Setenv("MISSIONMIND_SWEEP_INTERVAL_MS", "60000")
	t.Setenv("MISSIONMIND_HORIZON_DAYS", "14")
	t.Setenv("MISSIONMIND_LOG_LEVEL", "debug")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("expected port 9100, got %d", cfg.Server.Port)
	}
	if cfg.Database.URL != "postgres://localhost/missionmind_test" {
		t.Errorf("expected database URL, got '%s'", cfg.Database.URL)
	}
	if cfg.Events.URL != "nats://nats:4222" {
		t.Errorf("expected events URL, got '%s'", cfg.Events.URL)
	}
	if cfg.Sweep.IntervalMs != 60000 {
		t.Errorf("expected sweep interval 60000, got %d", cfg.Sweep.IntervalMs)
	}
	if cfg.Scoring.HorizonDays != 14 {
		t.Errorf("expected horizon 14, got %d", cfg.Scoring.HorizonDays)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("expected log level 'debug', got '%s'", cfg.Logging.Level)
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
server:
  port: 9200
scoring:
  horizon_days: 21
  weights:
    urgency: 0.5
risk:
  red_threshold: 0.7
quality:
  min_description_len: 50
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Server.Port != 9200 {
		t.Errorf("expected port 9200, got %d", cfg.Server.Port)
	}
	if cfg.Scoring.HorizonDays != 21 {
		t.Errorf("expected horizon 21, got %d", cfg.Scoring.HorizonDays)
	}
	if cfg.Scoring.Weights.Urgency != 0.5 {
		t.Errorf("expected urgency 0.5, got %f", cfg.Scoring.Weights.Urgency)
	}
	if cfg.Risk.RedThreshold != 0.7 {
		t.Errorf("expected red threshold 0.7, got %f", cfg.Risk.RedThreshold)
	}
	if cfg.Quality.MinDescriptionLen != 50 {
		t.Errorf("expected min description 50, got %d", cfg.Quality.MinDescriptionLen)
	}
	// Untouched sections keep their defaults.
	if cfg.Risk.AmberThreshold != 0.25 {
		t.Errorf("expected amber default 0.25, got %f", cfg.Risk.AmberThreshold)
	}
}
