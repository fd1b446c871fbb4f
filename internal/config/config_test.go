package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
database:
  host: localhost
  name: attend
  user: attend
  password: secret
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d; want 8080", cfg.Server.Port)
	}
	if cfg.Database.Port != 5432 {
		t.Errorf("Database.Port = %d; want 5432", cfg.Database.Port)
	}
	if cfg.Database.MaxConns != 20 {
		t.Errorf("Database.MaxConns = %d; want 20", cfg.Database.MaxConns)
	}
	if cfg.Attendance.MatchThreshold != 0.6 {
		t.Errorf("MatchThreshold = %v; want 0.6", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.Timezone != "Local" {
		t.Errorf("Timezone = %q; want Local", cfg.Attendance.Timezone)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("Logging = %q/%q; want info/json", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadReadsYAMLValues(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
  api_key: test-key
database:
  host: db.internal
  port: 5433
  name: attend
  user: app
  password: pw
attendance:
  match_threshold: 0.45
  timezone: Europe/Berlin
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d; want 9090", cfg.Server.Port)
	}
	if cfg.Attendance.MatchThreshold != 0.45 {
		t.Errorf("MatchThreshold = %v; want 0.45", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.Timezone != "Europe/Berlin" {
		t.Errorf("Timezone = %q", cfg.Attendance.Timezone)
	}

	want := "postgres://app:pw@db.internal:5433/attend?sslmode=disable"
	if got := cfg.Database.DSN(); got != want {
		t.Errorf("DSN = %q; want %q", got, want)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
database:
  host: localhost
attendance:
  match_threshold: 0.45
`)

	t.Setenv("ATTEND_SERVER_PORT", "7070")
	t.Setenv("ATTEND_DB_HOST", "db.prod")
	t.Setenv("ATTEND_MATCH_THRESHOLD", "0.5")
	t.Setenv("ATTEND_TIMEZONE", "Asia/Ho_Chi_Minh")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 7070 {
		t.Errorf("Server.Port = %d; want env override 7070", cfg.Server.Port)
	}
	if cfg.Database.Host != "db.prod" {
		t.Errorf("Database.Host = %q; want db.prod", cfg.Database.Host)
	}
	if cfg.Attendance.MatchThreshold != 0.5 {
		t.Errorf("MatchThreshold = %v; want 0.5", cfg.Attendance.MatchThreshold)
	}
	if cfg.Attendance.Timezone != "Asia/Ho_Chi_Minh" {
		t.Errorf("Timezone = %q", cfg.Attendance.Timezone)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
