package config

import (
	"path/filepath"
	"testing"
	"time"

	"os"
)

func TestLoad_DefaultsWithNoFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "opstaskd.db" {
		t.Errorf("expected default db path, got %q", cfg.DBPath)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCHEDULER_DB_PATH", "/tmp/custom.db")
	t.Setenv("SCHEDULER_TASK_TIMEOUT", "120")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/tmp/custom.db" {
		t.Errorf("expected env override, got %q", cfg.DBPath)
	}
	if cfg.Timeouts.Task != 120*time.Second {
		t.Errorf("expected 120s task timeout, got %v", cfg.Timeouts.Task)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "db_path: /var/lib/opstaskd/tasks.db\nhttp:\n  addr: \"0.0.0.0:9000\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.DBPath != "/var/lib/opstaskd/tasks.db" {
		t.Errorf("expected db path from file, got %q", cfg.DBPath)
	}
	if cfg.HTTP.Addr != "0.0.0.0:9000" {
		t.Errorf("expected addr from file, got %q", cfg.HTTP.Addr)
	}
}

func TestEffective_FillsDefaults(t *testing.T) {
	cfg := Config{}.Effective()
	if cfg.Logging.Level != "info" {
		t.Errorf("expected default level info, got %q", cfg.Logging.Level)
	}
	if cfg.HTTP.Addr == "" {
		t.Error("expected a default HTTP addr when nothing else is set")
	}
}
