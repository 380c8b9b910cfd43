package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("missing config file should not error: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Database.Path != "sitewarden.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
	if cfg.Scanner.HistoryLimit != 10 {
		t.Errorf("history limit = %d, want 10", cfg.Scanner.HistoryLimit)
	}
}

func TestLoadOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
server:
  host: 0.0.0.0
  port: 9000
scanner:
  ingest_token: from-file
  history_limit: 3
`
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 9000 {
		t.Errorf("server = %+v", cfg.Server)
	}
	if cfg.Scanner.IngestToken != "from-file" {
		t.Errorf("ingest token = %q", cfg.Scanner.IngestToken)
	}
	if cfg.Scanner.HistoryLimit != 3 {
		t.Errorf("history limit = %d, want 3", cfg.Scanner.HistoryLimit)
	}
	// Defaults survive a partial file.
	if cfg.Database.Path != "sitewarden.db" {
		t.Errorf("database path = %q", cfg.Database.Path)
	}
}

func TestEnvTokenWins(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("scanner:\n  ingest_token: from-file\n"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}

	t.Setenv("SITEWARDEN_INGEST_TOKEN", "from-env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("loading config: %v", err)
	}
	if cfg.Scanner.IngestToken != "from-env" {
		t.Errorf("ingest token = %q, want env value", cfg.Scanner.IngestToken)
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not a map"), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	if _, err := Load(path); err == nil {
		t.Error("malformed yaml should error")
	}
}
