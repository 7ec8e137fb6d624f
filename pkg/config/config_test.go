package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hearthd.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

func TestLoadFillsDefaults(t *testing.T) {
	path := writeConfig(t, "listenAddr: \":7777\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ListenAddr != ":7777" {
		t.Errorf("ListenAddr = %q, want :7777", cfg.ListenAddr)
	}
	if cfg.DataDir != Default().DataDir {
		t.Errorf("DataDir = %q, want default %q", cfg.DataDir, Default().DataDir)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
}

func TestLoadFullManifest(t *testing.T) {
	path := writeConfig(t, `
listenAddr: ":9999"
dataDir: /var/lib/hearth
nickname: kitchen
maxProcesses: 64
peers:
  - other-host:9191
services:
  - hearth.directory
log:
  level: debug
  json: true
metrics:
  enabled: true
  addr: ":9190"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Nickname != "kitchen" {
		t.Errorf("Nickname = %q, want kitchen", cfg.Nickname)
	}
	if cfg.MaxProcesses != 64 {
		t.Errorf("MaxProcesses = %d, want 64", cfg.MaxProcesses)
	}
	if len(cfg.Peers) != 1 || cfg.Peers[0] != "other-host:9191" {
		t.Errorf("Peers = %v, want [other-host:9191]", cfg.Peers)
	}
	if !cfg.Log.JSON || cfg.Log.Level != "debug" {
		t.Errorf("Log = %+v, want debug/json", cfg.Log)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Load() on a missing file succeeded")
	}
}

func TestResolvePasswordPrefersEnv(t *testing.T) {
	t.Setenv("HEARTH_TEST_PASSWORD", "from-env")

	cfg := Config{PasswordEnv: "HEARTH_TEST_PASSWORD", Password: "from-file"}
	pw, err := cfg.ResolvePassword()
	if err != nil {
		t.Fatalf("ResolvePassword() error = %v", err)
	}
	if string(pw) != "from-env" {
		t.Errorf("ResolvePassword() = %q, want from-env", pw)
	}
}

func TestResolvePasswordFallsBackToLiteral(t *testing.T) {
	cfg := Config{PasswordEnv: "HEARTH_UNSET_VARIABLE", Password: "literal"}
	pw, err := cfg.ResolvePassword()
	if err != nil {
		t.Fatalf("ResolvePassword() error = %v", err)
	}
	if string(pw) != "literal" {
		t.Errorf("ResolvePassword() = %q, want literal", pw)
	}
}

func TestResolvePasswordUnconfigured(t *testing.T) {
	if _, err := (Config{}).ResolvePassword(); err == nil {
		t.Fatal("ResolvePassword() with no password succeeded")
	}
}
