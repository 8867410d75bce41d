package config_test

import (
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/vaultsync-cli/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	c, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.IndexBackend != "sqlite" {
		t.Fatalf("index_backend=%q", c.IndexBackend)
	}
	if c.VaultDir != filepath.Join(home, "vault") {
		t.Fatalf("vault_dir=%q", c.VaultDir)
	}
	if c.IndexDir != filepath.Join(home, ".vaultsync", "index") {
		t.Fatalf("index_dir=%q", c.IndexDir)
	}
	if c.RetryMaxAttempts != 3 {
		t.Fatalf("retry_max_attempts=%d", c.RetryMaxAttempts)
	}
	if len(c.Exclude) != 2 {
		t.Fatalf("exclude=%v", c.Exclude)
	}
}

func TestSaveThenLoadRoundtrip(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	path := filepath.Join(home, "custom.yaml")

	c, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	c.VaultDir = filepath.Join(home, "notes")
	c.IndexBackend = "json"
	c.ContextLength = 2048
	if err := config.Save(c, path); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := config.Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got.VaultDir != c.VaultDir || got.IndexBackend != "json" || got.ContextLength != 2048 {
		t.Fatalf("roundtrip mismatch: %+v", got)
	}
}

func TestEnvOverridesFile(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VAULTSYNC_TOKENIZER", "heuristic")

	c, err := config.Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if c.Tokenizer != "heuristic" {
		t.Fatalf("tokenizer=%q", c.Tokenizer)
	}
}
