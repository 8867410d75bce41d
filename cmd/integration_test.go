package cmd

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/vaultsync-cli/internal/index"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so runs do not leak state.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		_ = fl.Value.Set(fl.DefValue)
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd is a helper to execute the root command with args.
func runCmd(t *testing.T, args ...string) {
	t.Helper()
	if err := execCmd(args...); err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
}

func execCmd(args ...string) error {
	resetFlags(rootCmd)
	rootCmd.SetArgs(args)
	return rootCmd.Execute()
}

// setupHome isolates config, index and vault under a temp HOME.
func setupHome(t *testing.T, backend string) (home, vaultDir string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("VAULTSYNC_TOKENIZER", "heuristic")
	t.Setenv("VAULTSYNC_INDEX_BACKEND", backend)
	vaultDir = filepath.Join(home, "vault")
	runCmd(t, "init", vaultDir)
	return home, vaultDir
}

func indexDir(home string) string {
	return filepath.Join(home, ".vaultsync", "index")
}

func TestCLI_Init_Create_Move_Reconcile_JSON(t *testing.T) {
	home, vaultDir := setupHome(t, "json")
	ctx := context.Background()

	runCmd(t, "create", "notes/a.md", "--content", "hello world")
	runCmd(t, "move", "notes/a.md", "archive/a.md")

	if _, err := os.Stat(filepath.Join(vaultDir, "archive", "a.md")); err != nil {
		t.Fatalf("moved file missing: %v", err)
	}

	idx, err := index.OpenJSONIndex(indexDir(home))
	if err != nil {
		t.Fatalf("open index: %v", err)
	}
	paths, err := idx.List(ctx, "")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(paths) != 1 || paths[0] != "archive/a.md" {
		t.Fatalf("records after move = %v", paths)
	}

	// Edit outside vaultsync, then repair.
	if err := os.WriteFile(filepath.Join(vaultDir, "archive", "a.md"), []byte("changed"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	runCmd(t, "index", "reconcile")

	idx, err = index.OpenJSONIndex(indexDir(home))
	if err != nil {
		t.Fatalf("reopen index: %v", err)
	}
	rec, ok, err := idx.Get(ctx, "archive/a.md")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if rec.Content != "changed" {
		t.Fatalf("content after reconcile = %q", rec.Content)
	}
}

func TestCLI_WriteIndexFlagAndReconcileAll_SQLite(t *testing.T) {
	home, vaultDir := setupHome(t, "sqlite")
	ctx := context.Background()

	runCmd(t, "write", "plain.md", "--content", "not indexed")
	runCmd(t, "write", "kept.md", "--content", "indexed", "--index")
	if err := os.WriteFile(filepath.Join(vaultDir, "loose.md"), []byte("dropped in"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	check := func(want []string) {
		t.Helper()
		idx, err := index.OpenSQLiteIndex(indexDir(home), nil)
		if err != nil {
			t.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		got, err := idx.List(ctx, "")
		if err != nil {
			t.Fatalf("list: %v", err)
		}
		if strings.Join(got, ",") != strings.Join(want, ",") {
			t.Fatalf("records = %v, want %v", got, want)
		}
	}
	check([]string{"kept.md"})

	runCmd(t, "index", "reconcile", "--all")
	check([]string{"kept.md", "loose.md", "plain.md"})
}

func TestCLI_Augment(t *testing.T) {
	setupHome(t, "memory")

	runCmd(t, "create", "big.md", "--content", strings.Repeat("word ", 500))
	runCmd(t, "augment", "big.md", "--prompt", "Summarize", "--context-length", "120", "--breakdown")

	// The prompt alone does not fit.
	if err := execCmd("augment", "big.md", "--prompt", strings.Repeat("long ", 50), "--context-length", "10"); err == nil {
		t.Fatal("expected context too small error")
	}
	if err := execCmd("augment", "missing.md", "--prompt", "x"); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestCLI_RejectsPathsOutsideVault(t *testing.T) {
	setupHome(t, "memory")
	if err := execCmd("create", "../escape.md", "--content", "x"); err == nil {
		t.Fatal("expected error for path outside the vault")
	}
}

func TestCLI_ConfigSetValidates(t *testing.T) {
	setupHome(t, "memory")
	runCmd(t, "config", "set", "retry_max_attempts", "5")
	if err := execCmd("config", "set", "index_backend", "postgres"); err == nil {
		t.Fatal("expected error for unknown backend")
	}
	if err := execCmd("config", "set", "no_such_key", "1"); err == nil {
		t.Fatal("expected error for unknown key")
	}
}
