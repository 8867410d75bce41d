package utils_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
)

func TestSafeWriteFileReplacesContent(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "state.json")
	if err := utils.SafeWriteFile(p, []byte("one")); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := utils.SafeWriteFile(p, []byte("two")); err != nil {
		t.Fatalf("second write: %v", err)
	}
	b, err := os.ReadFile(p)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(b) != "two" {
		t.Fatalf("got %q", b)
	}
	if _, err := os.Stat(p + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("temp file left behind: %v", err)
	}
}

func TestExpandHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := utils.ExpandHome("~/vault/notes")
	if err != nil {
		t.Fatalf("expand: %v", err)
	}
	if got != filepath.Join(home, "vault", "notes") {
		t.Fatalf("got %q", got)
	}
	got, err = utils.ExpandHome("/srv/../srv/vault")
	if err != nil {
		t.Fatalf("expand abs: %v", err)
	}
	if got != "/srv/vault" {
		t.Fatalf("got %q", got)
	}
}
