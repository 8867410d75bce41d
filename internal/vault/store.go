// Package vault provides byte-level access to the vault directory and
// hierarchical snapshots of its contents.
package vault

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

const tempPattern = ".vaultsync-*.tmp"

// FileStore is the byte-level file store the sync orchestrator writes through.
// Paths are vault-relative and slash separated. Failures carry ErrNotFound,
// ErrPermissionDenied or ErrIO.
type FileStore interface {
	Read(ctx context.Context, p string) ([]byte, error)
	Write(ctx context.Context, p string, data []byte) error
	Exists(ctx context.Context, p string) (bool, error)
	MkdirAll(ctx context.Context, p string) error
	Move(ctx context.Context, from, to string) error
}

// LocalStore implements FileStore on the local filesystem.
type LocalStore struct {
	root string
}

// NewLocalStore opens a store rooted at root. When create is set a missing
// root directory is created.
func NewLocalStore(root string, create bool) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("vault root is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve vault root %s: %w", root, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) && create {
			if mkErr := os.MkdirAll(abs, 0o755); mkErr != nil {
				return nil, classify("mkdir", root, mkErr)
			}
		} else {
			return nil, classify("stat", root, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("vault root %s is not a directory", root)
	}
	return &LocalStore{root: abs}, nil
}

// Root returns the absolute vault root.
func (s *LocalStore) Root() string { return s.root }

// Rel normalizes p to a clean vault-relative slash path. Absolute paths inside
// the root are accepted. The root itself is "".
func (s *LocalStore) Rel(p string) (string, error) {
	if filepath.IsAbs(p) {
		r, err := filepath.Rel(s.root, filepath.Clean(p))
		if err != nil {
			return "", &PathError{Op: "resolve", Path: p, Kind: ErrOutsideVault}
		}
		p = filepath.ToSlash(r)
	}
	return CleanRel(p)
}

// Abs returns the absolute filesystem path for a vault path.
func (s *LocalStore) Abs(p string) (string, error) {
	rel, err := s.Rel(p)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(rel)), nil
}

// CleanRel cleans a vault-relative path and rejects paths escaping the root.
// Leading slashes are ignored.
func CleanRel(p string) (string, error) {
	c := path.Clean(strings.TrimLeft(p, "/"))
	if c == ".." || strings.HasPrefix(c, "../") {
		return "", &PathError{Op: "resolve", Path: p, Kind: ErrOutsideVault}
	}
	if c == "." {
		return "", nil
	}
	return c, nil
}

// Read returns the contents of a file.
func (s *LocalStore) Read(_ context.Context, p string) ([]byte, error) {
	abs, err := s.Abs(p)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, classify("read", p, err)
	}
	if info.IsDir() {
		return nil, &PathError{Op: "read", Path: p, Kind: ErrIO, Err: fmt.Errorf("%s is a directory", p)}
	}
	b, err := os.ReadFile(abs)
	if err != nil {
		return nil, classify("read", p, err)
	}
	return b, nil
}

// Write replaces the file at p atomically. The parent directory must exist.
func (s *LocalStore) Write(_ context.Context, p string, data []byte) error {
	abs, err := s.Abs(p)
	if err != nil {
		return err
	}
	if abs == s.root {
		return &PathError{Op: "write", Path: p, Kind: ErrIO, Err: fmt.Errorf("cannot write vault root")}
	}
	dir := filepath.Dir(abs)

	// Write to temp file then rename for atomicity
	tmp, err := os.CreateTemp(dir, tempPattern)
	if err != nil {
		return classify("write", p, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return classify("write", p, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return classify("write", p, err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		os.Remove(tmpName)
		return classify("write", p, err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		os.Remove(tmpName)
		return classify("write", p, err)
	}
	return nil
}

// Exists reports whether p exists (file or directory).
func (s *LocalStore) Exists(_ context.Context, p string) (bool, error) {
	abs, err := s.Abs(p)
	if err != nil {
		return false, err
	}
	_, err = os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, classify("stat", p, err)
	}
	return true, nil
}

// IsDir reports whether p is an existing directory.
func (s *LocalStore) IsDir(_ context.Context, p string) (bool, error) {
	abs, err := s.Abs(p)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, classify("stat", p, err)
	}
	return info.IsDir(), nil
}

// MkdirAll creates p and any missing parents. Existing directories are not an error.
func (s *LocalStore) MkdirAll(_ context.Context, p string) error {
	abs, err := s.Abs(p)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return classify("mkdir", p, err)
	}
	return nil
}

// Move renames a file or directory, creating the destination parent.
func (s *LocalStore) Move(_ context.Context, from, to string) error {
	src, err := s.Abs(from)
	if err != nil {
		return err
	}
	dst, err := s.Abs(to)
	if err != nil {
		return err
	}
	if src == s.root || dst == s.root {
		return &PathError{Op: "move", Path: from, Kind: ErrPermissionDenied, Err: fmt.Errorf("cannot move vault root")}
	}
	if _, err := os.Lstat(src); err != nil {
		return classify("move", from, err)
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return classify("move", to, err)
	}
	if err := os.Rename(src, dst); err != nil {
		return classify("move", from, err)
	}
	return nil
}

// ListFiles returns every file under the vault root, depth-first, skipping
// base names matching exclude and in-flight temp files.
func (s *LocalStore) ListFiles(_ context.Context, exclude []string) ([]string, error) {
	patterns := append([]string{tempPattern}, exclude...)
	tree, err := BuildTree(s.root, TreeOptions{Exclude: patterns})
	if err != nil {
		return nil, err
	}
	return Files(tree), nil
}
