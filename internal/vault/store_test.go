package vault

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *LocalStore {
	t.Helper()
	s, err := NewLocalStore(t.TempDir(), false)
	require.NoError(t, err)
	return s
}

func TestLocalStoreWriteRead(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Write(ctx, "note.md", []byte("hello")))
	require.NoError(t, s.Write(ctx, "note.md", []byte("hello again")))

	b, err := s.Read(ctx, "note.md")
	require.NoError(t, err)
	assert.Equal(t, "hello again", string(b))

	matches, _ := filepath.Glob(filepath.Join(s.Root(), ".vaultsync-*.tmp"))
	assert.Empty(t, matches, "temp files should not be left behind")
}

func TestLocalStoreErrorKinds(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	_, err := s.Read(ctx, "missing.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Write(ctx, "no/parent/file.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.Move(ctx, "ghost.txt", "elsewhere.txt")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Read(ctx, "../escape.txt")
	assert.ErrorIs(t, err, ErrOutsideVault)
	assert.ErrorIs(t, err, ErrPermissionDenied)

	var pe *PathError
	require.True(t, errors.As(err, &pe))
	assert.Equal(t, "resolve", pe.Op)
}

func TestLocalStorePermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission bits are not enforced for root")
	}
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.MkdirAll(ctx, "locked"))
	require.NoError(t, os.Chmod(filepath.Join(s.Root(), "locked"), 0o500))
	t.Cleanup(func() { _ = os.Chmod(filepath.Join(s.Root(), "locked"), 0o755) })

	err := s.Write(ctx, "locked/file.txt", []byte("x"))
	assert.ErrorIs(t, err, ErrPermissionDenied)
}

func TestLocalStoreMkdirAllIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.MkdirAll(ctx, "a/b/c"))
	require.NoError(t, s.MkdirAll(ctx, "a/b/c"))

	ok, err := s.IsDir(ctx, "a/b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalStoreMoveCreatesParent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	require.NoError(t, s.Write(ctx, "a.txt", []byte("x")))

	require.NoError(t, s.Move(ctx, "a.txt", "archive/2024/a.txt"))

	ok, err := s.Exists(ctx, "a.txt")
	require.NoError(t, err)
	assert.False(t, ok)
	b, err := s.Read(ctx, "archive/2024/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "x", string(b))
}

func TestRelAcceptsAbsoluteInsideRoot(t *testing.T) {
	s := newStore(t)

	rel, err := s.Rel(filepath.Join(s.Root(), "dir", "f.txt"))
	require.NoError(t, err)
	assert.Equal(t, "dir/f.txt", rel)

	_, err = s.Rel(filepath.Join(filepath.Dir(s.Root()), "other"))
	assert.ErrorIs(t, err, ErrOutsideVault)
}

func TestCleanRel(t *testing.T) {
	cases := []struct {
		in   string
		want string
		bad  bool
	}{
		{"", "", false},
		{".", "", false},
		{"/notes/a.md", "notes/a.md", false},
		{"notes/./x/../a.md", "notes/a.md", false},
		{"..", "", true},
		{"a/../../b", "", true},
	}
	for _, tc := range cases {
		got, err := CleanRel(tc.in)
		if tc.bad {
			assert.ErrorIs(t, err, ErrOutsideVault, tc.in)
			continue
		}
		require.NoError(t, err, tc.in)
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestLocalStoreListFiles(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.MkdirAll(ctx, "b/.git"))
	require.NoError(t, s.Write(ctx, "b/two.md", []byte("2")))
	require.NoError(t, s.Write(ctx, "b/.git/HEAD", []byte("ref")))
	require.NoError(t, s.Write(ctx, "a.txt", []byte("1")))
	require.NoError(t, os.WriteFile(filepath.Join(s.Root(), ".vaultsync-123.tmp"), []byte("x"), 0o644))

	files, err := s.ListFiles(ctx, []string{".git"})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b/two.md"}, files)
}
