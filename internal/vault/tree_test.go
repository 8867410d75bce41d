package vault

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
}

func TestBuildTreeOrderAndPaths(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "b.md", "b")
	writeFile(t, root, "a/z.txt", "z")
	writeFile(t, root, "a/c.txt", "c")
	writeFile(t, root, ".git/HEAD", "ref")

	tree, err := BuildTree(root, TreeOptions{Exclude: []string{".git"}})
	require.NoError(t, err)

	assert.Equal(t, "", tree.Path)
	assert.True(t, tree.IsDir())
	require.Len(t, tree.Children, 2)
	assert.Equal(t, "a", tree.Children[0].Path)
	assert.Equal(t, "b.md", tree.Children[1].Path)
	assert.Equal(t, []string{"a/c.txt", "a/z.txt", "b.md"}, Files(tree))
	assert.Equal(t, 5, CountNodes(tree))

	found := FindByPath(tree, "a/z.txt")
	require.NotNil(t, found)
	assert.Equal(t, KindFile, found.Kind)
	assert.Contains(t, Flatten(tree), "a/c.txt")
}

func TestBuildTreeSkipsSymlinkCycle(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "dir/file.txt", "x")
	if err := os.Symlink(root, filepath.Join(root, "dir", "loop")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	var skipped []string
	tree, err := BuildTree(root, TreeOptions{OnSkip: func(p, reason string) {
		if reason == SkipCycle {
			skipped = append(skipped, p)
		}
	}})
	require.NoError(t, err)

	assert.Equal(t, []string{"dir/loop"}, skipped)
	assert.Equal(t, []string{"dir/file.txt"}, Files(tree))
}

func TestBuildTreeFollowsDirectorySymlink(t *testing.T) {
	outside := t.TempDir()
	writeFile(t, outside, "shared.md", "s")
	root := t.TempDir()
	if err := os.Symlink(outside, filepath.Join(root, "linked")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	if err := os.Symlink(filepath.Join(root, "nowhere"), filepath.Join(root, "dangling")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}

	var reasons []string
	tree, err := BuildTree(root, TreeOptions{OnSkip: func(_, reason string) { reasons = append(reasons, reason) }})
	require.NoError(t, err)
	assert.Equal(t, []string{"linked/shared.md"}, Files(tree))
	assert.Equal(t, []string{SkipBrokenLink}, reasons)
}

func TestBuildTreePathPrefix(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "notes/daily/today.md", "x")

	tree, err := BuildTree(filepath.Join(root, "notes"), TreeOptions{PathPrefix: "notes"})
	require.NoError(t, err)
	assert.Equal(t, "notes", tree.Path)
	assert.Equal(t, "notes", tree.Name)
	assert.Equal(t, []string{"notes/daily/today.md"}, Files(tree))
}

func TestBuildTreeMissingRoot(t *testing.T) {
	_, err := BuildTree(filepath.Join(t.TempDir(), "nope"), TreeOptions{})
	assert.ErrorIs(t, err, ErrNotFound)
}
