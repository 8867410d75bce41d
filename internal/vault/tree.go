package vault

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
)

// EntryKind distinguishes files from directories in a VaultEntry.
type EntryKind string

const (
	KindFile      EntryKind = "file"
	KindDirectory EntryKind = "directory"
)

// VaultEntry is one node of a vault snapshot. Path is vault-relative and
// slash separated; the vault root has an empty Path.
type VaultEntry struct {
	Path     string        `json:"path"`
	Name     string        `json:"name"`
	Kind     EntryKind     `json:"kind"`
	Children []*VaultEntry `json:"children,omitempty"`
}

// IsDir reports whether the entry is a directory.
func (e *VaultEntry) IsDir() bool { return e.Kind == KindDirectory }

// Skip reasons passed to TreeOptions.OnSkip.
const (
	SkipCycle       = "cycle"
	SkipBrokenLink  = "broken symlink"
	SkipUnreadable  = "unreadable"
	SkipUnsupported = "unsupported file type"
)

// TreeOptions configures BuildTree.
type TreeOptions struct {
	// Exclude holds glob patterns matched against base names.
	Exclude []string
	// PathPrefix is prepended to every entry path, so a subtree of the vault
	// keeps vault-relative paths.
	PathPrefix string
	// OnSkip is called for every entry left out of the snapshot other than
	// excluded names.
	OnSkip func(path, reason string)
}

// BuildTree walks root depth-first and returns a snapshot with children in
// lexicographic order. Directory symlinks are followed; a directory whose
// real path was already visited is skipped and reported.
func BuildTree(root string, opts TreeOptions) (*VaultEntry, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, classify("tree", root, err)
	}
	if !info.IsDir() {
		return nil, &PathError{Op: "tree", Path: root, Kind: ErrIO, Err: fmt.Errorf("%s is not a directory", root)}
	}
	real, err := filepath.EvalSymlinks(root)
	if err != nil {
		return nil, classify("tree", root, err)
	}

	prefix, err := CleanRel(opts.PathPrefix)
	if err != nil {
		return nil, err
	}
	name := filepath.Base(root)
	if prefix != "" {
		name = path.Base(prefix)
	}
	w := &treeWalker{opts: opts, visited: map[string]bool{real: true}}
	entry := &VaultEntry{Path: prefix, Name: name, Kind: KindDirectory}
	if err := w.walk(root, entry, true); err != nil {
		return nil, err
	}
	return entry, nil
}

type treeWalker struct {
	opts    TreeOptions
	visited map[string]bool
}

func (w *treeWalker) skip(p, reason string) {
	if w.opts.OnSkip != nil {
		w.opts.OnSkip(p, reason)
	}
}

func (w *treeWalker) excluded(name string) bool {
	for _, pat := range w.opts.Exclude {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

func (w *treeWalker) walk(dir string, parent *VaultEntry, top bool) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if top {
			return classify("tree", dir, err)
		}
		w.skip(parent.Path, SkipUnreadable)
		return nil
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	for _, de := range entries {
		name := de.Name()
		if w.excluded(name) {
			continue
		}
		rel := path.Join(parent.Path, name)
		abs := filepath.Join(dir, name)

		mode := de.Type()
		if mode&os.ModeSymlink != 0 {
			info, err := os.Stat(abs)
			if err != nil {
				w.skip(rel, SkipBrokenLink)
				continue
			}
			mode = info.Mode().Type()
		}

		switch {
		case mode.IsDir():
			real, err := filepath.EvalSymlinks(abs)
			if err != nil {
				w.skip(rel, SkipBrokenLink)
				continue
			}
			if w.visited[real] {
				w.skip(rel, SkipCycle)
				continue
			}
			w.visited[real] = true
			child := &VaultEntry{Path: rel, Name: name, Kind: KindDirectory}
			if err := w.walk(abs, child, false); err != nil {
				return err
			}
			parent.Children = append(parent.Children, child)
		case mode.IsRegular():
			parent.Children = append(parent.Children, &VaultEntry{Path: rel, Name: name, Kind: KindFile})
		default:
			w.skip(rel, SkipUnsupported)
		}
	}
	return nil
}

// FindByPath resolves a vault path in the tree (recursive).
func FindByPath(root *VaultEntry, p string) *VaultEntry {
	if root == nil {
		return nil
	}
	if root.Path == p {
		return root
	}
	for _, child := range root.Children {
		if found := FindByPath(child, p); found != nil {
			return found
		}
	}
	return nil
}

// CountNodes counts all nodes in a tree.
func CountNodes(root *VaultEntry) int {
	if root == nil {
		return 0
	}
	count := 1
	for _, child := range root.Children {
		count += CountNodes(child)
	}
	return count
}

// Flatten returns all nodes in a flat map keyed by path.
func Flatten(root *VaultEntry) map[string]*VaultEntry {
	result := make(map[string]*VaultEntry)
	if root == nil {
		return result
	}
	flattenRecursive(root, result)
	return result
}

func flattenRecursive(node *VaultEntry, result map[string]*VaultEntry) {
	result[node.Path] = node
	for _, child := range node.Children {
		flattenRecursive(child, result)
	}
}

// Files returns the paths of all files in depth-first order.
func Files(root *VaultEntry) []string {
	var out []string
	var visit func(*VaultEntry)
	visit = func(e *VaultEntry) {
		if e.Kind == KindFile {
			out = append(out, e.Path)
		}
		for _, c := range e.Children {
			visit(c)
		}
	}
	if root != nil {
		visit(root)
	}
	return out
}
