package syncer

import (
	"sort"
	"sync"
)

// pathLocks serializes work per vault path in arrival order. sync.Mutex gives
// no ordering guarantee, so each key keeps an explicit queue of waiters; the
// head of the queue holds the lock.
type pathLocks struct {
	mu     sync.Mutex
	queues map[string][]chan struct{}
}

func newPathLocks() *pathLocks {
	return &pathLocks{queues: make(map[string][]chan struct{})}
}

// lock blocks until key is held and returns the matching unlock.
func (l *pathLocks) lock(key string) func() {
	l.mu.Lock()
	q := l.queues[key]
	turn := make(chan struct{})
	l.queues[key] = append(q, turn)
	l.mu.Unlock()

	if len(q) > 0 {
		<-turn
	}
	return func() { l.unlock(key) }
}

func (l *pathLocks) unlock(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	q := l.queues[key][1:]
	if len(q) == 0 {
		delete(l.queues, key)
		return
	}
	l.queues[key] = q
	close(q[0])
}

// lockAll takes every distinct key in sorted order, so two callers sharing
// keys cannot deadlock. The returned func releases them in reverse.
func (l *pathLocks) lockAll(keys ...string) func() {
	uniq := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	for _, k := range keys {
		if !seen[k] {
			seen[k] = true
			uniq = append(uniq, k)
		}
	}
	sort.Strings(uniq)

	unlocks := make([]func(), 0, len(uniq))
	for _, k := range uniq {
		unlocks = append(unlocks, l.lock(k))
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}

// waiting reports how many holders and waiters key has. Used by tests.
func (l *pathLocks) waiting(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues[key])
}

// treeLocks guards directory subtrees. Work on a path holds the path and every
// ancestor shared; a move holds its source and target exclusive, so it waits
// for work already running below them and keeps new work out until it is done.
type treeLocks struct {
	mu    sync.Mutex
	nodes map[string]*treeNode
}

type treeNode struct {
	rw   sync.RWMutex
	refs int
}

func newTreeLocks() *treeLocks {
	return &treeLocks{nodes: make(map[string]*treeNode)}
}

// enter holds p and its ancestors shared.
func (t *treeLocks) enter(p string) func() {
	return t.hold(nil, p)
}

// hold takes the exclusive keys exclusively and the lineage of every key,
// exclusive and shared alike, shared. Keys are taken in sorted order, which
// puts ancestors before descendants.
func (t *treeLocks) hold(exclusive []string, shared ...string) func() {
	modes := make(map[string]bool)
	addLineage := func(p string) {
		for _, k := range lineage(p) {
			if _, ok := modes[k]; !ok {
				modes[k] = false
			}
		}
	}
	for _, p := range shared {
		addLineage(p)
	}
	for _, p := range exclusive {
		addLineage(p)
		modes[p] = true
	}
	keys := make([]string, 0, len(modes))
	for k := range modes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	release := make([]func(), 0, len(keys))
	for _, k := range keys {
		n := t.ref(k)
		if modes[k] {
			n.rw.Lock()
			release = append(release, func() { n.rw.Unlock(); t.unref(k) })
		} else {
			n.rw.RLock()
			release = append(release, func() { n.rw.RUnlock(); t.unref(k) })
		}
	}
	return func() {
		for i := len(release) - 1; i >= 0; i-- {
			release[i]()
		}
	}
}

func (t *treeLocks) ref(k string) *treeNode {
	t.mu.Lock()
	defer t.mu.Unlock()
	n, ok := t.nodes[k]
	if !ok {
		n = &treeNode{}
		t.nodes[k] = n
	}
	n.refs++
	return n
}

func (t *treeLocks) unref(k string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	n := t.nodes[k]
	if n.refs--; n.refs == 0 {
		delete(t.nodes, k)
	}
}

// size reports how many subtree keys are in use. Used by tests.
func (t *treeLocks) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.nodes)
}

// lineage returns every ancestor of p followed by p itself:
// "a/b/c" gives "a", "a/b", "a/b/c".
func lineage(p string) []string {
	var out []string
	for i := 0; i < len(p); i++ {
		if p[i] == '/' {
			out = append(out, p[:i])
		}
	}
	return append(out, p)
}
