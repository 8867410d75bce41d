// Package watch reconciles the content index when vault files change outside
// the orchestrator.
package watch

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sync"
	"time"

	"github.com/KaramelBytes/vaultsync-cli/internal/syncer"
	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// DefaultDebounce is used when Config.Debounce is zero.
const DefaultDebounce = 300 * time.Millisecond

// tempPattern matches the orchestrator's in-flight write files.
const tempPattern = ".vaultsync-*.tmp"

// Reconciler repairs the index record of one vault path.
type Reconciler interface {
	ReconcilePath(ctx context.Context, p string, opts syncer.ReconcileOptions) (syncer.Action, error)
}

// Config configures a Watcher.
type Config struct {
	Root             string
	Exclude          []string
	Debounce         time.Duration
	IncludeUntracked bool
	Logger           *zap.Logger
	// OnReconcile is called after every reconciliation the watcher triggers.
	OnReconcile func(path string, act syncer.Action, err error)
}

// Watcher watches the vault recursively and reconciles changed paths after
// they have been quiet for the debounce interval.
type Watcher struct {
	cfg     Config
	rec     Reconciler
	watcher *fsnotify.Watcher
	logger  *zap.Logger

	mu      sync.Mutex
	timers  map[string]*time.Timer
	stopped bool

	inflight sync.WaitGroup
	done     chan struct{}
	stop     chan struct{}
}

// New creates a watcher for cfg.Root.
func New(rec Reconciler, cfg Config) (*Watcher, error) {
	if cfg.Root == "" {
		return nil, fmt.Errorf("watch root is required")
	}
	root, err := filepath.Abs(cfg.Root)
	if err != nil {
		return nil, fmt.Errorf("resolve watch root: %w", err)
	}
	cfg.Root = root
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	return &Watcher{
		cfg:     cfg,
		rec:     rec,
		watcher: fw,
		logger:  logger,
		timers:  make(map[string]*time.Timer),
		done:    make(chan struct{}),
		stop:    make(chan struct{}),
	}, nil
}

// Start adds watches for every directory under the root and begins
// processing events in the background. Call Stop to release resources.
func (w *Watcher) Start(ctx context.Context) error {
	if err := w.addTree(w.cfg.Root, nil); err != nil {
		return err
	}
	w.logger.Info("watching vault", zap.String("root", w.cfg.Root))
	go w.processEvents(ctx)
	return nil
}

// Stop stops the watcher and waits for running reconciliations.
func (w *Watcher) Stop() {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	w.stopped = true
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()

	close(w.stop)
	_ = w.watcher.Close()
	<-w.done
	w.inflight.Wait()
}

func (w *Watcher) processEvents(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-w.stop:
			return
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handle(ctx, event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) handle(ctx context.Context, event fsnotify.Event) {
	if event.Op == fsnotify.Chmod || w.ignored(event.Name) {
		return
	}
	if event.Has(fsnotify.Create) {
		// A new or moved-in directory needs its own watches, and files
		// inside it never produce events of their own.
		var files []string
		if err := w.addTree(event.Name, &files); err == nil {
			for _, f := range files {
				w.schedule(ctx, f)
			}
		}
	}
	w.schedule(ctx, event.Name)
}

// addTree watches dir and every directory below it. Files found are appended
// to files when it is non-nil. A path that is not a directory is ignored.
func (w *Watcher) addTree(dir string, files *[]string) error {
	return filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if p == dir {
				return err
			}
			return nil
		}
		if p != dir && w.ignored(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() {
			if p == dir {
				return errNotDir
			}
			if files != nil {
				*files = append(*files, p)
			}
			return nil
		}
		if err := w.watcher.Add(p); err != nil {
			return fmt.Errorf("watch %s: %w", p, err)
		}
		return nil
	})
}

var errNotDir = errors.New("not a directory")

func (w *Watcher) ignored(p string) bool {
	name := filepath.Base(p)
	if ok, _ := filepath.Match(tempPattern, name); ok {
		return true
	}
	for _, pat := range w.cfg.Exclude {
		if ok, _ := filepath.Match(pat, name); ok {
			return true
		}
	}
	return false
}

// schedule (re)starts the debounce timer for an absolute path.
func (w *Watcher) schedule(ctx context.Context, abs string) {
	rel, err := filepath.Rel(w.cfg.Root, abs)
	if err != nil {
		return
	}
	rel = filepath.ToSlash(rel)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.stopped {
		return
	}
	if t, ok := w.timers[rel]; ok {
		t.Reset(w.cfg.Debounce)
		return
	}
	w.timers[rel] = time.AfterFunc(w.cfg.Debounce, func() { w.fire(ctx, rel) })
}

func (w *Watcher) fire(ctx context.Context, rel string) {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return
	}
	delete(w.timers, rel)
	w.inflight.Add(1)
	w.mu.Unlock()
	defer w.inflight.Done()

	act, err := w.rec.ReconcilePath(ctx, rel, syncer.ReconcileOptions{IncludeUntracked: w.cfg.IncludeUntracked})
	switch {
	case err != nil:
		w.logger.Warn("reconcile changed path", zap.String("path", rel), zap.Error(err))
	case act != syncer.ActionNone:
		w.logger.Info("index reconciled", zap.String("path", rel), zap.String("action", string(act)))
	}
	if w.cfg.OnReconcile != nil {
		w.cfg.OnReconcile(rel, act, err)
	}
}
