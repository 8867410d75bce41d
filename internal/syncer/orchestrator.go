// Package syncer applies vault mutations and keeps the content index in step
// with them. Every mutation hits the file store first; the index follows only
// after the disk change is durable, and an index failure at that point is
// reported as a desynchronization rather than rolled back.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/KaramelBytes/vaultsync-cli/internal/events"
	"github.com/KaramelBytes/vaultsync-cli/internal/index"
	"github.com/KaramelBytes/vaultsync-cli/internal/metrics"
	"github.com/KaramelBytes/vaultsync-cli/internal/parser"
	"github.com/KaramelBytes/vaultsync-cli/internal/retry"
	"github.com/KaramelBytes/vaultsync-cli/internal/vault"
	"go.uber.org/zap"
)

// Kind identifies a mutation.
type Kind string

const (
	KindWrite  Kind = "write"
	KindCreate Kind = "create"
	KindMove   Kind = "move"
)

// Mutation is one requested change to the vault. Write and Create use Path and
// Content; Move uses From and To.
type Mutation struct {
	Kind    Kind
	Path    string
	Content string
	// Index requests an index update for a Write. Create always indexes.
	Index bool
	From  string
	To    string
}

// Write replaces the content of path.
func Write(path, content string, index bool) Mutation {
	return Mutation{Kind: KindWrite, Path: path, Content: content, Index: index}
}

// Create writes a new file, creating missing ancestor directories.
func Create(path, content string) Mutation {
	return Mutation{Kind: KindCreate, Path: path, Content: content}
}

// Move renames a file or directory.
func Move(from, to string) Mutation {
	return Mutation{Kind: KindMove, From: from, To: to}
}

// Lister is implemented by file stores that can enumerate their files.
// Reconciliation needs it to pick up untracked files.
type Lister interface {
	ListFiles(ctx context.Context, exclude []string) ([]string, error)
}

// Orchestrator serializes mutations per path and drives the file store and the
// content index.
type Orchestrator struct {
	files   vault.FileStore
	index   index.ContentIndex
	logger  *zap.Logger
	retry   retry.Config
	events  *events.Broadcaster
	extract func(name string, data []byte) (string, error)
	exclude []string
	workers int

	locks *pathLocks
	tree  *treeLocks

	mu      sync.Mutex
	pending map[string]struct{}
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *zap.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithRetry sets the retry policy for index operations. At least one attempt
// is always made.
func WithRetry(cfg retry.Config) Option {
	return func(o *Orchestrator) {
		if cfg.MaxAttempts < 1 {
			cfg.MaxAttempts = 1
		}
		o.retry = cfg
	}
}

// WithEvents publishes index notifications to b.
func WithEvents(b *events.Broadcaster) Option {
	return func(o *Orchestrator) { o.events = b }
}

// WithExtractor replaces parser.Extract for reading out-of-band files.
func WithExtractor(fn func(name string, data []byte) (string, error)) Option {
	return func(o *Orchestrator) {
		if fn != nil {
			o.extract = fn
		}
	}
}

// WithExclude sets base-name glob patterns ignored when listing untracked files.
func WithExclude(patterns []string) Option {
	return func(o *Orchestrator) { o.exclude = patterns }
}

// WithWorkers bounds reconciliation concurrency.
func WithWorkers(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.workers = n
		}
	}
}

// New creates an orchestrator over files and idx.
func New(files vault.FileStore, idx index.ContentIndex, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		files:   files,
		index:   idx,
		logger:  zap.NewNop(),
		retry:   retry.DefaultConfig(),
		extract: parser.Extract,
		workers: 4,
		locks:   newPathLocks(),
		tree:    newTreeLocks(),
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Apply performs m and returns once the index outcome is known. It returns
// nil, a *DiskError (nothing changed in the index) or a *DesyncError (the
// vault changed, the index did not follow).
func (o *Orchestrator) Apply(ctx context.Context, m Mutation) error {
	start := time.Now()
	var err error
	switch m.Kind {
	case KindWrite:
		err = o.write(ctx, m.Path, m.Content, m.Index)
	case KindCreate:
		err = o.create(ctx, m.Path, m.Content)
	case KindMove:
		err = o.move(ctx, m.From, m.To)
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	metrics.RecordMutation(string(m.Kind), outcome(err), time.Since(start))
	return err
}

// SyncOnWrite writes content to path, updating the index when indexRequested
// is set or the path is already indexed.
func (o *Orchestrator) SyncOnWrite(ctx context.Context, path, content string, indexRequested bool) error {
	return o.Apply(ctx, Write(path, content, indexRequested))
}

// SyncOnCreate creates path with content and indexes it.
func (o *Orchestrator) SyncOnCreate(ctx context.Context, path, content string) error {
	return o.Apply(ctx, Create(path, content))
}

// SyncOnMove moves from to to and carries index records along.
func (o *Orchestrator) SyncOnMove(ctx context.Context, from, to string) error {
	return o.Apply(ctx, Move(from, to))
}

func outcome(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeOK
	case errors.Is(err, ErrDesync):
		return metrics.OutcomeDesync
	default:
		return metrics.OutcomeDisk
	}
}

func (o *Orchestrator) write(ctx context.Context, p, content string, requested bool) error {
	rel, err := vault.CleanRel(p)
	if err != nil {
		return &DiskError{Op: "write", Path: p, Err: err}
	}
	defer o.tree.enter(rel)()
	unlock := o.locks.lock(rel)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return &DiskError{Op: "write", Path: rel, Err: err}
	}
	if err := o.files.Write(ctx, rel, []byte(content)); err != nil {
		return &DiskError{Op: "write", Path: rel, Err: err}
	}

	// The disk write is durable; the index update runs to completion.
	ictx := context.WithoutCancel(ctx)
	if !requested {
		// An indexed file keeps its record current even without a request.
		_, ok, err := o.get(ictx, "write", rel)
		if err != nil {
			return o.desync("write", err, rel)
		}
		if !ok {
			return nil
		}
	}
	if err := o.upsert(ictx, "write", rel, content); err != nil {
		return o.desync("write", err, rel)
	}
	return nil
}

func (o *Orchestrator) create(ctx context.Context, p, content string) error {
	rel, err := vault.CleanRel(p)
	if err != nil {
		return &DiskError{Op: "create", Path: p, Err: err}
	}
	defer o.tree.enter(rel)()
	unlock := o.locks.lock(rel)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return &DiskError{Op: "create", Path: rel, Err: err}
	}
	if dir := path.Dir(rel); dir != "." {
		if err := o.files.MkdirAll(ctx, dir); err != nil {
			return &DiskError{Op: "create", Path: rel, Err: err}
		}
	}
	if err := o.files.Write(ctx, rel, []byte(content)); err != nil {
		return &DiskError{Op: "create", Path: rel, Err: err}
	}
	if err := o.upsert(context.WithoutCancel(ctx), "create", rel, content); err != nil {
		return o.desync("create", err, rel)
	}
	return nil
}

func (o *Orchestrator) move(ctx context.Context, fromPath, toPath string) error {
	from, err := vault.CleanRel(fromPath)
	if err != nil {
		return &DiskError{Op: "move", Path: fromPath, Err: err}
	}
	to, err := vault.CleanRel(toPath)
	if err != nil {
		return &DiskError{Op: "move", Path: toPath, Err: err}
	}

	// Holding from and to exclusively waits out writes and repairs already
	// running below them, so the record listing below is complete.
	release := o.tree.hold([]string{from, to})
	defer release()

	keys := []string{from, to}
	if children, err := o.index.List(ctx, from+"/"); err == nil {
		for _, c := range children {
			keys = append(keys, c, to+strings.TrimPrefix(c, from))
		}
	} else {
		o.logger.Debug("list records before move", zap.String("from", from), zap.Error(err))
	}
	unlock := o.locks.lockAll(keys...)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return &DiskError{Op: "move", Path: from, Err: err}
	}
	if from == to {
		ok, err := o.files.Exists(ctx, from)
		if err != nil {
			return &DiskError{Op: "move", Path: from, Err: err}
		}
		if !ok {
			return &DiskError{Op: "move", Path: from, Err: &vault.PathError{Op: "move", Path: from, Kind: vault.ErrNotFound}}
		}
		return nil
	}
	if err := o.files.Move(ctx, from, to); err != nil {
		return &DiskError{Op: "move", Path: from, Err: err}
	}
	return o.moveRecords(context.WithoutCancel(ctx), from, to)
}

// moveRecords renames the record at from and every record below it. A record
// left at to by an overwritten untracked file is dropped.
func (o *Orchestrator) moveRecords(ctx context.Context, from, to string) error {
	var (
		failed   []string
		firstErr error
	)
	fail := func(err error, paths ...string) {
		if firstErr == nil {
			firstErr = err
		}
		failed = append(failed, paths...)
	}

	moved := false
	switch err := o.rename(ctx, from, to); {
	case err == nil:
		moved = true
	case errors.Is(err, index.ErrRecordNotFound):
	default:
		fail(err, from, to)
	}

	children, err := o.list(ctx, "move", from+"/")
	if err != nil {
		fail(err, from, to)
	}
	for _, child := range children {
		target := to + strings.TrimPrefix(child, from)
		if err := o.rename(ctx, child, target); err != nil && !errors.Is(err, index.ErrRecordNotFound) {
			fail(err, child, target)
		}
	}

	if !moved && len(children) == 0 && firstErr == nil {
		if err := o.dropStale(ctx, "move", to); err != nil {
			fail(err, to)
		}
	}

	if firstErr != nil {
		return o.desync("move", firstErr, dedupe(failed)...)
	}
	return nil
}

// dropStale deletes the record at p if there is one.
func (o *Orchestrator) dropStale(ctx context.Context, op, p string) error {
	_, ok, err := o.get(ctx, op, p)
	if err != nil || !ok {
		return err
	}
	if err := o.withRetry(ctx, op, func(ctx context.Context) error { return o.index.Delete(ctx, p) }); err != nil {
		return err
	}
	o.publish(events.Event{Type: events.TypeIndexRemoved, Op: op, Path: p})
	return nil
}

func (o *Orchestrator) upsert(ctx context.Context, op, p, content string) error {
	err := o.withRetry(ctx, op, func(ctx context.Context) error {
		return o.index.Upsert(ctx, p, content)
	})
	if err != nil {
		return err
	}
	o.clearPending(p)
	o.publish(events.Event{Type: events.TypeIndexUpdated, Op: op, Path: p})
	return nil
}

func (o *Orchestrator) rename(ctx context.Context, from, to string) error {
	err := o.withRetry(ctx, "move", func(ctx context.Context) error {
		return o.index.Rename(ctx, from, to)
	})
	if err != nil {
		return err
	}
	o.clearPending(from)
	o.clearPending(to)
	o.publish(events.Event{Type: events.TypeIndexUpdated, Op: "move", From: from, To: to})
	return nil
}

func (o *Orchestrator) get(ctx context.Context, op, p string) (*index.Record, bool, error) {
	var (
		rec *index.Record
		ok  bool
	)
	err := o.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		rec, ok, err = o.index.Get(ctx, p)
		return err
	})
	return rec, ok, err
}

func (o *Orchestrator) list(ctx context.Context, op, prefix string) ([]string, error) {
	var paths []string
	err := o.withRetry(ctx, op, func(ctx context.Context) error {
		var err error
		paths, err = o.index.List(ctx, prefix)
		return err
	})
	return paths, err
}

// withRetry retries fn while the index reports itself unavailable.
func (o *Orchestrator) withRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	cfg := o.retry
	onRetry := cfg.OnRetry
	cfg.OnRetry = func(attempt int, err error) {
		metrics.RecordIndexRetry(op)
		o.logger.Debug("retrying index operation",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))
		if onRetry != nil {
			onRetry(attempt, err)
		}
	}
	return retry.Do(ctx, cfg, func() error {
		err := fn(ctx)
		if err != nil && errors.Is(err, index.ErrUnavailable) {
			return retry.Retryable(err)
		}
		return err
	})
}

// desync records paths for repair, notifies subscribers and builds the error
// returned to the caller.
func (o *Orchestrator) desync(op string, err error, paths ...string) error {
	o.mu.Lock()
	for _, p := range paths {
		o.pending[p] = struct{}{}
	}
	o.mu.Unlock()

	o.logger.Warn("index desynchronized",
		zap.String("op", op),
		zap.Strings("paths", paths),
		zap.Error(err))

	ev := events.Event{Type: events.TypeIndexError, Op: op, Error: err.Error()}
	if op == "move" && len(paths) >= 2 {
		ev.From, ev.To = paths[0], paths[1]
	} else if len(paths) > 0 {
		ev.Path = paths[0]
	}
	o.publish(ev)
	return &DesyncError{Op: op, Paths: paths, Err: err}
}

func (o *Orchestrator) publish(ev events.Event) {
	o.events.Publish(ev)
}

func (o *Orchestrator) clearPending(p string) {
	o.mu.Lock()
	delete(o.pending, p)
	o.mu.Unlock()
}

func (o *Orchestrator) isPending(p string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, ok := o.pending[p]
	return ok
}

// Pending returns the paths whose index update failed and has not been
// repaired yet, sorted.
func (o *Orchestrator) Pending() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]string, 0, len(o.pending))
	for p := range o.pending {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

func dedupe(paths []string) []string {
	seen := make(map[string]bool, len(paths))
	out := paths[:0]
	for _, p := range paths {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	return out
}
