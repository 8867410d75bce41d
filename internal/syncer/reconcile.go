package syncer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/KaramelBytes/vaultsync-cli/internal/events"
	"github.com/KaramelBytes/vaultsync-cli/internal/index"
	"github.com/KaramelBytes/vaultsync-cli/internal/metrics"
	"github.com/KaramelBytes/vaultsync-cli/internal/parser"
	"github.com/KaramelBytes/vaultsync-cli/internal/vault"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Action is what reconciliation did to one path.
type Action string

const (
	ActionNone    Action = ""
	ActionUpdated Action = "updated"
	ActionRemoved Action = "removed"
	ActionAdded   Action = "added"
)

// ReconcileOptions controls which paths are brought back in step.
type ReconcileOptions struct {
	// IncludeUntracked indexes vault files that have no record yet.
	IncludeUntracked bool
}

// ReconcileReport summarizes a reconciliation pass.
type ReconcileReport struct {
	Checked int      `json:"checked"`
	Updated []string `json:"updated,omitempty"`
	Removed []string `json:"removed,omitempty"`
	Added   []string `json:"added,omitempty"`
	Failed  []string `json:"failed,omitempty"`
}

// Reconcile compares the index with the vault and repairs every difference:
// records of missing files are removed, records with stale content are
// refreshed. Paths that desynced earlier are handled first. Files without a
// record are only added with IncludeUntracked.
func (o *Orchestrator) Reconcile(ctx context.Context, opts ReconcileOptions) (*ReconcileReport, error) {
	pending := o.Pending()

	indexed, err := o.list(ctx, "reconcile", "")
	if err != nil {
		return nil, fmt.Errorf("list index: %w", err)
	}
	var untracked []string
	if opts.IncludeUntracked {
		lister, ok := o.files.(Lister)
		if !ok {
			return nil, fmt.Errorf("file store cannot list files")
		}
		if untracked, err = lister.ListFiles(ctx, o.exclude); err != nil {
			return nil, fmt.Errorf("list vault files: %w", err)
		}
	}

	seen := make(map[string]bool, len(pending))
	for _, p := range pending {
		seen[p] = true
	}
	var rest []string
	for _, p := range append(indexed, untracked...) {
		if !seen[p] {
			seen[p] = true
			rest = append(rest, p)
		}
	}
	sort.Strings(rest)

	report := &ReconcileReport{}
	var mu sync.Mutex
	record := func(p string, act Action, err error) {
		mu.Lock()
		defer mu.Unlock()
		report.Checked++
		if err != nil {
			o.logger.Warn("reconcile path", zap.String("path", p), zap.Error(err))
			report.Failed = append(report.Failed, p)
			return
		}
		switch act {
		case ActionUpdated:
			report.Updated = append(report.Updated, p)
		case ActionRemoved:
			report.Removed = append(report.Removed, p)
		case ActionAdded:
			report.Added = append(report.Added, p)
		}
	}

	for _, p := range pending {
		act, err := o.reconcilePath(ctx, p, opts.IncludeUntracked)
		record(p, act, err)
	}

	var g errgroup.Group
	g.SetLimit(o.workers)
	for _, p := range rest {
		g.Go(func() error {
			act, err := o.reconcilePath(ctx, p, opts.IncludeUntracked)
			record(p, act, err)
			return nil
		})
	}
	_ = g.Wait()

	sort.Strings(report.Updated)
	sort.Strings(report.Removed)
	sort.Strings(report.Added)
	sort.Strings(report.Failed)

	metrics.RecordReconcile(string(ActionUpdated), len(report.Updated))
	metrics.RecordReconcile(string(ActionRemoved), len(report.Removed))
	metrics.RecordReconcile(string(ActionAdded), len(report.Added))
	metrics.RecordReconcile("failed", len(report.Failed))

	o.logger.Info("reconcile complete",
		zap.Int("checked", report.Checked),
		zap.Int("updated", len(report.Updated)),
		zap.Int("removed", len(report.Removed)),
		zap.Int("added", len(report.Added)),
		zap.Int("failed", len(report.Failed)))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// ReconcilePath brings the record of a single path in step with the vault.
// When p is, or was, a directory the records below it are reconciled too; the
// returned action describes p itself.
func (o *Orchestrator) ReconcilePath(ctx context.Context, p string, opts ReconcileOptions) (Action, error) {
	rel, err := vault.CleanRel(p)
	if err != nil {
		return ActionNone, err
	}
	act, err := o.reconcilePath(ctx, rel, opts.IncludeUntracked)
	if err != nil {
		return ActionNone, err
	}
	if act != ActionNone {
		metrics.RecordReconcile(string(act), 1)
	}
	if rel == "" {
		return act, nil
	}

	children, err := o.list(ctx, "reconcile", rel+"/")
	if err != nil {
		return act, fmt.Errorf("list records under %s: %w", rel, err)
	}
	var errs []error
	for _, c := range children {
		cact, err := o.reconcilePath(ctx, c, opts.IncludeUntracked)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if cact != ActionNone {
			metrics.RecordReconcile(string(cact), 1)
		}
	}
	return act, errors.Join(errs...)
}

// dirChecker is implemented by file stores that can tell directories apart.
type dirChecker interface {
	IsDir(ctx context.Context, p string) (bool, error)
}

func (o *Orchestrator) isDir(ctx context.Context, p string) bool {
	dc, ok := o.files.(dirChecker)
	if !ok {
		return false
	}
	dir, err := dc.IsDir(ctx, p)
	return err == nil && dir
}

func (o *Orchestrator) reconcilePath(ctx context.Context, p string, track bool) (Action, error) {
	defer o.tree.enter(p)()
	unlock := o.locks.lock(p)
	defer unlock()

	if err := ctx.Err(); err != nil {
		return ActionNone, err
	}
	rec, ok, err := o.get(ctx, "reconcile", p)
	if err != nil {
		return ActionNone, err
	}

	data, err := o.files.Read(ctx, p)
	switch {
	case errors.Is(err, vault.ErrNotFound):
		if ok {
			if err := o.withRetry(ctx, "reconcile", func(ctx context.Context) error { return o.index.Delete(ctx, p) }); err != nil {
				return ActionNone, err
			}
			o.publish(events.Event{Type: events.TypeIndexRemoved, Op: "reconcile", Path: p})
		}
		o.clearPending(p)
		if ok {
			return ActionRemoved, nil
		}
		return ActionNone, nil
	case err != nil && o.isDir(ctx, p):
		// A directory holds no record of its own.
		if !ok {
			return ActionNone, nil
		}
		if err := o.withRetry(ctx, "reconcile", func(ctx context.Context) error { return o.index.Delete(ctx, p) }); err != nil {
			return ActionNone, err
		}
		o.clearPending(p)
		o.publish(events.Event{Type: events.TypeIndexRemoved, Op: "reconcile", Path: p})
		return ActionRemoved, nil
	case err != nil:
		return ActionNone, err
	}

	content, err := o.extract(p, data)
	if err != nil {
		if errors.Is(err, parser.ErrUnsupported) && !ok {
			o.clearPending(p)
			return ActionNone, nil
		}
		return ActionNone, err
	}

	switch {
	case !ok && !track && !o.isPending(p):
		return ActionNone, nil
	case !ok:
		if err := o.upsert(ctx, "reconcile", p, content); err != nil {
			return ActionNone, err
		}
		return ActionAdded, nil
	case rec.ContentHash == index.HashContent(content):
		o.clearPending(p)
		return ActionNone, nil
	default:
		if err := o.upsert(ctx, "reconcile", p, content); err != nil {
			return ActionNone, err
		}
		return ActionUpdated, nil
	}
}
