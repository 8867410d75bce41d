// Package core exposes the vault operations used by the CLI and the MCP
// server: synchronized mutations, tree snapshots and prompt augmentation.
package core

import (
	"context"
	"errors"
	"fmt"
	"path"
	"reflect"

	"github.com/KaramelBytes/vaultsync-cli/internal/budget"
	"github.com/KaramelBytes/vaultsync-cli/internal/index"
	"github.com/KaramelBytes/vaultsync-cli/internal/metrics"
	"github.com/KaramelBytes/vaultsync-cli/internal/parser"
	"github.com/KaramelBytes/vaultsync-cli/internal/session"
	"github.com/KaramelBytes/vaultsync-cli/internal/syncer"
	"github.com/KaramelBytes/vaultsync-cli/internal/vault"
	"go.uber.org/zap"
)

// ErrSearchUnsupported is returned when the index backend cannot search.
var ErrSearchUnsupported = errors.New("index backend does not support search")

// Session is the language-model capability a prompt is budgeted for.
type Session interface {
	Tokenize(text string) []int
	ContextLength() int
}

// Vault is a FileStore that can also resolve paths on disk.
type Vault interface {
	vault.FileStore
	Rel(p string) (string, error)
	Abs(p string) (string, error)
}

// Service wires the file store, the content index and the orchestrator.
type Service struct {
	vault   Vault
	index   index.ContentIndex
	orch    *syncer.Orchestrator
	logger  *zap.Logger
	exclude []string
	reserve int
}

// Option configures a Service.
type Option func(*Service)

func WithLogger(l *zap.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithExclude sets base-name glob patterns left out of tree snapshots.
func WithExclude(patterns []string) Option {
	return func(s *Service) { s.exclude = patterns }
}

// WithResponseReserve keeps n tokens of every context window free.
func WithResponseReserve(n int) Option {
	return func(s *Service) { s.reserve = n }
}

// New creates a Service. orch must write through v and idx.
func New(v Vault, idx index.ContentIndex, orch *syncer.Orchestrator, opts ...Option) *Service {
	s := &Service{vault: v, index: idx, orch: orch, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Orchestrator returns the underlying orchestrator.
func (s *Service) Orchestrator() *syncer.Orchestrator { return s.orch }

// Index returns the underlying content index.
func (s *Service) Index() index.ContentIndex { return s.index }

// SyncOnWrite saves content to path, indexing it when requested.
func (s *Service) SyncOnWrite(ctx context.Context, path, content string, indexRequested bool) error {
	return s.orch.SyncOnWrite(ctx, path, content, indexRequested)
}

// SyncOnCreate creates path, including missing parents, and indexes it.
func (s *Service) SyncOnCreate(ctx context.Context, path, content string) error {
	return s.orch.SyncOnCreate(ctx, path, content)
}

// SyncOnMove moves a file or directory and its index records.
func (s *Service) SyncOnMove(ctx context.Context, from, to string) error {
	return s.orch.SyncOnMove(ctx, from, to)
}

// GetVaultTree returns a snapshot of rootPath ("" for the whole vault). Entry
// paths stay vault-relative.
func (s *Service) GetVaultTree(_ context.Context, rootPath string) (*vault.VaultEntry, error) {
	rel, err := s.vault.Rel(rootPath)
	if err != nil {
		return nil, err
	}
	abs, err := s.vault.Abs(rel)
	if err != nil {
		return nil, err
	}
	tree, err := vault.BuildTree(abs, vault.TreeOptions{
		Exclude:    s.exclude,
		PathPrefix: rel,
		OnSkip: func(p, reason string) {
			s.logger.Debug("skipped vault entry", zap.String("path", p), zap.String("reason", reason))
		},
	})
	if err != nil {
		return nil, fmt.Errorf("build tree: %w", err)
	}
	metrics.SetTreeSize(vault.CountNodes(tree))
	return tree, nil
}

// ReadFile returns the raw content of a vault file.
func (s *Service) ReadFile(ctx context.Context, p string) (string, error) {
	b, err := s.vault.Read(ctx, p)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// CreateDirectory creates p and its parents. An existing directory is not an
// error.
func (s *Service) CreateDirectory(ctx context.Context, p string) error {
	ok, err := s.vault.Exists(ctx, p)
	if err != nil {
		return err
	}
	if ok {
		s.logger.Info("directory already exists", zap.String("path", p))
	}
	return s.vault.MkdirAll(ctx, p)
}

// JoinPath joins vault path elements and cleans the result. Paths escaping
// the vault are rejected.
func JoinPath(elems ...string) (string, error) {
	return vault.CleanRel(path.Join(elems...))
}

// nilSession also catches a nil pointer stored in the interface.
func nilSession(sess Session) bool {
	if sess == nil {
		return true
	}
	v := reflect.ValueOf(sess)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return v.IsNil()
	}
	return false
}

// AugmentPromptWithFile reads path and packs its content with userPrompt into
// the session's context window.
func (s *Service) AugmentPromptWithFile(ctx context.Context, p, userPrompt string, sess Session) (*budget.Result, error) {
	if nilSession(sess) {
		return nil, session.ErrSessionNotFound
	}
	rel, err := s.vault.Rel(p)
	if err != nil {
		return nil, err
	}
	data, err := s.vault.Read(ctx, rel)
	if err != nil {
		metrics.RecordPromptBuild("read_error", 0)
		return nil, err
	}
	raw, err := parser.Extract(rel, data)
	if err != nil {
		metrics.RecordPromptBuild("read_error", 0)
		return nil, err
	}

	res, err := budget.Build(raw, userPrompt, sess.Tokenize, sess.ContextLength(),
		budget.WithReserve(s.reserve),
		budget.WithFrame(budget.DefaultFrame{Source: rel}))
	if err != nil {
		outcome := "error"
		if errors.Is(err, budget.ErrContextTooSmall) {
			outcome = "context_too_small"
		}
		metrics.RecordPromptBuild(outcome, 0)
		return nil, err
	}

	ratio := 1.0
	if len(raw) > 0 {
		ratio = float64(res.CutoffOffset) / float64(len(raw))
	}
	metrics.RecordPromptBuild(metrics.OutcomeOK, ratio)
	s.logger.Debug("augmented prompt",
		zap.String("path", rel),
		zap.Int("tokens", res.Tokens),
		zap.Int("budget", res.Budget),
		zap.Int("cutoff", res.CutoffOffset),
		zap.Bool("truncated", res.Truncated))
	return res, nil
}

// Search queries the index when the backend supports it.
func (s *Service) Search(ctx context.Context, query string, k int) ([]index.Hit, error) {
	searcher, ok := s.index.(index.Searcher)
	if !ok {
		return nil, ErrSearchUnsupported
	}
	return searcher.Search(ctx, query, k)
}

// Records lists indexed paths under prefix.
func (s *Service) Records(ctx context.Context, prefix string) ([]string, error) {
	return s.index.List(ctx, prefix)
}

// Reconcile repairs differences between the vault and the index.
func (s *Service) Reconcile(ctx context.Context, opts syncer.ReconcileOptions) (*syncer.ReconcileReport, error) {
	return s.orch.Reconcile(ctx, opts)
}
