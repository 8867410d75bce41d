package index

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.uber.org/zap"
)

const chromemCollection = "vault"

// ChromemConfig holds configuration for the chromem-go vector index.
type ChromemConfig struct {
	// Dir holds the chromem database and the path manifest.
	Dir string
	// Compress enables gzip compression for stored documents.
	Compress      bool
	EmbedProvider string
	EmbedModel    string
}

// ChromemIndex stores content and embeddings in an embedded chromem-go
// collection keyed by path. A JSON manifest alongside it tracks hashes and
// the logical clock. Unchanged content is never re-embedded, and a rename
// moves the stored embedding to the new key.
type ChromemIndex struct {
	mu           sync.Mutex
	db           *chromem.DB
	coll         *chromem.Collection
	embedder     Embedder
	manifest     *Manifest
	manifestPath string
	logger       *zap.Logger
	now          func() time.Time
}

// OpenChromemIndex opens or creates the collection under cfg.Dir.
func OpenChromemIndex(cfg ChromemConfig, embedder Embedder, logger *zap.Logger) (*ChromemIndex, error) {
	if embedder == nil {
		return nil, fmt.Errorf("chromem index requires an embedder")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dbDir := filepath.Join(cfg.Dir, "chromem")
	if err := os.MkdirAll(dbDir, 0o755); err != nil {
		return nil, unavailable("open", "", fmt.Errorf("creating directory %s: %w", dbDir, err))
	}

	db, err := chromem.NewPersistentDB(dbDir, cfg.Compress)
	if err != nil {
		return nil, unavailable("open", "", fmt.Errorf("creating chromem DB: %w", err))
	}

	c := &ChromemIndex{
		db:           db,
		embedder:     embedder,
		manifestPath: filepath.Join(cfg.Dir, "chromem-manifest.json"),
		logger:       logger,
		now:          time.Now,
	}
	coll, err := db.GetOrCreateCollection(chromemCollection, nil, c.embeddingFunc())
	if err != nil {
		return nil, unavailable("open", "", fmt.Errorf("getting/creating collection %s: %w", chromemCollection, err))
	}
	c.coll = coll

	m, err := LoadManifest(c.manifestPath, BackendChromem)
	if err != nil {
		return nil, unavailable("open", "", err)
	}
	if m.Meta.EmbedProvider == "" {
		m.Meta.EmbedProvider = cfg.EmbedProvider
		m.Meta.EmbedModel = cfg.EmbedModel
	} else if cfg.EmbedProvider != "" && (m.Meta.EmbedProvider != cfg.EmbedProvider || m.Meta.EmbedModel != cfg.EmbedModel) {
		return nil, fmt.Errorf("chromem index was built with %s/%s, not %s/%s; remove %s to rebuild",
			m.Meta.EmbedProvider, m.Meta.EmbedModel, cfg.EmbedProvider, cfg.EmbedModel, cfg.Dir)
	}
	c.manifest = m

	logger.Info("chromem index initialized",
		zap.String("path", dbDir),
		zap.Bool("compress", cfg.Compress),
		zap.Int("documents", coll.Count()),
	)
	return c, nil
}

// embeddingFunc adapts the Embedder for chromem queries.
func (c *ChromemIndex) embeddingFunc() chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		vecs, err := c.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, err
		}
		if len(vecs) != 1 {
			return nil, fmt.Errorf("embedder returned %d vectors for 1 text", len(vecs))
		}
		return vecs[0], nil
	}
}

// commit saves the manifest. On failure undo puts the in-memory state back,
// so Get never reports a record the manifest on disk does not hold.
func (c *ChromemIndex) commit(op, path string, undo func()) error {
	c.manifest.Meta.UpdatedAt = c.now().UTC()
	if err := c.manifest.Save(c.manifestPath); err != nil {
		undo()
		return unavailable(op, path, err)
	}
	return nil
}

// restoreDoc puts doc back under id, or removes id when doc is nil.
func (c *ChromemIndex) restoreDoc(ctx context.Context, id string, doc *chromem.Document) {
	ctx = context.WithoutCancel(ctx)
	var err error
	if doc != nil {
		err = c.coll.AddDocument(ctx, *doc)
	} else {
		err = c.coll.Delete(ctx, nil, nil, id)
	}
	if err != nil {
		c.logger.Warn("restore chromem document", zap.String("path", id), zap.Error(err))
	}
}

// snapshotDoc returns the stored document for a manifest record, or nil when
// the manifest has none.
func (c *ChromemIndex) snapshotDoc(ctx context.Context, op, path string) (*chromem.Document, error) {
	if _, ok := c.manifest.Records[path]; !ok {
		return nil, nil
	}
	doc, err := c.coll.GetByID(ctx, path)
	if err != nil {
		return nil, unavailable(op, path, err)
	}
	return &doc, nil
}

func (c *ChromemIndex) Upsert(ctx context.Context, path, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	hash := HashContent(content)
	prev, had := c.manifest.Records[path]
	prevClock := c.manifest.Meta.Clock
	docChanged := !had || prev.ContentHash != hash
	var oldDoc *chromem.Document
	if docChanged {
		var err error
		if oldDoc, err = c.snapshotDoc(ctx, "upsert", path); err != nil {
			return err
		}
		vec, err := c.embeddingFunc()(ctx, content)
		if err != nil {
			return unavailable("upsert", path, fmt.Errorf("embedding: %w", err))
		}
		doc := chromem.Document{
			ID:        path,
			Content:   content,
			Metadata:  map[string]string{"path": path, "hash": hash},
			Embedding: vec,
		}
		if err := c.coll.AddDocument(ctx, doc); err != nil {
			return unavailable("upsert", path, err)
		}
	} else {
		c.logger.Debug("content unchanged, embedding reused", zap.String("path", path))
	}

	c.manifest.Meta.Clock++
	c.manifest.Records[path] = &Record{
		Path:         path,
		ContentHash:  hash,
		LastSyncedAt: c.manifest.Meta.Clock,
		UpdatedAt:    c.now().UTC(),
	}
	return c.commit("upsert", path, func() {
		c.manifest.Meta.Clock = prevClock
		if had {
			c.manifest.Records[path] = prev
		} else {
			delete(c.manifest.Records, path)
		}
		if docChanged {
			c.restoreDoc(ctx, path, oldDoc)
		}
	})
}

func (c *ChromemIndex) Delete(ctx context.Context, path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.manifest.Records[path]
	if !ok {
		return nil
	}
	oldDoc, err := c.snapshotDoc(ctx, "delete", path)
	if err != nil {
		return err
	}
	if err := c.coll.Delete(ctx, nil, nil, path); err != nil {
		return unavailable("delete", path, err)
	}
	delete(c.manifest.Records, path)
	return c.commit("delete", path, func() {
		c.manifest.Records[path] = prev
		c.restoreDoc(ctx, path, oldDoc)
	})
}

func (c *ChromemIndex) Rename(ctx context.Context, from, to string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.manifest.Records[from]
	if !ok {
		return recordNotFound(from)
	}
	if from == to {
		return nil
	}

	fromDoc, err := c.snapshotDoc(ctx, "rename", from)
	if err != nil {
		return err
	}
	replacedDoc, err := c.snapshotDoc(ctx, "rename", to)
	if err != nil {
		return err
	}
	replaced, hadTo := c.manifest.Records[to]
	prevClock := c.manifest.Meta.Clock

	doc := *fromDoc
	doc.ID = to
	doc.Metadata = map[string]string{"path": to}
	for k, v := range fromDoc.Metadata {
		if k != "path" {
			doc.Metadata[k] = v
		}
	}
	// doc.Embedding is set, so chromem stores it without calling the embedder.
	if err := c.coll.AddDocument(ctx, doc); err != nil {
		return unavailable("rename", to, err)
	}
	if err := c.coll.Delete(ctx, nil, nil, from); err != nil {
		c.restoreDoc(ctx, to, replacedDoc)
		return unavailable("rename", from, err)
	}

	c.manifest.Meta.Clock++
	moved := *rec
	moved.Path = to
	moved.LastSyncedAt = c.manifest.Meta.Clock
	moved.UpdatedAt = c.now().UTC()
	delete(c.manifest.Records, from)
	c.manifest.Records[to] = &moved
	return c.commit("rename", from, func() {
		c.manifest.Meta.Clock = prevClock
		c.manifest.Records[from] = rec
		if hadTo {
			c.manifest.Records[to] = replaced
		} else {
			delete(c.manifest.Records, to)
		}
		c.restoreDoc(ctx, from, fromDoc)
		c.restoreDoc(ctx, to, replacedDoc)
	})
}

func (c *ChromemIndex) Get(ctx context.Context, path string) (*Record, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.manifest.Records[path]
	if !ok {
		return nil, false, nil
	}
	doc, err := c.coll.GetByID(ctx, path)
	if err != nil {
		return nil, false, unavailable("get", path, err)
	}
	cp := *rec
	cp.Content = doc.Content
	return &cp, true, nil
}

func (c *ChromemIndex) List(_ context.Context, prefix string) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.manifest.Records, prefix), nil
}

// Search performs similarity search over the collection.
func (c *ChromemIndex) Search(ctx context.Context, query string, k int) ([]Hit, error) {
	if query == "" {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}
	// Cap k at collection size (chromem requires nResults <= doc count)
	n := c.coll.Count()
	if n == 0 {
		return nil, nil
	}
	if k > n {
		k = n
	}
	results, err := c.coll.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, unavailable("search", "", err)
	}
	hits := make([]Hit, len(results))
	for i, r := range results {
		hits[i] = Hit{Path: r.ID, Score: float64(r.Similarity), Snippet: snippetAround(r.Content, 0, 80)}
	}
	return hits, nil
}

func (c *ChromemIndex) Close() error { return nil }
