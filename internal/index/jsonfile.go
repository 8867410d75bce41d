package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

const manifestVersion = 1

// Manifest is the on-disk form of a JSONIndex. The chromem backend reuses it
// without content to track paths, hashes and the clock.
type Manifest struct {
	Records map[string]*Record `json:"records"`
	Meta    ManifestMeta       `json:"meta"`
}

type ManifestMeta struct {
	IndexVersion  int       `json:"index_version"`
	Backend       string    `json:"backend"`
	EmbedProvider string    `json:"embed_provider,omitempty"`
	EmbedModel    string    `json:"embed_model,omitempty"`
	Clock         uint64    `json:"clock"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Save writes the manifest atomically.
func (m *Manifest) Save(path string) error {
	if m == nil {
		return fmt.Errorf("nil manifest")
	}
	if m.Records == nil {
		m.Records = map[string]*Record{}
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}

// LoadManifest reads a manifest. A missing file yields an empty manifest.
func LoadManifest(path, backend string) (*Manifest, error) {
	b, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		now := time.Now().UTC()
		return &Manifest{
			Records: map[string]*Record{},
			Meta:    ManifestMeta{IndexVersion: manifestVersion, Backend: backend, CreatedAt: now, UpdatedAt: now},
		}, nil
	}
	if err != nil {
		return nil, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	if m.Records == nil {
		m.Records = map[string]*Record{}
	}
	// Backfill meta defaults for older manifests
	if m.Meta.IndexVersion == 0 {
		m.Meta.IndexVersion = manifestVersion
	}
	if m.Meta.Backend == "" {
		m.Meta.Backend = backend
	}
	if m.Meta.Backend != backend {
		return nil, fmt.Errorf("manifest %s belongs to backend %q, not %q", path, m.Meta.Backend, backend)
	}
	return &m, nil
}

// JSONIndex keeps every record in a single JSON file, rewritten on each
// mutation. It suits small vaults.
type JSONIndex struct {
	mu   sync.RWMutex
	path string
	m    *Manifest
	now  func() time.Time
}

// OpenJSONIndex loads or creates dir/index.json.
func OpenJSONIndex(dir string) (*JSONIndex, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, unavailable("open", "", fmt.Errorf("create index dir: %w", err))
	}
	path := filepath.Join(dir, "index.json")
	m, err := LoadManifest(path, BackendJSON)
	if err != nil {
		return nil, unavailable("open", "", err)
	}
	return &JSONIndex{path: path, m: m, now: time.Now}, nil
}

// commit persists the manifest; on failure undo restores the previous state.
func (j *JSONIndex) commit(op, path string, undo func()) error {
	j.m.Meta.UpdatedAt = j.now().UTC()
	if err := j.m.Save(j.path); err != nil {
		undo()
		return unavailable(op, path, err)
	}
	return nil
}

func (j *JSONIndex) Upsert(_ context.Context, path, content string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	prev, had := j.m.Records[path]
	prevClock := j.m.Meta.Clock
	j.m.Meta.Clock++
	j.m.Records[path] = &Record{
		Path:         path,
		Content:      content,
		ContentHash:  HashContent(content),
		LastSyncedAt: j.m.Meta.Clock,
		UpdatedAt:    j.now().UTC(),
	}
	return j.commit("upsert", path, func() {
		j.m.Meta.Clock = prevClock
		if had {
			j.m.Records[path] = prev
		} else {
			delete(j.m.Records, path)
		}
	})
}

func (j *JSONIndex) Delete(_ context.Context, path string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	prev, had := j.m.Records[path]
	if !had {
		return nil
	}
	delete(j.m.Records, path)
	return j.commit("delete", path, func() { j.m.Records[path] = prev })
}

func (j *JSONIndex) Rename(_ context.Context, from, to string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	rec, ok := j.m.Records[from]
	if !ok {
		return recordNotFound(from)
	}
	if from == to {
		return nil
	}
	old := *rec
	replaced, hadTo := j.m.Records[to]
	prevClock := j.m.Meta.Clock

	j.m.Meta.Clock++
	moved := old
	moved.Path = to
	moved.LastSyncedAt = j.m.Meta.Clock
	moved.UpdatedAt = j.now().UTC()
	delete(j.m.Records, from)
	j.m.Records[to] = &moved

	return j.commit("rename", from, func() {
		j.m.Meta.Clock = prevClock
		j.m.Records[from] = &old
		if hadTo {
			j.m.Records[to] = replaced
		} else {
			delete(j.m.Records, to)
		}
	})
}

func (j *JSONIndex) Get(_ context.Context, path string) (*Record, bool, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	rec, ok := j.m.Records[path]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (j *JSONIndex) List(_ context.Context, prefix string) ([]string, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return sortedKeys(j.m.Records, prefix), nil
}

func (j *JSONIndex) Search(_ context.Context, query string, k int) ([]Hit, error) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return scanSearch(j.m.Records, query, k), nil
}

func (j *JSONIndex) Close() error { return nil }
