package index

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode/utf8"
)

// MemoryIndex is a process-local ContentIndex.
type MemoryIndex struct {
	mu      sync.RWMutex
	records map[string]*Record
	clock   uint64
	now     func() time.Time
}

// NewMemoryIndex returns an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{records: map[string]*Record{}, now: time.Now}
}

func (m *MemoryIndex) Upsert(_ context.Context, path, content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.clock++
	m.records[path] = &Record{
		Path:         path,
		Content:      content,
		ContentHash:  HashContent(content),
		LastSyncedAt: m.clock,
		UpdatedAt:    m.now().UTC(),
	}
	return nil
}

func (m *MemoryIndex) Delete(_ context.Context, path string) error {
	m.mu.Lock()
	delete(m.records, path)
	m.mu.Unlock()
	return nil
}

func (m *MemoryIndex) Rename(_ context.Context, from, to string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[from]
	if !ok {
		return recordNotFound(from)
	}
	if from == to {
		return nil
	}
	delete(m.records, from)
	m.clock++
	rec.Path = to
	rec.LastSyncedAt = m.clock
	rec.UpdatedAt = m.now().UTC()
	m.records[to] = rec
	return nil
}

func (m *MemoryIndex) Get(_ context.Context, path string) (*Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[path]
	if !ok {
		return nil, false, nil
	}
	cp := *rec
	return &cp, true, nil
}

func (m *MemoryIndex) List(_ context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return sortedKeys(m.records, prefix), nil
}

// Search ranks records by query term frequency.
func (m *MemoryIndex) Search(_ context.Context, query string, k int) ([]Hit, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return scanSearch(m.records, query, k), nil
}

func (m *MemoryIndex) Close() error { return nil }

func sortedKeys(records map[string]*Record, prefix string) []string {
	out := make([]string, 0, len(records))
	for p := range records {
		if hasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

// scanSearch is the term-frequency search shared by the file-backed indexes.
func scanSearch(records map[string]*Record, query string, k int) []Hit {
	terms := strings.Fields(strings.ToLower(query))
	if len(terms) == 0 {
		return nil
	}
	if k <= 0 {
		k = 10
	}
	var hits []Hit
	for p, rec := range records {
		lower := strings.ToLower(rec.Content)
		lowerPath := strings.ToLower(p)
		score := 0
		first := -1
		for _, t := range terms {
			n := strings.Count(lower, t)
			if strings.Contains(lowerPath, t) {
				n++
			}
			score += n
			if i := strings.Index(lower, t); i >= 0 && (first < 0 || i < first) {
				first = i
			}
		}
		if score == 0 {
			continue
		}
		hits = append(hits, Hit{Path: p, Score: float64(score), Snippet: snippetAround(rec.Content, first, 80)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Path < hits[j].Path
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits
}

// snippetAround returns about width bytes of s starting a little before at,
// trimmed to rune boundaries.
func snippetAround(s string, at, width int) string {
	if at < 0 {
		at = 0
	}
	start := at - width/4
	if start < 0 {
		start = 0
	}
	end := start + width
	if end > len(s) {
		end = len(s)
	}
	for start > 0 && !utf8.RuneStart(s[start]) {
		start--
	}
	for end < len(s) && !utf8.RuneStart(s[end]) {
		end++
	}
	return strings.Join(strings.Fields(s[start:end]), " ")
}
