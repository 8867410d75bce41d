package index

import (
	"context"
	"errors"
	"hash/fnv"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingEmbedder returns deterministic vectors and counts embedded texts.
type countingEmbedder struct {
	calls atomic.Int64
}

func (e *countingEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		e.calls.Add(1)
		h := fnv.New64a()
		_, _ = h.Write([]byte(t))
		sum := h.Sum64()
		vec := make([]float32, 8)
		for j := range vec {
			vec[j] = float32((sum>>(j*8))&0xff) + 1
		}
		out[i] = vec
	}
	return out, nil
}

func backends(t *testing.T) map[string]func(t *testing.T) ContentIndex {
	return map[string]func(t *testing.T) ContentIndex{
		BackendMemory: func(t *testing.T) ContentIndex { return NewMemoryIndex() },
		BackendJSON: func(t *testing.T) ContentIndex {
			j, err := OpenJSONIndex(t.TempDir())
			require.NoError(t, err)
			return j
		},
		BackendSQLite: func(t *testing.T) ContentIndex {
			s, err := OpenSQLiteIndex(t.TempDir(), nil)
			require.NoError(t, err)
			return s
		},
		BackendChromem: func(t *testing.T) ContentIndex {
			c, err := OpenChromemIndex(ChromemConfig{Dir: t.TempDir()}, &countingEmbedder{}, nil)
			require.NoError(t, err)
			return c
		},
	}
}

func TestContentIndexContract(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			idx := open(t)
			t.Cleanup(func() { _ = idx.Close() })

			require.NoError(t, idx.Upsert(ctx, "notes/a.md", "alpha"))
			require.NoError(t, idx.Upsert(ctx, "notes/b.md", "beta"))
			require.NoError(t, idx.Upsert(ctx, "todo.md", ""))

			rec, ok, err := idx.Get(ctx, "notes/a.md")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "alpha", rec.Content)
			assert.Equal(t, HashContent("alpha"), rec.ContentHash)
			firstClock := rec.LastSyncedAt

			require.NoError(t, idx.Upsert(ctx, "notes/a.md", "alpha v2"))
			rec, _, err = idx.Get(ctx, "notes/a.md")
			require.NoError(t, err)
			assert.Equal(t, "alpha v2", rec.Content)
			assert.Greater(t, rec.LastSyncedAt, firstClock)

			paths, err := idx.List(ctx, "notes/")
			require.NoError(t, err)
			assert.Equal(t, []string{"notes/a.md", "notes/b.md"}, paths)

			all, err := idx.List(ctx, "")
			require.NoError(t, err)
			assert.Len(t, all, 3)

			// rename keeps content and replaces an existing destination
			require.NoError(t, idx.Rename(ctx, "notes/a.md", "notes/b.md"))
			_, ok, err = idx.Get(ctx, "notes/a.md")
			require.NoError(t, err)
			assert.False(t, ok)
			rec, ok, err = idx.Get(ctx, "notes/b.md")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "alpha v2", rec.Content)
			assert.Equal(t, "notes/b.md", rec.Path)

			err = idx.Rename(ctx, "ghost.md", "other.md")
			assert.ErrorIs(t, err, ErrRecordNotFound)
			assert.False(t, errors.Is(err, ErrUnavailable))

			require.NoError(t, idx.Delete(ctx, "notes/b.md"))
			require.NoError(t, idx.Delete(ctx, "notes/b.md"))
			_, ok, err = idx.Get(ctx, "notes/b.md")
			require.NoError(t, err)
			assert.False(t, ok)

			rec, ok, err = idx.Get(ctx, "todo.md")
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, "", rec.Content)
		})
	}
}

func TestSearchers(t *testing.T) {
	ctx := context.Background()
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			idx := open(t)
			t.Cleanup(func() { _ = idx.Close() })
			s, ok := idx.(Searcher)
			require.True(t, ok)

			require.NoError(t, idx.Upsert(ctx, "recipes/soup.md", "tomato soup with basil"))
			require.NoError(t, idx.Upsert(ctx, "notes/meeting.md", "quarterly planning meeting"))

			hits, err := s.Search(ctx, "tomato", 5)
			require.NoError(t, err)
			require.NotEmpty(t, hits)
			if name != BackendChromem {
				assert.Equal(t, "recipes/soup.md", hits[0].Path)
				assert.Len(t, hits, 1)
			}

			hits, err = s.Search(ctx, "", 5)
			require.NoError(t, err)
			assert.Empty(t, hits)
		})
	}
}

func TestUnavailableErrorMatching(t *testing.T) {
	err := unavailable("upsert", "a.md", errors.New("disk full"))
	assert.ErrorIs(t, err, ErrUnavailable)
	var ue *UnavailableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "upsert", ue.Op)
	assert.Contains(t, err.Error(), "disk full")
	assert.Same(t, err, unavailable("other", "b.md", err))
}

func TestOpenUnknownBackend(t *testing.T) {
	_, err := Open(Options{Backend: "qdrant", Dir: t.TempDir()})
	assert.Error(t, err)

	idx, err := Open(Options{Backend: BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &MemoryIndex{}, idx)
}
