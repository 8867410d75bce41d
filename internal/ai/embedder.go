package ai

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
	"time"
)

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedding providers.
const (
	ProviderHash   = "hash"
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
)

// EmbedderConfig selects and configures an embedding provider.
type EmbedderConfig struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	OllamaHost string
	Timeout    time.Duration
}

// NewEmbedder returns the configured provider.
func NewEmbedder(cfg EmbedderConfig) (Embedder, error) {
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHash:
		return NewHashEmbedder(0), nil
	case ProviderOllama:
		return NewOllamaEmbedder(cfg.OllamaHost, cfg.Model, cfg.Timeout), nil
	case ProviderOpenAI:
		e, err := NewOpenAIEmbedder(cfg.APIKey, cfg.BaseURL, cfg.Model)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (want hash, ollama or openai)", cfg.Provider)
	}
}

// HashEmbedder is an offline embedder: lowercase words are hashed into a
// fixed number of buckets and the result is L2 normalized. It needs no model
// and gives lexical rather than semantic similarity.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hash embedder with dim buckets (default 256).
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim < 2 {
		dim = 256
	}
	return &HashEmbedder{dim: dim}
}

func (e *HashEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = e.embed(t)
	}
	return out, nil
}

func (e *HashEmbedder) embed(text string) []float32 {
	vec := make([]float32, e.dim)
	// bucket 0 is a constant bias so no text maps to the zero vector
	vec[0] = 1
	for _, w := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(w))
		sum := h.Sum32()
		idx := 1 + int(sum%uint32(e.dim-1))
		if sum&(1<<31) != 0 {
			vec[idx] -= 1
		} else {
			vec[idx] += 1
		}
	}
	l2normalize(vec)
	return vec
}

// l2normalize normalizes a vector to unit length
func l2normalize(v []float32) {
	var sum float32
	for _, x := range v {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(float64(sum)))
	for i := range v {
		v[i] *= inv
	}
}
