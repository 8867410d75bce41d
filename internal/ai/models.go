package ai

import (
	"encoding/json"
	"os"
	"sync"
)

// Model metadata used to size prompt budgets. Context windows are approximate
// and can be overridden with a catalog file (models sync) or context_length.

type ModelInfo struct {
	Name          string
	ContextTokens int    // approximate context window
	Encoding      string // tiktoken encoding closest to the model's tokenizer
}

// defaultEncoding is the tiktoken encoding assumed for catalog entries.
const defaultEncoding = "cl100k_base"

func entry(name string, contextTokens int) ModelInfo {
	return ModelInfo{Name: name, ContextTokens: contextTokens, Encoding: defaultEncoding}
}

var (
	catalogMu sync.RWMutex
	models    = catalogOf(
		entry("openai/gpt-4o-mini", 128000),
		entry("openai/gpt-4o", 128000),
		entry("openai/gpt-4.1-mini", 128000),
		entry("openai/gpt-3.5-turbo", 16385),
		entry("anthropic/claude-3.5-sonnet", 200000),
		entry("anthropic/claude-3-haiku", 200000),
		entry("google/gemini-1.5-flash", 1000000),
		entry("llama3:latest", 8192),
		entry("llama3.1:8b-instruct", 8192),
		entry("mistral:7b-instruct", 8192),
		entry("phi3:mini-4k-instruct", 4096),
		entry("phi3:mini-128k-instruct", 128000),
	)
)

func catalogOf(entries ...ModelInfo) map[string]ModelInfo {
	m := make(map[string]ModelInfo, len(entries))
	for _, e := range entries {
		m[e.Name] = e
	}
	return m
}

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// ---- Sync/override helpers ----

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example JSON entry:
// { "openai/gpt-4o-mini": {"Name":"openai/gpt-4o-mini","ContextTokens":128000,"Encoding":"cl100k_base"} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := json.NewDecoder(f)
	var m map[string]ModelInfo
	if err := dec.Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// OverrideCatalog replaces the in-memory catalog entirely.
func OverrideCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	catalogMu.Lock()
	models = m
	catalogMu.Unlock()
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
		}
		models[k] = v
	}
}

// Catalog returns a shallow copy of the current model catalog.
func Catalog() map[string]ModelInfo {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	out := make(map[string]ModelInfo, len(models))
	for k, v := range models {
		out[k] = v
	}
	return out
}
