package ai

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func dot(a, b []float32) float64 {
	var s float64
	for i := range a {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func TestHashEmbedderDeterministicAndNormalized(t *testing.T) {
	e := NewHashEmbedder(64)
	vecs, err := e.Embed(context.Background(), []string{"Tomato soup", "tomato SOUP", "", "quarterly planning"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	for i, v := range vecs {
		if len(v) != 64 {
			t.Fatalf("vec %d has dim %d", i, len(v))
		}
		if n := math.Sqrt(dot(v, v)); math.Abs(n-1) > 1e-5 {
			t.Fatalf("vec %d norm=%f", i, n)
		}
	}
	if dot(vecs[0], vecs[1]) < 0.999 {
		t.Fatalf("case-insensitive texts should embed identically")
	}
	if dot(vecs[0], vecs[3]) >= dot(vecs[0], vecs[1]) {
		t.Fatalf("unrelated text should be less similar")
	}
}

func TestOllamaEmbedder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var body struct {
			Model  string `json:"model"`
			Prompt string `json:"prompt"`
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body.Model == "missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"model not found"}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"embedding": []float64{float64(len(body.Prompt)), 1}})
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "nomic-embed-text", time.Second)
	vecs, err := e.Embed(context.Background(), []string{"abc", "hello"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if len(vecs) != 2 || vecs[0][0] != 3 || vecs[1][0] != 5 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}

	_, err = NewOllamaEmbedder(srv.URL, "missing", time.Second).Embed(context.Background(), []string{"x"})
	var mnf *ModelNotFoundError
	if !errors.As(err, &mnf) || mnf.StatusCode != http.StatusNotFound {
		t.Fatalf("expected ModelNotFoundError, got %v", err)
	}
}

func TestOllamaEmbedderUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewOllamaEmbedder(url, "", time.Second).Embed(context.Background(), []string{"x"})
	var ue *UnreachableError
	if !errors.As(err, &ue) || ue.Host != url {
		t.Fatalf("expected UnreachableError, got %v", err)
	}
}

func TestOpenAIEmbedderUsesBaseURL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/embeddings" {
			t.Errorf("path=%s", r.URL.Path)
		}
		var req struct {
			Input []string `json:"input"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]map[string]any, len(req.Input))
		// reply out of order to check Index handling
		for i := range req.Input {
			j := len(req.Input) - 1 - i
			data[i] = map[string]any{"object": "embedding", "index": j, "embedding": []float32{float32(len(req.Input[j]))}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"object": "list", "data": data, "model": "m"})
	}))
	defer srv.Close()

	e, err := NewOpenAIEmbedder("test-key", srv.URL+"/v1", "text-embedding-3-small")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	vecs, err := e.Embed(context.Background(), []string{"a", "", "abcd"})
	if err != nil {
		t.Fatalf("embed: %v", err)
	}
	if vecs[0][0] != 1 || vecs[1][0] != 1 || vecs[2][0] != 4 {
		t.Fatalf("unexpected vectors: %v", vecs)
	}
}

func TestNewEmbedder(t *testing.T) {
	if _, err := NewEmbedder(EmbedderConfig{Provider: "hash"}); err != nil {
		t.Fatalf("hash: %v", err)
	}
	if _, err := NewEmbedder(EmbedderConfig{Provider: "openai"}); err == nil {
		t.Fatalf("expected missing api key error")
	}
	if _, err := NewEmbedder(EmbedderConfig{Provider: "fastembed"}); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestMergeCatalogFromJSON(t *testing.T) {
	orig := Catalog()
	t.Cleanup(func() { OverrideCatalog(orig) })

	path := filepath.Join(t.TempDir(), "models.json")
	if err := os.WriteFile(path, []byte(`{"local/tiny":{"ContextTokens":2048}}`), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err := LoadCatalogFromJSON(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	MergeCatalog(m)

	mi, ok := LookupModel("local/tiny")
	if !ok || mi.ContextTokens != 2048 || mi.Name != "local/tiny" {
		t.Fatalf("unexpected model: %+v ok=%v", mi, ok)
	}
	if _, ok := LookupModel("openai/gpt-4o-mini"); !ok {
		t.Fatalf("merge should keep existing entries")
	}
}
