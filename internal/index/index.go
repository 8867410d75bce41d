// Package index defines the persisted content index kept in step with the
// vault and its storage backends.
package index

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrUnavailable is the failure kind for every backend error.
	ErrUnavailable = errors.New("index unavailable")
	// ErrRecordNotFound is returned by Rename when the source has no record.
	ErrRecordNotFound = errors.New("index record not found")
)

// Record is the indexed representation of one vault file. LastSyncedAt is a
// per-index logical clock value that increases on every upsert or rename.
type Record struct {
	Path         string    `json:"path"`
	Content      string    `json:"content,omitempty"`
	ContentHash  string    `json:"content_hash"`
	LastSyncedAt uint64    `json:"last_synced_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ContentIndex maps vault-relative paths to indexed content.
type ContentIndex interface {
	Upsert(ctx context.Context, path, content string) error
	Delete(ctx context.Context, path string) error
	// Rename moves the record at from to to, keeping its identity (content,
	// hash and any derived data). A record already at to is replaced.
	Rename(ctx context.Context, from, to string) error
	Get(ctx context.Context, path string) (*Record, bool, error)
	// List returns indexed paths starting with prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// Hit is one search result.
type Hit struct {
	Path    string  `json:"path"`
	Score   float64 `json:"score"`
	Snippet string  `json:"snippet,omitempty"`
}

// Searcher is implemented by backends that can query indexed content.
type Searcher interface {
	Search(ctx context.Context, query string, k int) ([]Hit, error)
}

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// UnavailableError wraps a backend failure for one operation.
type UnavailableError struct {
	Op   string
	Path string
	Err  error
}

func (e *UnavailableError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("index %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("index %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func (e *UnavailableError) Is(target error) bool { return target == ErrUnavailable }

func unavailable(op, path string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return err
	}
	return &UnavailableError{Op: op, Path: path, Err: err}
}

func recordNotFound(path string) error {
	return fmt.Errorf("rename %s: %w", path, ErrRecordNotFound)
}

// HashContent returns the hex sha256 of content.
func HashContent(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

func hasPrefix(path, prefix string) bool {
	return prefix == "" || strings.HasPrefix(path, prefix)
}
