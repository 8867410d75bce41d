// Package session holds language-model sessions: a tokenizer plus the
// context window it must fit, registered under an id.
package session

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/KaramelBytes/vaultsync-cli/internal/ai"
	"github.com/google/uuid"
)

// ErrSessionNotFound is returned when a session id is not registered or a
// nil session is supplied.
var ErrSessionNotFound = errors.New("session not found")

// DefaultContextTokens is used when the model is not in the catalog and no
// explicit context length is configured.
const DefaultContextTokens = 8192

// Session pairs a tokenizer with a model's context window.
type Session struct {
	ID        string    `json:"id"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`

	tokenizer     Tokenizer
	contextLength int
}

// Options configures a new session.
type Options struct {
	Model string
	// ContextLength overrides the catalog context window when > 0.
	ContextLength int
	// Reserve is subtracted from the context window to leave room for the response.
	Reserve   int
	Tokenizer Tokenizer
}

// New creates a session. The context window comes from opts.ContextLength,
// else the model catalog, else DefaultContextTokens.
func New(opts Options) (*Session, error) {
	if opts.Tokenizer == nil {
		return nil, fmt.Errorf("session requires a tokenizer")
	}
	ctxLen := opts.ContextLength
	if ctxLen <= 0 {
		if mi, ok := ai.LookupModel(opts.Model); ok && mi.ContextTokens > 0 {
			ctxLen = mi.ContextTokens
		} else {
			ctxLen = DefaultContextTokens
		}
	}
	if opts.Reserve > 0 {
		ctxLen -= opts.Reserve
		if ctxLen < 0 {
			ctxLen = 0
		}
	}
	return &Session{
		ID:            uuid.NewString(),
		Model:         opts.Model,
		CreatedAt:     time.Now().UTC(),
		tokenizer:     opts.Tokenizer,
		contextLength: ctxLen,
	}, nil
}

// Tokenize returns the token ids of text.
func (s *Session) Tokenize(text string) []int { return s.tokenizer.Tokenize(text) }

// ContextLength returns the usable prompt budget in tokens.
func (s *Session) ContextLength() int { return s.contextLength }

// Registry maps session ids to sessions. It is safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
}

func NewRegistry() *Registry {
	return &Registry{sessions: map[string]*Session{}}
}

// Register stores s under its id.
func (r *Registry) Register(s *Session) {
	r.mu.Lock()
	r.sessions[s.ID] = s
	r.mu.Unlock()
}

// Get returns the session for id or ErrSessionNotFound.
func (r *Registry) Get(id string) (*Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return s, nil
}

// Remove deletes a session and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.sessions[id]
	delete(r.sessions, id)
	return ok
}

// List returns registered sessions ordered by creation time.
func (r *Registry) List() []*Session {
	r.mu.RLock()
	out := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		out = append(out, s)
	}
	r.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
