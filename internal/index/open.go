package index

import (
	"fmt"

	"go.uber.org/zap"
)

// Backend names accepted by Open.
const (
	BackendMemory  = "memory"
	BackendJSON    = "json"
	BackendSQLite  = "sqlite"
	BackendChromem = "chromem"
)

// Options selects and configures a backend.
type Options struct {
	Backend string
	Dir     string

	// Embedder and the embedding identity are used by the chromem backend only.
	Embedder      Embedder
	EmbedProvider string
	EmbedModel    string

	Logger *zap.Logger
}

// Open returns the configured ContentIndex.
func Open(opts Options) (ContentIndex, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		idx ContentIndex
		err error
	)
	switch opts.Backend {
	case BackendMemory:
		return NewMemoryIndex(), nil
	case BackendJSON:
		var j *JSONIndex
		j, err = OpenJSONIndex(opts.Dir)
		idx = j
	case "", BackendSQLite:
		var s *SQLiteIndex
		s, err = OpenSQLiteIndex(opts.Dir, logger.Named("sqlite"))
		idx = s
	case BackendChromem:
		var c *ChromemIndex
		c, err = OpenChromemIndex(ChromemConfig{
			Dir:           opts.Dir,
			EmbedProvider: opts.EmbedProvider,
			EmbedModel:    opts.EmbedModel,
		}, opts.Embedder, logger.Named("chromem"))
		idx = c
	default:
		return nil, fmt.Errorf("unknown index backend %q (want memory, json, sqlite or chromem)", opts.Backend)
	}
	if err != nil {
		return nil, err
	}
	return idx, nil
}
