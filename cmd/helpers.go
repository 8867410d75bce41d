package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/KaramelBytes/vaultsync-cli/internal/ai"
	"github.com/KaramelBytes/vaultsync-cli/internal/core"
	"github.com/KaramelBytes/vaultsync-cli/internal/events"
	"github.com/KaramelBytes/vaultsync-cli/internal/index"
	"github.com/KaramelBytes/vaultsync-cli/internal/logging"
	"github.com/KaramelBytes/vaultsync-cli/internal/parser"
	"github.com/KaramelBytes/vaultsync-cli/internal/retry"
	"github.com/KaramelBytes/vaultsync-cli/internal/session"
	"github.com/KaramelBytes/vaultsync-cli/internal/syncer"
	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
	"github.com/KaramelBytes/vaultsync-cli/internal/vault"
	"go.uber.org/zap"
)

// app is the wired service stack for one command invocation.
type app struct {
	svc   *core.Service
	store *vault.LocalStore
	index index.ContentIndex
	bus   *events.Broadcaster
}

func (a *app) Close() {
	if err := a.index.Close(); err != nil {
		logging.Warn("close index", zap.Error(err))
	}
}

// openApp builds the vault store, content index, orchestrator and service
// from the loaded config.
func openApp() (*app, error) {
	if cfg == nil {
		return nil, errors.New("no configuration loaded")
	}
	store, err := vault.NewLocalStore(cfg.VaultDir, false)
	if err != nil {
		return nil, fmt.Errorf("open vault (run 'vaultsync init'?): %w", err)
	}

	var embedder index.Embedder
	if cfg.IndexBackend == index.BackendChromem {
		e, err := ai.NewEmbedder(ai.EmbedderConfig{
			Provider:   cfg.EmbeddingProvider,
			Model:      cfg.EmbeddingModel,
			APIKey:     cfg.APIKey,
			BaseURL:    cfg.APIBaseURL,
			OllamaHost: cfg.OllamaHost,
			Timeout:    time.Duration(cfg.OllamaTimeoutSec) * time.Second,
		})
		if err != nil {
			return nil, err
		}
		embedder = e
	}
	idx, err := index.Open(index.Options{
		Backend:       cfg.IndexBackend,
		Dir:           cfg.IndexDir,
		Embedder:      embedder,
		EmbedProvider: cfg.EmbeddingProvider,
		EmbedModel:    cfg.EmbeddingModel,
		Logger:        logging.Named("index"),
	})
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	bus := events.NewBroadcaster()
	orch := syncer.New(store, idx,
		syncer.WithLogger(logging.Named("sync")),
		syncer.WithRetry(retry.FromMillis(cfg.RetryMaxAttempts, cfg.RetryBaseDelayMs, cfg.RetryMaxDelayMs)),
		syncer.WithEvents(bus),
		syncer.WithExclude(cfg.Exclude),
	)
	// The response reserve is applied by sessionFactory, not by the service.
	svc := core.New(store, idx, orch,
		core.WithLogger(logging.Named("core")),
		core.WithExclude(cfg.Exclude),
	)
	return &app{svc: svc, store: store, index: idx, bus: bus}, nil
}

// sessionFactory creates sessions with the configured tokenizer. The configured
// context_length applies when the caller passes none.
func sessionFactory(model string, contextLength int) (*session.Session, error) {
	tok, err := session.NewTokenizer(cfg.Tokenizer, cfg.TiktokenEncoding)
	if err != nil {
		return nil, err
	}
	if model == "" {
		model = cfg.DefaultModel
	}
	if contextLength <= 0 {
		contextLength = cfg.ContextLength
	}
	return session.New(session.Options{
		Model:         model,
		ContextLength: contextLength,
		Reserve:       cfg.ResponseReserveTokens,
		Tokenizer:     tok,
	})
}

// readContent returns --content, the text of --file, or stdin ("-"). Files
// go through the parser so a .docx is imported as plain text.
func readContent(content, file string) (string, error) {
	switch {
	case content != "" && file != "":
		return "", errors.New("use either --content or --file, not both")
	case content != "":
		return content, nil
	case file == "-":
		b, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		return string(b), nil
	case file != "":
		text, err := parser.ParseFile(file)
		if err != nil {
			return "", fmt.Errorf("%s: %w", file, err)
		}
		return text, nil
	default:
		return "", nil
	}
}

func printJSON(v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}

// reportSyncError prints a warning for a desynchronized index and returns
// err unchanged. The disk change stands; `vaultsync index reconcile` repairs
// the index.
func reportSyncError(err error) error {
	var de *syncer.DesyncError
	if errors.As(err, &de) {
		fmt.Fprintf(os.Stderr, "⚠ Warning: file saved but the index is out of date for %v; run 'vaultsync index reconcile'\n", de.Paths)
	}
	return err
}
