package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/KaramelBytes/vaultsync-cli/internal/logging"
	"github.com/KaramelBytes/vaultsync-cli/internal/mcptools"
	"github.com/KaramelBytes/vaultsync-cli/internal/session"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var mcpMetricsAddr string

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the vault tools over MCP on stdin/stdout",
	Long: `mcp starts a Model Context Protocol server on stdio. Agents use its tools to read
the vault tree, make synchronized changes and build context-bounded prompts.
Logs go to stderr so stdout stays reserved for the protocol.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		// Fail fast on a bad tokenizer setting rather than on the first tool call.
		if _, err := session.NewTokenizer(cfg.Tokenizer, cfg.TiktokenEncoding); err != nil {
			return fmt.Errorf("tokenizer: %w", err)
		}

		s := mcptools.NewServer(a.svc, session.NewRegistry(), sessionFactory, cfg.DefaultModel)

		g, gctx := errgroup.WithContext(ctx)
		addr := cfg.MetricsAddr
		if mcpMetricsAddr != "" {
			addr = mcpMetricsAddr
		}
		if addr != "" {
			g.Go(func() error { return serveMetrics(gctx, addr) })
		}
		stdio := server.NewStdioServer(s)
		stdio.SetErrorLogger(zap.NewStdLog(logging.Named("mcp")))
		g.Go(func() error {
			defer stop()
			err := stdio.Listen(gctx, os.Stdin, os.Stdout)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		return g.Wait()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
	mcpCmd.Flags().StringVar(&mcpMetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
}
