package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KaramelBytes/vaultsync-cli/internal/events"
	"github.com/KaramelBytes/vaultsync-cli/internal/logging"
	"github.com/KaramelBytes/vaultsync-cli/internal/metrics"
	"github.com/KaramelBytes/vaultsync-cli/internal/syncer"
	"github.com/KaramelBytes/vaultsync-cli/internal/watch"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	watchAll        bool
	watchEvents     bool
	watchNoInitial  bool
	watchMetricAddr string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Watch the vault and reconcile the index on outside changes",
	Long: `Watch reconciles the index whenever vault files are edited, removed or moved by
other programs. A full reconcile runs first unless --no-initial is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		opts := syncer.ReconcileOptions{IncludeUntracked: watchAll}
		if !watchNoInitial {
			report, err := a.svc.Reconcile(ctx, opts)
			if err != nil {
				return fmt.Errorf("initial reconcile: %w", err)
			}
			fmt.Printf("✓ Initial reconcile: %d checked, %d updated, %d removed, %d added, %d failed\n",
				report.Checked, len(report.Updated), len(report.Removed), len(report.Added), len(report.Failed))
		}

		w, err := watch.New(a.svc.Orchestrator(), watch.Config{
			Root:             a.store.Root(),
			Exclude:          cfg.Exclude,
			Debounce:         time.Duration(cfg.WatchDebounceMs) * time.Millisecond,
			IncludeUntracked: watchAll,
			Logger:           logging.Named("watch"),
		})
		if err != nil {
			return err
		}
		if err := w.Start(ctx); err != nil {
			return err
		}
		defer w.Stop()
		fmt.Printf("✓ Watching %s (Ctrl+C to stop)\n", a.store.Root())

		g, gctx := errgroup.WithContext(ctx)
		addr := cfg.MetricsAddr
		if watchMetricAddr != "" {
			addr = watchMetricAddr
		}
		if addr != "" {
			g.Go(func() error { return serveMetrics(gctx, addr) })
		}
		if watchEvents {
			g.Go(func() error { return streamEvents(gctx, a.bus) })
		}
		g.Go(func() error {
			<-gctx.Done()
			return nil
		})
		return g.Wait()
	},
}

// serveMetrics exposes /metrics on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logging.Info("metrics listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// streamEvents prints index events as JSON lines until ctx is done.
func streamEvents(ctx context.Context, bus *events.Broadcaster) error {
	ch := bus.Subscribe()
	defer bus.Unsubscribe(ch)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			b, err := events.MarshalEvent(ev)
			if err != nil {
				logging.Warn("marshal event", zap.Error(err))
				continue
			}
			fmt.Println(string(b))
		}
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().BoolVar(&watchAll, "all", false, "also index new files that have no record")
	watchCmd.Flags().BoolVar(&watchEvents, "events", false, "print index events as JSON lines")
	watchCmd.Flags().BoolVar(&watchNoInitial, "no-initial", false, "skip the full reconcile at startup")
	watchCmd.Flags().StringVar(&watchMetricAddr, "metrics-addr", "", "serve Prometheus metrics on this address (overrides config)")
}
