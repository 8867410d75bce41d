package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/KaramelBytes/vaultsync-cli/internal/syncer"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Inspect, search or repair the content index",
}

var indexListPrefix string

var indexListCmd = &cobra.Command{
	Use:   "list",
	Short: "List indexed paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		paths, err := a.svc.Records(cmd.Context(), indexListPrefix)
		if err != nil {
			return err
		}
		for _, p := range paths {
			fmt.Println(p)
		}
		return nil
	},
}

var (
	searchK    int
	searchJSON bool
)

var indexSearchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search indexed content",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		hits, err := a.svc.Search(cmd.Context(), strings.Join(args, " "), searchK)
		if err != nil {
			return err
		}
		if searchJSON {
			return printJSON(hits)
		}
		if len(hits) == 0 {
			fmt.Println("No matches")
			return nil
		}
		for _, h := range hits {
			fmt.Printf("%.3f  %s\n", h.Score, h.Path)
			if h.Snippet != "" {
				fmt.Printf("       %s\n", h.Snippet)
			}
		}
		return nil
	},
}

var (
	reconcileAll  bool
	reconcileJSON bool
)

var indexReconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Bring the index back in step with the vault",
	Long: `Reconcile removes records of files that no longer exist and refreshes records
whose content changed outside vaultsync. Paths whose index update failed earlier
are repaired first. With --all, vault files without a record are indexed too.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp()
		if err != nil {
			return err
		}
		defer a.Close()
		report, err := a.svc.Reconcile(cmd.Context(), syncer.ReconcileOptions{IncludeUntracked: reconcileAll})
		if err != nil {
			return err
		}
		if reconcileJSON {
			return printJSON(report)
		}
		fmt.Printf("✓ Checked %d paths: %d updated, %d removed, %d added\n",
			report.Checked, len(report.Updated), len(report.Removed), len(report.Added))
		if len(report.Failed) > 0 {
			fmt.Fprintf(os.Stderr, "⚠ Warning: %d paths could not be reconciled: %s\n",
				len(report.Failed), strings.Join(report.Failed, ", "))
			return fmt.Errorf("reconcile incomplete")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexListCmd, indexSearchCmd, indexReconcileCmd)

	indexListCmd.Flags().StringVar(&indexListPrefix, "prefix", "", "only list paths starting with this prefix")

	indexSearchCmd.Flags().IntVarP(&searchK, "top-k", "k", 5, "number of results")
	indexSearchCmd.Flags().BoolVar(&searchJSON, "json", false, "print hits as JSON")

	indexReconcileCmd.Flags().BoolVar(&reconcileAll, "all", false, "also index vault files that have no record")
	indexReconcileCmd.Flags().BoolVar(&reconcileJSON, "json", false, "print the report as JSON")
}
