package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/KaramelBytes/vaultsync-cli/internal/ai"
	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
	"github.com/spf13/cobra"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect or extend the model context-window catalog",
	Example: `  vaultsync models show
  vaultsync models sync --file ./models.json --save
  vaultsync models fetch --url https://example.com/models.json --merge --save`,
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current model catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		// pretty-print deterministic order
		keys := make([]string, 0, len(cat))
		for k := range cat {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		m := make(map[string]ai.ModelInfo, len(keys))
		for _, k := range keys {
			m[k] = cat[k]
		}
		return enc.Encode(m)
	},
}

var (
	syncPath  string
	syncMerge bool
	syncSave  bool
)

var modelsSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Load model catalog entries from a JSON file",
	RunE: func(cmd *cobra.Command, args []string) error {
		if syncPath == "" {
			return fmt.Errorf("--file is required")
		}
		m, err := ai.LoadCatalogFromJSON(syncPath)
		if err != nil {
			return fmt.Errorf("load catalog: %w", err)
		}
		return applyCatalog(m, syncMerge, syncSave, "file")
	},
}

var (
	fetchURL    string
	fetchOutput string
	fetchMerge  bool
	fetchSave   bool
)

var modelsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Fetch a model catalog JSON from a URL and apply it",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fetchURL == "" {
			fetchURL = os.Getenv("VAULTSYNC_CATALOG_URL")
		}
		if fetchURL == "" {
			return fmt.Errorf("--url is required (or set VAULTSYNC_CATALOG_URL)")
		}
		m, err := fetchCatalog(fetchURL)
		if err != nil {
			return err
		}
		// Optionally write to file
		if fetchOutput != "" {
			data, err := utils.PrettyJSON(m)
			if err != nil {
				return err
			}
			if err := os.WriteFile(fetchOutput, data, 0o644); err != nil {
				return fmt.Errorf("write file: %w", err)
			}
			fmt.Printf("Saved catalog to %s\n", fetchOutput)
		}
		return applyCatalog(m, fetchMerge, fetchSave, "fetched")
	},
}

// applyCatalog updates the in-memory catalog and, with save, persists the
// result so later invocations load it at startup.
func applyCatalog(m map[string]ai.ModelInfo, merge, save bool, source string) error {
	if merge {
		ai.MergeCatalog(m)
		fmt.Printf("Merged %s catalog into in-memory catalog\n", source)
	} else {
		ai.OverrideCatalog(m)
		fmt.Printf("Replaced in-memory catalog with %s catalog\n", source)
	}
	if !save {
		return nil
	}
	path, err := savedCatalogPath()
	if err != nil {
		return err
	}
	data, err := utils.PrettyJSON(ai.Catalog())
	if err != nil {
		return err
	}
	if err := utils.EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := utils.SafeWriteFile(path, data); err != nil {
		return fmt.Errorf("save catalog: %w", err)
	}
	fmt.Printf("✓ Catalog saved to %s\n", path)
	return nil
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsCmd.AddCommand(modelsSyncCmd)
	modelsCmd.AddCommand(modelsFetchCmd)

	modelsSyncCmd.Flags().StringVar(&syncPath, "file", "", "path to JSON catalog file")
	modelsSyncCmd.Flags().BoolVar(&syncMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsSyncCmd.Flags().BoolVar(&syncSave, "save", false, "persist the resulting catalog to ~/.vaultsync/models.json")

	modelsFetchCmd.Flags().StringVar(&fetchURL, "url", "", "URL to JSON catalog file")
	modelsFetchCmd.Flags().StringVar(&fetchOutput, "output", "", "optional path to save the fetched JSON")
	modelsFetchCmd.Flags().BoolVar(&fetchMerge, "merge", false, "merge into existing catalog instead of replacing")
	modelsFetchCmd.Flags().BoolVar(&fetchSave, "save", false, "persist the resulting catalog to ~/.vaultsync/models.json")
}
