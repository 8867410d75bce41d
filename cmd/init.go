package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	cfgpkg "github.com/KaramelBytes/vaultsync-cli/internal/config"
	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
	"github.com/spf13/cobra"
)

var initBackend string

var initCmd = &cobra.Command{
	Use:   "init [vault-dir]",
	Short: "Point vaultsync at a vault directory and save the config",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		dir := cfg.VaultDir
		if len(args) == 1 {
			expanded, err := utils.ExpandHome(args[0])
			if err != nil {
				return err
			}
			if dir, err = filepath.Abs(expanded); err != nil {
				return fmt.Errorf("resolve vault dir: %w", err)
			}
		}
		if info, err := os.Stat(dir); err == nil && !info.IsDir() {
			return fmt.Errorf("%s exists and is not a directory", dir)
		} else if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("stat vault directory: %w", err)
		}
		if err := utils.EnsureDir(dir); err != nil {
			return err
		}
		cfg.VaultDir = dir
		if initBackend != "" {
			cfg.IndexBackend = initBackend
		}
		if err := utils.EnsureDir(cfg.IndexDir); err != nil {
			return err
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Printf("✓ Vault initialized: %s\n", dir)
		fmt.Printf("  index: %s (%s)\n", cfg.IndexBackend, cfg.IndexDir)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
	initCmd.Flags().StringVar(&initBackend, "backend", "", "index backend to save (memory, json, sqlite, chromem)")
}
