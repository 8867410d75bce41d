package cmd

import (
	"fmt"
	"strconv"
	"strings"

	cfgpkg "github.com/KaramelBytes/vaultsync-cli/internal/config"
	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "View or set vaultsync configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg == nil {
			fmt.Println("No config loaded")
			return nil
		}
		fmt.Printf("vault_dir: %s\n", cfg.VaultDir)
		fmt.Printf("exclude: %s\n", strings.Join(cfg.Exclude, ","))
		fmt.Printf("index_backend: %s\n", cfg.IndexBackend)
		fmt.Printf("index_dir: %s\n", cfg.IndexDir)
		if cfg.IndexBackend == "chromem" {
			fmt.Printf("embedding_provider: %s\n", cfg.EmbeddingProvider)
			fmt.Printf("embedding_model: %s\n", cfg.EmbeddingModel)
		}
		if cfg.APIKey != "" {
			fmt.Printf("api_key: %s\n", mask(cfg.APIKey))
		}
		if cfg.APIBaseURL != "" {
			fmt.Printf("api_base_url: %s\n", cfg.APIBaseURL)
		}
		fmt.Printf("default_model: %s\n", cfg.DefaultModel)
		fmt.Printf("tokenizer: %s\n", cfg.Tokenizer)
		if cfg.Tokenizer != "heuristic" {
			fmt.Printf("tiktoken_encoding: %s\n", cfg.TiktokenEncoding)
		}
		if cfg.ContextLength > 0 {
			fmt.Printf("context_length: %d\n", cfg.ContextLength)
		}
		fmt.Printf("response_reserve_tokens: %d\n", cfg.ResponseReserveTokens)
		fmt.Printf("retry_max_attempts: %d\n", cfg.RetryMaxAttempts)
		fmt.Printf("retry_base_delay_ms: %d\n", cfg.RetryBaseDelayMs)
		fmt.Printf("retry_max_delay_ms: %d\n", cfg.RetryMaxDelayMs)
		fmt.Printf("ollama_host: %s\n", cfg.OllamaHost)
		fmt.Printf("watch_debounce_ms: %d\n", cfg.WatchDebounceMs)
		if cfg.MetricsAddr != "" {
			fmt.Printf("metrics_addr: %s\n", cfg.MetricsAddr)
		}
		fmt.Printf("log_level: %s\n", cfg.LogLevel)
		fmt.Printf("log_format: %s\n", cfg.LogFormat)
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a config value and save to disk",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, val := args[0], args[1]
		if cfg == nil {
			c, err := cfgpkg.Load(cfgFile)
			if err != nil {
				return err
			}
			cfg = c
		}
		switch key {
		case "vault_dir":
			dir, err := utils.ExpandHome(val)
			if err != nil {
				return err
			}
			cfg.VaultDir = dir
		case "exclude":
			var pats []string
			for _, p := range strings.Split(val, ",") {
				if p = strings.TrimSpace(p); p != "" {
					pats = append(pats, p)
				}
			}
			cfg.Exclude = pats
		case "index_backend":
			switch strings.ToLower(val) {
			case "memory", "json", "sqlite", "chromem":
				cfg.IndexBackend = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid index_backend: %s (use memory, json, sqlite or chromem)", val)
			}
		case "index_dir":
			cfg.IndexDir = val
		case "embedding_provider":
			switch strings.ToLower(val) {
			case "hash", "ollama", "openai":
				cfg.EmbeddingProvider = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid embedding_provider: %s (use hash, ollama or openai)", val)
			}
		case "embedding_model":
			cfg.EmbeddingModel = val
		case "api_key":
			cfg.APIKey = val
		case "api_base_url":
			cfg.APIBaseURL = val
		case "default_model":
			cfg.DefaultModel = val
		case "tokenizer":
			switch strings.ToLower(val) {
			case "tiktoken", "heuristic":
				cfg.Tokenizer = strings.ToLower(val)
			default:
				return fmt.Errorf("invalid tokenizer: %s (use tiktoken or heuristic)", val)
			}
		case "tiktoken_encoding":
			cfg.TiktokenEncoding = val
		case "context_length":
			i, err := parseNonNegative(key, val)
			if err != nil {
				return err
			}
			cfg.ContextLength = i
		case "response_reserve_tokens":
			i, err := parseNonNegative(key, val)
			if err != nil {
				return err
			}
			cfg.ResponseReserveTokens = i
		case "retry_max_attempts":
			i, err := parseNonNegative(key, val)
			if err != nil || i == 0 {
				return fmt.Errorf("invalid int for retry_max_attempts: %v (must be >= 1)", val)
			}
			cfg.RetryMaxAttempts = i
		case "retry_base_delay_ms":
			i, err := parseNonNegative(key, val)
			if err != nil {
				return err
			}
			cfg.RetryBaseDelayMs = i
		case "retry_max_delay_ms":
			i, err := parseNonNegative(key, val)
			if err != nil {
				return err
			}
			cfg.RetryMaxDelayMs = i
		case "ollama_host":
			cfg.OllamaHost = val
		case "ollama_timeout_sec":
			i, err := parseNonNegative(key, val)
			if err != nil {
				return err
			}
			cfg.OllamaTimeoutSec = i
		case "watch_debounce_ms":
			i, err := parseNonNegative(key, val)
			if err != nil {
				return err
			}
			cfg.WatchDebounceMs = i
		case "metrics_addr":
			cfg.MetricsAddr = val
		case "log_level":
			cfg.LogLevel = val
		case "log_format":
			if val != "json" && val != "console" {
				return fmt.Errorf("invalid log_format: %s (use json or console)", val)
			}
			cfg.LogFormat = val
		default:
			return fmt.Errorf("unknown key: %s", key)
		}
		if err := cfgpkg.Save(cfg, cfgFile); err != nil {
			return err
		}
		fmt.Println("Saved config")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}

func parseNonNegative(key, val string) (int, error) {
	i, err := strconv.Atoi(val)
	if err != nil || i < 0 {
		return 0, fmt.Errorf("invalid int for %s: %v", key, val)
	}
	return i, nil
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 6 {
		return "******"
	}
	return s[:3] + "****" + s[len(s)-3:]
}
