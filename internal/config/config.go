package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/KaramelBytes/vaultsync-cli/internal/utils"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	VaultDir string   `mapstructure:"vault_dir" yaml:"vault_dir"`
	Exclude  []string `mapstructure:"exclude" yaml:"exclude"`

	// Content index
	IndexBackend      string `mapstructure:"index_backend" yaml:"index_backend"`
	IndexDir          string `mapstructure:"index_dir" yaml:"index_dir"`
	EmbeddingProvider string `mapstructure:"embedding_provider" yaml:"embedding_provider"`
	EmbeddingModel    string `mapstructure:"embedding_model" yaml:"embedding_model"`
	APIKey            string `mapstructure:"api_key" yaml:"api_key"`
	APIBaseURL        string `mapstructure:"api_base_url" yaml:"api_base_url"`

	// Language model session
	DefaultModel          string `mapstructure:"default_model" yaml:"default_model"`
	Tokenizer             string `mapstructure:"tokenizer" yaml:"tokenizer"`
	TiktokenEncoding      string `mapstructure:"tiktoken_encoding" yaml:"tiktoken_encoding"`
	ContextLength         int    `mapstructure:"context_length" yaml:"context_length"`
	ResponseReserveTokens int    `mapstructure:"response_reserve_tokens" yaml:"response_reserve_tokens"`

	// Index retry before a write is reported as desynchronized
	RetryMaxAttempts int `mapstructure:"retry_max_attempts" yaml:"retry_max_attempts"`
	RetryBaseDelayMs int `mapstructure:"retry_base_delay_ms" yaml:"retry_base_delay_ms"`
	RetryMaxDelayMs  int `mapstructure:"retry_max_delay_ms" yaml:"retry_max_delay_ms"`

	// Local runtimes (Ollama)
	OllamaHost       string `mapstructure:"ollama_host" yaml:"ollama_host"`
	OllamaTimeoutSec int    `mapstructure:"ollama_timeout_sec" yaml:"ollama_timeout_sec"`

	// Watcher / observability
	WatchDebounceMs int    `mapstructure:"watch_debounce_ms" yaml:"watch_debounce_ms"`
	MetricsAddr     string `mapstructure:"metrics_addr" yaml:"metrics_addr"`
	LogLevel        string `mapstructure:"log_level" yaml:"log_level"`
	LogFormat       string `mapstructure:"log_format" yaml:"log_format"`
}

// Dir returns the default configuration directory (~/.vaultsync).
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".vaultsync"), nil
}

// Save writes the given configuration to the cfgFile path. If cfgFile is empty,
// it writes to ~/.vaultsync/config.yaml, creating the directory if necessary.
func Save(c *Global, cfgFile string) error {
	var path string
	if cfgFile != "" {
		path = cfgFile
	} else {
		dir, err := Dir()
		if err != nil {
			return err
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
		path = filepath.Join(dir, "config.yaml")
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := utils.SafeWriteFile(path, b); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file (cfgFile or ~/.vaultsync/config.yaml) > defaults.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("VAULTSYNC")
	v.AutomaticEnv()

	v.SetDefault("vault_dir", "~/vault")
	v.SetDefault("exclude", []string{".git", ".DS_Store"})
	v.SetDefault("index_backend", "sqlite")
	v.SetDefault("index_dir", "")
	v.SetDefault("embedding_provider", "hash")
	v.SetDefault("embedding_model", "nomic-embed-text")
	v.SetDefault("api_key", "")
	v.SetDefault("api_base_url", "")
	v.SetDefault("default_model", "openai/gpt-4o-mini")
	v.SetDefault("tokenizer", "tiktoken")
	v.SetDefault("tiktoken_encoding", "cl100k_base")
	v.SetDefault("context_length", 0)
	v.SetDefault("response_reserve_tokens", 0)
	v.SetDefault("retry_max_attempts", 3)
	v.SetDefault("retry_base_delay_ms", 100)
	v.SetDefault("retry_max_delay_ms", 2000)
	v.SetDefault("ollama_host", "http://127.0.0.1:11434")
	v.SetDefault("ollama_timeout_sec", 60)
	v.SetDefault("watch_debounce_ms", 300)
	v.SetDefault("metrics_addr", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "console")

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		dir, err := Dir()
		if err != nil {
			return nil, err
		}
		_ = os.MkdirAll(dir, 0o755)
		v.AddConfigPath(dir)
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	// optional read
	_ = v.ReadInConfig()

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.resolvePaths(); err != nil {
		return nil, err
	}
	return &c, nil
}

// resolvePaths expands ~ in directory settings and fills the index_dir default
// (~/.vaultsync/index).
func (c *Global) resolvePaths() error {
	var err error
	if c.VaultDir != "" {
		if c.VaultDir, err = utils.ExpandHome(c.VaultDir); err != nil {
			return err
		}
	}
	if c.IndexDir == "" {
		dir, err := Dir()
		if err != nil {
			return err
		}
		c.IndexDir = filepath.Join(dir, "index")
		return nil
	}
	c.IndexDir, err = utils.ExpandHome(c.IndexDir)
	return err
}
