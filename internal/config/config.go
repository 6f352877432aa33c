// Package config provides configuration loading and structs for the Kioku server.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the application.
type Config struct {
	Debug     bool            `yaml:"debug"`
	Server    ServerConfig    `yaml:"server"`
	Storage   StorageConfig   `yaml:"storage"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	LLM       LLMConfig       `yaml:"llm"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Inbox     InboxConfig     `yaml:"inbox"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// StorageConfig holds paths for the catalog data directory and indices.
type StorageConfig struct {
	DataDir        string `yaml:"data_dir"`
	BleveIndexPath string `yaml:"bleve_index_path"`
	RegistryDir    string `yaml:"registry_dir"`
}

// EmbeddingConfig selects and tunes the embedding backend.
type EmbeddingConfig struct {
	// Provider is "ollama", "onnx", or "mock".
	Provider   string `yaml:"provider"`
	BaseURL    string `yaml:"base_url"`
	Model      string `yaml:"model"`
	ModelPath  string `yaml:"model_path"`
	Dimensions int    `yaml:"dimensions"`
	MaxTokens  int    `yaml:"max_tokens"`
	CacheSize  int    `yaml:"cache_size"`
	BatchSize  int    `yaml:"batch_size"`
}

// LLMConfig holds language model settings for answer generation.
type LLMConfig struct {
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	MaxTokens   int     `yaml:"max_tokens"`
	Temperature float64 `yaml:"temperature"`
	TopP        float64 `yaml:"top_p"`
}

// ChunkingConfig holds text and code chunker settings.
type ChunkingConfig struct {
	TextSize    int `yaml:"text_size"`
	TextOverlap int `yaml:"text_overlap"`
	CodeLines   int `yaml:"code_lines"`
	CodeOverlap int `yaml:"code_overlap"`
}

// RetrievalConfig holds answer retrieval settings.
type RetrievalConfig struct {
	TopK      int `yaml:"top_k"`
	OverFetch int `yaml:"over_fetch"`
}

// InboxConfig holds drop-in directory watch settings.
type InboxConfig struct {
	Path       string   `yaml:"path"`
	Enabled    *bool    `yaml:"enabled"`
	Extensions []string `yaml:"extensions"`
}

// EnabledOrDefault returns whether the inbox watcher runs; defaults to true
// when unset.
func (c *InboxConfig) EnabledOrDefault() bool {
	if c.Enabled != nil {
		return *c.Enabled
	}
	return true
}

// Load reads and parses the config file at path, expands paths, and applies defaults.
// Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DataDir = expandPath(cfg.Storage.DataDir, configDir)
	cfg.Storage.BleveIndexPath = expandPath(cfg.Storage.BleveIndexPath, configDir)
	cfg.Storage.RegistryDir = expandPath(cfg.Storage.RegistryDir, configDir)
	if cfg.Embedding.ModelPath != "" {
		cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	}
	if cfg.Inbox.Path != "" {
		cfg.Inbox.Path = expandPath(cfg.Inbox.Path, configDir)
	}

	return &cfg, nil
}

// Save writes the config to path. Used for persisting settings changed at runtime.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory.
func expandPath(path string, configDir string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
