package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds application configuration
type Config struct {
	Database struct {
		ConnectionString string `yaml:"connection_string"`
	} `yaml:"database"`
	OpenAI struct {
		BaseURL         string `yaml:"base_url"`
		APIKeyEnv       string `yaml:"api_key_env"`
		EmbeddingModel  string `yaml:"embedding_model"`
		EmbeddingDims   int    `yaml:"embedding_dimensions"`
		CompletionModel string `yaml:"completion_model"`
		TimeoutSecs     int    `yaml:"timeout_secs"`
	} `yaml:"openai"`
	Index struct {
		Name string `yaml:"name"`
	} `yaml:"index"`
	Processing struct {
		ChunkSize       int     `yaml:"chunk_size"`
		ChunkOverlap    int     `yaml:"chunk_overlap"`
		TopK            int     `yaml:"top_k"`
		MinScore        float64 `yaml:"min_score"`
		EmbedBatchSize  int     `yaml:"embed_batch_size"`
		MaxHistoryTurns int     `yaml:"max_history_turns"`
	} `yaml:"processing"`
	WebSearch struct {
		Enabled        bool    `yaml:"enabled"`
		MaxResults     int     `yaml:"max_results"`
		ScoreThreshold float64 `yaml:"score_threshold"`
	} `yaml:"web_search"`
	Sessions struct {
		Backend string `yaml:"backend"` // "memory" or "postgres"
	} `yaml:"sessions"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
}

// Load loads configuration from the default path or returns defaults
func Load() (*Config, error) {
	return LoadFrom(defaultPath())
}

// LoadFrom loads configuration from the given path. A missing file is not an
// error; defaults are returned instead.
func LoadFrom(path string) (*Config, error) {
	cfg := Default()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}

	return cfg, cfg.Validate()
}

// Save saves configuration to file
func (c *Config) Save() error {
	path := defaultPath()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0644)
}

// Validate rejects settings that would corrupt chunking or retrieval.
func (c *Config) Validate() error {
	if c.Processing.ChunkSize <= 0 {
		return fmt.Errorf("chunk_size must be positive, got %d", c.Processing.ChunkSize)
	}
	if c.Processing.ChunkOverlap < 0 || c.Processing.ChunkOverlap >= c.Processing.ChunkSize {
		return fmt.Errorf("chunk_overlap must be in [0, chunk_size), got %d", c.Processing.ChunkOverlap)
	}
	if c.OpenAI.EmbeddingDims <= 0 {
		return fmt.Errorf("embedding_dimensions must be positive, got %d", c.OpenAI.EmbeddingDims)
	}
	switch c.Sessions.Backend {
	case "memory", "postgres":
	default:
		return fmt.Errorf("unknown session backend: %q", c.Sessions.Backend)
	}
	return nil
}

// APIKey resolves the OpenAI API key from the configured environment variable.
func (c *Config) APIKey() string {
	return os.Getenv(c.OpenAI.APIKeyEnv)
}

// Default returns default configuration
func Default() *Config {
	cfg := &Config{}

	cfg.Database.ConnectionString = "postgres://postgres@localhost/postgres?sslmode=disable"
	cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	cfg.OpenAI.EmbeddingModel = "text-embedding-3-small"
	cfg.OpenAI.EmbeddingDims = 1024
	cfg.OpenAI.CompletionModel = "gpt-4o"
	cfg.OpenAI.TimeoutSecs = 60
	cfg.Index.Name = "regulations"
	cfg.Processing.ChunkSize = 1000
	cfg.Processing.ChunkOverlap = 100
	cfg.Processing.TopK = 5
	cfg.Processing.MinScore = 0.3
	cfg.Processing.EmbedBatchSize = 32
	cfg.Processing.MaxHistoryTurns = 10
	cfg.WebSearch.Enabled = false
	cfg.WebSearch.MaxResults = 3
	cfg.WebSearch.ScoreThreshold = 0.75
	cfg.Sessions.Backend = "memory"
	cfg.Server.Addr = ":8000"

	return cfg
}

func defaultPath() string {
	return filepath.Join(os.Getenv("HOME"), ".regchat", "config.yaml")
}
