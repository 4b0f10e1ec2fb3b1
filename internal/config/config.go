// Package config loads the knowledge base configuration from an optional
// YAML file with environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig configures the embedding provider.
type OpenAIConfig struct {
	APIKey     string        `yaml:"api_key"`
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	Dimensions int           `yaml:"dimensions"`
	Timeout    time.Duration `yaml:"timeout"`
}

// ChunkingConfig configures the chunker. Sizes are in words.
type ChunkingConfig struct {
	MaxChunkSize     int `yaml:"max_chunk_size"`
	MinChunkSize     int `yaml:"min_chunk_size"`
	OverlapSize      int `yaml:"overlap_size"`
	MinContentLength int `yaml:"min_content_length"`
}

// EmbeddingConfig configures batching and caching of embedding calls. A
// negative GroupDelay or CacheSize disables the pause or the cache.
type EmbeddingConfig struct {
	GroupSize       int           `yaml:"group_size"`
	GroupDelay      time.Duration `yaml:"group_delay"`
	MaxInputChars   int           `yaml:"max_input_chars"`
	CacheSize       int           `yaml:"cache_size"`
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`
}

// RetrievalConfig configures search.
type RetrievalConfig struct {
	DefaultLimit  int `yaml:"default_limit"`
	MaxLimit      int `yaml:"max_limit"`
	MaxQueryChars int `yaml:"max_query_chars"`
}

// StorageConfig selects and configures the storage backend.
type StorageConfig struct {
	Backend    string `yaml:"backend"` // memory, sqlite or qdrant
	SQLitePath string `yaml:"sqlite_path"`
	QdrantHost string `yaml:"qdrant_host"`
	QdrantPort int    `yaml:"qdrant_port"`
	Collection string `yaml:"collection"`
}

// ServerConfig configures the MCP server.
type ServerConfig struct {
	Mode        string `yaml:"mode"` // stdio or http
	Port        int    `yaml:"port"`
	DefaultUser string `yaml:"default_user"`
}

// GitHubConfig configures repository seeding.
type GitHubConfig struct {
	Token string `yaml:"token"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Config is the root configuration.
type Config struct {
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Chunking  ChunkingConfig  `yaml:"chunking"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Storage   StorageConfig   `yaml:"storage"`
	Server    ServerConfig    `yaml:"server"`
	GitHub    GitHubConfig    `yaml:"github"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		OpenAI: OpenAIConfig{
			Model:      "text-embedding-3-small",
			Dimensions: 0,
			Timeout:    30 * time.Second,
		},
		Chunking: ChunkingConfig{
			MaxChunkSize:     1000,
			MinChunkSize:     200,
			OverlapSize:      100,
			MinContentLength: 50,
		},
		Embedding: EmbeddingConfig{
			GroupSize:       5,
			GroupDelay:      time.Second,
			MaxInputChars:   8000,
			CacheSize:       256,
			RetryMaxElapsed: 30 * time.Second,
		},
		Retrieval: RetrievalConfig{
			DefaultLimit:  5,
			MaxLimit:      20,
			MaxQueryChars: 1000,
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: defaultSQLitePath(),
			QdrantHost: "localhost",
			QdrantPort: 6334,
			Collection: "knowledge",
		},
		Server: ServerConfig{
			Mode:        "stdio",
			Port:        8080,
			DefaultUser: "default",
		},
		Log: LogConfig{Level: "info"},
	}
}

func defaultSQLitePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "knowledge.db")
	}
	return filepath.Join(home, ".knowledge-rag", "knowledge.db")
}

// Load reads the YAML file at path over the defaults. A missing file, or an
// empty path, yields the defaults. Environment overrides are applied with
// getenv when it is non-nil.
func Load(path string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}
	if getenv != nil {
		if err := cfg.applyEnv(getenv); err != nil {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"OPENAI_API_KEY":  &c.OpenAI.APIKey,
		"OPENAI_BASE_URL": &c.OpenAI.BaseURL,
		"EMBEDDING_MODEL": &c.OpenAI.Model,
		"STORAGE_BACKEND": &c.Storage.Backend,
		"SQLITE_PATH":     &c.Storage.SQLitePath,
		"QDRANT_HOST":     &c.Storage.QdrantHost,
		"SERVER_MODE":     &c.Server.Mode,
		"DEFAULT_USER_ID": &c.Server.DefaultUser,
		"GITHUB_TOKEN":    &c.GitHub.Token,
		"LOG_LEVEL":       &c.Log.Level,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		"QDRANT_PORT": &c.Storage.QdrantPort,
		"PORT":        &c.Server.Port,
	}
	for key, dst := range ints {
		v := getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", key, v, err)
		}
		*dst = n
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	var errs []error
	ch := c.Chunking
	if ch.MaxChunkSize < 1 {
		errs = append(errs, errors.New("chunking.max_chunk_size must be positive"))
	}
	if ch.OverlapSize < 0 || ch.OverlapSize >= ch.MaxChunkSize {
		errs = append(errs, errors.New("chunking.overlap_size must be in [0, max_chunk_size)"))
	}
	if ch.MinChunkSize < 0 || ch.MinChunkSize > ch.MaxChunkSize {
		errs = append(errs, errors.New("chunking.min_chunk_size must be in [0, max_chunk_size]"))
	}
	if ch.MinContentLength < 0 {
		errs = append(errs, errors.New("chunking.min_content_length must not be negative"))
	}
	if c.Embedding.GroupSize < 1 {
		errs = append(errs, errors.New("embedding.group_size must be positive"))
	}
	if c.Retrieval.MaxLimit < 1 || c.Retrieval.DefaultLimit < 1 || c.Retrieval.DefaultLimit > c.Retrieval.MaxLimit {
		errs = append(errs, errors.New("retrieval limits must satisfy 1 <= default_limit <= max_limit"))
	}
	if c.Retrieval.MaxQueryChars < 1 {
		errs = append(errs, errors.New("retrieval.max_query_chars must be positive"))
	}
	switch c.Storage.Backend {
	case "memory", "sqlite", "qdrant":
	default:
		errs = append(errs, fmt.Errorf("storage.backend %q must be memory, sqlite or qdrant", c.Storage.Backend))
	}
	switch c.Server.Mode {
	case "stdio", "http":
	default:
		errs = append(errs, fmt.Errorf("server.mode %q must be stdio or http", c.Server.Mode))
	}
	return errors.Join(errs...)
}
