package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OpenAIConfig holds the shared connection settings for OpenAI-compatible APIs.
type OpenAIConfig struct {
	BaseURL     string `yaml:"base_url"`
	APIKeyEnv   string `yaml:"api_key_env"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// EmbedderConfig selects and configures the embedding backend.
type EmbedderConfig struct {
	Type       string  `yaml:"type"`
	Model      string  `yaml:"model"`
	Dimension  int     `yaml:"dimension"`
	BatchSize  int     `yaml:"batch_size"`
	MaxRetries int     `yaml:"max_retries"`
	RateLimit  float64 `yaml:"rate_limit_rps"`
}

// ClassifierConfig selects the classifier. "llm" calls the completion backend,
// "extractive" works offline.
type ClassifierConfig struct {
	Type       string `yaml:"type"`
	Model      string `yaml:"model"`
	PrefixSize int    `yaml:"prefix_chars"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	MaxChars int `yaml:"max_chars"`
	Overlap  int `yaml:"overlap"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type     string          `yaml:"type"`
	Postgres *PostgresConfig `yaml:"postgres,omitempty"`
	SQLite   *SQLiteConfig   `yaml:"sqlite,omitempty"`
	Qdrant   *QdrantConfig   `yaml:"qdrant,omitempty"`
}

// PostgresConfig points at a pgvector-enabled database. DSN wins over DSNEnv.
type PostgresConfig struct {
	DSN            string `yaml:"dsn,omitempty"`
	DSNEnv         string `yaml:"dsn_env"`
	MigrateOnStart bool   `yaml:"migrate_on_start"`
}

// SQLiteConfig places the local database file.
type SQLiteConfig struct {
	DataDir string `yaml:"data_dir"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `yaml:"url"`
	APIKey      string `yaml:"api_key"`
	Collection  string `yaml:"collection"`
	TimeoutSecs int    `yaml:"timeout_secs"`
}

// RetrievalConfig tunes similarity search.
type RetrievalConfig struct {
	TopK      int     `yaml:"top_k"`
	Threshold float64 `yaml:"threshold"`
}

// ChatConfig configures the answering step.
type ChatConfig struct {
	Model       string  `yaml:"model"`
	Temperature float32 `yaml:"temperature"`
	TimeoutSecs int     `yaml:"timeout_secs"`
}

// IngestConfig bounds document ingestion.
type IngestConfig struct {
	TimeoutSecs int      `yaml:"timeout_secs"`
	Concurrency int      `yaml:"concurrency"`
	Extensions  []string `yaml:"extensions"`
	MaxUploadMB int      `yaml:"max_upload_mb"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig configures the logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	OpenAI      OpenAIConfig      `yaml:"openai"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Chunker     ChunkerConfig     `yaml:"chunker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Chat        ChatConfig        `yaml:"chat"`
	Ingest      IngestConfig      `yaml:"ingest"`
	Server      ServerConfig      `yaml:"server"`
	Log         LogConfig         `yaml:"log"`
}

// Load reads a config from a specified path. If the file does not exist, returns defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return defaultConfig(), nil
		}
		return nil, err
	}
	cfg := zeroableDefaults()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	applyConfigDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// LoadDefault tries ./config.yaml first, then ~/.config/nexus/config.yaml.
// If neither exists, it writes defaults to ~/.config/nexus/config.yaml and returns them.
func LoadDefault() (*AppConfig, string, error) {
	cwdPath := "config.yaml"
	if _, err := os.Stat(cwdPath); err == nil {
		cfg, err := Load(cwdPath)
		return cfg, cwdPath, err
	}
	userPath, err := defaultUserConfigPath()
	if err != nil {
		return nil, "", err
	}
	if _, err := os.Stat(userPath); err == nil {
		cfg, err := Load(userPath)
		return cfg, userPath, err
	}
	cfg := defaultConfig()
	if err := Save(userPath, cfg); err != nil {
		return nil, "", err
	}
	return cfg, userPath, nil
}

// Save writes the config to the given path, creating directories as needed.
func Save(path string, cfg *AppConfig) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate rejects settings the pipeline cannot run with.
func (c *AppConfig) Validate() error {
	switch c.Embedder.Type {
	case "openai", "hashing":
	default:
		return fmt.Errorf("unknown embedder: %s", c.Embedder.Type)
	}
	if c.Embedder.Type == "openai" && c.Embedder.Dimension != 1536 && !strings.HasPrefix(c.Embedder.Model, "text-embedding-3") {
		return fmt.Errorf("embedder.dimension %d needs a text-embedding-3 model, %s only returns 1536", c.Embedder.Dimension, c.Embedder.Model)
	}
	switch c.Classifier.Type {
	case "llm", "extractive":
	default:
		return fmt.Errorf("unknown classifier: %s", c.Classifier.Type)
	}
	switch c.VectorStore.Type {
	case "memory", "sqlite":
	case "postgres":
		if c.VectorStore.Postgres == nil {
			return errors.New("vector_store.postgres is required for the postgres store")
		}
	case "qdrant":
		if c.VectorStore.Qdrant == nil || c.VectorStore.Qdrant.URL == "" {
			return errors.New("vector_store.qdrant.url is required for the qdrant store")
		}
	default:
		return fmt.Errorf("unknown vector store: %s", c.VectorStore.Type)
	}
	if c.Chunker.Overlap >= c.Chunker.MaxChars {
		return fmt.Errorf("chunker.overlap (%d) must be smaller than chunker.max_chars (%d)", c.Chunker.Overlap, c.Chunker.MaxChars)
	}
	if c.Retrieval.Threshold < 0 || c.Retrieval.Threshold > 1 {
		return fmt.Errorf("retrieval.threshold must be within [0,1], got %v", c.Retrieval.Threshold)
	}
	return nil
}

// PostgresDSN resolves the configured DSN, reading DSNEnv when DSN is empty.
func (c *AppConfig) PostgresDSN() (string, error) {
	pg := c.VectorStore.Postgres
	if pg == nil {
		return "", errors.New("postgres store is not configured")
	}
	if pg.DSN != "" {
		return pg.DSN, nil
	}
	if dsn := os.Getenv(pg.DSNEnv); dsn != "" {
		return dsn, nil
	}
	return "", fmt.Errorf("postgres DSN missing: set vector_store.postgres.dsn or $%s", pg.DSNEnv)
}

func (c *AppConfig) IngestTimeout() time.Duration {
	return time.Duration(c.Ingest.TimeoutSecs) * time.Second
}

func (c *AppConfig) ChatTimeout() time.Duration {
	return time.Duration(c.Chat.TimeoutSecs) * time.Second
}

func (q *QdrantConfig) Timeout() time.Duration {
	return time.Duration(q.TimeoutSecs) * time.Second
}

func (c *AppConfig) OpenAITimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSecs) * time.Second
}

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "nexus", "config.yaml"), nil
}

func defaultConfig() *AppConfig {
	cfg := zeroableDefaults()
	cfg.Embedder.Type = "openai"
	cfg.Classifier.Type = "llm"
	cfg.VectorStore.Type = "sqlite"
	applyConfigDefaults(&cfg)
	return &cfg
}

// zeroableDefaults seeds the fields where zero is a valid setting. They are filled
// before decoding so only a missing key falls back to the default.
func zeroableDefaults() AppConfig {
	return AppConfig{
		Chunker:   ChunkerConfig{Overlap: 200},
		Retrieval: RetrievalConfig{Threshold: 0.5},
		Chat:      ChatConfig{Temperature: 0.7},
	}
}

func applyConfigDefaults(cfg *AppConfig) {
	if cfg.OpenAI.BaseURL == "" {
		cfg.OpenAI.BaseURL = "https://api.openai.com/v1"
	}
	if cfg.OpenAI.APIKeyEnv == "" {
		cfg.OpenAI.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.OpenAI.TimeoutSecs == 0 {
		cfg.OpenAI.TimeoutSecs = 60
	}

	if cfg.Embedder.Type == "" {
		cfg.Embedder.Type = "openai"
	}
	if cfg.Embedder.Type == "openai" {
		if cfg.Embedder.Model == "" {
			cfg.Embedder.Model = "text-embedding-3-small"
		}
		if cfg.Embedder.Dimension == 0 {
			cfg.Embedder.Dimension = 1536
		}
		if cfg.Embedder.MaxRetries == 0 {
			cfg.Embedder.MaxRetries = 3
		}
	}
	if cfg.Embedder.Type == "hashing" && cfg.Embedder.Dimension == 0 {
		cfg.Embedder.Dimension = 512
	}
	if cfg.Embedder.BatchSize == 0 {
		cfg.Embedder.BatchSize = 50
	}

	if cfg.Classifier.Type == "" {
		cfg.Classifier.Type = "llm"
	}
	if cfg.Classifier.Model == "" {
		cfg.Classifier.Model = "gpt-4o-mini"
	}
	if cfg.Classifier.PrefixSize == 0 {
		cfg.Classifier.PrefixSize = 4000
	}

	if cfg.Chunker.MaxChars == 0 {
		cfg.Chunker.MaxChars = 2000
	}

	if cfg.VectorStore.Type == "" {
		cfg.VectorStore.Type = "sqlite"
	}
	if cfg.VectorStore.Type == "postgres" && cfg.VectorStore.Postgres == nil {
		cfg.VectorStore.Postgres = &PostgresConfig{}
	}
	if pg := cfg.VectorStore.Postgres; pg != nil && pg.DSNEnv == "" {
		pg.DSNEnv = "DATABASE_URL"
	}
	if cfg.VectorStore.Type == "sqlite" && cfg.VectorStore.SQLite == nil {
		cfg.VectorStore.SQLite = &SQLiteConfig{}
	}
	if q := cfg.VectorStore.Qdrant; q != nil {
		if q.Collection == "" {
			q.Collection = "documents"
		}
		if q.TimeoutSecs == 0 {
			q.TimeoutSecs = 15
		}
	}

	if cfg.Retrieval.TopK == 0 {
		cfg.Retrieval.TopK = 5
	}

	if cfg.Chat.Model == "" {
		cfg.Chat.Model = "gpt-4o"
	}
	if cfg.Chat.TimeoutSecs == 0 {
		cfg.Chat.TimeoutSecs = 60
	}

	if cfg.Ingest.TimeoutSecs == 0 {
		cfg.Ingest.TimeoutSecs = 300
	}
	if cfg.Ingest.Concurrency == 0 {
		cfg.Ingest.Concurrency = 1
	}
	if len(cfg.Ingest.Extensions) == 0 {
		cfg.Ingest.Extensions = []string{".txt", ".md", ".pdf", ".docx"}
	}
	if cfg.Ingest.MaxUploadMB == 0 {
		cfg.Ingest.MaxUploadMB = 25
	}

	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "console"
	}
}
