// Package config loads speechqa settings from defaults, an optional YAML file
// and the environment, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultPath is the config file looked up in the working directory.
const DefaultPath = "speechqa.yaml"

// PathEnv names an explicit config file. Unlike DefaultPath it must exist.
const PathEnv = "SPEECHQA_CONFIG"

const (
	StoreSQLite = "sqlite"
	StoreQdrant = "qdrant"
)

// QdrantConfig contains connection details for the optional Qdrant store.
type QdrantConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Collection string `yaml:"collection"`
}

// Config is the root application configuration.
type Config struct {
	SourcePath string `yaml:"source_path"`
	SourceRepo string `yaml:"source_repo"`
	SourceRef  string `yaml:"source_ref"`
	PersistDir string `yaml:"persist_dir"`

	ChunkSize    int `yaml:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap"`
	RetrieverK   int `yaml:"retriever_k"`

	OllamaBaseURL      string `yaml:"ollama_base_url"`
	OllamaAPIKey       string `yaml:"ollama_api_key"`
	EmbeddingModel     string `yaml:"embedding_model"`
	EmbeddingBatchSize int    `yaml:"embedding_batch_size"`
	LLMModel           string `yaml:"llm_model"`

	VectorStore string       `yaml:"vector_store"`
	Qdrant      QdrantConfig `yaml:"qdrant"`

	LogLevel   string `yaml:"log_level"`
	ServerMode bool   `yaml:"server_mode"`
	Port       int    `yaml:"port"`

	GitHubToken string `yaml:"-"`
}

// Default returns the built-in settings.
func Default() *Config {
	return &Config{
		SourcePath:         "speech.txt",
		PersistDir:         "db",
		ChunkSize:          500,
		ChunkOverlap:       50,
		RetrieverK:         2,
		OllamaBaseURL:      "http://localhost:11434/v1",
		OllamaAPIKey:       "ollama",
		EmbeddingModel:     "all-minilm",
		EmbeddingBatchSize: 64,
		LLMModel:           "phi3",
		VectorStore:        StoreSQLite,
		Qdrant: QdrantConfig{
			Host:       "localhost",
			Port:       6334,
			Collection: "speech_chunks",
		},
		LogLevel: "info",
		Port:     8080,
	}
}

// Load reads the config file at path over the defaults. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// LoadDefault reads SPEECHQA_CONFIG or ./speechqa.yaml, then applies
// environment overrides and validates the result.
func LoadDefault() (*Config, error) {
	path := DefaultPath
	if explicit := os.Getenv(PathEnv); explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return nil, fmt.Errorf("config file %s: %w", explicit, err)
		}
		path = explicit
	}

	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from environment variables that are set.
func (c *Config) ApplyEnv() {
	c.SourcePath = getEnv("SOURCE_PATH", c.SourcePath)
	c.SourceRepo = getEnv("SOURCE_REPO", c.SourceRepo)
	c.SourceRef = getEnv("SOURCE_REF", c.SourceRef)
	c.PersistDir = getEnv("PERSIST_DIR", c.PersistDir)
	c.ChunkSize = getEnvInt("CHUNK_SIZE", c.ChunkSize)
	c.ChunkOverlap = getEnvInt("CHUNK_OVERLAP", c.ChunkOverlap)
	c.RetrieverK = getEnvInt("RETRIEVER_K", c.RetrieverK)
	c.OllamaBaseURL = getEnv("OLLAMA_BASE_URL", c.OllamaBaseURL)
	c.OllamaAPIKey = getEnv("OLLAMA_API_KEY", c.OllamaAPIKey)
	c.EmbeddingModel = getEnv("EMBEDDING_MODEL", c.EmbeddingModel)
	c.EmbeddingBatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", c.EmbeddingBatchSize)
	c.LLMModel = getEnv("LLM_MODEL", c.LLMModel)
	c.VectorStore = strings.ToLower(getEnv("VECTOR_STORE", c.VectorStore))
	c.Qdrant.Host = getEnv("QDRANT_HOST", c.Qdrant.Host)
	c.Qdrant.Port = getEnvInt("QDRANT_PORT", c.Qdrant.Port)
	c.Qdrant.Collection = getEnv("QDRANT_COLLECTION", c.Qdrant.Collection)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.ServerMode = getEnv("SERVER_MODE", fmt.Sprint(c.ServerMode)) == "true"
	c.Port = getEnvInt("PORT", c.Port)
	c.GitHubToken = getEnv("GITHUB_TOKEN", c.GitHubToken)
}

// Validate rejects settings that cannot work.
func (c *Config) Validate() error {
	var errs []error
	if c.SourcePath == "" {
		errs = append(errs, errors.New("source_path must be set"))
	}
	if c.PersistDir == "" && c.VectorStore == StoreSQLite {
		errs = append(errs, errors.New("persist_dir must be set"))
	}
	if c.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("chunk_size must be positive, got %d", c.ChunkSize))
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap > c.ChunkSize {
		errs = append(errs, fmt.Errorf("chunk_overlap must be between 0 and chunk_size, got %d", c.ChunkOverlap))
	}
	if c.RetrieverK <= 0 {
		errs = append(errs, fmt.Errorf("retriever_k must be positive, got %d", c.RetrieverK))
	}
	switch c.VectorStore {
	case StoreSQLite, StoreQdrant:
	default:
		errs = append(errs, fmt.Errorf("unknown vector_store %q", c.VectorStore))
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// ParseLevel maps debug, info, warn and error to slog levels.
func ParseLevel(level string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo, fmt.Errorf("unknown log_level %q", level)
	}
	return l, nil
}

// NewLogger returns a text logger writing to w at the configured level.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, _ := ParseLevel(c.LogLevel)
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

func getEnv(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		var i int
		if _, err := fmt.Sscanf(v, "%d", &i); err == nil {
			return i
		}
	}
	return defaultValue
}
