package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"reportrag/internal/apperr"
)

// Config holds all configuration for the application.
type Config struct {
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	DataDir          string `yaml:"data_dir"`
	RawDataDir       string `yaml:"raw_data_dir"`
	ProcessedDataDir string `yaml:"processed_data_dir"` // Empty disables the chunk dump
	VectorStoreDir   string `yaml:"vector_store_dir"`
	DBPath           string `yaml:"db_path"`

	ChunkSize              int  `yaml:"chunk_size"`
	ChunkOverlap           int  `yaml:"chunk_overlap"`
	PreprocessEnabled      bool `yaml:"preprocess_enabled"`
	PDFStripHeadersFooters bool `yaml:"pdf_strip_headers_footers"` // Drops the first and last line of each PDF page

	EmbeddingBackend   string        `yaml:"embedding_backend"`
	EmbeddingBaseURL   string        `yaml:"embedding_base_url"`
	EmbeddingModelName string        `yaml:"embedding_model"`
	EmbeddingAPIKey    string        `yaml:"embedding_api_key"`
	EmbeddingDimension int           `yaml:"embedding_dimension"` // Used by the hash backend
	EmbeddingBatchSize int           `yaml:"embedding_batch_size"`
	EmbeddingCacheSize int           `yaml:"embedding_cache_size"`
	EmbeddingCacheTTL  time.Duration `yaml:"embedding_cache_ttl"`

	VectorBackend  string `yaml:"vector_backend"`
	QdrantURL      string `yaml:"qdrant_url"`
	CollectionName string `yaml:"collection_name"`
	DefaultTopK    int    `yaml:"default_top_k"`

	LLMBaseURL   string `yaml:"llm_base_url"`
	LLMModelName string `yaml:"llm_model"`
	LLMAPIKey    string `yaml:"llm_api_key"`

	APIPort string `yaml:"api_port"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel:           "info",
		LogFormat:          "text",
		DataDir:            "./data",
		RawDataDir:         "./data/raw",
		VectorStoreDir:     "./data/vector_store",
		DBPath:             "./data/reportrag.db",
		ChunkSize:          1000,
		ChunkOverlap:       200,
		PreprocessEnabled:  true,
		EmbeddingBackend:   "openai",
		EmbeddingBaseURL:   "http://localhost:8081",
		EmbeddingModelName: "all-MiniLM-L6-v2",
		EmbeddingAPIKey:    "dummy-key",
		EmbeddingDimension: 384,
		EmbeddingBatchSize: 32,
		EmbeddingCacheSize: 1024,
		EmbeddingCacheTTL:  10 * time.Minute,
		VectorBackend:      "sqlite",
		QdrantURL:          "http://localhost:6333",
		CollectionName:     "documents",
		DefaultTopK:        5,
		LLMBaseURL:         "http://localhost:8080",
		LLMModelName:       "Llama-3.1-8B-Instruct",
		LLMAPIKey:          "dummy-key",
		APIPort:            "9000",
	}
}

// Load builds the configuration from defaults, the optional YAML file named by CONFIG_FILE
// and environment variables, in increasing order of precedence.
// If a .env file exists in the current directory or a parent, it is loaded first;
// environment variables already set take precedence over .env file values.
// The data directories are created.
func Load() (*Config, error) {
	loadDotEnv()

	cfg := Default()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := cfg.ensureDirs(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadDotEnv loads the first .env file found walking up from the working directory.
func loadDotEnv() {
	wd, err := os.Getwd()
	if err != nil {
		return
	}
	dir := wd
	for i := 0; i < 5; i++ { // Limit search depth
		envPath := filepath.Join(dir, ".env")
		if _, err := os.Stat(envPath); err == nil {
			_ = godotenv.Load(envPath)
			return
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return // Reached filesystem root
		}
		dir = parent
	}
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.LogFormat = getEnv("LOG_FORMAT", c.LogFormat)
	c.DataDir = getEnv("DATA_DIR", c.DataDir)
	c.RawDataDir = getEnv("RAW_DATA_DIR", c.RawDataDir)
	c.ProcessedDataDir = getEnv("PROCESSED_DATA_DIR", c.ProcessedDataDir)
	c.VectorStoreDir = getEnv("VECTOR_STORE_DIR", c.VectorStoreDir)
	c.DBPath = getEnv("DB_PATH", c.DBPath)
	c.EmbeddingBackend = getEnv("EMBEDDING_BACKEND", c.EmbeddingBackend)
	c.EmbeddingBaseURL = getEnv("EMBEDDING_BASE_URL", c.EmbeddingBaseURL)
	c.EmbeddingModelName = getEnv("EMBEDDING_MODEL", c.EmbeddingModelName)
	c.EmbeddingAPIKey = getEnv("EMBEDDING_API_KEY", c.EmbeddingAPIKey)
	c.VectorBackend = getEnv("VECTOR_BACKEND", c.VectorBackend)
	c.QdrantURL = getEnv("QDRANT_URL", c.QdrantURL)
	c.CollectionName = getEnv("COLLECTION_NAME", c.CollectionName)
	c.LLMBaseURL = getEnv("LLM_BASE_URL", c.LLMBaseURL)
	c.LLMModelName = getEnv("LLM_MODEL", c.LLMModelName)
	c.LLMAPIKey = getEnv("LLM_API_KEY", c.LLMAPIKey)
	c.APIPort = getEnv("API_PORT", c.APIPort)

	ints := []struct {
		key string
		dst *int
	}{
		{"CHUNK_SIZE", &c.ChunkSize},
		{"CHUNK_OVERLAP", &c.ChunkOverlap},
		{"EMBEDDING_DIMENSION", &c.EmbeddingDimension},
		{"EMBEDDING_BATCH_SIZE", &c.EmbeddingBatchSize},
		{"EMBEDDING_CACHE_SIZE", &c.EmbeddingCacheSize},
		{"DEFAULT_TOP_K", &c.DefaultTopK},
	}
	for _, v := range ints {
		if err := getEnvInt(v.key, v.dst); err != nil {
			return err
		}
	}

	if err := getEnvBool("PREPROCESS_ENABLED", &c.PreprocessEnabled); err != nil {
		return err
	}
	if err := getEnvBool("PDF_STRIP_HEADERS_FOOTERS", &c.PDFStripHeadersFooters); err != nil {
		return err
	}
	return getEnvDuration("EMBEDDING_CACHE_TTL", &c.EmbeddingCacheTTL)
}

// Validate checks field values and their combinations.
func (c *Config) Validate() error {
	invalid := func(field, format string, args ...any) error {
		return &apperr.ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
	}

	if _, err := parseLevel(c.LogLevel); err != nil {
		return invalid("LOG_LEVEL", "%v", err)
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return invalid("LOG_FORMAT", "must be text or json, got %q", c.LogFormat)
	}
	if c.ChunkSize <= 0 {
		return invalid("CHUNK_SIZE", "must be greater than 0")
	}
	if c.ChunkOverlap < 0 || c.ChunkOverlap >= c.ChunkSize {
		return invalid("CHUNK_OVERLAP", "must be in [0, CHUNK_SIZE), got %d", c.ChunkOverlap)
	}
	switch c.EmbeddingBackend {
	case "openai":
		if c.EmbeddingBaseURL == "" {
			return invalid("EMBEDDING_BASE_URL", "is required for the openai backend")
		}
	case "hash":
		if c.EmbeddingDimension <= 0 {
			return invalid("EMBEDDING_DIMENSION", "must be greater than 0")
		}
	default:
		return invalid("EMBEDDING_BACKEND", "must be openai or hash, got %q", c.EmbeddingBackend)
	}
	if c.EmbeddingCacheSize < 0 || c.EmbeddingCacheTTL < 0 {
		return invalid("EMBEDDING_CACHE_SIZE", "cache size and TTL must not be negative")
	}
	switch c.VectorBackend {
	case "sqlite", "memory":
	case "qdrant":
		if c.QdrantURL == "" {
			return invalid("QDRANT_URL", "is required for the qdrant backend")
		}
	default:
		return invalid("VECTOR_BACKEND", "must be sqlite, memory or qdrant, got %q", c.VectorBackend)
	}
	if c.CollectionName == "" {
		return invalid("COLLECTION_NAME", "is required")
	}
	if c.DefaultTopK <= 0 {
		return invalid("DEFAULT_TOP_K", "must be greater than 0")
	}
	if c.APIPort == "" {
		return invalid("API_PORT", "is required")
	}
	return nil
}

func (c *Config) ensureDirs() error {
	dirs := []string{c.DataDir, c.RawDataDir, c.VectorStoreDir, filepath.Dir(c.DBPath)}
	if c.ProcessedDataDir != "" {
		dirs = append(dirs, c.ProcessedDataDir)
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SlogLevel returns the configured log level. Unknown values fall back to info.
func (c *Config) SlogLevel() slog.Level {
	level, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return level
}

func parseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt overwrites dst when key is set.
func getEnvInt(key string, dst *int) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("%s must be a valid integer: %w", key, err)
	}
	*dst = n
	return nil
}

func getEnvBool(key string, dst *bool) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fmt.Errorf("%s must be a boolean: %w", key, err)
	}
	*dst = b
	return nil
}

func getEnvDuration(key string, dst *time.Duration) error {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("%s must be a duration like 10m: %w", key, err)
	}
	*dst = d
	return nil
}
