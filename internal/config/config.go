// Package config loads engine configuration from the environment and an
// optional YAML file.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// LLM provider identifiers.
const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config holds all configuration values.
type Config struct {
	// SurrealDB connection
	SurrealDBURL       string
	SurrealDBNamespace string
	SurrealDBDatabase  string
	SurrealDBUser      string
	SurrealDBPass      string
	SurrealDBAuthLevel string

	// Generative fallback
	LLMProvider     string
	LLMModel        string
	OllamaHost      string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Embedding (optional; fuzzy matching falls back to token overlap)
	EmbedProvider string
	EmbedModel    string
	EmbedDim      int

	// Resolver thresholds
	PublishThreshold float64
	FuzzyDecay       float64
	FuzzyMinOverlap  float64
	FuzzyMinCosine   float64

	// Session pacing
	MinActionDelay time.Duration
	ActionTimeout  time.Duration
	MaxNavRetries  int

	// Logging
	LogFile  string
	LogLevel slog.Level

	// Search seed (YAML file, matches the scraper config layout)
	Search SearchConfig
}

// SearchConfig seeds the discovery source.
type SearchConfig struct {
	BaseURL   string `yaml:"base_url"`
	Query     string `yaml:"query"`
	GeoID     string `yaml:"geo_id"`
	EasyApply bool   `yaml:"easy_apply"`
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present.
func Load() Config {
	_ = godotenv.Load()

	return Config{
		SurrealDBURL:       getEnv("SURREALDB_URL", "ws://localhost:8000/rpc"),
		SurrealDBNamespace: getEnv("SURREALDB_NAMESPACE", "tla"),
		SurrealDBDatabase:  getEnv("SURREALDB_DATABASE", "applications"),
		SurrealDBUser:      getEnv("SURREALDB_USER", "root"),
		SurrealDBPass:      getEnv("SURREALDB_PASS", "root"),
		SurrealDBAuthLevel: getEnv("SURREALDB_AUTH_LEVEL", "root"),

		LLMProvider:     getEnv("TLA_LLM_PROVIDER", ProviderOllama),
		LLMModel:        getEnv("TLA_LLM_MODEL", "llama3.2"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		EmbedProvider: getEnv("TLA_EMBED_PROVIDER", ""),
		EmbedModel:    getEnv("TLA_EMBED_MODEL", "all-minilm:l6-v2"),
		EmbedDim:      getEnvInt("TLA_EMBED_DIM", 384),

		PublishThreshold: getEnvFloat("TLA_PUBLISH_THRESHOLD", 0.75),
		FuzzyDecay:       getEnvFloat("TLA_FUZZY_DECAY", 0.8),
		FuzzyMinOverlap:  getEnvFloat("TLA_FUZZY_MIN_OVERLAP", 0.55),
		FuzzyMinCosine:   getEnvFloat("TLA_FUZZY_MIN_COSINE", 0.80),

		MinActionDelay: getEnvDuration("TLA_MIN_ACTION_DELAY", 2*time.Second),
		ActionTimeout:  getEnvDuration("TLA_ACTION_TIMEOUT", 30*time.Second),
		MaxNavRetries:  getEnvInt("TLA_MAX_NAV_RETRIES", 3),

		LogFile:  getEnv("TLA_LOG_FILE", "/tmp/tla.log"),
		LogLevel: parseLogLevel(getEnv("TLA_LOG_LEVEL", "INFO")),
	}
}

// LoadSearch reads the search seed from a YAML file.
func LoadSearch(path string) (SearchConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return SearchConfig{}, fmt.Errorf("read search config: %w", err)
	}
	var wrapper struct {
		Search SearchConfig `yaml:"search"`
	}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return SearchConfig{}, fmt.Errorf("parse search config: %w", err)
	}
	if wrapper.Search.BaseURL == "" {
		return SearchConfig{}, fmt.Errorf("search config %s: base_url is required", path)
	}
	return wrapper.Search, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return slog.LevelDebug
	case "INFO":
		return slog.LevelInfo
	case "WARN", "WARNING":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
