// Package config loads process configuration from environment variables.
package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Provider identifies an LLM provider implementation.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
	ProviderOllama    Provider = "ollama"
	ProviderBedrock   Provider = "bedrock"
)

// BackendConfig describes one registered LLM backend.
type BackendConfig struct {
	ID              string
	Provider        Provider
	Model           string
	SupportsImages  bool
	MaxInputTokens  int
	MaxOutputTokens int
}

// Config holds all configuration values.
type Config struct {
	// Registered LLM backends, in registration order. Order matters:
	// auto-selection picks the first matching backend.
	Backends []BackendConfig

	// Provider credentials / endpoints
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OllamaHost      string
	AWSRegion       string

	// Reference library service
	LibraryURL     string
	LibraryTimeout time.Duration

	// Pipeline
	CheckpointDir  string
	TemplateDir    string
	Workers        int
	MaxRetries     int
	BackendTimeout time.Duration
	ExtractTimeout time.Duration
	MaxImageParts  int

	// Logging
	LogFile  string
	LogLevel slog.Level
}

// Load reads configuration from environment variables, applying defaults
// suitable for a local Zotero-style library and an Ollama instance.
func Load() Config {
	home, _ := os.UserHomeDir()
	if home == "" {
		home = os.TempDir()
	}
	dataDir := filepath.Join(home, ".paperlens")

	cfg := Config{
		AnthropicAPIKey: os.Getenv("ANTHROPIC_API_KEY"),
		OpenAIAPIKey:    os.Getenv("OPENAI_API_KEY"),
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		AWSRegion:       getEnv("AWS_REGION", "us-east-1"),

		LibraryURL:     getEnv("PAPERLENS_LIBRARY_URL", "http://localhost:23119/api"),
		LibraryTimeout: getDuration("PAPERLENS_LIBRARY_TIMEOUT", 30*time.Second),

		CheckpointDir:  getEnv("PAPERLENS_CHECKPOINT_DIR", filepath.Join(dataDir, "tasks")),
		TemplateDir:    getEnv("PAPERLENS_TEMPLATE_DIR", filepath.Join(dataDir, "templates")),
		Workers:        getInt("PAPERLENS_WORKERS", 3),
		MaxRetries:     getInt("PAPERLENS_MAX_RETRIES", 2),
		BackendTimeout: getDuration("PAPERLENS_BACKEND_TIMEOUT", 2*time.Minute),
		ExtractTimeout: getDuration("PAPERLENS_EXTRACT_TIMEOUT", 3*time.Minute),
		MaxImageParts:  getInt("PAPERLENS_MAX_IMAGE_PARTS", 8),

		LogFile:  getEnv("PAPERLENS_LOG_FILE", filepath.Join(dataDir, "paperlens.log")),
		LogLevel: parseLogLevel(getEnv("PAPERLENS_LOG_LEVEL", "INFO")),
	}

	cfg.Backends = parseBackends(getEnv("PAPERLENS_BACKENDS", "anthropic,ollama"))
	return cfg
}

// defaultBackend returns the builtin capability declaration for a provider.
// Token ceilings and vision support are static facts about the provider's
// API, loaded at process start and never mutated.
func defaultBackend(id string) (BackendConfig, bool) {
	switch Provider(id) {
	case ProviderAnthropic:
		return BackendConfig{
			ID:              "anthropic",
			Provider:        ProviderAnthropic,
			Model:           getEnv("PAPERLENS_ANTHROPIC_MODEL", "claude-3-5-sonnet-20241022"),
			SupportsImages:  true,
			MaxInputTokens:  200000,
			MaxOutputTokens: 8192,
		}, true
	case ProviderOpenAI:
		return BackendConfig{
			ID:              "openai",
			Provider:        ProviderOpenAI,
			Model:           getEnv("PAPERLENS_OPENAI_MODEL", "gpt-4o"),
			SupportsImages:  true,
			MaxInputTokens:  128000,
			MaxOutputTokens: 4096,
		}, true
	case ProviderOllama:
		return BackendConfig{
			ID:              "ollama",
			Provider:        ProviderOllama,
			Model:           getEnv("PAPERLENS_OLLAMA_MODEL", "llama3.1"),
			SupportsImages:  false,
			MaxInputTokens:  32768,
			MaxOutputTokens: 4096,
		}, true
	case ProviderBedrock:
		return BackendConfig{
			ID:              "bedrock",
			Provider:        ProviderBedrock,
			Model:           getEnv("PAPERLENS_BEDROCK_MODEL", "anthropic.claude-3-5-sonnet-20241022-v2:0"),
			SupportsImages:  true,
			MaxInputTokens:  200000,
			MaxOutputTokens: 4096,
		}, true
	}
	return BackendConfig{}, false
}

func parseBackends(list string) []BackendConfig {
	var backends []BackendConfig
	for _, id := range strings.Split(list, ",") {
		id = strings.TrimSpace(strings.ToLower(id))
		if id == "" {
			continue
		}
		if b, ok := defaultBackend(id); ok {
			backends = append(backends, b)
		} else {
			slog.Warn("ignoring unknown backend in PAPERLENS_BACKENDS", "backend", id)
		}
	}
	return backends
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// getInt accepts zero: PAPERLENS_MAX_RETRIES=0 legitimately disables
// retries. Negative or unparsable values fall back to the default.
func getInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil && n >= 0 {
			return n
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil && d > 0 {
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
