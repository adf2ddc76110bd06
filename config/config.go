// Package config loads sage's runtime settings from an optional YAML file
// with environment-variable overrides for secrets.
package config

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/goccy/go-yaml"
)

// Config holds every tunable the system reads at startup.
type Config struct {
	// Anthropic API settings
	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	AnthropicModel  string `yaml:"anthropic_model"`
	MaxTokens       int64  `yaml:"max_tokens"`
	MaxRounds       int    `yaml:"max_rounds"`

	// Embedding model settings
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	EmbeddingModel string `yaml:"embedding_model"`

	// Document processing settings
	ChunkSize    int `yaml:"chunk_size"`    // size of text chunks for vector storage
	ChunkOverlap int `yaml:"chunk_overlap"` // characters to overlap between chunks
	MaxResults   int `yaml:"max_results"`   // maximum search results to return
	MaxHistory   int `yaml:"max_history"`   // number of exchanges to remember

	// Storage and serving
	DBPath      string `yaml:"db_path"`
	SessionPath string `yaml:"session_path"`
	ListenAddr  string `yaml:"listen_addr"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		AnthropicModel: "claude-sonnet-4-20250514",
		MaxTokens:      800,
		MaxRounds:      2,
		EmbeddingModel: "text-embedding-3-small",
		ChunkSize:      800,
		ChunkOverlap:   100,
		MaxResults:     5,
		MaxHistory:     2,
		DBPath:         "./data/sage.db",
		SessionPath:    "./data/sessions.db",
		ListenAddr:     ":8000",
	}
}

// Load builds the configuration: defaults, then the YAML file at path (if
// path is empty or the file is missing, defaults stand), then environment
// overrides for API keys.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Debug("no config file found, using defaults", "path", path)
		case err != nil:
			return Config{}, fmt.Errorf("config: failed to read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("config: failed to parse %s: %w", path, err)
			}
			log.Debug("loaded config file", "path", path)
		}
	}

	// Environment always wins for secrets.
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		cfg.AnthropicAPIKey = key
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.OpenAIAPIKey = key
	}

	if cfg.AnthropicAPIKey == "" {
		log.Warn("ANTHROPIC_API_KEY is not set or empty")
	}

	return cfg, nil
}
