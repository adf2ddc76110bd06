package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := Default()
	if cfg != want {
		t.Errorf("Load(\"\") = %+v, want defaults %+v", cfg, want)
	}
}

func TestLoad_MissingFileFallsBack(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg != Default() {
		t.Errorf("missing file should yield defaults, got %+v", cfg)
	}
}

func TestLoad_YAMLOverrides(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")

	path := filepath.Join(t.TempDir(), "sage.yaml")
	content := `
anthropic_model: claude-test-model
max_tokens: 1024
chunk_size: 400
listen_addr: ":9999"
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AnthropicModel != "claude-test-model" {
		t.Errorf("AnthropicModel = %q", cfg.AnthropicModel)
	}
	if cfg.MaxTokens != 1024 {
		t.Errorf("MaxTokens = %d", cfg.MaxTokens)
	}
	if cfg.ChunkSize != 400 {
		t.Errorf("ChunkSize = %d", cfg.ChunkSize)
	}
	if cfg.ListenAddr != ":9999" {
		t.Errorf("ListenAddr = %q", cfg.ListenAddr)
	}

	// Untouched fields keep their defaults.
	if cfg.MaxResults != Default().MaxResults {
		t.Errorf("MaxResults = %d, want default %d", cfg.MaxResults, Default().MaxResults)
	}
}

func TestLoad_EnvWinsForSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sage.yaml")
	content := `
anthropic_api_key: from-file
openai_api_key: from-file
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("ANTHROPIC_API_KEY", "from-env")
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.AnthropicAPIKey != "from-env" {
		t.Errorf("AnthropicAPIKey = %q, want env override", cfg.AnthropicAPIKey)
	}
	// Empty env var must not clobber the file value.
	if cfg.OpenAIAPIKey != "from-file" {
		t.Errorf("OpenAIAPIKey = %q, want file value", cfg.OpenAIAPIKey)
	}
}

func TestLoad_MalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sage.yaml")
	if err := os.WriteFile(path, []byte("max_tokens: [not a number"), 0644); err != nil {
		t.Fatal(err)
	}

	if _, err := Load(path); err == nil {
		t.Error("expected error for malformed YAML")
	}
}
