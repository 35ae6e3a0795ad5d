// Package config loads the application configuration from defaults, a YAML
// file and PDFQA_ environment variables, in that order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	koanfyaml "github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"gopkg.in/yaml.v3"

	"pdfqa/internal/apperrors"
)

// EnvPrefix marks environment overrides. A double underscore separates
// sections: PDFQA_INDEX__MODE sets index.mode.
const EnvPrefix = "PDFQA_"

// DocumentConfig points at the document questions are answered on.
type DocumentConfig struct {
	Path string `koanf:"path" yaml:"path"`
	// Watch keeps the extracted text in memory and reloads it when the file changes.
	Watch bool `koanf:"watch" yaml:"watch"`
}

// OpenAIConfig holds configuration for an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL     string `koanf:"base_url" yaml:"base_url"`
	APIKeyEnv   string `koanf:"api_key_env" yaml:"api_key_env"`
	Model       string `koanf:"model" yaml:"model"`
	TimeoutSecs int    `koanf:"timeout_secs" yaml:"timeout_secs"`
	BatchSize   int    `koanf:"batch_size" yaml:"batch_size,omitempty"`
	MaxRetries  int    `koanf:"max_retries" yaml:"max_retries"`
}

// EmbedderConfig selects and configures the text embedder implementation.
type EmbedderConfig struct {
	Type   string       `koanf:"type" yaml:"type"`
	OpenAI OpenAIConfig `koanf:"openai" yaml:"openai"`
}

// OllamaConfig contains connection details for a local Ollama server.
type OllamaConfig struct {
	BaseURL     string `koanf:"base_url" yaml:"base_url"`
	Model       string `koanf:"model" yaml:"model"`
	TimeoutSecs int    `koanf:"timeout_secs" yaml:"timeout_secs"`
}

// CompleterConfig selects and configures the language model.
type CompleterConfig struct {
	Type   string       `koanf:"type" yaml:"type"`
	OpenAI OpenAIConfig `koanf:"openai" yaml:"openai"`
	Ollama OllamaConfig `koanf:"ollama" yaml:"ollama"`
}

// ChunkerConfig configures how documents are split into chunks.
type ChunkerConfig struct {
	Type              string `koanf:"type" yaml:"type"`
	SentencesPerChunk int    `koanf:"sentences_per_chunk" yaml:"sentences_per_chunk"`
	OverlapSentences  int    `koanf:"overlap_sentences" yaml:"overlap_sentences"`
}

// RetrievalConfig sets how many chunks are retrieved per question.
type RetrievalConfig struct {
	TopK int `koanf:"top_k" yaml:"top_k"`
}

// IndexConfig chooses between a fresh index per question ("ephemeral") and
// one index reused until the document changes ("cached").
type IndexConfig struct {
	Mode string `koanf:"mode" yaml:"mode"`
}

// VectorStoreConfig selects and configures the vector store implementation.
type VectorStoreConfig struct {
	Type   string       `koanf:"type" yaml:"type"`
	Qdrant QdrantConfig `koanf:"qdrant" yaml:"qdrant"`
	SQLite SQLiteConfig `koanf:"sqlite" yaml:"sqlite"`
}

// QdrantConfig contains connection details for a Qdrant vector store.
type QdrantConfig struct {
	URL         string `koanf:"url" yaml:"url"`
	APIKey      string `koanf:"api_key" yaml:"api_key"`
	Collection  string `koanf:"collection" yaml:"collection"`
	TimeoutSecs int    `koanf:"timeout_secs" yaml:"timeout_secs"`
}

// SQLiteConfig locates the sqlite-vec database; empty or ":memory:" keeps it in memory.
type SQLiteConfig struct {
	Path string `koanf:"path" yaml:"path"`
}

// SummarizerConfig selects and configures the summarizer.
type SummarizerConfig struct {
	Type         string `koanf:"type" yaml:"type"`
	MaxSentences int    `koanf:"max_sentences" yaml:"max_sentences"`
}

// ServerConfig configures the web front end.
type ServerConfig struct {
	Addr string `koanf:"addr" yaml:"addr"`
}

// DesktopConfig configures the chat window.
type DesktopConfig struct {
	MaxConcurrent int    `koanf:"max_concurrent" yaml:"max_concurrent"`
	LogFile       string `koanf:"log_file" yaml:"log_file"`
}

// LogConfig configures the slog handler.
type LogConfig struct {
	Level  string `koanf:"level" yaml:"level"`   // debug, info, warn, error
	Format string `koanf:"format" yaml:"format"` // text or json
}

// AppConfig is the root application configuration structure.
type AppConfig struct {
	Document    DocumentConfig    `koanf:"document" yaml:"document"`
	Embedder    EmbedderConfig    `koanf:"embedder" yaml:"embedder"`
	Completer   CompleterConfig   `koanf:"completer" yaml:"completer"`
	Chunker     ChunkerConfig     `koanf:"chunker" yaml:"chunker"`
	Retrieval   RetrievalConfig   `koanf:"retrieval" yaml:"retrieval"`
	Index       IndexConfig       `koanf:"index" yaml:"index"`
	VectorStore VectorStoreConfig `koanf:"vector_store" yaml:"vector_store"`
	Summarizer  SummarizerConfig  `koanf:"summarizer" yaml:"summarizer"`
	Server      ServerConfig      `koanf:"server" yaml:"server"`
	Desktop     DesktopConfig     `koanf:"desktop" yaml:"desktop"`
	Log         LogConfig         `koanf:"log" yaml:"log"`
}

var defaults = map[string]any{
	"document.path":  "data/herois_marvel.pdf",
	"document.watch": false,

	"embedder.type":                "openai",
	"embedder.openai.base_url":     "https://api.openai.com/v1",
	"embedder.openai.api_key_env":  "OPENAI_API_KEY",
	"embedder.openai.model":        "text-embedding-3-small",
	"embedder.openai.timeout_secs": 30,
	"embedder.openai.batch_size":   32,
	"embedder.openai.max_retries":  0,

	"completer.type":                "openai",
	"completer.openai.base_url":     "https://api.openai.com/v1",
	"completer.openai.api_key_env":  "OPENAI_API_KEY",
	"completer.openai.model":        "gpt-4o-mini",
	"completer.openai.timeout_secs": 60,
	"completer.openai.max_retries":  0,
	"completer.ollama.base_url":     "http://localhost:11434",
	"completer.ollama.model":        "llama3.2",
	"completer.ollama.timeout_secs": 120,

	"chunker.type":                "sentence",
	"chunker.sentences_per_chunk": 5,
	"chunker.overlap_sentences":   1,

	"retrieval.top_k": 4,
	"index.mode":      "ephemeral",

	"vector_store.type":                "memory",
	"vector_store.qdrant.url":          "http://localhost:6333",
	"vector_store.qdrant.collection":   "pdfqa",
	"vector_store.qdrant.timeout_secs": 15,
	"vector_store.sqlite.path":         ":memory:",

	"summarizer.type":          "frequency",
	"summarizer.max_sentences": 3,

	"server.addr": ":5000",

	"desktop.max_concurrent": 4,
	"desktop.log_file":       "pdfqa.log",

	"log.level":  "info",
	"log.format": "text",
}

// Load reads the config at path on top of the defaults and applies PDFQA_
// environment overrides. A missing file is not an error.
func Load(path string) (*AppConfig, error) {
	k := koanf.New(".")
	for key, value := range defaults {
		_ = k.Set(key, value)
	}

	if path != "" {
		if _, err := os.Stat(path); err == nil {
			if err := k.Load(file.Provider(path), koanfyaml.Parser()); err != nil {
				return nil, apperrors.ErrConfiguration.WithCause(fmt.Errorf("loading %s: %w", path, err))
			}
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	if err := k.Load(env.Provider(".", env.Opt{
		Prefix:        EnvPrefix,
		TransformFunc: envKey,
	}), nil); err != nil {
		return nil, fmt.Errorf("error loading environment variables: %w", err)
	}

	var cfg AppConfig
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, apperrors.ErrConfiguration.WithCause(fmt.Errorf("unmarshaling config: %w", err))
	}
	if err := validate(&cfg); err != nil {
		return nil, apperrors.ErrConfiguration.WithCause(err)
	}
	return &cfg, nil
}

// envKey maps PDFQA_VECTOR_STORE__TYPE to vector_store.type.
func envKey(k, v string) (string, any) {
	k = strings.ToLower(strings.TrimPrefix(k, EnvPrefix))
	return strings.ReplaceAll(k, "__", "."), v
}

// LoadDefault tries ./config.yaml first, then ~/.config/pdfqa/config.yaml.
// If neither exists, it writes defaults to ~/.config/pdfqa/config.yaml and returns them.
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
	cfg, err := Load("")
	if err != nil {
		return nil, "", err
	}
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

func defaultUserConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "pdfqa", "config.yaml"), nil
}

func validate(cfg *AppConfig) error {
	if strings.TrimSpace(cfg.Document.Path) == "" {
		return errors.New("document.path is required")
	}
	checks := []struct {
		key   string
		value string
		valid []string
	}{
		{"embedder.type", cfg.Embedder.Type, []string{"openai", "tfidf"}},
		{"completer.type", cfg.Completer.Type, []string{"openai", "ollama"}},
		{"chunker.type", cfg.Chunker.Type, []string{"sentence"}},
		{"index.mode", cfg.Index.Mode, []string{"ephemeral", "cached"}},
		{"vector_store.type", cfg.VectorStore.Type, []string{"memory", "qdrant", "sqlite"}},
		{"summarizer.type", cfg.Summarizer.Type, []string{"frequency"}},
		{"log.format", cfg.Log.Format, []string{"text", "json"}},
	}
	for _, c := range checks {
		if !contains(c.valid, c.value) {
			return fmt.Errorf("unknown %s %q (want one of %s)", c.key, c.value, strings.Join(c.valid, ", "))
		}
	}
	if cfg.Retrieval.TopK <= 0 {
		return fmt.Errorf("retrieval.top_k must be positive, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Document.Watch && cfg.Index.Mode != "cached" {
		return errors.New("document.watch requires index.mode cached")
	}
	return nil
}

func contains(values []string, v string) bool {
	for _, x := range values {
		if x == v {
			return true
		}
	}
	return false
}

// CheckCredentials reports a configuration error naming the first missing API
// key variable of the selected OpenAI backends. It never touches the network.
func (c *AppConfig) CheckCredentials() error {
	var required []string
	if c.Embedder.Type == "openai" {
		required = append(required, c.Embedder.OpenAI.APIKeyEnv)
	}
	if c.Completer.Type == "openai" {
		required = append(required, c.Completer.OpenAI.APIKeyEnv)
	}
	for _, name := range required {
		if name == "" {
			name = "OPENAI_API_KEY"
		}
		if strings.TrimSpace(os.Getenv(name)) == "" {
			return apperrors.ErrConfiguration.WithMessage(name + " is not set")
		}
	}
	return nil
}
