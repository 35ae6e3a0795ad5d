package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pdfqa/internal/apperrors"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Document.Path != "data/herois_marvel.pdf" {
		t.Errorf("unexpected document path %q", cfg.Document.Path)
	}
	if cfg.Completer.OpenAI.Model != "gpt-4o-mini" || cfg.Embedder.OpenAI.Model != "text-embedding-3-small" {
		t.Errorf("unexpected models: %+v / %+v", cfg.Completer.OpenAI, cfg.Embedder.OpenAI)
	}
	if cfg.Retrieval.TopK != 4 || cfg.Index.Mode != "ephemeral" || cfg.Server.Addr != ":5000" {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Completer.OpenAI.MaxRetries != 0 {
		t.Error("retries must be off unless configured")
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := writeConfig(t, `
document:
  path: docs/heroes.pdf
embedder:
  type: tfidf
vector_store:
  type: sqlite
  sqlite:
    path: index.db
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Document.Path != "docs/heroes.pdf" || cfg.Embedder.Type != "tfidf" || cfg.VectorStore.SQLite.Path != "index.db" {
		t.Errorf("file values not applied: %+v", cfg)
	}
	if cfg.Completer.Type != "openai" || cfg.Chunker.SentencesPerChunk != 5 {
		t.Error("keys missing from the file should keep their defaults")
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "index:\n  mode: ephemeral\n")
	t.Setenv("PDFQA_INDEX__MODE", "cached")
	t.Setenv("PDFQA_RETRIEVAL__TOP_K", "2")
	t.Setenv("PDFQA_COMPLETER__OLLAMA__MODEL", "mistral")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Index.Mode != "cached" {
		t.Errorf("expected env override, got %q", cfg.Index.Mode)
	}
	if cfg.Retrieval.TopK != 2 {
		t.Errorf("expected top_k 2, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Completer.Ollama.Model != "mistral" {
		t.Errorf("expected nested override, got %q", cfg.Completer.Ollama.Model)
	}
}

func TestLoad_RejectsUnknownTypes(t *testing.T) {
	tests := map[string]string{
		"embedder":  "embedder:\n  type: word2vec\n",
		"store":     "vector_store:\n  type: redis\n",
		"mode":      "index:\n  mode: forever\n",
		"watch":     "document:\n  watch: true\n",
		"top_k":     "retrieval:\n  top_k: 0\n",
		"malformed": "embedder: [unclosed\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			if !errors.Is(err, apperrors.ErrConfiguration) {
				t.Errorf("expected configuration error, got %v", err)
			}
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	cfg.VectorStore.Type = "qdrant"
	cfg.VectorStore.Qdrant.Collection = "heroes"
	path := filepath.Join(t.TempDir(), "nested", "config.yaml")
	if err := Save(path, cfg); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	data, _ := os.ReadFile(path)
	if !strings.Contains(string(data), "vector_store:") {
		t.Errorf("expected snake_case keys in saved yaml:\n%s", data)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if loaded.VectorStore.Type != "qdrant" || loaded.VectorStore.Qdrant.Collection != "heroes" {
		t.Errorf("saved values lost: %+v", loaded.VectorStore)
	}
}

func TestCheckCredentials(t *testing.T) {
	cfg, _ := Load("")
	cfg.Completer.OpenAI.APIKeyEnv = "PDFQA_TEST_MISSING_KEY"
	cfg.Embedder.Type = "tfidf"
	t.Setenv("PDFQA_TEST_MISSING_KEY", "")

	err := cfg.CheckCredentials()
	if !errors.Is(err, apperrors.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	if !strings.Contains(err.Error(), "PDFQA_TEST_MISSING_KEY") {
		t.Errorf("error should name the variable: %v", err)
	}

	t.Setenv("PDFQA_TEST_MISSING_KEY", "sk-test")
	if err := cfg.CheckCredentials(); err != nil {
		t.Errorf("expected credentials to be satisfied, got %v", err)
	}
}

func TestCheckCredentials_OfflineBackendsNeedNoKey(t *testing.T) {
	cfg, _ := Load("")
	cfg.Embedder.Type = "tfidf"
	cfg.Completer.Type = "ollama"
	cfg.Completer.OpenAI.APIKeyEnv = "PDFQA_TEST_UNSET_KEY"
	if err := cfg.CheckCredentials(); err != nil {
		t.Errorf("no key should be required, got %v", err)
	}
}

func TestEnvKey(t *testing.T) {
	k, v := envKey("PDFQA_VECTOR_STORE__QDRANT__URL", "http://q:6333")
	if k != "vector_store.qdrant.url" || v != "http://q:6333" {
		t.Errorf("unexpected mapping %q=%v", k, v)
	}
}
