// Package app assembles the collaborators shared by both front ends.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"pdfqa/internal/chunker"
	"pdfqa/internal/config"
	"pdfqa/internal/domain"
	"pdfqa/internal/embedding/tfidf"
	"pdfqa/internal/loader"
	"pdfqa/internal/ollama"
	"pdfqa/internal/openai"
	"pdfqa/internal/pipeline"
	"pdfqa/internal/service"
	"pdfqa/internal/summarizer"
	"pdfqa/internal/vectorstore/memory"
	"pdfqa/internal/vectorstore/qdrant"
	"pdfqa/internal/vectorstore/sqlitevec"
)

// App is the application context: built once from config and handed to a front end.
type App struct {
	Config   *config.AppConfig
	Logger   *slog.Logger
	Pipeline *pipeline.Pipeline
	Service  *service.QAService
}

// New assembles the application from cfg. No backend is contacted.
func New(cfg *config.AppConfig, logger *slog.Logger) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}

	newEmbedder, err := embedderFactory(cfg.Embedder)
	if err != nil {
		return nil, err
	}
	completer, err := newCompleter(cfg.Completer)
	if err != nil {
		return nil, err
	}
	newStore, err := storeFactory(cfg.VectorStore)
	if err != nil {
		return nil, err
	}

	var ch domain.Chunker
	switch cfg.Chunker.Type {
	case "sentence", "":
		ch = chunker.NewSentenceChunker(cfg.Chunker.SentencesPerChunk, cfg.Chunker.OverlapSentences)
	default:
		return nil, fmt.Errorf("unknown chunker: %s", cfg.Chunker.Type)
	}

	var sum domain.Summarizer
	switch cfg.Summarizer.Type {
	case "frequency", "":
		sum = summarizer.NewFrequencySummarizer()
	default:
		return nil, fmt.Errorf("unknown summarizer: %s", cfg.Summarizer.Type)
	}

	p := pipeline.New(ch, newEmbedder, newStore, completer, pipeline.Options{
		TopK: cfg.Retrieval.TopK,
		Mode: pipeline.Mode(cfg.Index.Mode),
	}, logger.With("component", "pipeline"))

	svc := service.New(loader.New(logger.With("component", "loader")), p, sum, service.Options{
		DocumentPath:     cfg.Document.Path,
		SummarySentences: cfg.Summarizer.MaxSentences,
		CheckCredentials: cfg.CheckCredentials,
	}, logger.With("component", "service"))

	logger.Info("application assembled",
		"document", cfg.Document.Path,
		"embedder", cfg.Embedder.Type,
		"completer", completer.Name(),
		"vector_store", cfg.VectorStore.Type,
		"index_mode", cfg.Index.Mode,
	)
	return &App{Config: cfg, Logger: logger, Pipeline: p, Service: svc}, nil
}

// Start begins background work that lives as long as ctx.
func (a *App) Start(ctx context.Context) error {
	if a.Config.Document.Watch {
		return a.Service.Watch(ctx)
	}
	return nil
}

// Close releases the cached index, if any.
func (a *App) Close() error {
	return a.Pipeline.Close()
}

func embedderFactory(cfg config.EmbedderConfig) (pipeline.EmbedderFactory, error) {
	switch cfg.Type {
	case "tfidf":
		return func() domain.Embedder { return tfidf.NewEmbedder() }, nil
	case "openai", "":
		oc := openAIConfig(cfg.OpenAI)
		return func() domain.Embedder { return openai.NewEmbedder(oc) }, nil
	default:
		return nil, fmt.Errorf("unknown embedder: %s", cfg.Type)
	}
}

func newCompleter(cfg config.CompleterConfig) (domain.Completer, error) {
	switch cfg.Type {
	case "openai", "":
		return openai.NewCompleter(openAIConfig(cfg.OpenAI)), nil
	case "ollama":
		return ollama.NewCompleter(cfg.Ollama.BaseURL, cfg.Ollama.Model, seconds(cfg.Ollama.TimeoutSecs)), nil
	default:
		return nil, fmt.Errorf("unknown completer: %s", cfg.Type)
	}
}

func storeFactory(cfg config.VectorStoreConfig) (pipeline.StoreFactory, error) {
	switch cfg.Type {
	case "memory", "":
		return func(string) (domain.VectorStore, error) { return memory.NewStorage(), nil }, nil
	case "qdrant":
		qc := cfg.Qdrant
		return func(name string) (domain.VectorStore, error) {
			return qdrant.NewStorage(qdrant.Config{
				URL:        qc.URL,
				APIKey:     qc.APIKey,
				Collection: qc.Collection + "_" + name,
				Timeout:    seconds(qc.TimeoutSecs),
			}), nil
		}, nil
	case "sqlite":
		path := cfg.SQLite.Path
		return func(name string) (domain.VectorStore, error) {
			return sqlitevec.Open(path, name)
		}, nil
	default:
		return nil, fmt.Errorf("unknown vector store: %s", cfg.Type)
	}
}

func openAIConfig(cfg config.OpenAIConfig) openai.Config {
	return openai.Config{
		BaseURL:    cfg.BaseURL,
		APIKeyEnv:  cfg.APIKeyEnv,
		Model:      cfg.Model,
		Timeout:    seconds(cfg.TimeoutSecs),
		MaxRetries: cfg.MaxRetries,
		BatchSize:  cfg.BatchSize,
	}
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
