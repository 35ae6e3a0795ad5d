// Package service answers questions about the configured document.
package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"pdfqa/internal/apperrors"
	"pdfqa/internal/domain"
)

// Pipeline answers a question against document text.
type Pipeline interface {
	Answer(ctx context.Context, text, question string) (string, error)
}

// Options configures a QAService.
type Options struct {
	DocumentPath     string
	SummarySentences int
	// CheckCredentials runs before any backend call; nil means no check.
	CheckCredentials func() error
}

// QAService reads the document at query time and runs the pipeline on it.
type QAService struct {
	loader     domain.Loader
	pipeline   Pipeline
	summarizer domain.Summarizer
	opts       Options
	logger     *slog.Logger

	mu     sync.RWMutex
	cache  bool
	gen    uint64
	cached *domain.Document
}

// New creates a QAService.
func New(loader domain.Loader, pipeline Pipeline, summarizer domain.Summarizer, opts Options, logger *slog.Logger) *QAService {
	if opts.SummarySentences <= 0 {
		opts.SummarySentences = 3
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &QAService{
		loader:     loader,
		pipeline:   pipeline,
		summarizer: summarizer,
		opts:       opts,
		logger:     logger,
	}
}

// Ask answers question against the current content of the document.
func (s *QAService) Ask(ctx context.Context, question string) (string, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", apperrors.ErrEmptyQuestion
	}
	if s.opts.CheckCredentials != nil {
		if err := s.opts.CheckCredentials(); err != nil {
			return "", err
		}
	}
	doc, err := s.document(ctx)
	if err != nil {
		return "", err
	}
	s.logger.Info("answering question", "document", doc.Path, "question_chars", len(question))
	answer, err := s.pipeline.Answer(ctx, doc.Content, question)
	if err != nil {
		s.logger.Error("question failed", "error", err, "kind", apperrors.KindOf(err))
		return "", err
	}
	return answer, nil
}

// Summary returns a short extractive summary of the document.
func (s *QAService) Summary(ctx context.Context) (string, error) {
	doc, err := s.document(ctx)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(doc.Content) == "" {
		return "", apperrors.ErrEmptyDocument
	}
	return s.summarizer.Summarize(doc.Content, s.opts.SummarySentences)
}

// DocumentPath returns the path of the document being answered on.
func (s *QAService) DocumentPath() string { return s.opts.DocumentPath }

func (s *QAService) document(ctx context.Context) (domain.Document, error) {
	s.mu.RLock()
	if s.cached != nil {
		doc := *s.cached
		s.mu.RUnlock()
		return doc, nil
	}
	cache, gen := s.cache, s.gen
	s.mu.RUnlock()

	doc, err := s.loader.Load(ctx, s.opts.DocumentPath)
	if err != nil {
		return domain.Document{}, err
	}
	if cache {
		s.mu.Lock()
		// a change event during the load makes this copy stale
		if s.cache && s.gen == gen {
			s.cached = &doc
		}
		s.mu.Unlock()
	}
	return doc, nil
}

func (s *QAService) invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.gen++
	s.mu.Unlock()
}
