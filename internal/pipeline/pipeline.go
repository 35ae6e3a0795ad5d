// Package pipeline answers a question against the text of one document:
// chunk, embed, index, retrieve, complete.
package pipeline

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"pdfqa/internal/apperrors"
	"pdfqa/internal/domain"
)

// Mode selects the index lifecycle.
type Mode string

const (
	// ModeEphemeral builds a fresh index for every call and drops it afterwards.
	ModeEphemeral Mode = "ephemeral"
	// ModeCached keeps one index per document content and rebuilds it when the content changes.
	ModeCached Mode = "cached"
)

// DefaultTopK is the number of chunks placed into the prompt.
const DefaultTopK = 4

// EmbedderFactory returns a fresh embedder. Embedders such as TF-IDF carry the
// vocabulary of the corpus they were prepared on, so every index gets its own.
type EmbedderFactory func() domain.Embedder

// StoreFactory opens an empty vector store under the given index name.
type StoreFactory func(name string) (domain.VectorStore, error)

// Options tunes retrieval.
type Options struct {
	TopK int
	Mode Mode
}

// Pipeline is safe for concurrent use. In ephemeral mode calls share nothing but
// the completer; in cached mode index builds and lookups are serialized.
type Pipeline struct {
	chunker     domain.Chunker
	newEmbedder EmbedderFactory
	newStore    StoreFactory
	completer   domain.Completer
	topK        int
	mode        Mode
	logger      *slog.Logger

	mu     sync.Mutex
	cached *index
}

// New creates a pipeline.
func New(chunker domain.Chunker, newEmbedder EmbedderFactory, newStore StoreFactory, completer domain.Completer, opts Options, logger *slog.Logger) *Pipeline {
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Mode == "" {
		opts.Mode = ModeEphemeral
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pipeline{
		chunker:     chunker,
		newEmbedder: newEmbedder,
		newStore:    newStore,
		completer:   completer,
		topK:        opts.TopK,
		mode:        opts.Mode,
		logger:      logger,
	}
}

// Answer runs one retrieval-augmented query over text and returns the normalized
// answer. An empty completion yields "" without error.
func (p *Pipeline) Answer(ctx context.Context, text, question string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", apperrors.ErrEmptyDocument
	}
	doc := domain.Document{ID: hashString(text), Content: text}

	var (
		results []domain.SearchResult
		err     error
	)
	if p.mode == ModeCached {
		results, err = p.retrieveCached(ctx, doc, question)
	} else {
		results, err = p.retrieveEphemeral(ctx, doc, question)
	}
	if err != nil {
		return "", err
	}

	prompt := BuildPrompt(results, question)
	p.logger.Debug("calling completer", "completer", p.completer.Name(), "chunks", len(results), "prompt_chars", len(prompt))
	raw, err := p.completer.Complete(ctx, prompt)
	if err != nil {
		return "", asBackendError(err)
	}
	return NormalizeAnswer(raw), nil
}

func (p *Pipeline) retrieveEphemeral(ctx context.Context, doc domain.Document, question string) ([]domain.SearchResult, error) {
	idx, err := p.build(ctx, doc, "q_"+strings.ReplaceAll(uuid.NewString(), "-", ""))
	if err != nil {
		return nil, err
	}
	defer idx.close(p.logger)
	return idx.retrieve(ctx, question, p.topK)
}

func (p *Pipeline) retrieveCached(ctx context.Context, doc domain.Document, question string) ([]domain.SearchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached == nil || p.cached.docID != doc.ID {
		idx, err := p.build(ctx, doc, "doc_"+doc.ID)
		if err != nil {
			return nil, err
		}
		if p.cached != nil {
			p.logger.Info("document changed, replacing index", "old", p.cached.docID, "new", doc.ID)
			p.cached.close(p.logger)
		}
		p.cached = idx
	}
	return p.cached.retrieve(ctx, question, p.topK)
}

// Close releases the cached index, if any.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cached != nil {
		p.cached.close(p.logger)
		p.cached = nil
	}
	return nil
}

func (p *Pipeline) build(ctx context.Context, doc domain.Document, name string) (*index, error) {
	chunks, err := p.chunker.Chunk(doc)
	if err != nil {
		return nil, fmt.Errorf("chunking document: %w", err)
	}
	if len(chunks) == 0 {
		return nil, apperrors.ErrEmptyDocument
	}
	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}

	embedder := p.newEmbedder()
	if err := embedder.Prepare(texts); err != nil {
		return nil, fmt.Errorf("preparing embedder: %w", err)
	}
	vectors, err := embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, asBackendError(err)
	}
	if len(vectors) != len(chunks) {
		return nil, apperrors.ErrBackendUnavailable.WithMessage(
			fmt.Sprintf("embedding backend returned %d vectors for %d chunks", len(vectors), len(chunks)))
	}

	idx := &index{docID: doc.ID, embedder: embedder, chunks: chunks}
	dim := len(vectors[0])
	if dim == 0 {
		return idx, nil
	}
	store, err := p.newStore(name)
	if err != nil {
		return nil, fmt.Errorf("opening vector store: %w", err)
	}
	idx.store = store
	if err := store.Init(ctx, dim); err != nil {
		idx.close(p.logger)
		return nil, fmt.Errorf("initializing vector store: %w", err)
	}
	if err := store.Upsert(ctx, chunks, vectors); err != nil {
		idx.close(p.logger)
		return nil, fmt.Errorf("indexing chunks: %w", err)
	}
	p.logger.Debug("index built", "name", name, "embedder", embedder.Name(), "chunks", len(chunks), "dimension", dim)
	return idx, nil
}

type index struct {
	docID    string
	embedder domain.Embedder
	store    domain.VectorStore
	chunks   []domain.Chunk
}

// retrieve returns the topK chunks for question. When the question shares no
// vocabulary with the index the vector scores carry no signal and the chunks are
// ranked by word overlap instead.
func (x *index) retrieve(ctx context.Context, question string, topK int) ([]domain.SearchResult, error) {
	if x.store == nil {
		return lexicalSearch(x.chunks, question, topK), nil
	}
	vec, err := x.embedder.Embed(ctx, question)
	if err != nil {
		return nil, asBackendError(err)
	}
	if isZero(vec) {
		return lexicalSearch(x.chunks, question, topK), nil
	}
	res, err := x.store.Search(ctx, vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	allZero := true
	for _, r := range res {
		if r.Score > 1e-9 {
			allZero = false
			break
		}
	}
	if allZero {
		return lexicalSearch(x.chunks, question, topK), nil
	}
	return res, nil
}

func (x *index) close(logger *slog.Logger) {
	if x.store == nil {
		return
	}
	if err := x.store.Clear(context.Background()); err != nil {
		logger.Warn("failed to clear index", "error", err)
	}
	if err := x.store.Close(); err != nil {
		logger.Warn("failed to close index", "error", err)
	}
	x.store = nil
}

func isZero(vec []float64) bool {
	for _, v := range vec {
		if v != 0 {
			return false
		}
	}
	return true
}

// asBackendError keeps application errors as they are and classifies anything
// else coming out of an embedder or completer as a backend failure.
func asBackendError(err error) error {
	var appErr *apperrors.Error
	if errors.As(err, &appErr) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return apperrors.ErrBackendUnavailable.WithCause(err)
}

func hashString(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:8])
}
