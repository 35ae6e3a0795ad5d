package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"pdfqa/internal/apperrors"
)

// Embedder is an OpenAI-compatible embeddings client implementing domain.Embedder.
type Embedder struct {
	*client
	batchSize int
}

// NewEmbedder creates an embeddings client. The API key is read from the
// configured environment variable on every request.
func NewEmbedder(cfg Config) *Embedder {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 32
	}
	return &Embedder{client: newClient(cfg, DefaultEmbeddingModel), batchSize: cfg.BatchSize}
}

// Name returns the identifier of this embedder implementation.
func (e *Embedder) Name() string { return "openai" }

// Prepare is not required for remote embedding.
func (e *Embedder) Prepare([]string) error { return nil }

// Embed returns an embedding vector for the given text. It sends the same
// request body as EmbedBatch with a single input.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float64, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in batches of the configured size, preserving order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	type reqBody struct {
		Input []string `json:"input"`
		Model string   `json:"model"`
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += e.batchSize {
		end := min(start+e.batchSize, len(texts))
		payload, err := e.postJSON(ctx, "/embeddings", reqBody{Input: texts[start:end], Model: e.model})
		if err != nil {
			return nil, err
		}
		vecs, err := decodeEmbeddings(payload)
		if err != nil {
			return nil, apperrors.ErrBackendUnavailable.WithCause(err)
		}
		if len(vecs) != end-start {
			return nil, apperrors.ErrBackendUnavailable.WithCause(fmt.Errorf("expected %d embeddings, got %d", end-start, len(vecs)))
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// decodeEmbeddings accepts the OpenAI shape {"data":[{"index":i,"embedding":[...]}]}
// and the Ollama-native shape {"embedding":[...]}.
func decodeEmbeddings(payload []byte) ([][]float64, error) {
	var openaiOut struct {
		Data []struct {
			Index     int       `json:"index"`
			Embedding []float64 `json:"embedding"`
		} `json:"data"`
	}
	if err := json.Unmarshal(payload, &openaiOut); err == nil && len(openaiOut.Data) > 0 {
		sort.SliceStable(openaiOut.Data, func(i, j int) bool { return openaiOut.Data[i].Index < openaiOut.Data[j].Index })
		vecs := make([][]float64, len(openaiOut.Data))
		for i, d := range openaiOut.Data {
			if len(d.Embedding) == 0 {
				return nil, errors.New("empty embedding")
			}
			vecs[i] = d.Embedding
		}
		return vecs, nil
	}
	var ollamaOut struct {
		Embedding []float64 `json:"embedding"`
	}
	if err := json.Unmarshal(payload, &ollamaOut); err == nil && len(ollamaOut.Embedding) > 0 {
		return [][]float64{ollamaOut.Embedding}, nil
	}
	return nil, errors.New("no embedding returned")
}
