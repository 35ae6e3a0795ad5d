// Package ollama provides a completion backend backed by a local Ollama server.
package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"pdfqa/internal/apperrors"
)

// Completer implements domain.Completer using the Ollama generate API.
type Completer struct {
	baseURL string
	model   string
	client  *http.Client
}

// NewCompleter creates a new Ollama completer.
func NewCompleter(baseURL, model string, timeout time.Duration) *Completer {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	if model == "" {
		model = "llama3.2"
	}
	if timeout == 0 {
		timeout = 120 * time.Second
	}
	return &Completer{
		baseURL: baseURL,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns the identifier of this completer implementation.
func (c *Completer) Name() string { return "ollama" }

type generateRequest struct {
	Model   string         `json:"model"`
	Prompt  string         `json:"prompt"`
	Stream  bool           `json:"stream"`
	Options map[string]any `json:"options,omitempty"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Complete produces a non-streaming response for prompt.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	jsonData, err := json.Marshal(generateRequest{
		Model:   c.model,
		Prompt:  prompt,
		Stream:  false,
		Options: map[string]any{"temperature": 0},
	})
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.ErrBackendUnavailable.WithCause(fmt.Errorf("calling Ollama: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", apperrors.ErrBackendUnavailable.WithCause(fmt.Errorf("Ollama returned status %d", resp.StatusCode))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", apperrors.ErrBackendUnavailable.WithCause(fmt.Errorf("decoding response: %w", err))
	}
	return genResp.Response, nil
}
