package openai

import (
	"context"
	"encoding/json"

	"pdfqa/internal/apperrors"
)

// Completer sends prompts to the chat completions endpoint with temperature 0.
type Completer struct {
	*client
}

// NewCompleter creates a chat completions client.
func NewCompleter(cfg Config) *Completer {
	return &Completer{client: newClient(cfg, DefaultChatModel)}
}

// Name returns the identifier of this completer implementation.
func (c *Completer) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

// Complete returns the content of the first choice, or "" when the backend
// returned no choices.
func (c *Completer) Complete(ctx context.Context, prompt string) (string, error) {
	payload, err := c.postJSON(ctx, "/chat/completions", chatRequest{
		Model:       c.model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return "", err
	}
	var out struct {
		Choices []struct {
			Message chatMessage `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return "", apperrors.ErrBackendUnavailable.WithCause(err)
	}
	if len(out.Choices) == 0 {
		return "", nil
	}
	return out.Choices[0].Message.Content, nil
}
