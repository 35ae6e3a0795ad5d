// Package openai talks to OpenAI-compatible REST endpoints: embeddings and chat
// completions share the credential lookup, retry policy and error mapping.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"pdfqa/internal/apperrors"
)

const (
	DefaultBaseURL        = "https://api.openai.com/v1"
	DefaultAPIKeyEnv      = "OPENAI_API_KEY"
	DefaultEmbeddingModel = "text-embedding-3-small"
	DefaultChatModel      = "gpt-4o-mini"
)

// Config configures an OpenAI-compatible client.
type Config struct {
	BaseURL    string
	APIKeyEnv  string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	BatchSize  int
}

type client struct {
	baseURL    string
	apiKeyEnv  string
	model      string
	maxRetries int
	http       *http.Client
}

func newClient(cfg Config, defaultModel string) *client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = DefaultAPIKeyEnv
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKeyEnv:  cfg.APIKeyEnv,
		model:      cfg.Model,
		maxRetries: cfg.MaxRetries,
		http:       &http.Client{Timeout: cfg.Timeout},
	}
}

// apiKey resolves the credential at call time so a missing key is reported before
// any request is built.
func (c *client) apiKey() (string, error) {
	key := os.Getenv(c.apiKeyEnv)
	if key == "" {
		return "", apperrors.ErrConfiguration.WithMessage(fmt.Sprintf("missing API key in env %s", c.apiKeyEnv))
	}
	return key, nil
}

// postJSON sends body to path and returns the raw response payload. Throttling and
// server errors are retried up to maxRetries times; everything else fails fast.
func (c *client) postJSON(ctx context.Context, path string, body any) ([]byte, error) {
	key, err := c.apiKey()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}
	url := c.baseURL + path
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			if err := sleep(ctx, lastErr, attempt-1); err != nil {
				return nil, apperrors.ErrBackendUnavailable.WithCause(err)
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+key)

		resp, err := c.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}
		payload, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			lastErr = &statusError{status: resp.Status, retryAfter: resp.Header.Get("Retry-After"), detail: apiMessage(payload)}
			continue
		}
		if resp.StatusCode >= 300 {
			return nil, apperrors.ErrBackendUnavailable.WithCause(&statusError{status: resp.Status, detail: apiMessage(payload)})
		}
		if readErr != nil {
			lastErr = readErr
			continue
		}
		return payload, nil
	}
	return nil, apperrors.ErrBackendUnavailable.WithCause(lastErr)
}

type statusError struct {
	status     string
	retryAfter string
	detail     string
}

func (e *statusError) Error() string {
	if e.detail != "" {
		return fmt.Sprintf("%s: %s", e.status, e.detail)
	}
	return e.status
}

// apiMessage extracts the error message of an OpenAI-style error body.
func apiMessage(payload []byte) string {
	var out struct {
		Error struct {
			Message string `json:"message"`
		} `json:"error"`
	}
	if err := json.Unmarshal(payload, &out); err != nil {
		return ""
	}
	return out.Error.Message
}

func sleep(ctx context.Context, prev error, attempt int) error {
	d := retryDelay(attempt)
	if se, ok := prev.(*statusError); ok && se.retryAfter != "" {
		if secs, err := strconv.Atoi(se.retryAfter); err == nil {
			d = time.Duration(secs) * time.Second
		}
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func retryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	base := 200 * time.Millisecond
	// exponential backoff capped at 5s
	d := base << attempt
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}
