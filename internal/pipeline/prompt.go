package pipeline

import (
	"encoding/json"
	"strings"

	"pdfqa/internal/domain"
)

const promptTemplate = `Use the following pieces of context to answer the question at the end. If you don't know the answer, just say that you don't know, don't try to make up an answer.

{context}

Question: {question}
Helpful Answer:`

// BuildPrompt stuffs the retrieved chunks, best first, into one completion prompt.
func BuildPrompt(results []domain.SearchResult, question string) string {
	parts := make([]string, 0, len(results))
	for _, r := range results {
		if text := strings.TrimSpace(r.Chunk.Text); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.NewReplacer(
		"{context}", strings.Join(parts, "\n\n"),
		"{question}", question,
	).Replace(promptTemplate)
}

// NormalizeAnswer turns a raw completion into plain text. Backends that wrap
// their answer in a JSON object carry it in "result" or "text"; a JSON string is
// unquoted; anything else is returned trimmed.
func NormalizeAnswer(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return ""
	}
	switch trimmed[0] {
	case '{':
		var obj map[string]any
		if err := json.Unmarshal([]byte(trimmed), &obj); err != nil {
			return trimmed
		}
		for _, key := range []string{"result", "text"} {
			if v, ok := obj[key].(string); ok {
				return strings.TrimSpace(v)
			}
		}
	case '"':
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return strings.TrimSpace(s)
		}
	}
	return trimmed
}
