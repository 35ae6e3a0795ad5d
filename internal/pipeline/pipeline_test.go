package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"pdfqa/internal/apperrors"
	"pdfqa/internal/chunker"
	"pdfqa/internal/domain"
	"pdfqa/internal/embedding/tfidf"
	"pdfqa/internal/vectorstore/memory"
)

const heroes = "Thor is the god of thunder. Iron Man's real name is Tony Stark. Hulk is Bruce Banner when calm."

type fakeCompleter struct {
	mu      sync.Mutex
	prompts []string
	reply   func(prompt string) (string, error)
}

func (f *fakeCompleter) Name() string { return "fake" }

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	f.mu.Unlock()
	if f.reply == nil {
		return "ok", nil
	}
	return f.reply(prompt)
}

func (f *fakeCompleter) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type trackedStore struct {
	*memory.Storage
	closed bool
}

func (s *trackedStore) Close() error {
	s.closed = true
	return s.Storage.Close()
}

type harness struct {
	embedders int
	stores    []*trackedStore
	completer *fakeCompleter
	pipeline  *Pipeline
}

func newHarness(opts Options, completer *fakeCompleter) *harness {
	h := &harness{completer: completer}
	h.pipeline = New(
		chunker.NewSentenceChunker(1, 0),
		func() domain.Embedder { h.embedders++; return tfidf.NewEmbedder() },
		func(string) (domain.VectorStore, error) {
			s := &trackedStore{Storage: memory.NewStorage()}
			h.stores = append(h.stores, s)
			return s, nil
		},
		completer,
		opts,
		nil,
	)
	return h
}

func TestAnswer_TonyStark(t *testing.T) {
	c := &fakeCompleter{reply: func(prompt string) (string, error) {
		if strings.Contains(prompt, "Tony Stark") {
			return " Tony Stark\n", nil
		}
		return "I don't know.", nil
	}}
	h := newHarness(Options{TopK: 1}, c)

	got, err := h.pipeline.Answer(context.Background(), heroes, "What is Iron Man's real name?")
	if err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if got != "Tony Stark" {
		t.Errorf("expected Tony Stark, got %q", got)
	}
	prompt := c.prompts[0]
	if strings.Contains(prompt, "thunder") {
		t.Errorf("top-1 retrieval should only include the matching chunk:\n%s", prompt)
	}
	if !strings.HasSuffix(prompt, "Question: What is Iron Man's real name?\nHelpful Answer:") {
		t.Errorf("unexpected prompt tail:\n%s", prompt)
	}
}

func TestAnswer_NoStateAcrossCalls(t *testing.T) {
	c := &fakeCompleter{}
	h := newHarness(Options{}, c)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := h.pipeline.Answer(ctx, heroes, "Who is Thor?"); err != nil {
			t.Fatalf("answer %d failed: %v", i, err)
		}
	}
	if c.calls() != 2 {
		t.Errorf("expected two completion calls, got %d", c.calls())
	}
	if h.embedders != 2 || len(h.stores) != 2 {
		t.Errorf("expected a fresh index per call, got %d embedders and %d stores", h.embedders, len(h.stores))
	}
	for i, s := range h.stores {
		if !s.closed {
			t.Errorf("store %d was not released", i)
		}
	}
}

func TestAnswer_CachedReusesIndexUntilTextChanges(t *testing.T) {
	h := newHarness(Options{Mode: ModeCached}, &fakeCompleter{})
	ctx := context.Background()

	_, _ = h.pipeline.Answer(ctx, heroes, "Who is Thor?")
	_, _ = h.pipeline.Answer(ctx, heroes, "Who is Hulk?")
	if len(h.stores) != 1 {
		t.Fatalf("expected one cached index, got %d", len(h.stores))
	}
	if h.completer.calls() != 2 {
		t.Errorf("completion must still run per call, got %d", h.completer.calls())
	}

	_, _ = h.pipeline.Answer(ctx, heroes+" Loki is Thor's brother.", "Who is Loki?")
	if len(h.stores) != 2 || !h.stores[0].closed {
		t.Errorf("changed text should replace and release the old index")
	}
	_ = h.pipeline.Close()
	if !h.stores[1].closed {
		t.Error("close should release the cached index")
	}
}

func TestAnswer_EmptyDocument(t *testing.T) {
	h := newHarness(Options{}, &fakeCompleter{})
	for _, text := range []string{"", "  \n\t "} {
		_, err := h.pipeline.Answer(context.Background(), text, "anything?")
		if !errors.Is(err, apperrors.ErrEmptyDocument) {
			t.Errorf("expected empty document error for %q, got %v", text, err)
		}
	}
	if h.embedders != 0 || h.completer.calls() != 0 {
		t.Error("no backend may be called for an empty document")
	}
}

func TestAnswer_EmptyCompletion(t *testing.T) {
	c := &fakeCompleter{reply: func(string) (string, error) { return "", nil }}
	got, err := newHarness(Options{}, c).pipeline.Answer(context.Background(), heroes, "Who is Thor?")
	if err != nil || got != "" {
		t.Errorf("expected empty answer without error, got %q, %v", got, err)
	}
}

func TestAnswer_CompleterFailure(t *testing.T) {
	c := &fakeCompleter{reply: func(string) (string, error) { return "", errors.New("connection refused") }}
	h := newHarness(Options{}, c)
	_, err := h.pipeline.Answer(context.Background(), heroes, "Who is Thor?")
	if !errors.Is(err, apperrors.ErrBackendUnavailable) {
		t.Errorf("expected backend unavailable, got %v", err)
	}
	if !h.stores[0].closed {
		t.Error("index must be released on failure")
	}
}

func TestAnswer_UnknownVocabularyFallsBackToLexical(t *testing.T) {
	c := &fakeCompleter{}
	h := newHarness(Options{TopK: 4}, c)
	if _, err := h.pipeline.Answer(context.Background(), heroes, "xyzzy?"); err != nil {
		t.Fatalf("answer failed: %v", err)
	}
	if !strings.Contains(c.prompts[0], "Tony Stark") {
		t.Error("lexical fallback should still provide context")
	}
}

func TestAnswer_ConcurrentCalls(t *testing.T) {
	c := &fakeCompleter{}
	p := New(
		chunker.NewSentenceChunker(1, 0),
		func() domain.Embedder { return tfidf.NewEmbedder() },
		func(string) (domain.VectorStore, error) { return memory.NewStorage(), nil },
		c, Options{}, nil,
	)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Answer(context.Background(), heroes, "Who is Hulk?"); err != nil {
				t.Errorf("answer failed: %v", err)
			}
		}()
	}
	wg.Wait()
	if c.calls() != 8 {
		t.Errorf("expected 8 completions, got %d", c.calls())
	}
}

func TestNormalizeAnswer(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"plain", "  Tony Stark \n", "Tony Stark"},
		{"result field", `{"query": "q", "result": "Tony Stark"}`, "Tony Stark"},
		{"text field", `{"text": " Tony Stark "}`, "Tony Stark"},
		{"json string", `"Tony Stark"`, "Tony Stark"},
		{"object without answer", `{"foo": 1}`, `{"foo": 1}`},
		{"broken json", `{"result": `, `{"result":`},
		{"empty", "   ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeAnswer(tt.raw); got != tt.want {
				t.Errorf("NormalizeAnswer(%q) = %q, want %q", tt.raw, got, tt.want)
			}
		})
	}
}

func TestLexicalSearch_RanksByOverlap(t *testing.T) {
	chunks := []domain.Chunk{
		{ChunkID: "0", Text: "Thor is the god of thunder."},
		{ChunkID: "1", Text: "Hulk is Bruce Banner."},
	}
	res := lexicalSearch(chunks, "bruce banner", 1)
	if len(res) != 1 || res[0].Chunk.ChunkID != "1" {
		t.Errorf("unexpected ranking: %+v", res)
	}
}
