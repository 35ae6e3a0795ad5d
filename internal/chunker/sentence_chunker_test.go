package chunker

import (
	"testing"

	"pdfqa/internal/domain"
)

func TestSentenceChunker_Windows(t *testing.T) {
	c := NewSentenceChunker(2, 1)
	doc := domain.Document{ID: "doc", Content: "One. Two! Three? Four."}

	chunks, err := c.Chunk(doc)
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}
	want := []string{"One. Two!", "Two! Three?", "Three? Four."}
	if len(chunks) != len(want) {
		t.Fatalf("expected %d chunks, got %d", len(want), len(chunks))
	}
	for i, ch := range chunks {
		if ch.Text != want[i] {
			t.Errorf("chunk %d: got %q, want %q", i, ch.Text, want[i])
		}
		if ch.Index != i {
			t.Errorf("chunk %d: unexpected index %d", i, ch.Index)
		}
		if ch.DocumentID != "doc" {
			t.Errorf("chunk %d: unexpected document id %q", i, ch.DocumentID)
		}
	}
	if chunks[1].ChunkID != "doc:1" {
		t.Errorf("unexpected chunk id %q", chunks[1].ChunkID)
	}
}

func TestSentenceChunker_KeepsTrailingText(t *testing.T) {
	c := NewSentenceChunker(5, 0)
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: "Iron Man's real name is Tony Stark. Page footer without dot"})
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("expected 1 chunk, got %d", len(chunks))
	}
	if chunks[0].Text != "Iron Man's real name is Tony Stark. Page footer without dot" {
		t.Errorf("unexpected text %q", chunks[0].Text)
	}
}

func TestSentenceChunker_Empty(t *testing.T) {
	c := NewSentenceChunker(3, 1)
	chunks, err := c.Chunk(domain.Document{ID: "d", Content: "   \n\t "})
	if err != nil {
		t.Fatalf("chunk failed: %v", err)
	}
	if len(chunks) != 0 {
		t.Errorf("expected no chunks, got %d", len(chunks))
	}
}

func TestSentenceChunker_OverlapClamped(t *testing.T) {
	c := NewSentenceChunker(1, 3)
	chunks, _ := c.Chunk(domain.Document{ID: "d", Content: "A. B. C."})
	if len(chunks) != 3 {
		t.Errorf("expected 3 chunks, got %d", len(chunks))
	}
}
