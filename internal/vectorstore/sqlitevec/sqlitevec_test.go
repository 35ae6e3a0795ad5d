package sqlitevec

import (
	"context"
	"encoding/binary"
	"math"
	"path/filepath"
	"testing"

	"pdfqa/internal/domain"
)

func setupTestStore(t *testing.T, path, name string) *Storage {
	t.Helper()
	store, err := Open(path, name)
	if err != nil {
		t.Fatalf("Failed to open sqlite-vec store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStorage_SearchSimilar(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, "", "b7c1-uuid")
	if err := store.Init(ctx, 3); err != nil {
		t.Fatalf("Failed to init: %v", err)
	}
	chunks := []domain.Chunk{
		{DocumentID: "d", ChunkID: "d:0", Index: 0, Text: "Thor is the god of thunder."},
		{DocumentID: "d", ChunkID: "d:1", Index: 1, Text: "Iron Man's real name is Tony Stark."},
	}
	vectors := [][]float64{{1, 0, 0}, {0, 1, 0}}
	if err := store.Upsert(ctx, chunks, vectors); err != nil {
		t.Fatalf("Failed to upsert: %v", err)
	}

	results, err := store.Search(ctx, []float64{0.1, 0.9, 0}, 1)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("Expected 1 result, got %d", len(results))
	}
	if results[0].Chunk.ChunkID != "d:1" || results[0].Chunk.Index != 1 {
		t.Errorf("Expected chunk d:1, got %+v", results[0].Chunk)
	}
	if results[0].Score <= 0.9 {
		t.Errorf("Expected high cosine similarity, got %f", results[0].Score)
	}
}

func TestStorage_IndexesShareFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")
	a := setupTestStore(t, path, "a")
	b := setupTestStore(t, path, "b")
	_ = a.Init(ctx, 2)
	_ = b.Init(ctx, 2)
	_ = a.Upsert(ctx, []domain.Chunk{{ChunkID: "a:0", Text: "a"}}, [][]float64{{1, 0}})

	res, err := b.Search(ctx, []float64{1, 0}, 5)
	if err != nil {
		t.Fatalf("Failed to search: %v", err)
	}
	if len(res) != 0 {
		t.Errorf("Index b should not see rows of index a, got %d", len(res))
	}
}

func TestStorage_ClearDropsTables(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, "", "c")
	_ = store.Init(ctx, 2)
	if err := store.Clear(ctx); err != nil {
		t.Fatalf("Failed to clear: %v", err)
	}
	if _, err := store.Search(ctx, []float64{1, 0}, 1); err == nil {
		t.Error("Search after clear should fail because the tables are gone")
	}
	if err := store.Clear(ctx); err != nil {
		t.Errorf("Clearing twice should be a no-op, got %v", err)
	}
}

func TestStorage_DimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := setupTestStore(t, "", "d")
	_ = store.Init(ctx, 3)
	if err := store.Upsert(ctx, []domain.Chunk{{}}, [][]float64{{1}}); err == nil {
		t.Error("Expected dimension mismatch error")
	}
}

func TestSerializeFloat32Vector(t *testing.T) {
	buf := serializeFloat32Vector([]float64{1.5, -2})
	if len(buf) != 8 {
		t.Fatalf("Expected 8 bytes, got %d", len(buf))
	}
	if math.Float32frombits(binary.LittleEndian.Uint32(buf[4:])) != -2 {
		t.Error("Second element not encoded correctly")
	}
}
