// Package sqlitevec provides a vector store on SQLite with the sqlite-vec extension.
package sqlitevec

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"regexp"

	sqlite_vec "github.com/asg017/sqlite-vec-go-bindings/cgo"
	_ "github.com/mattn/go-sqlite3" // Import sqlite3 driver

	"pdfqa/internal/domain"
)

func init() {
	sqlite_vec.Auto()
}

var nonIdent = regexp.MustCompile(`[^A-Za-z0-9_]`)

// Storage keeps one index in a pair of tables: chunk metadata and a vec0 table with
// cosine distance. Several indexes can share one database file under different names.
type Storage struct {
	db        *sql.DB
	name      string
	dimension int
}

// Open opens (or creates) the database at path; an empty path or ":memory:" keeps the
// index in memory for the lifetime of the Storage.
func Open(path, name string) (*Storage, error) {
	if path == "" {
		path = ":memory:"
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise see its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	name = nonIdent.ReplaceAllString(name, "_")
	if name == "" {
		name = "default"
	}
	return &Storage{db: db, name: name}, nil
}

func (s *Storage) chunkTable() string { return "chunks_" + s.name }
func (s *Storage) vecTable() string   { return "vec_" + s.name }

// Init (re)creates the tables for vectors of the given dimension.
func (s *Storage) Init(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return errors.New("invalid dimension")
	}
	if err := s.Clear(ctx); err != nil {
		return err
	}
	chunkQuery := fmt.Sprintf(`
	CREATE TABLE %s (
		id INTEGER PRIMARY KEY,
		document_id TEXT NOT NULL,
		chunk_id TEXT NOT NULL,
		idx INTEGER NOT NULL,
		text TEXT NOT NULL
	)`, s.chunkTable())
	if _, err := s.db.ExecContext(ctx, chunkQuery); err != nil {
		return fmt.Errorf("failed to create chunk table: %w", err)
	}
	vecQuery := fmt.Sprintf(`
	CREATE VIRTUAL TABLE %s USING vec0(
		embedding FLOAT[%d] distance_metric=cosine
	)`, s.vecTable(), dimension)
	if _, err := s.db.ExecContext(ctx, vecQuery); err != nil {
		return fmt.Errorf("failed to create vec table: %w", err)
	}
	s.dimension = dimension
	return nil
}

// Upsert appends chunks and their vectors in one transaction.
func (s *Storage) Upsert(ctx context.Context, chunks []domain.Chunk, vectors [][]float64) error {
	if len(chunks) != len(vectors) {
		return errors.New("chunks and vectors length mismatch")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	chunkQuery := fmt.Sprintf(`INSERT INTO %s (document_id, chunk_id, idx, text) VALUES (?, ?, ?, ?)`, s.chunkTable())
	vecQuery := fmt.Sprintf(`INSERT INTO %s (rowid, embedding) VALUES (?, ?)`, s.vecTable())
	for i, ch := range chunks {
		if len(vectors[i]) != s.dimension {
			return errors.New("vector dimension mismatch")
		}
		res, err := tx.ExecContext(ctx, chunkQuery, ch.DocumentID, ch.ChunkID, ch.Index, ch.Text)
		if err != nil {
			return fmt.Errorf("failed to insert chunk: %w", err)
		}
		rowID, err := res.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to read chunk rowid: %w", err)
		}
		if _, err := tx.ExecContext(ctx, vecQuery, rowID, serializeFloat32Vector(vectors[i])); err != nil {
			return fmt.Errorf("failed to insert chunk vector: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Search performs a KNN query; scores are 1 - cosine distance.
func (s *Storage) Search(ctx context.Context, vector []float64, topK int) ([]domain.SearchResult, error) {
	if topK <= 0 {
		topK = 5
	}
	// sqlite-vec takes k as part of the MATCH constraint
	query := fmt.Sprintf(`
		SELECT c.document_id, c.chunk_id, c.idx, c.text, v.distance
		FROM %s v
		JOIN %s c ON c.id = v.rowid
		WHERE v.embedding MATCH ? AND k = ?
		ORDER BY v.distance
	`, s.vecTable(), s.chunkTable())
	rows, err := s.db.QueryContext(ctx, query, serializeFloat32Vector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to perform vector search: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var results []domain.SearchResult
	for rows.Next() {
		var ch domain.Chunk
		var distance float64
		if err := rows.Scan(&ch.DocumentID, &ch.ChunkID, &ch.Index, &ch.Text, &distance); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		score := 1 - distance
		if math.IsNaN(score) {
			score = 0
		}
		results = append(results, domain.SearchResult{Chunk: ch, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating results: %w", err)
	}
	return results, nil
}

// Clear drops this index's tables.
func (s *Storage) Clear(ctx context.Context) error {
	for _, table := range []string{s.vecTable(), s.chunkTable()} {
		if _, err := s.db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table); err != nil {
			return fmt.Errorf("failed to drop %s: %w", table, err)
		}
	}
	return nil
}

// Close closes the database connection
func (s *Storage) Close() error {
	return s.db.Close()
}

// serializeFloat32Vector converts a vector to the little-endian float32 blob sqlite-vec expects.
func serializeFloat32Vector(vec []float64) []byte {
	buf := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:(i+1)*4], math.Float32bits(float32(v)))
	}
	return buf
}
