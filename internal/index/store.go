// Package index stores chunk vectors in Postgres with the pgvector extension
// and serves nearest-neighbor queries over them.
package index

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"

	"github.com/regchat/cli/internal/chunk"
	"github.com/regchat/cli/internal/db"
	"github.com/regchat/cli/internal/retrieve"
)

// ErrModelMismatch is returned when the index was built with a different
// embedding model or dimension than the one configured. Querying across a
// mismatch returns garbage similarities, so this is fatal, not degradable.
var ErrModelMismatch = errors.New("index: embedding model mismatch")

var namePattern = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

// Store is a pgvector-backed chunk index. The index name becomes the table
// prefix, so several indexes can share one database.
type Store struct {
	db   *db.DB
	name string
}

// New creates a store for the named index. The name is used as a SQL
// identifier prefix and is restricted to [a-z][a-z0-9_]*.
func New(database *db.DB, name string) (*Store, error) {
	if !namePattern.MatchString(name) {
		return nil, fmt.Errorf("index: invalid index name %q", name)
	}
	return &Store{db: database, name: name}, nil
}

// EnsureSchema creates the pgvector extension, the chunks table sized for the
// given embedding dimension, and the metadata row recording which model built
// this index. If the index already exists under a different model or
// dimension, ErrModelMismatch is returned.
func (s *Store) EnsureSchema(ctx context.Context, model string, dimensions int) error {
	pool := s.db.Pool()

	if _, err := pool.Exec(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("failed to create pgvector extension (install it or run as superuser): %w", err)
	}

	_, err := pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s_meta (
			id int PRIMARY KEY CHECK (id = 1),
			model text NOT NULL,
			dimensions int NOT NULL
		)`, s.name))
	if err != nil {
		return fmt.Errorf("failed to create metadata table: %w", err)
	}

	_, err = pool.Exec(ctx, fmt.Sprintf(
		`CREATE TABLE IF NOT EXISTS %s_chunks (
			id text PRIMARY KEY,
			document_id text NOT NULL,
			source text NOT NULL,
			page_number int NOT NULL,
			seq int NOT NULL,
			content text NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at timestamptz NOT NULL DEFAULT now()
		)`, s.name, dimensions))
	if err != nil {
		return fmt.Errorf("failed to create chunks table: %w", err)
	}

	_, err = pool.Exec(ctx, fmt.Sprintf(
		`INSERT INTO %s_meta (id, model, dimensions) VALUES (1, $1, $2)
		 ON CONFLICT (id) DO NOTHING`, s.name),
		model, dimensions)
	if err != nil {
		return fmt.Errorf("failed to record index metadata: %w", err)
	}

	return s.VerifyModel(ctx, model, dimensions)
}

// VerifyModel checks that the stored index metadata matches the configured
// embedding model and dimension. Must be called before querying.
func (s *Store) VerifyModel(ctx context.Context, model string, dimensions int) error {
	var storedModel string
	var storedDims int
	err := s.db.Pool().QueryRow(ctx,
		fmt.Sprintf(`SELECT model, dimensions FROM %s_meta WHERE id = 1`, s.name),
	).Scan(&storedModel, &storedDims)
	if err == pgx.ErrNoRows {
		return fmt.Errorf("index %q has no metadata, run ingestion first: %w", s.name, ErrModelMismatch)
	}
	if err != nil {
		return fmt.Errorf("failed to read index metadata: %w", err)
	}
	if storedModel != model || storedDims != dimensions {
		return fmt.Errorf("index %q was built with %s/%d but %s/%d is configured: %w",
			s.name, storedModel, storedDims, model, dimensions, ErrModelMismatch)
	}
	return nil
}

// Upsert writes (chunk, vector) pairs keyed by chunk id. Re-upserting an id
// overwrites the previous row. Failed ids are returned individually so the
// caller can retry them without repeating the whole batch.
func (s *Store) Upsert(ctx context.Context, chunks []chunk.Chunk, vectors [][]float32) (failed []string, err error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("index: %d chunks but %d vectors", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil, nil
	}

	sql := fmt.Sprintf(
		`INSERT INTO %s_chunks (id, document_id, source, page_number, seq, content, embedding)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 ON CONFLICT (id) DO UPDATE SET
			document_id = EXCLUDED.document_id,
			source = EXCLUDED.source,
			page_number = EXCLUDED.page_number,
			seq = EXCLUDED.seq,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding`, s.name)

	batch := &pgx.Batch{}
	for i, c := range chunks {
		batch.Queue(sql, c.ID, c.DocumentID, c.Source, c.PageNumber, c.Seq, c.Text,
			pgvector.NewVector(vectors[i]))
	}

	br := s.db.Pool().SendBatch(ctx, batch)
	defer br.Close()

	var firstErr error
	for i := range chunks {
		if _, execErr := br.Exec(); execErr != nil {
			failed = append(failed, chunks[i].ID)
			if firstErr == nil {
				firstErr = execErr
			}
		}
	}
	if firstErr != nil {
		return failed, fmt.Errorf("failed to upsert %d of %d chunks: %w", len(failed), len(chunks), firstErr)
	}
	return nil, nil
}

// Search returns the topK nearest chunks by cosine distance. Score is
// 1 - distance so that higher means more similar. Equal distances are
// ordered by ascending chunk id for reproducible results.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) ([]retrieve.Match, error) {
	rows, err := s.db.Pool().Query(ctx, fmt.Sprintf(
		`SELECT id, source, page_number, content, 1 - (embedding <=> $1) AS score
		 FROM %s_chunks
		 ORDER BY embedding <=> $1 ASC, id ASC
		 LIMIT $2`, s.name),
		pgvector.NewVector(vector), topK)
	if err != nil {
		return nil, fmt.Errorf("failed to search chunks: %w", err)
	}
	defer rows.Close()

	var matches []retrieve.Match
	for rows.Next() {
		var m retrieve.Match
		if err := rows.Scan(&m.ChunkID, &m.Source, &m.PageNumber, &m.Text, &m.Score); err != nil {
			return nil, fmt.Errorf("failed to scan match: %w", err)
		}
		matches = append(matches, m)
	}
	return matches, rows.Err()
}

// Count returns the number of stored chunks, used by health reporting.
func (s *Store) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.Pool().QueryRow(ctx,
		fmt.Sprintf(`SELECT count(*) FROM %s_chunks`, s.name)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return n, nil
}

// DeleteDocument removes every chunk of a document, used when re-ingesting a
// changed file under a new document id.
func (s *Store) DeleteDocument(ctx context.Context, documentID string) error {
	_, err := s.db.Pool().Exec(ctx,
		fmt.Sprintf(`DELETE FROM %s_chunks WHERE document_id = $1`, s.name), documentID)
	if err != nil {
		return fmt.Errorf("failed to delete document chunks: %w", err)
	}
	return nil
}
