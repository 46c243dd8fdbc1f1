package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/regchat/cli/internal/db"
)

// PostgresStore persists session history in the same database as the vector
// index, so conversations survive restarts and multiple replicas.
type PostgresStore struct {
	db       *db.DB
	maxTurns int
}

// NewPostgresStore creates a Postgres-backed store trimming each session to
// maxTurns messages.
func NewPostgresStore(database *db.DB, maxTurns int) *PostgresStore {
	return &PostgresStore{db: database, maxTurns: maxTurns}
}

// EnsureSchema creates the session tables.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	pool := s.db.Pool()

	_, err := pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS sessions (
			id text PRIMARY KEY,
			created_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create sessions table: %w", err)
	}

	_, err = pool.Exec(ctx,
		`CREATE TABLE IF NOT EXISTS session_turns (
			id bigint GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
			session_id text NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			role text NOT NULL,
			content text NOT NULL,
			sources jsonb,
			created_at timestamptz NOT NULL DEFAULT now()
		)`)
	if err != nil {
		return fmt.Errorf("failed to create session_turns table: %w", err)
	}
	return nil
}

// History returns the session's turns in append order.
func (s *PostgresStore) History(ctx context.Context, sessionID string) ([]Turn, error) {
	rows, err := s.db.Pool().Query(ctx,
		`SELECT role, content, sources, created_at
		 FROM session_turns WHERE session_id = $1 ORDER BY id`,
		sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	defer rows.Close()

	turns := []Turn{}
	for rows.Next() {
		var t Turn
		var sources []byte
		if err := rows.Scan(&t.Role, &t.Text, &sources, &t.Timestamp); err != nil {
			return nil, fmt.Errorf("failed to scan turn: %w", err)
		}
		if len(sources) > 0 {
			if err := json.Unmarshal(sources, &t.Sources); err != nil {
				return nil, fmt.Errorf("failed to decode turn sources: %w", err)
			}
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// AppendExchange writes both turns in one transaction and trims the session
// to the bounded window. If the transaction fails nothing is persisted.
func (s *PostgresStore) AppendExchange(ctx context.Context, sessionID string, user, assistant Turn) error {
	tx, err := s.db.Pool().Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx,
		`INSERT INTO sessions (id) VALUES ($1) ON CONFLICT (id) DO NOTHING`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to create session: %w", err)
	}

	for _, t := range []Turn{user, assistant} {
		var sources []byte
		if len(t.Sources) > 0 {
			sources, err = json.Marshal(t.Sources)
			if err != nil {
				return fmt.Errorf("failed to encode turn sources: %w", err)
			}
		}
		_, err = tx.Exec(ctx,
			`INSERT INTO session_turns (session_id, role, content, sources, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			sessionID, t.Role, t.Text, sources, t.Timestamp)
		if err != nil {
			return fmt.Errorf("failed to append turn: %w", err)
		}
	}

	if s.maxTurns > 0 {
		_, err = tx.Exec(ctx,
			`DELETE FROM session_turns
			 WHERE session_id = $1 AND id NOT IN (
				SELECT id FROM session_turns WHERE session_id = $1
				ORDER BY id DESC LIMIT $2
			 )`,
			sessionID, s.maxTurns)
		if err != nil {
			return fmt.Errorf("failed to trim history: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Clear deletes the session and its turns. Unknown ids are a no-op.
func (s *PostgresStore) Clear(ctx context.Context, sessionID string) error {
	_, err := s.db.Pool().Exec(ctx, `DELETE FROM sessions WHERE id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("failed to clear session: %w", err)
	}
	return nil
}

// List returns all session ids.
func (s *PostgresStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.Pool().Query(ctx, `SELECT id FROM sessions ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan session id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
