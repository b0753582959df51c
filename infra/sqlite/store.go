// Package sqlite is the default gossipcore.Persister collaborator,
// storing the last snapshot of membership and data state in a SQLite
// database so a restarted node can rejoin without re-bootstrapping
// from scratch.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"gossipcore"
)

const schema = `
CREATE TABLE IF NOT EXISTS snapshot (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	members TEXT NOT NULL,
	per_node TEXT NOT NULL,
	shared TEXT NOT NULL
);
`

// Store implements gossipcore.Persister backed by a single-row SQLite
// table holding the most recent snapshot as JSON columns.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) a SQLite database at path,
// configured with WAL journaling and a busy timeout so concurrent
// readers never collide with the engine's periodic snapshot writer.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open %s: %w", path, err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: set busy timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite: create schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Snapshot replaces the stored state with state, encoded as JSON.
func (s *Store) Snapshot(ctx context.Context, state gossipcore.PersistedState) error {
	members, err := json.Marshal(state.Members)
	if err != nil {
		return fmt.Errorf("sqlite: marshal members: %w", err)
	}
	perNode, err := json.Marshal(state.PerNode)
	if err != nil {
		return fmt.Errorf("sqlite: marshal per-node data: %w", err)
	}
	shared, err := json.Marshal(state.Shared)
	if err != nil {
		return fmt.Errorf("sqlite: marshal shared data: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO snapshot (id, members, per_node, shared) VALUES (1, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET members = excluded.members, per_node = excluded.per_node, shared = excluded.shared
	`, string(members), string(perNode), string(shared))
	if err != nil {
		return fmt.Errorf("sqlite: write snapshot: %w", err)
	}
	return nil
}

// Load returns the last stored snapshot, or nil if none has been
// written yet.
func (s *Store) Load(ctx context.Context) (*gossipcore.PersistedState, error) {
	row := s.db.QueryRowContext(ctx, `SELECT members, per_node, shared FROM snapshot WHERE id = 1`)

	var membersJSON, perNodeJSON, sharedJSON string
	if err := row.Scan(&membersJSON, &perNodeJSON, &sharedJSON); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("sqlite: read snapshot: %w", err)
	}

	var state gossipcore.PersistedState
	if err := json.Unmarshal([]byte(membersJSON), &state.Members); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal members: %w", err)
	}
	if err := json.Unmarshal([]byte(perNodeJSON), &state.PerNode); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal per-node data: %w", err)
	}
	if err := json.Unmarshal([]byte(sharedJSON), &state.Shared); err != nil {
		return nil, fmt.Errorf("sqlite: unmarshal shared data: %w", err)
	}
	return &state, nil
}
