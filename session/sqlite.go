package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
)

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	run_id     TEXT PRIMARY KEY,
	request    TEXT NOT NULL,
	body       TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transcripts_created ON transcripts(created_at);
`

// SQLiteStore persists transcripts as JSON rows in a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLiteStore opens (and migrates) the database at path.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open transcript db: %w", err)
	}

	// a single writer avoids SQLITE_BUSY under concurrent saves
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate transcript db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Save upserts t.
func (s *SQLiteStore) Save(ctx context.Context, t Transcript) error {
	body, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode transcript: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO transcripts (run_id, request, body, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET request = excluded.request, body = excluded.body`,
		t.RunID, t.Request, string(body), t.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("save transcript %s: %w", t.RunID, err)
	}

	return nil
}

// Get loads the transcript for runID.
func (s *SQLiteStore) Get(ctx context.Context, runID string) (Transcript, error) {
	var body string

	err := s.db.QueryRowContext(ctx, `SELECT body FROM transcripts WHERE run_id = ?`, runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return Transcript{}, ErrNotFound
	}

	if err != nil {
		return Transcript{}, fmt.Errorf("load transcript %s: %w", runID, err)
	}

	var t Transcript
	if err := json.Unmarshal([]byte(body), &t); err != nil {
		return Transcript{}, fmt.Errorf("decode transcript %s: %w", runID, err)
	}

	if t.Result != nil {
		t.Result.Messages = t.Messages
	}

	return t, nil
}

// List returns the newest transcripts first.
func (s *SQLiteStore) List(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = -1
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, request, created_at FROM transcripts ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list transcripts: %w", err)
	}
	defer rows.Close()

	var out []Summary

	for rows.Next() {
		var (
			sum     Summary
			created time.Time
		)

		if err := rows.Scan(&sum.RunID, &sum.Request, &created); err != nil {
			return nil, fmt.Errorf("scan transcript: %w", err)
		}

		sum.CreatedAt = created
		out = append(out, sum)
	}

	return out, rows.Err()
}
