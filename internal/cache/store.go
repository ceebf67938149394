package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/lib/pq"
)

const schema = `
CREATE TABLE IF NOT EXISTS ai_requests (
	id BIGSERIAL PRIMARY KEY,
	messages JSONB,
	response TEXT
);`

// Store persists exchanges to PostgreSQL. Rows are append-only; the newest
// row for a transcript wins on lookup.
type Store struct {
	db *sql.DB
}

// OpenStore connects to PostgreSQL and ensures the schema exists.
func OpenStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open exchange store: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping exchange store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize exchange schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Lookup returns the most recent response stored for the transcript.
func (s *Store) Lookup(ctx context.Context, messages string) (string, error) {
	var response string
	err := s.db.QueryRowContext(ctx,
		`SELECT response FROM ai_requests WHERE messages = $1::jsonb ORDER BY id DESC LIMIT 1`,
		messages,
	).Scan(&response)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("lookup exchange: %w", err)
	}
	return response, nil
}

// Insert appends an exchange row.
func (s *Store) Insert(ctx context.Context, messages, response string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO ai_requests (messages, response) VALUES ($1::jsonb, $2)`,
		messages, response,
	)
	if err != nil {
		return fmt.Errorf("insert exchange: %w", err)
	}
	return nil
}

// LoadRecent returns up to limit exchanges, newest first. Used to warm the
// memory layer at startup.
func (s *Store) LoadRecent(ctx context.Context, limit int) ([]Exchange, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT messages::text, response FROM ai_requests ORDER BY id DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("load recent exchanges: %w", err)
	}
	defer rows.Close()

	var exchanges []Exchange
	for rows.Next() {
		var e Exchange
		if err := rows.Scan(&e.Messages, &e.Response); err != nil {
			return nil, fmt.Errorf("scan exchange: %w", err)
		}
		exchanges = append(exchanges, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load recent exchanges: %w", err)
	}
	return exchanges, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}
