package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/lib/pq"

	"shellog/internal/runner"
)

// PostgresStore implements Store using PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store and applies migrations
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &PostgresStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *PostgresStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS invocations (
		id SERIAL PRIMARY KEY,
		seq BIGINT NOT NULL,
		command TEXT NOT NULL,
		description TEXT,
		exit_code INTEGER NOT NULL,
		started_at TIMESTAMP NOT NULL,
		duration_ms BIGINT NOT NULL,
		record TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// SaveInvocation persists a finished invocation record
func (s *PostgresStore) SaveInvocation(inv *runner.Invocation) error {
	record, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invocation: %w", err)
	}
	query := `INSERT INTO invocations (seq, command, description, exit_code, started_at, duration_ms, record)
	          VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.db.Exec(query, inv.Seq, inv.Command, inv.Description, inv.ExitCode,
		inv.Start(), inv.DurationMillis, string(record))
	return err
}

// History retrieves the most recent invocations, newest first
func (s *PostgresStore) History(limit int) ([]Record, error) {
	query := `SELECT id, seq, command, description, exit_code, started_at, duration_ms, record
	          FROM invocations ORDER BY id DESC LIMIT $1`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}
