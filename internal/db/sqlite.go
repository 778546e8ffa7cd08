package db

import (
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // Pure Go SQLite driver

	"shellog/internal/runner"
)

// SQLiteStore implements Store using SQLite
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store and applies migrations
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS invocations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		seq INTEGER NOT NULL,
		command TEXT NOT NULL,
		description TEXT,
		exit_code INTEGER NOT NULL,
		started_at DATETIME NOT NULL,
		duration_ms INTEGER NOT NULL,
		record TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(query)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveInvocation persists a finished invocation record
func (s *SQLiteStore) SaveInvocation(inv *runner.Invocation) error {
	record, err := json.Marshal(inv)
	if err != nil {
		return fmt.Errorf("failed to marshal invocation: %w", err)
	}
	query := `INSERT INTO invocations (seq, command, description, exit_code, started_at, duration_ms, record)
	          VALUES (?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.Exec(query, inv.Seq, inv.Command, inv.Description, inv.ExitCode,
		inv.Start(), inv.DurationMillis, string(record))
	return err
}

// History retrieves the most recent invocations, newest first
func (s *SQLiteStore) History(limit int) ([]Record, error) {
	query := `SELECT id, seq, command, description, exit_code, started_at, duration_ms, record
	          FROM invocations ORDER BY id DESC LIMIT ?`
	rows, err := s.db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRecords(rows)
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var results []Record
	for rows.Next() {
		var rec Record
		var raw string
		if err := rows.Scan(&rec.ID, &rec.Seq, &rec.Command, &rec.Description,
			&rec.ExitCode, &rec.StartedAt, &rec.DurationMs, &raw); err != nil {
			return nil, err
		}
		var inv runner.Invocation
		if err := json.Unmarshal([]byte(raw), &inv); err == nil {
			rec.Invocation = &inv
		}
		results = append(results, rec)
	}
	return results, rows.Err()
}
