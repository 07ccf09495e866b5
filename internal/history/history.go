// Copyright 2026 The skillsd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package history persists an audit trail of executed connector
// operations in a local SQLite database.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Record is a single executed operation.
type Record struct {
	ID         string    `json:"id"`
	Time       time.Time `json:"time"`
	Plugin     string    `json:"plugin"`
	Operation  string    `json:"operation"`
	Success    bool      `json:"success"`
	DurationMS int64     `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
}

// Filter narrows List results. Zero-value fields match everything.
type Filter struct {
	// Plugin matches records for a single plugin.
	Plugin string

	// Operation matches records for a single operation name.
	Operation string
}

// Store persists operation records in a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens the history database at path, creating the file and its
// parent directory if necessary, and runs schema migrations.
func New(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	// SQLite serializes writes, so a single connection avoids lock contention.
	db.SetMaxOpenConns(1)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to history database: %w", err)
	}

	s := &Store{db: db}

	if err := s.configurePragmas(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure pragmas: %w", err)
	}

	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

// configurePragmas sets SQLite configuration options.
func (s *Store) configurePragmas(ctx context.Context) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",        // Concurrent reads while recording
		"PRAGMA busy_timeout=5000",       // 5 second timeout for lock contention
		"PRAGMA synchronous=NORMAL",      // Balance between performance and durability
		"PRAGMA auto_vacuum=INCREMENTAL", // Reclaim space after pruning
	}

	for _, pragma := range pragmas {
		if _, err := s.db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %s: %w", pragma, err)
		}
	}

	return nil
}

// migrate runs database migrations.
func (s *Store) migrate(ctx context.Context) error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS operations (
			id TEXT PRIMARY KEY,
			time TEXT NOT NULL,
			plugin TEXT NOT NULL,
			operation TEXT NOT NULL,
			success INTEGER NOT NULL,
			duration_ms INTEGER NOT NULL,
			error TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_plugin ON operations(plugin)`,
		`CREATE INDEX IF NOT EXISTS idx_operations_time ON operations(time)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.ExecContext(ctx, migration); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

// Record inserts an operation record. ID and Time are assigned when the
// caller leaves them unset.
func (s *Store) Record(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Time.IsZero() {
		rec.Time = time.Now().UTC()
	}

	success := 0
	if rec.Success {
		success = 1
	}

	query := `
		INSERT INTO operations (id, time, plugin, operation, success, duration_ms, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		rec.ID, rec.Time.UTC().Format(time.RFC3339Nano), rec.Plugin, rec.Operation,
		success, rec.DurationMS, nullString(rec.Error),
	)
	if err != nil {
		return fmt.Errorf("failed to record operation: %w", err)
	}

	return nil
}

// List returns records matching the filter, newest first. A limit of
// zero or less returns everything the filter matches.
func (s *Store) List(ctx context.Context, filter Filter, limit int) ([]*Record, error) {
	query := `SELECT id, time, plugin, operation, success, duration_ms, error FROM operations WHERE 1=1`
	args := []any{}

	if filter.Plugin != "" {
		query += " AND plugin = ?"
		args = append(args, filter.Plugin)
	}
	if filter.Operation != "" {
		query += " AND operation = ?"
		args = append(args, filter.Operation)
	}

	// Insertion order is chronological for an append-only log.
	query += " ORDER BY rowid DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		var rec Record
		var recordedAt string
		var success int
		var errStr sql.NullString

		err := rows.Scan(&rec.ID, &recordedAt, &rec.Plugin, &rec.Operation, &success, &rec.DurationMS, &errStr)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}

		rec.Time, _ = time.Parse(time.RFC3339Nano, recordedAt)
		rec.Success = success == 1
		if errStr.Valid {
			rec.Error = errStr.String
		}

		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Prune deletes records older than the retention window and returns the
// number removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)

	result, err := s.db.ExecContext(ctx, "DELETE FROM operations WHERE time < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune operations: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned operations: %w", err)
	}

	return removed, nil
}

// Close closes the underlying database. Safe to call on a nil store.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// nullString returns nil if s is empty, otherwise s.
func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
