/*
Copyright 2026 The Cohosted Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

     http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package store implements the archive's relational storage: posts,
// projects, comments, their relationships, crawl bookkeeping, and the
// URL→file map, in a single SQLite database file.
package store // import "cohosted.org/pkg/store"

import (
	"database/sql"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"
)

// ErrNoRow reports a lookup that matched nothing. It is sql.ErrNoRows
// itself, so either sentinel matches.
var ErrNoRow = sql.ErrNoRows

// Store owns the database file. Every operation serializes through one
// exclusive lock; SQLite does its own locking underneath, but a single
// writer keeps transaction semantics simple.
type Store struct {
	mu sync.Mutex
	db *sql.DB
}

// Open opens (creating if needed) the database at path, applies
// pragmas, runs pending schema migrations, and then the one-shot data
// migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("could not open database: %w", err)
	}
	// The single mutex above is the real concurrency control; one
	// connection keeps SQLite's view consistent with it.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"pragma foreign_keys = on", "pragma journal_mode = WAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("could not set up database: %w", err)
		}
	}

	s := &Store{db: db}
	if err := s.migrateSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run database migrations: %w", err)
	}
	if err := s.migrateData(); err != nil {
		db.Close()
		return nil, fmt.Errorf("could not run data migrations: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// Vacuum compacts the database file.
func (s *Store) Vacuum() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec("vacuum")
	return err
}

// inTx runs fn inside a transaction under the store lock, rolling back
// on error.
func (s *Store) inTx(fn func(tx *sql.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// queryRow wraps a single-row scan under the store lock.
func (s *Store) queryRow(query string, args []interface{}, dest ...interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.QueryRow(query, args...).Scan(dest...)
}

// migrationState reads a data-migration gate row.
func (s *Store) migrationState(name string) (string, bool, error) {
	var value string
	err := s.queryRow("SELECT value FROM data_migration_states WHERE name = ?", []interface{}{name}, &value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return value, true, nil
}

func setMigrationState(tx *sql.Tx, name, value string) error {
	_, err := tx.Exec(`INSERT INTO data_migration_states (name, value) VALUES (?, ?)
		ON CONFLICT (name) DO UPDATE SET value = excluded.value`, name, value)
	return err
}
