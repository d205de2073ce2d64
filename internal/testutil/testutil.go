// Copyright (c) 2025-2026 Oleg Ivanchenko
// SPDX-License-Identifier: GPL-3.0-or-later

// Package testutil provides shared test helpers for the CI ledger.
package testutil

import (
	"database/sql"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/olegiv/ciledger-go/internal/store"

	_ "github.com/mattn/go-sqlite3" // cgo SQLite driver used by tests
)

// TestLogger creates a silent test logger that only outputs warnings and errors.
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

// TestDB creates a temporary test database with all migrations applied.
// Returns the database and a cleanup function that should be deferred.
func TestDB(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "ciledger-test.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_busy_timeout=5000&_fk=1")
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}

	if err := store.Migrate(db); err != nil {
		_ = db.Close()
		t.Fatalf("Migrate: %v", err)
	}

	return db, func() {
		_ = db.Close()
	}
}

// TestStore creates a store backed by a temporary migrated database.
func TestStore(t *testing.T) (*store.Store, func()) {
	t.Helper()

	db, cleanup := TestDB(t)
	return store.New(db), cleanup
}
