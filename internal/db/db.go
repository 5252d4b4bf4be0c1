// Package db provides the shared SQLite connection and schema for spectrald.
package db

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection
type DB struct {
	*sql.DB
}

// Open opens the database and initializes the schema
func Open(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &DB{db}, nil
}

// initSchema creates all required tables. Device and room records are
// independent JSON documents; there is deliberately no foreign key between
// them (cross-references are healed by repair passes, not constraints).
func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS devices (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create devices table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS rooms (
			id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create rooms table: %w", err)
	}

	// Per-device channel snapshots captured on power-off and restored on
	// power-on.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS channel_snapshots (
			device_id TEXT PRIMARY KEY,
			payload TEXT NOT NULL,
			created_at INTEGER NOT NULL
		);
	`)
	if err != nil {
		return fmt.Errorf("failed to create channel_snapshots table: %w", err)
	}

	// Scheduled routines keyed by target room.
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS routines (
			id TEXT PRIMARY KEY,
			room_id TEXT NOT NULL,
			payload TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_routines_room ON routines(room_id);
	`)
	if err != nil {
		return fmt.Errorf("failed to create routines table: %w", err)
	}

	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
