package sqlite

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the SQLite database connection with thread-safe access.
type DB struct {
	conn *sql.DB
	mu   sync.RWMutex
}

// New creates and initializes a new SQLite database connection.
func New(dbPath string) (*DB, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	conn, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)
	conn.SetConnMaxLifetime(0)

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return db, nil
}

// migrate creates the necessary tables if they don't exist.
func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS cameras (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		camera_id TEXT NOT NULL UNIQUE,
		location TEXT NOT NULL DEFAULT '',
		ward TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS legal_locations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		ward TEXT NOT NULL DEFAULT '',
		city TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS dumping_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL UNIQUE,
		camera_id TEXT NOT NULL,
		location TEXT NOT NULL DEFAULT '',
		legal_location_id INTEGER,
		timestamp DATETIME NOT NULL,
		actor TEXT NOT NULL DEFAULT '',
		video_key TEXT NOT NULL DEFAULT '',
		plate_processed INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		FOREIGN KEY (legal_location_id) REFERENCES legal_locations(id) ON DELETE SET NULL
	);

	CREATE TABLE IF NOT EXISTS event_plates (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_id TEXT NOT NULL,
		plate_id INTEGER NOT NULL,
		image_key TEXT NOT NULL DEFAULT '',
		confidence REAL DEFAULT 0,
		frame_time TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (event_id) REFERENCES dumping_events(event_id) ON DELETE CASCADE
	);

	CREATE INDEX IF NOT EXISTS idx_events_camera ON dumping_events(camera_id);
	CREATE INDEX IF NOT EXISTS idx_events_timestamp ON dumping_events(timestamp);
	CREATE INDEX IF NOT EXISTS idx_plates_event_id ON event_plates(event_id);
	`

	_, err := db.conn.Exec(schema)
	return err
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Conn returns the underlying database connection for use by repositories.
func (db *DB) Conn() *sql.DB {
	return db.conn
}

// Lock acquires a write lock.
func (db *DB) Lock() {
	db.mu.Lock()
}

// Unlock releases the write lock.
func (db *DB) Unlock() {
	db.mu.Unlock()
}

// RLock acquires a read lock.
func (db *DB) RLock() {
	db.mu.RLock()
}

// RUnlock releases the read lock.
func (db *DB) RUnlock() {
	db.mu.RUnlock()
}
