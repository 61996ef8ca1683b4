package db

import (
	"database/sql"

	_ "github.com/mattn/go-sqlite3"
)

// MaxInFilter is the hard cap on ids in a single membership filter,
// mirroring the remote query limit the rest of the system partitions
// around.
const MaxInFilter = 10

// DB is a wrapper around sql.DB plus the live-watch hub
type DB struct {
	*sql.DB
	hub *watchHub
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, err
	}

	// Test the connection
	if err = sqlDB.Ping(); err != nil {
		return nil, err
	}

	// a single connection keeps watch notifications ordered with writes
	sqlDB.SetMaxOpenConns(1)

	return &DB{DB: sqlDB, hub: newWatchHub()}, nil
}

// Initialize sets up the database tables
func (db *DB) Initialize() error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL,
		email TEXT UNIQUE,
		created_at TIMESTAMP,
		updated_at TIMESTAMP
	)`)
	if err != nil {
		return err
	}

	// one row per user, fully overwritten on each upsert
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS presence (
		uid TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		track TEXT NOT NULL,
		artist TEXT NOT NULL,
		service TEXT NOT NULL,
		timestamp INTEGER NOT NULL,
		art TEXT,
		art_url TEXT
	)`)
	if err != nil {
		return err
	}

	// history lives under the owning user's presence document
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS history (
		id TEXT PRIMARY KEY,
		owner_uid TEXT NOT NULL,
		track TEXT NOT NULL,
		artist TEXT NOT NULL,
		service TEXT NOT NULL,
		ts INTEGER NOT NULL,
		art TEXT,
		art_url TEXT
	)`)
	if err != nil {
		return err
	}
	_, err = db.Exec(`CREATE INDEX IF NOT EXISTS idx_history_owner_ts ON history (owner_uid, ts DESC)`)
	if err != nil {
		return err
	}

	// one row per friendship edge under the owner's namespace
	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS friends (
		owner_uid TEXT NOT NULL,
		uid TEXT NOT NULL,
		nickname TEXT NOT NULL,
		PRIMARY KEY (owner_uid, uid)
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS profile_meta (
		uid TEXT PRIMARY KEY,
		photo_url TEXT,
		photo_b64 TEXT
	)`)
	if err != nil {
		return err
	}

	_, err = db.Exec(`
	CREATE TABLE IF NOT EXISTS prefs (
		uid TEXT NOT NULL,
		key TEXT NOT NULL,
		value TEXT NOT NULL,
		PRIMARY KEY (uid, key)
	)`)
	if err != nil {
		return err
	}

	return nil
}
