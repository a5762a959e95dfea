// Package sqlite implements the repository interfaces using SQLite as the
// storage backend.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo, which needs a C compiler and makes
// cross-compilation painful. modernc.org/sqlite is a pure Go translation
// of the SQLite sources — works everywhere Go works.
//
// An embedded database is a good fit here: accounts and identities are
// small, write volume is tied to logins and link attempts, and a single
// file keeps deployment down to one binary plus one path.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and implements the repository
// interfaces for accounts and identities.
type DB struct {
	conn *sql.DB
}

// New opens the database at dbPath (":memory:" for tests) and runs
// migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Force an immediate connection so a bad path surfaces here, not on
	// the first query.
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight — important
	// for a web server sharing one database file across requests.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	// Foreign keys are OFF by default in SQLite; the identities table
	// references accounts, so we want referential integrity enforced.
	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Callers should defer this right after
// a successful New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps this safe
// to run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id                  TEXT PRIMARY KEY,
			preferred_source    TEXT NOT NULL DEFAULT '',
			primary_provider_id TEXT NOT NULL DEFAULT '',
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	// provider_user_id is empty for nostr identities (the pubkey is the
	// identifier). The two partial unique indexes below enforce "one
	// provider account links to exactly one platform account" for each
	// identifier style.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS identities (
			id               TEXT PRIMARY KEY,
			account_id       TEXT NOT NULL REFERENCES accounts(id),
			kind             TEXT NOT NULL,
			provider_user_id TEXT NOT NULL DEFAULT '',
			pubkey           TEXT NOT NULL DEFAULT '',
			display_name     TEXT NOT NULL DEFAULT '',
			email            TEXT NOT NULL DEFAULT '',
			avatar_url       TEXT NOT NULL DEFAULT '',
			metadata         TEXT NOT NULL DEFAULT '',
			password_hash    TEXT NOT NULL DEFAULT '',
			linked_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_identities_account_id ON identities(account_id);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_provider
			ON identities(kind, provider_user_id) WHERE provider_user_id != '';
		CREATE UNIQUE INDEX IF NOT EXISTS idx_identities_pubkey
			ON identities(pubkey) WHERE pubkey != '';
	`)
	if err != nil {
		return fmt.Errorf("creating identities table: %w", err)
	}

	return nil
}
