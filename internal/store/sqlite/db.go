// Package sqlite persists candles and the append-only decision journal in a
// single SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"log"

	_ "github.com/mattn/go-sqlite3"
)

// DB wraps the shared SQLite handle.
type DB struct {
	db *sql.DB
}

// Open opens (or creates) the database in WAL mode and applies the schema.
func Open(path string) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer; readers share the same connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Printf("[sqlite] opened database at %s", path)
	return &DB{db: db}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS candles (
			symbol    TEXT    NOT NULL,
			timeframe TEXT    NOT NULL,
			ts        INTEGER NOT NULL,
			open      REAL    NOT NULL,
			high      REAL    NOT NULL,
			low       REAL    NOT NULL,
			close     REAL    NOT NULL,
			volume    REAL    NOT NULL DEFAULT 0,
			PRIMARY KEY (symbol, timeframe, ts)
		);

		CREATE TABLE IF NOT EXISTS decisions (
			id         TEXT    PRIMARY KEY,
			symbol     TEXT    NOT NULL,
			interval   TEXT    NOT NULL,
			ts         INTEGER NOT NULL,
			action     TEXT    NOT NULL,
			approved   INTEGER NOT NULL,
			reasons    TEXT,
			payload    TEXT    NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (symbol, ts)
		);
		CREATE INDEX IF NOT EXISTS idx_decisions_ts ON decisions(ts);
	`)
	return err
}

// Ping checks the connection.
func (d *DB) Ping(ctx context.Context) error { return d.db.PingContext(ctx) }

// SQL returns the underlying handle for health checks.
func (d *DB) SQL() *sql.DB { return d.db }

// Close closes the database.
func (d *DB) Close() error { return d.db.Close() }
