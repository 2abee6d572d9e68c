// Package store provides persistent storage for groups, buyers, schedules,
// transactions, and users using SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Store provides persistent storage for the distributor daemon.
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.RWMutex
}

// Config holds store configuration.
type Config struct {
	DataDir string
}

// New creates a new Store instance, opening (and creating, if absent) the
// SQLite database under cfg.DataDir.
func New(cfg *Config) (*Store, error) {
	dataDir := expandPath(cfg.DataDir)

	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "splgiver.db")

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// SQLite only supports one writer; the store is the single owner of it.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{
		db:     db,
		dbPath: dbPath,
	}

	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// initSchema creates all database tables.
func (s *Store) initSchema() error {
	schema := `
	-- Group: one cohort with a single vesting policy.
	CREATE TABLE IF NOT EXISTS groups (
		id                          INTEGER PRIMARY KEY,
		spl_share_percent           REAL NOT NULL,
		spl_total_lamports          INTEGER NOT NULL,
		spl_price_lamports          INTEGER NOT NULL,
		initial_unlock_percent      REAL NOT NULL,
		unlock_interval_seconds     INTEGER NOT NULL,
		unlock_percent_per_interval REAL NOT NULL
	);

	-- Buyer: one wallet bound to one group.
	CREATE TABLE IF NOT EXISTS buyers (
		wallet                TEXT PRIMARY KEY,
		paid_lamports         INTEGER NOT NULL,
		group_id              INTEGER NOT NULL,
		received_spl_lamports INTEGER NOT NULL DEFAULT 0,
		received_percent      REAL NOT NULL DEFAULT 0,
		pending_spl_lamports  INTEGER NOT NULL DEFAULT 0,
		error                 TEXT,
		created_at            INTEGER NOT NULL,
		updated_at            INTEGER NOT NULL,
		FOREIGN KEY (group_id) REFERENCES groups(id)
	);

	CREATE INDEX IF NOT EXISTS idx_buyers_group ON buyers(group_id);

	-- Schedule: one planned tranche.
	CREATE TABLE IF NOT EXISTS schedules (
		id             INTEGER PRIMARY KEY AUTOINCREMENT,
		group_id       INTEGER NOT NULL,
		buyer_wallet   TEXT NOT NULL,
		scheduled_at   INTEGER NOT NULL,
		amount_lamports INTEGER NOT NULL,
		percent        REAL NOT NULL,
		status         TEXT NOT NULL DEFAULT 'pending',
		error_message  TEXT,
		created_at     INTEGER NOT NULL,
		updated_at     INTEGER NOT NULL,
		FOREIGN KEY (group_id) REFERENCES groups(id),
		FOREIGN KEY (buyer_wallet) REFERENCES buyers(wallet)
	);

	CREATE INDEX IF NOT EXISTS idx_schedules_due ON schedules(status, scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_schedules_buyer_group ON schedules(buyer_wallet, group_id);
	CREATE INDEX IF NOT EXISTS idx_schedules_status ON schedules(status);

	-- Transaction: an audit record per transfer attempt. Append-only.
	CREATE TABLE IF NOT EXISTS transactions (
		id              INTEGER PRIMARY KEY AUTOINCREMENT,
		buyer_wallet    TEXT NOT NULL,
		group_id        INTEGER NOT NULL,
		amount_lamports INTEGER NOT NULL,
		percent         REAL NOT NULL,
		status          TEXT NOT NULL,
		error_message   TEXT,
		sent_at         INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transactions_buyer ON transactions(buyer_wallet);

	-- User: admin API principal. Password hashing and JWT issuance live
	-- outside the core; this table only persists what it is handed.
	CREATE TABLE IF NOT EXISTS users (
		id            INTEGER PRIMARY KEY AUTOINCREMENT,
		username      TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		created_at    INTEGER NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
