// Package linking provides SQLite-backed persistence for the mapping
// between Telegram user ids and Bitrix24 user ids.
package linking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"
)

// Store wraps an SQLite database holding identity links.
type Store struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex
}

// Open opens the link database at the given path, creating parent
// directories and the schema as needed. WAL mode is enabled for
// concurrent reads.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	if _, err := conn.Exec(`
		CREATE TABLE IF NOT EXISTS links (
			tg_user_id INTEGER PRIMARY KEY,
			bitrix_user_id INTEGER NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		conn.Close()
		return nil, fmt.Errorf("create links table: %w", err)
	}

	return &Store{conn: conn, path: path}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Path returns the path to the database file.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the linked Bitrix user id for a Telegram user, or 0 if
// no link exists.
func (s *Store) Lookup(tgUserID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var bitrixID int
	err := s.conn.QueryRow(
		"SELECT bitrix_user_id FROM links WHERE tg_user_id = ?", tgUserID,
	).Scan(&bitrixID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("lookup link for %d: %w", tgUserID, err)
	}
	return bitrixID, nil
}

// Record saves or replaces the link for a Telegram user.
func (s *Store) Record(tgUserID int64, bitrixUserID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.conn.Exec(`
		INSERT INTO links (tg_user_id, bitrix_user_id, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(tg_user_id) DO UPDATE SET
			bitrix_user_id = excluded.bitrix_user_id,
			updated_at = CURRENT_TIMESTAMP
	`, tgUserID, bitrixUserID)
	if err != nil {
		return fmt.Errorf("record link %d -> %d: %w", tgUserID, bitrixUserID, err)
	}
	return nil
}
