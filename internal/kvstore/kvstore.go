package kvstore

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// OpenDB opens (creating if needed) the service's SQLite database. The
// returned handle is shared by every store that needs durable state.
func OpenDB(dbPath string) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening db: %w", err)
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent writers.
	db.SetMaxOpenConns(1)
	return db, nil
}

// Store is a typed, schema-versioned key-value store. Values are JSON with
// an explicit version column; a version mismatch on read is treated as
// absent, so incompatible old payloads are discarded rather than misread.
type Store struct {
	db *sql.DB
}

// New initializes the kv schema on db and returns the store.
func New(db *sql.DB) (*Store, error) {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			version    INTEGER NOT NULL,
			value      TEXT NOT NULL,
			expiry     INTEGER,
			updated_at DATETIME NOT NULL
		);
	`)
	if err != nil {
		return nil, fmt.Errorf("initializing kv schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Put stores v as JSON under key with the given schema version.
func (s *Store) Put(key string, version int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	_, err = s.db.Exec(`
		INSERT INTO kv (key, version, value, expiry, updated_at)
		VALUES (?, ?, ?, NULL, ?)
		ON CONFLICT(key) DO UPDATE SET
			version = excluded.version,
			value = excluded.value,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, key, version, string(payload), time.Now().UTC())
	return err
}

// Get reads key into out. It returns false when the key is absent or was
// written with a different schema version.
func (s *Store) Get(key string, version int, out any) (bool, error) {
	var (
		gotVersion int
		payload    string
	)
	err := s.db.QueryRow(`SELECT version, value FROM kv WHERE key = ?`, key).
		Scan(&gotVersion, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if gotVersion != version {
		return false, nil
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("decoding %s: %w", key, err)
	}
	return true, nil
}

// Delete removes key.
func (s *Store) Delete(key string) error {
	_, err := s.db.Exec(`DELETE FROM kv WHERE key = ?`, key)
	return err
}

// StoreEntry persists a cache body under key until expiry. Together with
// LoadEntry it satisfies the cache.Persister contract.
func (s *Store) StoreEntry(key string, data []byte, expiry time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO kv (key, version, value, expiry, updated_at)
		VALUES (?, 0, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			expiry = excluded.expiry,
			updated_at = excluded.updated_at
	`, "cache:"+key, string(data), expiry.UnixMilli(), time.Now().UTC())
	return err
}

// LoadEntry reads a persisted cache body. Fine-grained expiry is still the
// caller's job (it owns the clock); rows already stale by wall clock are
// deleted here so the table does not accumulate dead entries.
func (s *Store) LoadEntry(key string) ([]byte, time.Time, bool) {
	var (
		payload  string
		expiryMs sql.NullInt64
	)
	err := s.db.QueryRow(`SELECT value, expiry FROM kv WHERE key = ?`, "cache:"+key).
		Scan(&payload, &expiryMs)
	if err != nil {
		return nil, time.Time{}, false
	}
	var expiry time.Time
	if expiryMs.Valid {
		expiry = time.UnixMilli(expiryMs.Int64)
		if expiry.Before(time.Now()) {
			_, _ = s.db.Exec(`DELETE FROM kv WHERE key = ?`, "cache:"+key)
			return nil, time.Time{}, false
		}
	}
	return []byte(payload), expiry, true
}
