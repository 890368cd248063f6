package wizard

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists snapshots in a SQLite table.
type SQLiteStore struct {
	db    *sql.DB
	table string
}

// NewSQLiteStore builds a store over db using table (default
// "wizard_snapshots").
func NewSQLiteStore(db *sql.DB, table string) *SQLiteStore {
	if strings.TrimSpace(table) == "" {
		table = "wizard_snapshots"
	}
	return &SQLiteStore{db: db, table: table}
}

// OpenSQLiteStore opens (or creates) a database file with the pure Go driver.
// Use ":memory:" for a throwaway store.
func OpenSQLiteStore(ctx context.Context, dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// An in-memory database lives per connection.
	db.SetMaxOpenConns(1)
	store := NewSQLiteStore(db, "")
	if err := store.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Load reads the snapshot under key.
func (s *SQLiteStore) Load(ctx context.Context, key string) (*Snapshot, error) {
	if s == nil || s.db == nil {
		return nil, errors.New("sqlite store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, nil
	}

	q := fmt.Sprintf(`SELECT step, data, history, updated_at FROM %s WHERE session_key = ?`, s.table)
	var snap Snapshot
	var dataJSON, historyJSON, updatedAtStr string
	err := s.db.QueryRowContext(ctx, q, key).Scan(&snap.Step, &dataJSON, &historyJSON, &updatedAtStr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if dataJSON != "" {
		if err := json.Unmarshal([]byte(dataJSON), &snap.Data); err != nil {
			return nil, fmt.Errorf("decode snapshot data: %w", err)
		}
	}
	if historyJSON != "" {
		if err := json.Unmarshal([]byte(historyJSON), &snap.History); err != nil {
			return nil, fmt.Errorf("decode snapshot history: %w", err)
		}
	}
	if ts, parseErr := time.Parse(time.RFC3339Nano, updatedAtStr); parseErr == nil {
		snap.UpdatedAt = ts
	}
	return &snap, nil
}

// Save upserts the snapshot under key.
func (s *SQLiteStore) Save(ctx context.Context, key string, snap Snapshot) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("snapshot key required")
	}
	dataJSON, err := json.Marshal(snap.Data)
	if err != nil {
		return err
	}
	historyJSON, err := json.Marshal(snap.History)
	if err != nil {
		return err
	}
	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}
	q := fmt.Sprintf(`INSERT INTO %s (session_key, step, data, history, updated_at, updated_unix)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_key) DO UPDATE SET
			step = excluded.step,
			data = excluded.data,
			history = excluded.history,
			updated_at = excluded.updated_at,
			updated_unix = excluded.updated_unix`, s.table)
	_, err = s.db.ExecContext(ctx, q, key, snap.Step, string(dataJSON), string(historyJSON),
		updatedAt.UTC().Format(time.RFC3339Nano), updatedAt.UnixNano())
	return err
}

// Delete removes the snapshot under key.
func (s *SQLiteStore) Delete(ctx context.Context, key string) error {
	if s == nil || s.db == nil {
		return errors.New("sqlite store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE session_key = ?`, s.table)
	_, err := s.db.ExecContext(ctx, q, strings.TrimSpace(key))
	return err
}

// Prune deletes snapshots updated before the cutoff.
func (s *SQLiteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	if s == nil || s.db == nil {
		return 0, errors.New("sqlite store not configured")
	}
	if err := s.ensureSchema(ctx); err != nil {
		return 0, err
	}
	q := fmt.Sprintf(`DELETE FROM %s WHERE updated_unix < ?`, s.table)
	result, err := s.db.ExecContext(ctx, q, before.UnixNano())
	if err != nil {
		return 0, err
	}
	rows, _ := result.RowsAffected()
	return int(rows), nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		session_key TEXT PRIMARY KEY,
		step TEXT NOT NULL,
		data TEXT NOT NULL,
		history TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_unix INTEGER NOT NULL
	)`, s.table)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return err
	}
	return nil
}
