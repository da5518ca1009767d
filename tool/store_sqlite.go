package tool

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteStoreSchema = `
CREATE TABLE IF NOT EXISTS dispatches (
	id TEXT PRIMARY KEY,
	tool_id TEXT NOT NULL,
	started_at TEXT NOT NULL,
	payload BLOB NOT NULL
);
CREATE INDEX IF NOT EXISTS dispatches_started_at ON dispatches (started_at DESC);`

const defaultSQLiteStoreDB = "kit.db"

// SQLiteStoreConfig configures the SQLite-backed history store.
type SQLiteStoreConfig struct {
	DSN string
}

// SQLiteStore persists dispatch history in SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// DefaultSQLitePath returns ~/.kit/kit.db.
func DefaultSQLitePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tool: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultSQLiteStoreDB), nil
}

// NewSQLiteStore opens (or creates) a SQLite-backed history store.
func NewSQLiteStore(cfg SQLiteStoreConfig) (*SQLiteStore, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("tool: sqlite store dsn is required")
	}
	if !strings.HasPrefix(cfg.DSN, "file:") && cfg.DSN != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0o750); err != nil {
			return nil, fmt.Errorf("tool: sqlite store create dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite store open: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store set WAL mode: %w", err)
	}

	if _, err := db.Exec(sqliteStoreSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("tool: sqlite store create schema: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// List returns all records, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]DispatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.db == nil {
		return nil, errors.New("tool: sqlite store is nil")
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT payload
FROM dispatches
ORDER BY started_at DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("tool: sqlite list dispatches: %w", err)
	}
	defer rows.Close()

	var records []DispatchRecord
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("tool: sqlite scan dispatch: %w", err)
		}
		rec, err := decodeDispatchRecord(payload)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("tool: sqlite dispatch rows: %w", err)
	}

	// started_at text ordering is lexical; re-sort on the parsed times.
	sortRecords(records)
	return records, nil
}

// Get returns a record by id.
func (s *SQLiteStore) Get(ctx context.Context, id string) (DispatchRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return DispatchRecord{}, false, err
	}
	if s == nil || s.db == nil {
		return DispatchRecord{}, false, errors.New("tool: sqlite store is nil")
	}

	row := s.db.QueryRowContext(ctx, `
SELECT payload
FROM dispatches
WHERE id = ?`, id)

	var payload []byte
	if err := row.Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return DispatchRecord{}, false, nil
		}
		return DispatchRecord{}, false, fmt.Errorf("tool: sqlite get dispatch: %w", err)
	}

	rec, err := decodeDispatchRecord(payload)
	if err != nil {
		return DispatchRecord{}, false, err
	}
	return rec, true, nil
}

// Upsert inserts or replaces a record by id.
func (s *SQLiteStore) Upsert(ctx context.Context, rec DispatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("tool: sqlite store is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("tool: dispatch record id is required")
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("tool: sqlite encode dispatch: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO dispatches (id, tool_id, started_at, payload)
VALUES (?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	tool_id = excluded.tool_id,
	started_at = excluded.started_at,
	payload = excluded.payload`,
		rec.ID,
		rec.ToolID,
		rec.StartedAt.UTC().Format(time.RFC3339Nano),
		payload,
	)
	if err != nil {
		return fmt.Errorf("tool: sqlite upsert dispatch: %w", err)
	}
	return nil
}

// Delete removes a record by id. Deleting a missing id is a no-op.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.db == nil {
		return errors.New("tool: sqlite store is nil")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM dispatches WHERE id = ?`, id); err != nil {
		return fmt.Errorf("tool: sqlite delete dispatch: %w", err)
	}
	return nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func decodeDispatchRecord(payload []byte) (DispatchRecord, error) {
	var rec DispatchRecord
	if err := json.Unmarshal(payload, &rec); err != nil {
		return DispatchRecord{}, fmt.Errorf("tool: sqlite decode dispatch: %w", err)
	}
	return rec, nil
}

var _ Store = (*SQLiteStore)(nil)
