package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	fileStoreVersionV1 = "1"
	defaultStoreDir    = ".kit"
	defaultHistoryFile = "history.json"

	// DefaultFileStoreLimit caps how many records a FileStore keeps.
	DefaultFileStoreLimit = 500
)

var errEmptyStorePath = errors.New("tool: file store path is empty")

type fileStoreDocument struct {
	Version    string           `json:"version"`
	Dispatches []DispatchRecord `json:"dispatches"`
}

// FileStore persists dispatch history in a local JSON file. Only the newest
// Limit records are kept.
type FileStore struct {
	path  string
	limit int
	mu    sync.RWMutex
}

// NewFileStore creates a file-backed history store at the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, limit: DefaultFileStoreLimit}
}

// WithLimit sets how many records are retained. Non-positive keeps everything.
func (s *FileStore) WithLimit(limit int) *FileStore {
	s.limit = limit
	return s
}

// DefaultFileStorePath returns ~/.kit/history.json.
func DefaultFileStorePath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("tool: resolve user home: %w", err)
	}
	return filepath.Join(home, defaultStoreDir, defaultHistoryFile), nil
}

// Path returns the backing file path.
func (s *FileStore) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// List returns all records, newest first.
func (s *FileStore) List(ctx context.Context) ([]DispatchRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("tool: file store is nil")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.load()
	if err != nil {
		return nil, err
	}
	return cloneRecords(records), nil
}

// Get returns a record by id.
func (s *FileStore) Get(ctx context.Context, id string) (DispatchRecord, bool, error) {
	records, err := s.List(ctx)
	if err != nil {
		return DispatchRecord{}, false, err
	}
	for _, rec := range records {
		if rec.ID == id {
			return rec, true, nil
		}
	}
	return DispatchRecord{}, false, nil
}

// Upsert inserts or replaces a record by id.
func (s *FileStore) Upsert(ctx context.Context, rec DispatchRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("tool: file store is nil")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return errors.New("tool: dispatch record id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	replaced := false
	for i := range records {
		if records[i].ID == rec.ID {
			records[i] = cloneRecord(rec)
			replaced = true
			break
		}
	}
	if !replaced {
		records = append(records, cloneRecord(rec))
	}
	return s.save(records)
}

// Delete removes a record by id. Deleting a missing id is a no-op.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil {
		return errors.New("tool: file store is nil")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load()
	if err != nil {
		return err
	}

	filtered := make([]DispatchRecord, 0, len(records))
	for _, rec := range records {
		if rec.ID != id {
			filtered = append(filtered, rec)
		}
	}
	return s.save(filtered)
}

func (s *FileStore) load() ([]DispatchRecord, error) {
	if strings.TrimSpace(s.path) == "" {
		return nil, errEmptyStorePath
	}

	// #nosec G304 -- path is configured by caller and constrained to local filesystem usage.
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []DispatchRecord{}, nil
		}
		return nil, fmt.Errorf("tool: read history: %w", err)
	}
	if len(data) == 0 {
		return []DispatchRecord{}, nil
	}

	var doc fileStoreDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("tool: decode history: %w", err)
	}
	if doc.Dispatches == nil {
		doc.Dispatches = []DispatchRecord{}
	}
	sortRecords(doc.Dispatches)
	return doc.Dispatches, nil
}

func (s *FileStore) save(records []DispatchRecord) error {
	if strings.TrimSpace(s.path) == "" {
		return errEmptyStorePath
	}

	sortRecords(records)
	if s.limit > 0 && len(records) > s.limit {
		records = records[:s.limit]
	}

	doc := fileStoreDocument{
		Version:    fileStoreVersionV1,
		Dispatches: records,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("tool: encode history: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("tool: create store dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("tool: write temp store file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("tool: replace store file: %w", err)
	}
	return nil
}

var _ Store = (*FileStore)(nil)
