package prefs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileSource reads preferences from a JSON file on every Load. A missing
// file yields Empty preferences.
type FileSource struct {
	Path string
}

// NewFileSource creates a file-backed source.
func NewFileSource(path string) *FileSource {
	return &FileSource{Path: path}
}

// Load reads and decodes the preference file.
func (s *FileSource) Load(ctx context.Context) (Preferences, error) {
	if err := ctx.Err(); err != nil {
		return Preferences{}, err
	}
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return Empty(), nil
	}

	// #nosec G304 -- path is configured locally.
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Empty(), nil
		}
		return Preferences{}, fmt.Errorf("prefs: read %q: %w", s.Path, err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return Empty(), nil
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return Preferences{}, fmt.Errorf("prefs: parse %q: %w", s.Path, err)
	}
	return Decode(doc)
}

// Save writes p to the file, replacing it atomically.
func (s *FileSource) Save(ctx context.Context, p Preferences) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || strings.TrimSpace(s.Path) == "" {
		return errors.New("prefs: file path is empty")
	}

	data, err := json.MarshalIndent(normalize(p), "", "  ")
	if err != nil {
		return fmt.Errorf("prefs: encode preferences: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(s.Path), 0o750); err != nil {
		return fmt.Errorf("prefs: create dir: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("prefs: write temp file: %w", err)
	}
	if err := os.Rename(tmp, s.Path); err != nil {
		return fmt.Errorf("prefs: replace %q: %w", s.Path, err)
	}
	return nil
}

var _ Writer = (*FileSource)(nil)
