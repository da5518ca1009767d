package tool

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Declaration file suffixes recognized by DirectorySource.
var declarationSuffixes = []string{".tool.yaml", ".tool.yml", ".tool.json"}

// Declaration is the on-disk shape of a plugin tool.
//
//	module: weather
//	definition:
//	  id: weather
//	  name: Weather
//	  ...
//	command:
//	  path: ./weather.sh
//	  timeout: 10s
type Declaration struct {
	Module     string   `yaml:"module,omitempty"`
	Definition any      `yaml:"definition"`
	Command    *Command `yaml:"command,omitempty"`
}

// DirectorySource discovers tool declarations in a directory. The directory
// is read again on every call, so files added or removed between calls are
// picked up by the next discovery.
type DirectorySource struct {
	Dir string
}

// NewDirectorySource creates a source over dir.
func NewDirectorySource(dir string) *DirectorySource {
	return &DirectorySource{Dir: dir}
}

// Candidates loads every declaration file in the directory. A missing
// directory yields no candidates. Unreadable or malformed files yield a
// candidate carrying LoadErr so offline validation can report them.
func (s *DirectorySource) Candidates(ctx context.Context) ([]Candidate, error) {
	if s == nil || strings.TrimSpace(s.Dir) == "" {
		return nil, nil
	}
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("tool: read declaration dir %q: %w", s.Dir, err)
	}

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || declarationModule(entry.Name()) == "" {
			continue
		}
		names = append(names, entry.Name())
	}
	sort.Strings(names)

	out := make([]Candidate, 0, len(names))
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, LoadDeclarationFile(filepath.Join(s.Dir, name)))
	}
	return out, nil
}

// LoadDeclarationFile reads one declaration file into a candidate.
func LoadDeclarationFile(path string) Candidate {
	candidate := Candidate{Module: declarationModule(filepath.Base(path))}

	// #nosec G304 -- path comes from the configured declaration directory.
	data, err := os.ReadFile(path)
	if err != nil {
		candidate.LoadErr = fmt.Errorf("reading declaration %q: %w", path, err)
		return candidate
	}

	var decl Declaration
	if err := yaml.Unmarshal(data, &decl); err != nil {
		candidate.LoadErr = fmt.Errorf("parsing declaration %q: %w", path, err)
		return candidate
	}

	if module := strings.TrimSpace(decl.Module); module != "" {
		candidate.Module = module
	}
	candidate.Definition = decl.Definition
	if decl.Command != nil {
		cmd := expandCommand(*decl.Command, filepath.Dir(path))
		candidate.Run = cmd.RunFunc()
	}
	return candidate
}

func declarationModule(fileName string) string {
	for _, suffix := range declarationSuffixes {
		if strings.HasSuffix(fileName, suffix) {
			return strings.TrimSuffix(fileName, suffix)
		}
	}
	return ""
}

func expandCommand(cmd Command, baseDir string) Command {
	out := Command{
		Path:    strings.TrimSpace(os.ExpandEnv(cmd.Path)),
		Dir:     strings.TrimSpace(os.ExpandEnv(cmd.Dir)),
		Timeout: cmd.Timeout,
	}
	if strings.ContainsRune(out.Path, filepath.Separator) {
		out.Path = resolveRelative(baseDir, out.Path)
	}
	if out.Dir != "" {
		out.Dir = resolveRelative(baseDir, out.Dir)
	}
	for _, arg := range cmd.Args {
		out.Args = append(out.Args, os.ExpandEnv(arg))
	}
	if len(cmd.Env) > 0 {
		out.Env = make(map[string]string, len(cmd.Env))
		for key, value := range cmd.Env {
			out.Env[key] = os.ExpandEnv(value)
		}
	}
	return out
}

func resolveRelative(baseDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
