// Package fstriage implements the read-only Filesystem Triage tool. It ranks
// the largest and oldest regular files under a root directory.
package fstriage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/wspotter/kit/tool"
)

const (
	// ToolID is the registry id of the filesystem triage tool.
	ToolID = "fs"
	// Module is the catalog module name.
	Module = "fs_triage"

	defaultTopN     = 20
	maxTopN         = 200
	defaultMaxFiles = 20000
	maxMaxFiles     = 200000
)

// Contract is the published definition of the tool.
func Contract() tool.Contract {
	return tool.Contract{
		ID:              ToolID,
		Name:            "Filesystem Triage",
		Icon:            "folder-search",
		Description:     "Scan a directory and report largest/oldest files (read-only).",
		Version:         "0.1.0",
		RalphLoop:       true,
		AllowNetwork:    tool.AccessNone,
		AllowFilesystem: tool.AccessRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"path":            map[string]any{"type": "string", "default": "."},
				"top_n":           map[string]any{"type": "integer", "default": defaultTopN, "minimum": 1, "maximum": maxTopN},
				"max_files":       map[string]any{"type": "integer", "default": defaultMaxFiles, "minimum": 1, "maximum": maxMaxFiles},
				"follow_symlinks": map[string]any{"type": "boolean", "default": false},
			},
			"required":             []any{"path"},
			"additionalProperties": false,
		},
	}
}

// Settings is one attempt's scan configuration.
type Settings struct {
	TopN           int
	MaxFiles       int
	FollowSymlinks bool
}

// Tiers returns the distinct attempt settings derived from the caller's
// request, most permissive first.
func Tiers(requested Settings) []Settings {
	candidates := []Settings{
		requested,
		{TopN: min(requested.TopN, 50), MaxFiles: min(requested.MaxFiles, 5000)},
		{TopN: min(requested.TopN, 25), MaxFiles: min(requested.MaxFiles, 2000)},
	}
	out := make([]Settings, 0, len(candidates))
	for _, s := range candidates {
		if !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// FileEntry is one ranked file.
type FileEntry struct {
	Path      string   `json:"path"`
	SizeBytes int64    `json:"size_bytes"`
	SizeMB    float64  `json:"size_mb"`
	MTime     float64  `json:"mtime"`
	AgeDays   *float64 `json:"age_days,omitempty"`
}

// Scan holds the rankings of a successful run.
type Scan struct {
	ScannedFiles int         `json:"scanned_files"`
	Skipped      []string    `json:"skipped"`
	Largest      []FileEntry `json:"largest"`
	Oldest       []FileEntry `json:"oldest"`
}

// Result is the tool's return value. Scan is nil unless the run succeeded.
type Result struct {
	Status string `json:"status"`
	Root   string `json:"root,omitempty"`
	Error  string `json:"error,omitempty"`
	Detail string `json:"detail,omitempty"`
	*Scan
	Trace []tool.TraceEntry `json:"trace,omitempty"`
}

// ResultStatus implements tool.StatusReporter.
func (r Result) ResultStatus() string {
	return r.Status
}

// Config configures the tool.
type Config struct {
	Logger *slog.Logger
	Now    func() time.Time
}

// Tool is the filesystem triage tool.
type Tool struct {
	logger *slog.Logger
	now    func() time.Time
}

// New creates the tool.
func New(cfg Config) *Tool {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tool{logger: cfg.Logger, now: cfg.Now}
}

// Candidate returns the catalog entry for the tool.
func (t *Tool) Candidate() tool.Candidate {
	return tool.Candidate{
		Module:     Module,
		Definition: Contract().Definition(),
		Run:        t.Run,
	}
}

type request struct {
	Path           string `mapstructure:"path"`
	TopN           any    `mapstructure:"top_n"`
	MaxFiles       any    `mapstructure:"max_files"`
	FollowSymlinks bool   `mapstructure:"follow_symlinks"`
}

type fileStat struct {
	path  string
	size  int64
	mtime time.Time
}

type observation struct {
	stats   []fileStat
	skipped []string
}

// Run scans payload["path"] and returns a Result.
func (t *Tool) Run(ctx context.Context, payload map[string]any) (any, error) {
	req := request{Path: "."}
	if err := mapstructure.WeakDecode(payload, &req); err != nil {
		// Loosely typed fields fall back to their defaults below.
		t.logger.Debug("fs payload decode", "tool_id", ToolID, "error", err)
	}

	root, err := resolveRoot(req.Path)
	if err != nil {
		return Result{
			Status: "error",
			Error:  "path_not_directory",
			Detail: "Not a directory: " + root,
		}, nil
	}

	requested := Settings{
		TopN:           clamp(safeInt(req.TopN, defaultTopN), 1, maxTopN),
		MaxFiles:       clamp(safeInt(req.MaxFiles, defaultMaxFiles), 1, maxMaxFiles),
		FollowSymlinks: req.FollowSymlinks,
	}
	tiers := Tiers(requested)

	loop := tool.Loop[Settings, observation, Scan]{
		Name:        ToolID,
		MaxAttempts: tool.DefaultMaxAttempts,
		Observe: func(ctx context.Context, _ int, s Settings) (observation, error) {
			return walkFiles(ctx, root, s.MaxFiles, s.FollowSymlinks)
		},
		Execute: func(_ context.Context, s Settings, obs observation) Scan {
			return Scan{
				ScannedFiles: len(obs.stats),
				Skipped:      obs.skipped,
				Largest:      rankLargest(obs.stats, s.TopN),
				Oldest:       rankOldest(obs.stats, s.TopN, t.now()),
			}
		},
		Verify: verifyRankings,
		Correct: func(s Settings, _ string) (Settings, bool) {
			i := slices.Index(tiers, s)
			if i < 0 || i+1 >= len(tiers) {
				return Settings{}, false
			}
			return tiers[i+1], true
		},
		ObserveNote: func(attempt int, _ Settings) string {
			return fmt.Sprintf("walk %s (attempt %d)", root, attempt)
		},
		ExecuteNote: func(obs observation) string {
			return fmt.Sprintf("rank %d files", len(obs.stats))
		},
		VerifyNote: "check ranking invariants",
	}

	res := loop.Run(ctx, requested)
	if !res.Succeeded() {
		return Result{Status: "failed", Root: root, Detail: res.Reason, Trace: res.Trace}, nil
	}
	scan := res.Output
	return Result{Status: "success", Root: root, Scan: &scan, Trace: res.Trace}, nil
}

func resolveRoot(p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		p = "."
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	abs, err := filepath.Abs(p)
	if err != nil {
		return p, err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	info, err := os.Stat(abs)
	if err != nil {
		return abs, err
	}
	if !info.IsDir() {
		return abs, fmt.Errorf("fstriage: %s is not a directory", abs)
	}
	return abs, nil
}

func safeInt(v any, fallback int) int {
	if v == nil {
		return fallback
	}
	var n int
	if err := mapstructure.WeakDecode(v, &n); err != nil {
		return fallback
	}
	return n
}

func clamp(v, lo, hi int) int {
	return max(lo, min(v, hi))
}

// walkFiles visits files before subdirectories, in lexical order. Symlinked
// directories are entered only when follow is set; each real directory is
// visited once.
func walkFiles(ctx context.Context, root string, maxFiles int, follow bool) (observation, error) {
	w := &walker{
		maxFiles: maxFiles,
		follow:   follow,
		visited:  map[string]struct{}{},
	}
	if err := w.walk(ctx, root); err != nil && !errors.Is(err, errWalkLimit) {
		return observation{}, err
	}
	return observation{stats: w.stats, skipped: w.skipped}, nil
}

var errWalkLimit = errors.New("fstriage: max files reached")

type walker struct {
	maxFiles int
	follow   bool
	visited  map[string]struct{}
	stats    []fileStat
	skipped  []string
}

func (w *walker) walk(ctx context.Context, dir string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if real, err := filepath.EvalSymlinks(dir); err == nil {
		if _, seen := w.visited[real]; seen {
			return nil
		}
		w.visited[real] = struct{}{}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		w.skipped = append(w.skipped, fmt.Sprintf("read dir failed: %s: %v", dir, err))
		return nil
	}

	var subdirs []string
	for _, entry := range entries {
		p := filepath.Join(dir, entry.Name())
		if entry.IsDir() {
			subdirs = append(subdirs, p)
			continue
		}
		if entry.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(p); err == nil && info.IsDir() {
				if w.follow {
					subdirs = append(subdirs, p)
				}
				continue
			}
		}

		if len(w.stats) >= w.maxFiles {
			w.skipped = append(w.skipped, fmt.Sprintf("Hit max_files=%d; remaining files not scanned", w.maxFiles))
			return errWalkLimit
		}
		info, err := os.Stat(p)
		if err != nil {
			w.skipped = append(w.skipped, fmt.Sprintf("stat failed: %s: %v", p, err))
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		w.stats = append(w.stats, fileStat{path: p, size: info.Size(), mtime: info.ModTime()})
	}

	for _, sub := range subdirs {
		if err := w.walk(ctx, sub); err != nil {
			return err
		}
	}
	return nil
}

func rankLargest(stats []fileStat, topN int) []FileEntry {
	ranked := slices.Clone(stats)
	slices.SortStableFunc(ranked, func(a, b fileStat) int {
		switch {
		case a.size > b.size:
			return -1
		case a.size < b.size:
			return 1
		default:
			return 0
		}
	})
	out := make([]FileEntry, 0, min(topN, len(ranked)))
	for _, s := range ranked[:min(topN, len(ranked))] {
		out = append(out, entryFor(s))
	}
	return out
}

func rankOldest(stats []fileStat, topN int, now time.Time) []FileEntry {
	ranked := slices.Clone(stats)
	slices.SortStableFunc(ranked, func(a, b fileStat) int {
		return a.mtime.Compare(b.mtime)
	})
	out := make([]FileEntry, 0, min(topN, len(ranked)))
	for _, s := range ranked[:min(topN, len(ranked))] {
		entry := entryFor(s)
		age := round2(now.Sub(s.mtime).Hours() / 24)
		entry.AgeDays = &age
		out = append(out, entry)
	}
	return out
}

func entryFor(s fileStat) FileEntry {
	return FileEntry{
		Path:      s.path,
		SizeBytes: s.size,
		SizeMB:    round2(float64(s.size) / (1024 * 1024)),
		MTime:     float64(s.mtime.UnixNano()) / 1e9,
	}
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func verifyRankings(scan Scan) error {
	for i := 1; i < len(scan.Largest); i++ {
		if scan.Largest[i-1].SizeBytes < scan.Largest[i].SizeBytes {
			return errors.New("ranking not sorted by size_bytes")
		}
	}
	for i := 1; i < len(scan.Oldest); i++ {
		if scan.Oldest[i-1].MTime > scan.Oldest[i].MTime {
			return errors.New("ranking not sorted by mtime")
		}
	}
	for _, entries := range [][]FileEntry{scan.Largest, scan.Oldest} {
		for _, e := range entries {
			if e.Path == "" {
				return errors.New("path not a string")
			}
		}
	}
	return nil
}
