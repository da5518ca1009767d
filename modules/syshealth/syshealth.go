// Package syshealth implements the System Health tool: a read-only snapshot
// of uptime, load, memory, and disk usage for one path.
package syshealth

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/wspotter/kit/tool"
)

const (
	// ToolID is the registry id of the system health tool.
	ToolID = "health"
	// Module is the catalog module name.
	Module = "system_health"

	// diskSlack tolerates block rounding between used and free.
	diskSlack = 4096
)

// Contract is the published definition of the tool.
func Contract() tool.Contract {
	return tool.Contract{
		ID:              ToolID,
		Name:            "System Health",
		Icon:            "activity",
		Description:     "Read-only system snapshot: uptime, load, memory, disk.",
		Version:         "0.1.0",
		RalphLoop:       true,
		AllowNetwork:    tool.AccessNone,
		AllowFilesystem: tool.AccessRead,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"disk_path": map[string]any{"type": "string", "default": "."},
			},
			"required":             []any{},
			"additionalProperties": false,
		},
	}
}

// Memory is read from meminfo; fields are nil when unavailable.
type Memory struct {
	MemTotalBytes     *int64 `json:"mem_total_bytes"`
	MemAvailableBytes *int64 `json:"mem_available_bytes"`
	SwapTotalBytes    *int64 `json:"swap_total_bytes"`
	SwapFreeBytes     *int64 `json:"swap_free_bytes"`
}

// Disk is usage of the filesystem holding Path.
type Disk struct {
	Path       string   `json:"path"`
	TotalBytes int64    `json:"total_bytes"`
	UsedBytes  int64    `json:"used_bytes"`
	FreeBytes  int64    `json:"free_bytes"`
	UsedPct    *float64 `json:"used_pct"`
}

// Snapshot is the health data returned on success.
type Snapshot struct {
	CPUCount      int       `json:"cpu_count"`
	LoadAvg       []float64 `json:"loadavg"`
	UptimeSeconds *float64  `json:"uptime_seconds"`
	Memory        Memory    `json:"memory"`
	Disk          Disk      `json:"disk"`
	Timestamp     float64   `json:"timestamp"`
}

// Result is the tool's return value.
type Result struct {
	Status string            `json:"status"`
	Detail string            `json:"detail,omitempty"`
	Data   *Snapshot         `json:"data,omitempty"`
	Trace  []tool.TraceEntry `json:"trace"`
}

// ResultStatus implements tool.StatusReporter.
func (r Result) ResultStatus() string {
	return r.Status
}

// DiskUsage reports total and available bytes of the filesystem holding path.
type DiskUsage func(path string) (total, free uint64, err error)

// Config configures the tool. Zero values read the live host.
type Config struct {
	ProcDir   string
	DiskUsage DiskUsage
	Logger    *slog.Logger
	Now       func() time.Time
}

// Tool is the system health tool.
type Tool struct {
	procDir   string
	diskUsage DiskUsage
	logger    *slog.Logger
	now       func() time.Time
}

// New creates the tool.
func New(cfg Config) *Tool {
	if cfg.ProcDir == "" {
		cfg.ProcDir = "/proc"
	}
	if cfg.DiskUsage == nil {
		cfg.DiskUsage = statfs
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Tool{procDir: cfg.ProcDir, diskUsage: cfg.DiskUsage, logger: cfg.Logger, now: cfg.Now}
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
	DiskPath string `mapstructure:"disk_path"`
}

type facts struct {
	cpuCount int
	loadAvg  []float64
	uptime   *float64
	meminfo  map[string]int64
	diskPath string
	total    uint64
	free     uint64
	at       time.Time
}

// Run takes one snapshot. A failed snapshot is retried once; there is no
// parameter correction.
func (t *Tool) Run(ctx context.Context, payload map[string]any) (any, error) {
	req := request{DiskPath: "."}
	if err := mapstructure.WeakDecode(payload, &req); err != nil {
		t.logger.Debug("health payload decode", "tool_id", ToolID, "error", err)
	}
	if req.DiskPath == "" {
		req.DiskPath = "."
	}

	loop := tool.Loop[string, facts, Snapshot]{
		Name: ToolID,
		Observe: func(ctx context.Context, _ int, diskPath string) (facts, error) {
			return t.collect(ctx, diskPath)
		},
		Execute: func(_ context.Context, _ string, f facts) Snapshot {
			return summarize(f)
		},
		Verify:      verifySnapshot,
		ObserveNote: func(int, string) string { return "collect system stats" },
		ExecuteNote: func(facts) string { return "derive summary" },
		VerifyNote:  "sanity-check invariants",
	}

	res := loop.Run(ctx, req.DiskPath)
	if res.Succeeded() {
		data := res.Output
		return Result{Status: "success", Data: &data, Trace: res.Trace}, nil
	}
	out := Result{Status: "failed", Detail: res.Reason, Trace: res.Trace}
	if res.Output.Disk.Path != "" {
		data := res.Output
		out.Data = &data
	}
	return out, nil
}

func (t *Tool) collect(ctx context.Context, diskPath string) (facts, error) {
	if err := ctx.Err(); err != nil {
		return facts{}, err
	}
	target, err := filepath.Abs(expandHome(diskPath))
	if err != nil {
		return facts{}, err
	}
	if resolved, err := filepath.EvalSymlinks(target); err == nil {
		target = resolved
	}
	total, free, err := t.diskUsage(target)
	if err != nil {
		return facts{}, err
	}
	return facts{
		cpuCount: runtime.NumCPU(),
		loadAvg:  readLoadAvg(filepath.Join(t.procDir, "loadavg")),
		uptime:   readUptime(filepath.Join(t.procDir, "uptime")),
		meminfo:  readMeminfo(filepath.Join(t.procDir, "meminfo")),
		diskPath: target,
		total:    total,
		free:     free,
		at:       t.now(),
	}, nil
}

func summarize(f facts) Snapshot {
	total := int64(f.total)
	free := int64(f.free)
	used := total - free
	disk := Disk{
		Path:       f.diskPath,
		TotalBytes: total,
		UsedBytes:  used,
		FreeBytes:  free,
	}
	if total != 0 {
		pct := math.Round(float64(used)/float64(total)*100*100) / 100
		disk.UsedPct = &pct
	}
	return Snapshot{
		CPUCount:      f.cpuCount,
		LoadAvg:       f.loadAvg,
		UptimeSeconds: f.uptime,
		Memory: Memory{
			MemTotalBytes:     lookup(f.meminfo, "MemTotal"),
			MemAvailableBytes: lookup(f.meminfo, "MemAvailable"),
			SwapTotalBytes:    lookup(f.meminfo, "SwapTotal"),
			SwapFreeBytes:     lookup(f.meminfo, "SwapFree"),
		},
		Disk:      disk,
		Timestamp: float64(f.at.UnixNano()) / 1e9,
	}
}

func verifySnapshot(s Snapshot) error {
	switch {
	case s.Disk.TotalBytes <= 0:
		return errors.New("disk.total_bytes invalid")
	case s.Disk.UsedBytes < 0:
		return errors.New("disk.used_bytes invalid")
	case s.Disk.FreeBytes < 0:
		return errors.New("disk.free_bytes invalid")
	case s.Disk.UsedBytes+s.Disk.FreeBytes > s.Disk.TotalBytes+diskSlack:
		return errors.New("disk math invariant failed")
	}
	return nil
}

func lookup(values map[string]int64, key string) *int64 {
	v, ok := values[key]
	if !ok {
		return nil
	}
	return &v
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

// readMeminfo parses "Key: value [kB]" lines; kB values become bytes.
func readMeminfo(path string) map[string]int64 {
	out := map[string]int64{}
	// #nosec G304 -- fixed proc path.
	data, err := os.ReadFile(path)
	if err != nil {
		return out
	}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, rest, ok := strings.Cut(scanner.Text(), ":")
		if !ok {
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) == 0 {
			continue
		}
		value, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			continue
		}
		if len(parts) > 1 && strings.EqualFold(parts[1], "kb") {
			value *= 1024
		}
		out[key] = value
	}
	return out
}

func readLoadAvg(path string) []float64 {
	// #nosec G304 -- fixed proc path.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	fields := strings.Fields(string(data))
	if len(fields) < 3 {
		return nil
	}
	out := make([]float64, 0, 3)
	for _, f := range fields[:3] {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil
		}
		out = append(out, v)
	}
	return out
}

func readUptime(path string) *float64 {
	// #nosec G304 -- fixed proc path.
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return nil
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return nil
	}
	return &v
}
