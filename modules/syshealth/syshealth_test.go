package syshealth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/wspotter/kit/tool"
)

func fakeProc(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"loadavg": "0.50 0.25 0.10 1/123 4567\n",
		"uptime":  "3600.75 7000.00\n",
		"meminfo": "MemTotal:       2048 kB\nMemAvailable:   1024 kB\nSwapTotal:         0 kB\nHugePages_Total:   4\nbogus line\n",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o600); err != nil {
			t.Fatalf("WriteFile(%s) error = %v", name, err)
		}
	}
	return dir
}

func fixedUsage(total, free uint64) DiskUsage {
	return func(string) (uint64, uint64, error) { return total, free, nil }
}

func run(t *testing.T, cfg Config, payload map[string]any) Result {
	t.Helper()
	cfg.Now = func() time.Time { return time.Unix(1700000000, 0) }
	out, err := New(cfg).Run(context.Background(), payload)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	return out.(Result)
}

func TestContractValidates(t *testing.T) {
	if result := tool.Validate(Contract().Definition()); !result.OK {
		t.Fatalf("Validate() issues = %v", result.Issues)
	}
}

func TestRunSnapshot(t *testing.T) {
	res := run(t, Config{ProcDir: fakeProc(t), DiskUsage: fixedUsage(1000, 400)}, map[string]any{"disk_path": t.TempDir()})
	if res.Status != "success" {
		t.Fatalf("Status = %q, want success (detail %q)", res.Status, res.Detail)
	}
	data := res.Data
	if data.Disk.UsedBytes != 600 || data.Disk.UsedPct == nil || *data.Disk.UsedPct != 60 {
		t.Fatalf("Disk = %+v, want used 600 at 60%%", data.Disk)
	}
	if len(data.LoadAvg) != 3 || data.LoadAvg[0] != 0.5 {
		t.Fatalf("LoadAvg = %v, want [0.5 0.25 0.1]", data.LoadAvg)
	}
	if data.UptimeSeconds == nil || *data.UptimeSeconds != 3600.75 {
		t.Fatalf("UptimeSeconds = %v, want 3600.75", data.UptimeSeconds)
	}
	if data.Memory.MemTotalBytes == nil || *data.Memory.MemTotalBytes != 2048*1024 {
		t.Fatalf("MemTotalBytes = %v, want %d", data.Memory.MemTotalBytes, 2048*1024)
	}
	if data.Memory.SwapFreeBytes != nil {
		t.Fatalf("SwapFreeBytes = %v, want nil", *data.Memory.SwapFreeBytes)
	}
	if data.Timestamp != 1700000000 {
		t.Fatalf("Timestamp = %v, want 1700000000", data.Timestamp)
	}

	want := []tool.TraceEntry{
		{Step: tool.PhaseObserve, Note: "collect system stats"},
		{Step: tool.PhaseExecute, Note: "derive summary"},
		{Step: tool.PhaseVerify, Note: "sanity-check invariants"},
	}
	if len(res.Trace) != len(want) {
		t.Fatalf("Trace = %v, want %v", res.Trace, want)
	}
	for i := range want {
		if res.Trace[i] != want[i] {
			t.Fatalf("Trace[%d] = %+v, want %+v", i, res.Trace[i], want[i])
		}
	}
}

func TestRunMissingProcFiles(t *testing.T) {
	res := run(t, Config{ProcDir: t.TempDir(), DiskUsage: fixedUsage(10, 10)}, nil)
	if res.Status != "success" {
		t.Fatalf("Status = %q, want success", res.Status)
	}
	if res.Data.LoadAvg != nil || res.Data.UptimeSeconds != nil || res.Data.Memory.MemTotalBytes != nil {
		t.Fatalf("Data = %+v, want unknown host facts", res.Data)
	}
}

func TestRunRetriesTransientSnapshotFailure(t *testing.T) {
	calls := 0
	usage := func(string) (uint64, uint64, error) {
		calls++
		if calls == 1 {
			return 0, 0, errors.New("device busy")
		}
		return 100, 50, nil
	}
	res := run(t, Config{ProcDir: fakeProc(t), DiskUsage: usage}, nil)
	if res.Status != "success" {
		t.Fatalf("Status = %q, want success", res.Status)
	}
	if calls != 2 {
		t.Fatalf("disk usage calls = %d, want 2", calls)
	}
	if res.Trace[1].Step != tool.PhaseSelfCorrect || res.Trace[1].Note != "observe failed: device busy; retrying" {
		t.Fatalf("Trace[1] = %+v", res.Trace[1])
	}
}

func TestRunPersistentSnapshotFailure(t *testing.T) {
	usage := func(string) (uint64, uint64, error) { return 0, 0, errors.New("device busy") }
	res := run(t, Config{ProcDir: fakeProc(t), DiskUsage: usage}, nil)
	if res.Status != "failed" || res.Detail != "observe failed: device busy" {
		t.Fatalf("Run() = %+v, want failed observe", res)
	}
	if res.Data != nil {
		t.Fatalf("Data = %+v, want nil", res.Data)
	}
}

func TestRunInvariantFailureKeepsData(t *testing.T) {
	res := run(t, Config{ProcDir: fakeProc(t), DiskUsage: fixedUsage(0, 0)}, nil)
	if res.Status != "failed" || res.Detail != "disk.total_bytes invalid" {
		t.Fatalf("Run() = %+v, want disk.total_bytes invalid", res)
	}
	if res.Data == nil || res.Data.Disk.UsedPct != nil {
		t.Fatalf("Data = %+v, want snapshot without used_pct", res.Data)
	}
	last := res.Trace[len(res.Trace)-1]
	if last.Step != tool.PhaseSelfCorrect {
		t.Fatalf("last trace step = %q, want self_correct", last.Step)
	}
}

func TestVerifySnapshot(t *testing.T) {
	tests := []struct {
		name string
		disk Disk
		want string
	}{
		{name: "ok", disk: Disk{TotalBytes: 100, UsedBytes: 60, FreeBytes: 40}},
		{name: "slack", disk: Disk{TotalBytes: 100, UsedBytes: 60, FreeBytes: 4000}},
		{name: "used", disk: Disk{TotalBytes: 100, UsedBytes: -1, FreeBytes: 101}, want: "disk.used_bytes invalid"},
		{name: "free", disk: Disk{TotalBytes: 100, UsedBytes: 1, FreeBytes: -1}, want: "disk.free_bytes invalid"},
		{name: "math", disk: Disk{TotalBytes: 100, UsedBytes: 100, FreeBytes: 5000}, want: "disk math invariant failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := verifySnapshot(Snapshot{Disk: tt.disk})
			got := ""
			if err != nil {
				got = err.Error()
			}
			if got != tt.want {
				t.Fatalf("verifySnapshot() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRunLiveHost(t *testing.T) {
	if runtime.GOOS != "linux" {
		t.Skip("live snapshot reads /proc")
	}
	out, err := New(Config{}).Run(context.Background(), map[string]any{"disk_path": t.TempDir()})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	res := out.(Result)
	if res.Status != "success" {
		t.Fatalf("Status = %q, want success (detail %q)", res.Status, res.Detail)
	}
	if res.Data.CPUCount < 1 {
		t.Fatalf("CPUCount = %d, want >= 1", res.Data.CPUCount)
	}
}
