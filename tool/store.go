package tool

import (
	"context"
	"encoding/json"
	"slices"
	"strings"
	"time"
)

// DispatchRecord is one entry in the dispatch history.
type DispatchRecord struct {
	ID         string          `json:"id"`
	ToolID     string          `json:"tool_id"`
	Status     string          `json:"status,omitempty"`
	ErrorCode  string          `json:"error_code,omitempty"`
	Error      string          `json:"error,omitempty"`
	Payload    map[string]any  `json:"payload,omitempty"`
	Result     json.RawMessage `json:"result,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
}

// Store persists dispatch history. List returns records newest first.
type Store interface {
	List(ctx context.Context) ([]DispatchRecord, error)
	Get(ctx context.Context, id string) (DispatchRecord, bool, error)
	Upsert(ctx context.Context, rec DispatchRecord) error
	Delete(ctx context.Context, id string) error
}

// FilterRecords keeps records for toolID (all when empty) and truncates the
// result to limit entries (no limit when <= 0).
func FilterRecords(records []DispatchRecord, toolID string, limit int) []DispatchRecord {
	toolID = strings.TrimSpace(toolID)
	out := make([]DispatchRecord, 0, len(records))
	for _, rec := range records {
		if toolID != "" && rec.ToolID != toolID {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}

func sortRecords(records []DispatchRecord) {
	slices.SortStableFunc(records, func(a, b DispatchRecord) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

func cloneRecord(in DispatchRecord) DispatchRecord {
	out := in
	out.Payload = cloneMap(in.Payload)
	if in.Result != nil {
		out.Result = slices.Clone(in.Result)
	}
	return out
}

func cloneRecords(in []DispatchRecord) []DispatchRecord {
	out := make([]DispatchRecord, len(in))
	for i := range in {
		out[i] = cloneRecord(in[i])
	}
	return out
}
