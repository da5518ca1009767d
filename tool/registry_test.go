package tool

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func echoRun(ctx context.Context, payload map[string]any) (any, error) {
	return map[string]any{"status": "success", "echo": payload["value"]}, nil
}

func definitionWith(id string, mutate func(Definition)) Definition {
	def := validDefinition()
	def["id"] = id
	def["name"] = id
	def["input_schema"] = map[string]any{"type": "object"}
	if mutate != nil {
		mutate(def)
	}
	return def
}

// mutableSource lets tests change the candidate set between calls.
type mutableSource struct {
	mu         sync.Mutex
	candidates []Candidate
	err        error
}

func (s *mutableSource) Candidates(ctx context.Context) ([]Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return append([]Candidate(nil), s.candidates...), nil
}

func (s *mutableSource) set(candidates ...Candidate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.candidates = candidates
}

func TestRegistryDiscoverExcludesInvalid(t *testing.T) {
	missingVersion := definitionWith("broken", func(d Definition) { delete(d, "version") })
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "good", Definition: definitionWith("good", nil), Run: echoRun},
		{Module: "broken", Definition: missingVersion, Run: echoRun},
	}}})

	tools, err := reg.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("tool count = %d, want 1", len(tools))
	}
	if tools[0].ID != "good" || tools[0].Module != "good" {
		t.Fatalf("tool = %+v, want good", tools[0])
	}
}

func TestRegistryDiscoverSkipsReservedModules(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "_private", Definition: definitionWith("private", nil), Run: echoRun},
		{Module: "registry", Definition: definitionWith("registry", nil), Run: echoRun},
		{Module: "contract", Definition: definitionWith("contract", nil), Run: echoRun},
		{Module: "visible", Definition: definitionWith("visible", nil), Run: echoRun},
	}}})

	tools, err := reg.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tools) != 1 || tools[0].ID != "visible" {
		t.Fatalf("tools = %+v, want only visible", tools)
	}
}

func TestRegistryDiscoverOrdersByModule(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "zeta", Definition: definitionWith("a", nil), Run: echoRun},
		{Module: "alpha", Definition: definitionWith("z", nil), Run: echoRun},
	}}})

	tools, _ := reg.Discover(context.Background())
	if len(tools) != 2 {
		t.Fatalf("tool count = %d, want 2", len(tools))
	}
	if tools[0].Module != "alpha" || tools[1].Module != "zeta" {
		t.Fatalf("module order = %s, %s; want alpha, zeta", tools[0].Module, tools[1].Module)
	}
}

func TestRegistryDiscoverFallsBackToModuleName(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "anon", Definition: definitionWith("", func(d Definition) { d["name"] = "" }), Run: echoRun},
	}}})

	tools, _ := reg.Discover(context.Background())
	if len(tools) != 1 {
		t.Fatalf("tool count = %d, want 1", len(tools))
	}
	if tools[0].ID != "anon" || tools[0].Name != "anon" {
		t.Fatalf("tool = %+v, want id/name anon", tools[0])
	}
	if _, err := reg.Dispatch(context.Background(), "anon", map[string]any{}); err != nil {
		t.Fatalf("Dispatch(anon) error = %v", err)
	}
}

func TestRegistryDiscoverDuplicateFirstWins(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "b_second", Definition: definitionWith("dup", nil), Run: echoRun},
		{Module: "a_first", Definition: definitionWith("dup", nil), Run: echoRun},
	}}})

	tools, _ := reg.Discover(context.Background())
	if len(tools) != 1 {
		t.Fatalf("tool count = %d, want 1", len(tools))
	}
	if tools[0].Module != "a_first" {
		t.Fatalf("Module = %q, want a_first", tools[0].Module)
	}
}

func TestRegistryDiscoverSkipsFailingSource(t *testing.T) {
	broken := &mutableSource{err: errors.New("disk gone")}
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{
		broken,
		StaticSource{{Module: "ok", Definition: definitionWith("ok", nil), Run: echoRun}},
	}})

	tools, err := reg.Discover(context.Background())
	if err != nil {
		t.Fatalf("Discover() error = %v", err)
	}
	if len(tools) != 1 {
		t.Fatalf("tool count = %d, want 1", len(tools))
	}
}

func TestRegistryDiscoverRebuildsTables(t *testing.T) {
	source := &mutableSource{}
	source.set(Candidate{Module: "one", Definition: definitionWith("one", nil), Run: echoRun})
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{source}})

	if tools, _ := reg.Discover(context.Background()); len(tools) != 1 {
		t.Fatalf("first pass tool count = %d, want 1", len(tools))
	}

	source.set(Candidate{Module: "one", Definition: definitionWith("one", func(d Definition) { d["mock"] = true }), Run: echoRun})
	tools, _ := reg.Discover(context.Background())
	if len(tools) != 0 {
		t.Fatalf("second pass tool count = %d, want 0", len(tools))
	}
	if _, _, ok := reg.Lookup("one"); ok {
		t.Fatal("Lookup(one) ok = true after invalidation, want false")
	}
}

func TestRegistryDispatchPicksUpNewTools(t *testing.T) {
	source := &mutableSource{}
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{source}})

	_, err := reg.Dispatch(context.Background(), "late", map[string]any{})
	if !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("Dispatch() error = %v, want ErrToolNotFound", err)
	}

	source.set(Candidate{Module: "late", Definition: definitionWith("late", nil), Run: echoRun})
	out, err := reg.Dispatch(context.Background(), "late", map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	result := out.Result.(map[string]any)
	if result["echo"] != "hi" {
		t.Fatalf("echo = %v, want hi", result["echo"])
	}
	if out.ToolID != "late" {
		t.Fatalf("ToolID = %q, want late", out.ToolID)
	}
}

func TestRegistryDispatchNotFoundVersusNotRunnable(t *testing.T) {
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "listed", Definition: definitionWith("listed", nil)},
	}}})

	tools, _ := reg.Discover(context.Background())
	if len(tools) != 1 || tools[0].Runnable {
		t.Fatalf("tools = %+v, want one non-runnable tool", tools)
	}

	_, err := reg.Dispatch(context.Background(), "missing", nil)
	if !errors.Is(err, ErrToolNotFound) || errors.Is(err, ErrToolNotRunnable) {
		t.Fatalf("missing: error = %v, want not-found only", err)
	}
	if got := ErrorCode(err); got != ToolErrorCodeNotFound {
		t.Fatalf("missing: code = %q, want %q", got, ToolErrorCodeNotFound)
	}

	_, err = reg.Dispatch(context.Background(), "listed", nil)
	if !errors.Is(err, ErrToolNotRunnable) || errors.Is(err, ErrToolNotFound) {
		t.Fatalf("listed: error = %v, want not-runnable only", err)
	}
	if got := ErrorCode(err); got != ToolErrorCodeNotRunnable {
		t.Fatalf("listed: code = %q, want %q", got, ToolErrorCodeNotRunnable)
	}
}

func TestRegistryDispatchPassesPayloadVerbatim(t *testing.T) {
	var seen map[string]any
	run := func(ctx context.Context, payload map[string]any) (any, error) {
		seen = payload
		return []int{1, 2, 3}, nil
	}
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "raw", Definition: definitionWith("raw", nil), Run: run},
	}}})

	payload := map[string]any{"nested": map[string]any{"k": "v"}}
	out, err := reg.Dispatch(context.Background(), "raw", payload)
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if seen["nested"].(map[string]any)["k"] != "v" {
		t.Fatalf("payload seen = %v", seen)
	}
	if got, ok := out.Result.([]int); !ok || len(got) != 3 {
		t.Fatalf("Result = %#v, want []int{1,2,3}", out.Result)
	}
}

func TestRegistryDispatchEnforcesSchema(t *testing.T) {
	strict := definitionWith("strict", func(d Definition) {
		d["input_schema"] = map[string]any{
			"type":                 "object",
			"properties":           map[string]any{"path": map[string]any{"type": "string"}},
			"required":             []any{"path"},
			"additionalProperties": false,
		}
	})
	candidates := StaticSource{{Module: "strict", Definition: strict, Run: echoRun}}

	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{candidates}})
	_, err := reg.Dispatch(context.Background(), "strict", map[string]any{"path": 1})
	if got := ErrorCode(err); got != ToolErrorCodeInvalidPayload {
		t.Fatalf("ErrorCode = %q, want %q", got, ToolErrorCodeInvalidPayload)
	}

	lenient := NewRegistry(RegistryConfig{
		Sources:                  []CandidateSource{candidates},
		DisableSchemaEnforcement: true,
	})
	if _, err := lenient.Dispatch(context.Background(), "strict", map[string]any{"path": 1}); err != nil {
		t.Fatalf("lenient Dispatch() error = %v, want nil", err)
	}
}

func TestRegistryDispatchWrapsRunError(t *testing.T) {
	run := func(ctx context.Context, payload map[string]any) (any, error) {
		return nil, errors.New("exploded")
	}
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "boom", Definition: definitionWith("boom", nil), Run: run},
	}}})

	_, err := reg.Dispatch(context.Background(), "boom", map[string]any{})
	if got := ErrorCode(err); got != ToolErrorCodeInvocationFailed {
		t.Fatalf("ErrorCode = %q, want %q", got, ToolErrorCodeInvocationFailed)
	}
}

func TestRegistryDispatchRecordsHistory(t *testing.T) {
	store := NewFileStore(t.TempDir() + "/history.json")
	reg := NewRegistry(RegistryConfig{
		Sources: []CandidateSource{StaticSource{
			{Module: "echo", Definition: definitionWith("echo", nil), Run: echoRun},
		}},
		History: store,
	})

	out, err := reg.Dispatch(context.Background(), "echo", map[string]any{"value": "x", "api_token": "s3cret"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	_, _ = reg.Dispatch(context.Background(), "nope", nil)

	records, err := store.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("record count = %d, want 2", len(records))
	}

	rec, ok, err := store.Get(context.Background(), out.RequestID)
	if err != nil || !ok {
		t.Fatalf("Get(%s) = %v, %v", out.RequestID, ok, err)
	}
	if rec.Status != "success" {
		t.Fatalf("Status = %q, want success", rec.Status)
	}
	if rec.Payload["api_token"] != MaskedSecretValue {
		t.Fatalf("api_token = %v, want masked", rec.Payload["api_token"])
	}
	if rec.Payload["value"] != "x" {
		t.Fatalf("value = %v, want x", rec.Payload["value"])
	}

	missing := FilterRecords(records, "nope", 0)
	if len(missing) != 1 || missing[0].ErrorCode != ToolErrorCodeNotFound {
		t.Fatalf("not-found record = %+v", missing)
	}
}

func TestRegistryEmitsObservations(t *testing.T) {
	obs := withRecordingObserver(t)
	reg := NewRegistry(RegistryConfig{Sources: []CandidateSource{StaticSource{
		{Module: "echo", Definition: definitionWith("echo", nil), Run: echoRun},
		{Module: "mocked", Definition: definitionWith("mocked", func(d Definition) { d["mock"] = true })},
	}}})

	if _, err := reg.Dispatch(context.Background(), "echo", map[string]any{}); err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(obs.discovered) != 1 {
		t.Fatalf("discovery observations = %d, want 1", len(obs.discovered))
	}
	if d := obs.discovered[0]; d.Candidates != 2 || d.Registered != 1 || d.Excluded != 1 {
		t.Fatalf("discovery = %+v", d)
	}
	if len(obs.dispatches) != 1 || !obs.dispatches[0].Success || obs.dispatches[0].Status != "success" {
		t.Fatalf("dispatches = %+v", obs.dispatches)
	}
}

func TestResultStatus(t *testing.T) {
	if got := ResultStatus(map[string]any{"status": "noop"}); got != "noop" {
		t.Fatalf("ResultStatus(map) = %q, want noop", got)
	}
	if got := ResultStatus(42); got != "" {
		t.Fatalf("ResultStatus(42) = %q, want empty", got)
	}
}
