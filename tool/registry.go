package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunFunc invokes a tool with a caller payload. Built-in tools report
// execution failures inside the returned value; the error is reserved for
// transport-level faults such as a command-bound tool that cannot start.
type RunFunc func(ctx context.Context, payload map[string]any) (any, error)

// Candidate is one tool module offered to discovery.
type Candidate struct {
	Module     string
	Definition any
	Run        RunFunc
	// LoadErr is set when the source found the module but could not load it.
	LoadErr error
}

// CandidateSource enumerates candidate modules.
type CandidateSource interface {
	Candidates(ctx context.Context) ([]Candidate, error)
}

// StaticSource is a fixed, compiled-in list of candidates.
type StaticSource []Candidate

// Candidates returns a copy of the static list.
func (s StaticSource) Candidates(ctx context.Context) ([]Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return slices.Clone(s), nil
}

var reservedModules = map[string]struct{}{
	"registry": {},
	"contract": {},
}

// IsReservedModule reports whether a module name is private or infrastructure
// and must never be treated as a tool.
func IsReservedModule(name string) bool {
	if strings.HasPrefix(name, "_") {
		return true
	}
	_, ok := reservedModules[name]
	return ok
}

// Tool is the registry record for one discovered tool.
type Tool struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	Module      string `json:"module"`
	Version     string `json:"version"`
	Runnable    bool   `json:"runnable"`
}

// DispatchResult is the registry's answer to a dispatch. Result is the tool's
// return value, unmodified.
type DispatchResult struct {
	ToolID    string `json:"tool_id"`
	Result    any    `json:"result"`
	RequestID string `json:"-"`
}

// RegistryConfig configures a Registry.
type RegistryConfig struct {
	Sources []CandidateSource
	// History receives one record per dispatch when set.
	History Store
	// DisableSchemaEnforcement skips the input_schema payload check at dispatch.
	DisableSchemaEnforcement bool
	Logger                   *slog.Logger
	Now                      func() time.Time
}

// Registry discovers, gates, and dispatches tools. Its tables are rebuilt
// wholesale on every Discover and every Dispatch.
type Registry struct {
	sources       []CandidateSource
	history       Store
	enforceSchema bool
	logger        *slog.Logger
	now           func() time.Time

	mu        sync.RWMutex
	tools     map[string]Tool
	runners   map[string]RunFunc
	contracts map[string]Contract
	order     []string
}

// NewRegistry creates a registry over the given candidate sources.
func NewRegistry(cfg RegistryConfig) *Registry {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	return &Registry{
		sources:       slices.Clone(cfg.Sources),
		history:       cfg.History,
		enforceSchema: !cfg.DisableSchemaEnforcement,
		logger:        cfg.Logger,
		now:           cfg.Now,
		tools:         map[string]Tool{},
		runners:       map[string]RunFunc{},
		contracts:     map[string]Contract{},
	}
}

type registryTables struct {
	tools     map[string]Tool
	runners   map[string]RunFunc
	contracts map[string]Contract
	order     []string
}

// Discover rescans every source and replaces the registry tables. Invalid
// candidates are excluded silently; the returned tools are ordered by module.
func (r *Registry) Discover(ctx context.Context) ([]Tool, error) {
	if r == nil {
		return nil, errors.New("tool: registry is nil")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	start := time.Now()
	candidates := r.collect(ctx)
	tables := registryTables{
		tools:     make(map[string]Tool, len(candidates)),
		runners:   make(map[string]RunFunc, len(candidates)),
		contracts: make(map[string]Contract, len(candidates)),
	}

	excluded := 0
	for _, candidate := range candidates {
		if IsReservedModule(candidate.Module) {
			continue
		}
		if !r.admit(candidate, &tables) {
			excluded++
		}
	}

	r.mu.Lock()
	r.tools = tables.tools
	r.runners = tables.runners
	r.contracts = tables.contracts
	r.order = tables.order
	r.mu.Unlock()

	emitDiscoveryObservation(DiscoveryObservation{
		Candidates: len(candidates),
		Registered: len(tables.order),
		Excluded:   excluded,
		DurationMS: time.Since(start).Milliseconds(),
	})

	return r.List(), nil
}

// List returns the tools from the most recent discovery pass without rescanning.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tools[id])
	}
	return out
}

// Lookup returns a tool and its contract from the most recent discovery pass.
func (r *Registry) Lookup(id string) (Tool, Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[id]
	if !ok {
		return Tool{}, Contract{}, false
	}
	return t, r.contracts[id], true
}

func (r *Registry) collect(ctx context.Context) []Candidate {
	var all []Candidate
	for _, source := range r.sources {
		if source == nil {
			continue
		}
		found, err := source.Candidates(ctx)
		if err != nil {
			r.logger.Warn("tool source enumeration failed", "source", fmt.Sprintf("%T", source), "error", err)
			continue
		}
		all = append(all, found...)
	}
	slices.SortStableFunc(all, func(a, b Candidate) int {
		return strings.Compare(a.Module, b.Module)
	})
	return all
}

func (r *Registry) admit(candidate Candidate, tables *registryTables) bool {
	if candidate.LoadErr != nil {
		r.logger.Debug("tool excluded by load failure", "module", candidate.Module, "error", candidate.LoadErr)
		return false
	}
	validation := Validate(candidate.Definition)
	if !validation.OK {
		r.logger.Debug("tool excluded by contract validation",
			"module", candidate.Module,
			"issues", FormatIssues(validation.Errors()),
		)
		return false
	}

	def, _ := asDefinition(candidate.Definition)
	contract, err := Coerce(def)
	if err != nil {
		r.logger.Debug("tool excluded by contract coercion", "module", candidate.Module, "error", err)
		return false
	}

	record := Tool{
		ID:          contract.ID,
		Name:        contract.Name,
		Icon:        contract.Icon,
		Description: contract.Description,
		Module:      candidate.Module,
		Version:     contract.Version,
		Runnable:    candidate.Run != nil,
	}
	if record.ID == "" {
		record.ID = candidate.Module
		contract.ID = candidate.Module
	}
	if record.Name == "" {
		record.Name = candidate.Module
		contract.Name = candidate.Module
	}

	if existing, dup := tables.tools[record.ID]; dup {
		r.logger.Warn("duplicate tool id ignored",
			"tool_id", record.ID,
			"module", candidate.Module,
			"registered_module", existing.Module,
		)
		return false
	}

	tables.tools[record.ID] = record
	tables.contracts[record.ID] = contract
	if candidate.Run != nil {
		tables.runners[record.ID] = candidate.Run
	}
	tables.order = append(tables.order, record.ID)
	return true
}

// Dispatch rescans the sources, resolves toolID, and runs the tool with
// payload. Unknown ids fail with ErrToolNotFound; listed tools without a run
// function fail with ErrToolNotRunnable.
func (r *Registry) Dispatch(ctx context.Context, toolID string, payload map[string]any) (DispatchResult, error) {
	if r == nil {
		return DispatchResult{}, errors.New("tool: registry is nil")
	}

	requestID := uuid.NewString()
	startedAt := r.now()
	start := time.Now()

	result, err := r.dispatch(ctx, toolID, payload)
	result.RequestID = requestID

	duration := time.Since(start).Milliseconds()
	status := ResultStatus(result.Result)
	emitDispatchObservation(DispatchObservation{
		ToolID:     toolID,
		DurationMS: duration,
		Success:    err == nil,
		Status:     status,
		ErrorCode:  ErrorCode(err),
	})

	logArgs := []any{"tool_id", toolID, "request_id", requestID, "duration_ms", duration}
	if err != nil {
		r.logger.Info("tool dispatch rejected", append(logArgs, "error", err)...)
	} else {
		r.logger.Info("tool dispatched", append(logArgs, "status", status)...)
	}

	r.record(ctx, DispatchRecord{
		ID:         requestID,
		ToolID:     toolID,
		Status:     status,
		ErrorCode:  ErrorCode(err),
		Error:      errorMessage(err),
		Payload:    MaskSensitivePayload(payload),
		Result:     encodeResult(result.Result),
		StartedAt:  startedAt,
		DurationMS: duration,
	})

	return result, err
}

func (r *Registry) dispatch(ctx context.Context, toolID string, payload map[string]any) (DispatchResult, error) {
	if _, err := r.Discover(ctx); err != nil {
		return DispatchResult{ToolID: toolID}, err
	}

	r.mu.RLock()
	_, known := r.tools[toolID]
	run := r.runners[toolID]
	contract := r.contracts[toolID]
	r.mu.RUnlock()

	if !known {
		return DispatchResult{ToolID: toolID}, newToolError(
			ToolErrorCodeNotFound,
			fmt.Sprintf("unknown tool: %s", toolID),
			false,
			ErrToolNotFound,
		)
	}
	if run == nil {
		return DispatchResult{ToolID: toolID}, newToolError(
			ToolErrorCodeNotRunnable,
			fmt.Sprintf("tool %s has no run function", toolID),
			false,
			ErrToolNotRunnable,
		)
	}
	if r.enforceSchema {
		if err := ValidatePayload(contract, payload); err != nil {
			return DispatchResult{ToolID: toolID}, err
		}
	}

	out, err := run(ctx, payload)
	if err != nil {
		if toolErr, ok := AsToolError(err); ok {
			return DispatchResult{ToolID: toolID}, withToolErrorDetails(toolErr, map[string]any{"tool_id": toolID})
		}
		return DispatchResult{ToolID: toolID}, withToolErrorDetails(
			newToolError(errorCodeOrDefault(err, ToolErrorCodeInvocationFailed), "tool: run "+toolID+" failed", false, err),
			map[string]any{"tool_id": toolID},
		)
	}
	return DispatchResult{ToolID: toolID, Result: out}, nil
}

func (r *Registry) record(ctx context.Context, rec DispatchRecord) {
	if r.history == nil {
		return
	}
	if err := r.history.Upsert(context.WithoutCancel(ctx), rec); err != nil {
		r.logger.Warn("dispatch history write failed", "tool_id", rec.ToolID, "request_id", rec.ID, "error", err)
	}
}

// StatusReporter is implemented by tool results that carry a status field.
type StatusReporter interface {
	ResultStatus() string
}

// ResultStatus extracts the status of a tool result, or "" when it has none.
func ResultStatus(result any) string {
	switch typed := result.(type) {
	case nil:
		return ""
	case StatusReporter:
		return typed.ResultStatus()
	case map[string]any:
		status, _ := typed["status"].(string)
		return status
	default:
		return ""
	}
}

func encodeResult(result any) json.RawMessage {
	if result == nil {
		return nil
	}
	data, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	return data
}

func errorMessage(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
