package tool

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"os"
	"os/exec"
	"slices"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds a command-bound tool run when neither the
// caller context nor the declaration sets a deadline.
const DefaultCommandTimeout = 30 * time.Second

// Command binds a tool's run function to a subprocess. The payload is written
// to stdin as one JSON document; stdout must hold one JSON document, which
// becomes the tool result.
type Command struct {
	Path    string            `yaml:"path" json:"path"`
	Args    []string          `yaml:"args,omitempty" json:"args,omitempty"`
	Env     map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Dir     string            `yaml:"dir,omitempty" json:"dir,omitempty"`
	Timeout time.Duration     `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// RunFunc returns a run function backed by the command.
func (c Command) RunFunc() RunFunc {
	return func(ctx context.Context, payload map[string]any) (any, error) {
		return c.run(ctx, payload)
	}
}

func (c Command) run(parent context.Context, payload map[string]any) (any, error) {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		return nil, newToolError(ToolErrorCodeTransportFailure, "tool: command path is empty", false, nil)
	}

	ctx, cancel := withCommandTimeout(parent, c.Timeout)
	defer cancel()

	if payload == nil {
		payload = map[string]any{}
	}
	input, err := json.Marshal(payload)
	if err != nil {
		return nil, newToolError(ToolErrorCodeInvalidPayload, "tool: encode command payload", false, err)
	}

	// #nosec G204 -- command and args come from a local tool declaration.
	cmd := exec.CommandContext(ctx, path, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(c.Env)...)
	}
	cmd.Stdin = bytes.NewReader(input)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, newToolError(ToolErrorCodeTimeout, "tool: command timed out", true, ctxErr)
		}
		return nil, newToolError(ToolErrorCodeTransportFailure, "tool: command canceled", false, ctxErr)
	}
	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return nil, newToolError(ToolErrorCodeTransportFailure, "tool: start command", true, runErr)
		}
		message := strings.TrimSpace(stderr.String())
		if message == "" {
			message = runErr.Error()
		}
		return nil, withToolErrorDetails(
			newToolError(ToolErrorCodeInvocationFailed, "tool: command failed: "+message, false, runErr),
			map[string]any{"stderr": message, "exit_code": exitErr.ExitCode()},
		)
	}

	return decodeCommandOutput(stdout.Bytes())
}

func withCommandTimeout(parent context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if _, hasDeadline := parent.Deadline(); hasDeadline {
		return context.WithCancel(parent)
	}
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return context.WithTimeout(parent, timeout)
}

// decodeCommandOutput parses stdout. A top-level "error" object is turned
// into a *ToolError so commands can report coded failures.
func decodeCommandOutput(raw []byte) (any, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, newToolError(ToolErrorCodeDecodeFailure, "tool: command produced no output", false, io.ErrUnexpectedEOF)
	}

	var out any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&out); err != nil {
		return nil, newToolError(ToolErrorCodeDecodeFailure, "tool: decode command output", false, err)
	}
	out = normalizeNumbers(out)

	if obj, ok := out.(map[string]any); ok {
		if errorObj, hasError := obj["error"].(map[string]any); hasError && len(obj) == 1 {
			return nil, decodeToolError(errorObj)
		}
	}
	return out, nil
}

func decodeToolError(obj map[string]any) error {
	code, _ := obj["code"].(string)
	message, _ := obj["message"].(string)
	retryable, _ := obj["retryable"].(bool)

	err := newToolError(code, message, retryable, nil)
	switch details := obj["details"].(type) {
	case nil:
	case map[string]any:
		err.Details = details
	default:
		err.Details = map[string]any{"details": details}
	}
	return err
}

// normalizeNumbers turns json.Number into int64 when integral, float64 otherwise.
func normalizeNumbers(v any) any {
	switch typed := v.(type) {
	case json.Number:
		if i, err := typed.Int64(); err == nil {
			return i
		}
		f, _ := typed.Float64()
		return f
	case map[string]any:
		for k, item := range typed {
			typed[k] = normalizeNumbers(item)
		}
		return typed
	case []any:
		for i, item := range typed {
			typed[i] = normalizeNumbers(item)
		}
		return typed
	default:
		return v
	}
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
