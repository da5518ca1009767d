package tool

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrToolNotFound is returned when no registered tool has the requested id.
	ErrToolNotFound = errors.New("tool not found")
	// ErrToolNotRunnable is returned when a tool is registered but has no run function bound.
	ErrToolNotRunnable = errors.New("tool not runnable")
)

const (
	// ToolErrorCodeNotFound marks dispatch to an unknown tool id.
	ToolErrorCodeNotFound = "NOT_FOUND"
	// ToolErrorCodeNotRunnable marks dispatch to a listed tool without a run function.
	ToolErrorCodeNotRunnable = "NOT_RUNNABLE"
	// ToolErrorCodeInvalidPayload is returned when a payload fails the tool's input schema.
	ToolErrorCodeInvalidPayload = "INVALID_PAYLOAD"
	// ToolErrorCodeInvalidSchema is returned when a contract's input schema cannot be compiled.
	ToolErrorCodeInvalidSchema = "INVALID_SCHEMA"
	// ToolErrorCodeTransportFailure is returned when a command-bound tool cannot be reached.
	ToolErrorCodeTransportFailure = "TRANSPORT_FAILURE"
	// ToolErrorCodeTimeout is returned when a command-bound tool exceeds its deadline.
	ToolErrorCodeTimeout = "TIMEOUT"
	// ToolErrorCodeDecodeFailure is returned when a command-bound tool prints invalid JSON.
	ToolErrorCodeDecodeFailure = "DECODE_FAILURE"
	// ToolErrorCodeInvocationFailed is a generic fallback for run failures.
	ToolErrorCodeInvocationFailed = "INVOCATION_FAILED"
)

// ToolError is a structured dispatch error that keeps a machine-readable code
// across the registry, HTTP, MCP, and CLI surfaces.
type ToolError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
	Cause     error          `json:"-"`
}

func (e *ToolError) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ToolErrorCodeInvocationFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *ToolError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func newToolError(code, message string, retryable bool, cause error) *ToolError {
	cleanCode := strings.TrimSpace(code)
	if cleanCode == "" {
		cleanCode = ToolErrorCodeInvocationFailed
	}
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &ToolError{
		Code:      cleanCode,
		Message:   cleanMsg,
		Retryable: retryable,
		Cause:     cause,
	}
}

func withToolErrorDetails(err *ToolError, details map[string]any) *ToolError {
	if err == nil {
		return nil
	}
	if len(details) == 0 {
		return err
	}
	if err.Details == nil {
		err.Details = make(map[string]any, len(details))
	}
	for key, value := range details {
		err.Details[key] = value
	}
	return err
}

// AsToolError extracts a *ToolError from err's chain.
func AsToolError(err error) (*ToolError, bool) {
	if err == nil {
		return nil, false
	}
	var toolErr *ToolError
	if errors.As(err, &toolErr) {
		return toolErr, true
	}
	return nil, false
}

// ErrorCode returns the ToolError code in err's chain, or "" when there is none.
func ErrorCode(err error) string {
	if toolErr, ok := AsToolError(err); ok && toolErr != nil {
		return toolErr.Code
	}
	return ""
}

func errorCodeOrDefault(err error, fallback string) string {
	if code := ErrorCode(err); strings.TrimSpace(code) != "" {
		return code
	}
	if strings.TrimSpace(fallback) == "" {
		return ToolErrorCodeInvocationFailed
	}
	return fallback
}
