package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/wspotter/kit/tool"
)

// Process exit codes.
const (
	exitSuccess      = 0
	exitRuntime      = 1
	exitValidation   = 2
	exitFileNotFound = 3
	exitInputParse   = 4
	exitNotFound     = 5
	exitNotRunnable  = 6
	exitTimeout      = 10
)

// ExitError is an error that carries a specific process exit code.
// Cobra's RunE returns this to signal the desired exit code to main.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

// exitError creates a new ExitError with the given code and formatted message.
func exitError(code int, format string, args ...any) *ExitError {
	return &ExitError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// dispatchExit maps a registry dispatch error onto an exit code.
func dispatchExit(toolID string, err error) *ExitError {
	if errors.Is(err, context.DeadlineExceeded) {
		return exitError(exitTimeout, "%s: timed out", toolID)
	}
	switch tool.ErrorCode(err) {
	case tool.ToolErrorCodeNotFound:
		return exitError(exitNotFound, "%v", err)
	case tool.ToolErrorCodeNotRunnable:
		return exitError(exitNotRunnable, "%v", err)
	case tool.ToolErrorCodeInvalidPayload:
		return exitError(exitInputParse, "%v", err)
	case tool.ToolErrorCodeTimeout:
		return exitError(exitTimeout, "%v", err)
	default:
		return exitError(exitRuntime, "%v", err)
	}
}
