// Package inbox declares the Inbox Cleaner tool. It is runnable but performs
// no mail access yet and always reports a noop.
package inbox

import (
	"context"

	"github.com/wspotter/kit/tool"
)

const (
	// ToolID is the registry id of the inbox cleaner.
	ToolID = "inbox"
	// Module is the catalog module name.
	Module = "inbox_cleaner"

	// NoopMessage is returned by every run.
	NoopMessage = "Inbox cleaner not implemented yet."
)

// Contract is the published definition of the tool.
func Contract() tool.Contract {
	return tool.Contract{
		ID:              ToolID,
		Name:            "Inbox Cleaner",
		Icon:            "envelope",
		Description:     "Inbox cleanup powered by the Ralph Loop (not implemented yet).",
		Version:         "0.1.0",
		RalphLoop:       true,
		AllowNetwork:    tool.AccessNone,
		AllowFilesystem: tool.AccessNone,
		InputSchema: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"dry_run": map[string]any{"type": "boolean", "default": true},
			},
			"required":             []any{},
			"additionalProperties": false,
		},
	}
}

// Result is the tool's return value.
type Result struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// ResultStatus implements tool.StatusReporter.
func (r Result) ResultStatus() string {
	return r.Status
}

// Run ignores the payload.
func Run(ctx context.Context, _ map[string]any) (any, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return Result{Status: "noop", Message: NoopMessage}, nil
}

// Candidate returns the catalog entry for the tool.
func Candidate() tool.Candidate {
	return tool.Candidate{
		Module:     Module,
		Definition: Contract().Definition(),
		Run:        Run,
	}
}
