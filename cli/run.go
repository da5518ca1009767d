package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewRunCmd creates the "run" subcommand.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run <tool-id>",
		Short: "Dispatch a tool with a payload",
		Args:  cobra.ExactArgs(1),
		RunE:  runRun,
	}

	cmd.Flags().StringP("payload", "p", "", "Payload as inline JSON or YAML")
	cmd.Flags().StringP("payload-file", "f", "", "Payload from a JSON or YAML file")
	cmd.Flags().StringP("output", "o", "", "Write the result to file (default: stdout)")
	cmd.Flags().Duration("timeout", 5*time.Minute, "Execution timeout")

	return cmd
}

func runRun(cmd *cobra.Command, args []string) error {
	toolID := args[0]

	payload, err := readPayload(cmd)
	if err != nil {
		return err
	}

	rt, logger, err := openRuntime(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = rt.Close() }()

	timeout, _ := cmd.Flags().GetDuration("timeout")
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	result, err := rt.Registry.Dispatch(ctx, toolID, payload)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return exitError(exitTimeout, "execution timed out after %s", timeout)
		}
		return dispatchExit(toolID, err)
	}
	logger.Debug("dispatch complete", "tool_id", toolID, "request_id", result.RequestID)

	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return exitError(exitRuntime, "marshaling result: %v", err)
	}

	outputPath, _ := cmd.Flags().GetString("output")
	if outputPath != "" {
		if err := os.WriteFile(outputPath, append(data, '\n'), 0o600); err != nil {
			return exitError(exitRuntime, "writing output file: %v", err)
		}
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

// readPayload builds the dispatch payload from --payload or --payload-file.
func readPayload(cmd *cobra.Command) (map[string]any, error) {
	inline, _ := cmd.Flags().GetString("payload")
	file, _ := cmd.Flags().GetString("payload-file")

	if inline != "" && file != "" {
		return nil, exitError(exitInputParse, "cannot specify both --payload and --payload-file")
	}

	var data []byte
	switch {
	case inline != "":
		data = []byte(inline)
	case file != "":
		var err error
		data, err = os.ReadFile(file) // #nosec G304 -- path from user CLI flag
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return nil, exitError(exitFileNotFound, "payload file not found: %s", file)
			}
			return nil, exitError(exitRuntime, "reading payload file: %v", err)
		}
	}

	payload, err := parsePayload(data)
	if err != nil {
		return nil, exitError(exitInputParse, "parsing payload: %v", err)
	}
	return payload, nil
}

// parsePayload accepts a JSON or YAML mapping. Values are normalized through
// JSON so numbers reach tools as float64 regardless of the input format.
func parsePayload(data []byte) (map[string]any, error) {
	if strings.TrimSpace(string(data)) == "" {
		return map[string]any{}, nil
	}

	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("payload must be a mapping, got %T", doc)
	}

	encoded, err := json.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var payload map[string]any
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return nil, err
	}
	return payload, nil
}
