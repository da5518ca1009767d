package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"testing"
	"time"
)

func helperCommand(env map[string]string) Command {
	merged := map[string]string{"GO_WANT_COMMAND_HELPER": "1"}
	for k, v := range env {
		merged[k] = v
	}
	return Command{
		Path: os.Args[0],
		Args: []string{"-test.run=TestCommandHelperProcess", "--"},
		Env:  merged,
	}
}

func TestCommandRunEchoesPayload(t *testing.T) {
	run := helperCommand(nil).RunFunc()
	out, err := run(context.Background(), map[string]any{"value": "hello", "n": 3})
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	result, ok := out.(map[string]any)
	if !ok {
		t.Fatalf("result type = %T, want map", out)
	}
	if result["status"] != "success" {
		t.Fatalf("status = %v, want success", result["status"])
	}
	if result["value"] != "hello" {
		t.Fatalf("value = %v, want hello", result["value"])
	}
	if result["n"] != int64(3) {
		t.Fatalf("n = %#v, want int64(3)", result["n"])
	}
}

func TestCommandRunFailures(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		code string
	}{
		{
			name: "non-zero exit",
			cmd:  helperCommand(map[string]string{"GO_COMMAND_HELPER_FAIL": "1"}),
			code: ToolErrorCodeInvocationFailed,
		},
		{
			name: "bad json",
			cmd:  helperCommand(map[string]string{"GO_COMMAND_HELPER_BAD_JSON": "1"}),
			code: ToolErrorCodeDecodeFailure,
		},
		{
			name: "coded error",
			cmd:  helperCommand(map[string]string{"GO_COMMAND_HELPER_TOOL_ERROR": "1"}),
			code: "QUOTA",
		},
		{
			name: "missing binary",
			cmd:  Command{Path: "/nonexistent/kit-tool"},
			code: ToolErrorCodeTransportFailure,
		},
		{
			name: "empty path",
			cmd:  Command{Path: "  "},
			code: ToolErrorCodeTransportFailure,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tc.cmd.RunFunc()(context.Background(), map[string]any{})
			if err == nil {
				t.Fatal("run() error = nil, want non-nil")
			}
			if got := ErrorCode(err); got != tc.code {
				t.Fatalf("ErrorCode = %q, want %q (%v)", got, tc.code, err)
			}
		})
	}
}

func TestCommandRunTimeout(t *testing.T) {
	cmd := helperCommand(map[string]string{"GO_COMMAND_HELPER_SLEEP": "1"})
	cmd.Timeout = 50 * time.Millisecond

	_, err := cmd.RunFunc()(context.Background(), map[string]any{})
	if got := ErrorCode(err); got != ToolErrorCodeTimeout {
		t.Fatalf("ErrorCode = %q, want %q (%v)", got, ToolErrorCodeTimeout, err)
	}
}

func TestCommandHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_COMMAND_HELPER") != "1" {
		return
	}

	switch {
	case os.Getenv("GO_COMMAND_HELPER_FAIL") == "1":
		_, _ = fmt.Fprintln(os.Stderr, "helper failed")
		os.Exit(2)
	case os.Getenv("GO_COMMAND_HELPER_BAD_JSON") == "1":
		_, _ = fmt.Fprintln(os.Stdout, "{bad json")
		os.Exit(0)
	case os.Getenv("GO_COMMAND_HELPER_TOOL_ERROR") == "1":
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{
			"error": map[string]any{"code": "QUOTA", "message": "quota exceeded"},
		})
		os.Exit(0)
	case os.Getenv("GO_COMMAND_HELPER_SLEEP") == "1":
		time.Sleep(5 * time.Second)
		os.Exit(0)
	}

	var payload map[string]any
	if err := json.NewDecoder(os.Stdin).Decode(&payload); err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "decode error: %v\n", err)
		os.Exit(2)
	}
	payload["status"] = "success"
	_ = json.NewEncoder(os.Stdout).Encode(payload)
	os.Exit(0)
}
