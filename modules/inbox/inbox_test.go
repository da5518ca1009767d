package inbox

import (
	"context"
	"testing"

	"github.com/wspotter/kit/tool"
)

func TestContractValidates(t *testing.T) {
	if result := tool.Validate(Contract().Definition()); !result.OK {
		t.Fatalf("Validate() issues = %v", result.Issues)
	}
}

func TestRunIsNoop(t *testing.T) {
	out, err := Run(context.Background(), map[string]any{"dry_run": false})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	res := out.(Result)
	if res.Status != "noop" || res.Message != NoopMessage {
		t.Fatalf("Run() = %+v, want noop", res)
	}
	if got := tool.ResultStatus(out); got != "noop" {
		t.Fatalf("ResultStatus() = %q, want noop", got)
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Run(ctx, nil); err == nil {
		t.Fatal("Run() error = nil, want context error")
	}
}
