package transcode

import (
	"context"
	"errors"
	"os/exec"
	"slices"
	"testing"
	"time"
)

func requireShell(t *testing.T) string {
	t.Helper()
	sh, err := exec.LookPath("sh")
	if err != nil {
		t.Skip("sh not available")
	}
	return sh
}

func TestExecRunner_StreamsLinesAndStatus(t *testing.T) {
	sh := requireShell(t)

	var lines []string
	status, err := NewExecRunner().Run(context.Background(),
		[]string{sh, "-c", `echo "Encoding: 10 %"; printf 'task 1\rtask 2\n'; echo oops >&2; exit 0`},
		func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if status.Failed() || !status.Known {
		t.Errorf("expected known zero status, got %v", status)
	}

	for _, want := range []string{"Encoding: 10 %", "task 1", "task 2", "oops"} {
		if !slices.Contains(lines, want) {
			t.Errorf("missing line %q in %v", want, lines)
		}
	}
}

func TestExecRunner_NonZeroExitIsNotAnError(t *testing.T) {
	sh := requireShell(t)

	status, err := NewExecRunner().Run(context.Background(), []string{sh, "-c", "exit 3"}, nil)
	if err != nil {
		t.Fatalf("Run returned error for non-zero exit: %v", err)
	}
	if !status.Failed() || status.Code != 3 {
		t.Errorf("expected failed status 3, got %v", status)
	}
}

func TestExecRunner_MissingBinary(t *testing.T) {
	_, err := NewExecRunner().Run(context.Background(), []string{"/nonexistent/HandBrakeCLI"}, nil)
	if err == nil {
		t.Fatal("expected start error for missing binary")
	}
}

func TestExecRunner_EmptyCommand(t *testing.T) {
	if _, err := NewExecRunner().Run(context.Background(), nil, nil); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestExecRunner_ContextCancel(t *testing.T) {
	sh := requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	r := &ExecRunner{WaitDelay: 100 * time.Millisecond}
	_, err := r.Run(ctx, []string{sh, "-c", "sleep 5"}, nil)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestExecRunner_KilledBySignalFails(t *testing.T) {
	sh := requireShell(t)

	status, err := NewExecRunner().Run(context.Background(), []string{sh, "-c", "kill -9 $$"}, nil)
	if err != nil {
		t.Fatalf("Run returned error for killed process: %v", err)
	}
	if !status.Known || !status.Failed() {
		t.Fatalf("expected known failed status, got %v", status)
	}
	if status.Code != 128+9 {
		t.Errorf("expected code 137, got %d", status.Code)
	}
}
