package cmdexec

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"testing"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestRunForwardsOutputAndUsesDir(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()

	var lines []string
	err := Default().Run(context.Background(), dir, "sh", []string{"-c", "pwd; echo warn >&2"}, func(line string) {
		lines = append(lines, line)
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	joined := strings.Join(lines, "\n")
	if !strings.Contains(joined, dir) || !strings.Contains(joined, "warn") {
		t.Fatalf("expected pwd and stderr output, got %q", joined)
	}
}

func TestRunReportsExitCode(t *testing.T) {
	requireShell(t)
	err := Default().Run(context.Background(), t.TempDir(), "sh", []string{"-c", "echo nothing to commit; exit 3"}, nil)
	code, ok := ExitCode(err)
	if !ok || code != 3 {
		t.Fatalf("expected exit code 3, got %d (%v)", code, err)
	}
	if !strings.Contains(err.Error(), "nothing to commit") {
		t.Fatalf("expected output tail in error, got %v", err)
	}
}

func TestRunMissingBinary(t *testing.T) {
	err := Default().Run(context.Background(), t.TempDir(), "apodpipe-definitely-missing", nil, nil)
	if err == nil {
		t.Fatal("expected error for missing binary")
	}
	if _, ok := ExitCode(err); ok {
		t.Fatal("missing binary should not report an exit code")
	}
}

func TestExitCodeIgnoresOtherErrors(t *testing.T) {
	if _, ok := ExitCode(errors.New("plain")); ok {
		t.Fatal("expected no exit code for plain error")
	}
}
