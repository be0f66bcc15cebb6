package executor

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/domain"
)

func newTestRunner(timeout time.Duration, maxOutput int) *CommandRunner {
	return NewCommandRunner(timeout, maxOutput, zap.NewNop())
}

func TestNewCommandRunner_Defaults(t *testing.T) {
	r := NewCommandRunner(0, 0, zap.NewNop())

	if r.timeout != DefaultTimeout {
		t.Errorf("expected default timeout %s, got %s", DefaultTimeout, r.timeout)
	}
	if r.maxOutput != DefaultMaxOutput {
		t.Errorf("expected default max output %d, got %d", DefaultMaxOutput, r.maxOutput)
	}
}

func TestRun_CapturesStdoutAndStderr(t *testing.T) {
	r := newTestRunner(5*time.Second, 0)

	result, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "echo hello; echo oops >&2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 0 {
		t.Errorf("expected exit 0, got %d", result.ExitCode)
	}
	if result.Stdout != "hello\n" {
		t.Errorf("expected stdout %q, got %q", "hello\n", result.Stdout)
	}
	if result.Stderr != "oops\n" {
		t.Errorf("expected stderr %q, got %q", "oops\n", result.Stderr)
	}
	if CheckResult(result) != nil {
		t.Errorf("expected successful result, got %v", CheckResult(result))
	}
}

func TestRun_NonZeroExit(t *testing.T) {
	r := newTestRunner(5*time.Second, 0)

	result, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "echo 'disk full' >&2; exit 3"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.ExitCode != 3 {
		t.Errorf("expected exit 3, got %d", result.ExitCode)
	}

	checkErr := CheckResult(result)
	var exitErr *ExitError
	if !errors.As(checkErr, &exitErr) {
		t.Fatalf("expected *ExitError, got %v", checkErr)
	}
	if checkErr.Error() != "command exited with status 3: disk full" {
		t.Errorf("unexpected message: %q", checkErr.Error())
	}
}

func TestRun_TimeoutKillsProcessGroup(t *testing.T) {
	r := newTestRunner(100*time.Millisecond, 0)

	start := time.Now()
	// The background sleep holds stdout open; only a group kill ends it quickly.
	result, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "sleep 30 & sleep 30"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.TimedOut || result.ExitCode != -1 {
		t.Errorf("expected timeout result, got %+v", result)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout took too long: %s", elapsed)
	}
	if !strings.HasPrefix(CheckResult(result).Error(), "command timed out") {
		t.Errorf("unexpected message: %q", CheckResult(result).Error())
	}
}

func TestRun_ContextCancellation(t *testing.T) {
	r := newTestRunner(5*time.Second, 0)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := r.Run(ctx, []string{"/bin/sh", "-c", "sleep 10"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

func TestRun_OutputTruncated(t *testing.T) {
	r := newTestRunner(5*time.Second, 16)

	result, err := r.Run(context.Background(), []string{"/bin/sh", "-c", "printf 'abcdefghijklmnopqrstuvwxyz'"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := "abcdefghijklmnop\n... output truncated (16 bytes limit) ..."
	if result.Stdout != want {
		t.Errorf("expected %q, got %q", want, result.Stdout)
	}
}

func TestRun_EmptyCommand(t *testing.T) {
	r := newTestRunner(time.Second, 0)

	if _, err := r.Run(context.Background(), nil); !errors.Is(err, ErrEmptyCommand) {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestRun_MissingBinary(t *testing.T) {
	r := newTestRunner(time.Second, 0)

	result, err := r.Run(context.Background(), []string{"/nonexistent/binary"})
	if err == nil {
		t.Fatalf("expected error, got result %+v", result)
	}
}

func TestLimitedBuffer(t *testing.T) {
	tests := []struct {
		name      string
		limit     int
		writes    []string
		want      string
		truncated bool
	}{
		{"under limit", 10, []string{"abc", "def"}, "abcdef", false},
		{"exact limit", 6, []string{"abc", "def"}, "abcdef", false},
		{"split write", 4, []string{"abc", "def"}, "abcd", true},
		{"after full", 3, []string{"abc", "d", "e"}, "abc", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lb := &limitedBuffer{limit: tt.limit}
			for _, w := range tt.writes {
				n, err := lb.Write([]byte(w))
				if err != nil || n != len(w) {
					t.Fatalf("Write(%q) = %d, %v", w, n, err)
				}
			}
			if lb.String() != tt.want {
				t.Errorf("expected %q, got %q", tt.want, lb.String())
			}
			if lb.truncated != tt.truncated {
				t.Errorf("expected truncated=%v, got %v", tt.truncated, lb.truncated)
			}
		})
	}
}

func TestExitError_Message(t *testing.T) {
	err := &ExitError{Result: &domain.CommandResult{ExitCode: 1, Stderr: "first\nsecond line\n"}}
	if err.Error() != "command exited with status 1: second line" {
		t.Errorf("unexpected message: %q", err.Error())
	}

	err = &ExitError{Result: &domain.CommandResult{ExitCode: 2}}
	if err.Error() != "command exited with status 2" {
		t.Errorf("unexpected message: %q", err.Error())
	}
}
