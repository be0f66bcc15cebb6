package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/Harsh-BH/oplock/internal/domain"
)

const (
	// DefaultMaxOutput caps captured stdout/stderr per stream.
	DefaultMaxOutput = 64 * 1024

	// DefaultTimeout bounds a single command run.
	DefaultTimeout = 10 * time.Minute

	// waitDelay is how long Wait lingers for output pipes after the group is killed.
	waitDelay = 2 * time.Second
)

// ErrEmptyCommand is returned when Run is given no argv.
var ErrEmptyCommand = errors.New("empty command")

// CommandRunner runs a local command in its own process group with bounded
// output capture.
type CommandRunner struct {
	timeout   time.Duration
	maxOutput int
	logger    *zap.Logger
}

// NewCommandRunner creates a runner. Non-positive limits take the defaults.
func NewCommandRunner(timeout time.Duration, maxOutput int, logger *zap.Logger) *CommandRunner {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if maxOutput <= 0 {
		maxOutput = DefaultMaxOutput
	}
	return &CommandRunner{
		timeout:   timeout,
		maxOutput: maxOutput,
		logger:    logger,
	}
}

// Run executes argv and returns its captured result. A non-zero exit or a
// timeout is reported in the result, not as an error; errors mean the command
// could not be run at all or ctx was cancelled.
func (r *CommandRunner) Run(ctx context.Context, argv []string) (*domain.CommandResult, error) {
	if len(argv) == 0 {
		return nil, ErrEmptyCommand
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	cmd := exec.CommandContext(timeoutCtx, argv[0], argv[1:]...)

	// Run in a fresh process group so a timeout kills every descendant.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	stdout := &limitedBuffer{limit: r.maxOutput}
	stderr := &limitedBuffer{limit: r.maxOutput}
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	startTime := time.Now()
	err := cmd.Run()
	elapsed := time.Since(startTime)

	result := &domain.CommandResult{
		Argv:       argv,
		Stdout:     truncateOutput(stdout.String(), stdout.truncated, r.maxOutput),
		Stderr:     truncateOutput(stderr.String(), stderr.truncated, r.maxOutput),
		DurationMs: elapsed.Milliseconds(),
	}

	r.logger.Debug("Command finished",
		zap.Strings("argv", argv),
		zap.Duration("elapsed", elapsed),
		zap.Error(err),
	)

	if ctx.Err() != nil {
		result.ExitCode = -1
		return result, ctx.Err()
	}
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		result.TimedOut = true
		result.ExitCode = -1
		return result, nil
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
			return result, nil
		}
		return nil, fmt.Errorf("run %s: %w", argv[0], err)
	}
	return result, nil
}

// ExitError reports a command that ran but did not succeed.
type ExitError struct {
	Result *domain.CommandResult
}

func (e *ExitError) Error() string {
	if e.Result.TimedOut {
		return fmt.Sprintf("command timed out after %dms", e.Result.DurationMs)
	}
	msg := fmt.Sprintf("command exited with status %d", e.Result.ExitCode)
	if tail := lastLine(e.Result.Stderr); tail != "" {
		msg += ": " + tail
	}
	return msg
}

// CheckResult turns a non-zero exit or timeout into an *ExitError.
func CheckResult(result *domain.CommandResult) error {
	if result.TimedOut || result.ExitCode != 0 {
		return &ExitError{Result: result}
	}
	return nil
}

func lastLine(s string) string {
	s = strings.TrimRight(s, "\n")
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(s)
}

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (lb *limitedBuffer) Write(p []byte) (n int, err error) {
	if lb.truncated {
		return len(p), nil // discard silently
	}

	remaining := lb.limit - lb.buf.Len()
	if remaining <= 0 {
		lb.truncated = true
		return len(p), nil
	}

	if len(p) > remaining {
		lb.truncated = true
		lb.buf.Write(p[:remaining])
		return len(p), nil
	}

	return lb.buf.Write(p)
}

func (lb *limitedBuffer) String() string {
	return lb.buf.String()
}

// truncateOutput appends a truncation notice if the output was cut off.
func truncateOutput(s string, wasTruncated bool, limit int) string {
	if wasTruncated {
		return s + fmt.Sprintf("\n... output truncated (%d bytes limit) ...", limit)
	}
	return s
}
