// Package process implements the ProcessRunner port with os/exec.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/shlex"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ProcessRunner = (*Runner)(nil)

// ExitCodeTimeout is reported when a command is killed for exceeding its timeout.
const ExitCodeTimeout = 124

// Runner executes commands without a shell. Commands are split with POSIX
// quoting rules, so pipes and redirects are not interpreted.
type Runner struct{}

// NewRunner creates a Runner.
func NewRunner() *Runner {
	return &Runner{}
}

// Run executes command and captures its output. A non-zero exit, including a
// timeout kill, is returned in the result with a nil error.
func (r *Runner) Run(ctx context.Context, command string, opts driven.RunOptions) (*model.ProcessResult, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing command %q: %w", command, err)
	}
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	runCtx := ctx
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Dir = opts.Dir
	cmd.WaitDelay = 5 * time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	slog.Debug("process finished", "command", argv[0], "dir", opts.Dir, "duration", time.Since(start).Round(time.Millisecond))

	result := &model.ProcessResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return result, nil
	}

	// A cancelled parent is the caller's error, not the command's.
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		result.ExitCode = ExitCodeTimeout
		result.Stderr += fmt.Sprintf("\ncommand timed out after %s", opts.Timeout)
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, nil
	}
	return nil, fmt.Errorf("starting %s: %w", argv[0], err)
}
