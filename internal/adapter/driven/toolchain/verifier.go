package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Verifier = (*Verifier)(nil)

const (
	defaultVerifyTimeout = 10 * time.Minute
	maxErrorOutput       = 1000
)

// Verifier runs the configured verification commands one after another.
// Every command runs even after a failure so all errors are reported.
type Verifier struct {
	runner   driven.ProcessRunner
	commands []string
	timeout  time.Duration
}

// NewVerifier creates a Verifier. A zero timeout means ten minutes per command.
func NewVerifier(runner driven.ProcessRunner, commands []string, timeout time.Duration) *Verifier {
	if timeout <= 0 {
		timeout = defaultVerifyTimeout
	}
	return &Verifier{runner: runner, commands: commands, timeout: timeout}
}

// RunChecks executes every command in opts.Dir. No commands means success.
func (v *Verifier) RunChecks(ctx context.Context, opts driven.VerifyOptions) (*model.VerificationResult, error) {
	start := time.Now()
	result := &model.VerificationResult{Success: true}

	for _, command := range v.commands {
		run, err := v.runner.Run(ctx, command, driven.RunOptions{Timeout: v.timeout, Dir: opts.Dir})
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		switch {
		case err != nil:
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", command, err))
		case run.ExitCode != 0:
			result.Errors = append(result.Errors, fmt.Sprintf("%s exited with %d: %s", command, run.ExitCode, failureOutput(run)))
		default:
			continue
		}
		result.Success = false
	}

	result.Duration = time.Since(start)
	slog.Info("verification finished",
		"error_type", string(opts.ErrorType),
		"commands", len(v.commands),
		"failures", len(result.Errors),
		"duration", result.Duration.Round(time.Millisecond),
	)
	return result, nil
}

// failureOutput returns the tail of stderr, falling back to stdout.
func failureOutput(run *model.ProcessResult) string {
	out := strings.TrimSpace(run.Stderr)
	if out == "" {
		out = strings.TrimSpace(run.Stdout)
	}
	if len(out) > maxErrorOutput {
		out = "..." + out[len(out)-maxErrorOutput:]
	}
	return out
}
