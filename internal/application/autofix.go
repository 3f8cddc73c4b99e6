package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

const (
	defaultFixTimeout = 5 * time.Minute
	// estimatedLinesPerFile sizes a dry run when the fix has not been executed.
	estimatedLinesPerFile = 10
)

// ProjectInfo describes the checkout the engine repairs.
type ProjectInfo struct {
	RepoFullName   string
	WorkDir        string
	Language       string
	PackageManager string
	FixTimeout     time.Duration // Zero means five minutes.
}

// AutoFixDeps holds the collaborators of an AutoFixEngine.
type AutoFixDeps struct {
	VCS      driven.VersionControl
	Runner   driven.ProcessRunner
	Verifier driven.Verifier
	Resolver driven.CommandResolver
	PRs      driven.PRCreator // Optional. Nil commits fixes in place.
	Metrics  *MetricsRecorder // Optional. Nil creates a recorder owned by the engine.
}

// AutoFixEngine attempts bounded, rollback-safe repairs of classified CI
// failures. It owns the working tree for the duration of one AttemptFix call;
// concurrent calls on one engine are serialized.
type AutoFixEngine struct {
	cfg     model.AutoFixConfig
	project ProjectInfo

	vcs      driven.VersionControl
	runner   driven.ProcessRunner
	verifier driven.Verifier
	resolver driven.CommandResolver
	prs      driven.PRCreator
	metrics  *MetricsRecorder

	fixMu sync.Mutex // held for the whole mutating phase of an attempt

	mu             sync.Mutex
	attempts       map[model.ErrorType]int
	snapshotActive bool

	now func() time.Time
}

// NewAutoFixEngine creates an AutoFixEngine.
func NewAutoFixEngine(cfg model.AutoFixConfig, project ProjectInfo, deps AutoFixDeps) *AutoFixEngine {
	if project.FixTimeout <= 0 {
		project.FixTimeout = defaultFixTimeout
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = NewMetricsRecorder()
	}

	return &AutoFixEngine{
		cfg:      cfg,
		project:  project,
		vcs:      deps.VCS,
		runner:   deps.Runner,
		verifier: deps.Verifier,
		resolver: deps.Resolver,
		prs:      deps.PRs,
		metrics:  metrics,
		attempts: make(map[model.ErrorType]int),
		now:      time.Now,
	}
}

// IsAutoFixable reports whether failures of this kind can be repaired by a
// tool. Security issues are fixable only when they are dependency findings.
func IsAutoFixable(errorType model.ErrorType, subtype model.SecuritySubtype) bool {
	switch errorType {
	case model.ErrorTypeLintingError, model.ErrorTypeFormatError:
		return true
	case model.ErrorTypeSecurityIssue:
		return subtype == model.SecurityDependency
	default:
		return false
	}
}

// fixTask maps a fixable failure to the resolver task that repairs it.
func fixTask(errorType model.ErrorType) string {
	switch errorType {
	case model.ErrorTypeLintingError:
		return driven.TaskLintFix
	case model.ErrorTypeFormatError:
		return driven.TaskFormat
	default:
		return driven.TaskAuditFix
	}
}

// AttemptsUsed returns the non-dry-run attempts made for an error type.
func (e *AutoFixEngine) AttemptsUsed(errorType model.ErrorType) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempts[errorType]
}

// ExportMetrics returns the engine's metrics document.
func (e *AutoFixEngine) ExportMetrics() model.AutoFixMetrics {
	return e.metrics.Export()
}

// ResetMetrics zeroes the metrics. Attempt budgets and any attempt in progress
// are unaffected.
func (e *AutoFixEngine) ResetMetrics() {
	e.metrics.Reset()
}

// AttemptFix tries to repair one failure. Every outcome the engine can classify
// is returned as a result with a nil error; a non-nil error means a
// collaborator failed unexpectedly. On every path other than success the
// working tree is restored to its state before the call.
func (e *AutoFixEngine) AttemptFix(ctx context.Context, failure model.FailureDetail, prNumber int, dryRun bool) (*model.AutoFixResult, error) {
	errorType := failure.ErrorType
	dryRun = dryRun || e.cfg.EnableDryRun

	if used := e.AttemptsUsed(errorType); used >= e.cfg.MaxAttempts {
		e.metrics.recordSkip(model.FixMaxAttemptsExceeded)
		return &model.AutoFixResult{
			Reason:    model.FixMaxAttemptsExceeded,
			ErrorType: errorType,
			Attempts:  used,
		}, nil
	}

	if !IsAutoFixable(errorType, failure.SecuritySubtype) {
		e.metrics.recordSkip(model.FixNotAutoFixable)
		return &model.AutoFixResult{Reason: model.FixNotAutoFixable, ErrorType: errorType}, nil
	}

	command, err := e.resolver.Resolve(ctx, fixTask(errorType), e.project.Language, e.project.PackageManager)
	if errors.Is(err, driven.ErrNoCommand) {
		e.metrics.recordSkip(model.FixNoCommand)
		return &model.AutoFixResult{Reason: model.FixNoCommand, ErrorType: errorType}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolving fix command for %s: %w", errorType, err)
	}

	if dryRun {
		e.metrics.recordDryRun()
		slog.Info("auto-fix dry run", "pr", prNumber, "error_type", string(errorType), "command", command)
		return &model.AutoFixResult{
			Success:        true,
			DryRun:         true,
			ErrorType:      errorType,
			Command:        command,
			EstimatedLines: max(len(failure.AffectedFiles), 1) * estimatedLinesPerFile,
		}, nil
	}

	return e.execute(ctx, failure, prNumber, command)
}

// execute runs the mutating phase of an attempt under the work-tree lock.
func (e *AutoFixEngine) execute(ctx context.Context, failure model.FailureDetail, prNumber int, command string) (*model.AutoFixResult, error) {
	e.fixMu.Lock()
	defer e.fixMu.Unlock()

	unlock, err := e.vcs.Lock(ctx)
	if err != nil {
		return nil, fmt.Errorf("locking work tree: %w", err)
	}
	defer func() {
		if err := unlock(); err != nil {
			slog.Error("work tree unlock failed", "error", err)
		}
	}()

	errorType := failure.ErrorType
	// The check in AttemptFix is advisory; the budget is taken here, under the lock.
	attempts, ok := e.reserveAttempt(errorType)
	if !ok {
		e.metrics.recordSkip(model.FixMaxAttemptsExceeded)
		return &model.AutoFixResult{Reason: model.FixMaxAttemptsExceeded, ErrorType: errorType, Attempts: attempts}, nil
	}
	start := e.now()
	e.metrics.recordAttempt(errorType)

	result := &model.AutoFixResult{ErrorType: errorType, Attempts: attempts, Command: command}
	log := slog.With("pr", prNumber, "error_type", string(errorType), "attempt", attempts)

	if err := e.snapshot(ctx); err != nil {
		e.metrics.recordFailure(errorType, model.FixUnexpectedError)
		return nil, fmt.Errorf("snapshotting work tree: %w", err)
	}
	// Whatever happens below, an outstanding snapshot is restored on the way out.
	defer func() {
		if err := e.rollback(ctx); err != nil {
			log.Error("deferred rollback failed", "error", err)
		}
	}()

	log.Info("running auto-fix", "command", command)
	run, err := e.runner.Run(ctx, command, driven.RunOptions{Timeout: e.project.FixTimeout, Dir: e.project.WorkDir})
	if err != nil || run.ExitCode != 0 {
		if err != nil {
			log.Warn("fix command could not run", "error", err)
		} else {
			log.Warn("fix command failed", "exit_code", run.ExitCode, "stderr", truncate(run.Stderr, 500))
		}
		return e.fail(ctx, result, model.FixExecutionFailed)
	}

	changed, err := e.vcs.DiffStat(ctx)
	if err != nil {
		return e.abort(ctx, result, fmt.Errorf("measuring fix size: %w", err))
	}
	result.ChangedLines = changed

	if changed == 0 {
		log.Info("fix command made no changes")
		return e.fail(ctx, result, model.FixNoChanges)
	}
	if changed > e.cfg.MaxChangedLines {
		log.Warn("fix exceeds change limit", "changed_lines", changed, "max_changed_lines", e.cfg.MaxChangedLines)
		return e.fail(ctx, result, model.FixTooManyChanges)
	}

	if e.cfg.RequireTests {
		verification, err := e.verifier.RunChecks(ctx, driven.VerifyOptions{
			Dir:       e.project.WorkDir,
			ErrorType: errorType,
		})
		if err != nil {
			return e.abort(ctx, result, fmt.Errorf("verifying fix: %w", err))
		}
		if !verification.Success {
			result.VerificationFailed = true
			result.VerificationErrors = verification.Errors
			e.metrics.recordVerificationFailure()
			log.Warn("fix failed verification", "errors", len(verification.Errors))
			return e.fail(ctx, result, model.FixVerificationFailed)
		}
	}

	if err := e.materialize(ctx, failure, prNumber, result); err != nil {
		return e.abort(ctx, result, err)
	}

	e.metrics.recordSuccess(errorType, e.now().Sub(start))
	result.Success = true
	log.Info("auto-fix succeeded", "changed_lines", changed, "fix_pr", result.PRNumber)
	return result, nil
}

// materialize commits the fix and releases the snapshot. With PR creation
// enabled the commit goes to a new branch that is pushed and proposed against
// the original one; push or PR failures leave the committed branch in place.
func (e *AutoFixEngine) materialize(ctx context.Context, failure model.FailureDetail, prNumber int, result *model.AutoFixResult) error {
	openPR := e.cfg.CreatePR && e.prs != nil

	var base, branch string
	if openPR {
		var err error
		base, err = e.vcs.CurrentBranch(ctx)
		if err != nil {
			return fmt.Errorf("reading current branch: %w", err)
		}
		branch = fixBranchName(failure.ErrorType, prNumber, e.now())
		if err := e.vcs.CreateBranch(ctx, branch); err != nil {
			return fmt.Errorf("creating fix branch %s: %w", branch, err)
		}
	}

	if err := e.vcs.CommitAll(ctx, fixTitle(failure.ErrorType, prNumber)); err != nil {
		return fmt.Errorf("committing fix: %w", err)
	}

	e.mu.Lock()
	err := e.vcs.StashDrop(ctx)
	e.snapshotActive = false
	e.mu.Unlock()
	if err != nil {
		slog.Warn("dropping snapshot after commit failed", "error", err)
	}

	if !openPR {
		return nil
	}

	if err := e.vcs.Push(ctx, branch); err != nil {
		slog.Warn("pushing fix branch failed, PR not opened", "branch", branch, "error", err)
		return nil
	}
	created, err := e.prs.CreatePR(ctx, e.project.RepoFullName, model.NewPullRequest{
		Title: fixTitle(failure.ErrorType, prNumber),
		Body:  fixBody(failure, prNumber, result),
		Head:  branch,
		Base:  base,
	})
	if err != nil {
		slog.Warn("opening fix PR failed", "branch", branch, "error", err)
		return nil
	}
	result.PRNumber = created.Number
	result.PRURL = created.URL
	return nil
}

// fail rolls back and reports a classified failure.
func (e *AutoFixEngine) fail(ctx context.Context, result *model.AutoFixResult, reason model.FixReason) (*model.AutoFixResult, error) {
	result.Reason = reason
	e.metrics.recordFailure(result.ErrorType, reason)

	if err := e.rollback(ctx); err != nil {
		return result, fmt.Errorf("rolling back after %s: %w", reason, err)
	}
	result.RolledBack = true
	return result, nil
}

// abort rolls back after an unexpected collaborator error.
func (e *AutoFixEngine) abort(ctx context.Context, result *model.AutoFixResult, cause error) (*model.AutoFixResult, error) {
	result.Reason = model.FixUnexpectedError
	e.metrics.recordFailure(result.ErrorType, model.FixUnexpectedError)

	if err := e.rollback(ctx); err != nil {
		return nil, multierror.Append(cause, fmt.Errorf("rolling back: %w", err))
	}
	return nil, cause
}

// reserveAttempt takes one attempt from an error type's budget and returns the
// attempts used. It reports false, leaving the count as is, once the budget is spent.
func (e *AutoFixEngine) reserveAttempt(errorType model.ErrorType) (int, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if used := e.attempts[errorType]; used >= e.cfg.MaxAttempts {
		return used, false
	}
	e.attempts[errorType]++
	return e.attempts[errorType], true
}

// snapshot records the pre-attempt work tree. Only one snapshot may be outstanding.
func (e *AutoFixEngine) snapshot(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.snapshotActive {
		return model.ErrSnapshotOutstanding
	}
	if err := e.vcs.Stash(ctx); err != nil {
		return err
	}
	e.snapshotActive = true
	return nil
}

// rollback restores the outstanding snapshot, if any. It is idempotent and
// runs even when ctx has been cancelled.
func (e *AutoFixEngine) rollback(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.snapshotActive {
		return nil
	}
	if err := e.vcs.StashPop(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	e.snapshotActive = false
	e.metrics.recordRollback()
	return nil
}

func fixBranchName(errorType model.ErrorType, prNumber int, now time.Time) string {
	slug := strings.ReplaceAll(strings.ToLower(string(errorType)), "_", "-")
	return fmt.Sprintf("ciwatch/autofix-%s-pr%d-%d", slug, prNumber, now.Unix())
}

func fixTitle(errorType model.ErrorType, prNumber int) string {
	return fmt.Sprintf("fix(ci): auto-fix %s for #%d", strings.ToLower(string(errorType)), prNumber)
}

func fixBody(failure model.FailureDetail, prNumber int, result *model.AutoFixResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Automated fix for the `%s` check failing on #%d.\n\n", failure.CheckName, prNumber)
	fmt.Fprintf(&b, "- Error type: %s\n", failure.ErrorType)
	fmt.Fprintf(&b, "- Command: `%s`\n", result.Command)
	fmt.Fprintf(&b, "- Changed lines: %d\n", result.ChangedLines)
	if len(failure.AffectedFiles) > 0 {
		b.WriteString("\nAffected files:\n")
		for _, f := range failure.AffectedFiles {
			fmt.Fprintf(&b, "- `%s`\n", f)
		}
	}
	return b.String()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
