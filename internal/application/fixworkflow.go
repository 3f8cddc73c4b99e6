package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

const autoMergeMethod = "squash"

// ErrAutoFixDisabled is returned by FixWorkflow.Run when auto-fix is turned off.
var ErrAutoFixDisabled = errors.New("auto-fix is disabled")

// FixWorkflowOptions selects the optional stages of a FixWorkflow run.
type FixWorkflowOptions struct {
	Enabled       bool
	WaitForChecks bool
	AutoMerge     bool
	Wait          model.WaitOptions
}

// FixWorkflow drives one PR from failing checks to attempted repairs: it
// optionally waits for checks to settle, attempts one fix per distinct error
// type, optionally merges green fix PRs, and persists the engine's metrics.
type FixWorkflow struct {
	checks CheckStatusReader
	engine *AutoFixEngine
	merger driven.PRMerger     // Optional.
	store  driven.MetricsStore // Optional.
	repo   string
	opts   FixWorkflowOptions

	newScheduler func(prNumber int) *PollScheduler
}

// NewFixWorkflow creates a FixWorkflow. merger and store may be nil.
func NewFixWorkflow(checks CheckStatusReader, engine *AutoFixEngine, merger driven.PRMerger, store driven.MetricsStore, repoFullName string, opts FixWorkflowOptions) *FixWorkflow {
	return &FixWorkflow{
		checks: checks,
		engine: engine,
		merger: merger,
		store:  store,
		repo:   repoFullName,
		opts:   opts,
		newScheduler: func(prNumber int) *PollScheduler {
			return NewPollScheduler(checks, prNumber)
		},
	}
}

// Run executes the workflow for one PR. Classified fix outcomes are in the
// report; the error is non-nil only for timeouts and unexpected failures.
func (w *FixWorkflow) Run(ctx context.Context, prNumber int, dryRun bool) (report *model.FixReport, err error) {
	if !w.opts.Enabled {
		return nil, ErrAutoFixDisabled
	}

	summary, err := w.currentFailures(ctx, prNumber)
	if err != nil {
		return nil, err
	}

	defer func() {
		if saveErr := w.saveMetrics(ctx); saveErr != nil && err == nil {
			err = saveErr
		}
	}()

	report = &model.FixReport{PRNumber: prNumber, Summary: *summary, Outcomes: []model.FixOutcome{}}
	seen := make(map[model.ErrorType]bool)

	for _, failure := range summary.FailureDetails {
		if seen[failure.ErrorType] {
			slog.Debug("skipping duplicate error type", "pr", prNumber, "check", failure.CheckName, "error_type", string(failure.ErrorType))
			continue
		}
		seen[failure.ErrorType] = true

		result, err := w.engine.AttemptFix(ctx, failure, prNumber, dryRun)
		if err != nil {
			return report, fmt.Errorf("fixing %s on PR #%d: %w", failure.CheckName, prNumber, err)
		}

		outcome := model.FixOutcome{CheckName: failure.CheckName, Result: result}
		if w.opts.AutoMerge && result.Success && !result.DryRun && result.PRNumber > 0 {
			outcome.Merged = w.mergeWhenGreen(ctx, result.PRNumber)
		}
		report.Outcomes = append(report.Outcomes, outcome)
	}

	return report, nil
}

// currentFailures returns the PR's check summary, waiting for a terminal
// state first when configured to.
func (w *FixWorkflow) currentFailures(ctx context.Context, prNumber int) (*model.CheckSummary, error) {
	if !w.opts.WaitForChecks {
		summary, err := w.checks.GetDetailedCheckStatus(ctx, prNumber)
		if err != nil {
			return nil, fmt.Errorf("reading checks for PR #%d: %w", prNumber, err)
		}
		return summary, nil
	}

	result, err := w.newScheduler(prNumber).WaitForChecks(ctx, w.opts.Wait)
	if err != nil {
		return nil, err
	}
	return &result.Summary, nil
}

// mergeWhenGreen waits for a fix PR's checks and merges it on success.
// Failures are logged; the fix itself already succeeded.
func (w *FixWorkflow) mergeWhenGreen(ctx context.Context, fixPR int) bool {
	if w.merger == nil {
		return false
	}

	opts := w.opts.Wait
	opts.OnProgress = nil
	result, err := w.newScheduler(fixPR).WaitForChecks(ctx, opts)
	if err != nil {
		slog.Warn("waiting on fix PR checks failed, not merging", "fix_pr", fixPR, "error", err)
		return false
	}
	if !result.Success {
		slog.Warn("fix PR checks did not pass, not merging", "fix_pr", fixPR, "reason", string(result.Reason))
		return false
	}

	if err := w.merger.MergePR(ctx, w.repo, fixPR, autoMergeMethod); err != nil {
		slog.Warn("merging fix PR failed", "fix_pr", fixPR, "error", err)
		return false
	}
	slog.Info("fix PR merged", "fix_pr", fixPR)
	return true
}

func (w *FixWorkflow) saveMetrics(ctx context.Context) error {
	if w.store == nil {
		return nil
	}
	if err := w.store.Save(context.WithoutCancel(ctx), w.repo, w.engine.ExportMetrics()); err != nil {
		return fmt.Errorf("saving metrics: %w", err)
	}
	return nil
}
