// Package application contains use-case orchestration services.
package application

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

const defaultInitialInterval = 5 * time.Second

// CheckStatusReader is the capability a PollScheduler needs from the
// aggregator. *CheckStatusService satisfies it.
type CheckStatusReader interface {
	GetDetailedCheckStatus(ctx context.Context, prNumber int) (*model.CheckSummary, error)
}

// PollScheduler waits for the checks of one pull request to reach a terminal
// state. Each instance serves one PR and shares no mutable state with others,
// so several PRs can be watched concurrently with one scheduler each.
type PollScheduler struct {
	checks   CheckStatusReader
	prNumber int
	state    PollState

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPollScheduler creates a PollScheduler for the given PR.
func NewPollScheduler(checks CheckStatusReader, prNumber int) *PollScheduler {
	return &PollScheduler{
		checks:   checks,
		prNumber: prNumber,
		state:    PollInitial,
		now:      time.Now,
		sleep:    sleepContext,
	}
}

// State returns the scheduler's lifecycle state.
func (s *PollScheduler) State() PollState {
	return s.state
}

// WaitForChecks polls until the PR's checks succeed, fail, fail fast, or are
// found to be absent. Classified outcomes are returned as a WaitResult with a
// nil error. Exceeding opts.Timeout returns a *model.TimeoutError; context
// cancellation returns the context's error. Fetch errors are logged and the
// poll continues.
func (s *PollScheduler) WaitForChecks(ctx context.Context, opts model.WaitOptions) (*model.WaitResult, error) {
	opts = withWaitDefaults(opts)
	strategy := opts.PollStrategy

	start := s.now()
	interval := strategy.InitialInterval
	retriesUsed := 0
	var (
		lastCounts  [3]int
		haveCounts  bool
		lastLongest time.Duration
	)

	s.state = PollPolling
	slog.Info("waiting for checks",
		"pr", s.prNumber,
		"timeout", opts.Timeout,
		"strategy", string(strategy.Type),
		"fail_fast", opts.FailFast,
	)

	for tick := 1; ; tick++ {
		summary, err := s.checks.GetDetailedCheckStatus(ctx, s.prNumber)
		switch {
		case err != nil && ctx.Err() != nil:
			return nil, ctx.Err()
		case err != nil:
			slog.Warn("check status fetch failed, will retry", "pr", s.prNumber, "tick", tick, "error", err)
		default:
			lastLongest = summary.LongestCheck
			if counts := summary.Counts(); !haveCounts || counts != lastCounts {
				lastCounts, haveCounts = counts, true
				if opts.OnProgress != nil {
					opts.OnProgress(*summary)
				}
			}

			if result := s.evaluate(summary, opts, s.now().Sub(start), &retriesUsed); result != nil {
				slog.Info("wait for checks finished",
					"pr", s.prNumber,
					"success", result.Success,
					"reason", string(result.Reason),
					"retries_used", result.RetriesUsed,
					"ticks", tick,
				)
				return result, nil
			}
		}

		elapsed := s.now().Sub(start)
		if elapsed >= opts.Timeout {
			s.state = PollTimedOut
			return nil, &model.TimeoutError{Timeout: opts.Timeout}
		}

		if tick > 1 {
			interval = CalculateNextInterval(interval, strategy, lastLongest)
		}
		delay := min(interval, opts.Timeout-elapsed)

		slog.Debug("next poll scheduled", "pr", s.prNumber, "tick", tick, "delay", delay)
		if err := s.sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// evaluate decides whether a summary ends the wait. It returns nil to keep polling.
func (s *PollScheduler) evaluate(summary *model.CheckSummary, opts model.WaitOptions, elapsed time.Duration, retriesUsed *int) *model.WaitResult {
	result := func(success bool, reason model.WaitReason) *model.WaitResult {
		return &model.WaitResult{
			Success:     success,
			Reason:      reason,
			Summary:     *summary,
			RetriesUsed: *retriesUsed,
		}
	}

	if summary.Total == 0 {
		if elapsed >= opts.NoChecksGrace {
			s.state = PollCompleted
			return result(true, model.WaitNoChecks)
		}
		return nil
	}

	if opts.FailFast {
		for _, fd := range summary.FailureDetails {
			if fd.ErrorType.IsCritical() {
				slog.Warn("critical check failure, failing fast",
					"pr", s.prNumber,
					"check", fd.CheckName,
					"error_type", string(fd.ErrorType),
				)
				s.state = PollCriticalFailure
				return result(false, model.WaitCriticalFailure)
			}
		}
	}

	if summary.Pending > 0 {
		return nil
	}

	switch summary.OverallStatus {
	case model.OverallSuccess:
		s.state = PollCompleted
		return result(true, model.WaitCompleted)
	case model.OverallFailure:
		if *retriesUsed < opts.MaxRetries && matchesRetryPattern(summary.FailureDetails, opts.RetryPatterns) {
			*retriesUsed++
			slog.Info("failure matches retry pattern, extending wait",
				"pr", s.prNumber,
				"retries_used", *retriesUsed,
				"max_retries", opts.MaxRetries,
			)
			return nil
		}
		s.state = PollFailed
		return result(false, model.WaitCompleted)
	}

	return nil
}

// matchesRetryPattern reports whether any failure's name or summary contains
// one of the patterns, case-insensitively.
func matchesRetryPattern(failures []model.FailureDetail, patterns []string) bool {
	if len(patterns) == 0 {
		return false
	}

	var b strings.Builder
	for _, fd := range failures {
		b.WriteString(fd.CheckName)
		b.WriteByte(' ')
		b.WriteString(fd.Summary)
		b.WriteByte('\n')
	}
	text := strings.ToLower(b.String())

	for _, p := range patterns {
		if p != "" && strings.Contains(text, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func withWaitDefaults(opts model.WaitOptions) model.WaitOptions {
	if opts.Timeout <= 0 {
		opts.Timeout = model.DefaultWaitTimeout
	}
	if opts.PollStrategy.Type == "" {
		opts.PollStrategy.Type = model.PollExponential
	}
	if opts.PollStrategy.InitialInterval <= 0 {
		opts.PollStrategy.InitialInterval = defaultInitialInterval
	}
	if opts.NoChecksGrace <= 0 {
		opts.NoChecksGrace = model.DefaultNoChecksGrace
	}
	if len(opts.RetryPatterns) > 0 && opts.MaxRetries <= 0 {
		opts.MaxRetries = model.DefaultMaxRetries
	}
	return opts
}

// sleepContext blocks for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
