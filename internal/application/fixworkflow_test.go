package application

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// prChecks scripts check summaries per PR number.
type prChecks map[int]*scriptedChecks

func (p prChecks) GetDetailedCheckStatus(ctx context.Context, prNumber int) (*model.CheckSummary, error) {
	s, ok := p[prNumber]
	if !ok {
		return nil, errors.New("unexpected PR")
	}
	return s.GetDetailedCheckStatus(ctx, prNumber)
}

type workflowFixture struct {
	*engineFixture
	checks prChecks
	merger *mockMerger
	store  *mockMetricsStore
	clock  *fakeClock
}

func newWorkflowFixture(opts FixWorkflowOptions, summaries ...*model.CheckSummary) (*FixWorkflow, *workflowFixture) {
	f := &workflowFixture{
		engineFixture: newEngineFixture(model.DefaultAutoFixConfig()),
		checks:        prChecks{42: {summaries: summaries}},
		merger:        &mockMerger{},
		store:         &mockMetricsStore{},
		clock:         newFakeClock(),
	}
	w := NewFixWorkflow(f.checks, f.engine, f.merger, f.store, "owner/repo", opts)
	w.newScheduler = func(prNumber int) *PollScheduler {
		s := NewPollScheduler(f.checks, prNumber)
		s.now = f.clock.now
		s.sleep = f.clock.sleep
		return s
	}
	return w, f
}

func enabled() FixWorkflowOptions {
	return FixWorkflowOptions{Enabled: true, Wait: fixedOptions()}
}

func TestFixWorkflow_Disabled(t *testing.T) {
	w, f := newWorkflowFixture(FixWorkflowOptions{}, failedSummary(0, lintFailure()))

	_, err := w.Run(context.Background(), 42, false)

	assert.ErrorIs(t, err, ErrAutoFixDisabled)
	assert.Zero(t, f.checks[42].calls)
	assert.Empty(t, f.store.saved)
}

func TestFixWorkflow_OneAttemptPerErrorType(t *testing.T) {
	secondLint := lintFailure()
	secondLint.CheckName = "stylelint"
	unit := model.FailureDetail{CheckName: "unit", ErrorType: model.ErrorTypeTestFailure}
	w, f := newWorkflowFixture(enabled(), failedSummary(0, lintFailure(), secondLint, unit))

	report, err := w.Run(context.Background(), 42, false)

	require.NoError(t, err)
	assert.Equal(t, 42, report.PRNumber)
	assert.Equal(t, 3, report.Summary.Failed)
	require.Len(t, report.Outcomes, 2)
	assert.Equal(t, "eslint", report.Outcomes[0].CheckName)
	assert.True(t, report.Outcomes[0].Result.Success)
	assert.Equal(t, "unit", report.Outcomes[1].CheckName)
	assert.Equal(t, model.FixNotAutoFixable, report.Outcomes[1].Result.Reason)
	assert.Len(t, f.runner.calls, 1)
	assert.Equal(t, 1, f.checks[42].calls, "single fetch without waiting")

	require.Len(t, f.store.saved, 1)
	assert.Equal(t, 1, f.store.saved[0].SuccessfulFixes)
}

func TestFixWorkflow_NoFailures(t *testing.T) {
	w, f := newWorkflowFixture(enabled(), successSummary(3))

	report, err := w.Run(context.Background(), 42, false)

	require.NoError(t, err)
	assert.Empty(t, report.Outcomes)
	assert.NotNil(t, report.Outcomes)
	assert.Len(t, f.store.saved, 1)
}

func TestFixWorkflow_WaitsForChecks(t *testing.T) {
	opts := enabled()
	opts.WaitForChecks = true
	w, f := newWorkflowFixture(opts, pendingSummary(0, 1), pendingSummary(0, 1), failedSummary(0, lintFailure()))

	report, err := w.Run(context.Background(), 42, false)

	require.NoError(t, err)
	assert.Equal(t, 3, f.checks[42].calls)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Outcomes[0].Result.Success)
}

func TestFixWorkflow_WaitTimeout(t *testing.T) {
	opts := enabled()
	opts.WaitForChecks = true
	w, f := newWorkflowFixture(opts, pendingSummary(0, 1))

	_, err := w.Run(context.Background(), 42, false)

	var timeoutErr *model.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	assert.Empty(t, f.runner.calls)
}

func TestFixWorkflow_DryRun(t *testing.T) {
	w, f := newWorkflowFixture(enabled(), failedSummary(0, lintFailure()))

	report, err := w.Run(context.Background(), 42, true)

	require.NoError(t, err)
	require.Len(t, report.Outcomes, 1)
	assert.True(t, report.Outcomes[0].Result.DryRun)
	assert.Empty(t, f.runner.calls)
	require.Len(t, f.store.saved, 1)
	assert.Equal(t, 1, f.store.saved[0].DryRunAttempts)
}

func TestFixWorkflow_AutoMerge(t *testing.T) {
	t.Run("merges a green fix PR", func(t *testing.T) {
		opts := enabled()
		opts.AutoMerge = true
		w, f := newWorkflowFixture(opts, failedSummary(0, lintFailure()))
		f.checks[101] = &scriptedChecks{summaries: []*model.CheckSummary{pendingSummary(0, 1), successSummary(1)}}

		report, err := w.Run(context.Background(), 42, false)

		require.NoError(t, err)
		require.Len(t, report.Outcomes, 1)
		assert.True(t, report.Outcomes[0].Merged)
		assert.Equal(t, []int{101}, f.merger.merged)
		assert.Equal(t, 2, f.checks[101].calls)
	})

	t.Run("leaves a red fix PR open", func(t *testing.T) {
		opts := enabled()
		opts.AutoMerge = true
		w, f := newWorkflowFixture(opts, failedSummary(0, lintFailure()))
		f.checks[101] = &scriptedChecks{summaries: []*model.CheckSummary{failedSummary(0, lintFailure())}}

		report, err := w.Run(context.Background(), 42, false)

		require.NoError(t, err)
		assert.False(t, report.Outcomes[0].Merged)
		assert.Empty(t, f.merger.merged)
	})

	t.Run("merge failure is not fatal", func(t *testing.T) {
		opts := enabled()
		opts.AutoMerge = true
		w, f := newWorkflowFixture(opts, failedSummary(0, lintFailure()))
		f.checks[101] = &scriptedChecks{summaries: []*model.CheckSummary{successSummary(1)}}
		f.merger.err = errors.New("405 not mergeable")

		report, err := w.Run(context.Background(), 42, false)

		require.NoError(t, err)
		assert.False(t, report.Outcomes[0].Merged)
		assert.True(t, report.Outcomes[0].Result.Success)
	})

	t.Run("skipped without a fix PR", func(t *testing.T) {
		opts := enabled()
		opts.AutoMerge = true
		w, f := newWorkflowFixture(opts, failedSummary(0, lintFailure()))
		f.prs.err = errors.New("422 validation failed")

		report, err := w.Run(context.Background(), 42, false)

		require.NoError(t, err)
		assert.False(t, report.Outcomes[0].Merged)
		assert.Empty(t, f.merger.merged)
	})
}

func TestFixWorkflow_Errors(t *testing.T) {
	t.Run("check fetch", func(t *testing.T) {
		w, f := newWorkflowFixture(enabled())
		f.checks[42] = &scriptedChecks{summaries: []*model.CheckSummary{nil}, errs: []error{errors.New("502 bad gateway")}}

		_, err := w.Run(context.Background(), 42, false)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "PR #42")
		assert.Empty(t, f.store.saved)
	})

	t.Run("engine error still saves metrics", func(t *testing.T) {
		w, f := newWorkflowFixture(enabled(), failedSummary(0, lintFailure()))
		f.vcs.lockErr = model.ErrWorkTreeLocked

		report, err := w.Run(context.Background(), 42, false)

		assert.ErrorIs(t, err, model.ErrWorkTreeLocked)
		assert.NotNil(t, report)
		assert.Len(t, f.store.saved, 1)
	})

	t.Run("metrics save", func(t *testing.T) {
		w, f := newWorkflowFixture(enabled(), successSummary(1))
		f.store.err = errors.New("disk full")

		_, err := w.Run(context.Background(), 42, false)

		require.Error(t, err)
		assert.Contains(t, err.Error(), "saving metrics")
	})
}
