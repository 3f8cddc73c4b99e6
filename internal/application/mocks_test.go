package application

import (
	"context"
	"sync"
	"time"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// --- Mock implementations ---

type mockCheckSource struct {
	mu              sync.Mutex
	getPR           func(ctx context.Context, repo string, number int) (*model.PRHead, error)
	listCheckRuns   func(ctx context.Context, repo, ref string) ([]model.CheckRun, error)
	combinedStatus  func(ctx context.Context, repo, ref string) ([]model.CommitStatus, error)
	listAnnotations func(ctx context.Context, repo string, id int64, limit int) ([]model.Annotation, error)
	annotationCalls int
}

func (m *mockCheckSource) GetPR(ctx context.Context, repo string, number int) (*model.PRHead, error) {
	if m.getPR == nil {
		return &model.PRHead{Number: number, SHA: "abc123", Ref: "feature", Base: "main"}, nil
	}
	return m.getPR(ctx, repo, number)
}

func (m *mockCheckSource) ListCheckRuns(ctx context.Context, repo, ref string) ([]model.CheckRun, error) {
	if m.listCheckRuns == nil {
		return []model.CheckRun{}, nil
	}
	return m.listCheckRuns(ctx, repo, ref)
}

func (m *mockCheckSource) GetCombinedStatus(ctx context.Context, repo, ref string) ([]model.CommitStatus, error) {
	if m.combinedStatus == nil {
		return []model.CommitStatus{}, nil
	}
	return m.combinedStatus(ctx, repo, ref)
}

func (m *mockCheckSource) ListAnnotations(ctx context.Context, repo string, id int64, limit int) ([]model.Annotation, error) {
	m.mu.Lock()
	m.annotationCalls++
	m.mu.Unlock()
	if m.listAnnotations == nil {
		return []model.Annotation{}, nil
	}
	return m.listAnnotations(ctx, repo, id, limit)
}

// scriptedChecks returns one summary per call, repeating the last one.
type scriptedChecks struct {
	summaries []*model.CheckSummary
	errs      []error
	calls     int
}

func (s *scriptedChecks) GetDetailedCheckStatus(_ context.Context, _ int) (*model.CheckSummary, error) {
	i := min(s.calls, max(len(s.summaries), len(s.errs))-1)
	s.calls++
	if i < len(s.errs) && s.errs[i] != nil {
		return nil, s.errs[i]
	}
	return s.summaries[i], nil
}

// fakeClock advances only when the scheduler sleeps.
type fakeClock struct {
	t      time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) now() time.Time { return c.t }

func (c *fakeClock) sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.sleeps = append(c.sleeps, d)
	c.t = c.t.Add(d)
	return nil
}

// newTestScheduler wires a PollScheduler to a fake clock.
func newTestScheduler(checks CheckStatusReader, clock *fakeClock) *PollScheduler {
	s := NewPollScheduler(checks, 42)
	s.now = clock.now
	s.sleep = clock.sleep
	return s
}

// mockVCS models the working tree as a single string so tests can assert it is
// byte-identical after a rollback.
type mockVCS struct {
	tree     string
	snapshot *string
	branch   string

	diffStat    int
	diffErr     error
	lockErr     error
	stashErr    error
	commitErr   error
	pushErr     error
	branches    []string
	commits     []string
	pushes      []string
	stashCalls  int
	popCalls    int
	dropCalls   int
	unlockCalls int
}

func (m *mockVCS) Lock(context.Context) (func() error, error) {
	if m.lockErr != nil {
		return nil, m.lockErr
	}
	return func() error { m.unlockCalls++; return nil }, nil
}

func (m *mockVCS) Stash(context.Context) error {
	m.stashCalls++
	if m.stashErr != nil {
		return m.stashErr
	}
	if m.snapshot != nil {
		return model.ErrSnapshotOutstanding
	}
	s := m.tree
	m.snapshot = &s
	return nil
}

func (m *mockVCS) StashPop(context.Context) error {
	m.popCalls++
	if m.snapshot != nil {
		m.tree = *m.snapshot
	}
	m.snapshot = nil
	return nil
}

func (m *mockVCS) StashDrop(context.Context) error {
	m.dropCalls++
	m.snapshot = nil
	return nil
}

func (m *mockVCS) DiffStat(context.Context) (int, error) { return m.diffStat, m.diffErr }

func (m *mockVCS) CurrentBranch(context.Context) (string, error) {
	if m.branch == "" {
		return "feature", nil
	}
	return m.branch, nil
}

func (m *mockVCS) CreateBranch(_ context.Context, name string) error {
	m.branches = append(m.branches, name)
	m.branch = name
	return nil
}

func (m *mockVCS) CommitAll(_ context.Context, message string) error {
	if m.commitErr != nil {
		return m.commitErr
	}
	m.commits = append(m.commits, message)
	return nil
}

func (m *mockVCS) Push(_ context.Context, branch string) error {
	m.pushes = append(m.pushes, branch)
	return m.pushErr
}

// mockRunner applies mutate to the tree and returns exitCode.
type mockRunner struct {
	vcs      *mockVCS
	mutate   string
	exitCode int
	err      error
	calls    []string
}

func (m *mockRunner) Run(_ context.Context, command string, _ driven.RunOptions) (*model.ProcessResult, error) {
	m.calls = append(m.calls, command)
	if m.err != nil {
		return nil, m.err
	}
	if m.vcs != nil {
		m.vcs.tree += m.mutate
	}
	return &model.ProcessResult{ExitCode: m.exitCode, Stderr: "boom"}, nil
}

type mockVerifier struct {
	result *model.VerificationResult
	err    error
	calls  int
	opts   driven.VerifyOptions
}

func (m *mockVerifier) RunChecks(_ context.Context, opts driven.VerifyOptions) (*model.VerificationResult, error) {
	m.calls++
	m.opts = opts
	if m.err != nil {
		return nil, m.err
	}
	if m.result == nil {
		return &model.VerificationResult{Success: true}, nil
	}
	return m.result, nil
}

type mockResolver struct {
	commands map[string]string
	tasks    []string
}

func (m *mockResolver) Resolve(_ context.Context, task, _, _ string) (string, error) {
	m.tasks = append(m.tasks, task)
	cmd, ok := m.commands[task]
	if !ok {
		return "", driven.ErrNoCommand
	}
	return cmd, nil
}

type mockPRs struct {
	created []model.NewPullRequest
	err     error
	number  int
}

func (m *mockPRs) CreatePR(_ context.Context, _ string, pr model.NewPullRequest) (*model.CreatedPullRequest, error) {
	m.created = append(m.created, pr)
	if m.err != nil {
		return nil, m.err
	}
	return &model.CreatedPullRequest{Number: m.number, URL: "https://github.com/owner/repo/pull/1"}, nil
}

type mockMerger struct {
	merged []int
	err    error
}

func (m *mockMerger) MergePR(_ context.Context, _ string, number int, _ string) error {
	m.merged = append(m.merged, number)
	return m.err
}

type mockMetricsStore struct {
	saved []model.AutoFixMetrics
	err   error
}

func (m *mockMetricsStore) Save(_ context.Context, _ string, metrics model.AutoFixMetrics) error {
	m.saved = append(m.saved, metrics)
	return m.err
}

func (m *mockMetricsStore) Latest(context.Context, string) (*model.AutoFixMetrics, error) {
	if len(m.saved) == 0 {
		return nil, nil
	}
	return &m.saved[len(m.saved)-1], nil
}
