package application

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// annotationLimit caps the annotations fetched per failed check run when its
// output text names no files.
const annotationLimit = 50

// CheckStatusService normalizes the raw check runs and commit statuses of a
// PR's head commit into a CheckSummary. It depends only on port interfaces.
type CheckStatusService struct {
	source       driven.CheckStatusSource
	repoFullName string
	now          func() time.Time
}

// NewCheckStatusService creates a CheckStatusService for one repository.
func NewCheckStatusService(source driven.CheckStatusSource, repoFullName string) *CheckStatusService {
	return &CheckStatusService{
		source:       source,
		repoFullName: repoFullName,
		now:          time.Now,
	}
}

// GetDetailedCheckStatus resolves the PR head commit, fetches its check runs and
// commit statuses concurrently, and returns a freshly computed summary.
func (s *CheckStatusService) GetDetailedCheckStatus(ctx context.Context, prNumber int) (*model.CheckSummary, error) {
	head, err := s.source.GetPR(ctx, s.repoFullName, prNumber)
	if err != nil {
		return nil, fmt.Errorf("resolving head of %s#%d: %w", s.repoFullName, prNumber, err)
	}

	var (
		checkRuns []model.CheckRun
		statuses  []model.CommitStatus
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		runs, err := s.source.ListCheckRuns(gctx, s.repoFullName, head.SHA)
		if err != nil {
			return err
		}
		checkRuns = runs
		return nil
	})
	g.Go(func() error {
		st, err := s.source.GetCombinedStatus(gctx, s.repoFullName, head.SHA)
		if err != nil {
			return err
		}
		statuses = st
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetching checks for %s#%d@%s: %w", s.repoFullName, prNumber, head.SHA, err)
	}

	summary := summarize(checkRuns, statuses, s.now())

	for i := range checkRuns {
		if !isFailedCheckRun(checkRuns[i]) {
			continue
		}
		summary.FailureDetails = append(summary.FailureDetails, s.buildFailureDetail(ctx, checkRuns[i]))
	}

	slog.Debug("check status computed",
		"repo", s.repoFullName,
		"pr", prNumber,
		"sha", head.SHA,
		"total", summary.Total,
		"passed", summary.Passed,
		"failed", summary.Failed,
		"pending", summary.Pending,
		"overall", string(summary.OverallStatus),
	)

	return summary, nil
}

// summarize counts check runs and statuses and derives the overall status.
// Priority: failure > pending > success.
func summarize(checkRuns []model.CheckRun, statuses []model.CommitStatus, now time.Time) *model.CheckSummary {
	summary := &model.CheckSummary{
		Total:          len(checkRuns) + len(statuses),
		FailureDetails: []model.FailureDetail{},
		StartedAt:      now,
	}

	for _, cr := range checkRuns {
		switch {
		case isFailedCheckRun(cr):
			summary.Failed++
		case cr.Status != "completed":
			summary.Pending++
		case cr.Conclusion == "skipped":
			summary.Skipped++
		default:
			summary.Passed++
		}
	}

	for _, st := range statuses {
		switch st.State {
		case "failure", "error":
			summary.Failed++
		case "success":
			summary.Passed++
		default:
			// pending, or a state GitHub has not documented yet.
			summary.Pending++
		}
	}

	switch {
	case summary.Failed > 0:
		summary.OverallStatus = model.OverallFailure
	case summary.Pending > 0:
		summary.OverallStatus = model.OverallPending
	default:
		summary.OverallStatus = model.OverallSuccess
	}

	var earliest, latest time.Time
	for _, cr := range checkRuns {
		if !cr.StartedAt.IsZero() && (earliest.IsZero() || cr.StartedAt.Before(earliest)) {
			earliest = cr.StartedAt
		}
		if cr.CompletedAt.After(latest) {
			latest = cr.CompletedAt
		}
	}
	if !earliest.IsZero() {
		summary.StartedAt = earliest
	}
	if summary.Pending == 0 && !latest.IsZero() {
		summary.CompletedAt = &latest
	}

	if d, ok := calculateDuration(checkRuns); ok {
		summary.LongestCheck = d
	}

	return summary
}

// isFailedCheckRun reports whether a check run concluded unsuccessfully.
func isFailedCheckRun(cr model.CheckRun) bool {
	switch cr.Conclusion {
	case "failure", "cancelled", "canceled", "timed_out": //nolint:misspell // GitHub API uses British "cancelled"
		return true
	default:
		return false
	}
}

// calculateDuration returns the longest completed_at - started_at over the
// check runs that carry both timestamps. ok is false if none do.
func calculateDuration(checkRuns []model.CheckRun) (time.Duration, bool) {
	var longest time.Duration
	var found bool
	for _, cr := range checkRuns {
		if cr.StartedAt.IsZero() || cr.CompletedAt.IsZero() {
			continue
		}
		d := cr.CompletedAt.Sub(cr.StartedAt)
		if !found || d > longest {
			longest = d
			found = true
		}
	}
	return longest, found
}

// buildFailureDetail classifies a failed check run and extracts the files it
// names. Annotations are consulted only when the output text names none.
func (s *CheckStatusService) buildFailureDetail(ctx context.Context, cr model.CheckRun) model.FailureDetail {
	errorType := Classify(cr)

	detail := model.FailureDetail{
		CheckName:     cr.Name,
		ErrorType:     errorType,
		Summary:       failureSummary(cr),
		AffectedFiles: extractFiles(cr.Output.Text),
		SuggestedFix:  SuggestedFix(errorType),
		URL:           cr.URL,
	}
	if errorType == model.ErrorTypeSecurityIssue {
		detail.SecuritySubtype = ClassifySecurity(cr)
	}

	if len(detail.AffectedFiles) == 0 && cr.ID != 0 {
		annotations, err := s.source.ListAnnotations(ctx, s.repoFullName, cr.ID, annotationLimit)
		if err != nil {
			slog.Warn("list annotations failed", "repo", s.repoFullName, "check", cr.Name, "error", err)
		} else {
			detail.AffectedFiles = annotationPaths(annotations)
		}
	}

	return detail
}

func failureSummary(cr model.CheckRun) string {
	switch {
	case cr.Output.Summary != "":
		return cr.Output.Summary
	case cr.Output.Title != "":
		return cr.Output.Title
	default:
		return fmt.Sprintf("%s concluded %s", cr.Name, cr.Conclusion)
	}
}

func annotationPaths(annotations []model.Annotation) []string {
	files := []string{}
	seen := make(map[string]bool, len(annotations))
	for _, a := range annotations {
		if a.Path == "" || seen[a.Path] {
			continue
		}
		seen[a.Path] = true
		files = append(files, a.Path)
	}
	return files
}

// filePatterns each capture a file path in group 1.
var filePatterns = []*regexp.Regexp{
	// pytest node ids: tests/test_auth.py::test_login
	regexp.MustCompile(`([\w./\\-]+\.[A-Za-z0-9]+)::\S*`),
	// compiler markers: src/App.cs(12,7): error
	regexp.MustCompile(`([\w./\\-]+\.[A-Za-z0-9]+)\(\d+,\d+\):`),
	// Python tracebacks: File "app/main.py", line 3
	regexp.MustCompile(`File "([^"]+)", line \d+`),
	// linter paths: src/index.ts:10:5 or a bare path on its own line
	regexp.MustCompile(`(?m)^\s*([\w./\\-]+\.[A-Za-z0-9]+):\d+(?::\d+)?`),
	regexp.MustCompile(`(?m)^([\w.\\-]+(?:/[\w.\\-]+)+\.[A-Za-z0-9]+)\s*$`),
}

// extractFiles returns the file paths named in CI output, deduplicated, in the
// order they first appear in the text.
func extractFiles(text string) []string {
	if text == "" {
		return []string{}
	}

	type hit struct {
		pos  int
		path string
	}
	var hits []hit
	for _, re := range filePatterns {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			hits = append(hits, hit{pos: m[2], path: text[m[2]:m[3]]})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].pos < hits[j].pos })

	files := []string{}
	seen := make(map[string]bool, len(hits))
	for _, h := range hits {
		if seen[h.path] {
			continue
		}
		seen[h.path] = true
		files = append(files, h.path)
	}
	return files
}
