package model

import "time"

// CheckRun represents an individual CI/CD check run from the GitHub Checks API.
type CheckRun struct {
	ID          int64          // GitHub check run ID, used for annotation lookups.
	Name        string         // Check run name (e.g., "build", "lint").
	Status      string         // queued, in_progress, completed.
	Conclusion  string         // success, failure, neutral, cancelled, skipped, timed_out, action_required.
	StartedAt   time.Time      // When the check run started (zero if unknown).
	CompletedAt time.Time      // When the check run completed (zero if not yet completed).
	Output      CheckRunOutput // Title, summary and body reported by the check.
	URL         string         // Link to the check run details page.
}

// CheckRunOutput is the free-form report attached to a check run.
type CheckRunOutput struct {
	Title   string
	Summary string
	Text    string
}

// CommitStatus represents an individual status entry from the GitHub Status API.
type CommitStatus struct {
	Context     string // CI service identifier (e.g., "ci/circleci").
	State       string // success, failure, pending, error.
	Description string // Human-readable description of the status.
	TargetURL   string // URL for more details on the status.
}

// Annotation is a file-scoped message attached to a check run.
type Annotation struct {
	Path      string
	StartLine int
	Level     string // notice, warning, failure.
	Message   string
}

// PRHead carries the fields of a pull request needed to locate its checks.
type PRHead struct {
	Number int
	SHA    string
	Ref    string // Head branch name.
	Base   string // Base branch name.
}

// CheckSummary is the normalized view of every check and status on a PR head
// commit at one point in time.
type CheckSummary struct {
	Total          int             `json:"total"`
	Passed         int             `json:"passed"`
	Failed         int             `json:"failed"`
	Pending        int             `json:"pending"`
	Skipped        int             `json:"skipped"`
	OverallStatus  OverallStatus   `json:"overallStatus"`
	FailureDetails []FailureDetail `json:"failureDetails"`
	StartedAt      time.Time       `json:"startedAt"`
	CompletedAt    *time.Time      `json:"completedAt,omitempty"`

	// LongestCheck is the longest completed check duration; zero when no check
	// has both timestamps.
	LongestCheck time.Duration `json:"-"`
}

// Counts returns the (passed, failed, pending) triple used for progress diffing.
func (s CheckSummary) Counts() [3]int {
	return [3]int{s.Passed, s.Failed, s.Pending}
}

// FailureDetail is a classified record of one failing check run.
type FailureDetail struct {
	CheckName       string          `json:"checkName"`
	ErrorType       ErrorType       `json:"errorType"`
	SecuritySubtype SecuritySubtype `json:"securitySubtype,omitempty"`
	Summary         string          `json:"summary"`
	AffectedFiles   []string        `json:"affectedFiles"`
	SuggestedFix    string          `json:"suggestedFix"`
	URL             string          `json:"url,omitempty"`
}
