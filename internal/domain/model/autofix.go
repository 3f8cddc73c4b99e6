package model

import "time"

// AutoFixConfig bounds what the auto-fix engine may do.
type AutoFixConfig struct {
	MaxAttempts     int  // Per error type, per engine lifetime. 1..5.
	MaxChangedLines int  // Larger fixes are rolled back. 1..10000.
	RequireTests    bool // Run verification before accepting a fix.
	EnableDryRun    bool // Force every attempt to be a dry run.
	CreatePR        bool // Open a PR for a successful fix instead of committing in place.
}

// DefaultAutoFixConfig returns the documented defaults.
func DefaultAutoFixConfig() AutoFixConfig {
	return AutoFixConfig{
		MaxAttempts:     2,
		MaxChangedLines: 1000,
		RequireTests:    true,
		EnableDryRun:    false,
		CreatePR:        true,
	}
}

// AutoFixResult reports the outcome of one attemptFix call.
type AutoFixResult struct {
	Success            bool      `json:"success"`
	Reason             FixReason `json:"reason,omitempty"`
	PRNumber           int       `json:"prNumber,omitempty"`
	PRURL              string    `json:"prUrl,omitempty"`
	ChangedLines       int       `json:"changedLines,omitempty"`
	Attempts           int       `json:"attempts,omitempty"`
	ErrorType          ErrorType `json:"errorType,omitempty"`
	RolledBack         bool      `json:"rolledBack,omitempty"`
	VerificationFailed bool      `json:"verificationFailed,omitempty"`
	VerificationErrors []string  `json:"verificationErrors,omitempty"`
	DryRun             bool      `json:"dryRun,omitempty"`
	Command            string    `json:"command,omitempty"`
	EstimatedLines     int       `json:"estimatedLines,omitempty"`
}

// ErrorTypeMetrics counts attempts and outcomes for one error type.
type ErrorTypeMetrics struct {
	Attempts  int `json:"attempts"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// AutoFixMetrics is the exported metrics document. Durations are milliseconds.
type AutoFixMetrics struct {
	TotalAttempts        int                            `json:"totalAttempts"`
	SuccessfulFixes      int                            `json:"successfulFixes"`
	FailedFixes          int                            `json:"failedFixes"`
	RollbackCount        int                            `json:"rollbackCount"`
	VerificationFailures int                            `json:"verificationFailures"`
	DryRunAttempts       int                            `json:"dryRunAttempts"`
	ByErrorType          map[ErrorType]ErrorTypeMetrics `json:"byErrorType"`
	ByReason             map[FixReason]int              `json:"byReason"`
	AverageFixDuration   *int64                         `json:"averageFixDuration,omitempty"`
	TotalFixDuration     int64                          `json:"totalFixDuration"`
	StartTime            time.Time                      `json:"startTime"`
	LastUpdated          time.Time                      `json:"lastUpdated"`
}

// VerificationResult is reported by the verification collaborator.
type VerificationResult struct {
	Success  bool
	Errors   []string
	Duration time.Duration
}

// ProcessResult is reported by the process-execution collaborator.
type ProcessResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// NewPullRequest is the input to the PR-creation collaborator.
type NewPullRequest struct {
	Title string
	Body  string
	Head  string
	Base  string
}

// CreatedPullRequest identifies a PR opened by the PR-creation collaborator.
type CreatedPullRequest struct {
	Number int
	URL    string
}

// FixOutcome pairs one attempted failure with its result.
type FixOutcome struct {
	CheckName string         `json:"checkName"`
	Result    *AutoFixResult `json:"result"`
	// Merged is set when auto-merge landed the fix PR.
	Merged bool `json:"merged,omitempty"`
}

// FixReport is the outcome of one fix workflow run for a PR.
type FixReport struct {
	PRNumber int          `json:"prNumber"`
	Summary  CheckSummary `json:"summary"`
	Outcomes []FixOutcome `json:"outcomes"`
}
