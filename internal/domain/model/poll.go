package model

import "time"

// Defaults applied when a PollStrategy leaves a field unset.
const (
	DefaultPollMultiplier  = 1.5
	DefaultPollMaxInterval = 30 * time.Second
	DefaultNoChecksGrace   = 20 * time.Second
)

// PollStrategy describes how the delay between check-status polls evolves.
type PollStrategy struct {
	Type            PollStrategyType
	InitialInterval time.Duration
	Multiplier      float64       // Zero means DefaultPollMultiplier.
	MaxInterval     time.Duration // Zero means DefaultPollMaxInterval.
}

// WaitOptions configures a single wait for a PR's checks.
type WaitOptions struct {
	Timeout       time.Duration
	PollStrategy  PollStrategy
	FailFast      bool
	RetryPatterns []string
	MaxRetries    int
	// NoChecksGrace is how long to keep polling a PR with zero checks before
	// concluding it has none. Zero means DefaultNoChecksGrace.
	NoChecksGrace time.Duration
	OnProgress    func(CheckSummary)
}

// WaitResult is the outcome of a wait that did not time out.
type WaitResult struct {
	Success     bool         `json:"success"`
	Reason      WaitReason   `json:"reason"`
	Summary     CheckSummary `json:"summary"`
	RetriesUsed int          `json:"retriesUsed"`
}

// DefaultWaitTimeout applies when WaitOptions.Timeout is not positive.
const DefaultWaitTimeout = 30 * time.Minute

// DefaultMaxRetries applies when retry patterns are set without a budget.
const DefaultMaxRetries = 3

// DefaultRetryPatterns are the failure texts treated as flaky when ci.retryFlaky is on.
var DefaultRetryPatterns = []string{
	"timeout",
	"timed out",
	"econnreset",
	"connection reset",
	"network",
	"rate limit",
	"flaky",
}
