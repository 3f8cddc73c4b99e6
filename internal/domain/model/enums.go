package model

// ErrorType is the coarse category of a CI failure used to select a fix strategy.
type ErrorType string

const (
	ErrorTypeTestFailure   ErrorType = "TEST_FAILURE"
	ErrorTypeLintingError  ErrorType = "LINTING_ERROR"
	ErrorTypeTypeError     ErrorType = "TYPE_ERROR"
	ErrorTypeSecurityIssue ErrorType = "SECURITY_ISSUE"
	ErrorTypeBuildError    ErrorType = "BUILD_ERROR"
	ErrorTypeFormatError   ErrorType = "FORMAT_ERROR"
	ErrorTypeUnknown       ErrorType = "UNKNOWN"
)

// IsCritical reports whether a failure of this type aborts a fail-fast wait.
func (e ErrorType) IsCritical() bool {
	switch e {
	case ErrorTypeTestFailure, ErrorTypeBuildError, ErrorTypeSecurityIssue:
		return true
	default:
		return false
	}
}

// SecuritySubtype narrows SECURITY_ISSUE failures. Empty for other error types.
type SecuritySubtype string

const (
	SecurityDependency SecuritySubtype = "dependency" // Vulnerable dependency; fixable by upgrade.
	SecuritySecretLeak SecuritySubtype = "secret"     // Leaked credential; needs a human.
)

// OverallStatus is the aggregate state of all checks on a commit.
type OverallStatus string

const (
	OverallSuccess OverallStatus = "success"
	OverallFailure OverallStatus = "failure"
	OverallPending OverallStatus = "pending"
)

// WaitReason explains why a wait for checks ended.
type WaitReason string

const (
	WaitCompleted       WaitReason = "completed"
	WaitNoChecks        WaitReason = "no_checks"
	WaitTimeout         WaitReason = "timeout"
	WaitCriticalFailure WaitReason = "critical_failure"
)

// FixReason explains the outcome of an auto-fix attempt that did not succeed.
type FixReason string

const (
	FixMaxAttemptsExceeded FixReason = "max_attempts_exceeded"
	FixNotAutoFixable      FixReason = "not_auto_fixable"
	FixNoCommand           FixReason = "no_fix_command"
	FixExecutionFailed     FixReason = "fix_execution_failed"
	FixTooManyChanges      FixReason = "too_many_changes"
	FixVerificationFailed  FixReason = "verification_failed"
	FixNoChanges           FixReason = "no_changes"
	FixUnexpectedError     FixReason = "unexpected_error"
)

// PollStrategyType selects how the interval between polls evolves.
type PollStrategyType string

const (
	PollFixed       PollStrategyType = "fixed"
	PollExponential PollStrategyType = "exponential"
)
