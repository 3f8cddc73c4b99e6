package application

import (
	"strings"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// keywordGroup maps a set of lowercase keywords to an ErrorType.
type keywordGroup struct {
	errorType model.ErrorType
	keywords  []string
}

// classifierGroups is evaluated in order; the first group with a matching
// keyword wins. A check mentioning both "test" and "build" is a test failure.
var classifierGroups = []keywordGroup{
	{model.ErrorTypeTestFailure, []string{"test", "pytest", "jest", "mocha", "vitest"}},
	{model.ErrorTypeLintingError, []string{"eslint", "pylint", "flake8", "ruff", "lint"}},
	{model.ErrorTypeTypeError, []string{"mypy", "typescript", "tsc", "typecheck", "type"}},
	{model.ErrorTypeSecurityIssue, []string{"security", "secret", "vuln", "codeql", "dependency"}},
	{model.ErrorTypeBuildError, []string{"webpack", "babel", "rollup", "vite", "compile", "build"}},
	{model.ErrorTypeFormatError, []string{"prettier", "black", "autopep8", "format"}},
}

var (
	secretKeywords     = []string{"secret", "credential", "leak", "gitleaks", "trufflehog", "private key"}
	dependencyKeywords = []string{"dependency", "dependencies", "vuln", "cve", "audit", "advisory", "dependabot", "snyk"}
)

var suggestedFixes = map[model.ErrorType]string{
	model.ErrorTypeTestFailure:   "Run the failing tests locally and fix the assertions or the code under test.",
	model.ErrorTypeLintingError:  "Run the linter with autofix enabled and address the remaining findings.",
	model.ErrorTypeTypeError:     "Run the type checker locally and correct the reported type mismatches.",
	model.ErrorTypeSecurityIssue: "Review the security report; upgrade vulnerable dependencies or rotate leaked secrets.",
	model.ErrorTypeBuildError:    "Reproduce the build locally and fix the compilation errors.",
	model.ErrorTypeFormatError:   "Run the project formatter and commit the result.",
	model.ErrorTypeUnknown:       "Inspect the check logs to determine the cause of the failure.",
}

// haystack builds the lowercase text a check is classified on. Only the name
// is used when the check carries no output.
func haystack(check model.CheckRun) string {
	parts := []string{check.Name}
	if check.Output.Title != "" {
		parts = append(parts, check.Output.Title)
	}
	if check.Output.Summary != "" {
		parts = append(parts, check.Output.Summary)
	}
	return strings.ToLower(strings.Join(parts, " "))
}

// Classify maps a check run to a coarse ErrorType. Matching is case-insensitive
// and deterministic.
func Classify(check model.CheckRun) model.ErrorType {
	text := haystack(check)
	for _, group := range classifierGroups {
		if containsAny(text, group.keywords) {
			return group.errorType
		}
	}
	return model.ErrorTypeUnknown
}

// ClassifySecurity returns the security subtype of a check already classified
// as SECURITY_ISSUE. Secret leaks take precedence over dependency findings.
func ClassifySecurity(check model.CheckRun) model.SecuritySubtype {
	text := haystack(check) + " " + strings.ToLower(check.Output.Text)
	switch {
	case containsAny(text, secretKeywords):
		return model.SecuritySecretLeak
	case containsAny(text, dependencyKeywords):
		return model.SecurityDependency
	default:
		return ""
	}
}

// SuggestedFix returns the remediation hint for an error type.
func SuggestedFix(errorType model.ErrorType) string {
	if s, ok := suggestedFixes[errorType]; ok {
		return s
	}
	return suggestedFixes[model.ErrorTypeUnknown]
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}
