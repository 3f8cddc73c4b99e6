package application

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

func checkRun(name, title, summary string) model.CheckRun {
	return model.CheckRun{Name: name, Output: model.CheckRunOutput{Title: title, Summary: summary}}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		check model.CheckRun
		want  model.ErrorType
	}{
		{"pytest by name", checkRun("pytest", "", ""), model.ErrorTypeTestFailure},
		{"jest in summary", checkRun("ci", "", "jest: 3 suites failed"), model.ErrorTypeTestFailure},
		{"eslint", checkRun("eslint", "", ""), model.ErrorTypeLintingError},
		{"ruff in title", checkRun("python", "ruff found 4 errors", ""), model.ErrorTypeLintingError},
		{"mypy", checkRun("mypy", "", ""), model.ErrorTypeTypeError},
		{"tsc", checkRun("tsc --noEmit", "", ""), model.ErrorTypeTypeError},
		{"codeql", checkRun("CodeQL", "", ""), model.ErrorTypeSecurityIssue},
		{"dependency review", checkRun("dependency-review", "", ""), model.ErrorTypeSecurityIssue},
		{"webpack", checkRun("webpack", "", ""), model.ErrorTypeBuildError},
		{"compile", checkRun("ci", "Compile failed", ""), model.ErrorTypeBuildError},
		{"prettier", checkRun("prettier", "", ""), model.ErrorTypeFormatError},
		{"black", checkRun("black --check", "", ""), model.ErrorTypeFormatError},
		{"unknown", checkRun("deploy-preview", "", "exited 1"), model.ErrorTypeUnknown},
		{"test beats build", checkRun("test and build", "", "test failed during build"), model.ErrorTypeTestFailure},
		{"lint beats format", checkRun("lint", "", "format check"), model.ErrorTypeLintingError},
		{"typescript beats build", checkRun("build", "typescript errors", ""), model.ErrorTypeTypeError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.check))
		})
	}
}

func TestClassify_CaseInsensitive(t *testing.T) {
	upper := Classify(checkRun("PYTEST", "", "TEST FAILED"))
	lower := Classify(checkRun("pytest", "", "test failed"))

	assert.Equal(t, model.ErrorTypeTestFailure, upper)
	assert.Equal(t, upper, lower)
}

func TestClassify_IgnoresOutputText(t *testing.T) {
	check := checkRun("deploy", "", "")
	check.Output.Text = "running tests... build ok"

	assert.Equal(t, model.ErrorTypeUnknown, Classify(check))
}

func TestClassifySecurity(t *testing.T) {
	tests := []struct {
		name  string
		check model.CheckRun
		want  model.SecuritySubtype
	}{
		{"dependency audit", checkRun("npm audit", "3 vulnerabilities", ""), model.SecurityDependency},
		{"cve in text", model.CheckRun{Name: "security", Output: model.CheckRunOutput{Text: "CVE-2024-1234 in lodash"}}, model.SecurityDependency},
		{"gitleaks", checkRun("gitleaks", "", ""), model.SecuritySecretLeak},
		{"secret wins over dependency", checkRun("security", "dependency scan", "leaked credential found"), model.SecuritySecretLeak},
		{"neither", checkRun("codeql", "SQL injection", ""), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifySecurity(tt.check))
		})
	}
}

func TestSuggestedFix(t *testing.T) {
	assert.Contains(t, SuggestedFix(model.ErrorTypeFormatError), "formatter")
	assert.Equal(t, SuggestedFix(model.ErrorTypeUnknown), SuggestedFix(model.ErrorType("NEW_KIND")))
}
