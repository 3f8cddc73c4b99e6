// Package toolchain resolves fix commands for a project's language and
// verifies fixes by running the project's own check commands.
package toolchain

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/google/shlex"

	"github.com/ericfisherdev/ciwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CommandResolver = (*Resolver)(nil)

// candidates lists, per task and language, the commands tried in order.
var candidates = map[string]map[string][]string{
	driven.TaskLintFix: {
		"javascript": {"eslint . --fix", "biome lint --write ."},
		"python":     {"ruff check --fix .", "autopep8 --in-place --recursive ."},
		"go":         {"golangci-lint run --fix"},
		"rust":       {"cargo clippy --fix --allow-dirty --allow-staged"},
		"ruby":       {"rubocop -a"},
	},
	driven.TaskFormat: {
		"javascript": {"prettier --write .", "biome format --write ."},
		"python":     {"ruff format .", "black ."},
		"go":         {"gofmt -w ."},
		"rust":       {"cargo fmt"},
		"ruby":       {"rubocop -x"},
	},
	driven.TaskAuditFix: {
		"python": {"pip-audit --fix"},
	},
}

// auditByPackageManager covers JavaScript, where the audit tool is the package manager.
var auditByPackageManager = map[string]string{
	"npm":  "npm audit fix",
	"pnpm": "pnpm audit --fix",
}

// Resolver maps fix tasks to commands. Configured overrides win; otherwise the
// first candidate whose executable is on PATH is used.
type Resolver struct {
	overrides map[string]string
	lookPath  func(string) (string, error)
}

// NewResolver creates a Resolver. overrides is keyed by task name.
func NewResolver(overrides map[string]string) *Resolver {
	return &Resolver{overrides: overrides, lookPath: exec.LookPath}
}

// Resolve returns the command for task, or driven.ErrNoCommand.
func (r *Resolver) Resolve(_ context.Context, task, language, packageManager string) (string, error) {
	if cmd := strings.TrimSpace(r.overrides[task]); cmd != "" {
		return cmd, nil
	}

	lang := normalizeLanguage(language)
	options := candidates[task][lang]
	if task == driven.TaskAuditFix && lang == "javascript" {
		pm := strings.ToLower(packageManager)
		if pm == "" {
			pm = "npm"
		}
		if cmd, ok := auditByPackageManager[pm]; ok {
			options = []string{cmd}
		}
	}

	for _, cmd := range options {
		argv, err := shlex.Split(cmd)
		if err != nil || len(argv) == 0 {
			continue
		}
		if _, err := r.lookPath(argv[0]); err == nil {
			slog.Debug("resolved fix command", "task", task, "language", lang, "command", cmd)
			return cmd, nil
		}
	}

	return "", fmt.Errorf("%w: %s for %q", driven.ErrNoCommand, task, language)
}

func normalizeLanguage(language string) string {
	switch l := strings.ToLower(strings.TrimSpace(language)); l {
	case "typescript", "ts", "js", "node":
		return "javascript"
	case "golang":
		return "go"
	case "py":
		return "python"
	default:
		return l
	}
}
