package driven

import (
	"context"
	"errors"
)

// Fix tasks a CommandResolver knows how to map to concrete commands.
const (
	TaskLintFix  = "lint-fix"
	TaskFormat   = "format"
	TaskAuditFix = "audit-fix"
)

// ErrNoCommand is returned when no tool is available for a task.
var ErrNoCommand = errors.New("no command available for task")

// CommandResolver defines the driven port that turns a fix task into a shell
// command for the project's language and package manager.
type CommandResolver interface {
	Resolve(ctx context.Context, task, language, packageManager string) (string, error)
}
