package driven

import (
	"context"
	"time"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// RunOptions controls a single process execution.
type RunOptions struct {
	Timeout time.Duration
	Dir     string
}

// ProcessRunner defines the driven port for executing external commands.
// A non-zero exit is reported in the result, not as an error; err is reserved
// for commands that could not be started at all.
type ProcessRunner interface {
	Run(ctx context.Context, command string, opts RunOptions) (*model.ProcessResult, error)
}
