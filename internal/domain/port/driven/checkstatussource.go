package driven

import (
	"context"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// CheckStatusSource defines the read-only driven port for CI check data.
// Implementations must be safe for concurrent use: a single poll tick issues
// ListCheckRuns and GetCombinedStatus in parallel.
type CheckStatusSource interface {
	// GetPR returns the head commit and branches of a pull request.
	GetPR(ctx context.Context, repoFullName string, number int) (*model.PRHead, error)
	// ListCheckRuns returns all check runs for the given ref (commit SHA or branch).
	ListCheckRuns(ctx context.Context, repoFullName string, ref string) ([]model.CheckRun, error)
	// GetCombinedStatus returns the individual legacy commit statuses for the given ref.
	GetCombinedStatus(ctx context.Context, repoFullName string, ref string) ([]model.CommitStatus, error)
	// ListAnnotations returns at most limit annotations for a check run.
	ListAnnotations(ctx context.Context, repoFullName string, checkRunID int64, limit int) ([]model.Annotation, error)
}
