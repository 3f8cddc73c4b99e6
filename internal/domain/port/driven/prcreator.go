package driven

import (
	"context"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// PRCreator defines the driven port for opening pull requests.
// It is intentionally separate from CheckStatusSource (read operations).
type PRCreator interface {
	CreatePR(ctx context.Context, repoFullName string, pr model.NewPullRequest) (*model.CreatedPullRequest, error)
}

// PRMerger defines the driven port for merging pull requests.
type PRMerger interface {
	// MergePR merges with method "merge", "squash", or "rebase".
	MergePR(ctx context.Context, repoFullName string, number int, method string) error
}
