package driven

import (
	"context"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// VerifyOptions scopes a verification run.
type VerifyOptions struct {
	Dir       string
	ErrorType model.ErrorType
}

// Verifier defines the driven port that checks a fix did not break the project.
type Verifier interface {
	RunChecks(ctx context.Context, opts VerifyOptions) (*model.VerificationResult, error)
}
