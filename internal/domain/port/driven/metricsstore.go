package driven

import (
	"context"

	"github.com/ericfisherdev/ciwatch/internal/domain/model"
)

// MetricsStore defines the driven port for the latest exported auto-fix
// metrics document of each repository. Saving replaces the previous document.
type MetricsStore interface {
	Save(ctx context.Context, repoFullName string, metrics model.AutoFixMetrics) error
	// Latest returns nil, nil when nothing has been saved for the repository.
	Latest(ctx context.Context, repoFullName string) (*model.AutoFixMetrics, error)
}
