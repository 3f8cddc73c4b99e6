package driven

import "context"

// VersionControl defines the driven port for the working-tree operations the
// auto-fix engine needs. At most one snapshot may be outstanding at a time.
type VersionControl interface {
	// Lock claims exclusive ownership of the working tree. The returned func
	// releases it. Returns model.ErrWorkTreeLocked if another writer holds it.
	Lock(ctx context.Context) (unlock func() error, err error)

	// Stash snapshots the working tree, tracked and untracked, leaving it unchanged.
	Stash(ctx context.Context) error
	// StashPop restores the working tree to the snapshot and releases it.
	StashPop(ctx context.Context) error
	// StashDrop releases the snapshot and keeps the working tree as it is.
	StashDrop(ctx context.Context) error
	// DiffStat returns lines added plus lines removed relative to the snapshot.
	DiffStat(ctx context.Context) (int, error)

	CurrentBranch(ctx context.Context) (string, error)
	CreateBranch(ctx context.Context, name string) error
	CommitAll(ctx context.Context, message string) error
	Push(ctx context.Context, branch string) error
}
