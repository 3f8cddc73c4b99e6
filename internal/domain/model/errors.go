package model

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrSnapshotOutstanding is returned when a second work-tree snapshot is
	// requested while one is still outstanding.
	ErrSnapshotOutstanding = errors.New("a work-tree snapshot is already outstanding")

	// ErrWorkTreeLocked is returned when another writer holds the work tree.
	ErrWorkTreeLocked = errors.New("work tree is locked by another auto-fix attempt")
)

// TimeoutError is returned when checks do not finish within the wait timeout.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("CI checks did not complete within %dms", e.Timeout.Milliseconds())
}
