package content

import (
	"errors"
	"fmt"

	"github.com/dmitrijs2005/gitwiki/internal/common"
)

var (
	// ErrValidation marks a request rejected before the write lock was taken.
	ErrValidation = common.ErrValidation
	// ErrNotFound is returned for paths or revisions absent from the tip.
	ErrNotFound = common.ErrorNotFound
	// ErrExists is returned by OpCreate when the path is already tracked.
	ErrExists = common.ErrorAlreadyExists

	// ErrSyncConflict means the remote kept advancing for every rebase
	// attempt. Nothing was committed.
	ErrSyncConflict = errors.New("sync conflict")
	// ErrSyncTimeout means the remote could not be reached in time. The
	// commit is kept locally.
	ErrSyncTimeout = errors.New("sync timeout")
	// ErrPushFailed means the push did not succeed within the retry bound.
	// The commit is kept locally.
	ErrPushFailed = errors.New("push failed")
)

// SyncError reports a write that was committed locally but not synchronized.
// It matches ErrSyncTimeout or ErrPushFailed with errors.Is.
type SyncError struct {
	Kind   error
	Commit string
	Err    error
}

func (e *SyncError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: commit %s kept locally", e.Kind, e.Commit)
	}
	return fmt.Sprintf("%v: commit %s kept locally: %v", e.Kind, e.Commit, e.Err)
}

func (e *SyncError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}
