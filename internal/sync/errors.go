package sync

import (
	"errors"
	"fmt"
)

// SyncError wraps any failure of a sync run.
type SyncError struct {
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("failed to sync emails: %v", e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// NotFoundError is returned when a message does not exist locally.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("email %s not found", e.ID)
}

// IsSyncError checks whether an error is (or wraps) a SyncError.
func IsSyncError(err error) bool {
	var se *SyncError
	return errors.As(err, &se)
}

// IsNotFound checks whether an error is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
