package cms

import (
	"errors"
	"fmt"
)

// Sentinel errors. Callers match them with errors.Is; every error returned
// by the service wraps exactly one of these.
var (
	ErrLockConflict      = errors.New("lock conflict")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrNotFound          = errors.New("not found")
	ErrInconsistentState = errors.New("inconsistent state")
	ErrBackendFailure    = errors.New("backend failure")
)

// LockConflictError reports the current holder of a lock that blocked an operation.
type LockConflictError struct {
	ResourceID string
	Path       string
	HolderID   string
	ProjectID  int
}

func (e *LockConflictError) Error() string {
	if e.HolderID == "" {
		return fmt.Sprintf("lock conflict on %s: resource is not locked by the current user", e.describe())
	}
	return fmt.Sprintf("lock conflict on %s: locked by user %s in project %d", e.describe(), e.HolderID, e.ProjectID)
}

func (e *LockConflictError) describe() string {
	if e.Path != "" {
		return e.Path
	}
	return e.ResourceID
}

func (e *LockConflictError) Unwrap() error { return ErrLockConflict }

// ResourceError attaches a resource path to a failure.
type ResourceError struct {
	Path string
	Err  error
}

func (e *ResourceError) Error() string { return fmt.Sprintf("%s: %v", e.Path, e.Err) }

func (e *ResourceError) Unwrap() error { return e.Err }

// backend wraps an error from a persistence collaborator so it matches ErrBackendFailure.
func backend(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrBackendFailure, err)
}

func notFound(what, path string) error {
	return fmt.Errorf("%s %s: %w", what, path, ErrNotFound)
}

func inconsistent(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrInconsistentState)
}

func denied(format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), ErrPermissionDenied)
}
