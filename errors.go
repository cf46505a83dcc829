package rbac

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by engine operations. Wrap-aware callers can
// match them with errors.Is.
var (
	ErrPermissionDenied   = errors.New("rbac: permission denied")
	ErrRoleNotFound       = errors.New("rbac: role not found")
	ErrSystemRole         = errors.New("rbac: system role is protected")
	ErrAssignmentNotFound = errors.New("rbac: assignment not found")
	ErrInvalidID          = errors.New("rbac: invalid identifier")
)

// PermissionError is returned by Enforce when a check denies access. It
// carries the full decision context and unwraps to ErrPermissionDenied.
type PermissionError struct {
	PrincipalID string
	Resource    string
	Action      string
	Reason      string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("rbac: permission denied: principal %q may not %q on %q: %s",
		e.PrincipalID, e.Action, e.Resource, e.Reason)
}

func (e *PermissionError) Unwrap() error { return ErrPermissionDenied }
