package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// AssignOption tweaks an assignment under construction in AssignRole.
type AssignOption func(*RoleAssignment)

// WithPrincipalType marks the principal as a user, service, or agent.
// The default is PrincipalUser.
func WithPrincipalType(t string) AssignOption {
	return func(a *RoleAssignment) { a.PrincipalType = t }
}

// WithGrantedBy records who issued the grant.
func WithGrantedBy(who string) AssignOption {
	return func(a *RoleAssignment) { a.GrantedBy = who }
}

// WithExpiresInDays sets the expiry relative to the grant time. Zero and
// negative values are honored as given, so a negative value produces an
// assignment that is already expired; omit the option for a grant that
// never expires.
func WithExpiresInDays(days int) AssignOption {
	return func(a *RoleAssignment) {
		t := a.GrantedAt.AddDate(0, 0, days)
		a.ExpiresAt = &t
	}
}

// WithExpiresAt sets an absolute expiry.
func WithExpiresAt(t time.Time) AssignOption {
	return func(a *RoleAssignment) {
		utc := t.UTC()
		a.ExpiresAt = &utc
	}
}

// WithAssignmentConditions carries arbitrary conditions on the grant.
// Conditions are stored and audited, not evaluated.
func WithAssignmentConditions(m map[string]any) AssignOption {
	return func(a *RoleAssignment) { a.Conditions = m }
}

// AssignRole grants roleID to a principal, optionally narrowed to a scope
// pattern. The deterministic assignment ID makes the call an upsert:
// re-granting an existing, even revoked, triple reactivates and refreshes
// the single record. The assignment is persisted before it takes effect,
// then every cached resolution for the principal is invalidated.
func (e *Engine) AssignRole(ctx context.Context, principalID, roleID, scope string, opts ...AssignOption) (*RoleAssignment, error) {
	if principalID == "" {
		return nil, fmt.Errorf("%w: principal id is empty", ErrInvalidID)
	}
	a := &RoleAssignment{
		ID:            AssignmentID(principalID, roleID, scope),
		PrincipalID:   principalID,
		PrincipalType: PrincipalUser,
		RoleID:        roleID,
		Scope:         scope,
		GrantedAt:     time.Now().UTC(),
		Active:        true,
	}
	for _, opt := range opts {
		opt(a)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.roles[roleID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, roleID)
	}
	if e.assignmentStore != nil {
		if err := e.assignmentStore.SaveAssignment(ctx, a); err != nil {
			return nil, fmt.Errorf("save assignment %s: %w", a.ID, err)
		}
	}
	e.assignments[a.ID] = a
	e.invalidatePrincipalLocked(principalID)
	e.logger.Info("role assigned",
		"principal_id", principalID,
		"role_id", roleID,
		"scope", scope,
		"assignment_id", a.ID)
	out := *a
	return &out, nil
}

// RevokeRole deactivates the assignment identified by the exact principal,
// role, and scope triple. The record is kept with Active false. The bool
// reports whether an active assignment was actually revoked.
func (e *Engine) RevokeRole(ctx context.Context, principalID, roleID, scope string) (bool, error) {
	id := AssignmentID(principalID, roleID, scope)
	e.mu.Lock()
	defer e.mu.Unlock()
	a, ok := e.assignments[id]
	if !ok || !a.Active {
		return false, nil
	}
	revoked := *a
	revoked.Active = false
	if e.assignmentStore != nil {
		if err := e.assignmentStore.SaveAssignment(ctx, &revoked); err != nil {
			return false, fmt.Errorf("save assignment %s: %w", id, err)
		}
	}
	e.assignments[id] = &revoked
	e.invalidatePrincipalLocked(principalID)
	e.logger.Info("role revoked",
		"principal_id", principalID,
		"role_id", roleID,
		"scope", scope,
		"assignment_id", id)
	return true, nil
}

// GetPrincipalRoles returns the principal's effective roles across all
// scopes, priority-ordered. The resolution runs against resource "*",
// which every scope pattern matches.
func (e *Engine) GetPrincipalRoles(ctx context.Context, principalID string) []*Role {
	return e.effectiveRoles(principalID, "*", nil)
}

// ListAssignments returns copies of the assignment records for a
// principal, revoked and expired ones included, ordered by grant time with
// ID as the tiebreak. An empty principalID lists every record.
func (e *Engine) ListAssignments(ctx context.Context, principalID string) []*RoleAssignment {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]*RoleAssignment, 0, 8)
	for _, a := range e.assignments {
		if principalID != "" && a.PrincipalID != principalID {
			continue
		}
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].GrantedAt.Equal(out[j].GrantedAt) {
			return out[i].GrantedAt.Before(out[j].GrantedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// RemovePrincipal revokes every active assignment the principal holds and
// reports how many were revoked.
func (e *Engine) RemovePrincipal(ctx context.Context, principalID string) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, 4)
	for id, a := range e.assignments {
		if a.PrincipalID == principalID && a.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	revoked := 0
	// A save failing mid-loop still leaves the earlier revocations
	// applied, so the principal's cached resolutions go regardless.
	defer func() {
		if revoked > 0 {
			e.invalidatePrincipalLocked(principalID)
		}
	}()
	for _, id := range ids {
		cp := *e.assignments[id]
		cp.Active = false
		if e.assignmentStore != nil {
			if err := e.assignmentStore.SaveAssignment(ctx, &cp); err != nil {
				return revoked, fmt.Errorf("save assignment %s: %w", id, err)
			}
		}
		e.assignments[id] = &cp
		revoked++
	}
	if revoked > 0 {
		e.logger.Info("principal removed",
			"principal_id", principalID,
			"assignments_revoked", revoked)
	}
	return revoked, nil
}
