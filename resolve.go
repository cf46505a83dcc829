package rbac

import (
	"fmt"
	"sort"
	"time"

	"github.com/maestro-platform/rbac/utils"
)

// scopeMatches decides whether an assignment scoped to scope applies to a
// check on resource. An empty scope is unrestricted. Matching runs in both
// directions so a concrete resource falls inside a broader scope pattern,
// and a wildcard resource query (GetPrincipalRoles asks about "*") still
// surfaces narrowly scoped grants.
func scopeMatches(scope, resource string) bool {
	if scope == "" {
		return true
	}
	return utils.Match(resource, scope) || utils.Match(scope, resource)
}

// effectiveRoles returns the principal's roles applicable to resource,
// ancestors included, ordered by priority descending. Results are served
// from the resolution cache when fresh; a miss recomputes under the engine
// lock and fills the cache there, so an assign or revoke (which
// invalidates under the same lock) can never leave a stale entry behind.
func (e *Engine) effectiveRoles(principalID, resource string, trace *[]string) []*Role {
	key := principalID + ":" + resource
	if roles, ok := e.resolution.get(key); ok {
		tracef(trace, "resolution cache hit for %q (%d roles)", key, len(roles))
		return roles
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if roles, ok := e.resolution.get(key); ok {
		tracef(trace, "resolution cache hit for %q (%d roles)", key, len(roles))
		return roles
	}
	roles := e.resolveLocked(principalID, resource, trace)
	e.resolution.set(key, roles)
	return roles
}

// resolveLocked scans assignments in deterministic (sorted ID) order and
// collects each applicable granted role with all of its ancestors. The
// caller holds e.mu.
func (e *Engine) resolveLocked(principalID, resource string, trace *[]string) []*Role {
	ids := make([]string, 0, len(e.assignments))
	for id := range e.assignments {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	now := time.Now().UTC()
	var ordered []*Role
	seen := make(map[string]bool)
	for _, id := range ids {
		a := e.assignments[id]
		if a.PrincipalID != principalID {
			continue
		}
		if !a.Active {
			tracef(trace, "assignment %s (role %s) skipped: revoked", a.ID, a.RoleID)
			continue
		}
		if a.Expired(now) {
			tracef(trace, "assignment %s (role %s) skipped: expired at %s", a.ID, a.RoleID, a.ExpiresAt.Format(time.RFC3339))
			continue
		}
		if !scopeMatches(a.Scope, resource) {
			tracef(trace, "assignment %s (role %s) skipped: scope %q does not cover %q", a.ID, a.RoleID, a.Scope, resource)
			continue
		}
		e.collectRole(a.RoleID, &ordered, seen, trace)
	}

	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Priority > ordered[j].Priority })
	tracef(trace, "resolved %d effective role(s) for %q on %q", len(ordered), principalID, resource)
	return ordered
}

// collectRole appends the role and, recursively, its ancestors. The shared
// seen set both collapses diamond-shaped hierarchies and terminates
// inheritance cycles.
func (e *Engine) collectRole(roleID string, ordered *[]*Role, seen map[string]bool, trace *[]string) {
	if seen[roleID] {
		return
	}
	seen[roleID] = true
	role, ok := e.roles[roleID]
	if !ok {
		e.logger.Debug("assignment references unknown role", "role_id", roleID)
		tracef(trace, "role %q not found, skipped", roleID)
		return
	}
	*ordered = append(*ordered, role)
	for _, parent := range role.ParentRoles {
		e.collectRole(parent, ordered, seen, trace)
	}
}

func tracef(trace *[]string, format string, args ...any) {
	if trace != nil {
		*trace = append(*trace, fmt.Sprintf(format, args...))
	}
}
