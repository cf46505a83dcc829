package rbac

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// RoleOption tweaks a role under construction in CreateRole.
type RoleOption func(*Role)

// WithParentRoles sets the roles this one inherits from. Parents may be
// forward references: an unresolved parent simply contributes nothing
// until it exists.
func WithParentRoles(ids ...string) RoleOption {
	return func(r *Role) { r.ParentRoles = append([]string(nil), ids...) }
}

// WithPriority overrides the default role priority. Higher priorities are
// consulted first during checks.
func WithPriority(p int) RoleOption {
	return func(r *Role) { r.Priority = p }
}

// WithRoleMetadata attaches free-form metadata to the role.
func WithRoleMetadata(md map[string]any) RoleOption {
	return func(r *Role) { r.Metadata = md }
}

// seedSystemRoles installs the built-in roles. Runs during New before any
// store is read, so persisted state can never shadow them.
func (e *Engine) seedSystemRoles() {
	for _, r := range builtinRoles(time.Now().UTC()) {
		e.roles[r.ID] = r
	}
}

func isSystemRoleID(id string) bool {
	switch id {
	case RoleAdmin, RoleDeveloper, RoleViewer, RoleAuditor:
		return true
	}
	return false
}

// builtinRoles constructs the four system roles fresh on every engine
// start.
func builtinRoles(now time.Time) []*Role {
	return []*Role{
		{
			ID:          RoleAdmin,
			Name:        "Administrator",
			Description: "Unrestricted access to all resources and actions",
			Permissions: []Permission{
				{ID: "admin-all", Name: "Full access", ResourcePattern: "*", Actions: []string{"*"}},
			},
			Priority:  1000,
			IsSystem:  true,
			CreatedAt: now,
		},
		{
			ID:          RoleDeveloper,
			Name:        "Developer",
			Description: "Read and write project code, read project and compliance state",
			Permissions: []Permission{
				{ID: "code-readwrite", Name: "Code read/write", ResourcePattern: "project/*/code/*", Actions: []string{"read", "write", "create", "update"}},
				{ID: "project-read", Name: "Project read", ResourcePattern: "project/*", Actions: []string{"read"}},
				{ID: "compliance-read", Name: "Compliance read", ResourcePattern: "compliance/*", Actions: []string{"read"}},
			},
			Priority:  100,
			IsSystem:  true,
			CreatedAt: now,
		},
		{
			ID:          RoleViewer,
			Name:        "Viewer",
			Description: "Read-only access to everything",
			Permissions: []Permission{
				{ID: "view-all", Name: "Read everything", ResourcePattern: "*", Actions: []string{"read"}},
			},
			Priority:  10,
			IsSystem:  true,
			CreatedAt: now,
		},
		{
			ID:          RoleAuditor,
			Name:        "Auditor",
			Description: "Read and export audit, compliance, and risk data",
			Permissions: []Permission{
				{ID: "audit-read", Name: "Audit read/export", ResourcePattern: "audit/*", Actions: []string{"read", "export"}},
				{ID: "compliance-audit", Name: "Compliance read/export", ResourcePattern: "compliance/*", Actions: []string{"read", "export"}},
				{ID: "risk-read", Name: "Risk read/export", ResourcePattern: "risk/*", Actions: []string{"read", "export"}},
			},
			Priority:  50,
			IsSystem:  true,
			CreatedAt: now,
		},
	}
}

// CreateRole registers a custom role. IDs of system roles are refused; an
// existing custom role with the same ID is overwritten wholesale, keeping
// its original CreatedAt. The role is persisted before it becomes visible.
// Both caches are cleared: a new role can close a previously dangling
// inheritance edge for any principal.
func (e *Engine) CreateRole(ctx context.Context, id, name, description string, perms []Permission, opts ...RoleOption) (*Role, error) {
	if err := validateID("role id", id); err != nil {
		return nil, err
	}
	role := &Role{
		ID:          id,
		Name:        name,
		Description: description,
		Permissions: append([]Permission(nil), perms...),
		Priority:    DefaultRolePriority,
		CreatedAt:   time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(role)
	}
	role.IsSystem = false

	e.mu.Lock()
	defer e.mu.Unlock()
	if existing, ok := e.roles[id]; ok {
		if existing.IsSystem {
			return nil, fmt.Errorf("%w: %s", ErrSystemRole, id)
		}
		role.CreatedAt = existing.CreatedAt
	}
	if e.roleStore != nil {
		if err := e.roleStore.SaveRole(ctx, role); err != nil {
			return nil, fmt.Errorf("save role %s: %w", id, err)
		}
	}
	e.roles[id] = role
	e.invalidateAllLocked()
	e.logger.Info("role created",
		"role_id", id,
		"priority", role.Priority,
		"permissions", len(role.Permissions),
		"parents", len(role.ParentRoles))
	return role, nil
}

// UpdateRole replaces a custom role definition wholesale, preserving the
// stored CreatedAt. System roles cannot be replaced.
func (e *Engine) UpdateRole(ctx context.Context, role *Role) (*Role, error) {
	if role == nil {
		return nil, fmt.Errorf("rbac: role is nil")
	}
	if err := validateID("role id", role.ID); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	existing, ok := e.roles[role.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRoleNotFound, role.ID)
	}
	if existing.IsSystem {
		return nil, fmt.Errorf("%w: %s", ErrSystemRole, role.ID)
	}
	updated := *role
	updated.Permissions = append([]Permission(nil), role.Permissions...)
	updated.IsSystem = false
	updated.CreatedAt = existing.CreatedAt
	if e.roleStore != nil {
		if err := e.roleStore.SaveRole(ctx, &updated); err != nil {
			return nil, fmt.Errorf("save role %s: %w", role.ID, err)
		}
	}
	e.roles[role.ID] = &updated
	e.invalidateAllLocked()
	e.logger.Info("role updated", "role_id", role.ID)
	return &updated, nil
}

// DeleteRole removes a custom role. Assignments that reference it stay on
// record but stop conferring anything. System roles cannot be deleted.
func (e *Engine) DeleteRole(ctx context.Context, id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	role, ok := e.roles[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrRoleNotFound, id)
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %s", ErrSystemRole, id)
	}
	if e.roleStore != nil {
		if err := e.roleStore.DeleteRole(ctx, id); err != nil {
			return fmt.Errorf("delete role %s: %w", id, err)
		}
	}
	delete(e.roles, id)
	e.invalidateAllLocked()
	e.logger.Info("role deleted", "role_id", id)
	return nil
}

// GetRole looks up a role by ID. The returned role must be treated as
// read-only.
func (e *Engine) GetRole(id string) (*Role, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	role, ok := e.roles[id]
	return role, ok
}

// ListRoles returns every role, system and custom, ordered by priority
// descending with ID as the tiebreak.
func (e *Engine) ListRoles() []*Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	roles := make([]*Role, 0, len(e.roles))
	for _, r := range e.roles {
		roles = append(roles, r)
	}
	sortRoles(roles)
	return roles
}

// ListCustomRoles returns only the non-system roles, ordered like
// ListRoles. Config export and bundle distribution ship this set.
func (e *Engine) ListCustomRoles() []*Role {
	e.mu.RLock()
	defer e.mu.RUnlock()
	roles := make([]*Role, 0, len(e.roles))
	for _, r := range e.roles {
		if !r.IsSystem {
			roles = append(roles, r)
		}
	}
	sortRoles(roles)
	return roles
}

func sortRoles(roles []*Role) {
	sort.Slice(roles, func(i, j int) bool {
		if roles[i].Priority != roles[j].Priority {
			return roles[i].Priority > roles[j].Priority
		}
		return roles[i].ID < roles[j].ID
	})
}
