package rbac

import (
	"context"
	"time"
)

// Builders provide a fluent API for composing Permissions, Roles and
// RoleAssignments.

// PermissionBuilder builds a Permission
type PermissionBuilder struct {
	p Permission
}

func NewPermissionBuilder(id string) *PermissionBuilder {
	return &PermissionBuilder{p: Permission{ID: id, Actions: []string{}}}
}

func (b *PermissionBuilder) Name(n string) *PermissionBuilder   { b.p.Name = n; return b }
func (b *PermissionBuilder) Pattern(p string) *PermissionBuilder { b.p.ResourcePattern = p; return b }
func (b *PermissionBuilder) Actions(a ...string) *PermissionBuilder {
	b.p.Actions = append(b.p.Actions, a...)
	return b
}
func (b *PermissionBuilder) Condition(key string, value any) *PermissionBuilder {
	if b.p.Conditions == nil {
		b.p.Conditions = map[string]any{}
	}
	b.p.Conditions[key] = value
	return b
}
func (b *PermissionBuilder) Build() Permission { return b.p }

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder(id string) *RoleBuilder {
	return &RoleBuilder{r: &Role{ID: id, Permissions: []Permission{}, Priority: DefaultRolePriority}}
}

func (b *RoleBuilder) Name(n string) *RoleBuilder        { b.r.Name = n; return b }
func (b *RoleBuilder) Description(d string) *RoleBuilder { b.r.Description = d; return b }
func (b *RoleBuilder) Permission(p Permission) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, p)
	return b
}
func (b *RoleBuilder) Allow(id, pattern string, actions ...string) *RoleBuilder {
	b.r.Permissions = append(b.r.Permissions, Permission{ID: id, ResourcePattern: pattern, Actions: actions})
	return b
}
func (b *RoleBuilder) Inherits(ids ...string) *RoleBuilder {
	b.r.ParentRoles = append(b.r.ParentRoles, ids...)
	return b
}
func (b *RoleBuilder) Priority(p int) *RoleBuilder { b.r.Priority = p; return b }
func (b *RoleBuilder) Metadata(key string, value any) *RoleBuilder {
	if b.r.Metadata == nil {
		b.r.Metadata = map[string]any{}
	}
	b.r.Metadata[key] = value
	return b
}
func (b *RoleBuilder) Build() *Role { return b.r }

// Create registers the built role on the engine.
func (b *RoleBuilder) Create(ctx context.Context, e *Engine) (*Role, error) {
	return e.CreateRole(ctx, b.r.ID, b.r.Name, b.r.Description, b.r.Permissions,
		WithParentRoles(b.r.ParentRoles...),
		WithPriority(b.r.Priority),
		WithRoleMetadata(b.r.Metadata))
}

// AssignmentBuilder builds a RoleAssignment grant
type AssignmentBuilder struct {
	principalID string
	roleID      string
	scope       string
	opts        []AssignOption
}

func NewAssignmentBuilder(principalID, roleID string) *AssignmentBuilder {
	return &AssignmentBuilder{principalID: principalID, roleID: roleID}
}

func (b *AssignmentBuilder) Scope(s string) *AssignmentBuilder { b.scope = s; return b }
func (b *AssignmentBuilder) PrincipalType(t string) *AssignmentBuilder {
	b.opts = append(b.opts, WithPrincipalType(t))
	return b
}
func (b *AssignmentBuilder) GrantedBy(who string) *AssignmentBuilder {
	b.opts = append(b.opts, WithGrantedBy(who))
	return b
}
func (b *AssignmentBuilder) ExpiresInDays(days int) *AssignmentBuilder {
	b.opts = append(b.opts, WithExpiresInDays(days))
	return b
}
func (b *AssignmentBuilder) ExpiresAt(t time.Time) *AssignmentBuilder {
	b.opts = append(b.opts, WithExpiresAt(t))
	return b
}
func (b *AssignmentBuilder) Condition(key string, value any) *AssignmentBuilder {
	b.opts = append(b.opts, func(a *RoleAssignment) {
		if a.Conditions == nil {
			a.Conditions = map[string]any{}
		}
		a.Conditions[key] = value
	})
	return b
}

// Grant applies the built assignment through the engine.
func (b *AssignmentBuilder) Grant(ctx context.Context, e *Engine) (*RoleAssignment, error) {
	return e.AssignRole(ctx, b.principalID, b.roleID, b.scope, b.opts...)
}
