package rbac

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/maestro-platform/rbac/utils"
)

// Principal types recognized by the engine. Assignments default to
// PrincipalUser when no type is given.
const (
	PrincipalUser    = "user"
	PrincipalService = "service"
	PrincipalAgent   = "agent"
)

// IDs of the system roles seeded by every engine instance.
const (
	RoleAdmin     = "admin"
	RoleDeveloper = "developer"
	RoleViewer    = "viewer"
	RoleAuditor   = "auditor"
)

// DefaultRolePriority is used when a role is created without an explicit
// priority.
const DefaultRolePriority = 50

// ReasonNoMatch is the reason attached to every denied check result.
const ReasonNoMatch = "No matching permission found"

// Permission grants a set of actions on resources selected by a glob
// pattern. A '*' in the pattern spans path separators, so "project/*"
// covers the entire project subtree. Actions are matched literally, with
// "*" standing for any action. Conditions are carried through storage and
// audit records but are not evaluated by the engine.
type Permission struct {
	ID              string         `json:"id" yaml:"id"`
	Name            string         `json:"name,omitempty" yaml:"name,omitempty"`
	ResourcePattern string         `json:"resource_pattern" yaml:"resource_pattern"`
	Actions         []string       `json:"actions" yaml:"actions"`
	Conditions      map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// Matches checks whether the permission covers the given resource and
// action.
func (p *Permission) Matches(resource, action string) bool {
	if !utils.Match(resource, p.ResourcePattern) {
		return false
	}
	for _, a := range p.Actions {
		if a == "*" || a == action {
			return true
		}
	}
	return false
}

// Role is a named bundle of permissions. Roles may inherit from any number
// of parent roles; the effective permission set of a principal is the union
// over every role it holds and all their ancestors. Higher-priority roles
// are consulted first when a check walks the effective set. System roles
// are seeded at engine start and are never persisted or mutable.
type Role struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Permissions []Permission   `json:"permissions" yaml:"permissions"`
	ParentRoles []string       `json:"parent_roles,omitempty" yaml:"parent_roles,omitempty"`
	Priority    int            `json:"priority" yaml:"priority"`
	IsSystem    bool           `json:"is_system,omitempty" yaml:"is_system,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	CreatedAt   time.Time      `json:"created_at" yaml:"created_at,omitempty"`
}

// RoleAssignment grants a role to a principal, optionally narrowed to a
// resource scope and bounded by an expiry. Assignments are soft-deleted:
// revocation flips Active to false and the record is kept.
type RoleAssignment struct {
	ID            string         `json:"id" yaml:"id,omitempty"`
	PrincipalID   string         `json:"principal_id" yaml:"principal_id"`
	PrincipalType string         `json:"principal_type" yaml:"principal_type,omitempty"`
	RoleID        string         `json:"role_id" yaml:"role_id"`
	Scope         string         `json:"scope,omitempty" yaml:"scope,omitempty"`
	GrantedBy     string         `json:"granted_by,omitempty" yaml:"granted_by,omitempty"`
	GrantedAt     time.Time      `json:"granted_at" yaml:"granted_at,omitempty"`
	ExpiresAt     *time.Time     `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	Conditions    map[string]any `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Active        bool           `json:"active" yaml:"active"`
}

// Expired checks whether the assignment's expiry, if any, lies before now.
func (a *RoleAssignment) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}

// Valid checks whether the assignment currently confers its role.
func (a *RoleAssignment) Valid(now time.Time) bool {
	return a.Active && !a.Expired(now)
}

// AssignmentID derives the deterministic ID for a principal/role/scope
// triple: the first 16 hex characters of its SHA-256 digest. Granting the
// same triple twice therefore updates a single record instead of creating
// a duplicate. An empty scope hashes as "*".
func AssignmentID(principalID, roleID, scope string) string {
	if scope == "" {
		scope = "*"
	}
	sum := sha256.Sum256([]byte(principalID + ":" + roleID + ":" + scope))
	return hex.EncodeToString(sum[:])[:16]
}

// AccessCheckResult is the outcome of a single access check. Checks never
// fail: a denial is an ordinary result with Allowed false and a reason.
// MatchedRoles and MatchedPermissions list, without duplicates and in
// discovery order, the role and permission IDs that contributed to an
// allow decision; both are empty on a denial.
type AccessCheckResult struct {
	Allowed            bool           `json:"allowed"`
	PrincipalID        string         `json:"principal_id"`
	Resource           string         `json:"resource"`
	Action             string         `json:"action"`
	MatchedRoles       []string       `json:"matched_roles"`
	MatchedPermissions []string       `json:"matched_permissions"`
	Reason             string         `json:"reason"`
	Timestamp          time.Time      `json:"timestamp"`
	DurationMS         float64        `json:"duration_ms"`
	Context            map[string]any `json:"context,omitempty"`
	Trace              []string       `json:"trace,omitempty"`
}

// AccessRequest is one unit of work for BatchCheck.
type AccessRequest struct {
	PrincipalID string         `json:"principal_id"`
	Resource    string         `json:"resource"`
	Action      string         `json:"action"`
	Context     map[string]any `json:"context,omitempty"`
}
