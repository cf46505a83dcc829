package rbac

import "context"

// RoleStore persists custom role definitions. System roles never reach a
// store: they are reconstructed at engine start.
type RoleStore interface {
	SaveRole(ctx context.Context, role *Role) error
	DeleteRole(ctx context.Context, roleID string) error
	LoadRoles(ctx context.Context) ([]*Role, error)
}

// AssignmentStore persists role assignments. Revoked assignments are saved
// with Active false rather than removed, so the grant history survives.
type AssignmentStore interface {
	SaveAssignment(ctx context.Context, assignment *RoleAssignment) error
	LoadAssignments(ctx context.Context) ([]*RoleAssignment, error)
}

// AuditStore receives one record per access decision, fed by the engine's
// background audit worker.
type AuditStore interface {
	LogDecision(ctx context.Context, rec *AuditRecord) error
	QueryDecisions(ctx context.Context, filter AuditFilter) ([]*AuditRecord, error)
}
