package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/maestro-platform/rbac"
)

// SQLAssignmentStore persists role assignments in SQL (squealx)
type SQLAssignmentStore struct {
	db *squealx.DB
}

var _ rbac.AssignmentStore = (*SQLAssignmentStore)(nil)

func NewSQLAssignmentStore(db *squealx.DB) *SQLAssignmentStore {
	return &SQLAssignmentStore{db: db}
}

func (s *SQLAssignmentStore) SaveAssignment(ctx context.Context, a *rbac.RoleAssignment) error {
	var expiresAt any
	if a.ExpiresAt != nil {
		expiresAt = *a.ExpiresAt
	}
	params := map[string]any{
		"id":              a.ID,
		"principal_id":    a.PrincipalID,
		"principal_type":  a.PrincipalType,
		"role_id":         a.RoleID,
		"scope":           a.Scope,
		"granted_by":      a.GrantedBy,
		"granted_at":      a.GrantedAt,
		"expires_at":      expiresAt,
		"conditions_json": mapToJSON(a.Conditions),
		"active":          boolToInt(a.Active),
	}
	q := `UPDATE rbac_assignments SET principal_id=:principal_id, principal_type=:principal_type, role_id=:role_id, scope=:scope, granted_by=:granted_by, granted_at=:granted_at, expires_at=:expires_at, conditions_json=:conditions_json, active=:active WHERE id=:id`
	res, err := s.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	q = `INSERT INTO rbac_assignments(id, principal_id, principal_type, role_id, scope, granted_by, granted_at, expires_at, conditions_json, active) VALUES(:id, :principal_id, :principal_type, :role_id, :scope, :granted_by, :granted_at, :expires_at, :conditions_json, :active)`
	_, err = s.db.NamedExecContext(ctx, q, params)
	return err
}

func (s *SQLAssignmentStore) LoadAssignments(ctx context.Context) ([]*rbac.RoleAssignment, error) {
	q := `SELECT id, principal_id, principal_type, role_id, scope, granted_by, granted_at, expires_at, conditions_json, active FROM rbac_assignments`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*rbac.RoleAssignment, 0)
	for r.Next() {
		var id, principalID, principalType, roleID, scope, grantedBy, conditionsJSON string
		var grantedRaw, expiresRaw any
		var activeInt int
		if err := r.Scan(&id, &principalID, &principalType, &roleID, &scope, &grantedBy, &grantedRaw, &expiresRaw, &conditionsJSON, &activeInt); err != nil {
			return nil, err
		}
		out = append(out, &rbac.RoleAssignment{
			ID:            id,
			PrincipalID:   principalID,
			PrincipalType: principalType,
			RoleID:        roleID,
			Scope:         scope,
			GrantedBy:     grantedBy,
			GrantedAt:     scanTime(grantedRaw),
			ExpiresAt:     scanTimePtr(expiresRaw),
			Conditions:    jsonToMap(conditionsJSON),
			Active:        activeInt != 0,
		})
	}
	return out, nil
}
