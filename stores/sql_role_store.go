package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"

	"github.com/maestro-platform/rbac"
)

// SQLRoleStore persists roles in SQL (squealx)
type SQLRoleStore struct {
	db *squealx.DB
}

var _ rbac.RoleStore = (*SQLRoleStore)(nil)

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) SaveRole(ctx context.Context, r *rbac.Role) error {
	params := map[string]any{
		"id":                r.ID,
		"name":              r.Name,
		"description":       r.Description,
		"permissions_json":  permissionsToJSON(r.Permissions),
		"parent_roles_json": stringsToJSON(r.ParentRoles),
		"priority":          r.Priority,
		"metadata_json":     mapToJSON(r.Metadata),
		"created_at":        r.CreatedAt,
	}
	q := `UPDATE rbac_roles SET name=:name, description=:description, permissions_json=:permissions_json, parent_roles_json=:parent_roles_json, priority=:priority, metadata_json=:metadata_json WHERE id=:id`
	res, err := s.db.NamedExecContext(ctx, q, params)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n > 0 {
		return nil
	}
	q = `INSERT INTO rbac_roles(id, name, description, permissions_json, parent_roles_json, priority, metadata_json, created_at) VALUES(:id, :name, :description, :permissions_json, :parent_roles_json, :priority, :metadata_json, :created_at)`
	_, err = s.db.NamedExecContext(ctx, q, params)
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	q := `DELETE FROM rbac_roles WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) LoadRoles(ctx context.Context) ([]*rbac.Role, error) {
	q := `SELECT id, name, description, permissions_json, parent_roles_json, priority, metadata_json, created_at FROM rbac_roles`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*rbac.Role, 0)
	for r.Next() {
		var id, name, description, permsJSON, parentsJSON, metaJSON string
		var priority int
		var createdRaw any
		if err := r.Scan(&id, &name, &description, &permsJSON, &parentsJSON, &priority, &metaJSON, &createdRaw); err != nil {
			return nil, err
		}
		role := &rbac.Role{
			ID:          id,
			Name:        name,
			Description: description,
			Permissions: jsonToPermissions(permsJSON),
			ParentRoles: jsonToStrings(parentsJSON),
			Priority:    priority,
			Metadata:    jsonToMap(metaJSON),
			CreatedAt:   scanTime(createdRaw),
		}
		if role.CreatedAt.IsZero() {
			role.CreatedAt = time.Now().UTC()
		}
		out = append(out, role)
	}
	return out, nil
}
