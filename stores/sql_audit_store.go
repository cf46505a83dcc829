package stores

import (
	"context"

	"github.com/oarkflow/squealx"

	"github.com/maestro-platform/rbac"
)

// SQLAuditStore persists audit records in SQL
type SQLAuditStore struct {
	db *squealx.DB
}

var _ rbac.AuditStore = (*SQLAuditStore)(nil)

func NewSQLAuditStore(db *squealx.DB) *SQLAuditStore {
	return &SQLAuditStore{db: db}
}

func (s *SQLAuditStore) LogDecision(ctx context.Context, rec *rbac.AuditRecord) error {
	q := `INSERT INTO rbac_audit_log(id, trace_id, timestamp, principal_id, resource, action, allowed, matched_roles_json, matched_permissions_json, reason, duration_ms, context_json) VALUES(:id, :trace_id, :timestamp, :principal_id, :resource, :action, :allowed, :matched_roles_json, :matched_permissions_json, :reason, :duration_ms, :context_json)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":                       rec.ID,
		"trace_id":                 rec.TraceID,
		"timestamp":                rec.Timestamp,
		"principal_id":             rec.PrincipalID,
		"resource":                 rec.Resource,
		"action":                   rec.Action,
		"allowed":                  boolToInt(rec.Allowed),
		"matched_roles_json":       stringsToJSON(rec.MatchedRoles),
		"matched_permissions_json": stringsToJSON(rec.MatchedPermissions),
		"reason":                   rec.Reason,
		"duration_ms":              rec.DurationMS,
		"context_json":             mapToJSON(rec.Context),
	})
	return err
}

func (s *SQLAuditStore) QueryDecisions(ctx context.Context, filter rbac.AuditFilter) ([]*rbac.AuditRecord, error) {
	q := `SELECT id, trace_id, timestamp, principal_id, resource, action, allowed, matched_roles_json, matched_permissions_json, reason, duration_ms, context_json FROM rbac_audit_log WHERE 1=1`
	params := map[string]any{}
	if filter.PrincipalID != "" {
		q += " AND principal_id = :principal_id"
		params["principal_id"] = filter.PrincipalID
	}
	if filter.Resource != "" {
		q += " AND resource = :resource"
		params["resource"] = filter.Resource
	}
	if filter.Action != "" {
		q += " AND action = :action"
		params["action"] = filter.Action
	}
	if filter.Allowed != nil {
		q += " AND allowed = :allowed"
		params["allowed"] = boolToInt(*filter.Allowed)
	}
	if !filter.Since.IsZero() {
		q += " AND timestamp >= :since"
		params["since"] = filter.Since
	}
	if !filter.Until.IsZero() {
		q += " AND timestamp <= :until"
		params["until"] = filter.Until
	}
	q += " ORDER BY timestamp"
	if filter.Limit > 0 {
		q += " LIMIT :limit"
		params["limit"] = filter.Limit
	} else {
		q += " LIMIT 100"
	}
	r, err := s.db.NamedQueryContext(ctx, q, params)
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*rbac.AuditRecord, 0)
	for r.Next() {
		var id, traceID, principalID, resource, action, rolesJSON, permsJSON, reason, contextJSON string
		var timestampRaw any
		var allowedInt int
		var durationMS float64
		if err := r.Scan(&id, &traceID, &timestampRaw, &principalID, &resource, &action, &allowedInt, &rolesJSON, &permsJSON, &reason, &durationMS, &contextJSON); err != nil {
			return nil, err
		}
		out = append(out, &rbac.AuditRecord{
			ID:                 id,
			TraceID:            traceID,
			Timestamp:          scanTime(timestampRaw),
			PrincipalID:        principalID,
			Resource:           resource,
			Action:             action,
			Allowed:            allowedInt != 0,
			MatchedRoles:       jsonToStrings(rolesJSON),
			MatchedPermissions: jsonToStrings(permsJSON),
			Reason:             reason,
			DurationMS:         durationMS,
			Context:            jsonToMap(contextJSON),
		})
	}
	return out, nil
}
