package stores

import (
	"context"
	"sync"

	"github.com/maestro-platform/rbac"
)

// MemoryRoleStore implements in-memory role persistence for testing/demo
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*rbac.Role
}

var _ rbac.RoleStore = (*MemoryRoleStore)(nil)

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*rbac.Role)}
}

func (s *MemoryRoleStore) SaveRole(ctx context.Context, r *rbac.Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *r
	s.roles[r.ID] = &cop
	return nil
}

func (s *MemoryRoleStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.roles, id)
	return nil
}

func (s *MemoryRoleStore) LoadRoles(ctx context.Context) ([]*rbac.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*rbac.Role, 0, len(s.roles))
	for _, r := range s.roles {
		cop := *r
		result = append(result, &cop)
	}
	return result, nil
}

// MemoryAssignmentStore implements in-memory assignment persistence
type MemoryAssignmentStore struct {
	mu          sync.RWMutex
	assignments map[string]*rbac.RoleAssignment
}

var _ rbac.AssignmentStore = (*MemoryAssignmentStore)(nil)

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{assignments: make(map[string]*rbac.RoleAssignment)}
}

func (s *MemoryAssignmentStore) SaveAssignment(ctx context.Context, a *rbac.RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cop := *a
	s.assignments[a.ID] = &cop
	return nil
}

func (s *MemoryAssignmentStore) LoadAssignments(ctx context.Context) ([]*rbac.RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*rbac.RoleAssignment, 0, len(s.assignments))
	for _, a := range s.assignments {
		cop := *a
		result = append(result, &cop)
	}
	return result, nil
}

// MemoryAuditStore implements in-memory audit logging
type MemoryAuditStore struct {
	mu      sync.RWMutex
	records []*rbac.AuditRecord
}

var _ rbac.AuditStore = (*MemoryAuditStore)(nil)

func NewMemoryAuditStore() *MemoryAuditStore {
	return &MemoryAuditStore{records: make([]*rbac.AuditRecord, 0)}
}

func (s *MemoryAuditStore) LogDecision(ctx context.Context, rec *rbac.AuditRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryAuditStore) QueryDecisions(ctx context.Context, filter rbac.AuditFilter) ([]*rbac.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*rbac.AuditRecord, 0)
	for _, rec := range s.records {
		if !filter.Matches(rec) {
			continue
		}
		result = append(result, rec)
		if filter.Limit > 0 && len(result) >= filter.Limit {
			break
		}
	}
	return result, nil
}

// Len reports how many records have been persisted.
func (s *MemoryAuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
