package rbac

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/maestro-platform/rbac/logger"
)

var (
	_ RoleStore       = (*FileRoleStore)(nil)
	_ AssignmentStore = (*FileAssignmentStore)(nil)
)

// FileRoleStore persists one role per JSON file, "{role_id}.json", under
// its directory. Unparseable files are logged and skipped at load time so
// one corrupt record cannot block startup.
type FileRoleStore struct {
	dir string
	log logger.Logger
}

func NewFileRoleStore(dir string, log logger.Logger) (*FileRoleStore, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create role dir: %w", err)
	}
	return &FileRoleStore{dir: dir, log: log}, nil
}

func (s *FileRoleStore) SaveRole(ctx context.Context, role *Role) error {
	data, err := json.MarshalIndent(role, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal role %s: %w", role.ID, err)
	}
	path := filepath.Join(s.dir, role.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write role %s: %w", role.ID, err)
	}
	return nil
}

func (s *FileRoleStore) DeleteRole(ctx context.Context, roleID string) error {
	err := os.Remove(filepath.Join(s.dir, roleID+".json"))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete role %s: %w", roleID, err)
	}
	return nil
}

func (s *FileRoleStore) LoadRoles(ctx context.Context) ([]*Role, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read role dir: %w", err)
	}
	roles := make([]*Role, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Error("skipping unreadable role file", "path", path, "error", err)
			continue
		}
		var role Role
		if err := json.Unmarshal(data, &role); err != nil {
			s.log.Error("skipping malformed role file", "path", path, "error", err)
			continue
		}
		if role.ID == "" {
			s.log.Error("skipping role file without id", "path", path)
			continue
		}
		roles = append(roles, &role)
	}
	return roles, nil
}

// FileAssignmentStore persists one assignment per JSON file,
// "{assignment_id}.json". Revoked assignments stay on disk with
// "active": false, preserving the grant history.
type FileAssignmentStore struct {
	dir string
	log logger.Logger
}

func NewFileAssignmentStore(dir string, log logger.Logger) (*FileAssignmentStore, error) {
	if log == nil {
		log = logger.NewNullLogger()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create assignment dir: %w", err)
	}
	return &FileAssignmentStore{dir: dir, log: log}, nil
}

func (s *FileAssignmentStore) SaveAssignment(ctx context.Context, assignment *RoleAssignment) error {
	data, err := json.MarshalIndent(assignment, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal assignment %s: %w", assignment.ID, err)
	}
	path := filepath.Join(s.dir, assignment.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write assignment %s: %w", assignment.ID, err)
	}
	return nil
}

func (s *FileAssignmentStore) LoadAssignments(ctx context.Context) ([]*RoleAssignment, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read assignment dir: %w", err)
	}
	assignments := make([]*RoleAssignment, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		path := filepath.Join(s.dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			s.log.Error("skipping unreadable assignment file", "path", path, "error", err)
			continue
		}
		var a RoleAssignment
		if err := json.Unmarshal(data, &a); err != nil {
			s.log.Error("skipping malformed assignment file", "path", path, "error", err)
			continue
		}
		if a.ID == "" {
			s.log.Error("skipping assignment file without id", "path", path)
			continue
		}
		assignments = append(assignments, &a)
	}
	return assignments, nil
}
