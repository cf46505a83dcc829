package stores

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/maestro-platform/rbac"
)

func TestRedisAssignmentStoreRoundtrip(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisAssignmentStore(client)
	ctx := context.Background()

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	assignments := []*rbac.RoleAssignment{
		{
			ID:            rbac.AssignmentID("alice", "developer", ""),
			PrincipalID:   "alice",
			PrincipalType: rbac.PrincipalUser,
			RoleID:        "developer",
			GrantedAt:     time.Now().UTC().Truncate(time.Second),
			ExpiresAt:     &expires,
			Active:        true,
		},
		{
			ID:          rbac.AssignmentID("bot-1", "viewer", "project/demo/*"),
			PrincipalID: "bot-1",
			RoleID:      "viewer",
			Scope:       "project/demo/*",
			GrantedAt:   time.Now().UTC().Truncate(time.Second),
			Active:      true,
		},
	}
	for _, a := range assignments {
		if err := store.SaveAssignment(ctx, a); err != nil {
			t.Fatalf("save assignment: %v", err)
		}
	}

	loaded, err := store.LoadAssignments(ctx)
	if err != nil {
		t.Fatalf("load assignments: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 assignments, got %d", len(loaded))
	}
	byID := map[string]*rbac.RoleAssignment{}
	for _, a := range loaded {
		byID[a.ID] = a
	}
	got := byID[assignments[0].ID]
	if got == nil {
		t.Fatalf("alice's assignment missing")
	}
	if got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) {
		t.Fatalf("expires_at did not round trip: %v", got.ExpiresAt)
	}
	if byID[assignments[1].ID].Scope != "project/demo/*" {
		t.Fatalf("scope did not round trip")
	}
}

func TestRedisAssignmentStoreUpsert(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	store := NewRedisAssignmentStore(client)
	ctx := context.Background()

	a := &rbac.RoleAssignment{
		ID:          rbac.AssignmentID("carol", "auditor", ""),
		PrincipalID: "carol",
		RoleID:      "auditor",
		GrantedAt:   time.Now().UTC(),
		Active:      true,
	}
	if err := store.SaveAssignment(ctx, a); err != nil {
		t.Fatalf("save assignment: %v", err)
	}
	a.Active = false
	if err := store.SaveAssignment(ctx, a); err != nil {
		t.Fatalf("save revoked assignment: %v", err)
	}

	loaded, err := store.LoadAssignments(ctx)
	if err != nil {
		t.Fatalf("load assignments: %v", err)
	}
	if len(loaded) != 1 {
		t.Fatalf("expected a single record after upsert, got %d", len(loaded))
	}
	if loaded[0].Active {
		t.Fatalf("revoked assignment still active")
	}
}
