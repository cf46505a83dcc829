package rbac

import (
	"context"
	"testing"
	"time"
)

func TestRoleBuilderCreatesThroughEngine(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	role, err := NewRoleBuilder("release-manager").
		Name("Release Manager").
		Description("Cuts releases").
		Allow("deploy", "project/*/releases/*", "read", "deploy").
		Permission(NewPermissionBuilder("freeze").
			Pattern("project/*/releases/*").
			Actions("freeze").
			Condition("approval", "required").
			Build()).
		Inherits("viewer").
		Priority(200).
		Metadata("team", "platform").
		Create(ctx, e)
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	if role.Priority != 200 || len(role.Permissions) != 2 {
		t.Fatalf("builder lost fields: %+v", role)
	}
	if len(role.ParentRoles) != 1 || role.ParentRoles[0] != "viewer" {
		t.Fatalf("parents not carried: %v", role.ParentRoles)
	}
	if role.Permissions[1].Conditions["approval"] != "required" {
		t.Fatalf("permission conditions not carried: %+v", role.Permissions[1])
	}
	if role.Metadata["team"] != "platform" {
		t.Fatalf("metadata not carried: %+v", role.Metadata)
	}

	stored, ok := e.GetRole("release-manager")
	if !ok || stored.Name != "Release Manager" {
		t.Fatalf("role not registered on the engine")
	}
}

func TestAssignmentBuilderGrantsThroughEngine(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	a, err := NewAssignmentBuilder("carol", "auditor").
		Scope("audit/*").
		PrincipalType(PrincipalService).
		GrantedBy("ops").
		ExpiresInDays(30).
		Condition("mfa", true).
		Grant(ctx, e)
	if err != nil {
		t.Fatalf("grant: %v", err)
	}

	if a.ID != AssignmentID("carol", "auditor", "audit/*") {
		t.Fatalf("unexpected assignment id %s", a.ID)
	}
	if a.PrincipalType != PrincipalService || a.GrantedBy != "ops" {
		t.Fatalf("builder lost fields: %+v", a)
	}
	if a.ExpiresAt == nil || !a.ExpiresAt.After(time.Now()) {
		t.Fatalf("expected a future expiry, got %v", a.ExpiresAt)
	}
	if a.Conditions["mfa"] != true {
		t.Fatalf("conditions not carried: %+v", a.Conditions)
	}

	if res := e.CheckAccess(ctx, "carol", "audit/logs/today", "read", nil); !res.Allowed {
		t.Fatalf("granted assignment not effective: %+v", res)
	}
}
