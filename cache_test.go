package rbac

import (
	"context"
	"testing"
	"time"
)

func TestResolutionCacheHitCounting(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	stats := e.CacheStats()
	if stats.Hits != 0 {
		t.Fatalf("first lookup must not hit, got %d hits", stats.Hits)
	}
	if stats.Misses == 0 {
		t.Fatalf("first lookup must count a miss")
	}
	if stats.Entries != 1 {
		t.Fatalf("expected one cached resolution, got %d", stats.Entries)
	}

	e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	stats = e.CacheStats()
	if stats.Hits != 1 {
		t.Fatalf("second lookup must hit, got %d hits", stats.Hits)
	}
}

func TestAssignInvalidatesOnlyThatPrincipal(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if _, err := e.AssignRole(ctx, "ben", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	e.CheckAccess(ctx, "ben", "doc/1", "read", nil)
	if stats := e.CacheStats(); stats.Entries != 2 {
		t.Fatalf("expected two cached resolutions, got %d", stats.Entries)
	}

	if _, err := e.AssignRole(ctx, "amy", "developer", ""); err != nil {
		t.Fatalf("assign second role: %v", err)
	}
	if stats := e.CacheStats(); stats.Entries != 1 {
		t.Fatalf("expected only ben's resolution to survive, got %d entries", stats.Entries)
	}

	before := e.CacheStats().Hits
	e.CheckAccess(ctx, "ben", "doc/1", "read", nil)
	if after := e.CacheStats().Hits; after != before+1 {
		t.Fatalf("ben's cached resolution should have been served, hits %d -> %d", before, after)
	}

	// Amy's refreshed resolution reflects the new grant.
	res := e.CheckAccess(ctx, "amy", "project/maestro/code/x.go", "write", nil)
	if !res.Allowed {
		t.Fatalf("expected developer grant to be visible: %+v", res)
	}
}

func TestRoleMutationClearsAllResolutions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	if stats := e.CacheStats(); stats.Entries == 0 {
		t.Fatalf("expected a cached resolution")
	}

	if _, err := e.CreateRole(ctx, "fresh", "Fresh", "", nil); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if stats := e.CacheStats(); stats.Entries != 0 {
		t.Fatalf("role creation must clear every resolution, %d entries left", stats.Entries)
	}
}

func TestCacheTTLZeroDisablesResolutionCache(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithCacheTTL(0))

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	for i := 0; i < 3; i++ {
		if res := e.CheckAccess(ctx, "amy", "doc/1", "read", nil); !res.Allowed {
			t.Fatalf("expected allow: %+v", res)
		}
	}
	if stats := e.CacheStats(); stats.Entries != 0 || stats.Hits != 0 {
		t.Fatalf("disabled cache must stay empty, got %+v", stats)
	}
}

func TestResolutionEntriesExpire(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithCacheTTL(10*time.Millisecond))

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	time.Sleep(50 * time.Millisecond)

	before := e.CacheStats().Hits
	e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	if after := e.CacheStats().Hits; after != before {
		t.Fatalf("stale entry must not be served, hits %d -> %d", before, after)
	}
}

func TestResolutionCachePrefixInvalidation(t *testing.T) {
	c := newResolutionCache(time.Minute)
	c.set("amy:doc/1", nil)
	c.set("amy:doc/2", nil)
	c.set("ben:doc/1", nil)

	if n := c.invalidatePrefix("amy:"); n != 2 {
		t.Fatalf("expected 2 invalidations, got %d", n)
	}
	if c.size() != 1 {
		t.Fatalf("expected one surviving entry, got %d", c.size())
	}
	if _, ok := c.get("ben:doc/1"); !ok {
		t.Fatalf("unrelated entry was dropped")
	}
}

func TestDecisionCacheServesRepeatDecisions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithDecisionCache(10000, 1000))

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	first := e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	if !first.Allowed {
		t.Fatalf("expected allow: %+v", first)
	}
	e.decisions.Load().wait()

	// A decision cache hit skips resolution entirely.
	before := e.CacheStats()
	second := e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	after := e.CacheStats()
	if before.Hits != after.Hits || before.Misses != after.Misses {
		t.Fatalf("expected the decision cache to shortcut resolution: %+v -> %+v", before, after)
	}
	if !second.Allowed || second.Reason != first.Reason {
		t.Fatalf("cached decision differs: %+v", second)
	}
	if second.Timestamp.Before(first.Timestamp) {
		t.Fatalf("cached result must carry a fresh timestamp")
	}
}

func TestRevokeInvalidatesCachedDecisions(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithDecisionCache(10000, 1000))

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if res := e.CheckAccess(ctx, "amy", "doc/1", "read", nil); !res.Allowed {
		t.Fatalf("expected allow: %+v", res)
	}
	e.decisions.Load().wait()

	if _, err := e.RevokeRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("revoke role: %v", err)
	}
	if res := e.CheckAccess(ctx, "amy", "doc/1", "read", nil); res.Allowed {
		t.Fatalf("revocation must invalidate cached decisions: %+v", res)
	}
}

func TestDecisionResolvedBeforeRevocationStaysUnreachable(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithDecisionCache(10000, 1000))

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}

	// Replay a check whose resolution finished just before a revocation
	// landed: the key is minted, the revoke commits, then the stale allow
	// is stored. It must land on the old generation and stay unreachable.
	dc := e.decisions.Load()
	key := dc.key("amy", "doc/1", "read")
	stale := e.Explain(ctx, "amy", "doc/1", "read", nil)
	if !stale.Allowed {
		t.Fatalf("expected allow before revocation: %+v", stale)
	}
	if _, err := e.RevokeRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("revoke role: %v", err)
	}
	dc.set(key, stale)
	dc.wait()

	if res := e.CheckAccess(ctx, "amy", "doc/1", "read", nil); res.Allowed {
		t.Fatalf("revoked principal served a pre-revocation allow: %+v", res)
	}
}

func TestConfigureDecisionCacheAtRuntime(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if e.decisions.Load() != nil {
		t.Fatalf("decision cache should be off by default")
	}
	if err := e.ConfigureDecisionCache(10000, 1000); err != nil {
		t.Fatalf("configure decision cache: %v", err)
	}
	if e.decisions.Load() == nil {
		t.Fatalf("decision cache not installed")
	}

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	if res := e.CheckAccess(ctx, "amy", "doc/1", "read", nil); !res.Allowed {
		t.Fatalf("expected allow: %+v", res)
	}
}

func TestExplainBypassesDecisionCache(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t, WithDecisionCache(10000, 1000))

	if _, err := e.AssignRole(ctx, "amy", "viewer", ""); err != nil {
		t.Fatalf("assign role: %v", err)
	}
	e.CheckAccess(ctx, "amy", "doc/1", "read", nil)
	e.decisions.Load().wait()

	res := e.Explain(ctx, "amy", "doc/1", "read", nil)
	if len(res.Trace) == 0 {
		t.Fatalf("explain after a cached check must still trace the full evaluation")
	}
}
