package rbac

import (
	"context"
	"strings"
	"time"
)

// CheckAccess evaluates whether the principal may perform action on
// resource. It never returns an error: every failure mode is a denial
// with a reason. reqCtx is carried on the result and audit record without
// being evaluated.
//
// Effective roles are consulted in priority order. Within one role the
// first matching permission settles that role's contribution; the scan
// still continues through the remaining roles, so the result names every
// role that would have allowed the action.
func (e *Engine) CheckAccess(ctx context.Context, principalID, resource, action string, reqCtx map[string]any) *AccessCheckResult {
	return e.check(ctx, principalID, resource, action, reqCtx, nil)
}

// Explain runs CheckAccess with a step-by-step trace of resolution and
// permission matching attached to the result. Explain bypasses the
// decision cache so the trace always reflects a full evaluation.
func (e *Engine) Explain(ctx context.Context, principalID, resource, action string, reqCtx map[string]any) *AccessCheckResult {
	trace := make([]string, 0, 16)
	return e.check(ctx, principalID, resource, action, reqCtx, &trace)
}

// Enforce is CheckAccess for call sites that treat a denial as an error.
// It returns nil when access is allowed and a *PermissionError otherwise.
func (e *Engine) Enforce(ctx context.Context, principalID, resource, action string, reqCtx map[string]any) error {
	res := e.CheckAccess(ctx, principalID, resource, action, reqCtx)
	if res.Allowed {
		return nil
	}
	return &PermissionError{
		PrincipalID: principalID,
		Resource:    resource,
		Action:      action,
		Reason:      res.Reason,
	}
}

// BatchCheck evaluates every request and returns the results in input
// order.
func (e *Engine) BatchCheck(ctx context.Context, requests []AccessRequest) []*AccessCheckResult {
	results := make([]*AccessCheckResult, len(requests))
	for i, req := range requests {
		results[i] = e.CheckAccess(ctx, req.PrincipalID, req.Resource, req.Action, req.Context)
	}
	return results
}

func (e *Engine) check(ctx context.Context, principalID, resource, action string, reqCtx map[string]any, trace *[]string) *AccessCheckResult {
	start := time.Now()

	// The decision key is minted once, before resolution. Mutations that
	// land while the check runs bump the generation, so storing under the
	// pre-resolution key keeps their effect from being masked.
	var (
		dc          *decisionCache
		decisionKey string
	)
	if trace == nil {
		if dc = e.decisions.Load(); dc != nil {
			decisionKey = dc.key(principalID, resource, action)
			if cached, ok := dc.get(decisionKey); ok {
				res := *cached
				res.Timestamp = time.Now().UTC()
				res.DurationMS = durationMS(start)
				res.Context = reqCtx
				e.finishCheck(ctx, &res, true)
				return &res
			}
		}
	}

	roles := e.effectiveRoles(principalID, resource, trace)

	matchedRoles := make([]string, 0, 2)
	matchedPerms := make([]string, 0, 2)
	for _, role := range roles {
		for i := range role.Permissions {
			p := &role.Permissions[i]
			if p.Matches(resource, action) {
				tracef(trace, "role %q allows %q via permission %q (%s)", role.ID, action, p.ID, p.ResourcePattern)
				matchedRoles = appendUnique(matchedRoles, role.ID)
				matchedPerms = appendUnique(matchedPerms, p.ID)
				break
			}
		}
	}

	res := &AccessCheckResult{
		Allowed:            len(matchedRoles) > 0,
		PrincipalID:        principalID,
		Resource:           resource,
		Action:             action,
		MatchedRoles:       matchedRoles,
		MatchedPermissions: matchedPerms,
		Reason:             ReasonNoMatch,
		Timestamp:          time.Now().UTC(),
		Context:            reqCtx,
	}
	if res.Allowed {
		res.Reason = "Allowed by role(s): " + strings.Join(matchedRoles, ", ")
	}
	if trace != nil {
		tracef(trace, "decision: allowed=%v (%s)", res.Allowed, res.Reason)
		res.Trace = *trace
	}
	res.DurationMS = durationMS(start)

	if dc != nil {
		dc.set(decisionKey, res)
	}
	e.finishCheck(ctx, res, false)
	return res
}

// finishCheck logs the decision and feeds both audit paths.
func (e *Engine) finishCheck(ctx context.Context, res *AccessCheckResult, cached bool) {
	e.logger.Info("access decision",
		"principal_id", res.PrincipalID,
		"resource", res.Resource,
		"action", res.Action,
		"allowed", res.Allowed,
		"cached", cached,
		"duration_ms", res.DurationMS)
	e.audit(ctx, res)
}

func durationMS(start time.Time) float64 {
	return float64(time.Since(start).Nanoseconds()) / 1e6
}

func appendUnique(list []string, v string) []string {
	for _, existing := range list {
		if existing == v {
			return list
		}
	}
	return append(list, v)
}
