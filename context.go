package rbac

import "context"

// contextKey is the type for context keys in this package.
type contextKey string

const (
	resultKey    contextKey = "rbac:result"
	principalKey contextKey = "rbac:principal"
)

// ContextWithResult returns a new context carrying the check result, so
// HTTP middleware can hand the decision down to the protected handler.
func ContextWithResult(ctx context.Context, res *AccessCheckResult) context.Context {
	return context.WithValue(ctx, resultKey, res)
}

// ResultFromContext returns the check result from the context, or nil.
func ResultFromContext(ctx context.Context) *AccessCheckResult {
	if res, ok := ctx.Value(resultKey).(*AccessCheckResult); ok {
		return res
	}
	return nil
}

// ContextWithPrincipal returns a new context carrying the authenticated
// principal ID.
func ContextWithPrincipal(ctx context.Context, principalID string) context.Context {
	return context.WithValue(ctx, principalKey, principalID)
}

// PrincipalFromContext returns the principal ID from the context, or the
// empty string.
func PrincipalFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(principalKey).(string); ok {
		return id
	}
	return ""
}
