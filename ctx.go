package guard

import (
	"context"
	"strings"
)

// Principal is the request's resolved security subject. The gate builds one
// per request; callers pass it explicitly down the call chain instead of
// reading shared mutable state.
type Principal struct {
	Username    string
	Permissions map[string][]string
}

// Anonymous is the principal for requests without a usable token.
var Anonymous = Principal{}

// IsAnonymous reports whether the principal identifies no user.
func (p Principal) IsAnonymous() bool {
	return p.Username == ""
}

// Can checks whether the principal holds action on resource.
func (p Principal) Can(action, resource string) bool {
	actions, ok := p.Permissions[strings.ToLower(resource)]
	if !ok {
		return false
	}
	action = strings.ToLower(action)
	for _, a := range actions {
		if a == action {
			return true
		}
	}
	return false
}

var principalCtxKey = &contextKey{"principal"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithPrincipal sets the Principal in the given context
func WithPrincipal(ctx context.Context, principal Principal) context.Context {
	return context.WithValue(ctx, principalCtxKey, principal)
}

// PrincipalFromContext finds the principal from the context. Absence is
// reported as the anonymous principal.
func PrincipalFromContext(ctx context.Context) Principal {
	raw, ok := ctx.Value(principalCtxKey).(Principal)
	if !ok {
		return Anonymous
	}
	return raw
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(ctx context.Context, claims AuthClaims) context.Context {
	return context.WithValue(ctx, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// Can is a convenience permission check against the context principal.
func Can(ctx context.Context, action, resource string) bool {
	return PrincipalFromContext(ctx).Can(action, resource)
}
