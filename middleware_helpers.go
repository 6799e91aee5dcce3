package guard

import (
	"context"

	"github.com/quillworks/go-guard/middleware/jwtware"
)

// ValidationListener aliases the jwtware listener so consumers can use guard helpers directly.
type ValidationListener = jwtware.ValidationListener

// JWTValidatorAdapter bridges a TokenService to the gate's validator surface.
func JWTValidatorAdapter(service TokenService) jwtware.TokenValidator {
	return jwtValidatorAdapter{service: service}
}

type jwtValidatorAdapter struct {
	service TokenService
}

func (a jwtValidatorAdapter) Validate(tokenString string) (jwtware.AuthClaims, error) {
	claims, err := a.service.Validate(tokenString)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ContextEnricherAdapter stores the gate principal in the standard context so
// downstream code can use PrincipalFromContext and Can.
func ContextEnricherAdapter(c context.Context, principal jwtware.Principal) context.Context {
	return WithPrincipal(c, Principal{
		Username:    principal.Username,
		Permissions: principal.Permissions,
	})
}

// SubjectResolverFromUsers builds the gate's live account status check on top
// of the Users repository. A token whose subject no longer authenticates is
// treated as anonymous.
func SubjectResolverFromUsers(users Users) jwtware.SubjectResolver {
	return func(ctx context.Context, username string) error {
		user, err := users.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		return EnsureAuthenticatable(user)
	}
}

// RegisterValidationListeners appends listeners to a jwtware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *jwtware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
