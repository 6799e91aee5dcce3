// Package jwtware is the per request authentication gate: it extracts the
// bearer credential, validates it, re-resolves the live user status and
// establishes the request principal. Every failure degrades to anonymous
// pass-through; a client never sees an authentication exception.
package jwtware

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-router"
)

var (
	defaultTokenLookup       = "header:" + router.HeaderAuthorization
	ErrJWTMissingOrMalformed = errors.New("missing or malformed JWT")
)

// AuthClaims mirrors the claims interface from the guard package without
// creating an import cycle.
type AuthClaims interface {
	Subject() string
	TokenID() string
	Issuer() string
	Audience() []string
	HasPermission(resource, action string) bool
	Permissions() map[string][]string
	Expires() time.Time
	IssuedAt() time.Time
}

// TokenValidator mirrors guard.TokenValidator.
type TokenValidator interface {
	Validate(tokenString string) (AuthClaims, error)
}

// Principal is the resolved request subject stored in the router locals and,
// through the ContextEnricher, the standard context.
type Principal struct {
	Username    string
	Permissions map[string][]string
}

// SubjectResolver re-checks the live user record behind a token subject.
// Returning an error means the account may no longer authenticate (disabled,
// locked, expired, credentials expired) and the request stays anonymous.
// Claims are never trusted for status.
type SubjectResolver func(ctx context.Context, username string) error

// PermissionLoader re-aggregates the subject's permissions live. When set it
// replaces the token's permission claim, which protects against stale
// permission drift between issuance and use.
type PermissionLoader func(ctx context.Context, username string) (map[string][]string, error)

// ValidationListener is invoked after a token has been validated but before
// the principal is established.
type ValidationListener func(ctx router.Context, claims AuthClaims) error

type Config struct {
	Filter         func(router.Context) bool
	SuccessHandler router.HandlerFunc
	// AnonymousHandler runs when no usable credential was presented. The
	// default continues the chain without a principal.
	AnonymousHandler func(ctx router.Context, err error) error
	SigningKey       SigningKey
	SigningKeys      map[string]SigningKey
	ContextKey       string
	TokenLookup      string
	AuthScheme       string
	KeyFunc          jwt.Keyfunc
	JWKSetURLs       []string

	// TokenValidator is required for token validation
	TokenValidator TokenValidator

	// SubjectResolver re-validates the live account status; nil skips the
	// check (not recommended outside tests).
	SubjectResolver SubjectResolver

	// AllowMissingSubjectResolver acknowledges running without the live
	// status re-check. Without it a nil SubjectResolver logs a warning so a
	// default constructed gate cannot silently trust stale claims.
	AllowMissingSubjectResolver bool

	// PermissionLoader re-aggregates permissions live; nil trusts the
	// token's permission claim.
	PermissionLoader PermissionLoader

	// ContextEnricher propagates the principal to the standard Go context.
	ContextEnricher func(c context.Context, principal Principal) context.Context

	// ValidationListeners are invoked after token validation succeeds.
	ValidationListeners []ValidationListener
}

type SigningKey struct {
	JWTAlg string
	Key    any
}

// New builds the gate middleware. The request proceeds with an established
// principal only when the full chain holds: extractable bearer credential,
// valid signature and timing claims, and a live account that still passes
// every status flag.
func New(config ...Config) router.MiddlewareFunc {
	return func(hf router.HandlerFunc) router.HandlerFunc {
		cfg := GetDefaultConfig(config...)
		return func(ctx router.Context) error {
			if cfg.Filter != nil && cfg.Filter(ctx) {
				return ctx.Next()
			}

			raw, err := ExtractRawTokenFromContext(ctx, cfg.getExtractors())
			if err != nil {
				return cfg.AnonymousHandler(ctx, err)
			}

			claims, err := cfg.TokenValidator.Validate(raw)
			if err != nil {
				return cfg.AnonymousHandler(ctx, err)
			}

			if err := cfg.runValidationListeners(ctx, claims); err != nil {
				return cfg.AnonymousHandler(ctx, err)
			}

			username := claims.Subject()
			if username == "" {
				return cfg.AnonymousHandler(ctx, ErrJWTMissingOrMalformed)
			}

			if cfg.SubjectResolver != nil {
				if err := cfg.SubjectResolver(ctx.Context(), username); err != nil {
					return cfg.AnonymousHandler(ctx, err)
				}
			}

			permissions := claims.Permissions()
			if cfg.PermissionLoader != nil {
				live, err := cfg.PermissionLoader(ctx.Context(), username)
				if err != nil {
					return cfg.AnonymousHandler(ctx, err)
				}
				permissions = live
			}

			principal := Principal{
				Username:    username,
				Permissions: permissions,
			}

			ctx.Locals(cfg.ContextKey, principal)

			if cfg.ContextEnricher != nil {
				stdCtx := cfg.ContextEnricher(ctx.Context(), principal)
				ctx.SetContext(stdCtx)
			}

			return cfg.SuccessHandler(ctx)
		}
	}
}

// PrincipalFromLocals reads the principal the gate stored for this request.
func PrincipalFromLocals(ctx router.Context, key string) (Principal, bool) {
	if key == "" {
		key = "user"
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return Principal{}, false
	}
	principal, ok := raw.(Principal)
	return principal, ok
}

func ExtractRawTokenFromContext(ctx router.Context, extractors []JWTExtractor) (string, error) {
	var raw string
	var err error

	for _, extractor := range extractors {
		raw, err = extractor(ctx)
		if raw != "" && err == nil {
			break
		}
	}

	return raw, err
}

func GetDefaultConfig(config ...Config) (cfg Config) {
	if len(config) > 0 {
		cfg = config[0]
	}

	if cfg.SuccessHandler == nil {
		cfg.SuccessHandler = func(ctx router.Context) error {
			return ctx.Next()
		}
	}

	if cfg.AnonymousHandler == nil {
		cfg.AnonymousHandler = func(c router.Context, err error) error {
			return c.Next()
		}
	}

	if cfg.ContextKey == "" {
		cfg.ContextKey = "user"
	}

	if cfg.TokenLookup == "" {
		cfg.TokenLookup = defaultTokenLookup
	}

	if cfg.AuthScheme == "" {
		cfg.AuthScheme = "Bearer"
	}

	if cfg.KeyFunc == nil {
		if len(cfg.SigningKeys) > 0 || len(cfg.JWKSetURLs) > 0 {
			var givenKeys map[string]keyfunc.GivenKey
			if cfg.SigningKeys != nil {
				givenKeys = make(map[string]keyfunc.GivenKey, len(cfg.SigningKeys))
				for kid, key := range cfg.SigningKeys {
					givenKeys[kid] = keyfunc.NewGivenCustom(key.Key, keyfunc.GivenKeyOptions{
						Algorithm: key.JWTAlg,
					})
				}
			}
			if len(cfg.JWKSetURLs) > 0 {
				var err error
				cfg.KeyFunc, err = multiKeyfunc(givenKeys, cfg.JWKSetURLs)
				if err != nil {
					panic("Failed to create keyfunc from JWK Set URL: " + err.Error())
				}
			} else {
				cfg.KeyFunc = keyfunc.NewGiven(givenKeys).Keyfunc
			}
		} else if cfg.SigningKey.Key != nil {
			cfg.KeyFunc = signingKeyFunc(cfg.SigningKey)
		}
	}

	if cfg.TokenValidator == nil {
		if cfg.KeyFunc == nil {
			panic("GUARD: JWT middleware configuration: one of TokenValidator, KeyFunc, JWKSetURLs, SigningKeys or SigningKey is required.")
		}
		cfg.TokenValidator = keyfuncValidator{keyFunc: cfg.KeyFunc}
	}

	if cfg.SubjectResolver == nil && !cfg.AllowMissingSubjectResolver {
		log.Println("GUARD: JWT middleware has no SubjectResolver; token subjects are not re-checked against live account status")
	}

	return cfg
}

// keyfuncValidator validates tokens directly against the configured key
// material when no external TokenValidator was supplied.
type keyfuncValidator struct {
	keyFunc jwt.Keyfunc
}

func (v keyfuncValidator) Validate(tokenString string) (AuthClaims, error) {
	token, err := jwt.Parse(tokenString, v.keyFunc)
	if err != nil {
		return nil, err
	}

	mapClaims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrJWTMissingOrMalformed
	}

	return rawClaims(mapClaims), nil
}

// rawClaims adapts jwt.MapClaims to the AuthClaims surface.
type rawClaims jwt.MapClaims

func (c rawClaims) Subject() string {
	s, _ := c["sub"].(string)
	return s
}

func (c rawClaims) TokenID() string {
	s, _ := c["jti"].(string)
	return s
}

func (c rawClaims) Issuer() string {
	s, _ := c["iss"].(string)
	return s
}

func (c rawClaims) Audience() []string {
	switch aud := c["aud"].(type) {
	case string:
		return []string{aud}
	case []any:
		out := make([]string, 0, len(aud))
		for _, v := range aud {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (c rawClaims) Permissions() map[string][]string {
	raw, ok := c["perms"].(map[string]any)
	if !ok {
		return map[string][]string{}
	}

	perms := make(map[string][]string, len(raw))
	for resource, actions := range raw {
		list, ok := actions.([]any)
		if !ok {
			continue
		}
		for _, action := range list {
			if s, ok := action.(string); ok {
				perms[resource] = append(perms[resource], s)
			}
		}
	}
	return perms
}

func (c rawClaims) HasPermission(resource, action string) bool {
	for _, a := range c.Permissions()[strings.ToLower(resource)] {
		if a == strings.ToLower(action) {
			return true
		}
	}
	return false
}

func (c rawClaims) Expires() time.Time {
	return c.numericTime("exp")
}

func (c rawClaims) IssuedAt() time.Time {
	return c.numericTime("iat")
}

func (c rawClaims) numericTime(key string) time.Time {
	f, ok := c[key].(float64)
	if !ok {
		return time.Time{}
	}
	return time.Unix(int64(f), 0)
}

func multiKeyfunc(givenKeys map[string]keyfunc.GivenKey, jwtSetUrls []string) (jwt.Keyfunc, error) {
	opts := keyfuncOptions(givenKeys)
	m := make(map[string]keyfunc.Options, len(jwtSetUrls))
	for _, url := range jwtSetUrls {
		m[url] = opts
	}
	mopts := keyfunc.MultipleOptions{
		KeySelector: keyfunc.KeySelectorFirst,
	}
	multi, err := keyfunc.GetMultiple(m, mopts)
	if err != nil {
		return nil, fmt.Errorf("failed to get JWT URLs: %w", err)
	}
	return multi.Keyfunc, nil
}

func keyfuncOptions(givenKeys map[string]keyfunc.GivenKey) keyfunc.Options {
	return keyfunc.Options{
		GivenKeys: givenKeys,
		RefreshErrorHandler: func(err error) {
			log.Printf("failed to do a background refresh of JWT set: %s", err)
		},
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  time.Minute * 5,
		RefreshTimeout:    time.Second * 10,
		RefreshUnknownKID: true,
	}
}

func signingKeyFunc(key SigningKey) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		if key.JWTAlg != "" {
			alg, ok := token.Header["alg"].(string)
			if !ok {
				return nil, fmt.Errorf("the JWT header did not contain the alg parameter, it was required")
			}
			if alg != key.JWTAlg {
				return nil, fmt.Errorf("only %q algorithm is accepted", key.JWTAlg)
			}
		}
		return key.Key, nil
	}
}

func (cfg *Config) getExtractors() []JWTExtractor {
	return GetExtractors(cfg.TokenLookup, cfg.AuthScheme)
}

func (cfg *Config) runValidationListeners(ctx router.Context, claims AuthClaims) error {
	for _, listener := range cfg.ValidationListeners {
		if listener == nil {
			continue
		}
		if err := listener(ctx, claims); err != nil {
			return err
		}
	}
	return nil
}

func GetExtractors(tokenLookup string, authSchemes ...string) []JWTExtractor {
	extractors := make([]JWTExtractor, 0)

	authScheme := "Bearer"
	if len(authSchemes) > 0 {
		authScheme = authSchemes[0]
	}

	// header:Authorization,cookie:jwt,query:auth_token,param:token
	rootParts := strings.Split(tokenLookup, ",")
	for _, rootPart := range rootParts {
		parts := strings.Split(strings.TrimSpace(rootPart), ":")

		for i, el := range parts {
			parts[i] = strings.TrimSpace(el)
		}

		switch parts[0] {
		case "header":
			extractors = append(extractors, jwtFromHeader(parts[1], authScheme))
		case "query":
			extractors = append(extractors, jwtFromQuery(parts[1]))
		case "param":
			extractors = append(extractors, jwtFromParam(parts[1]))
		case "cookie":
			extractors = append(extractors, jwtFromCookie(parts[1]))
		}
	}

	return extractors
}

type JWTExtractor func(c router.Context) (string, error)

// jwtFromHeader returns a function that extracts token from the request header.
func jwtFromHeader(header string, authScheme string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		a := c.GetString(header, "")
		l := len(authScheme)
		if l == 0 {
			return "", ErrJWTMissingOrMalformed
		}
		authScheme = strings.TrimSpace(authScheme)
		if len(a) > l+1 && strings.EqualFold(a[:l], authScheme) {
			return strings.TrimSpace(a[l:]), nil
		}
		return "", ErrJWTMissingOrMalformed
	}
}

// jwtFromQuery returns a function that extracts token from the query string.
func jwtFromQuery(param string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Query(param, "")
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromParam returns a function that extracts token from the url param string.
func jwtFromParam(param string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Param(param)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}

// jwtFromCookie returns a function that extracts token from the named cookie.
func jwtFromCookie(name string) func(c router.Context) (string, error) {
	return func(c router.Context) (string, error) {
		token := c.Cookies(name)
		if token == "" {
			return "", ErrJWTMissingOrMalformed
		}
		return token, nil
	}
}
