package guard

import (
	"context"
	"net/mail"
	"reflect"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// PermissionLoader computes the effective permission set for a username.
// The Aggregator is the production implementation.
type PermissionLoader interface {
	PermissionsForUser(ctx context.Context, username string) (map[string][]string, error)
}

// Auther orchestrates login: identifier normalization, credential check,
// attempt event emission and token minting.
type Auther struct {
	provider        IdentityProvider
	permissions     PermissionLoader
	tokenService    TokenService
	customService   bool
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
	activitySink    ActivitySink
	resolveEmail    func(ctx context.Context, email string) (string, error)
}

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, permissions PermissionLoader, opts Config) *Auther {
	return &Auther{
		provider:        provider,
		permissions:     permissions,
		tokenService:    NewTokenService([]byte(opts.GetSigningKey()), defLogger{}),
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: opts.GetTokenExpiration(),
		issuer:          opts.GetIssuer(),
		audience:        opts.GetAudience(),
		logger:          defLogger{},
		activitySink:    noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
		// an injected token service keeps its own logger
		if !s.customService {
			s.tokenService = NewTokenService(s.signingKey, logger)
		}
	}
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenService sets a custom token service.
func (s *Auther) WithTokenService(service TokenService) *Auther {
	if service != nil {
		s.tokenService = service
		s.customService = true
	}
	return s
}

// WithEmailResolver installs the lookup used to map an email identifier to
// its canonical username.
func (s *Auther) WithEmailResolver(resolve func(ctx context.Context, email string) (string, error)) *Auther {
	s.resolveEmail = resolve
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login validates credentials and mints a signed token. Wrong credentials or
// a blocked account produce LoginResult{Logged:false} with a nil error; only
// infrastructure faults propagate. Exactly one login attempt event is
// emitted per call, success or failure.
func (s *Auther) Login(ctx context.Context, identifier, password string) (LoginResult, error) {
	username, err := s.normalizeIdentifier(ctx, identifier)
	if err != nil {
		return LoginResult{}, err
	}

	identity, err := s.provider.VerifyIdentity(ctx, username, password)
	if err != nil {
		if IsAuthDomainError(err) {
			s.logger.Debug("login rejected for %s: %v", username, err)
			s.emitLoginEvent(ctx, username, false, map[string]any{"error": err.Error()})
			return LoginResult{}, nil
		}
		s.logger.Error("login verify identity error: %v", err)
		return LoginResult{}, err
	}

	if identity == nil || reflect.ValueOf(identity).IsZero() {
		s.emitLoginEvent(ctx, username, false, map[string]any{"error": ErrUserNotFound.Message})
		return LoginResult{}, nil
	}

	token, err := s.generateJWT(ctx, identity)
	if err != nil {
		s.logger.Error("login token generation error: %v", err)
		return LoginResult{}, err
	}

	s.emitLoginEvent(ctx, identity.Username(), true, nil)

	return LoginResult{Logged: true, Token: token}, nil
}

// SessionFromToken validates a raw token and maps its claims to a session.
func (s *Auther) SessionFromToken(raw string) (Session, error) {
	claims, err := s.tokenService.Validate(raw)
	if err != nil {
		s.logger.Error("SessionFromToken validation failed: %v", err)
		return nil, err
	}

	return sessionFromAuthClaims(claims)
}

var _ Authenticator = (*Auther)(nil)

// normalizeIdentifier maps an email identifier to its canonical username and
// lower-cases usernames for comparison. An email with no matching user falls
// back to the raw, lower-cased input so the credential check still runs and
// the caller cannot distinguish "no such email" from "wrong password".
func (s *Auther) normalizeIdentifier(ctx context.Context, identifier string) (string, error) {
	identifier = strings.TrimSpace(identifier)

	if looksLikeEmail(identifier) && s.resolveEmail != nil {
		username, err := s.resolveEmail(ctx, identifier)
		if err == nil && username != "" {
			return NormalizeUsername(username), nil
		}
		if err != nil && !IsAuthDomainError(err) && !goerrors.IsNotFound(err) {
			return "", err
		}
	}

	return NormalizeUsername(identifier), nil
}

func (s *Auther) generateJWT(ctx context.Context, identity Identity) (string, error) {
	permissions, err := s.permissions.PermissionsForUser(ctx, identity.Username())
	if err != nil {
		return "", err
	}

	now := time.Now()
	expiration := now.Add(time.Duration(s.tokenExpiration) * time.Hour)

	return s.tokenService.Encode(TokenData{
		Subject:     identity.Username(),
		Issuer:      s.issuer,
		Audience:    s.audience,
		IssuedAt:    &now,
		Expiration:  &expiration,
		Permissions: permissions,
	})
}

func (s *Auther) emitLoginEvent(ctx context.Context, username string, success bool, metadata map[string]any) {
	eventType := ActivityEventLoginFailure
	if success {
		eventType = ActivityEventLoginSuccess
	}

	event := ActivityEvent{
		EventType:  eventType,
		Actor:      ActorRef{ID: username, Type: "user"},
		Username:   username,
		Success:    success,
		Metadata:   metadata,
		OccurredAt: time.Now(),
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if err := normalizeActivitySink(s.activitySink).Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

// EmailResolverFromUsers adapts the Users repository to the Auther's email
// resolver hook.
func EmailResolverFromUsers(users Users) func(ctx context.Context, email string) (string, error) {
	return func(ctx context.Context, email string) (string, error) {
		user, err := users.GetByEmail(ctx, email)
		if err != nil {
			return "", err
		}
		return user.Username, nil
	}
}

func looksLikeEmail(identifier string) bool {
	if !strings.Contains(identifier, "@") {
		return false
	}
	_, err := mail.ParseAddress(identifier)
	return err == nil
}
