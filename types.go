package guard

import (
	"context"
	"fmt"
	"time"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// LoggerProvider resolves named loggers so components can share a logging
// backend without depending on a concrete implementation.
type LoggerProvider interface {
	GetLogger(name string) Logger
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (LoginResult, error)
	SessionFromToken(token string) (Session, error)
}

// LoginResult is what a login attempt produces. Wrong credentials yield
// Logged=false with an empty token, never an error.
type LoginResult struct {
	Logged bool   `json:"logged"`
	Token  string `json:"token"`
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUsername() string
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetPermissions() map[string][]string
}

// Identity holds the attributes of an identity
type Identity interface {
	ID() string
	Username() string
	Email() string
}

// IdentityProvider verifies credentials and resolves identities. It is the
// injected predicate the login orchestrator delegates credential checks to.
type IdentityProvider interface {
	VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error)
	FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error)
}

// PasswordHasher hashes passwords and verifies hashes. Algorithm internals
// are opaque to the engine.
type PasswordHasher interface {
	HashPassword(password string) (string, error)
	ComparePasswordAndHash(password, hash string) error
}

// Notifier delivers recovery and activation messages. Fire and forget from
// the workflow's perspective.
type Notifier interface {
	SendRecoveryMessage(ctx context.Context, email, username, token string) error
	SendActivationMessage(ctx context.Context, email, username, token string) error
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetTokenExpiration() int
	GetIssuer() string
	GetAudience() []string
	GetTokenValidity(scope string) time.Duration
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] GUARD "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] GUARD "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] GUARD "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] GUARD "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}

type defLoggerProvider struct{}

func (defLoggerProvider) GetLogger(string) Logger { return defLogger{} }

// ResolveLogger picks the effective provider and logger for a named component,
// falling back to package defaults when nothing was configured.
func ResolveLogger(name string, provider LoggerProvider, logger Logger) (LoggerProvider, Logger) {
	if provider == nil {
		provider = defLoggerProvider{}
	}
	if logger == nil {
		logger = provider.GetLogger(name)
	}
	if logger == nil {
		logger = defLogger{}
	}
	return provider, logger
}
