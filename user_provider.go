package guard

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
)

// UserTracker is a store we can use to retrieve users
type UserTracker interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// NewUserLoginTracker adapts the Users repository to the UserTracker
// surface the provider depends on.
func NewUserLoginTracker(users Users) UserTracker {
	return userLoginTracker{users: users}
}

type userLoginTracker struct {
	users Users
}

func (t userLoginTracker) GetByUsername(ctx context.Context, username string) (*User, error) {
	return t.users.GetByUsername(ctx, username)
}

func (t userLoginTracker) TrackAttemptedLogin(ctx context.Context, user *User) error {
	return t.users.TrackAttemptedLogin(ctx, user)
}

func (t userLoginTracker) TrackSuccessfulLogin(ctx context.Context, user *User) error {
	return t.users.TrackSuccessfulLogin(ctx, user)
}

// UserProvider handles credential verification against the user directory.
type UserProvider struct {
	store    UserTracker
	hasher   PasswordHasher
	logger   Logger
	provider LoggerProvider
}

// MaxLoginAttempts is the maximum number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// NewUserProvider will create a new UserProvider
func NewUserProvider(store UserTracker) *UserProvider {
	loggerProvider, logger := ResolveLogger("guard.user_provider", nil, nil)
	return &UserProvider{
		store:    store,
		hasher:   BcryptHasher{},
		logger:   logger,
		provider: loggerProvider,
	}
}

func (u *UserProvider) WithLogger(l Logger) *UserProvider {
	u.provider, u.logger = ResolveLogger("guard.user_provider", u.provider, l)
	return u
}

// WithPasswordHasher overrides the hasher used for credential comparison.
func (u *UserProvider) WithPasswordHasher(hasher PasswordHasher) *UserProvider {
	if hasher != nil {
		u.hasher = hasher
	}
	return u
}

// VerifyIdentity will find the user, compare to the password, and return identity
func (u *UserProvider) VerifyIdentity(ctx context.Context, identifier, password string) (Identity, error) {
	user, err := u.store.GetByUsername(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := EnsureAuthenticatable(user); err != nil {
		return nil, err
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := u.hasher.ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := u.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, goerrors.Wrap(err2, goerrors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	if err := u.store.TrackSuccessfulLogin(ctx, user); err != nil {
		u.logger.Error("failed to track successful login: %v", err)
	}

	return userIdentity(user), nil
}

// FindIdentityByIdentifier resolves an identity without verifying credentials.
func (u *UserProvider) FindIdentityByIdentifier(ctx context.Context, identifier string) (Identity, error) {
	user, err := u.store.GetByUsername(ctx, identifier)
	if err != nil {
		if goerrors.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := EnsureAuthenticatable(user); err != nil {
		return nil, err
	}

	return userIdentity(user), nil
}

var _ IdentityProvider = (*UserProvider)(nil)

type authIdentity struct {
	id       string
	username string
	email    string
}

func userIdentity(user *User) authIdentity {
	return authIdentity{
		id:       user.ID.String(),
		username: user.Username,
		email:    user.Email,
	}
}

func (a authIdentity) ID() string {
	return a.id
}

func (a authIdentity) Username() string {
	return a.username
}

func (a authIdentity) Email() string {
	return a.email
}

var _ Identity = authIdentity{}
