package guard

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

const tokenCodeBytes = 32

// DefaultTokenValidity applies when the store is built without an explicit
// validity window.
const DefaultTokenValidity = 24 * time.Hour

// TokenStore manages scoped single use tokens. A token moves
// Active -> Consumed or Active -> Revoked, both terminal; expiry is derived
// at check time. One store instance serves exactly one scope.
type TokenStore struct {
	scope    string
	validity time.Duration
	tokens   UserTokens
	users    Users
	logger   Logger
	now      func() time.Time
}

type TokenStoreOption func(*TokenStore)

// WithTokenValidity overrides the validity window for newly created tokens.
func WithTokenValidity(d time.Duration) TokenStoreOption {
	return func(s *TokenStore) {
		if d > 0 {
			s.validity = d
		}
	}
}

// WithTokenStoreClock injects a custom clock (useful for tests).
func WithTokenStoreClock(clock func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		if clock != nil {
			s.now = clock
		}
	}
}

// WithTokenStoreLogger overrides the store logger.
func WithTokenStoreLogger(logger Logger) TokenStoreOption {
	return func(s *TokenStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewTokenStore(scope string, tokens UserTokens, users Users, opts ...TokenStoreOption) *TokenStore {
	store := &TokenStore{
		scope:    scope,
		validity: DefaultTokenValidity,
		tokens:   tokens,
		users:    users,
		logger:   defLogger{},
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Scope returns the workflow tag this store serves.
func (s *TokenStore) Scope() string {
	return s.scope
}

// CreateToken persists a new active token for username. The caller is
// expected to have revoked previous tokens first; combined with
// RevokeExistingTokens inside one transaction this keeps at most one active
// token per user and scope.
func (s *TokenStore) CreateToken(ctx context.Context, username string) (string, error) {
	return s.CreateTokenTx(ctx, nil, username)
}

func (s *TokenStore) CreateTokenTx(ctx context.Context, tx bun.IDB, username string) (string, error) {
	username = NormalizeUsername(username)

	var (
		exists bool
		err    error
	)
	if tx != nil {
		exists, err = s.users.ExistsByUsernameTx(ctx, tx, username)
	} else {
		exists, err = s.users.ExistsByUsername(ctx, username)
	}
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve token subject")
	}
	if !exists {
		return "", ErrUserNotFound
	}

	var code string
	code, err = generateTokenCode()
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to generate token code")
	}

	now := s.now()
	record := &UserToken{
		ID:             uuid.New(),
		Username:       username,
		Scope:          s.scope,
		Token:          code,
		CreationDate:   now,
		ExpirationDate: now.Add(s.validity),
	}

	if tx != nil {
		_, err = s.tokens.CreateTx(ctx, tx, record)
	} else {
		_, err = s.tokens.Create(ctx, record)
	}
	if err != nil {
		// a unique collision on the token column is an infrastructure
		// condition the caller can retry, not a domain failure
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to persist token")
	}

	return code, nil
}

// RevokeExistingTokens marks every active token for username in this scope
// as revoked.
func (s *TokenStore) RevokeExistingTokens(ctx context.Context, username string) error {
	return s.RevokeExistingTokensTx(ctx, nil, username)
}

func (s *TokenStore) RevokeExistingTokensTx(ctx context.Context, tx bun.IDB, username string) error {
	var (
		n   int64
		err error
	)
	if tx != nil {
		n, err = s.tokens.RevokeActiveTx(ctx, tx, username, s.scope)
	} else {
		n, err = s.tokens.RevokeActive(ctx, username, s.scope)
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to revoke active tokens")
	}
	if n > 0 {
		s.logger.Debug("revoked %d active tokens in scope %s", n, s.scope)
	}
	return nil
}

// Validate resolves the token and checks, in precedence order: existence,
// scope, consumption, revocation, expiry. Nil error means the token is
// usable right now in this scope.
func (s *TokenStore) Validate(ctx context.Context, token string) error {
	_, err := s.resolveValid(ctx, nil, token)
	return err
}

func (s *TokenStore) resolveValid(ctx context.Context, tx bun.IDB, token string) (*UserToken, error) {
	record, err := s.resolve(ctx, tx, token)
	if err != nil {
		return nil, err
	}

	switch {
	case record.Scope != s.scope:
		return nil, ErrTokenOutOfScope
	case record.Consumed:
		return nil, ErrTokenConsumed
	case record.Revoked:
		return nil, ErrTokenRevoked
	case !record.ExpirationDate.After(s.now()):
		return nil, ErrTokenExpired
	}

	return record, nil
}

// GetUsername returns the subject bound to the token regardless of its
// state, so callers can identify who is knocking before rejecting.
func (s *TokenStore) GetUsername(ctx context.Context, token string) (string, error) {
	record, err := s.resolve(ctx, nil, token)
	if err != nil {
		return "", err
	}
	return record.Username, nil
}

// ConsumeToken transitions an active token to consumed. Callers must
// Validate first; consuming a terminal token is a caller error.
func (s *TokenStore) ConsumeToken(ctx context.Context, token string) error {
	return s.ConsumeTokenTx(ctx, nil, token)
}

func (s *TokenStore) ConsumeTokenTx(ctx context.Context, tx bun.IDB, token string) error {
	record, err := s.resolveValid(ctx, tx, token)
	if err != nil {
		return err
	}

	if tx != nil {
		err = s.tokens.MarkConsumedTx(ctx, tx, record.ID)
	} else {
		err = s.tokens.MarkConsumed(ctx, record.ID)
	}
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to consume token")
	}
	return nil
}

// CleanUpTokens deletes every consumed, revoked or expired row across all
// scopes. Scheduled maintenance; never runs implicitly during validation.
func (s *TokenStore) CleanUpTokens(ctx context.Context) (int64, error) {
	n, err := s.tokens.PurgeTerminated(ctx, s.now())
	if err != nil {
		return 0, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clean up tokens")
	}
	return n, nil
}

func (s *TokenStore) resolve(ctx context.Context, tx bun.IDB, token string) (*UserToken, error) {
	var (
		record *UserToken
		err    error
	)
	if tx != nil {
		record, err = s.tokens.GetByTokenTx(ctx, tx, token)
	} else {
		record, err = s.tokens.GetByToken(ctx, token)
	}
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, ErrTokenMissing
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve token")
	}
	return record, nil
}

func generateTokenCode() (string, error) {
	buf := make([]byte, tokenCodeBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
