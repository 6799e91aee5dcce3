package guard

import (
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts    = "TOO_MANY_LOGIN_ATTEMPTS"
	TextCodeUserNotFound       = "USER_NOT_FOUND"
	TextCodeUserDisabled       = "USER_DISABLED"
	TextCodeUserLocked         = "USER_LOCKED"
	TextCodeUserExpired        = "USER_EXPIRED"
	TextCodePasswordExpired    = "PASSWORD_EXPIRED"
	TextCodeTokenMissing       = "TOKEN_NOT_FOUND"
	TextCodeTokenOutOfScope    = "TOKEN_OUT_OF_SCOPE"
	TextCodeTokenConsumed      = "TOKEN_CONSUMED"
	TextCodeTokenRevoked       = "TOKEN_REVOKED"
	TextCodeTokenExpired       = "TOKEN_EXPIRED"
	TextCodeTokenMalformed     = "TOKEN_MALFORMED"
	TextCodeClaimsMappingError = "CLAIMS_MAPPING_ERROR"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
)

// ErrUserNotFound is returned when a username or email resolves to no user.
var ErrUserNotFound = goerrors.New("user not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrUserDisabled is returned when the account's enabled flag is off.
var ErrUserDisabled = goerrors.New("user account is disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserDisabled)

// ErrUserLocked is returned when the account is locked.
var ErrUserLocked = goerrors.New("user account is locked", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserLocked)

// ErrUserExpired is returned when the account itself has expired.
var ErrUserExpired = goerrors.New("user account has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeUserExpired)

// ErrPasswordExpired is returned when the account credentials have expired.
var ErrPasswordExpired = goerrors.New("user credentials have expired", goerrors.CategoryAuth).
	WithTextCode(TextCodePasswordExpired)

// ErrMismatchedHashAndPassword is the uniform bad-credentials error.
var ErrMismatchedHashAndPassword = goerrors.New("the credentials provided are invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds)

// ErrTooManyLoginAttempts is returned when the cooldown window is exhausted.
var ErrTooManyLoginAttempts = goerrors.New("too many login attempts", goerrors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts)

// ErrTokenMissing is returned when no token row matches the presented code.
var ErrTokenMissing = goerrors.New("token not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeTokenMissing).
	WithCode(goerrors.CodeNotFound)

// ErrTokenOutOfScope is returned when a token exists but belongs to a
// different workflow scope.
var ErrTokenOutOfScope = goerrors.New("token does not belong to this scope", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenOutOfScope)

// ErrTokenConsumed is returned for tokens that were already used.
var ErrTokenConsumed = goerrors.New("token has already been consumed", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenConsumed).
	WithCode(goerrors.CodeConflict)

// ErrTokenRevoked is returned for tokens that were revoked.
var ErrTokenRevoked = goerrors.New("token has been revoked", goerrors.CategoryConflict).
	WithTextCode(TextCodeTokenRevoked).
	WithCode(goerrors.CodeConflict)

// ErrTokenExpired is returned once a token's expiration date has passed.
var ErrTokenExpired = goerrors.New("token has expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired)

// ErrTokenMalformed covers unparseable or badly signed JWTs.
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed)

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = goerrors.New("unable to map claims", goerrors.CategoryAuth).
	WithTextCode(TextCodeClaimsMappingError)

// ErrNoEmptyString rejects empty passwords before hashing.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword)

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenExpired) {
		return true
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	if goerrors.Is(err, ErrTokenMalformed) {
		return true
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}

// IsAuthDomainError reports whether err is a typed business rule failure
// (bad credentials, blocked account, token state) as opposed to an
// infrastructure fault. The login path degrades these to "not logged"
// instead of propagating.
func IsAuthDomainError(err error) bool {
	if err == nil {
		return false
	}
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	switch richErr.Category {
	case goerrors.CategoryAuth,
		goerrors.CategoryNotFound,
		goerrors.CategoryConflict,
		goerrors.CategoryRateLimit,
		goerrors.CategoryValidation:
		return true
	}
	return false
}
