// Package guard implements the authentication and authorization engine for
// multi tenant applications: a role based permission model aggregated into an
// effective per user permission set, a scoped single use token store for
// password reset and account activation flows, a JWT codec carrying the
// aggregated permissions as claims, and the login orchestration that composes
// them with strict authorization pre checks.
//
// HTTP controllers, storage schemas, password hashing internals and message
// delivery are external collaborators consumed through interfaces.
package guard
