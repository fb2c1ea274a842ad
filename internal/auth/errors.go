package auth

import "errors"

// Sentinel errors returned by the authentication and authorization paths.
// Handlers branch on these to pick status codes and machine-readable kinds,
// so the distinctions here are part of the external contract.
var (
	// ErrInvalidCredentials covers both unknown username and wrong password.
	// The two causes are never distinguishable by the caller.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")

	// ErrAccountDeactivated is returned after the password verified but the
	// account is flagged inactive. Safe to surface distinctly: the caller
	// already proved ownership of the credentials.
	ErrAccountDeactivated = errors.New("auth: account deactivated")

	// ErrTokenInvalid indicates a malformed token or a failed signature.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrTokenExpired indicates a well-formed, correctly signed token past
	// its expiry. Clients react by refreshing or re-authenticating.
	ErrTokenExpired = errors.New("auth: token expired")

	// ErrWrongTokenKind indicates a token of one kind presented where
	// another was required (e.g. an access token on the refresh endpoint).
	ErrWrongTokenKind = errors.New("auth: wrong token kind")

	// ErrPermissionDenied indicates the actor's role lacks the required
	// permission or is outside the allowed role set.
	ErrPermissionDenied = errors.New("auth: permission denied")

	// ErrIdentityNotFound is returned by identity stores. The authenticator
	// normalizes it to ErrInvalidCredentials before it reaches a caller.
	ErrIdentityNotFound = errors.New("auth: identity not found")

	// ErrWeakPassword indicates the new password fails the strength policy.
	ErrWeakPassword = errors.New("auth: password too weak")

	// ErrPasswordMismatch indicates new password and confirmation differ.
	ErrPasswordMismatch = errors.New("auth: password confirmation mismatch")

	// ErrService wraps unexpected internal failures. Full detail is logged
	// server-side; callers see only a generic error.
	ErrService = errors.New("auth: internal error")
)
