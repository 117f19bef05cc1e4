// Package common defines shared constants and sentinel errors used across
// the folioguard server and admin tooling. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrorAlreadyExists = errors.New("already exists")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrorValidation   = errors.New("validation error")

	// Authentication errors. ErrInvalidCredentials is deliberately the only
	// error a login attempt surfaces, whatever check failed.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// Token errors. Unknown, expired and already consumed tokens all map to
	// ErrInvalidToken.
	ErrInvalidToken = errors.New("invalid or expired token")

	// Throttling.
	ErrRateLimited = errors.New("too many requests")
)
