// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Storage and ownership sentinels.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the entity exists but belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrDuplicateID indicates a record with the same id is already stored.
	ErrDuplicateID = errors.New("duplicate id")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")
)

// Authentication sentinels.
var (
	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrTokenExpired indicates a well-formed token past its expiry (after leeway).
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates a malformed token or a bad signature.
	ErrTokenInvalid = errors.New("token invalid")

	// ErrAlreadyAuthenticated is returned for register/login sent with a valid token.
	ErrAlreadyAuthenticated = errors.New("already authenticated")
)

// Protocol sentinels. The dispatcher turns them into failure responses.
var (
	ErrMalformedRequest = errors.New("malformed request")
	ErrUnknownCommand   = errors.New("unknown command")
	ErrBadArguments     = errors.New("bad arguments")
	ErrBadPayload       = errors.New("bad payload")
)
