package authz

import "errors"

var (
	// ErrAPIURLRequired is returned when the service URL is missing.
	ErrAPIURLRequired = errors.New("authorization API URL is required")

	// ErrStoreIDRequired is returned when the store ID is missing.
	ErrStoreIDRequired = errors.New("authorization store ID is required")

	// ErrInvalidRateLimit is returned for a negative request rate or burst.
	ErrInvalidRateLimit = errors.New("rate limit and burst cannot be negative")

	// ErrInvalidTimeout is returned for a non-positive request timeout.
	ErrInvalidTimeout = errors.New("request timeout must be positive")
)
