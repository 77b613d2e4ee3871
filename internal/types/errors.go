package types

import "errors"

// Gateway error taxonomy. Components wrap these sentinels with context via
// fmt.Errorf("...: %w", ...); the HTTP layer maps them to status codes with
// errors.Is exactly once at the response boundary.
var (
	// ErrValidation - malformed input, surfaced as 400.
	ErrValidation = errors.New("validation failed")

	// ErrAlreadyExists - duplicate route registration, surfaced as 400.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotFound - unknown route, service or path, surfaced as 404.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited - client exceeded its request budget, surfaced as 429.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrUnavailable - open circuit, no live endpoints, probe failure,
	// upstream 404/5xx or transport failure, surfaced as 503.
	ErrUnavailable = errors.New("service unavailable")
)
