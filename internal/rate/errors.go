package rate

import "errors"

var (
	// ErrRateLimited signals the caller exceeded its window budget.
	ErrRateLimited = errors.New("rate limited")
	// ErrRedisUnavailable signals the limiter backend could not be reached.
	ErrRedisUnavailable = errors.New("redis unavailable")
)
