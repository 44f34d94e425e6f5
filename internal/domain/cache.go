package domain

import "context"

// RateLimiter bounds outbound API call rates per logical bucket.
type RateLimiter interface {
	// Allow reports whether another call in the bucket is permitted within
	// the window of `limit` calls per `windowSeconds`.
	Allow(ctx context.Context, bucket string, limit int, windowSeconds int) (bool, error)
}

// SizeCache remembers the last observed exchange position size per market,
// so fill detection by delta survives process restarts.
type SizeCache interface {
	// LastSize returns the stored size and whether one was present.
	LastSize(ctx context.Context, marketID string) (float64, bool, error)
	SetLastSize(ctx context.Context, marketID string, size float64) error
}
