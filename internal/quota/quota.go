// Package quota enforces per-scope daily usage limits for metered operations
// (OCR lookups, translated characters).
//
// Counters are keyed by (scope, resource, day). The day bucket is the UTC
// calendar date, so all counters reset together at midnight UTC with no reset
// job: a new day simply starts new rows. Check-and-increment is a single
// atomic operation; concurrent requests can never push a counter past its
// limit, and a denied request consumes nothing.
package quota

import (
	"context"
	"time"
)

// DayBucketFormat renders a time into its UTC day bucket.
const DayBucketFormat = "2006-01-02"

// DayBucket returns the UTC day bucket for t, e.g. "2026-08-31".
func DayBucket(t time.Time) string {
	return t.UTC().Format(DayBucketFormat)
}

// Decision is the outcome of a check-and-increment.
type Decision struct {
	// Allowed reports whether the units were granted and counted.
	Allowed bool

	// Count is the scope's consumption for the current day after the
	// operation: incremented if allowed, unchanged if denied.
	Count int64

	// Limit is the configured daily limit for the resource. Zero or
	// negative means unlimited.
	Limit int64
}

// Store atomically checks and increments usage counters.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// CheckAndIncrement grants n units of resource to scope if the scope's
	// counter for today would stay within the resource limit. The check
	// and the increment are one atomic step. Resources with no configured
	// limit are always granted without counting.
	CheckAndIncrement(ctx context.Context, scope, resource string, n int64) (Decision, error)

	// Usage returns the scope's current consumption of resource for today.
	Usage(ctx context.Context, scope, resource string) (Decision, error)
}
