package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Schema is the SQL DDL for the quota_usage table. Execute it via
// [PostgresStore.Migrate] or apply it manually during deployment.
const Schema = `
CREATE TABLE IF NOT EXISTS quota_usage (
    scope    TEXT   NOT NULL,
    resource TEXT   NOT NULL,
    day      DATE   NOT NULL,
    count    BIGINT NOT NULL DEFAULT 0,
    PRIMARY KEY (scope, resource, day)
);
`

// DB is the database interface used by [PostgresStore]. Both *pgxpool.Pool
// and *pgx.Conn satisfy this interface.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Compile-time interface check.
var _ Store = (*PostgresStore)(nil)

// PostgresStore is a [Store] backed by PostgreSQL. The check and increment
// happen in one statement, so counters stay within their limits under
// concurrency across any number of bot instances.
type PostgresStore struct {
	db     DB
	limits map[string]int64
	now    func() time.Time
}

// PostgresOption is a functional option for [PostgresStore].
type PostgresOption func(*PostgresStore)

// WithPostgresClock overrides the time source. Used in tests.
func WithPostgresClock(now func() time.Time) PostgresOption {
	return func(s *PostgresStore) { s.now = now }
}

// NewPostgresStore creates a store over db with the given per-resource daily
// limits. The caller is responsible for calling [PostgresStore.Migrate] to
// ensure the schema exists before issuing queries.
func NewPostgresStore(db DB, limits map[string]int64, opts ...PostgresOption) *PostgresStore {
	s := &PostgresStore{
		db:     db,
		limits: limits,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Migrate executes the [Schema] DDL against the database.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("quota: migrate: %w", err)
	}
	return nil
}

// checkAndIncrementSQL grants the units only when the counter stays within
// the limit. The WHERE clause makes a denied request update nothing, so no
// row comes back and the counter is untouched.
const checkAndIncrementSQL = `
	INSERT INTO quota_usage (scope, resource, day, count)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (scope, resource, day)
	DO UPDATE SET count = quota_usage.count + $4
	WHERE quota_usage.count + $4 <= $5
	RETURNING count`

const usageSQL = `
	SELECT count FROM quota_usage
	WHERE scope = $1 AND resource = $2 AND day = $3`

// CheckAndIncrement implements [Store].
func (s *PostgresStore) CheckAndIncrement(ctx context.Context, scope, resource string, n int64) (Decision, error) {
	limit := s.limits[resource]
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}
	if n > limit {
		// Can never fit, skip the round trip.
		d, err := s.Usage(ctx, scope, resource)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: false, Count: d.Count, Limit: limit}, nil
	}

	day := DayBucket(s.now())

	var count int64
	err := s.db.QueryRow(ctx, checkAndIncrementSQL, scope, resource, day, n, limit).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		// Denied. Fetch the untouched counter for the error message.
		d, err := s.Usage(ctx, scope, resource)
		if err != nil {
			return Decision{}, err
		}
		return Decision{Allowed: false, Count: d.Count, Limit: limit}, nil
	}
	if err != nil {
		return Decision{}, fmt.Errorf("quota: check and increment %s/%s: %w", scope, resource, err)
	}
	return Decision{Allowed: true, Count: count, Limit: limit}, nil
}

// Usage implements [Store].
func (s *PostgresStore) Usage(ctx context.Context, scope, resource string) (Decision, error) {
	limit := s.limits[resource]
	if limit <= 0 {
		return Decision{Allowed: true}, nil
	}

	day := DayBucket(s.now())

	var count int64
	err := s.db.QueryRow(ctx, usageSQL, scope, resource, day).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		count = 0
	} else if err != nil {
		return Decision{}, fmt.Errorf("quota: usage %s/%s: %w", scope, resource, err)
	}
	return Decision{Allowed: count < limit, Count: count, Limit: limit}, nil
}
