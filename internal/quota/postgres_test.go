package quota

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// mockRow implements pgx.Row.
type mockRow struct {
	scanFunc func(dest ...any) error
}

func (r *mockRow) Scan(dest ...any) error { return r.scanFunc(dest...) }

// queryCall records one QueryRow invocation.
type queryCall struct {
	sql  string
	args []any
}

// mockDB implements DB with scripted rows, consumed in order.
type mockDB struct {
	rows    []*mockRow
	queries []queryCall
	execSQL []string
}

func (db *mockDB) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	db.queries = append(db.queries, queryCall{sql: sql, args: args})
	if len(db.rows) == 0 {
		return &mockRow{scanFunc: func(...any) error { return pgx.ErrNoRows }}
	}
	row := db.rows[0]
	db.rows = db.rows[1:]
	return row
}

func (db *mockDB) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	db.execSQL = append(db.execSQL, sql)
	return pgconn.CommandTag{}, nil
}

func scanInt64(v int64) *mockRow {
	return &mockRow{scanFunc: func(dest ...any) error {
		*(dest[0].(*int64)) = v
		return nil
	}}
}

func fixedClock() PostgresOption {
	return WithPostgresClock(func() time.Time {
		return time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	})
}

func TestPostgresStore_Migrate(t *testing.T) {
	t.Parallel()
	db := &mockDB{}
	s := NewPostgresStore(db, nil)
	if err := s.Migrate(t.Context()); err != nil {
		t.Fatal(err)
	}
	if len(db.execSQL) != 1 || !strings.Contains(db.execSQL[0], "quota_usage") {
		t.Errorf("migrate executed %q", db.execSQL)
	}
}

func TestPostgresStore_Granted(t *testing.T) {
	t.Parallel()
	db := &mockDB{rows: []*mockRow{scanInt64(5)}}
	s := NewPostgresStore(db, map[string]int64{"ocr": 30}, fixedClock())

	d, err := s.CheckAndIncrement(t.Context(), "user:42", "ocr", 1)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed || d.Count != 5 || d.Limit != 30 {
		t.Errorf("decision = %+v", d)
	}

	if len(db.queries) != 1 {
		t.Fatalf("queries = %d, want 1", len(db.queries))
	}
	q := db.queries[0]
	if !strings.Contains(q.sql, "ON CONFLICT (scope, resource, day)") {
		t.Errorf("sql = %q, want atomic upsert", q.sql)
	}
	want := []any{"user:42", "ocr", "2026-08-31", int64(1), int64(30)}
	for i, arg := range want {
		if q.args[i] != arg {
			t.Errorf("arg[%d] = %v, want %v", i, q.args[i], arg)
		}
	}
}

func TestPostgresStore_DeniedFetchesCurrentCount(t *testing.T) {
	t.Parallel()
	// First row: no row returned (denied). Second row: current usage.
	db := &mockDB{rows: []*mockRow{
		{scanFunc: func(...any) error { return pgx.ErrNoRows }},
		scanInt64(30),
	}}
	s := NewPostgresStore(db, map[string]int64{"ocr": 30}, fixedClock())

	d, err := s.CheckAndIncrement(t.Context(), "user:42", "ocr", 1)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("decision should be denied")
	}
	if d.Count != 30 || d.Limit != 30 {
		t.Errorf("decision = %+v", d)
	}
	if len(db.queries) != 2 || !strings.Contains(db.queries[1].sql, "SELECT count") {
		t.Errorf("expected a usage query after denial, got %+v", db.queries)
	}
}

func TestPostgresStore_UnlimitedResourceSkipsDatabase(t *testing.T) {
	t.Parallel()
	db := &mockDB{}
	s := NewPostgresStore(db, map[string]int64{}, fixedClock())

	d, err := s.CheckAndIncrement(t.Context(), "u", "unmetered", 99)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Fatal("unlimited resource should be granted")
	}
	if len(db.queries) != 0 {
		t.Errorf("unlimited resources should not hit the database")
	}
}

func TestPostgresStore_OversizedRequestDeniedWithoutUpsert(t *testing.T) {
	t.Parallel()
	db := &mockDB{rows: []*mockRow{scanInt64(100)}}
	s := NewPostgresStore(db, map[string]int64{"translate_chars": 500}, fixedClock())

	d, err := s.CheckAndIncrement(t.Context(), "u", "translate_chars", 501)
	if err != nil {
		t.Fatal(err)
	}
	if d.Allowed {
		t.Fatal("request larger than the limit can never be granted")
	}
	if len(db.queries) != 1 || !strings.Contains(db.queries[0].sql, "SELECT count") {
		t.Errorf("expected only a usage query, got %+v", db.queries)
	}
}

func TestPostgresStore_UsageMissingRowIsZero(t *testing.T) {
	t.Parallel()
	db := &mockDB{}
	s := NewPostgresStore(db, map[string]int64{"ocr": 30}, fixedClock())

	d, err := s.Usage(t.Context(), "u", "ocr")
	if err != nil {
		t.Fatal(err)
	}
	if d.Count != 0 || !d.Allowed || d.Limit != 30 {
		t.Errorf("usage = %+v", d)
	}
}
